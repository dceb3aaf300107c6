package notifications

import (
	"log/slog"
	"time"
)

type Config struct {
	ToastDuration time.Duration `env:"NOTIFY_TOAST_DURATION" envDefault:"5s"` // ToastDuration is how long a toast stays on screen.
	DedupSize     int           `env:"NOTIFY_DEDUP_SIZE" envDefault:"0"`      // DedupSize enables redelivery dedup when > 0.
	TablesFile    string        `env:"NOTIFY_TABLES_FILE"`                    // TablesFile overrides the default table catalog.
	Enabled       bool          `env:"NOTIFY_ENABLED" envDefault:"true"`      // Enabled is the initial global flag of new sessions.
	BufferSize    int           `env:"NOTIFY_BUFFER_SIZE" envDefault:"16"`    // BufferSize is the per-connection toast buffer.
	MaxUsers      int           `env:"NOTIFY_MAX_USERS" envDefault:"10000"`   // MaxUsers caps concurrent sessions.
}

// Tables returns the catalog from TablesFile, or DefaultTables when unset.
func (c Config) Tables() ([]Table, error) {
	if c.TablesFile == "" {
		return DefaultTables(), nil
	}
	return LoadTables(c.TablesFile)
}

// SessionOptions translates the config into session options.
func (c Config) SessionOptions(log *slog.Logger) []SessionOption {
	return []SessionOption{
		WithToastDuration(c.ToastDuration),
		WithEventDeduplication(c.DedupSize),
		WithEnabled(c.Enabled),
		WithSessionLogger(log),
	}
}

// HubOptions translates the config into hub options.
func (c Config) HubOptions(log *slog.Logger) []HubOption {
	return []HubOption{
		WithSessionOptions(c.SessionOptions(log)...),
		WithMaxSessions(c.MaxUsers),
		WithToastBuffer(c.BufferSize),
		WithHubLogger(log),
	}
}
