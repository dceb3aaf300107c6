package directory

import (
	"context"
	"time"
)

// Directory answers the lookups the notification engine needs from the
// content backend. Every method fails with an error wrapping ErrFetch.
type Directory interface {
	// OwnedEntityIDs returns the IDs of content authored by userID.
	OwnedEntityIDs(ctx context.Context, userID string) ([]string, error)
	// EntityTitle returns the display title of a content item.
	EntityTitle(ctx context.Context, entityID string) (string, error)
	// ActorDisplayName returns the public name of a user.
	ActorDisplayName(ctx context.Context, actorID string) (string, error)
	// Preferences returns the user's stored category flags. Categories the
	// user never set are absent.
	Preferences(ctx context.Context, userID string) (map[string]bool, error)
}

type Config struct {
	Backend        string        `env:"DIRECTORY_BACKEND" envDefault:"http"`   // Backend is "http" or "postgres".
	BaseURL        string        `env:"DIRECTORY_BASE_URL"`                    // BaseURL of the hosted backend, e.g. https://xyz.example.co.
	APIKey         string        `env:"DIRECTORY_API_KEY"`                     // APIKey is sent as the apikey header and as fallback bearer token.
	RequestTimeout time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"5s"`     // RequestTimeout bounds each lookup.
	CacheSize      int           `env:"DIRECTORY_CACHE_SIZE" envDefault:"1024"` // CacheSize of the title and display-name caches; 0 disables caching.
	CacheTTL       time.Duration `env:"DIRECTORY_CACHE_TTL" envDefault:"5m"`   // CacheTTL bounds staleness of cached names.

	EntityTable      string `env:"DIRECTORY_ENTITY_TABLE" envDefault:"articles"`                       // EntityTable holds the content items.
	OwnerColumn      string `env:"DIRECTORY_OWNER_COLUMN" envDefault:"author_id"`                      // OwnerColumn links content to its author.
	TitleColumn      string `env:"DIRECTORY_TITLE_COLUMN" envDefault:"title"`                          // TitleColumn is the display title.
	ProfileTable     string `env:"DIRECTORY_PROFILE_TABLE" envDefault:"profiles"`                      // ProfileTable holds user profiles.
	NameColumn       string `env:"DIRECTORY_NAME_COLUMN" envDefault:"display_name"`                    // NameColumn is the public display name.
	PreferencesTable string `env:"DIRECTORY_PREFERENCES_TABLE" envDefault:"notification_preferences"` // PreferencesTable holds (user_id, category, enabled) rows.
}

// withDefaults fills the schema names left empty, e.g. by a literal Config.
func (c Config) withDefaults() Config {
	set := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	set(&c.EntityTable, "articles")
	set(&c.OwnerColumn, "author_id")
	set(&c.TitleColumn, "title")
	set(&c.ProfileTable, "profiles")
	set(&c.NameColumn, "display_name")
	set(&c.PreferencesTable, "notification_preferences")
	return c
}
