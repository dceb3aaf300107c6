package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

type Config struct {
	URL        string        `env:"WEBHOOK_URL"`                              // URL receives every notification; empty disables forwarding.
	Secret     string        `env:"WEBHOOK_SECRET"`                           // Secret signs deliveries; empty sends them unsigned.
	Timeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`          // Timeout bounds each attempt.
	MaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"2"`       // MaxRetries after the first attempt.
	Cooldown   time.Duration `env:"WEBHOOK_COOLDOWN" envDefault:"30s"`        // Cooldown of the open circuit.
	Threshold  int           `env:"WEBHOOK_FAILURE_THRESHOLD" envDefault:"5"` // Threshold of consecutive failures that opens the circuit.
}

// Payload is the JSON body of a delivery.
type Payload struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Message    string    `json:"message"`
	DurationMS int64     `json:"duration_ms"`
	At         time.Time `json:"at"`
}

// Sender forwards notifications to an HTTP endpoint, for example a mobile
// push gateway. It satisfies notifications.Sink.
type Sender struct {
	url     string
	secret  string
	timeout time.Duration
	retries int
	backoff Backoff
	breaker *CircuitBreaker
	client  *http.Client
	log     *slog.Logger
}

type Option func(*Sender)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Sender) { s.backoff = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSender(cfg Config, opts ...Option) (*Sender, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute http(s), got %q", ErrInvalidConfig, cfg.URL)
	}

	s := &Sender{
		url:     cfg.URL,
		secret:  cfg.Secret,
		timeout: cfg.Timeout,
		retries: max(cfg.MaxRetries, 0),
		backoff: DefaultBackoff(),
		breaker: NewCircuitBreaker(cfg.Threshold, 1, cfg.Cooldown),
		client:  &http.Client{},
		log:     slog.Default(),
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("webhook"))
	return s, nil
}

// Notify delivers message for the user carried by ctx.
func (s *Sender) Notify(ctx context.Context, message string, d time.Duration) error {
	id, _ := identity.FromContext(ctx)
	return s.Send(ctx, Payload{
		ID:         uuid.NewString(),
		UserID:     id.UserID,
		Message:    message,
		DurationMS: d.Milliseconds(),
		At:         time.Now().UTC(),
	})
}

// Send posts p, retrying transient failures with backoff. Client errors
// other than 408, 425 and 429 are not retried.
func (s *Sender) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	var last error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff.Next(attempt)):
			}
		}

		status, err := s.attempt(ctx, body)
		if err == nil {
			s.breaker.RecordSuccess()
			return nil
		}
		s.breaker.RecordFailure()
		last = err

		s.log.LogAttrs(ctx, slog.LevelDebug, "webhook attempt failed",
			slog.Int("attempt", attempt+1),
			slog.Int("status", status),
			logger.Error(err),
		)
		if permanent(status) {
			return errors.Join(ErrPermanentFailure, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.retries+1, last)
}

func (s *Sender) attempt(ctx context.Context, body []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "newsdesk-notifier/1")
	if s.secret != "" {
		ts := time.Now().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, sign(s.secret, ts, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	msg := strings.ReplaceAll(strings.TrimSpace(string(snippet)), "\n", " ")
	return resp.StatusCode, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, msg)
}

func permanent(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}
