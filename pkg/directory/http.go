package directory

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
	"strings"
	"time"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
)

// HTTPClient queries the hosted backend's PostgREST surface under /rest/v1.
//
// Requests carry the signed-in user's token when the context holds an
// identity.Identity, and the service API key otherwise, so row-level security
// applies exactly as it does for the user's own browser session.
type HTTPClient struct {
	base    *url.URL
	cfg     Config
	client  *http.Client
	log     *slog.Logger
	maxBody int64
}

// DefaultMaxResponseBytes caps a successful response body.
const DefaultMaxResponseBytes = 1 << 20

var _ Directory = (*HTTPClient)(nil)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithMaxResponseBytes overrides DefaultMaxResponseBytes.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(h *HTTPClient) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// WithHTTPLogger sets the logger used for failed requests.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(h *HTTPClient) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHTTPClient builds a client for cfg.BaseURL.
func NewHTTPClient(cfg Config, opts ...HTTPOption) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("directory: parse base url: %w", err)
	}

	c := &HTTPClient{
		base:    base,
		cfg:     cfg.withDefaults(),
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
		maxBody: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) OwnedEntityIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := c.rows(ctx, "owned entities", c.cfg.EntityTable, url.Values{
		"select":          {"id"},
		c.cfg.OwnerColumn: {"eq." + userID},
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := scalar(row["id"]); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *HTTPClient) EntityTitle(ctx context.Context, entityID string) (string, error) {
	return c.single(ctx, "entity title", c.cfg.EntityTable, c.cfg.TitleColumn, entityID)
}

func (c *HTTPClient) ActorDisplayName(ctx context.Context, actorID string) (string, error) {
	return c.single(ctx, "actor name", c.cfg.ProfileTable, c.cfg.NameColumn, actorID)
}

func (c *HTTPClient) Preferences(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := c.rows(ctx, "preferences", c.cfg.PreferencesTable, url.Values{
		"select":  {"category,enabled"},
		"user_id": {"eq." + userID},
	})
	if err != nil {
		return nil, err
	}

	prefs := make(map[string]bool, len(rows))
	for _, row := range rows {
		category, ok := row["category"].(string)
		if !ok || category == "" {
			continue
		}
		enabled, ok := row["enabled"].(bool)
		if !ok {
			continue
		}
		prefs[category] = enabled
	}
	return prefs, nil
}

// single fetches one column of the row with the given id.
func (c *HTTPClient) single(ctx context.Context, op, table, column, id string) (string, error) {
	rows, err := c.rows(ctx, op, table, url.Values{
		"select": {column},
		"id":     {"eq." + id},
		"limit":  {"1"},
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: %s %q: %w", ErrFetch, op, id, ErrNotFound)
	}
	v, ok := scalar(rows[0][column])
	if !ok {
		return "", fmt.Errorf("%w: %s %q: %w", ErrFetch, op, id, ErrNotFound)
	}
	return v, nil
}

func (c *HTTPClient) rows(ctx context.Context, op, table string, query url.Values) ([]map[string]any, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	u := c.base.JoinPath("rest", "v1", table)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	token := c.cfg.APIKey
	if id, ok := identity.FromContext(ctx); ok && id.AuthToken != "" {
		token = id.AuthToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		serr := &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if errors.Is(serr, ErrAuthExpired) {
			c.log.WarnContext(ctx, "backend rejected token", logger.Operation(op))
		}
		return nil, serr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, op, err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, op, ErrResponseTooLarge)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %w", ErrFetch, op, err)
	}
	return rows, nil
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}
