package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unipress/newsdesk/pkg/pg"
)

// PostgresDirectory answers lookups straight from the content database. It
// suits deployments where the notifier runs next to the database and row
// level security is not needed.
type PostgresDirectory struct {
	pool    *pgxpool.Pool
	queries queries
	cfg     Config
}

var _ Directory = (*PostgresDirectory)(nil)

type queries struct {
	owned string
	title string
	name  string
	prefs string
}

func buildQueries(cfg Config) queries {
	cfg = cfg.withDefaults()
	ident := func(s string) string { return pgx.Identifier{s}.Sanitize() }

	return queries{
		owned: fmt.Sprintf("SELECT id::text FROM %s WHERE %s::text = $1",
			ident(cfg.EntityTable), ident(cfg.OwnerColumn)),
		title: fmt.Sprintf("SELECT %s FROM %s WHERE id::text = $1 LIMIT 1",
			ident(cfg.TitleColumn), ident(cfg.EntityTable)),
		name: fmt.Sprintf("SELECT %s FROM %s WHERE id::text = $1 LIMIT 1",
			ident(cfg.NameColumn), ident(cfg.ProfileTable)),
		prefs: fmt.Sprintf("SELECT category, enabled FROM %s WHERE user_id::text = $1",
			ident(cfg.PreferencesTable)),
	}
}

func NewPostgresDirectory(pool *pgxpool.Pool, cfg Config) *PostgresDirectory {
	return &PostgresDirectory{
		pool:    pool,
		queries: buildQueries(cfg),
		cfg:     cfg,
	}
}

func (d *PostgresDirectory) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.RequestTimeout)
	}
	return ctx, func() {}
}

func (d *PostgresDirectory) OwnedEntityIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.pool.Query(ctx, d.queries.owned, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: owned entities: %w", ErrFetch, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%w: owned entities: %w", ErrFetch, err)
	}
	return ids, nil
}

func (d *PostgresDirectory) EntityTitle(ctx context.Context, entityID string) (string, error) {
	return d.single(ctx, "entity title", d.queries.title, entityID)
}

func (d *PostgresDirectory) ActorDisplayName(ctx context.Context, actorID string) (string, error) {
	return d.single(ctx, "actor name", d.queries.name, actorID)
}

func (d *PostgresDirectory) Preferences(ctx context.Context, userID string) (map[string]bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	rows, err := d.pool.Query(ctx, d.queries.prefs, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: preferences: %w", ErrFetch, err)
	}

	prefs := make(map[string]bool)
	var (
		category string
		enabled  bool
	)
	_, err = pgx.ForEachRow(rows, []any{&category, &enabled}, func() error {
		prefs[category] = enabled
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: preferences: %w", ErrFetch, err)
	}
	return prefs, nil
}

func (d *PostgresDirectory) single(ctx context.Context, op, query, id string) (string, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	var v *string
	if err := d.pool.QueryRow(ctx, query, id).Scan(&v); err != nil {
		if pg.IsNotFoundError(err) {
			return "", fmt.Errorf("%w: %s %q: %w", ErrFetch, op, id, ErrNotFound)
		}
		return "", fmt.Errorf("%w: %s %q: %w", ErrFetch, op, id, err)
	}
	if v == nil || *v == "" {
		return "", fmt.Errorf("%w: %s %q: %w", ErrFetch, op, id, ErrNotFound)
	}
	return *v, nil
}
