// Package pg bootstraps PostgreSQL access with the pgx/v5 driver.
//
// Connect opens a *pgxpool.Pool from Config, retrying until the database is
// reachable or the context ends. Migrate applies the goose migrations embedded
// in this package: the content schema the notifier reads from, and the
// newsdesk_changefeed_notify() trigger that publishes every row mutation on
// the reactions, bookmarks and comments tables to the channel
// "changefeed_<table>" as a JSON document:
//
//	{"id":"comments:INSERT:42","table":"comments","op":"INSERT",
//	 "new":{...row...},"old":null,"ts":"2024-05-01T10:00:00.000000Z"}
//
// Healthcheck adapts a pool to the func(context.Context) error shape used by
// the HTTP readiness probe.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if cfg.AutoMigrate {
//		if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//			return err
//		}
//	}
package pg
