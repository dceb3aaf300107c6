// Command notifier streams real-time toasts for reactions, bookmarks and
// comments on a user's content.
//
// In serve mode (the default) it exposes the notification stream over SSE.
// In relay mode it forwards the Postgres change feed into Redis so that
// serve replicas can run with FEED_DRIVER=redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unipress/newsdesk/pkg/changefeed"
	"github.com/unipress/newsdesk/pkg/clientip"
	"github.com/unipress/newsdesk/pkg/config"
	"github.com/unipress/newsdesk/pkg/directory"
	"github.com/unipress/newsdesk/pkg/httpserver"
	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/notifications"
	"github.com/unipress/newsdesk/pkg/pg"
	"github.com/unipress/newsdesk/pkg/ratelimiter"
	"github.com/unipress/newsdesk/pkg/redis"
	"github.com/unipress/newsdesk/pkg/requestid"
	"github.com/unipress/newsdesk/pkg/toast"
	"github.com/unipress/newsdesk/pkg/webhook"
)

type appConfig struct {
	Mode       string `env:"NOTIFIER_MODE" envDefault:"serve"`   // Mode is "serve" or "relay".
	FeedDriver string `env:"FEED_DRIVER" envDefault:"postgres"`  // FeedDriver is "postgres" or "redis".
	Env        string `env:"APP_ENV" envDefault:"development"`   // Env selects the logger preset.
	LogLevel   string `env:"LOG_LEVEL"`                          // LogLevel overrides the preset level.
	Service    string `env:"SERVICE_NAME" envDefault:"notifier"` // Service is attached to every log record.

	ProxyHeaders []string `env:"TRUSTED_PROXY_HEADERS" envSeparator:","` // ProxyHeaders carry the client address, in order.
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("notifier stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var app appConfig
	if err := config.Load(&app); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(app.Env, app.Service),
		logger.WithLevelName(app.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	var (
		pgCfg   pg.Config
		httpCfg httpserver.Config
		notify  notifications.Config
	)
	if err := errors.Join(config.Load(&pgCfg), config.Load(&httpCfg), config.Load(&notify)); err != nil {
		return err
	}

	tables, err := notify.Tables()
	if err != nil {
		return err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if pgCfg.AutoMigrate {
		if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
			return err
		}
	}

	checks := []httpserver.Check{{Name: "postgres", Probe: pg.Healthcheck(pool)}}

	var rdb *goredis.Client
	var redisCfg redis.Config
	if app.Mode == "relay" || app.FeedDriver == "redis" {
		if err := config.Load(&redisCfg); err != nil {
			return err
		}
		rdb, err = redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks = append(checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(rdb)})
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.New(app.ProxyHeaders...).Middleware)
	r.Get("/health/live", httpserver.LivenessHandler())
	r.Get("/health/ready", httpserver.ReadinessHandler(log, httpCfg.ProbeTimeout, checks...))

	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	switch app.Mode {
	case "relay":
		return relay(ctx, log, pool, rdb, redisCfg, tables, server, r)
	case "serve":
		return serve(ctx, log, app, pool, rdb, redisCfg, tables, notify, server, r)
	default:
		return fmt.Errorf("unknown NOTIFIER_MODE %q", app.Mode)
	}
}

func relay(
	ctx context.Context,
	log *slog.Logger,
	pool *pgxpool.Pool,
	rdb *goredis.Client,
	redisCfg redis.Config,
	tables []notifications.Table,
	server *httpserver.Server,
	r chi.Router,
) error {
	rl := changefeed.NewRelay(
		changefeed.NewPostgresSource(pool, changefeed.WithLogger(log)),
		changefeed.NewRedisPublisher(rdb, changefeed.WithChannelPrefix(redisCfg.ChannelPrefix), changefeed.WithLogger(log)),
		filters(tables),
		log,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rl.Run(ctx) })
	g.Go(func() error { return server.Run(ctx, r) })
	return g.Wait()
}

func serve(
	ctx context.Context,
	log *slog.Logger,
	app appConfig,
	pool *pgxpool.Pool,
	rdb *goredis.Client,
	redisCfg redis.Config,
	tables []notifications.Table,
	notify notifications.Config,
	server *httpserver.Server,
	r chi.Router,
) error {
	var (
		dirCfg   directory.Config
		idCfg    identity.Config
		limitCfg ratelimiter.Config
		hookCfg  webhook.Config
	)
	if err := errors.Join(
		config.Load(&dirCfg),
		config.Load(&idCfg),
		config.Load(&limitCfg),
		config.Load(&hookCfg),
	); err != nil {
		return err
	}

	verifier, err := identity.NewVerifier(idCfg)
	if err != nil {
		return err
	}

	var dir directory.Directory
	switch dirCfg.Backend {
	case "http":
		c, err := directory.NewHTTPClient(dirCfg, directory.WithHTTPLogger(log))
		if err != nil {
			return err
		}
		dir = c
	case "postgres":
		dir = directory.NewPostgresDirectory(pool, dirCfg)
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", dirCfg.Backend)
	}
	dir = directory.NewCached(dir, dirCfg.CacheSize, dirCfg.CacheTTL)

	var (
		src changefeed.Source
		fan *changefeed.FanOut
	)
	switch app.FeedDriver {
	case "postgres":
		// One LISTEN connection per table, shared by every session.
		fan = changefeed.NewFanOut(
			changefeed.NewPostgresSource(pool, changefeed.WithLogger(log)),
			filters(tables),
			changefeed.WithLogger(log),
			changefeed.WithBufferSize(notify.BufferSize),
		)
		src = fan
	case "redis":
		src = changefeed.NewRedisSource(rdb,
			changefeed.WithChannelPrefix(redisCfg.ChannelPrefix),
			changefeed.WithLogger(log),
			changefeed.WithBufferSize(notify.BufferSize),
		)
	default:
		return fmt.Errorf("unknown FEED_DRIVER %q", app.FeedDriver)
	}

	deps := notifications.HubDeps{Source: src, Directory: dir, Tables: tables}
	if hookCfg.URL != "" {
		sender, err := webhook.NewSender(hookCfg, webhook.WithLogger(log))
		if err != nil {
			return err
		}
		deps.Sink = sender
	}

	hub, err := notifications.NewHub(deps, notify.HubOptions(log)...)
	if err != nil {
		return err
	}
	defer func() {
		if err := hub.Close(); err != nil {
			log.Error("failed to close hub", logger.Error(err))
		}
	}()

	// Refresh limits are shared between replicas when Redis is available.
	var store ratelimiter.Store
	if rdb != nil {
		store = ratelimiter.NewRedisStore(rdb, ratelimiter.WithKeyPrefix(redisCfg.ChannelPrefix+":ratelimit"))
	} else {
		mem := ratelimiter.NewMemoryStore()
		defer mem.Close()
		store = mem
	}
	limiter, err := ratelimiter.New(store, limitCfg)
	if err != nil {
		return err
	}

	r.Mount("/notifications", toast.Routes(hub, verifier, log, toast.WithRefreshLimit(limiter)))

	log.InfoContext(ctx, "notifier serving",
		slog.String("feed", app.FeedDriver),
		slog.String("directory", dirCfg.Backend),
		slog.Bool("webhook", deps.Sink != nil),
		logger.Count(len(tables)),
	)

	g, ctx := errgroup.WithContext(ctx)
	if fan != nil {
		g.Go(func() error { return fan.Run(ctx) })
	}
	g.Go(func() error { return server.Run(ctx, r) })
	return g.Wait()
}

func filters(tables []notifications.Table) []changefeed.Filter {
	out := make([]changefeed.Filter, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Filter())
	}
	return out
}
