package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc"

	"github.com/Proton-105/himera-dispatch/internal/access"
	"github.com/Proton-105/himera-dispatch/internal/bot"
	"github.com/Proton-105/himera-dispatch/internal/bot/handlers"
	"github.com/Proton-105/himera-dispatch/internal/database"
	"github.com/Proton-105/himera-dispatch/internal/dialogue"
	"github.com/Proton-105/himera-dispatch/internal/dispatch"
	apperrors "github.com/Proton-105/himera-dispatch/internal/errors"
	"github.com/Proton-105/himera-dispatch/internal/health"
	"github.com/Proton-105/himera-dispatch/internal/i18n"
	"github.com/Proton-105/himera-dispatch/internal/lifecycle"
	"github.com/Proton-105/himera-dispatch/internal/middleware"
	"github.com/Proton-105/himera-dispatch/internal/session"
	"github.com/Proton-105/himera-dispatch/migrations"
	"github.com/Proton-105/himera-dispatch/pkg/config"
	"github.com/Proton-105/himera-dispatch/pkg/graceful"
	"github.com/Proton-105/himera-dispatch/pkg/logger"
	"github.com/Proton-105/himera-dispatch/pkg/metrics"
	redisclient "github.com/Proton-105/himera-dispatch/pkg/redis"
)

const stateCollectInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to the YAML config, defaults to ./configs/<APP_ENV>.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, v, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	flushSentry, err := logger.InitSentry(*cfg)
	if err != nil {
		log.Warn("sentry disabled", slog.Any("error", err))
	}

	log.Info("starting himera dispatch", slog.String("mode", cfg.Bot.Mode), slog.Int("workers", cfg.Dispatch.Workers))

	shutdown := lifecycle.NewShutdown(log)
	checker := health.NewChecker(log)
	probes := lifecycle.NewProbes(checker, log)

	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		checker.AddCheck("redis", health.NewRedisChecker(rdb))
	}

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		if err := migrate(ctx, db, cfg.Database, log); err != nil {
			return err
		}
		checker.AddCheck("postgres", health.NewDBChecker(db))
	}

	var background conc.WaitGroup

	store, err := newSessionStore(ctx, cfg.Session, rdb, log, &background)
	if err != nil {
		return err
	}

	machine, err := dialogue.NewMachine(
		handlers.Onboarding(),
		store,
		newLocker(cfg, rdb, log),
		log,
		dialogue.WithTTL(cfg.Session.TTL),
	)
	if err != nil {
		return err
	}

	var rules *access.SQLRuleSource
	if db != nil && cfg.Access.LoadFromDB {
		rules = access.NewSQLRuleSource(db, log)
	}
	policy, err := buildPolicy(ctx, cfg.Access, rules)
	if err != nil {
		return err
	}
	policies := access.NewHolder(policy)
	config.Watch(v, func(next *config.Config, event fsnotify.Event) {
		reloaded, err := buildPolicy(ctx, next.Access, rules)
		if err != nil {
			log.Warn("access policy reload failed, keeping the current one", slog.Any("error", err))
			return
		}
		policies.Store(reloaded)
		log.Info("access policy reloaded", slog.String("file", event.Name), slog.Int("rules", len(reloaded.Rules())))
	}, func(err error) {
		log.Warn("config reload rejected", slog.Any("error", err))
	})

	limitGuard, err := newRateLimitGuard(ctx, cfg.RateLimit, rdb, log, &background)
	if err != nil {
		return err
	}

	dedup := middleware.NewDedup(newTracker(ctx, cfg.Dispatch, rdb, log, &background), log)

	tg, err := bot.New(cfg.Bot, log)
	if err != nil {
		return err
	}
	checker.AddCheck("telegram", health.NewTelegramChecker(tg.Telebot()))
	breaker := apperrors.NewCircuitBreaker(nil, apperrors.OnStateChange(func(from, to apperrors.State) {
		log.Warn("telegram circuit breaker changed state", slog.String("from", from.String()), slog.String("to", to.String()))
	}))
	sender := bot.NewSender(tg.Telebot(), breaker, apperrors.RetryPolicy{}, log)

	texts, err := i18n.Builtin()
	if err != nil {
		return err
	}

	dispatcher := bot.NewChain(log, bot.ChainDeps{
		Dedup:     dedup,
		Access:    access.NewGuard(policies, handlers.NotifyDenied),
		RateLimit: limitGuard,
		Machine:   machine,
		Sessions:  store,
	},
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithInjector(dispatch.Provide[dispatch.APIClient](dispatch.APIKey, sender)),
		dispatch.WithInjector(handlers.WithTranslations(texts)),
		dispatch.WithErrorReporter(apperrors.NewHandler(log, cfg.Sentry.Enabled)),
	)
	runner := dispatch.NewRunner(dispatcher, dispatch.RunnerConfig{Workers: cfg.Dispatch.Workers}, dedup.Settle, log)

	if _, ok := store.(session.Ranger); ok {
		collector := metrics.NewStateCollector(machine, stateCollectInterval, log)
		background.Go(func() { collector.Run(ctx) })
	}

	ops := newOpsServer(cfg.Server, probes, log)
	background.Go(func() {
		if err := ops.ListenAndServe(ctx); err != nil {
			log.Error("ops server stopped", slog.Any("error", err))
			cancel()
		}
	})

	shutdown.Register("readiness", func(context.Context) error {
		probes.MarkNotReady()
		return nil
	})
	shutdown.Register("dispatch runner", runner.Shutdown)
	if rdb != nil {
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
	}
	if db != nil {
		shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	}
	shutdown.Register("sentry", func(context.Context) error {
		flushSentry()
		return nil
	})

	probes.MarkReady()
	if err := tg.Run(ctx, runner); err != nil && !errors.Is(err, dispatch.ErrRunnerClosed) {
		log.Error("telegram update loop failed", slog.Any("error", err))
	}
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	shutdownErr := shutdown.Execute(shutdownCtx)

	background.Wait()
	log.Info("himera dispatch stopped")
	return shutdownErr
}

func newOpsServer(cfg config.ServerConfig, probes *lifecycle.Probes, log *slog.Logger) *graceful.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	probes.Mount(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           logger.Middleware(middleware.Logging(log)(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return graceful.NewServer(log, srv, cfg.ShutdownTimeout)
}

func migrate(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig, log *slog.Logger) error {
	migrator := database.NewMigrator(db, log)

	var err error
	if cfg.MigrationsDir != "" {
		_, err = migrator.ApplyDir(ctx, cfg.MigrationsDir)
	} else {
		_, err = migrator.Apply(ctx, migrations.FS, ".")
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
