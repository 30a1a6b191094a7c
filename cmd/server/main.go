/*
main.go - Application entry point

PURPOSE:
  Starts the money tracker API. Handles configuration, dependency
  injection, and graceful shutdown.

COMMANDS:
  server [serve]   Run the HTTP API (default)
  server migrate   Apply database migrations and exit

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Build the zap logger
  3. Open the store (PostgreSQL, SQLite or memory) and migrate
  4. Create the shared Redis pool (cache + rate limiter)
  5. Configure the HTTP router
  6. Serve until SIGINT/SIGTERM

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis pool and database connections

EXAMPLES:
  # PostgreSQL from the environment
  POSTGRES_USER=money POSTGRES_DB=money IP_INT=db PORT=5432 ./server

  # Local SQLite file
  ./server --db-driver=sqlite --sqlite-path=./money.db

  # Everything in memory
  ./server --db-driver=memory --port=3000

SEE ALSO:
  - config/config.go: Every setting and its default
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/money-tracker/api"
	"github.com/warp/money-tracker/cache"
	"github.com/warp/money-tracker/config"
	"github.com/warp/money-tracker/ledger"
	"github.com/warp/money-tracker/ledger/store"
	"github.com/warp/money-tracker/logging"
	"github.com/warp/money-tracker/ratelimit"
	"github.com/warp/money-tracker/store/sqlstore"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd(viper.New()).ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(v *viper.Viper) *cobra.Command {
	serve := serveCmd(v)
	root := &cobra.Command{
		Use:           "server",
		Short:         "Personal finance ledger API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	flags := root.PersistentFlags()
	flags.String("db-driver", "", "store driver: postgres, sqlite or memory")
	flags.String("sqlite-path", "", "SQLite database file")
	flags.Int("port", 0, "HTTP listen port")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper; an unset flag falls through to env and defaults.
	_ = v.BindPFlag(config.KeyDBDriver, flags.Lookup("db-driver"))
	_ = v.BindPFlag(config.KeySQLitePath, flags.Lookup("sqlite-path"))
	_ = v.BindPFlag(config.KeyHTTPPort, flags.Lookup("port"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(serve)
	root.AddCommand(migrateCmd(v))
	return root
}

func serveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := openStore(cfg.DB, log)
	if err != nil {
		return err
	}
	defer st.Close()

	rc := cache.NewRedis(cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	}, log)
	defer rc.Close()

	var c cache.Cache = cache.Nop{}
	if cfg.Cache.Enabled {
		c = rc
	}
	if err := rc.Ping(ctx); err != nil {
		log.Warn("redis unavailable, running in degraded mode", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
	}

	handler := api.NewHandler(api.Deps{
		Engine:  ledger.NewEngine(st),
		Reads:   cache.NewReadThrough(c, cfg.Cache.TTL, log),
		Store:   st,
		Cache:   rc,
		Version: version,
		Logger:  log,
	})
	router := api.NewRouter(handler, api.RouterOptions{
		Limiter: ratelimit.NewLimiter(rc, ratelimit.Config{
			MaxRequests: cfg.RateLimit.Max,
			Window:      cfg.RateLimit.Window,
		}, log),
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}

// appStore is what the server needs from any store backend.
type appStore interface {
	ledger.TxStore
	Ping(ctx context.Context) error
	Close() error
}

type memoryStore struct{ *store.Memory }

func (memoryStore) Close() error { return nil }

func openStore(cfg config.DBConfig, log *zap.Logger) (appStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return memoryStore{store.NewMemory()}, nil
	case config.DriverSQLite:
		return sqlstore.Open(sqlstore.Config{
			Dialect: sqlstore.SQLite,
			DSN:     sqlstore.SQLiteDSN(cfg.SQLitePath),
		}, log)
	case config.DriverPostgres:
		return sqlstore.Open(sqlstore.Config{
			Dialect:         sqlstore.Postgres,
			DSN:             cfg.PostgresDSN(),
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, log)
	}
	return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
}
