package main

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/config"
	"github.com/jmartynas/workos-auth/internal/database"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/handlers"
	"github.com/jmartynas/workos-auth/internal/metrics"
	"github.com/jmartynas/workos-auth/internal/migrations"
	"github.com/jmartynas/workos-auth/internal/plugin"
	"github.com/jmartynas/workos-auth/internal/server"
	"github.com/jmartynas/workos-auth/internal/session"
	"github.com/jmartynas/workos-auth/internal/user"
	"github.com/jmartynas/workos-auth/internal/workos"
)

//go:embed migrations
var migrationFS embed.FS

type stores struct {
	users    user.Store
	accounts account.Store
	sessions session.Store
	closers  []func() error
}

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	configureLogger(log, cfg)

	ctx := context.Background()
	deps := map[string]handlers.Pinger{}

	st, err := openStores(ctx, cfg, log, deps)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer func() {
		for _, c := range st.closers {
			_ = c()
		}
	}()

	app := framework.New(framework.Config{
		Secret:       cfg.Framework.Secret,
		CookiePrefix: cfg.Framework.CookiePrefix,
		CSRF:         cfg.Framework.CSRF,
		APIPrefix:    cfg.Framework.APIPrefix,
		Production:   cfg.Production,
	}, st.users, st.accounts, st.sessions, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	for _, inst := range cfg.Instances {
		p, err := plugin.New(inst,
			plugin.WithMetrics(m),
			plugin.WithClientOptions(workos.WithLogger(log.WithField("instance", inst.Name))),
		)
		if err != nil {
			log.WithError(err).WithField("instance", inst.Name).Fatal("create auth instance")
		}
		if err := p.Apply(app); err != nil {
			log.WithError(err).WithField("instance", inst.Name).Fatal("apply auth instance")
		}
	}

	srv := server.New(cfg, log, app, reg, deps)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
		return
	}
	log.Info("server stopped")
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if cfg.Production {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stdout)
}

// openStores picks the user, account and session stores for cfg.Storage and
// registers every external dependency with the readiness check.
func openStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, deps map[string]handlers.Pinger) (*stores, error) {
	st := &stores{}

	switch cfg.Storage {
	case config.StorageMySQL:
		dbc, primary, err := database.Open(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, dbc.Close)
		deps["mysql"] = dbc
		log.WithField("replicas", len(cfg.MySQL.Replicas)).Info("mysql connected")

		if err := migrations.Run(ctx, primary, migrationFS, "migrations", log); err != nil {
			_ = dbc.Close()
			return nil, err
		}
		st.users = user.NewMySQLStore(dbc)
		st.accounts = account.NewMySQLStore(dbc)
		st.sessions = session.NewMySQLStore(dbc)
	default:
		log.Warn("using in-memory storage, data is lost on restart")
		st.users = user.NewMemoryStore()
		st.accounts = account.NewMemoryStore()
		st.sessions = session.NewMemoryStore()
	}

	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			for _, c := range st.closers {
				_ = c()
			}
			return nil, err
		}
		st.closers = append(st.closers, rdb.Close)
		deps["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		st.sessions = session.NewRedisStore(rdb, cfg.Redis.Prefix)
		log.WithField("addr", cfg.Redis.Addr).Info("sessions stored in redis")
	}

	return st, nil
}
