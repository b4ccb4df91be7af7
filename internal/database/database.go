package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	_ "github.com/go-sql-driver/mysql"

	"github.com/jmartynas/workos-auth/internal/config"
	"github.com/jmartynas/workos-auth/internal/errs"
)

// Open connects to the primary and every replica and returns them behind a
// resolver that sends writes to the primary and reads to the replicas.
// The returned *sql.DB is the primary, used for migrations.
func Open(ctx context.Context, cfg config.MySQLConfig) (dbresolver.DB, *sql.DB, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, nil, errs.ErrDSNNotConfigured
	}

	primary, err := open(ctx, dsn, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("primary: %w", err)
	}
	opts := []dbresolver.OptionFunc{dbresolver.WithPrimaryDBs(primary)}

	replicas := make([]*sql.DB, 0, len(cfg.Replicas))
	for i, rdsn := range cfg.ReplicaDSNs() {
		replica, err := open(ctx, rdsn, cfg)
		if err != nil {
			_ = primary.Close()
			for _, r := range replicas {
				_ = r.Close()
			}
			return nil, nil, fmt.Errorf("replica %d: %w", i, err)
		}
		replicas = append(replicas, replica)
	}
	if len(replicas) > 0 {
		opts = append(opts, dbresolver.WithReplicaDBs(replicas...))
	}

	return dbresolver.New(opts...), primary, nil
}

func open(ctx context.Context, dsn string, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxIdleConns(maxIdle)
	connLife := cfg.ConnMaxLifetime
	if connLife <= 0 {
		connLife = 5 * time.Minute
	}
	db.SetConnMaxLifetime(connLife)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}
