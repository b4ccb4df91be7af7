package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

// Run applies every pending migration in dir. The users, accounts and
// sessions tables are shared by all collections.
//
// Migrations run on a single connection taken from db; closing the
// migrator releases that connection and leaves db open for the stores.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, log logrus.FieldLogger) error {
	source, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = source.Close()
		return fmt.Errorf("migration conn: %w", err)
	}
	driver, err := mysql.WithConnection(ctx, conn, &mysql.Config{})
	if err != nil {
		_ = conn.Close()
		_ = source.Close()
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		_ = driver.Close()
		_ = source.Close()
		return err
	}
	defer func() { _, _ = m.Close() }()

	if log != nil {
		m.Log = &migrateLogger{log: log.WithField("component", "migrate")}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

type migrateLogger struct{ log logrus.FieldLogger }

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Info(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (l *migrateLogger) Verbose() bool { return false }
