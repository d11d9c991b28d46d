package database

import (
	"context"
	"database/sql"
	"net/url"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/trezcool/goose"

	"github.com/syaifulazham/techlympics/core"
	appfs "github.com/syaifulazham/techlympics/fs"
)

const (
	adminDBName   = "postgres"
	pingAttempts  = 30
	pingStep      = 100 * time.Millisecond
	migrationsDir = "migrations"
)

// dsn builds the connection URL of dbName, as the admin role when admin is set and one is configured.
func dsn(conf core.DatabaseConfig, dbName string, admin bool) string {
	user := url.UserPassword(conf.User, conf.Password)
	if admin && conf.AdminUser != "" {
		user = url.UserPassword(conf.AdminUser, conf.AdminPassword)
	}
	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")
	q.Set("application_name", "techlympics")

	u := url.URL{Scheme: conf.Engine, User: user, Host: conf.Address(), Path: dbName, RawQuery: q.Encode()}
	return u.String()
}

// Open returns the application pool. Check-in bursts and the stats fan-out share it,
// so it is bounded by the database settings.
func Open(conf *core.Config) (*sql.DB, error) {
	db, err := sql.Open(conf.Database.Engine, dsn(conf.Database, conf.Database.Name, false))
	if err != nil {
		return nil, err
	}
	if conf.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(conf.Database.MaxOpenConns)
	}
	if conf.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(conf.Database.MaxIdleConns)
	}
	if conf.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(conf.Database.ConnMaxLifetime)
	}
	return db, nil
}

// waitReady pings db until it answers, backing off a little longer after each attempt.
func waitReady(ctx context.Context, db *sql.DB) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * pingStep):
		}
	}
	return errors.Wrap(err, "database not ready")
}

func exists(ctx context.Context, db *sql.DB, q, name string) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS ("+q+")", name).Scan(&found)
	return found, err
}

// ensureRole creates the application role, allowed to create its database.
func ensureRole(ctx context.Context, db *sql.DB, conf core.DatabaseConfig) error {
	if conf.User == "" {
		return nil
	}
	found, err := exists(ctx, db, "SELECT 1 FROM pg_roles WHERE rolname = $1", conf.User)
	if err != nil || found {
		return errors.Wrap(err, "looking up role")
	}
	_, err = db.ExecContext(ctx, "CREATE ROLE "+pq.QuoteIdentifier(conf.User)+
		" LOGIN CREATEDB ENCRYPTED PASSWORD "+pq.QuoteLiteral(conf.Password))
	return errors.Wrap(err, "creating role")
}

func ensureDatabase(ctx context.Context, db *sql.DB, name string) error {
	found, err := exists(ctx, db, "SELECT 1 FROM pg_database WHERE datname = $1", name)
	if err != nil || found {
		return errors.Wrap(err, "looking up database")
	}
	_, err = db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return errors.Wrap(err, "creating database")
}

// CreateIfNotExist creates the application role as admin, then the database as that role
// so that it owns it.
func CreateIfNotExist(conf *core.Config) error {
	ctx := context.Background()

	adminDB, err := sql.Open(conf.Database.Engine, dsn(conf.Database, adminDBName, true))
	if err != nil {
		return errors.Wrap(err, "opening admin connection")
	}
	defer func() { _ = adminDB.Close() }()
	if err = waitReady(ctx, adminDB); err != nil {
		return err
	}
	if err = ensureRole(ctx, adminDB, conf.Database); err != nil {
		return err
	}

	appDB, err := sql.Open(conf.Database.Engine, dsn(conf.Database, adminDBName, false))
	if err != nil {
		return errors.Wrap(err, "opening role connection")
	}
	defer func() { _ = appDB.Close() }()
	return ensureDatabase(ctx, appDB, conf.Database.Name)
}

// Migrate applies the embedded migrations: registry tables, attendance and certificates.
func Migrate(db *sql.DB) error {
	return errors.Wrap(goose.RunFS("up", db, appfs.FS, migrationsDir), "migrating database")
}
