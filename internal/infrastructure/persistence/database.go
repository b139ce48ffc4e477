package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/procurement/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is an open GORM connection and the driver behind it
type Database struct {
	DB     *gorm.DB
	Driver string
}

// Option adjusts the GORM configuration before connecting
type Option func(*gorm.Config)

// WithLogger sends GORM's output to l instead of discarding it
func WithLogger(l logger.Interface) Option {
	return func(c *gorm.Config) { c.Logger = l }
}

func gormConfig(opts []Option) *gorm.Config {
	cfg := &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NewDatabase connects to the database cfg describes. Postgres connections
// are pooled per cfg and checked with a ping before returning.
func NewDatabase(cfg *config.DatabaseConfig, opts ...Option) (*Database, error) {
	gcfg := gormConfig(opts)
	switch cfg.Driver {
	case "sqlite":
		return openSQLite(cfg.SQLitePath, gcfg)
	case "", "postgres":
		gcfg.PrepareStmt = true
		return openPostgres(cfg, gcfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens a sqlite database. Tests pass a shared-cache memory DSN
// like "file:<name>?mode=memory&cache=shared".
func OpenSQLite(dsn string, opts ...Option) (*Database, error) {
	return openSQLite(dsn, gormConfig(opts))
}

func openPostgres(cfg *config.DatabaseConfig, gcfg *gorm.Config) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	d := &Database{DB: db, Driver: "postgres"}
	pool, err := d.pool()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	if err := pool.Ping(); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return d, nil
}

func openSQLite(dsn string, gcfg *gorm.Config) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	d := &Database{DB: db, Driver: "sqlite"}
	pool, err := d.pool()
	if err != nil {
		return nil, err
	}
	// A single connection makes concurrent transactions queue instead of
	// failing with SQLITE_BUSY.
	pool.SetMaxOpenConns(1)
	return d, nil
}

func (d *Database) pool() (*sql.DB, error) {
	pool, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	return pool, nil
}

// AutoMigrate creates or alters every table from the GORM models. Postgres
// deployments run the SQL migrations instead.
func (d *Database) AutoMigrate() error {
	if err := d.DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.Close()
}

func (d *Database) Ping() error {
	pool, err := d.pool()
	if err != nil {
		return err
	}
	return pool.Ping()
}

// Stats reports the connection pool counters
func (d *Database) Stats() (sql.DBStats, error) {
	pool, err := d.pool()
	if err != nil {
		return sql.DBStats{}, err
	}
	return pool.Stats(), nil
}
