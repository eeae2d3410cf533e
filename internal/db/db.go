package db

import (
	"context"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite:"

// DB wraps the GORM database connection
type DB struct {
	*gorm.DB
}

// Connect opens the record store. A DSN of the form "sqlite:<path>" (or
// "sqlite::memory:") selects SQLite for local runs and tests; anything else
// is handed to the PostgreSQL driver.
func Connect(dsn string) (*DB, error) {
	dialector, inMemory := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
		PrepareStmt:            !inMemory,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if inMemory {
		// every new connection would see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return &DB{DB: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool) {
	if !strings.HasPrefix(dsn, sqlitePrefix) {
		return postgres.Open(dsn), false
	}
	path := strings.TrimPrefix(strings.TrimPrefix(dsn, sqlitePrefix), "//")
	return sqlite.Open(path), path == ":memory:"
}

// IsPostgres reports whether the connection uses the PostgreSQL dialect.
func (db *DB) IsPostgres() bool {
	return db.Dialector.Name() == "postgres"
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
