// Package sampledb mirrors sample rows into an SQLite database next to the
// text logs. The mirror is write-only from pvlogger's point of view; other
// tooling may read it, nothing here queries history.
package sampledb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Mirror is a secondary sample sink backed by SQLite.
type Mirror struct {
	db *sql.DB
}

// Open creates or opens the database at dbPath and applies migrations.
func Open(dbPath string) (*Mirror, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sample db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sample db: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	return &Mirror{db: db}, nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}
