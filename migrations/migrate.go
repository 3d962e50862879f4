package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed *.sql
var files embed.FS

const migrationsTable = "schema_migrations_timetable"

// Up applies every embedded migration that has not been recorded yet, in filename order.
func Up(db *sqlx.DB) error {
	if db == nil {
		return errors.New("db is required")
	}
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("list embedded migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := isApplied(db, name)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Beginx()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", name, err)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			_ = tx.Rollback()
			if !isIgnorable(err) {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := db.Exec(`INSERT INTO `+migrationsTable+` (filename) VALUES ($1) ON CONFLICT (filename) DO NOTHING`, name); err != nil {
				return fmt.Errorf("record migration %s after ignored error: %w", name, err)
			}
			continue
		}
		if _, err := tx.Exec(`INSERT INTO `+migrationsTable+` (filename) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

func ensureMigrationsTable(db *sqlx.DB) error {
	query := `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
	filename text PRIMARY KEY,
	applied_at timestamptz NOT NULL DEFAULT now()
)`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("ensure migration table %s: %w", migrationsTable, err)
	}
	return nil
}

func isApplied(db *sqlx.DB, name string) (bool, error) {
	var exists bool
	if err := db.Get(&exists, `SELECT EXISTS (SELECT 1 FROM `+migrationsTable+` WHERE filename = $1)`, name); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	return exists, nil
}

func isIgnorable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "42P07", // duplicate_table
		"42710", // duplicate_object
		"42701": // duplicate_column
		return true
	default:
		return false
	}
}
