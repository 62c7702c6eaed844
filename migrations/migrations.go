package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
)

// SyncMode selects how SyncUsers reconciles the users table.
type SyncMode int

const (
	// Additive creates missing tables, columns and indexes without dropping data.
	Additive SyncMode = iota
	// Destructive drops the users table and recreates it. All rows are lost.
	Destructive
)

func (m SyncMode) String() string {
	switch m {
	case Additive:
		return "additive"
	case Destructive:
		return "destructive"
	default:
		return "unknown"
	}
}

// ModeFor returns Destructive only when force is set.
func ModeFor(force bool) SyncMode {
	if force {
		return Destructive
	}
	return Additive
}

const UsersTable = "users"

const uniqueDNIIndex = "uniq_users_dni"

const createUsersTable = `
	CREATE TABLE IF NOT EXISTS users (
		id INT AUTO_INCREMENT PRIMARY KEY,
		dni VARCHAR(20) NOT NULL,
		name VARCHAR(100) NOT NULL,
		UNIQUE KEY uniq_users_dni (dni)
	);
`

// usersColumns lists the definitions added by an additive sync when a column is missing.
var usersColumns = []struct {
	Name       string
	Definition string
}{
	{"dni", "VARCHAR(20) NOT NULL"},
	{"name", "VARCHAR(100) NOT NULL"},
}

// SyncUsers brings the users table in line with the User entity.
func SyncUsers(ctx context.Context, db *sql.DB, mode SyncMode) error {
	switch mode {
	case Destructive:
		log.Warn().Msg("Force recreating users table")
		if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS users`); err != nil {
			return fmt.Errorf("drop users table: %w", err)
		}
		if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
			return fmt.Errorf("create users table: %w", err)
		}
		log.Info().Msg("Users table recreated")
		return nil
	case Additive:
		return alterUsers(ctx, db)
	default:
		return fmt.Errorf("unknown sync mode %d", mode)
	}
}

func alterUsers(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	existing, err := columns(ctx, db, UsersTable)
	if err != nil {
		return err
	}
	for _, col := range usersColumns {
		if existing[col.Name] {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE users ADD COLUMN %s %s", col.Name, col.Definition)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("add column users.%s: %w", col.Name, err)
		}
		log.Info().Msgf("Added column users.%s", col.Name)
	}

	var count int
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = ?`,
		UsersTable, uniqueDNIIndex).Scan(&count)
	if err != nil {
		return fmt.Errorf("inspect users indexes: %w", err)
	}
	if count == 0 {
		// Tables created before the index existed may already hold duplicate dni values.
		if _, err := db.ExecContext(ctx, `ALTER TABLE users ADD UNIQUE KEY uniq_users_dni (dni)`); err != nil {
			log.Warn().Err(err).Msg("Could not add unique index on users.dni, duplicates are only prevented by the create lock")
		}
	}

	log.Info().Msg("Users table synchronized")
	return nil
}

func columns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect %s columns: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
