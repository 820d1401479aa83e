package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// DB holds the durable collections: reservations, payment records and
// absence windows. These are append/soft-delete collections; no row-level
// locking is needed because concurrent writers never touch the same row
// and readers merge sources instead of assuming single-writer consistency.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Заявки на бронирование
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            duration_hours INTEGER NOT NULL DEFAULT 1,
            time_slots TEXT NOT NULL DEFAULT '',
            provider_id TEXT NOT NULL,
            customer_name TEXT NOT NULL,
            phone TEXT,
            note TEXT,
            service_type TEXT,
            channel TEXT NOT NULL DEFAULT 'web',
            channel_user_id TEXT,
            payment_ref TEXT,
            payment_status TEXT NOT NULL DEFAULT 'pending',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Попытки оплаты
		`CREATE TABLE IF NOT EXISTS payments (
            id TEXT PRIMARY KEY,
            ref_code TEXT NOT NULL,
            date TEXT NOT NULL,
            time TEXT NOT NULL,
            hours INTEGER NOT NULL DEFAULT 1,
            provider_id TEXT,
            provider_name TEXT,
            customer_name TEXT,
            phone TEXT,
            service_type TEXT,
            amount_expected REAL NOT NULL,
            amount_read REAL,
            matched BOOLEAN NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'pending',
            slot_id TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		// Окна недоступности мастеров (пустой provider_id = закрыт весь салон)
		`CREATE TABLE IF NOT EXISTS absences (
            id TEXT PRIMARY KEY,
            provider_id TEXT NOT NULL DEFAULT '',
            date TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            note TEXT
        )`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_date_provider ON reservations(date, provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_payment_ref ON reservations(payment_ref)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_date_provider ON payments(date, provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_ref_code ON payments(ref_code)`,
		`CREATE INDEX IF NOT EXISTS idx_absences_date ON absences(date)`,
		`CREATE INDEX IF NOT EXISTS idx_absences_provider ON absences(provider_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
