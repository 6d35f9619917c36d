package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"promo-system/internal/config"
	"promo-system/internal/logger"

	_ "github.com/lib/pq"
)

// DB представляет подключение к базе данных
type DB struct {
	*sql.DB
}

// Connect создает подключение к PostgreSQL
func Connect(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=5",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"host":     cfg.Host,
		"database": cfg.DBName,
	}).Info("Successfully connected to database")

	return &DB{DB: db}, nil
}

// Close закрывает подключение к базе данных
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// Health проверяет состояние базы данных
func (db *DB) Health() error {
	if db == nil || db.DB == nil {
		return errors.New("database not initialized")
	}
	return db.Ping()
}

const schema = `
CREATE TABLE IF NOT EXISTS promo_codes (
	code             TEXT PRIMARY KEY,
	activations_left INTEGER NOT NULL CHECK (activations_left >= 0),
	value            NUMERIC(18, 2) NOT NULL,
	reward_type      TEXT NOT NULL,
	users_used       TEXT[] NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_promo_codes_created_at ON promo_codes (created_at DESC);

CREATE TABLE IF NOT EXISTS user_accounts (
	id                 TEXT PRIMARY KEY,
	balance            NUMERIC(18, 2) NOT NULL DEFAULT 0,
	used_promos        TEXT[] NOT NULL DEFAULT '{}',
	active_promo_code  TEXT,
	active_promo_type  TEXT,
	active_promo_value NUMERIC(18, 2) NOT NULL DEFAULT 0,
	active_promo_used  BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Migrate создает таблицы промокодов и аккаунтов, если их нет.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
