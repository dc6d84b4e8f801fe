package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"taskpilot/internal/adapters/config"
)

// Client wraps sqlx.DB for the embedded log store
type Client struct {
	db *sqlx.DB
}

// NewClient opens the sqlite database and applies the schema
func NewClient(cfg config.DatabaseConfig) (*Client, error) {
	db, err := sqlx.Connect("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// sqlite allows a single writer; keep the pool small
	db.SetMaxOpenConns(cfg.MaxConns)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Client{db: db}, nil
}

// DB returns the underlying sqlx.DB instance
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func migrate(db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id TEXT PRIMARY KEY,
			decision_id TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			intent_type TEXT NOT NULL,
			confidence REAL,
			decision_type TEXT NOT NULL,
			outcome_category TEXT NOT NULL,
			response_text TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_conversation_id ON decision_logs(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_user_id ON decision_logs(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_created_at ON decision_logs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_outcome_category ON decision_logs(outcome_category)`,

		`CREATE TABLE IF NOT EXISTS tool_invocation_logs (
			id TEXT PRIMARY KEY,
			decision_id TEXT NOT NULL REFERENCES decision_logs(decision_id),
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			result TEXT,
			success INTEGER NOT NULL,
			error_code TEXT,
			error_message TEXT,
			duration_ms INTEGER NOT NULL,
			invoked_at TIMESTAMP NOT NULL,
			sequence INTEGER NOT NULL,
			UNIQUE(decision_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocation_logs_decision_id ON tool_invocation_logs(decision_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocation_logs_tool_name ON tool_invocation_logs(tool_name)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_invocation_logs_invoked_at ON tool_invocation_logs(invoked_at)`,

		`CREATE TABLE IF NOT EXISTS baseline_snapshots (
			id TEXT PRIMARY KEY,
			snapshot_name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL,
			sample_start TIMESTAMP NOT NULL,
			sample_end TIMESTAMP NOT NULL,
			intent_distribution TEXT NOT NULL,
			tool_frequency TEXT NOT NULL,
			error_rate REAL NOT NULL,
			sample_size INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS validation_reports (
			id TEXT PRIMARY KEY,
			run_at TIMESTAMP NOT NULL,
			test_count INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			drift_detected INTEGER NOT NULL,
			details TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
