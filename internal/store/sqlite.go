package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		category TEXT NOT NULL,
		symptoms_json TEXT NOT NULL,
		duration TEXT,
		age INTEGER,
		risk_level TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_interactions_risk ON interactions(risk_level);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return s.addColumnIfMissing("interactions", "age", "INTEGER")
}

// addColumnIfMissing upgrades databases created before column existed.
func (s *SQLiteStore) addColumnIfMissing(table, column, typ string) error {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ)); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveInteraction inserts one assessment record, retrying on SQLITE_BUSY.
func (s *SQLiteStore) SaveInteraction(ctx context.Context, in *domain.Interaction) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	symptoms := in.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	symptomsJSON, err := json.Marshal(symptoms)
	if err != nil {
		return fmt.Errorf("marshal symptoms: %w", err)
	}

	var duration, age interface{}
	if in.Duration != "" {
		duration = in.Duration
	}
	if in.Age > 0 {
		age = in.Age
	}

	query := `
	INSERT INTO interactions (id, session_id, category, symptoms_json, duration, age, risk_level, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return withBusyRetry(ctx, "save interaction", func() error {
		_, err := s.db.ExecContext(ctx, query,
			in.ID, in.SessionID, string(in.Category), string(symptomsJSON),
			duration, age, string(in.RiskTier), string(in.Source), in.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert interaction: %w", err)
		}
		return nil
	})
}

// CountByRisk returns the number of records per risk tier.
func (s *SQLiteStore) CountByRisk(ctx context.Context) (map[domain.RiskTier]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT risk_level, COUNT(*) FROM interactions GROUP BY risk_level`)
	if err != nil {
		return nil, fmt.Errorf("query risk counts: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close risk count rows", "error", closeErr)
		}
	}()

	counts := make(map[domain.RiskTier]int64)
	for rows.Next() {
		var level string
		var n int64
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scan risk count row: %w", err)
		}
		counts[domain.RiskTier(level)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risk counts: %w", err)
	}
	return counts, nil
}

// CleanupOlderThan removes records created before now minus retention.
func (s *SQLiteStore) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).Unix()
	var deleted int64
	err := withBusyRetry(ctx, "cleanup interactions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE created_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("cleanup interactions: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withBusyRetry runs fn with exponential backoff while it fails with a
// SQLite lock conflict.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !shared.IsSQLiteConflictError(err) {
			return err
		}
		if i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", op, maxRetries, err)
}
