package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const metricsKey = "learning_metrics"

// Store persists learning metrics in a local SQLite database so
// adaptive thresholds and pattern history survive restarts.
type Store struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewStore opens (creating if needed) the learning database at path
func NewStore(logger *zap.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open learning database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS learning_state (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create learning schema: %w", err)
	}

	return &Store{logger: logger, db: db}, nil
}

// SaveMetrics writes the current learning state
func (s *Store) SaveMetrics(ctx context.Context, m Metrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode learning metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO learning_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		metricsKey, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("persist learning metrics: %w", err)
	}

	s.logger.Debug("Learning metrics persisted",
		zap.Int("total_fixes", m.TotalFixes),
		zap.Float64("success_rate", m.SuccessRate),
	)
	return nil
}

// LoadMetrics reads the persisted learning state. The second return is
// false when no state has been saved yet.
func (s *Store) LoadMetrics(ctx context.Context) (Metrics, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM learning_state WHERE key = ?`, metricsKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Metrics{}, false, nil
	}
	if err != nil {
		return Metrics{}, false, fmt.Errorf("load learning metrics: %w", err)
	}

	var m Metrics
	if err := json.Unmarshal(payload, &m); err != nil {
		return Metrics{}, false, fmt.Errorf("decode learning metrics: %w", err)
	}
	return m, true, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}
