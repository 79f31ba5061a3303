// Package outcome persists one OutcomeRecord per request in SQLite. The
// record is the unit of truth for the adaptive loop: classification and
// routing are written once at decision time, responses and feedback are
// attached as they arrive, and learning cycles read bounded trailing
// windows.
package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seekerlabs/seekerd/internal/types"
)

// ErrNotFound reports a request ID with no stored record.
var ErrNotFound = errors.New("outcome record not found")

// Store is a SQLite-backed outcome log.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex
}

// New opens (or creates) the outcome database at dbPath.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("outcome: open db: %w", err)
	}

	// WAL mode so learning-cycle reads do not block decision-time writes.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("outcome: wal mode: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "outcome")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("outcome: migrate: %w", err)
	}
	return s, nil
}

// migrate creates tables on first run.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outcomes (
			request_id  TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL,
			confidence  REAL NOT NULL,
			escalated   INTEGER NOT NULL,
			logic       TEXT NOT NULL,
			has_feedback INTEGER NOT NULL DEFAULT 0,
			record      BLOB NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_created ON outcomes(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_category ON outcomes(category)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Append stores a new record. The request ID must be unique.
func (s *Store) Append(ctx context.Context, rec types.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes(request_id, user_id, category, confidence, escalated, logic, has_feedback, record, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.Classification.Primary, rec.Classification.Confidence,
		boolInt(rec.Routing.Escalated), rec.Routing.Logic, boolInt(rec.HasFeedback()),
		blob, rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Get retrieves one record by request ID.
func (s *Store) Get(ctx context.Context, requestID string) (types.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, requestID)
}

func (s *Store) get(ctx context.Context, requestID string) (types.OutcomeRecord, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM outcomes WHERE request_id = ?`, requestID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return types.OutcomeRecord{}, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	if err != nil {
		return types.OutcomeRecord{}, fmt.Errorf("query outcome: %w", err)
	}

	var rec types.OutcomeRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		return types.OutcomeRecord{}, fmt.Errorf("parse record %s: %w", requestID, err)
	}
	return rec, nil
}

// AttachResponses appends agent responses to an existing record.
func (s *Store) AttachResponses(ctx context.Context, requestID string, responses []types.AgentResponse) error {
	return s.update(ctx, requestID, func(rec *types.OutcomeRecord) {
		rec.Responses = append(rec.Responses, responses...)
	})
}

// AttachFeedback sets the feedback on an existing record. Later feedback
// replaces earlier feedback for the same request.
func (s *Store) AttachFeedback(ctx context.Context, requestID string, fb types.Feedback) error {
	if fb.ReceivedAt.IsZero() {
		fb.ReceivedAt = time.Now()
	}
	return s.update(ctx, requestID, func(rec *types.OutcomeRecord) {
		rec.Feedback = &fb
	})
}

func (s *Store) update(ctx context.Context, requestID string, mutate func(*types.OutcomeRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.get(ctx, requestID)
	if err != nil {
		return err
	}
	mutate(&rec)

	blob, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE outcomes SET record = ?, has_feedback = ? WHERE request_id = ?`,
		blob, boolInt(rec.HasFeedback()), requestID)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	return nil
}

// Window returns the trailing records bounded by both a lookback duration
// and a maximum count, oldest first. Bounding keeps learning-cycle cost
// independent of total history size.
func (s *Store) Window(ctx context.Context, lookback time.Duration, maxRecords int) ([]types.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if maxRecords <= 0 {
		maxRecords = 1000
	}
	cutoff := time.Now().Add(-lookback).UnixNano()

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM outcomes WHERE created_at >= ?
		 ORDER BY created_at DESC LIMIT ?`, cutoff, maxRecords)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var recs []types.OutcomeRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec types.OutcomeRecord
		if err := json.Unmarshal(blob, &rec); err != nil {
			s.logger.Error("skipping unparseable record", "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate window: %w", err)
	}

	// DESC + LIMIT selects the newest records; flip to chronological order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outcomes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outcomes: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
