// Package store persists per-log summaries in an embedded DuckDB database.
// The log_summaries table is append-only and keyed by identifier, which
// enforces the at-most-one-row-per-log invariant at the storage layer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/rotormetrics/prophet/internal/model"
	"github.com/rotormetrics/prophet/internal/store/migrate"
)

// ErrDuplicate reports an append for an identifier that already has a row.
var ErrDuplicate = errors.New("summary already recorded")

const defaultQueryTimeout = 30 * time.Second

// summaryColumns lists the log_summaries columns in insert/select order,
// matching the migration schema.
var summaryColumns = []string{
	"identifier",
	"vehicle_id",
	"duration_tracked_s",
	"accel_time_lt_30_s",
	"accel_time_30_50_s",
	"accel_time_50_70_s",
	"accel_time_gt_70_s",
	"motor0_time_above_0_8_s",
	"motor0_time_above_0_9_s",
	"motor0_time_above_1_0_s",
	"motor1_time_above_0_8_s",
	"motor1_time_above_0_9_s",
	"motor1_time_above_1_0_s",
	"motor2_time_above_0_8_s",
	"motor2_time_above_0_9_s",
	"motor2_time_above_1_0_s",
	"motor3_time_above_0_8_s",
	"motor3_time_above_0_9_s",
	"motor3_time_above_1_0_s",
	"peak_accel_count",
	"clip_count",
	"clip_duration_s",
	"processed_at",
}

// Store owns the DuckDB connection. Appends are serialized by the write
// mutex; reads share it.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	queryTimeout time.Duration
}

// Open opens or creates the summary database. An empty path opens an
// in-memory database, which tests use.
func Open(dbPath string, queryTimeout ...time.Duration) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	if err := migrate.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}

	qt := defaultQueryTimeout
	if len(queryTimeout) > 0 && queryTimeout[0] > 0 {
		qt = queryTimeout[0]
	}
	return &Store{db: db, dbPath: dbPath, queryTimeout: qt}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the database file path ("" for in-memory).
func (s *Store) DBPath() string {
	return s.dbPath
}

func (s *Store) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Append inserts one summary row. The identifier must not already exist.
func (s *Store) Append(ctx context.Context, sum *model.LogSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	// Appends are serialized by the write lock, so an existence check here
	// is race-free and does not depend on the driver's constraint-violation
	// error text.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM log_summaries WHERE identifier = ?)",
		sum.Identifier).Scan(&exists); err != nil {
		return fmt.Errorf("checking summary for %s: %w", sum.Identifier, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, sum.Identifier)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(summaryColumns)), ", ")
	query := fmt.Sprintf("INSERT INTO log_summaries (%s) VALUES (%s)",
		strings.Join(summaryColumns, ", "), placeholders)

	args := []any{
		sum.Identifier,
		sum.VehicleID,
		sum.DurationTrackedS,
		sum.VibrationBinS[0],
		sum.VibrationBinS[1],
		sum.VibrationBinS[2],
		sum.VibrationBinS[3],
	}
	for i := 0; i < model.NumMotors; i++ {
		args = append(args, sum.Motors[i].Above080S, sum.Motors[i].Above090S, sum.Motors[i].Above100S)
	}
	args = append(args, sum.PeakAccelCount, sum.ClipCount, sum.ClipDurationS, sum.ProcessedAt)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("appending summary for %s: %w", sum.Identifier, err)
	}
	return nil
}

// Identifiers returns every identifier with a summary row. Resume mode
// loads this into the dedup ledger before scheduling.
func (s *Store) Identifiers(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT identifier FROM log_summaries")
	if err != nil {
		return nil, fmt.Errorf("reading identifiers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summaries returns every summary row, ordered by identifier.
func (s *Store) Summaries(ctx context.Context) ([]model.LogSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("SELECT %s FROM log_summaries ORDER BY identifier",
		strings.Join(summaryColumns, ", "))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reading summaries: %w", err)
	}
	defer rows.Close()

	var out []model.LogSummary
	for rows.Next() {
		var sum model.LogSummary
		dest := []any{
			&sum.Identifier,
			&sum.VehicleID,
			&sum.DurationTrackedS,
			&sum.VibrationBinS[0],
			&sum.VibrationBinS[1],
			&sum.VibrationBinS[2],
			&sum.VibrationBinS[3],
		}
		for i := 0; i < model.NumMotors; i++ {
			dest = append(dest, &sum.Motors[i].Above080S, &sum.Motors[i].Above090S, &sum.Motors[i].Above100S)
		}
		dest = append(dest, &sum.PeakAccelCount, &sum.ClipCount, &sum.ClipDurationS, &sum.ProcessedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Truncate deletes every summary row. Non-resume runs call this before
// scheduling so the run starts from an empty store.
func (s *Store) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM log_summaries"); err != nil {
		return fmt.Errorf("truncating log_summaries: %w", err)
	}
	return nil
}

// Count returns the number of summary rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_summaries").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting summaries: %w", err)
	}
	return n, nil
}
