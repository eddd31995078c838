// Package telemetry records controller runs in SQLite: one row per run, one
// per tick and one per mode transition.
package telemetry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scanroam/internal/behavior"
	"github.com/banshee-data/scanroam/internal/scan"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Tick statuses.
const (
	StatusOK            = "ok"
	StatusAcquireError  = "acquire_error"
	StatusDispatchError = "dispatch_error"
)

// Store is a telemetry database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it to the latest
// schema. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry db: %w", err)
	}
	// A single connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version)
	return version, err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RunMeta describes a controller run.
type RunMeta struct {
	Version      string
	SensorMode   string
	ActuatorMode string
	Seed         uint64
	ConfigJSON   string
}

// Run is a recorded run with its tick counts.
type Run struct {
	ID           string     `json:"run_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Version      string     `json:"version"`
	SensorMode   string     `json:"sensor_mode"`
	ActuatorMode string     `json:"actuator_mode"`
	Ticks        int        `json:"ticks"`
	Failures     int        `json:"failures"`
}

// StartRun inserts a run row and returns its id.
func (s *Store) StartRun(ctx context.Context, at time.Time, meta RunMeta) (string, error) {
	id := uuid.NewString()
	if meta.ConfigJSON == "" {
		meta.ConfigJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, version, sensor_mode, actuator_mode, seed, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, at.UTC(), meta.Version, meta.SensorMode, meta.ActuatorMode, int64(meta.Seed), meta.ConfigJSON)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// EndRun stamps the run's end time.
func (s *Store) EndRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE run_id = ?`, at.UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// Tick is one control cycle.
type Tick struct {
	Seq       uint64
	Time      time.Time
	Status    string
	Decision  behavior.Decision
	RawPoints int
	Sectors   scan.SectorSummary
	Stats     scan.FrameStats
	Err       string
}

// RecordTick inserts one tick row.
func (s *Store) RecordTick(ctx context.Context, runID string, t Tick) error {
	var front, left, right, minR, meanR, stdR sql.NullFloat64
	if t.Status != StatusAcquireError {
		front = nullRange(t.Sectors.Front)
		left = nullRange(t.Sectors.Left)
		right = nullRange(t.Sectors.Right)
		if t.Stats.Points > 0 {
			minR = sql.NullFloat64{Float64: t.Stats.MinRange, Valid: true}
			meanR = sql.NullFloat64{Float64: t.Stats.MeanRange, Valid: true}
			stdR = sql.NullFloat64{Float64: t.Stats.StdRange, Valid: true}
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticks (run_id, tick, ts, status, mode, linear, angular, raw_points, points,
			front, left_range, right_range, min_range, mean_range, std_range, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(t.Seq), t.Time.UTC(), t.Status, t.Decision.Mode.String(),
		t.Decision.Command.Linear, t.Decision.Command.Angular, t.RawPoints, t.Stats.Points,
		front, left, right, minR, meanR, stdR, t.Err)
	if err != nil {
		return fmt.Errorf("failed to insert tick %d: %w", t.Seq, err)
	}
	return nil
}

// nullRange stores NoReturn sectors as NULL.
func nullRange(v float64) sql.NullFloat64 {
	if v >= scan.NoReturn {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// RecordTransition inserts one mode change.
func (s *Store) RecordTransition(ctx context.Context, runID string, at time.Time, from, to behavior.Mode) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (run_id, ts, from_mode, to_mode) VALUES (?, ?, ?, ?)`,
		runID, at.UTC(), from.String(), to.String())
	if err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

// Runs lists runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.started_at, r.ended_at, r.version, r.sensor_mode, r.actuator_mode,
			COUNT(t.tick),
			COALESCE(SUM(CASE WHEN t.status != 'ok' THEN 1 ELSE 0 END), 0)
		FROM runs r LEFT JOIN ticks t ON t.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ended sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended, &r.Version, &r.SensorMode, &r.ActuatorMode, &r.Ticks, &r.Failures); err != nil {
			return nil, err
		}
		if ended.Valid {
			t := ended.Time
			r.EndedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ModeCounts returns how many ticks of a run ended in each mode.
func (s *Store) ModeCounts(ctx context.Context, runID string) (map[behavior.Mode]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode, COUNT(*) FROM ticks WHERE run_id = ? AND status = ? GROUP BY mode`, runID, StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to query mode counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[behavior.Mode]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		mode, err := behavior.ParseMode(name)
		if err != nil {
			return nil, err
		}
		counts[mode] = n
	}
	return counts, rows.Err()
}

// Transitions returns a run's mode changes in order.
func (s *Store) Transitions(ctx context.Context, runID string) ([][2]behavior.Mode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_mode, to_mode FROM transitions WHERE run_id = ? ORDER BY ts, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out [][2]behavior.Mode
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, err
		}
		f, err := behavior.ParseMode(from)
		if err != nil {
			return nil, err
		}
		t, err := behavior.ParseMode(to)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]behavior.Mode{f, t})
	}
	return out, rows.Err()
}
