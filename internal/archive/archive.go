// Package archive persists completed run summaries to a SQLite database,
// giving operators historical comparison across runs instead of only the
// stdout report of a single invocation.
package archive

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite connection holding the run-history table.
type Store struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Run is one completed invocation's aggregate summary (spec.md §4.8).
type Run struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Server         string
	Mode           string
	Threads        int
	NumSent        uint64
	NumCompleted   uint64
	NumTimedOut    uint64
	NumInterrupted uint64
	LatencyMinUS   uint64
	LatencyAvgUS   float64
	LatencyMaxUS   uint64
	LatencyStdDev  float64
	RCodeCounts    map[int]uint64
}

// Open opens or creates a SQLite database at path and applies migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: opening database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("archive: creating migration source: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("archive: creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("archive: creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("archive: running migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Insert records a completed run, assigning it a fresh UUID if run.ID is
// empty, and returns the stored row's ID.
func (s *Store) Insert(run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	rcodeJSON, err := json.Marshal(run.RCodeCounts)
	if err != nil {
		return "", fmt.Errorf("archive: marshaling rcode counts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.Exec(`
		INSERT INTO runs (
			id, started_at, finished_at, server, mode, threads,
			num_sent, num_completed, num_timed_out, num_interrupted,
			latency_min_us, latency_avg_us, latency_max_us, latency_stddev_us,
			rcode_counts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Server, run.Mode, run.Threads,
		run.NumSent, run.NumCompleted, run.NumTimedOut, run.NumInterrupted,
		run.LatencyMinUS, run.LatencyAvgUS, run.LatencyMaxUS, run.LatencyStdDev,
		string(rcodeJSON),
	)
	if err != nil {
		return "", fmt.Errorf("archive: inserting run: %w", err)
	}
	return run.ID, nil
}

// List returns the most recent n runs, newest first. n <= 0 returns all.
func (s *Store) List(n int) ([]Run, error) {
	query := `SELECT id, started_at, finished_at, server, mode, threads,
		num_sent, num_completed, num_timed_out, num_interrupted,
		latency_min_us, latency_avg_us, latency_max_us, latency_stddev_us,
		rcode_counts FROM runs ORDER BY started_at DESC`
	args := []any{}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: listing runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		var startedAt, finishedAt int64
		var rcodeJSON string
		if err := rows.Scan(
			&run.ID, &startedAt, &finishedAt, &run.Server, &run.Mode, &run.Threads,
			&run.NumSent, &run.NumCompleted, &run.NumTimedOut, &run.NumInterrupted,
			&run.LatencyMinUS, &run.LatencyAvgUS, &run.LatencyMaxUS, &run.LatencyStdDev,
			&rcodeJSON,
		); err != nil {
			return nil, fmt.Errorf("archive: scanning run row: %w", err)
		}
		run.StartedAt = time.Unix(startedAt, 0).UTC()
		run.FinishedAt = time.Unix(finishedAt, 0).UTC()
		if err := json.Unmarshal([]byte(rcodeJSON), &run.RCodeCounts); err != nil {
			return nil, fmt.Errorf("archive: unmarshaling rcode counts: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: iterating run rows: %w", err)
	}
	return out, nil
}
