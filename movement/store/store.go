// Package store persists movement events to SQLite so landings can be reviewed after a run.
package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
	// registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/avioncargo/precisionland/logging"
	"github.com/avioncargo/precisionland/movement"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Record is a persisted movement event.
type Record struct {
	RunID string `json:"run_id"`
	movement.Event
}

// Summary describes everything recorded so far.
type Summary struct {
	Total        int            `json:"total"`
	Runs         int            `json:"runs"`
	ByType       map[string]int `json:"by_type"`
	First        time.Time      `json:"first"`
	Last         time.Time      `json:"last"`
	MeanDistance float64        `json:"mean_distance"`
}

// Store is a movement database.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens or creates the database at path and migrates it to the latest schema.
func Open(ctx context.Context, path string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open movement database %q", path)
	}
	// one writer; sqlite serializes writes anyway
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		return nil, errors.Wrap(multiClose(db, err), "cannot configure movement database")
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrateUp(); err != nil {
		return nil, multiClose(db, err)
	}
	return s, nil
}

func multiClose(db *sql.DB, err error) error {
	if cerr := db.Close(); cerr != nil {
		return errors.Wrapf(err, "also failed to close database: %v", cerr)
	}
	return err
}

// migrateUp runs all pending migrations. The migrate instance is not closed since that would
// close the shared connection.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "migration up failed")
	}
	return nil
}

// Version returns the current schema version and dirty state.
func (s *Store) Version() (version uint, dirty bool, err error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to load migrations")
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create sqlite driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = &migrateLogger{logger: s.logger}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct {
	logger logging.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Insert records one event for a run. The run is registered on its first event.
func (s *Store) Insert(ctx context.Context, runID string, e movement.Event) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				s.logger.Debugw("rollback failed", "error", rerr)
			}
		}
	}()

	ts := e.Timestamp.UnixNano()
	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (run_id, started_at) VALUES (?, ?)`, runID, ts); err != nil {
		return errors.Wrap(err, "cannot record run")
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO movements (run_id, type, marker_id, distance, angle_x, angle_y, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Type, e.MarkerID, e.Distance, e.AngleX, e.AngleY, ts); err != nil {
		return errors.Wrap(err, "cannot record movement")
	}
	return tx.Commit()
}

// Recent returns up to n of the newest records, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, type, marker_id, distance, angle_x, angle_y, recorded_at
		FROM (SELECT * FROM movements ORDER BY movement_id DESC LIMIT ?)
		ORDER BY movement_id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Debugw("closing rows failed", "error", cerr)
		}
	}()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			ts int64
		)
		if err := rows.Scan(&r.RunID, &r.Type, &r.MarkerID, &r.Distance, &r.AngleX, &r.AngleY, &ts); err != nil {
			return nil, err
		}
		r.Timestamp = time.Unix(0, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Summary counts the recorded events.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	out := Summary{ByType: map[string]int{}}
	var first, last sql.NullInt64
	var mean sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(recorded_at), MAX(recorded_at), AVG(distance) FROM movements`,
	).Scan(&out.Total, &first, &last, &mean); err != nil {
		return out, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&out.Runs); err != nil {
		return out, err
	}
	if first.Valid {
		out.First = time.Unix(0, first.Int64)
		out.Last = time.Unix(0, last.Int64)
	}
	out.MeanDistance = mean.Float64

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM movements GROUP BY type`)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Debugw("closing rows failed", "error", cerr)
		}
	}()
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return out, err
		}
		out.ByType[kind] = count
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
