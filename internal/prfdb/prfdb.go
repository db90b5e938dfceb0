// Package prfdb records exploration runs in a SQLite database: one row per
// run, one per region and the extracted samples of each region.
package prfdb

import (
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

	"github.com/banshee-data/prf-explorer/internal/explorer"
	"github.com/banshee-data/prf-explorer/internal/prf"
	"github.com/banshee-data/prf-explorer/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Region status values.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// DB is a run store.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations.
func Open(path string) (*DB, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock is Open with an explicit clock for run timestamps.
func OpenWithClock(path string, clock timeutil.Clock) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}
	// A single connection keeps pragmas and :memory: databases consistent.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{DB: sqlDB, clock: clock}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// migrateLogger adapts the migrate logging interface to the log package.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// MigrateUp applies all pending migrations. The migrate instance is not
// closed since that would close the shared connection.
func (db *DB) MigrateUp() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	version, _, _ := m.Version()
	log.Printf("Run database schema at version %d", version)
	return nil
}

// MigrateDown rolls back every migration.
func (db *DB) MigrateDown() error {
	m, err := db.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version and whether the
// schema is dirty.
func (db *DB) SchemaVersion() (uint, bool, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, dirty, nil
}

// Run describes one exploration run.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Version     string
	Frame       string
	Catalogue   string
	ConfigJSON  string
	Width       int
	Height      int
	Sources     int
	ValidPixels int
	Duration    time.Duration
}

// RegionRecord is the stored summary of one region.
type RegionRecord struct {
	RunID   string
	Index   int
	Label   string
	Region  prf.Region
	Samples int
	Padded  int
	Domain  *prf.Domain // nil when padding failed before a domain existed
	Method  string
	Status  string
	Error   string
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Prepare(query string) (*sql.Stmt, error)
}

// InsertRun stores run, assigning an ID and creation time when unset.
func (db *DB) InsertRun(run *Run) error {
	return insertRun(db.DB, run, db.clock)
}

func insertRun(ex execer, run *Run, clock timeutil.Clock) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = clock.Now()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}
	_, err := ex.Exec(`
		INSERT INTO prf_runs (run_id, created_at_ns, version, frame, catalogue, config_json,
			width, height, sources, valid_pixels, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.Version, run.Frame, run.Catalogue, run.ConfigJSON,
		run.Width, run.Height, run.Sources, run.ValidPixels, run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// InsertRegion stores one region summary.
func (db *DB) InsertRegion(rec RegionRecord) error {
	return insertRegion(db.DB, rec)
}

func insertRegion(ex execer, rec RegionRecord) error {
	var dxMin, dxMax, dyMin, dyMax sql.NullFloat64
	if d := rec.Domain; d != nil {
		dxMin = sql.NullFloat64{Float64: d.XMin, Valid: true}
		dxMax = sql.NullFloat64{Float64: d.XMax, Valid: true}
		dyMin = sql.NullFloat64{Float64: d.YMin, Valid: true}
		dyMax = sql.NullFloat64{Float64: d.YMax, Valid: true}
	}
	_, err := ex.Exec(`
		INSERT INTO prf_regions (run_id, region_index, label, x_min, x_max, y_min, y_max,
			samples, padded, domain_x_min, domain_x_max, domain_y_min, domain_y_max,
			method, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Index, rec.Label,
		rec.Region.XMin, rec.Region.XMax, rec.Region.YMin, rec.Region.YMax,
		rec.Samples, rec.Padded, dxMin, dxMax, dyMin, dyMax,
		rec.Method, rec.Status, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert region %d: %w", rec.Index, err)
	}
	return nil
}

// InsertSamples stores the samples of one region in a single transaction.
func (db *DB) InsertSamples(runID string, regionIndex int, samples []prf.Sample) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertSamples(tx, runID, regionIndex, samples); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit samples: %w", err)
	}
	return nil
}

func insertSamples(ex execer, runID string, regionIndex int, samples []prf.Sample) error {
	stmt, err := ex.Prepare(`
		INSERT INTO prf_samples (run_id, region_index, x_off, y_off, value, err)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(runID, regionIndex, s.XOff, s.YOff, s.Value, s.Err); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return nil
}

// RegionStatus classifies a region outcome.
func RegionStatus(r *explorer.RegionResult) string {
	switch {
	case r.OK():
		return StatusOK
	case errors.Is(r.Err, prf.ErrEmptyInput):
		return StatusEmpty
	default:
		return StatusFailed
	}
}

// NewRegionRecord summarises a region result for storage.
func NewRegionRecord(runID string, index int, r *explorer.RegionResult, method string) RegionRecord {
	rec := RegionRecord{
		RunID:   runID,
		Index:   index,
		Label:   r.Label,
		Region:  r.Region,
		Samples: len(r.Samples),
		Method:  method,
		Status:  RegionStatus(r),
	}
	if r.Padded != nil {
		rec.Padded = r.Padded.Len()
		d := r.Domain
		rec.Domain = &d
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// RecordResult stores run together with every region of res in one
// transaction. Samples are stored when withSamples is set.
func (db *DB) RecordResult(run *Run, res *explorer.Result, method string, withSamples bool) error {
	if res.Grid != nil && run.ValidPixels == 0 {
		run.ValidPixels = res.Grid.ValidCount()
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRun(tx, run, db.clock); err != nil {
		return err
	}
	samples := 0
	for i := range res.Regions {
		r := &res.Regions[i]
		if err := insertRegion(tx, NewRegionRecord(run.ID, i, r, method)); err != nil {
			return err
		}
		if withSamples && len(r.Samples) > 0 {
			if err := insertSamples(tx, run.ID, i, r.Samples); err != nil {
				return err
			}
			samples += len(r.Samples)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	log.Printf("Recorded run %s: %d regions, %d samples", run.ID, len(res.Regions), samples)
	return nil
}

const runColumns = `run_id, created_at_ns, version, frame, catalogue, config_json,
	width, height, sources, valid_pixels, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var createdNs, durationMs int64
	if err := s.Scan(&run.ID, &createdNs, &run.Version, &run.Frame, &run.Catalogue, &run.ConfigJSON,
		&run.Width, &run.Height, &run.Sources, &run.ValidPixels, &durationMs); err != nil {
		return nil, err
	}
	run.CreatedAt = time.Unix(0, createdNs).UTC()
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

// GetRun returns the run with the given id.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM prf_runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	rows, err := db.Query(`SELECT `+runColumns+` FROM prf_runs ORDER BY created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRegions returns the regions of a run in index order.
func (db *DB) ListRegions(runID string) ([]RegionRecord, error) {
	rows, err := db.Query(`
		SELECT region_index, label, x_min, x_max, y_min, y_max, samples, padded,
			domain_x_min, domain_x_max, domain_y_min, domain_y_max, method, status, error
		FROM prf_regions WHERE run_id = ? ORDER BY region_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	var out []RegionRecord
	for rows.Next() {
		rec := RegionRecord{RunID: runID}
		var dxMin, dxMax, dyMin, dyMax sql.NullFloat64
		if err := rows.Scan(&rec.Index, &rec.Label,
			&rec.Region.XMin, &rec.Region.XMax, &rec.Region.YMin, &rec.Region.YMax,
			&rec.Samples, &rec.Padded, &dxMin, &dxMax, &dyMin, &dyMax,
			&rec.Method, &rec.Status, &rec.Error); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		if dxMin.Valid {
			rec.Domain = &prf.Domain{XMin: dxMin.Float64, XMax: dxMax.Float64, YMin: dyMin.Float64, YMax: dyMax.Float64}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Samples returns the stored samples of one region in insertion order.
func (db *DB) Samples(runID string, regionIndex int) ([]prf.Sample, error) {
	rows, err := db.Query(`
		SELECT x_off, y_off, value, err FROM prf_samples
		WHERE run_id = ? AND region_index = ? ORDER BY rowid`, runID, regionIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []prf.Sample
	for rows.Next() {
		var s prf.Sample
		if err := rows.Scan(&s.XOff, &s.YOff, &s.Value, &s.Err); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and, by cascade, its regions and samples.
func (db *DB) DeleteRun(id string) error {
	res, err := db.Exec(`DELETE FROM prf_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found: %w", id, sql.ErrNoRows)
	}
	return nil
}
