package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // database/sql driver "sqlite"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
	"github.com/okian/strata/pkg/metrics"
)

const defaultBusyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS sections (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	samples_json  TEXT NOT NULL,
	model_version INTEGER NOT NULL DEFAULT 0,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tie_points (
	id         TEXT PRIMARY KEY,
	section_id TEXT NOT NULL,
	depth      REAL NOT NULL,
	age        REAL NOT NULL,
	FOREIGN KEY (section_id) REFERENCES sections(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tie_points_section ON tie_points(section_id);
`

// sampleRecord is the stored form of one depth sample. Missing proxies
// are simply absent from Values.
type sampleRecord struct {
	Position float64            `json:"p"`
	Values   map[string]float64 `json:"v,omitempty"`
}

// SQLiteStore is a Store backed by a SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	busyTimeout time.Duration
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	s := &SQLiteStore{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers, which the version check relies on.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", s.busyTimeout.Milliseconds()),
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.db = db
	metrics.UpdateSectionCount(s.Count(context.Background()))
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSection implements Store.
func (s *SQLiteStore) CreateSection(ctx context.Context, sec model.Section) error {
	payload, err := encodeSamples(sec.Series)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sections WHERE id = ?`, sec.ID).Scan(&exists)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, sec.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup section: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sections (id, name, samples_json, model_version, created_at) VALUES (?, ?, ?, ?, ?)`,
		sec.ID, sec.Name, payload, int64(sec.AgeModel.Version()), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	if err := writeTiePoints(ctx, tx, sec.ID, sec.AgeModel.TiePoints()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	metrics.UpdateSectionCount(s.Count(ctx))
	return nil
}

// Section implements Store.
func (s *SQLiteStore) Section(ctx context.Context, id string) (model.Section, error) {
	var (
		name, payload string
		version       int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, samples_json, model_version FROM sections WHERE id = ?`, id,
	).Scan(&name, &payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Section{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Section{}, fmt.Errorf("query section: %w", err)
	}
	m, err := loadModel(ctx, s.db, id, uint64(version))
	if err != nil {
		return model.Section{}, err
	}
	return buildSection(id, name, payload, m)
}

// Sections implements Store.
func (s *SQLiteStore) Sections(ctx context.Context) ([]model.Section, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan section: %w", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}

	out := make([]model.Section, 0, len(ids))
	for _, id := range ids {
		sec, err := s.Section(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, nil
}

// DeleteSection implements Store.
func (s *SQLiteStore) DeleteSection(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	metrics.UpdateSectionCount(s.Count(ctx))
	return nil
}

// AddTiePoint implements Store.
func (s *SQLiteStore) AddTiePoint(ctx context.Context, tp agemodel.TiePoint, expected *uint64) (agemodel.Model, error) {
	return s.update(ctx, tp.SectionID, expected, addFn(tp))
}

// RemoveTiePoint implements Store.
func (s *SQLiteStore) RemoveTiePoint(ctx context.Context, sectionID, tiePointID string, expected *uint64) (agemodel.Model, error) {
	return s.update(ctx, sectionID, expected, removeFn(tiePointID))
}

func (s *SQLiteStore) update(ctx context.Context, sectionID string, expected *uint64, fn func(agemodel.Model) (agemodel.Model, error)) (agemodel.Model, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agemodel.Model{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT model_version FROM sections WHERE id = ?`, sectionID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return agemodel.Model{}, fmt.Errorf("%w: %s", ErrNotFound, sectionID)
	}
	if err != nil {
		return agemodel.Model{}, fmt.Errorf("query version: %w", err)
	}
	current, err := loadModel(ctx, tx, sectionID, uint64(version))
	if err != nil {
		return agemodel.Model{}, err
	}
	next, err := edit(current, expected, fn)
	if err != nil {
		return agemodel.Model{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tie_points WHERE section_id = ?`, sectionID); err != nil {
		return agemodel.Model{}, fmt.Errorf("clear tie points: %w", err)
	}
	if err := writeTiePoints(ctx, tx, sectionID, next.TiePoints()); err != nil {
		return agemodel.Model{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sections SET model_version = ? WHERE id = ?`, int64(next.Version()), sectionID,
	); err != nil {
		return agemodel.Model{}, fmt.Errorf("bump version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return agemodel.Model{}, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections`).Scan(&n); err != nil {
		return 0
	}
	return n
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadModel(ctx context.Context, q queryer, sectionID string, version uint64) (agemodel.Model, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, depth, age FROM tie_points WHERE section_id = ? ORDER BY depth, id`, sectionID)
	if err != nil {
		return agemodel.Model{}, fmt.Errorf("query tie points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []agemodel.TiePoint
	for rows.Next() {
		tp := agemodel.TiePoint{SectionID: sectionID}
		if err := rows.Scan(&tp.ID, &tp.Depth, &tp.Age); err != nil {
			return agemodel.Model{}, fmt.Errorf("scan tie point: %w", err)
		}
		points = append(points, tp)
	}
	if err := rows.Err(); err != nil {
		return agemodel.Model{}, fmt.Errorf("iterate tie points: %w", err)
	}
	return agemodel.Restore(sectionID, version, points)
}

func writeTiePoints(ctx context.Context, tx *sql.Tx, sectionID string, points []agemodel.TiePoint) error {
	for _, tp := range points {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tie_points (id, section_id, depth, age) VALUES (?, ?, ?, ?)`,
			tp.ID, sectionID, tp.Depth, tp.Age,
		); err != nil {
			return fmt.Errorf("insert tie point %s: %w", tp.ID, err)
		}
	}
	return nil
}

func encodeSamples(series proxy.Series) (string, error) {
	recs := make([]sampleRecord, series.Len())
	for i, smp := range series.Samples() {
		rec := sampleRecord{Position: smp.Position}
		for k, v := range smp.Values {
			if math.IsNaN(v) {
				continue
			}
			if rec.Values == nil {
				rec.Values = make(map[string]float64, len(smp.Values))
			}
			rec.Values[k] = v
		}
		recs[i] = rec
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("marshal samples: %w", err)
	}
	return string(b), nil
}

func buildSection(id, name, payload string, m agemodel.Model) (model.Section, error) {
	var recs []sampleRecord
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		return model.Section{}, fmt.Errorf("unmarshal samples of %s: %w", id, err)
	}
	samples := make([]proxy.Sample, len(recs))
	for i, rec := range recs {
		samples[i] = proxy.Sample{Position: rec.Position, Values: rec.Values}
	}
	series, err := proxy.New(proxy.AxisDepth, samples)
	if err != nil {
		return model.Section{}, fmt.Errorf("restore series of %s: %w", id, err)
	}
	sec, err := model.NewSection(id, name, series)
	if err != nil {
		return model.Section{}, err
	}
	return sec.WithAgeModel(m), nil
}
