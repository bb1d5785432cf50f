package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store persists per frame association records in SQLite
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the audit database at path. Use ":memory:" for a
// private in memory database.
func Open(ctx context.Context, path string) (*Store, error) {

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// writes are serialised by the Writer and an in memory database exists
	// per connection
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun registers a new tracking run and returns its id. The config text
// is stored alongside for reproduction.
func (s *Store) BeginRun(ctx context.Context, config string) (string, error) {

	id := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, config) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), config,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	return id, nil
}

// LatestRun returns the id of the most recently started run, sql.ErrNoRows
// when the database holds none
func (s *Store) LatestRun(ctx context.Context) (string, error) {

	var id string

	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}

	return id, nil
}

// WriteFrame stores one frame record in a single transaction
func (s *Store) WriteFrame(ctx context.Context, runID string, rec *FrameRecord) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin frame tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO frames (
            run_id, sequence, frame, detections, num_active, num_inactive,
            act_thresh, inact_thresh
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Sequence, rec.Frame, rec.Detections, rec.NumActive,
		rec.NumInactive, rec.ActiveThreshold, rec.InactiveThreshold,
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", rec.Frame, err)
	}

	if len(rec.Distances) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO distances (run_id, sequence, frame, det, track_id, inactive, distance)
             VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare distances: %w", err)
		}
		defer stmt.Close()

		for _, d := range rec.Distances {
			if _, err := stmt.ExecContext(ctx, runID, rec.Sequence, rec.Frame,
				d.Det, d.TrackID, d.Inactive, nullableFloat(d.Value)); err != nil {
				return fmt.Errorf("insert distance: %w", err)
			}
		}
	}

	for _, ev := range rec.Events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, sequence, frame, track_id, event) VALUES (?, ?, ?, ?, ?)`,
			runID, rec.Sequence, rec.Frame, ev.TrackID, ev.Kind); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	for _, emb := range rec.Embeddings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (run_id, sequence, frame, det, track_id, gt_id, feature)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Sequence, rec.Frame, emb.Det, emb.TrackID, emb.GTID,
			encodeEmbedding(emb.Feature)); err != nil {
			return fmt.Errorf("insert embedding: %w", err)
		}
	}

	for _, d := range rec.Diagnostics {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO diagnostics (
                run_id, sequence, frame, det, track_id, kind, inactive, distance,
                track_gt_id, det_gt_id, ioa, visibility
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Sequence, rec.Frame, d.Det, d.TrackID, d.Kind, d.Inactive,
			nullableFloat(d.Distance), d.TrackGTID, d.DetGTID, d.IoA, d.Visibility); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit frame %d: %w", rec.Frame, err)
	}

	return nil
}

// FrameCount returns the number of frames stored for a sequence of a run
func (s *Store) FrameCount(ctx context.Context, runID, sequence string) (int, error) {

	var n int

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM frames WHERE run_id = ? AND sequence = ?`,
		runID, sequence,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count frames: %w", err)
	}

	return n, nil
}

// TrackEvents returns the lifecycle events of one track in frame order
func (s *Store) TrackEvents(ctx context.Context, runID, sequence string, trackID int) ([]Event, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, track_id, event FROM events
         WHERE run_id = ? AND sequence = ? AND track_id = ?
         ORDER BY frame, rowid`,
		runID, sequence, trackID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Frame, &ev.TrackID, &ev.Kind); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// FrameDistances returns the distance entries of one frame, forbidden pairs
// are reported as NaN
func (s *Store) FrameDistances(ctx context.Context, runID, sequence string, frame int) ([]Distance, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT det, track_id, inactive, distance FROM distances
         WHERE run_id = ? AND sequence = ? AND frame = ?
         ORDER BY det, rowid`,
		runID, sequence, frame,
	)
	if err != nil {
		return nil, fmt.Errorf("query distances: %w", err)
	}
	defer rows.Close()

	var out []Distance

	for rows.Next() {
		var (
			d     Distance
			value sql.NullFloat64
		)
		if err := rows.Scan(&d.Det, &d.TrackID, &d.Inactive, &value); err != nil {
			return nil, fmt.Errorf("scan distance: %w", err)
		}

		d.Value = math.NaN()
		if value.Valid {
			d.Value = value.Float64
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// Embeddings returns the stored features of a ground truth identity in
// frame order
func (s *Store) Embeddings(ctx context.Context, runID, sequence string, gtID int) ([]Embedding, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, det, track_id, gt_id, feature FROM embeddings
         WHERE run_id = ? AND sequence = ? AND gt_id = ?
         ORDER BY frame, det`,
		runID, sequence, gtID,
	)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding

	for rows.Next() {
		var (
			emb  Embedding
			blob []byte
		)
		if err := rows.Scan(&emb.Frame, &emb.Det, &emb.TrackID, &emb.GTID, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}

		if emb.Feature, err = decodeEmbedding(blob); err != nil {
			return nil, err
		}

		out = append(out, emb)
	}

	return out, rows.Err()
}

// Diagnostics returns the association errors of a sequence in frame order
func (s *Store) Diagnostics(ctx context.Context, runID, sequence string) ([]Diagnostic, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT frame, det, track_id, kind, inactive, distance,
                track_gt_id, det_gt_id, ioa, visibility
         FROM diagnostics
         WHERE run_id = ? AND sequence = ?
         ORDER BY frame, det`,
		runID, sequence,
	)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	var out []Diagnostic

	for rows.Next() {
		var (
			d    Diagnostic
			dist sql.NullFloat64
		)
		if err := rows.Scan(&d.Frame, &d.Det, &d.TrackID, &d.Kind, &d.Inactive, &dist,
			&d.TrackGTID, &d.DetGTID, &d.IoA, &d.Visibility); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}

		d.Distance = math.NaN()
		if dist.Valid {
			d.Distance = dist.Float64
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

// DiagnosticCounts counts the association errors of a run per kind, per
// candidate set and per visibility decile, keyed as
// "<kind>_<act|inact>_vis_<decile>"
func (s *Store) DiagnosticCounts(ctx context.Context, runID string) (map[string]int, error) {

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, inactive, MIN(CAST(visibility * 10 AS INTEGER), 9) AS bin, COUNT(1)
         FROM diagnostics
         WHERE run_id = ?
         GROUP BY kind, inactive, bin`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("count diagnostics: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			kind     string
			inactive bool
			bin, n   int
		)
		if err := rows.Scan(&kind, &inactive, &bin, &n); err != nil {
			return nil, fmt.Errorf("scan diagnostic count: %w", err)
		}

		set := "act"
		if inactive {
			set = "inact"
		}

		counts[fmt.Sprintf("%s_%s_vis_%d", kind, set, bin)] = n
	}

	return counts, rows.Err()
}

func nullableFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
