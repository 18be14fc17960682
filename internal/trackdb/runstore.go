package trackdb

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wicket-data/trajectory.report/internal/ball/b5verdict"
	"github.com/wicket-data/trajectory.report/internal/ball/pipeline"
)

// ErrRunNotFound is returned when a run id has no stored row.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one row of the runs listing, joined with its verdict.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Source       string    `json:"source"`
	FrameCount   int       `json:"frame_count"`
	LaunchSpeed  float64   `json:"launch_speed_mps"`
	BounceCount  int       `json:"bounce_count"`
	CreatedAt    time.Time `json:"created_at"`
	Verdict      string    `json:"verdict"`
	ImpactHeight float64   `json:"impact_height"`
	Margin       float64   `json:"margin"`
}

// StoredState is one persisted world-frame sample.
type StoredState struct {
	Seq int     `json:"seq"`
	T   float64 `json:"t"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	VX  float64 `json:"vx"`
	VY  float64 `json:"vy"`
	VZ  float64 `json:"vz"`
}

// SaveRun persists a completed pipeline result in one transaction.
func (db *DB) SaveRun(res *pipeline.Result, source string) error {
	launch := res.Segment.Arcs[0].V0
	speed := math.Sqrt(launch[0]*launch[0] + launch[1]*launch[1] + launch[2]*launch[2])

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, source, frame_count, launch_speed, bounce_count)
		 VALUES (?, ?, ?, ?, ?)`,
		res.RunID, source, len(res.WorldStates), speed, len(res.Segment.Bounces()),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", res.RunID, err)
	}

	for i, w := range res.WorldStates {
		_, err = tx.Exec(
			`INSERT INTO world_states (run_id, seq, t, x, y, z, vx, vy, vz)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, w.Timestamp,
			w.Pos[0], w.Pos[1], w.Pos[2],
			w.Vel[0], w.Vel[1], w.Vel[2],
		)
		if err != nil {
			return fmt.Errorf("insert world state %d: %w", i, err)
		}
	}

	for i, a := range res.Segment.Arcs {
		_, err = tx.Exec(
			`INSERT INTO arcs (run_id, seq, t0, duration, px, py, pz, vx, vy, vz, gravity, drag_k)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, i, a.T0, a.Duration,
			a.P0[0], a.P0[1], a.P0[2],
			a.V0[0], a.V0[1], a.V0[2],
			a.Gravity, a.DragK,
		)
		if err != nil {
			return fmt.Errorf("insert arc %d: %w", i, err)
		}
	}

	d := res.Decision
	_, err = tx.Exec(
		`INSERT INTO decisions (run_id, verdict, impact_time, impact_x, impact_y, impact_z, impact_height, margin)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, string(d.Verdict), d.ImpactTime,
		d.ImpactPoint[0], d.ImpactPoint[1], d.ImpactPoint[2],
		d.ImpactHeight, d.Margin,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	return nil
}

const runSummaryQuery = `
	SELECT r.run_id, r.source, r.frame_count, r.launch_speed, r.bounce_count, r.created_at,
	       d.verdict, d.impact_height, d.margin
	FROM runs r
	JOIN decisions d ON d.run_id = r.run_id`

func scanRunSummary(row interface{ Scan(...any) error }) (RunSummary, error) {
	var s RunSummary
	err := row.Scan(&s.RunID, &s.Source, &s.FrameCount, &s.LaunchSpeed, &s.BounceCount,
		&s.CreatedAt, &s.Verdict, &s.ImpactHeight, &s.Margin)
	return s, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(runSummaryQuery+` ORDER BY r.created_at DESC, r.run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		s, err := scanRunSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// GetRun returns one run summary, or ErrRunNotFound.
func (db *DB) GetRun(runID string) (*RunSummary, error) {
	row := db.QueryRow(runSummaryQuery+` WHERE r.run_id = ?`, runID)
	s, err := scanRunSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return &s, nil
}

// GetWorldStates returns the stored track of one run in sequence order.
func (db *DB) GetWorldStates(runID string) ([]StoredState, error) {
	rows, err := db.Query(
		`SELECT seq, t, x, y, z, vx, vy, vz FROM world_states WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get world states %s: %w", runID, err)
	}
	defer rows.Close()

	var states []StoredState
	for rows.Next() {
		var s StoredState
		if err := rows.Scan(&s.Seq, &s.T, &s.X, &s.Y, &s.Z, &s.VX, &s.VY, &s.VZ); err != nil {
			return nil, fmt.Errorf("scan world state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return states, nil
}

// GetDecision returns the stored decision of one run.
func (db *DB) GetDecision(runID string) (*b5verdict.Decision, error) {
	var d b5verdict.Decision
	var verdict string
	err := db.QueryRow(
		`SELECT verdict, impact_time, impact_x, impact_y, impact_z, impact_height, margin
		 FROM decisions WHERE run_id = ?`, runID,
	).Scan(&verdict, &d.ImpactTime, &d.ImpactPoint[0], &d.ImpactPoint[1], &d.ImpactPoint[2],
		&d.ImpactHeight, &d.Margin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get decision %s: %w", runID, err)
	}
	d.Verdict = b5verdict.Verdict(verdict)
	return &d, nil
}
