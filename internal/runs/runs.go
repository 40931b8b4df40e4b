// Package runs stores the history of booking runs in PostgreSQL.
package runs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/db"
)

// Triggers.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"
	TriggerDashboard = "dashboard"
)

type Run struct {
	ID            uuid.UUID
	Trigger       string
	Carpark       string
	VehiclePlate  string
	TargetDate    time.Time
	State         booking.State
	Outcome       booking.Outcome
	BayLabel      string
	BayReason     booking.BayReason
	BayIterations int
	Report        string
	Reason        string
	Heuristic     bool
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// Booked reports whether the run ended with a confirmed booking.
func (r Run) Booked() bool { return r.State == booking.StateDone }

func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type Transition struct {
	From booking.State
	To   booking.State
	At   time.Time
}

type BayAttempt struct {
	Iteration int
	Label     string
	Banner    string
	Class     string
	At        time.Time
}

type Repo struct{ db db.Querier }

func NewRepo(d db.Querier) *Repo { return &Repo{db: d} }

// Start records a new run in state init and returns its ID.
func (r *Repo) Start(ctx context.Context, trigger string, req booking.Request) (uuid.UUID, error) {
	id := uuid.New()
	err := r.db.Exec(ctx, `
INSERT INTO runs(id,trigger,carpark,vehicle_plate,target_date,state,started_at)
VALUES ($1,$2,$3,$4,$5,$6,now())`,
		id, trigger, req.Carpark, req.VehiclePlate, req.TargetDate, string(booking.StateInit))
	if err != nil {
		return uuid.Nil, fmt.Errorf("runs: start: %w", err)
	}
	return id, nil
}

func (r *Repo) RecordTransition(ctx context.Context, id uuid.UUID, from, to booking.State) error {
	if err := r.db.Exec(ctx, `INSERT INTO run_transitions(run_id,from_state,to_state) VALUES ($1,$2,$3)`,
		id, string(from), string(to)); err != nil {
		return fmt.Errorf("runs: transition: %w", err)
	}
	return r.db.Exec(ctx, `UPDATE runs SET state=$2 WHERE id=$1`, id, string(to))
}

func (r *Repo) RecordBay(ctx context.Context, id uuid.UUID, obs booking.BayObservation) error {
	if err := r.db.Exec(ctx, `INSERT INTO bay_attempts(run_id,iteration,label,banner,class) VALUES ($1,$2,$3,$4,$5)`,
		id, obs.Iteration, obs.Label, obs.Banner, obs.Class.String()); err != nil {
		return fmt.Errorf("runs: bay attempt: %w", err)
	}
	return nil
}

// Finish stores the final result. runErr may be nil.
func (r *Repo) Finish(ctx context.Context, id uuid.UUID, res booking.Result, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}
	err := r.db.Exec(ctx, `
UPDATE runs SET
  state=$2, outcome=$3, bay_label=$4, bay_reason=$5, bay_iterations=$6,
  report=$7, reason=$8, heuristic=$9, error=$10, target_date=$11, finished_at=now()
WHERE id=$1`,
		id, string(res.State), nullable(string(res.Outcome)), nullable(res.Bay.Bay.Label), nullable(string(res.Bay.Reason)),
		res.Bay.Iterations, nullable(res.Report), nullable(res.Reason), res.Heuristic, errText, res.Request.TargetDate)
	if err != nil {
		return fmt.Errorf("runs: finish: %w", err)
	}
	return nil
}

const runColumns = `id,trigger,carpark,vehicle_plate,target_date,state,outcome,bay_label,bay_reason,bay_iterations,report,reason,heuristic,error,started_at,finished_at`

func scanRun(row db.Row) (Run, error) {
	var (
		run                                          Run
		state                                        string
		outcome, bayLabel, bayReason, report, reason *string
		errText                                      *string
	)
	if err := row.Scan(
		&run.ID, &run.Trigger, &run.Carpark, &run.VehiclePlate, &run.TargetDate, &state, &outcome, &bayLabel, &bayReason,
		&run.BayIterations, &report, &reason, &run.Heuristic, &errText, &run.StartedAt, &run.FinishedAt,
	); err != nil {
		return Run{}, err
	}
	run.State = booking.State(state)
	run.Outcome = booking.Outcome(deref(outcome))
	run.BayLabel = deref(bayLabel)
	run.BayReason = booking.BayReason(deref(bayReason))
	run.Report = deref(report)
	run.Reason = deref(reason)
	run.Error = deref(errText)
	return run, nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	run, err := scanRun(r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id=$1`, id))
	if err != nil {
		return Run{}, db.WrapNotFound(err)
	}
	return run, nil
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *Repo) Transitions(ctx context.Context, id uuid.UUID) ([]Transition, error) {
	rows, err := r.db.Query(ctx, `SELECT from_state,to_state,at FROM run_transitions WHERE run_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to string
		if err := rows.Scan(&from, &to, &t.At); err != nil {
			return nil, err
		}
		t.From, t.To = booking.State(from), booking.State(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) BayAttempts(ctx context.Context, id uuid.UUID) ([]BayAttempt, error) {
	rows, err := r.db.Query(ctx, `SELECT iteration,label,banner,class,at FROM bay_attempts WHERE run_id=$1 ORDER BY iteration`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BayAttempt
	for rows.Next() {
		var a BayAttempt
		if err := rows.Scan(&a.Iteration, &a.Label, &a.Banner, &a.Class, &a.At); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// BookedFor reports whether some run already confirmed a booking for the date.
func (r *Repo) BookedFor(ctx context.Context, date time.Time) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM runs WHERE target_date=$1 AND state=$2)`,
		date.Format("2006-01-02"), string(booking.StateDone)).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("runs: booked for: %w", err)
	}
	return ok, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
