package runs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
)

// Journal is the part of Repo a Recorder writes to.
type Journal interface {
	RecordTransition(ctx context.Context, id uuid.UUID, from, to booking.State) error
	RecordBay(ctx context.Context, id uuid.UUID, obs booking.BayObservation) error
}

var _ Journal = (*Repo)(nil)

const recordTimeout = 2 * time.Second

// Recorder is a booking.Observer that journals one run. Write failures are
// logged and never interrupt the run.
type Recorder struct {
	ID      uuid.UUID
	journal Journal
	log     *zap.Logger
}

func NewRecorder(j Journal, id uuid.UUID, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{ID: id, journal: j, log: log.Named("runs").With(zap.String("run_id", id.String()))}
}

// detach keeps writes alive after the run's context is cancelled, so the
// final failed transition is still recorded.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

func (r *Recorder) Transition(ctx context.Context, from, to booking.State) {
	ctx, cancel := detach(ctx)
	defer cancel()
	if err := r.journal.RecordTransition(ctx, r.ID, from, to); err != nil {
		r.log.Warn("record transition", zap.String("from", string(from)), zap.String("to", string(to)), zap.Error(err))
	}
}

func (r *Recorder) Bay(ctx context.Context, obs booking.BayObservation) {
	ctx, cancel := detach(ctx)
	defer cancel()
	if err := r.journal.RecordBay(ctx, r.ID, obs); err != nil {
		r.log.Warn("record bay", zap.Int("iteration", obs.Iteration), zap.Error(err))
	}
}
