package booking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRetryBudget    = 100
	DefaultSummaryTimeout = 5 * time.Second
)

// Config is everything one run needs to know about the portal and the user.
type Config struct {
	LoginURL     string
	BookURL      string
	Credentials  Credentials
	Carpark      string
	VehiclePlate string

	PreferGroundLevel bool
	RetryBudget       int
	SummaryTimeout    time.Duration

	Selectors Selectors
}

// Runner drives one booking run per call to Run. Zero-valued optional fields
// fall back to the defaults used against the live portal.
type Runner struct {
	Config   Config
	Launcher Launcher

	// Request, when set, is used as is. Otherwise it is built from Now at
	// the start of Run.
	Request Request

	Pacer      Pacer
	Classifier Classifier
	Observer   Observer
	Log        *zap.Logger
	Now        func() time.Time
}

func (r *Runner) withDefaults() (Config, Pacer, Classifier, Observer, *zap.Logger, func() time.Time) {
	cfg := r.Config
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = DefaultRetryBudget
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = DefaultSelectors()
	}
	pacer := r.Pacer
	if pacer == nil {
		pacer = NewJitter(DefaultJitterMin, DefaultJitterMax)
	}
	classifier := r.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	obs := r.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}
	return cfg, pacer, classifier, obs, log.Named("booking"), now
}

// Run performs login, booking, optional bay reselection and confirmation on a
// fresh driver session, which is closed before Run returns. A fully booked
// carpark is a normal result, not an error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Launcher == nil {
		return Result{}, fmt.Errorf("booking: launcher is nil")
	}
	cfg, pacer, classifier, obs, log, now := r.withDefaults()

	m := newMachine(obs)
	res := Result{
		State:     StateInit,
		StartedAt: now(),
		Request:   r.Request,
	}
	if res.Request.DateLabel == "" {
		res.Request = NewRequest(cfg.Carpark, cfg.VehiclePlate, res.StartedAt)
	}
	log = log.With(zap.String("carpark", cfg.Carpark), zap.String("target_date", res.Request.DateLabel))

	finish := func(err error) (Result, error) {
		if err != nil {
			if terr := m.to(ctx, StateFailed); terr != nil {
				log.Error("record failure", zap.Error(terr))
			}
			log.Error("Booking run failed", zap.Error(err))
		}
		res.State = m.state
		res.Transitions = append([]State(nil), m.history...)
		res.FinishedAt = now()
		return res, err
	}

	log.Info("Setting up browser")
	drv, err := r.Launcher.Open(ctx)
	if err != nil {
		return finish(fmt.Errorf("booking: open browser: %w", err))
	}
	defer func() {
		if cerr := drv.Close(); cerr != nil {
			log.Warn("close browser", zap.Error(cerr))
		}
	}()

	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	f := &flow{cfg: cfg, drv: drv, pace: pacer, classify: classifier, obs: obs, log: log}

	if err := m.to(ctx, StateLoggingIn); err != nil {
		return finish(err)
	}
	if err := f.login(ctx); err != nil {
		return finish(err)
	}

	if err := m.to(ctx, StateBooking); err != nil {
		return finish(err)
	}
	attempt, err := f.attempt(ctx, res.Request)
	if err != nil {
		return finish(err)
	}
	res.Outcome = attempt.outcome
	res.Reason = attempt.reason
	res.Heuristic = attempt.heuristic
	if attempt.outcome == OutcomeFullyBooked {
		return finish(m.to(ctx, StateFullyBooked))
	}

	res.Bay = BayResult{Reason: BaySkipped}
	if cfg.PreferGroundLevel {
		if err := m.to(ctx, StateBaySelection); err != nil {
			return finish(err)
		}
		bay, err := f.reselectBay(ctx)
		res.Bay = bay
		if err != nil {
			return finish(err)
		}
	}

	if err := m.to(ctx, StateFinalizing); err != nil {
		return finish(err)
	}
	fields, err := f.finalize(ctx)
	if err != nil {
		return finish(err)
	}
	res.Fields = fields
	res.Report = Report(fields)
	log.Info("Booking confirmed", zap.Strings("fields", fields))

	return finish(m.to(ctx, StateDone))
}
