package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// flow holds what the steps of a single run share: one driver session and its pacing.
type flow struct {
	cfg      Config
	drv      Driver
	pace     Pacer
	classify Classifier
	obs      Observer
	log      *zap.Logger
}

// login fills the portal's login form and waits for the post-login navigation.
func (f *flow) login(ctx context.Context) error {
	f.log.Info("Perform login", zap.String("url", f.cfg.LoginURL))
	sel := f.cfg.Selectors

	fail := func(err error) error { return &AuthenticationError{Err: err} }

	if err := f.drv.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return fail(fmt.Errorf("open login page: %w", err))
	}
	if _, err := f.drv.WaitFor(ctx, sel.Email, 0); err != nil {
		return fail(fmt.Errorf("username field: %w", err))
	}
	if err := f.drv.Type(ctx, sel.Email, f.cfg.Credentials.Username); err != nil {
		return fail(fmt.Errorf("username field: %w", err))
	}
	if err := f.pace.Pause(ctx); err != nil {
		return fail(err)
	}
	if _, err := f.drv.WaitFor(ctx, sel.Password, 0); err != nil {
		return fail(fmt.Errorf("password field: %w", err))
	}
	if err := f.drv.Type(ctx, sel.Password, f.cfg.Credentials.Password); err != nil {
		return fail(fmt.Errorf("password field: %w", err))
	}
	if err := f.pace.Pause(ctx); err != nil {
		return fail(err)
	}
	if _, err := f.drv.WaitFor(ctx, sel.LoginButton, 0); err != nil {
		return fail(fmt.Errorf("login button: %w", err))
	}
	if err := f.drv.Click(ctx, sel.LoginButton); err != nil {
		return fail(fmt.Errorf("login button: %w", err))
	}
	if err := f.drv.WaitForNavigation(ctx); err != nil {
		return fail(fmt.Errorf("post-login navigation: %w", err))
	}
	if err := f.pace.Pause(ctx); err != nil {
		return fail(err)
	}
	return nil
}

// attemptResult is the classified outcome of the booking form submission.
type attemptResult struct {
	outcome   Outcome
	reason    string
	heuristic bool
}

// attempt submits the booking form and classifies what the portal did with it.
func (f *flow) attempt(ctx context.Context, req Request) (attemptResult, error) {
	f.log.Info("Book parking",
		zap.String("carpark", req.Carpark),
		zap.String("date", req.DateLabel),
	)
	sel := f.cfg.Selectors

	if err := f.drv.Navigate(ctx, f.cfg.BookURL); err != nil {
		return attemptResult{}, stepErr("open booking page", err)
	}
	if err := f.pace.Pause(ctx); err != nil {
		return attemptResult{}, err
	}
	if err := f.clickWhenReady(ctx, sel.CarparkPicker); err != nil {
		return attemptResult{}, stepErr("open carpark picker", err)
	}
	if err := f.pace.Pause(ctx); err != nil {
		return attemptResult{}, err
	}
	if err := f.clickWhenReady(ctx, TextSelector(req.Carpark)); err != nil {
		return attemptResult{}, stepErr("select carpark", err)
	}
	if err := f.pace.Pause(ctx); err != nil {
		return attemptResult{}, err
	}
	if err := f.fill(ctx, sel.DatePicker, req.DateLabel); err != nil {
		return attemptResult{}, stepErr("enter date", err)
	}
	if err := f.fill(ctx, sel.LicensePlate, req.VehiclePlate); err != nil {
		return attemptResult{}, stepErr("enter vehicle plate", err)
	}
	if err := f.clickWhenReady(ctx, sel.RegisterButton); err != nil {
		return attemptResult{}, stepErr("submit booking", err)
	}
	if err := f.pace.Pause(ctx); err != nil {
		return attemptResult{}, err
	}

	_, err := f.drv.WaitFor(ctx, sel.BookingSummary, f.cfg.SummaryTimeout)
	if err == nil {
		return attemptResult{outcome: OutcomeAccepted}, nil
	}
	if ctx.Err() != nil {
		return attemptResult{}, ctx.Err()
	}
	if !errors.Is(err, ErrTimeout) {
		return attemptResult{}, stepErr("wait for booking summary", err)
	}

	res := attemptResult{
		outcome:   OutcomeFullyBooked,
		reason:    fmt.Sprintf("no booking summary within %s", f.cfg.SummaryTimeout),
		heuristic: true,
	}
	if alerts := f.alerts(ctx); len(alerts) > 0 {
		res.reason = strings.Join(alerts, "; ")
		res.heuristic = false
	}
	f.log.Info("Car park fully booked",
		zap.String("reason", res.reason),
		zap.Bool("heuristic", res.heuristic),
	)
	return res, nil
}

// alerts reads any error messages the portal rendered. Failures here only cost
// the authoritative reason, so they are logged and swallowed.
func (f *flow) alerts(ctx context.Context) []string {
	html, err := f.drv.HTML(ctx)
	if err != nil {
		f.log.Debug("read page for alerts", zap.Error(err))
		return nil
	}
	alerts, err := ScanAlerts(html)
	if err != nil {
		f.log.Debug("scan page for alerts", zap.Error(err))
		return nil
	}
	return alerts
}

// reselectBay asks the portal for another bay until the classifier is satisfied,
// the portal reports that no bays remain, or the budget runs out.
func (f *flow) reselectBay(ctx context.Context) (BayResult, error) {
	f.log.Info("Change bay and book", zap.Int("budget", f.cfg.RetryBudget))
	sel := f.cfg.Selectors

	var res BayResult
	for i := 1; i <= f.cfg.RetryBudget; i++ {
		res.Iterations = i

		label, err := f.readText(ctx, sel.BayLabel)
		if err != nil {
			return res, stepErr("read bay label", err)
		}
		res.Bay = BayAssignment{Label: label}
		class := f.classify.ClassifyBay(label)
		f.log.Info("retry", zap.Int("iteration", i), zap.String("bay", label), zap.Stringer("class", class))

		if class == BayGroundLevel {
			f.obs.Bay(ctx, BayObservation{Iteration: i, Label: label, Class: class})
			f.log.Info("Booked preferred bay", zap.String("bay", label))
			res.Reason = BayPreferred
			return res, nil
		}

		banner, err := f.readText(ctx, sel.BayError)
		if err != nil {
			return res, stepErr("read bay error", err)
		}
		res.Bay.IsErrorState = banner != ""
		f.obs.Bay(ctx, BayObservation{Iteration: i, Label: label, Banner: banner, Class: class})

		if f.classify.ClassifyAlert(banner) == AlertNoBaysAvailable {
			f.log.Info("No other bays available", zap.String("bay", label))
			res.Reason = BayNoneAvailable
			return res, nil
		}

		if err := f.pace.Pause(ctx); err != nil {
			return res, err
		}
		if err := f.clickWhenReady(ctx, sel.ChangeBay); err != nil {
			return res, stepErr("change bay", err)
		}
	}

	f.log.Warn("Bay retry budget exhausted", zap.Int("budget", f.cfg.RetryBudget), zap.String("bay", res.Bay.Label))
	res.Reason = BayBudgetExhausted
	return res, nil
}

// finalize confirms the booking and collects the confirmation page's display fields.
func (f *flow) finalize(ctx context.Context) ([]string, error) {
	f.log.Info("Finalise booking")
	sel := f.cfg.Selectors

	if err := f.pace.Pause(ctx); err != nil {
		return nil, err
	}
	if err := f.clickWhenReady(ctx, sel.BookNow); err != nil {
		return nil, stepErr("confirm booking", err)
	}
	if err := f.drv.WaitForNavigation(ctx); err != nil {
		return nil, stepErr("confirm booking", err)
	}
	if err := f.pace.Pause(ctx); err != nil {
		return nil, err
	}

	els, err := f.drv.QueryAll(ctx, sel.DisplayField)
	if err != nil {
		return nil, stepErr("read confirmation", err)
	}
	fields := make([]string, 0, len(els))
	for _, el := range els {
		t, err := f.drv.ReadText(ctx, el)
		if err != nil {
			return nil, stepErr("read confirmation", err)
		}
		fields = append(fields, t)
	}
	return fields, nil
}

func (f *flow) clickWhenReady(ctx context.Context, selector string) error {
	if _, err := f.drv.WaitFor(ctx, selector, 0); err != nil {
		return err
	}
	return f.drv.Click(ctx, selector)
}

func (f *flow) readText(ctx context.Context, selector string) (string, error) {
	el, err := f.drv.WaitFor(ctx, selector, 0)
	if err != nil {
		return "", err
	}
	return f.drv.ReadText(ctx, el)
}

// fill clears the field and types text, pausing after each action.
func (f *flow) fill(ctx context.Context, selector, text string) error {
	if _, err := f.drv.WaitFor(ctx, selector, 0); err != nil {
		return err
	}
	if err := f.drv.Clear(ctx, selector); err != nil {
		return err
	}
	if err := f.pace.Pause(ctx); err != nil {
		return err
	}
	if err := f.drv.Type(ctx, selector, text); err != nil {
		return err
	}
	return f.pace.Pause(ctx)
}

// Report joins the display fields in page order.
func Report(fields []string) string {
	return strings.Join(fields, "\n")
}
