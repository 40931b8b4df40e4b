package booking_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/example/baybook/internal/booking"
	"github.com/example/baybook/internal/booking/bookingtest"
)

var fixedNow = time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)

func newRunner(d *bookingtest.Driver, prefer bool) *booking.Runner {
	return &booking.Runner{
		Config: booking.Config{
			LoginURL:          "https://portal.example.com/Account/Login?ReturnUrl=%2F",
			BookURL:           "https://portal.example.com/BookNow",
			Credentials:       booking.Credentials{Username: "jo@example.com", Password: "hunter2"},
			Carpark:           "Wynyard Lane",
			VehiclePlate:      "ABC123",
			PreferGroundLevel: prefer,
		},
		Launcher: d.Launcher(),
		Pacer:    booking.NoPause{},
		Now:      func() time.Time { return fixedNow },
	}
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions [][2]booking.State
	bays        []booking.BayObservation
}

func (o *recordingObserver) Transition(_ context.Context, from, to booking.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, [2]booking.State{from, to})
}

func (o *recordingObserver) Bay(_ context.Context, obs booking.BayObservation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bays = append(o.bays, obs)
}

// TestRunSuccessWithPreferredBay walks the whole happy path.
func TestRunSuccessWithPreferredBay(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("", "Wynyard Lane", "22/01/2024", "Ground Level Bay C")
	d.Texts[sel.BayLabel] = []string{"Level 2 Bay A", "Ground Level Bay B (small)", "Ground Level Bay C"}
	obs := &recordingObserver{}
	r := newRunner(d, true)
	r.Observer = obs

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.State != booking.StateDone || !res.Booked() {
		t.Fatalf("state = %s, want done", res.State)
	}
	if res.Outcome != booking.OutcomeAccepted {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if res.Bay.Reason != booking.BayPreferred || res.Bay.Iterations != 3 {
		t.Fatalf("bay = %+v, want preferred at iteration 3", res.Bay)
	}
	if res.Bay.Bay.Label != "Ground Level Bay C" || res.Bay.Bay.IsErrorState {
		t.Fatalf("bay = %+v", res.Bay.Bay)
	}
	if got := d.Count("Click", sel.ChangeBay); got != 2 {
		t.Fatalf("change bay clicks = %d, want 2", got)
	}
	if res.Report != "Wynyard Lane\n22/01/2024\nGround Level Bay C" {
		t.Fatalf("report = %q", res.Report)
	}
	wantPath := []booking.State{
		booking.StateInit, booking.StateLoggingIn, booking.StateBooking,
		booking.StateBaySelection, booking.StateFinalizing, booking.StateDone,
	}
	if !reflect.DeepEqual(res.Transitions, wantPath) {
		t.Fatalf("transitions = %v, want %v", res.Transitions, wantPath)
	}
	if len(obs.transitions) != len(wantPath)-1 {
		t.Fatalf("observer saw %d transitions", len(obs.transitions))
	}
	if len(obs.bays) != 3 || obs.bays[2].Class != booking.BayGroundLevel {
		t.Fatalf("observer bays = %+v", obs.bays)
	}
	if d.Closed() != 1 {
		t.Fatalf("driver closed %d times, want 1", d.Closed())
	}
}

// TestRunTypesCredentialsAndRequest checks what is entered into the portal's forms.
func TestRunTypesCredentialsAndRequest(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Ground Level Bay C", "ok")
	if _, err := newRunner(d, true).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var typed []bookingtest.Call
	for _, c := range d.Calls() {
		if c.Method == "Type" {
			typed = append(typed, c)
		}
	}
	want := []bookingtest.Call{
		{Method: "Type", Selector: sel.Email, Text: "jo@example.com"},
		{Method: "Type", Selector: sel.Password, Text: "hunter2"},
		{Method: "Type", Selector: sel.DatePicker, Text: "01/22/2024"},
		{Method: "Type", Selector: sel.LicensePlate, Text: "ABC123"},
	}
	if !reflect.DeepEqual(typed, want) {
		t.Fatalf("typed = %+v, want %+v", typed, want)
	}
	if d.Count("Clear", sel.DatePicker) != 1 || d.Count("Clear", sel.LicensePlate) != 1 {
		t.Fatalf("date and plate fields must be cleared before typing")
	}
	if d.Count("Click", booking.TextSelector("Wynyard Lane")) != 1 {
		t.Fatalf("carpark was not selected by its visible name")
	}
	calls := d.Calls()
	if calls[0].Method != "Navigate" || calls[0].Selector != "https://portal.example.com/Account/Login?ReturnUrl=%2F" {
		t.Fatalf("first call = %+v, want login navigation", calls[0])
	}
}

// TestBayLoopExhaustsBudget verifies the loop stops after exactly the budget.
func TestBayLoopExhaustsBudget(t *testing.T) {
	for _, budget := range []int{1, 7, 100} {
		sel := booking.DefaultSelectors()
		d := bookingtest.Portal("Level 3 Bay Z", "confirmed")
		r := newRunner(d, true)
		r.Config.RetryBudget = budget

		res, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("budget %d: Run: %v", budget, err)
		}
		if res.Bay.Reason != booking.BayBudgetExhausted || res.Bay.Iterations != budget {
			t.Fatalf("budget %d: bay = %+v", budget, res.Bay)
		}
		if got := d.Count("ReadText", sel.BayLabel); got != budget {
			t.Fatalf("budget %d: label reads = %d", budget, got)
		}
		if got := d.Count("Click", sel.ChangeBay); got != budget {
			t.Fatalf("budget %d: change bay clicks = %d", budget, got)
		}
		if res.State != booking.StateDone || res.Report != "confirmed" {
			t.Fatalf("budget %d: exhausted loop must still finalize, got %s %q", budget, res.State, res.Report)
		}
	}
}

// TestBayLoopDefaultBudget checks the default budget of 100.
func TestBayLoopDefaultBudget(t *testing.T) {
	d := bookingtest.Portal("Level 3 Bay Z")
	res, err := newRunner(d, true).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Bay.Iterations != booking.DefaultRetryBudget {
		t.Fatalf("iterations = %d, want %d", res.Bay.Iterations, booking.DefaultRetryBudget)
	}
}

// TestBayLoopStopsWhenNoBaysAvailable verifies the banner ends the loop at the iteration it appears.
func TestBayLoopStopsWhenNoBaysAvailable(t *testing.T) {
	for _, k := range []int{1, 4, 10} {
		sel := booking.DefaultSelectors()
		d := bookingtest.Portal("Level 1 Bay Q", "final")
		banners := make([]string, k)
		banners[k-1] = "No bays available"
		d.Texts[sel.BayError] = banners

		res, err := newRunner(d, true).Run(context.Background())
		if err != nil {
			t.Fatalf("k=%d: Run: %v", k, err)
		}
		if res.Bay.Reason != booking.BayNoneAvailable || res.Bay.Iterations != k {
			t.Fatalf("k=%d: bay = %+v", k, res.Bay)
		}
		if got := d.Count("Click", sel.ChangeBay); got != k-1 {
			t.Fatalf("k=%d: change bay clicks = %d, want %d", k, got, k-1)
		}
		if !res.Bay.Bay.IsErrorState {
			t.Fatalf("k=%d: bay shown with the banner must be flagged", k)
		}
		if res.Bay.Bay.Label != "Level 1 Bay Q" || res.State != booking.StateDone {
			t.Fatalf("k=%d: current bay must be finalized, got %+v %s", k, res.Bay, res.State)
		}
	}
}

// TestRunFullyBookedShortCircuits verifies nothing after the booking attempt touches the portal.
func TestRunFullyBookedShortCircuits(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Ground Level Bay C", "should not be read")
	d.Missing[sel.BookingSummary] = true

	res, err := newRunner(d, true).Run(context.Background())
	if err != nil {
		t.Fatalf("fully booked must not be an error: %v", err)
	}
	if res.State != booking.StateFullyBooked || res.Outcome != booking.OutcomeFullyBooked {
		t.Fatalf("state = %s outcome = %s", res.State, res.Outcome)
	}
	for _, s := range []string{sel.BayLabel, sel.BayError, sel.ChangeBay, sel.BookNow, sel.DisplayField} {
		if d.Touched(s) {
			t.Fatalf("selector %q was used after a fully booked outcome", s)
		}
	}
	if d.Count("WaitForNavigation", "") != 1 {
		t.Fatalf("only the login navigation may be awaited")
	}
	if !res.Heuristic || res.Reason == "" {
		t.Fatalf("timeout-only classification must be flagged heuristic, got %+v", res)
	}
	wantPath := []booking.State{booking.StateInit, booking.StateLoggingIn, booking.StateBooking, booking.StateFullyBooked}
	if !reflect.DeepEqual(res.Transitions, wantPath) {
		t.Fatalf("transitions = %v", res.Transitions)
	}
	if d.Closed() != 1 {
		t.Fatalf("driver must be closed on the fully booked path")
	}
}

// TestRunFullyBookedUsesPortalAlert verifies a rendered alert becomes the reason.
func TestRunFullyBookedUsesPortalAlert(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.New()
	d.Missing[sel.BookingSummary] = true
	d.Page = `<div class="validation-summary-errors"><ul><li>Car park is full</li></ul></div>`

	res, err := newRunner(d, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Heuristic || res.Reason != "Car park is full" {
		t.Fatalf("reason = %q heuristic = %v", res.Reason, res.Heuristic)
	}
}

// TestRunWithoutPreferenceSkipsLoop verifies the preference gate.
func TestRunWithoutPreferenceSkipsLoop(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Level 5 Bay X (small)", "Level 5 Bay X (small)")

	res, err := newRunner(d, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Touched(sel.BayLabel) || d.Touched(sel.ChangeBay) || d.Touched(sel.BayError) {
		t.Fatalf("bay loop ran with the preference off")
	}
	if res.Bay.Reason != booking.BaySkipped {
		t.Fatalf("bay reason = %s", res.Bay.Reason)
	}
	wantPath := []booking.State{booking.StateInit, booking.StateLoggingIn, booking.StateBooking, booking.StateFinalizing, booking.StateDone}
	if !reflect.DeepEqual(res.Transitions, wantPath) {
		t.Fatalf("transitions = %v", res.Transitions)
	}
	if d.Count("Click", sel.BookNow) != 1 {
		t.Fatalf("booking was not confirmed")
	}
}

// TestFinalizeReportKeepsOrder checks the report is the newline-joined field texts.
func TestFinalizeReportKeepsOrder(t *testing.T) {
	fields := []string{"Booking Ref: 991", "", "  Bay G12  ", "Wynyard Lane", "Booking Ref: 991"}
	d := bookingtest.Portal("Ground Level Bay C", fields...)

	res, err := newRunner(d, false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "Booking Ref: 991\n\n  Bay G12  \nWynyard Lane\nBooking Ref: 991"
	if res.Report != want {
		t.Fatalf("report = %q, want %q", res.Report, want)
	}
	if !reflect.DeepEqual(res.Fields, fields) {
		t.Fatalf("fields = %q", res.Fields)
	}
}

// TestRunLoginFailure verifies a missing login form is fatal and typed.
func TestRunLoginFailure(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.New()
	d.Missing[sel.Password] = true

	res, err := newRunner(d, true).Run(context.Background())
	if !errors.Is(err, booking.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
	if !errors.Is(err, booking.ErrTimeout) {
		t.Fatalf("err = %v, want wrapped timeout", err)
	}
	var authErr *booking.AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %T, want *AuthenticationError", err)
	}
	if res.State != booking.StateFailed {
		t.Fatalf("state = %s", res.State)
	}
	if d.Touched(booking.DefaultSelectors().RegisterButton) {
		t.Fatalf("booking attempted after failed login")
	}
	if d.Closed() != 1 {
		t.Fatalf("driver must be closed after a failure")
	}
}

// TestRunNavigationFailureAfterLogin verifies a missing post-login navigation is an authentication error.
func TestRunNavigationFailureAfterLogin(t *testing.T) {
	d := bookingtest.New()
	d.Fail["WaitForNavigation "] = errors.New("navigation timeout")

	_, err := newRunner(d, false).Run(context.Background())
	if !errors.Is(err, booking.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

// TestRunFieldFaultPropagates verifies unclassified driver faults end the run with the step name.
func TestRunFieldFaultPropagates(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.New()
	boom := errors.New("node detached")
	d.Fail["Type "+sel.LicensePlate] = boom

	res, err := newRunner(d, true).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	var stepErr *booking.StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "enter vehicle plate" {
		t.Fatalf("err = %#v, want step error for the plate", err)
	}
	if errors.Is(err, booking.ErrAuthentication) {
		t.Fatalf("field fault misreported as authentication failure")
	}
	if res.State != booking.StateFailed {
		t.Fatalf("state = %s", res.State)
	}
}

// TestRunBayBannerMissingIsFatal verifies a missing error banner is not treated as a loop exit.
func TestRunBayBannerMissingIsFatal(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Level 2 Bay A")
	d.Missing[sel.BayError] = true

	res, err := newRunner(d, true).Run(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.State != booking.StateFailed || d.Touched(sel.BookNow) {
		t.Fatalf("run continued after a driver fault: %s", res.State)
	}
}

// TestRunLauncherFailure verifies a browser that cannot start fails the run.
func TestRunLauncherFailure(t *testing.T) {
	r := newRunner(bookingtest.New(), false)
	r.Launcher = booking.LauncherFunc(func(context.Context) (booking.Driver, error) {
		return nil, errors.New("chrome not found")
	})
	res, err := r.Run(context.Background())
	if err == nil || res.State != booking.StateFailed {
		t.Fatalf("err = %v state = %s", err, res.State)
	}
}

// TestRunCancelled verifies a cancelled context stops the run and still closes the driver.
func TestRunCancelled(t *testing.T) {
	d := bookingtest.Portal("Ground Level Bay C")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newRunner(d, true).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res.State != booking.StateFailed || d.Closed() != 1 {
		t.Fatalf("state = %s closed = %d", res.State, d.Closed())
	}
}

// TestRunComputesTargetDateOnce verifies a slow run keeps the target date computed at start.
func TestRunComputesTargetDateOnce(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Level 3 Bay Z", "done")
	clock := fixedNow
	r := newRunner(d, true)
	r.Config.RetryBudget = 3
	r.Now = func() time.Time {
		clock = clock.Add(20 * time.Hour)
		return clock
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var typed string
	for _, c := range d.Calls() {
		if c.Method == "Type" && c.Selector == sel.DatePicker {
			typed = c.Text
		}
	}
	if typed != res.Request.DateLabel {
		t.Fatalf("typed date %q differs from request %q", typed, res.Request.DateLabel)
	}
}

// TestRunUsesGivenRequest verifies a preset request wins over the clock.
func TestRunUsesGivenRequest(t *testing.T) {
	sel := booking.DefaultSelectors()
	d := bookingtest.Portal("Ground Level Bay C", "done")
	r := newRunner(d, true)
	r.Request = booking.NewRequest("Wynyard Lane", "ABC123", time.Date(2024, 12, 20, 0, 10, 0, 0, time.UTC))

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Request.DateLabel != "01/10/2025" {
		t.Fatalf("DateLabel = %q", res.Request.DateLabel)
	}
	for _, c := range d.Calls() {
		if c.Method == "Type" && c.Selector == sel.DatePicker && c.Text != "01/10/2025" {
			t.Fatalf("typed %q", c.Text)
		}
	}
}

func TestCanTransition(t *testing.T) {
	legal := [][2]booking.State{
		{booking.StateInit, booking.StateLoggingIn},
		{booking.StateLoggingIn, booking.StateBooking},
		{booking.StateBooking, booking.StateFullyBooked},
		{booking.StateBooking, booking.StateBaySelection},
		{booking.StateBooking, booking.StateFinalizing},
		{booking.StateBaySelection, booking.StateFinalizing},
		{booking.StateFinalizing, booking.StateDone},
	}
	for _, e := range legal {
		if !booking.CanTransition(e[0], e[1]) {
			t.Errorf("%s -> %s should be legal", e[0], e[1])
		}
	}
	illegal := [][2]booking.State{
		{booking.StateFullyBooked, booking.StateBaySelection},
		{booking.StateFullyBooked, booking.StateFinalizing},
		{booking.StateInit, booking.StateBooking},
		{booking.StateDone, booking.StateFailed},
		{booking.StateBaySelection, booking.StateBooking},
	}
	for _, e := range illegal {
		if booking.CanTransition(e[0], e[1]) {
			t.Errorf("%s -> %s should be illegal", e[0], e[1])
		}
	}
	for _, s := range []booking.State{booking.StateFullyBooked, booking.StateDone, booking.StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
