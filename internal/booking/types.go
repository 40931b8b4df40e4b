package booking

import (
	"time"
)

// Credentials are the portal login. They are never logged.
type Credentials struct {
	Username string
	Password string
}

// String keeps the password out of accidental %v formatting.
func (c Credentials) String() string {
	return "Credentials{Username:" + c.Username + ", Password:****}"
}

// Request is built once at the start of a run and never changed afterwards.
type Request struct {
	Carpark      string
	TargetDate   time.Time
	DateLabel    string // MM/DD/YYYY, as typed into the date picker
	VehiclePlate string
}

// NewRequest fixes the target date for the run from now.
func NewRequest(carpark, plate string, now time.Time) Request {
	target := TargetDate(now)
	return Request{
		Carpark:      carpark,
		TargetDate:   target,
		DateLabel:    FormatDateLabel(target),
		VehiclePlate: plate,
	}
}

type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeFullyBooked Outcome = "fully_booked"
)

// BayAssignment is the bay label as currently shown. IsErrorState is set
// while the portal's bay error banner is showing next to it.
type BayAssignment struct {
	Label        string
	IsErrorState bool
}

// BayReason says which of the three loop exits was taken.
type BayReason string

const (
	BayPreferred       BayReason = "preferred"
	BayNoneAvailable   BayReason = "no_bays_available"
	BayBudgetExhausted BayReason = "budget_exhausted"
	// BaySkipped is used when the ground-level preference is off.
	BaySkipped BayReason = "skipped"
)

type BayResult struct {
	Bay        BayAssignment
	Reason     BayReason
	Iterations int
}

// Result summarises the terminal state of one run.
type Result struct {
	State       State
	Outcome     Outcome
	Request     Request
	Bay         BayResult
	Report      string
	Fields      []string
	Reason      string
	Heuristic   bool
	Transitions []State
	StartedAt   time.Time
	FinishedAt  time.Time
}

func (r Result) Booked() bool { return r.State == StateDone }
