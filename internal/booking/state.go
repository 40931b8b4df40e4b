package booking

import (
	"context"
	"fmt"
)

type State string

const (
	StateInit         State = "init"
	StateLoggingIn    State = "logging_in"
	StateBooking      State = "booking"
	StateFullyBooked  State = "fully_booked"
	StateBaySelection State = "bay_selection"
	StateFinalizing   State = "finalizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

var transitions = map[State][]State{
	StateInit:         {StateLoggingIn, StateFailed},
	StateLoggingIn:    {StateBooking, StateFailed},
	StateBooking:      {StateFullyBooked, StateBaySelection, StateFinalizing, StateFailed},
	StateBaySelection: {StateFinalizing, StateFailed},
	StateFinalizing:   {StateDone, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the run state machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Observer is told about every state change and every bay read of a run.
// Implementations must not block for long; the portal session is waiting.
type Observer interface {
	Transition(ctx context.Context, from, to State)
	Bay(ctx context.Context, obs BayObservation)
}

// BayObservation is what one iteration of the bay loop saw.
type BayObservation struct {
	Iteration int
	Label     string
	Banner    string
	Class     BayClass
}

type nopObserver struct{}

func (nopObserver) Transition(context.Context, State, State) {}
func (nopObserver) Bay(context.Context, BayObservation) {}

// machine tracks the current state and the path taken to reach it.
type machine struct {
	state   State
	history []State
	obs     Observer
}

func newMachine(obs Observer) *machine {
	return &machine{state: StateInit, history: []State{StateInit}, obs: obs}
}

func (m *machine) to(ctx context.Context, next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("booking: illegal transition %s -> %s", m.state, next)
	}
	prev := m.state
	m.state = next
	m.history = append(m.history, next)
	m.obs.Transition(ctx, prev, next)
	return nil
}
