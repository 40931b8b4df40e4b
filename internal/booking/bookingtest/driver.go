// Package bookingtest provides a scripted booking.Driver for tests.
package bookingtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/baybook/internal/booking"
)

type Call struct {
	Method   string
	Selector string
	Text     string
}

// Driver replays scripted page state. Texts holds successive values returned by
// ReadText for a selector (the last value repeats); All holds QueryAll results.
// Selectors listed in Missing never appear and WaitFor times out on them.
// Fail injects an error for "Method selector" keys, e.g. "Type #FromDatePicker".
type Driver struct {
	Texts   map[string][]string
	All     map[string][]string
	Missing map[string]bool
	Fail    map[string]error
	Page    string

	mu     sync.Mutex
	calls  []Call
	reads  map[string]int
	closed int
}

func New() *Driver {
	return &Driver{
		Texts:   map[string][]string{},
		All:     map[string][]string{},
		Missing: map[string]bool{},
		Fail:    map[string]error{},
	}
}

// Launcher hands out this driver on every Open.
func (d *Driver) Launcher() booking.Launcher {
	return booking.LauncherFunc(func(ctx context.Context) (booking.Driver, error) {
		return d, nil
	})
}

func (d *Driver) record(method, selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Method: method, Selector: selector, Text: text})
	return d.Fail[method+" "+selector]
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	return d.record("Navigate", url, "")
}

func (d *Driver) WaitFor(ctx context.Context, selector string, timeout time.Duration) (booking.Element, error) {
	if err := d.record("WaitFor", selector, ""); err != nil {
		return booking.Element{}, err
	}
	if d.Missing[selector] {
		return booking.Element{}, fmt.Errorf("wait for %q: %w", selector, booking.ErrTimeout)
	}
	return booking.Element{Selector: selector}, nil
}

func (d *Driver) Type(ctx context.Context, selector, text string) error {
	return d.record("Type", selector, text)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	return d.record("Click", selector, "")
}

func (d *Driver) Clear(ctx context.Context, selector string) error {
	return d.record("Clear", selector, "")
}

func (d *Driver) ReadText(ctx context.Context, el booking.Element) (string, error) {
	if err := d.record("ReadText", el.Selector, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if all, ok := d.All[el.Selector]; ok {
		if el.Index >= len(all) {
			return "", fmt.Errorf("element %d of %q is gone", el.Index, el.Selector)
		}
		return all[el.Index], nil
	}
	seq := d.Texts[el.Selector]
	if len(seq) == 0 {
		return "", nil
	}
	if d.reads == nil {
		d.reads = map[string]int{}
	}
	i := d.reads[el.Selector]
	d.reads[el.Selector]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return seq[i], nil
}

func (d *Driver) WaitForNavigation(ctx context.Context) error {
	return d.record("WaitForNavigation", "", "")
}

func (d *Driver) QueryAll(ctx context.Context, selector string) ([]booking.Element, error) {
	if err := d.record("QueryAll", selector, ""); err != nil {
		return nil, err
	}
	out := make([]booking.Element, len(d.All[selector]))
	for i := range out {
		out[i] = booking.Element{Selector: selector, Index: i}
	}
	return out, nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	if err := d.record("HTML", "", ""); err != nil {
		return "", err
	}
	return d.Page, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

// Calls returns a copy of every recorded call in order.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Count returns how many times method was called with selector.
func (d *Driver) Count(method, selector string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Method == method && c.Selector == selector {
			n++
		}
	}
	return n
}

// Touched reports whether any call at all used selector.
func (d *Driver) Touched(selector string) bool {
	for _, c := range d.Calls() {
		if c.Selector == selector {
			return true
		}
	}
	return false
}

func (d *Driver) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Portal returns a driver scripted for a successful booking at bay.
func Portal(bay string, fields ...string) *Driver {
	d := New()
	sel := booking.DefaultSelectors()
	d.Texts[sel.BayLabel] = []string{bay}
	d.Texts[sel.BayError] = []string{""}
	d.All[sel.DisplayField] = fields
	return d
}
