package booking

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TextPrefix marks a selector that matches on visible text instead of CSS.
const TextPrefix = "text/"

// TextSelector builds a selector matching the element whose own text contains s.
func TextSelector(s string) string { return TextPrefix + s }

// IsTextSelector reports whether sel is a text selector and returns the text.
func IsTextSelector(sel string) (string, bool) {
	if strings.HasPrefix(sel, TextPrefix) {
		return strings.TrimPrefix(sel, TextPrefix), true
	}
	return "", false
}

// Element is a handle to the index-th match of Selector at the time it was located.
type Element struct {
	Selector string
	Index    int
}

// ErrTimeout is returned (wrapped) by Driver waits that run out of time.
var ErrTimeout = errors.New("timed out")

// Driver is the browser capability the booking flow is written against.
// Every call blocks until the action completes, the driver's own timeout
// expires, or ctx is done.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitFor blocks until selector matches an element. A timeout of zero uses the driver default.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	Clear(ctx context.Context, selector string) error
	ReadText(ctx context.Context, el Element) (string, error)
	WaitForNavigation(ctx context.Context) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens one driver session per run.
type Launcher interface {
	Open(ctx context.Context) (Driver, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Driver, error)

func (f LauncherFunc) Open(ctx context.Context) (Driver, error) { return f(ctx) }

// Selectors locate the portal's controls.
type Selectors struct {
	Email          string
	Password       string
	LoginButton    string
	CarparkPicker  string
	DatePicker     string
	LicensePlate   string
	RegisterButton string
	BookingSummary string
	BayLabel       string
	BayError       string
	ChangeBay      string
	BookNow        string
	DisplayField   string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Email:          "#Email",
		Password:       "#Password",
		LoginButton:    ".k-primary",
		CarparkPicker:  TextSelector("Select Car Park..."),
		DatePicker:     "#FromDatePicker",
		LicensePlate:   ".licensePlate",
		RegisterButton: "#register-button",
		BookingSummary: TextSelector("Booking Summary"),
		BayLabel:       "#lblBayLabel",
		BayError:       "#BayError",
		ChangeBay:      TextSelector("Change Bay"),
		BookNow:        TextSelector("Book Now"),
		DisplayField:   ".display-field",
	}
}
