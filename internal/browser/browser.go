// Package browser drives a headless Chrome through chromedp and implements
// booking.Driver on top of it.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/example/baybook/internal/booking"
)

const (
	DefaultWaitTimeout       = 30 * time.Second
	DefaultNavigationTimeout = 10 * time.Minute
)

type Options struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	Width     int
	Height    int

	// WaitTimeout bounds WaitFor calls that pass no timeout of their own.
	WaitTimeout       time.Duration
	NavigationTimeout time.Duration

	Log *zap.Logger
}

// Launcher starts a fresh browser per Open.
type Launcher struct {
	opts Options
}

func NewLauncher(opts Options) *Launcher {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = DefaultNavigationTimeout
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1024, 768
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Launcher{opts: opts}
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(l.opts.Width, l.opts.Height),
	)
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	return opts
}

// Open starts Chrome and returns a session on its first tab. The browser is
// not tied to ctx; it lives until Close.
func (l *Launcher) Open(ctx context.Context) (booking.Driver, error) {
	log := l.opts.Log.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	s := &Session{
		ctx:     tabCtx,
		cancel:  func() { tabCancel(); allocCancel() },
		loads:   make(chan struct{}, 1),
		wait:    l.opts.WaitTimeout,
		navWait: l.opts.NavigationTimeout,
		log:     log,
	}
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case s.loads <- struct{}{}:
			default:
			}
		}
	})

	// The first Run allocates the browser and binds it to the context it is
	// given, so it runs on tabCtx itself. ctx and the start timeout tear the
	// tab down instead.
	stopCtx := context.AfterFunc(ctx, s.cancel)
	timer := time.AfterFunc(l.opts.NavigationTimeout, s.cancel)
	err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(l.opts.Width), int64(l.opts.Height)))
	stopCtx()
	timer.Stop()
	if err != nil {
		s.cancel()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("browser: start: %w", err)
	}
	log.Debug("browser started", zap.Bool("headless", l.opts.Headless))
	return s, nil
}

// Session is one Chrome tab.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	loads   chan struct{}
	wait    time.Duration
	navWait time.Duration
	log     *zap.Logger
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	rctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", booking.ErrTimeout, timeout, err)
	}
	return err
}

func (s *Session) drainLoads() {
	select {
	case <-s.loads:
	default:
	}
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.log.Debug("navigate", zap.String("url", url))
	s.drainLoads()
	if err := s.run(ctx, s.navWait, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.drainLoads()
	return nil
}

// WaitFor resolves once selector is present in the DOM. Hidden elements such
// as an empty error banner count as present.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) (booking.Element, error) {
	if timeout <= 0 {
		timeout = s.wait
	}
	q, opts := query(selector)
	if err := s.run(ctx, timeout, chromedp.WaitReady(q, opts...)); err != nil {
		return booking.Element{}, fmt.Errorf("wait for %q: %w", selector, err)
	}
	return booking.Element{Selector: selector}, nil
}

func (s *Session) Type(ctx context.Context, selector, text string) error {
	q, opts := query(selector)
	if err := s.run(ctx, s.wait, chromedp.SendKeys(q, text, opts...)); err != nil {
		return fmt.Errorf("type into %q: %w", selector, err)
	}
	return nil
}

func (s *Session) Clear(ctx context.Context, selector string) error {
	q, opts := query(selector)
	if err := s.run(ctx, s.wait, chromedp.Clear(q, opts...)); err != nil {
		return fmt.Errorf("clear %q: %w", selector, err)
	}
	return nil
}

// Click dispatches a DOM click on the first match. Any load event seen before
// the click is discarded so WaitForNavigation only sees what the click causes.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.drainLoads()
	var found bool
	if err := s.run(ctx, s.wait, chromedp.Evaluate(clickJS(selector), &found)); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	if !found {
		return fmt.Errorf("click %q: no such element", selector)
	}
	return nil
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

func (s *Session) ReadText(ctx context.Context, el booking.Element) (string, error) {
	var res textResult
	if err := s.run(ctx, s.wait, chromedp.Evaluate(textJS(el), &res)); err != nil {
		return "", fmt.Errorf("read %q[%d]: %w", el.Selector, el.Index, err)
	}
	if !res.Found {
		return "", fmt.Errorf("read %q[%d]: element is gone", el.Selector, el.Index)
	}
	return res.Text, nil
}

func (s *Session) WaitForNavigation(ctx context.Context) error {
	t := time.NewTimer(s.navWait)
	defer t.Stop()
	select {
	case <-s.loads:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return fmt.Errorf("wait for navigation: browser closed: %w", s.ctx.Err())
	case <-t.C:
		return fmt.Errorf("wait for navigation: %w after %s", booking.ErrTimeout, s.navWait)
	}
}

func (s *Session) QueryAll(ctx context.Context, selector string) ([]booking.Element, error) {
	var n int
	if err := s.run(ctx, s.wait, chromedp.Evaluate(countJS(selector), &n)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	els := make([]booking.Element, n)
	for i := range els {
		els[i] = booking.Element{Selector: selector, Index: i}
	}
	return els, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.wait, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return html, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// query maps a booking selector to a chromedp query. Text selectors match the
// element whose own text contains the given string.
func query(selector string) (string, []chromedp.QueryOption) {
	if text, ok := booking.IsTextSelector(selector); ok {
		return textXPath(text), []chromedp.QueryOption{chromedp.BySearch}
	}
	return selector, []chromedp.QueryOption{chromedp.ByQuery}
}

func textXPath(text string) string {
	return "//*[text()[contains(., " + xpathLiteral(text) + ")]]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.ContainsRune(s, '"') {
		return `"` + s + `"`
	}
	if !strings.ContainsRune(s, '\'') {
		return "'" + s + "'"
	}
	out := "concat("
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			if i > start {
				out += `"` + s[start:i] + `", `
			}
			out += `'"', `
			start = i + 1
		}
	}
	out += `"` + s[start:] + `")`
	return out
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// nodesJS is a JS expression evaluating to an array of the selector's matches.
func nodesJS(selector string) string {
	if text, ok := booking.IsTextSelector(selector); ok {
		return `(() => { const r = document.evaluate(` + jsString(textXPath(text)) +
			`, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null); const a = []; ` +
			`for (let i = 0; i < r.snapshotLength; i++) a.push(r.snapshotItem(i)); return a; })()`
	}
	return `Array.from(document.querySelectorAll(` + jsString(selector) + `))`
}

func clickJS(selector string) string {
	return `(() => { const n = ` + nodesJS(selector) + `[0]; if (!n) return false; n.click(); return true; })()`
}

func textJS(el booking.Element) string {
	return fmt.Sprintf(`(() => { const n = %s[%d]; return n ? {found: true, text: n.textContent} : {found: false, text: ""}; })()`,
		nodesJS(el.Selector), el.Index)
}

func countJS(selector string) string {
	return nodesJS(selector) + `.length`
}
