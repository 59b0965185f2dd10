package rod

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fwojciec/sigmatch"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Recycling defaults. Chrome memory grows with every article page and never
// returns to baseline; a browser that fails several pages in a row is
// usually wedged.
const (
	DefaultRecycleAfter = 75
	DefaultFailureLimit = 3
)

// session is one launched browser process.
type session struct {
	browser *rod.Browser
	kill    func()

	inflight int
	retired  bool
}

type launchFunc func() (*session, error)

// pool hands out the current browser session and replaces it once it has
// served recycleAfter pages or failed failureLimit pages in a row. A
// replaced session stays alive until its in-flight pages are released.
type pool struct {
	launch       launchFunc
	recycleAfter int
	failureLimit int
	logger       *slog.Logger

	mu       sync.Mutex
	current  *session
	pages    int
	failures int
	recycles int
	closed   bool
}

func newPool(launch launchFunc, recycleAfter, failureLimit int, logger *slog.Logger) (*pool, error) {
	s, err := launch()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &pool{
		launch:       launch,
		recycleAfter: recycleAfter,
		failureLimit: failureLimit,
		logger:       logger,
		current:      s,
	}, nil
}

// acquire returns the session to load the next page in. Every acquire must
// be paired with a release.
func (p *pool) acquire() (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "fetcher is closed")
	}
	if reason := p.due(); reason != "" {
		p.recycle(reason)
	}
	p.current.inflight++
	return p.current, nil
}

// release records the outcome of one page load. Outcomes on a session that
// has since been replaced only count towards shutting it down.
func (p *pool) release(s *session, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.inflight--
	if s != p.current {
		if s.retired && s.inflight == 0 {
			s.kill()
		}
		return
	}
	p.pages++
	if ok {
		p.failures = 0
	} else {
		p.failures++
	}
}

func (p *pool) due() string {
	switch {
	case p.recycleAfter > 0 && p.pages >= p.recycleAfter:
		return "page limit"
	case p.failureLimit > 0 && p.failures >= p.failureLimit:
		return "consecutive failures"
	default:
		return ""
	}
}

// recycle swaps in a fresh session. If the launch fails the current session
// is kept and the swap is retried on the next acquire.
// Must be called with mu held.
func (p *pool) recycle(reason string) {
	next, err := p.launch()
	if err != nil {
		p.logger.Warn("browser relaunch failed, keeping current browser", "reason", reason, "err", err)
		return
	}

	old := p.current
	p.current = next
	p.pages, p.failures = 0, 0
	p.recycles++
	p.logger.Info("browser recycled", "reason", reason, "recycles", p.recycles)

	old.retired = true
	if old.inflight == 0 {
		old.kill()
	}
}

// Recycles reports how many times the browser has been replaced.
func (p *pool) Recycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recycles
}

// close shuts down the current session. Pages still loading on it fail.
func (p *pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.current.kill()
}

// launchChrome starts headless Chrome with flags that keep background
// article tabs from being throttled.
func launchChrome() (*session, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(true)

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	return &session{
		browser: browser,
		kill: func() {
			_ = browser.Close()
			l.Kill()
		},
	}, nil
}
