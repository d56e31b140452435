package frame

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// BlankURL is the neutral document used to force a genuine reload
const BlankURL = "about:blank"

// Frame points the embedded browsing context at a URL. Implementations are
// called with the controller's lock held and must not call back into it
// synchronously.
type Frame interface {
	Navigate(url string)
}

// Timer is a cancelable scheduled callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock schedules on the runtime timer heap
type SystemClock struct{}

// AfterFunc wraps time.AfterFunc
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Settings configures the controller
type Settings struct {
	// TargetURL is the session-scoped chat document
	TargetURL string
	// LoadTimeout bounds a load that never signals success or error
	LoadTimeout time.Duration
	// MaxRetries caps automatic reloads before the manual retry panel
	MaxRetries int
	// BackoffBase is the delay before the first retry; each retry doubles it
	BackoffBase time.Duration
	// ReloadDelay is how long the blank document stays before the target returns
	ReloadDelay time.Duration
	// OnStateChange is called on every transition, with the lock held
	OnStateChange func(from, to State, retryCount int)
	Logger        *zap.Logger
}

// DefaultSettings returns the stock reliability policy for url
func DefaultSettings(url string) Settings {
	return Settings{
		TargetURL:   url,
		LoadTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: time.Second,
		ReloadDelay: 10 * time.Millisecond,
	}
}

// handle pairs a scheduled timer with the generation it was armed under
type handle struct {
	timer Timer
	seq   uint64
}

// Controller owns the embedded context's lifecycle: preloading, timeout
// detection, exponential-backoff retries and connectivity recovery.
type Controller struct {
	frame    Frame
	clock    Clock
	settings Settings
	logger   *zap.Logger

	mu         sync.Mutex
	state      State
	retryCount int
	open       bool
	offline    bool
	mounted    bool
	seq        uint64

	timeout *handle
	backoff *handle
	reload  *handle
}

// New creates a controller in the Idle state
func New(frame Frame, clock Clock, settings Settings) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if settings.LoadTimeout == 0 {
		settings.LoadTimeout = 10 * time.Second
	}
	if settings.MaxRetries < 0 {
		settings.MaxRetries = 0
	}
	if settings.BackoffBase == 0 {
		settings.BackoffBase = time.Second
	}
	if settings.ReloadDelay == 0 {
		settings.ReloadDelay = 10 * time.Millisecond
	}
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		frame:    frame,
		clock:    clock,
		settings: settings,
		logger:   logger.Named("frame"),
		state:    StateIdle,
	}
}

// Settings returns the effective settings
func (c *Controller) Settings() Settings {
	return c.settings
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the number of failed attempts since the last reset
func (c *Controller) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Status returns a snapshot for rendering
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	exhausted := c.state == StateError && c.retryCount >= c.settings.MaxRetries
	loading := c.open && (c.state == StatePreloading || (c.state == StateError && !exhausted))

	return Status{
		State:            c.state,
		RetryCount:       c.retryCount,
		Open:             c.open,
		Offline:          c.offline,
		Loading:          loading,
		Error:            c.state == StateError,
		RetriesExhausted: exhausted,
	}
}

// Mount attaches the controller. Events before Mount and after Unmount are ignored.
func (c *Controller) Mount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mounted = true
}

// Preload starts loading the target in the background; used on mount or
// on the first hover, whichever comes first.
func (c *Controller) Preload() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted || c.state != StateIdle {
		return
	}
	c.logger.Debug("Starting preload", zap.String("url", c.settings.TargetURL))
	c.enterPreloading(false)
}

// SetOpen records whether the user has the window open. Opening while idle
// starts the load; otherwise opening never transitions.
func (c *Controller) SetOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = open
	if open && c.mounted && c.state == StateIdle {
		c.enterPreloading(false)
	}
}

// LoadSucceeded handles the embedded document's load event
func (c *Controller) LoadSucceeded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The blank document of a forced reload also fires load; ignore it.
	if !c.mounted || c.state != StatePreloading || c.reload != nil {
		return
	}

	c.cancel(&c.timeout)
	c.retryCount = 0
	c.setState(StateReady)
	c.logger.Debug("Frame ready")
}

// LoadFailed handles the embedded document's error event
func (c *Controller) LoadFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted || c.offline {
		return
	}
	if c.state != StatePreloading && c.state != StateReady {
		return
	}
	c.fail("load error")
}

// Online handles connectivity restoration: recover at once, skipping backoff
func (c *Controller) Online() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.offline = false
	if !c.mounted || c.state != StateError {
		return
	}

	c.logger.Info("Connection restored, reloading frame")
	c.cancelAll()
	c.retryCount = 0
	c.enterPreloading(true)
}

// Offline handles connectivity loss without consuming retry budget
func (c *Controller) Offline() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted {
		return
	}

	c.logger.Warn("Connection lost")
	c.offline = true
	c.cancelAll()
	c.setState(StateError)
}

// Retry is the manual "try again" affordance
func (c *Controller) Retry() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.mounted || c.state != StateError {
		return
	}

	c.cancelAll()
	c.retryCount = 0
	c.enterPreloading(true)
}

// Unmount cancels every pending timer and detaches the controller
func (c *Controller) Unmount() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelAll()
	c.mounted = false
	c.open = false
	c.offline = false
	c.retryCount = 0
	c.setState(StateIdle)
}

// fail records a failed attempt and schedules the next one if budget remains
func (c *Controller) fail(reason string) {
	c.cancel(&c.timeout)
	c.cancel(&c.reload)

	if c.retryCount < c.settings.MaxRetries {
		c.retryCount++
	}
	c.setState(StateError)

	if c.retryCount >= c.settings.MaxRetries {
		c.logger.Warn("Frame retries exhausted",
			zap.String("reason", reason),
			zap.Int("retries", c.retryCount),
		)
		return
	}

	delay := c.backoffDelay(c.retryCount)
	c.logger.Info("Frame load failed, retrying",
		zap.String("reason", reason),
		zap.Int("attempt", c.retryCount),
		zap.Int("max_retries", c.settings.MaxRetries),
		zap.Duration("delay", delay),
	)
	c.schedule(&c.backoff, delay, func() {
		c.enterPreloading(true)
	})
}

// backoffDelay doubles the base delay per failed attempt: 1s, 2s, 4s...
func (c *Controller) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return c.settings.BackoffBase << uint(attempt-1)
}

// enterPreloading moves to Preloading and arms the load timeout. A reload
// parks the context on the blank document first so that an unchanged URL
// still produces a fresh load.
func (c *Controller) enterPreloading(reload bool) {
	c.setState(StatePreloading)

	c.schedule(&c.timeout, c.settings.LoadTimeout, func() {
		if c.state == StatePreloading {
			c.fail("timeout")
		}
	})

	if !reload {
		c.frame.Navigate(c.settings.TargetURL)
		return
	}

	c.frame.Navigate(BlankURL)
	c.schedule(&c.reload, c.settings.ReloadDelay, func() {
		c.frame.Navigate(c.settings.TargetURL)
	})
}

// schedule arms fn on slot, replacing whatever was there. A timer that
// fires after being superseded finds a different generation and does nothing.
func (c *Controller) schedule(slot **handle, d time.Duration, fn func()) {
	c.cancel(slot)

	c.seq++
	h := &handle{seq: c.seq}
	*slot = h
	h.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if *slot != h || !c.mounted {
			return
		}
		*slot = nil
		fn()
	})
}

func (c *Controller) cancel(slot **handle) {
	if *slot == nil {
		return
	}
	(*slot).timer.Stop()
	*slot = nil
}

func (c *Controller) cancelAll() {
	c.cancel(&c.timeout)
	c.cancel(&c.backoff)
	c.cancel(&c.reload)
}

func (c *Controller) setState(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.settings.OnStateChange != nil {
		c.settings.OnStateChange(from, to, c.retryCount)
	}
}
