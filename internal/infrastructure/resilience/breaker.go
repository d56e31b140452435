package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without running the call while the breaker is open
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold int
	// Cooldown is how long the breaker stays open before one trial call
	Cooldown time.Duration
	// OnStateChange is called with the lock held whenever the state changes
	OnStateChange func(from, to State)
	// Now defaults to time.Now
	Now func() time.Time
}

// Breaker stops calling a dependency after repeated failures and lets a
// single trial call through once the cooldown has passed.
type Breaker struct {
	settings Settings

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// New creates a new circuit breaker with the given settings
func New(settings Settings) *Breaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 3
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &Breaker{settings: settings}
}

// State returns the current state, moving Open to HalfOpen once the
// cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Failures returns the current run of consecutive failures
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Do runs fn unless the breaker is open. While half-open only one caller
// runs fn; the rest get ErrOpen until it reports back.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	var ok bool
	defer func() { b.after(ok) }()

	err := fn()
	ok = err == nil
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.trial {
			return ErrOpen
		}
		b.trial = true
	}
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.currentLocked()
	if state == StateHalfOpen {
		b.trial = false
	}

	if success {
		b.failures = 0
		b.setLocked(StateClosed)
		return
	}

	b.failures++
	if state == StateHalfOpen || b.failures >= b.settings.Threshold {
		b.openedAt = b.settings.Now()
		b.setLocked(StateOpen)
	}
}

func (b *Breaker) currentLocked() State {
	if b.state == StateOpen && b.settings.Now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(from, to)
	}
}
