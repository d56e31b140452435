package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
)

// Transition is one observed controller state change.
type Transition struct {
	From       frame.State   `json:"from"`
	To         frame.State   `json:"to"`
	RetryCount int           `json:"retry_count"`
	At         time.Duration `json:"at"`
}

// Result summarises a headless load.
type Result struct {
	URL         string        `json:"url"`
	State       frame.State   `json:"state"`
	RetryCount  int           `json:"retry_count"`
	Exhausted   bool          `json:"retries_exhausted"`
	Elapsed     time.Duration `json:"elapsed"`
	Transitions []Transition  `json:"transitions"`
}

// Ready reports whether the document eventually loaded.
func (r Result) Ready() bool {
	return r.State == frame.StateReady
}

// Run loads url through a real frame.Controller until the document is ready
// or automatic retries are exhausted. Cancelling ctx stops early with the
// state reached so far and ctx's error.
func Run(ctx context.Context, url string, settings frame.Settings, cfg ClientConfig) (Result, error) {
	if url == "" {
		return Result{}, fmt.Errorf("probe: empty url")
	}

	logger := settings.Logger
	if logger == nil {
		logger = cfg.Logger
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings.Logger = logger
	cfg.Logger = logger
	settings.TargetURL = url

	start := time.Now()

	var (
		mu          sync.Mutex
		transitions []Transition
		wake        = make(chan struct{}, 1)
	)

	user := settings.OnStateChange
	settings.OnStateChange = func(from, to frame.State, retryCount int) {
		if user != nil {
			user(from, to, retryCount)
		}
		mu.Lock()
		transitions = append(transitions, Transition{From: from, To: to, RetryCount: retryCount, At: time.Since(start)})
		mu.Unlock()
		// Runs under the controller lock; never block here.
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	f := NewHTTPFrame(cfg)
	ctrl := frame.New(f, frame.SystemClock{}, settings)
	f.Attach(ctrl)

	defer func() {
		ctrl.Unmount()
		f.Close()
	}()

	ctrl.Mount()
	ctrl.Preload()

	result := Result{URL: url}
	finish := func() {
		result.fill(ctrl.Status(), start)
		mu.Lock()
		result.Transitions = append([]Transition(nil), transitions...)
		mu.Unlock()
	}

	for {
		status := ctrl.Status()
		if status.State == frame.StateReady || status.RetriesExhausted {
			break
		}

		select {
		case <-wake:
		case <-ctx.Done():
			finish()
			return result, ctx.Err()
		}
	}

	finish()
	logger.Info("probe finished",
		zap.String("url", url),
		zap.Stringer("state", result.State),
		zap.Int("retry_count", result.RetryCount),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}

func (r *Result) fill(status frame.Status, start time.Time) {
	r.State = status.State
	r.RetryCount = status.RetryCount
	r.Exhausted = status.RetriesExhausted
	r.Elapsed = time.Since(start)
}
