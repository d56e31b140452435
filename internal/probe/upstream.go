package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/resilience"
)

// UpstreamStatus is the outcome of a readiness check.
type UpstreamStatus struct {
	Origin    string        `json:"origin"`
	Reachable bool          `json:"reachable"`
	Status    int           `json:"status,omitempty"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// Checker probes the upstream origin for readiness.
type Checker struct {
	client *retryablehttp.Client
}

// NewChecker creates a readiness checker.
func NewChecker(cfg ClientConfig) *Checker {
	return &Checker{client: newRetryClient(cfg)}
}

// Upstream issues a GET against origin. Any response below 500 counts as
// reachable: the origin answered, even if it wants a different path.
func (c *Checker) Upstream(ctx context.Context, origin string) (UpstreamStatus, error) {
	st := UpstreamStatus{Origin: origin}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return st, fmt.Errorf("probe: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	st.Latency = time.Since(start)
	if err != nil {
		st.Error = err.Error()
		return st, nil
	}
	defer resp.Body.Close()

	st.Status = resp.StatusCode
	st.Reachable = resp.StatusCode < http.StatusInternalServerError
	if !st.Reachable {
		st.Error = resp.Status
	}
	return st, nil
}

// errUnreachable marks a check that answered but not healthily
var errUnreachable = errors.New("upstream unreachable")

// GuardedChecker stops probing an origin that keeps failing. While the
// breaker is open it answers unreachable without touching the network.
type GuardedChecker struct {
	checker *Checker
	breaker *resilience.Breaker
}

// NewGuardedChecker wraps checker with breaker.
func NewGuardedChecker(checker *Checker, breaker *resilience.Breaker) *GuardedChecker {
	return &GuardedChecker{checker: checker, breaker: breaker}
}

// Upstream checks origin through the breaker.
func (g *GuardedChecker) Upstream(ctx context.Context, origin string) (UpstreamStatus, error) {
	var (
		st       UpstreamStatus
		buildErr error
	)
	err := g.breaker.Do(func() error {
		st, buildErr = g.checker.Upstream(ctx, origin)
		if buildErr == nil && !st.Reachable {
			return errUnreachable
		}
		return buildErr
	})
	if errors.Is(err, resilience.ErrOpen) {
		return UpstreamStatus{Origin: origin, Error: err.Error()}, nil
	}
	return st, buildErr
}
