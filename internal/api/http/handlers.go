package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/geometry"
	"github.com/GriffinCanCode/chatbubble/internal/domain/widget"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatbubble/internal/probe"
	"github.com/GriffinCanCode/chatbubble/internal/report"
)

const maxReportBytes = 64 << 10

// UpstreamChecker probes the chat origin; *probe.Checker satisfies it.
type UpstreamChecker interface {
	Upstream(ctx context.Context, origin string) (probe.UpstreamStatus, error)
}

// Reliability is the retry policy the client mirrors.
type Reliability struct {
	LoadTimeoutMs int64 `json:"load_timeout_ms"`
	MaxRetries    int   `json:"max_retries"`
	BackoffBaseMs int64 `json:"backoff_base_ms"`
	ReloadDelayMs int64 `json:"reload_delay_ms"`
}

// ReliabilityFrom converts controller settings for the wire.
func ReliabilityFrom(s frame.Settings) Reliability {
	return Reliability{
		LoadTimeoutMs: s.LoadTimeout.Milliseconds(),
		MaxRetries:    s.MaxRetries,
		BackoffBaseMs: s.BackoffBase.Milliseconds(),
		ReloadDelayMs: s.ReloadDelay.Milliseconds(),
	}
}

// WidgetConfig is everything a host page needs to render the shell.
type WidgetConfig struct {
	ChatURL         string          `json:"chat_url"`
	Preload         string          `json:"preload"`
	Layout          geometry.Layout `json:"layout"`
	Reliability     Reliability     `json:"reliability"`
	Copy            widget.Copy     `json:"copy"`
	FrameIntervalMs int64           `json:"frame_interval_ms"`
	SessionPath     string          `json:"session_path"`
}

// Options wires the handlers.
type Options struct {
	Widget   WidgetConfig
	Origin   string
	Checker  UpstreamChecker
	Reporter *report.Reporter
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger
	// DeepTimeout bounds /health?deep=1
	DeepTimeout time.Duration
}

// Handlers serves the widget's HTTP surface
type Handlers struct {
	opts    Options
	logger  *zap.Logger
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Reporter == nil {
		var rec report.Recorder
		if opts.Metrics != nil {
			rec = opts.Metrics
		}
		opts.Reporter = report.NewReporter(opts.Logger, rec)
	}
	if opts.DeepTimeout <= 0 {
		opts.DeepTimeout = 5 * time.Second
	}
	return &Handlers{
		opts:    opts,
		logger:  opts.Logger.Named("api"),
		started: time.Now(),
	}
}

// Register mounts the handlers on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/widget/config", h.Config)
	r.POST("/widget/errors", h.ReportError)
	if h.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.opts.Metrics.Handler()))
		r.GET("/metrics/json", h.MetricsJSON)
	}
}

// Health returns service health. With ?deep=1 the upstream origin is probed
// and an unreachable origin turns the response into 503.
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.started).Seconds(),
		"upstream":       h.opts.Origin,
	}

	if c.Query("deep") == "" || c.Query("deep") == "0" || h.opts.Checker == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.opts.DeepTimeout)
	defer cancel()

	timer := monitoring.NewTimer(h.opts.Metrics)
	st, err := h.opts.Checker.Upstream(ctx, h.opts.Origin)
	if err != nil {
		timer.Stop("error")
		h.logger.Error("Upstream check failed", zap.Error(err))
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["upstream_check"] = st
	if !st.Reachable {
		timer.Stop("unreachable")
		h.logger.Warn("Upstream unreachable",
			zap.String("origin", st.Origin),
			zap.Int("status", st.Status),
			zap.String("error", st.Error))
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	timer.Stop("ok")
	c.JSON(http.StatusOK, body)
}

// Config returns the widget configuration for the host page
func (h *Handlers) Config(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, h.opts.Widget)
}

// ReportError receives rendering failures caught by the host page
func (h *Handlers) ReportError(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxReportBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read report"})
		return
	}
	if len(raw) > maxReportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Report too large"})
		return
	}

	r, err := report.Parse(raw)
	if err != nil {
		msg := "Invalid report format"
		if errors.Is(err, report.ErrEmptyReport) {
			msg = "Report message is required"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	r.UserAgent = c.Request.UserAgent()
	if r.PageURL == "" {
		r.PageURL = c.Request.Referer()
	}

	stored := h.opts.Reporter.Submit(r)
	c.JSON(http.StatusAccepted, gin.H{
		"success":   true,
		"report_id": stored.ID,
	})
}

// MetricsJSON returns the metrics snapshot as JSON
func (h *Handlers) MetricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, h.opts.Metrics.Snapshot())
}
