package widget

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/geometry"
)

// DefaultFrameInterval approximates a 60Hz display
const DefaultFrameInterval = 16 * time.Millisecond

// FrameScheduler runs callbacks one display frame later on a Clock
type FrameScheduler struct {
	clock    frame.Clock
	interval time.Duration
}

// NewFrameScheduler creates a scheduler ticking every interval
func NewFrameScheduler(clock frame.Clock, interval time.Duration) *FrameScheduler {
	if clock == nil {
		clock = frame.SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FrameScheduler{clock: clock, interval: interval}
}

// RequestFrame schedules fn for the next frame
func (s *FrameScheduler) RequestFrame(fn func()) func() {
	t := s.clock.AfterFunc(s.interval, fn)
	return func() { t.Stop() }
}

// Measurements is a Measurer fed by the host page's reports. Until the
// trigger has been measured it is assumed pinned to the bottom-right margin.
type Measurements struct {
	layout geometry.Layout

	mu       sync.RWMutex
	viewport geometry.Rect
	trigger  geometry.Rect
}

// NewMeasurements starts from the given viewport
func NewMeasurements(layout geometry.Layout, viewport geometry.Rect) *Measurements {
	return &Measurements{layout: layout, viewport: viewport}
}

// SetViewport records a new viewport
func (m *Measurements) SetViewport(r geometry.Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewport = r
}

// SetTrigger records the trigger's bounding box
func (m *Measurements) SetTrigger(r geometry.Rect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = r
}

// Viewport implements Measurer
func (m *Measurements) Viewport() geometry.Rect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewport
}

// Trigger implements Measurer
func (m *Measurements) Trigger() geometry.Rect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.trigger.IsZero() {
		return m.layout.TriggerRect(m.viewport)
	}
	return m.trigger
}
