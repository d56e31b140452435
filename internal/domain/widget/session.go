package widget

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/geometry"
	"github.com/GriffinCanCode/chatbubble/internal/shared/id"
)

// EventType names a signal forwarded from the host page
type EventType string

const (
	EventMount       EventType = "mount"
	EventUnmount     EventType = "unmount"
	EventHover       EventType = "hover"
	EventToggle      EventType = "toggle"
	EventKeyDown     EventType = "keydown"
	EventPointerDown EventType = "pointerdown"
	EventPointerMove EventType = "pointermove"
	EventPointerUp   EventType = "pointerup"
	EventViewport    EventType = "viewport"
	EventTrigger     EventType = "trigger"
	EventLoad        EventType = "load"
	EventError       EventType = "error"
	EventOnline      EventType = "online"
	EventOffline     EventType = "offline"
	EventRetry       EventType = "retry"
	EventRenderError EventType = "render_error"
)

// Event is one host page signal
type Event struct {
	Type    EventType      `json:"type"`
	Key     string         `json:"key,omitempty"`
	Point   geometry.Point `json:"point"`
	Rect    geometry.Rect  `json:"rect"`
	URL     string         `json:"url,omitempty"`
	Message string         `json:"message,omitempty"`
	Stack   string         `json:"stack,omitempty"`
}

type drag struct {
	origin  geometry.Point
	initial geometry.Geometry
	latest  geometry.Point
	cancel  func()
}

// Session is the server side of one mounted widget: it owns the frame
// controller, the window geometry and the open/closed state, and turns
// host page events into render snapshots.
type Session struct {
	id        id.SessionID
	opts      Options
	layout    geometry.Layout
	ctrl      *frame.Controller
	measurer  Measurer
	sink      *Measurements
	scheduler Scheduler
	logger    *zap.Logger

	mu           sync.Mutex
	mounted      bool
	closed       bool
	fatal        bool
	open         bool
	geom         geometry.Geometry
	drag         *drag
	announcement string
	focus        Focus
	seq          uint64
	resizes      int

	renderMu      sync.Mutex
	renderPending bool
	renderClosed  bool
	renderCancel  func()
}

// NewSession creates an unmounted session
func NewSession(opts Options) (*Session, error) {
	if opts.Frame == nil {
		return nil, errors.New("widget: frame is required")
	}
	if opts.Layout == (geometry.Layout{}) {
		opts.Layout = geometry.DefaultLayout()
	}
	if opts.Copy == (Copy{}) {
		opts.Copy = DefaultCopy()
	}
	if opts.Clock == nil {
		opts.Clock = frame.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{
		id:     id.NewSessionID(),
		opts:   opts,
		layout: opts.Layout,
	}
	s.logger = opts.Logger.Named("widget").With(zap.String("session_id", s.id.String()))

	s.scheduler = opts.Scheduler
	if s.scheduler == nil {
		s.scheduler = NewFrameScheduler(opts.Clock, opts.FrameInterval)
	}
	s.measurer = opts.Measurer
	if s.measurer == nil {
		s.sink = NewMeasurements(opts.Layout, geometry.Viewport(1280, 800))
		s.measurer = s.sink
	} else if m, ok := opts.Measurer.(*Measurements); ok {
		s.sink = m
	}

	settings := opts.Reliability
	notify := settings.OnStateChange
	settings.OnStateChange = func(from, to frame.State, retries int) {
		if notify != nil {
			notify(from, to, retries)
		}
		s.requestRender()
	}
	if settings.Logger == nil {
		settings.Logger = s.logger
	}
	s.ctrl = frame.New(opts.Frame, opts.Clock, settings)

	return s, nil
}

// ID returns the session ID
func (s *Session) ID() id.SessionID {
	return s.id
}

// Controller exposes the frame controller
func (s *Session) Controller() *frame.Controller {
	return s.ctrl
}

// Resizes returns how many geometry computations drags have triggered
func (s *Session) Resizes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resizes
}

// Handle dispatches an event by type
func (s *Session) Handle(ev Event) error {
	if s.isClosed() {
		return ErrSessionClosed
	}

	switch ev.Type {
	case EventMount:
		s.Mount()
	case EventUnmount:
		s.Unmount()
	case EventHover:
		s.HoverEnter()
	case EventToggle:
		s.Toggle()
	case EventKeyDown:
		s.KeyDown(ev.Key)
	case EventPointerDown:
		s.PointerDown(ev.Point)
	case EventPointerMove:
		s.PointerMove(ev.Point)
	case EventPointerUp:
		s.PointerUp()
	case EventViewport:
		s.ViewportChanged(ev.Rect)
	case EventTrigger:
		s.TriggerMeasured(ev.Rect)
	case EventLoad:
		s.FrameLoaded(ev.URL)
	case EventError:
		s.FrameFailed()
	case EventOnline:
		s.Online()
	case EventOffline:
		s.Offline()
	case EventRetry:
		s.Retry()
	case EventRenderError:
		s.RenderFailed(ev.Message, ev.Stack)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

// Mount registers the session with the host page and applies the preload policy
func (s *Session) Mount() {
	s.run(EventMount, true, func() {
		if s.mounted {
			return
		}
		s.mounted = true
		s.ctrl.Mount()
		if s.opts.Preload == PreloadOnMount {
			s.ctrl.Preload()
		}
		s.logger.Info("Widget mounted", zap.Stringer("preload", s.opts.Preload))
	})
}

// Unmount detaches from the host page and cancels everything pending
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mounted {
		return
	}
	s.cancelDrag()
	s.ctrl.Unmount()
	s.mounted = false
	s.open = false
	s.announcement = ""
	s.logger.Info("Widget unmounted")
}

// Close unmounts and stops rendering. Later events return ErrSessionClosed.
func (s *Session) Close() error {
	s.Unmount()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.renderClosed = true
	if s.renderCancel != nil {
		s.renderCancel()
		s.renderCancel = nil
	}
	s.renderPending = false
	return nil
}

// HoverEnter starts preloading under the hover policy
func (s *Session) HoverEnter() {
	s.run(EventHover, false, func() {
		if s.opts.Preload == PreloadOnHover {
			s.ctrl.Preload()
		}
	})
}

// Toggle opens or closes the window
func (s *Session) Toggle() {
	s.run(EventToggle, false, func() {
		s.setOpen(!s.open)
	})
}

// KeyDown closes the window on Escape
func (s *Session) KeyDown(key string) {
	s.run(EventKeyDown, false, func() {
		if key == "Escape" && s.open {
			s.setOpen(false)
		}
	})
}

// PointerDown starts a resize from the top-left handle
func (s *Session) PointerDown(p geometry.Point) {
	s.run(EventPointerDown, false, func() {
		if !s.open {
			return
		}
		s.cancelDrag()
		s.drag = &drag{origin: p, initial: s.geom, latest: p}
	})
}

// PointerMove records the latest pointer sample. At most one geometry
// computation runs per display frame, using the newest sample.
func (s *Session) PointerMove(p geometry.Point) {
	s.run(EventPointerMove, false, func() {
		if s.drag == nil {
			return
		}
		s.drag.latest = p
		if s.drag.cancel == nil {
			s.drag.cancel = s.scheduler.RequestFrame(s.applyDrag)
		}
	})
}

// PointerUp ends the resize, dropping any computation still pending
func (s *Session) PointerUp() {
	s.run(EventPointerUp, false, func() {
		s.cancelDrag()
	})
}

// ViewportChanged re-fits the window to a resized viewport
func (s *Session) ViewportChanged(r geometry.Rect) {
	s.run(EventViewport, false, func() {
		if s.sink != nil {
			s.sink.SetViewport(r)
		}
		s.refit()
	})
}

// TriggerMeasured records the trigger's bounding box
func (s *Session) TriggerMeasured(r geometry.Rect) {
	s.run(EventTrigger, false, func() {
		if s.sink != nil {
			s.sink.SetTrigger(r)
		}
		s.refit()
	})
}

// FrameLoaded reports the embedded document's load event
func (s *Session) FrameLoaded(url string) {
	s.run(EventLoad, false, func() {
		if url == frame.BlankURL {
			return
		}
		s.ctrl.LoadSucceeded()
	})
}

// FrameFailed reports the embedded document's error event
func (s *Session) FrameFailed() {
	s.run(EventError, false, func() {
		s.ctrl.LoadFailed()
	})
}

// Online reports restored connectivity
func (s *Session) Online() {
	s.run(EventOnline, false, func() {
		s.ctrl.Online()
	})
}

// Offline reports lost connectivity
func (s *Session) Offline() {
	s.run(EventOffline, false, func() {
		s.ctrl.Offline()
	})
}

// Retry is the error panel's "try again"
func (s *Session) Retry() {
	s.run(EventRetry, false, func() {
		s.ctrl.Retry()
	})
}

// RenderFailed records a rendering failure caught by the host page. The
// session shows the reload fallback from then on.
func (s *Session) RenderFailed(message, stack string) {
	s.run(EventRenderError, false, func() {
		if message == "" {
			message = "render failed"
		}
		s.failLocked(errors.New(message), map[string]string{
			"source": "client",
			"stack":  stack,
		})
	})
}

// Snapshot returns the current render state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// run executes fn under the session lock inside the failure boundary.
// Events are dropped once the session failed, closed or before mount.
func (s *Session) run(ev EventType, allowUnmounted bool, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.fatal || (!s.mounted && !allowUnmounted) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.failLocked(fmt.Errorf("panic handling %s: %v", ev, r), map[string]string{
				"source": "server",
				"event":  string(ev),
				"stack":  string(debug.Stack()),
			})
		}
	}()

	fn()
	s.requestRender()
}

func (s *Session) failLocked(err error, info map[string]string) {
	s.fatal = true
	s.cancelDrag()
	s.ctrl.Unmount()

	info["component"] = "ChatWidget"
	info["session_id"] = s.id.String()
	s.logger.Error("Chat widget failed", zap.Error(err), zap.String("source", info["source"]))
	if s.opts.Reporter != nil {
		s.opts.Reporter.Report(err, info)
	}
	s.requestRender()
}

func (s *Session) setOpen(open bool) {
	if open {
		s.geom = s.layout.Initial(s.measurer.Viewport(), s.measurer.Trigger())
		s.announcement = s.opts.Copy.OpenedNotice
		s.focus = FocusFrame
	} else {
		s.cancelDrag()
		s.announcement = ""
		s.focus = FocusTrigger
	}
	s.open = open
	s.ctrl.SetOpen(open)
}

func (s *Session) refit() {
	if !s.open {
		return
	}
	s.geom = s.layout.Fit(s.geom, s.measurer.Viewport(), s.measurer.Trigger())
}

func (s *Session) applyDrag() {
	s.run(EventPointerMove, false, func() {
		d := s.drag
		if d == nil {
			return
		}
		d.cancel = nil
		delta := geometry.Point{X: d.latest.X - d.origin.X, Y: d.latest.Y - d.origin.Y}
		s.geom = s.layout.Resize(delta, d.initial, s.measurer.Viewport(), s.measurer.Trigger())
		s.resizes++
	})
}

func (s *Session) cancelDrag() {
	if s.drag == nil {
		return
	}
	if s.drag.cancel != nil {
		s.drag.cancel()
	}
	s.drag = nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) snapshotLocked() Snapshot {
	status := s.ctrl.Status()
	c := s.opts.Copy

	snap := Snapshot{
		SessionID:    s.id.String(),
		Seq:          s.seq,
		Open:         s.open,
		Geometry:     s.geom,
		Status:       status,
		Surface:      status.Surface(),
		ToggleLabel:  c.OpenLabel,
		DialogLabel:  c.DialogLabel,
		Expanded:     s.open,
		Announcement: s.announcement,
		Focus:        s.focus,
		Resizing:     s.drag != nil,
	}
	if s.open {
		snap.ToggleLabel = c.CloseLabel
	}

	switch snap.Surface {
	case frame.SurfaceSpinner:
		snap.Message = c.LoadingText
	case frame.SurfaceErrorPanel:
		snap.Message = c.ExhaustedText
		snap.Action = c.RetryText
	}

	if s.fatal {
		snap.Fatal = true
		snap.Surface = frame.SurfaceHidden
		snap.Message = c.FatalText
		snap.Action = c.ReloadText
	}
	return snap
}

// requestRender schedules one snapshot push for the next frame
func (s *Session) requestRender() {
	if s.opts.OnChange == nil {
		return
	}

	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	if s.renderPending || s.renderClosed {
		return
	}
	s.renderPending = true
	s.renderCancel = s.scheduler.RequestFrame(s.flush)
}

func (s *Session) flush() {
	s.renderMu.Lock()
	if s.renderClosed {
		s.renderMu.Unlock()
		return
	}
	s.renderPending = false
	s.renderCancel = nil
	s.renderMu.Unlock()

	s.mu.Lock()
	s.seq++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.opts.OnChange(snap)
}
