package widget

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/geometry"
)

var ErrSessionClosed = errors.New("widget session closed")

// PreloadPolicy decides when the embedded document starts loading
type PreloadPolicy int

const (
	// PreloadOnMount starts loading as soon as the widget mounts
	PreloadOnMount PreloadPolicy = iota
	// PreloadOnHover waits for the first hover over the trigger
	PreloadOnHover
)

// String returns the string representation of the policy
func (p PreloadPolicy) String() string {
	switch p {
	case PreloadOnMount:
		return "mount"
	case PreloadOnHover:
		return "hover"
	default:
		return "unknown"
	}
}

// ParsePreloadPolicy parses "mount" or "hover"
func ParsePreloadPolicy(s string) (PreloadPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mount":
		return PreloadOnMount, nil
	case "hover":
		return PreloadOnHover, nil
	default:
		return PreloadOnMount, fmt.Errorf("unknown preload policy %q", s)
	}
}

// Focus names the element that should hold keyboard focus
type Focus string

const (
	FocusNone    Focus = ""
	FocusFrame   Focus = "frame"
	FocusTrigger Focus = "trigger"
)

// Measurer reports the host page's current layout
type Measurer interface {
	Viewport() geometry.Rect
	Trigger() geometry.Rect
}

// ErrorReporter receives rendering failures
type ErrorReporter interface {
	Report(err error, info map[string]string)
}

// Scheduler runs a callback on the next display frame
type Scheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// Copy holds the user-facing strings of the shell
type Copy struct {
	OpenLabel     string `json:"open_label"`
	CloseLabel    string `json:"close_label"`
	DialogLabel   string `json:"dialog_label"`
	OpenedNotice  string `json:"opened_notice"`
	LoadingText   string `json:"loading_text"`
	ExhaustedText string `json:"exhausted_text"`
	RetryText     string `json:"retry_text"`
	FatalText     string `json:"fatal_text"`
	ReloadText    string `json:"reload_text"`
}

// DefaultCopy returns the stock English strings
func DefaultCopy() Copy {
	return Copy{
		OpenLabel:     "Open chat",
		CloseLabel:    "Close chat",
		DialogLabel:   "Chat window",
		OpenedNotice:  "Chat opened",
		LoadingText:   "Loading chat...",
		ExhaustedText: "Unable to connect to chat service.",
		RetryText:     "Try Again",
		FatalText:     "Unable to load chat. Please refresh the page.",
		ReloadText:    "Refresh",
	}
}

// Options configures a Session
type Options struct {
	Layout geometry.Layout
	// Frame is the embedded browsing context the controller navigates
	Frame       frame.Frame
	Reliability frame.Settings
	Preload     PreloadPolicy
	Copy        Copy
	Clock       frame.Clock
	Scheduler   Scheduler
	Measurer    Measurer
	Reporter    ErrorReporter
	Logger      *zap.Logger
	// FrameInterval is the display-frame period used when Scheduler is nil
	FrameInterval time.Duration
	// OnChange receives a snapshot at most once per display frame after
	// anything visible changed
	OnChange func(Snapshot)
}

// Snapshot is the render state of the shell
type Snapshot struct {
	SessionID    string            `json:"session_id"`
	Seq          uint64            `json:"seq"`
	Open         bool              `json:"open"`
	Geometry     geometry.Geometry `json:"geometry"`
	Surface      frame.Surface     `json:"surface"`
	Status       frame.Status      `json:"status"`
	ToggleLabel  string            `json:"toggle_label"`
	DialogLabel  string            `json:"dialog_label"`
	Expanded     bool              `json:"expanded"`
	Announcement string            `json:"announcement"`
	Message      string            `json:"message,omitempty"`
	Action       string            `json:"action,omitempty"`
	Focus        Focus             `json:"focus,omitempty"`
	Resizing     bool              `json:"resizing"`
	Fatal        bool              `json:"fatal"`
}
