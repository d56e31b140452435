package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/shared/id"
)

// Sources of a report
const (
	SourceClient = "client"
	SourceServer = "server"
)

const (
	maxMessageLen = 1024
	maxStackLen   = 16 * 1024
	maxFieldLen   = 512
	maxInfoFields = 32
)

var (
	ErrEmptyReport   = errors.New("report: message is required")
	ErrInvalidReport = errors.New("report: body is not a JSON object")
)

// Recorder counts reports; *monitoring.Metrics satisfies it.
type Recorder interface {
	RecordErrorReport(source string)
}

// Report is one rendering failure of the widget.
type Report struct {
	ID             id.ReportID       `json:"id"`
	Source         string            `json:"source"`
	Component      string            `json:"component"`
	Message        string            `json:"message"`
	Stack          string            `json:"stack,omitempty"`
	ComponentStack string            `json:"component_stack,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	PageURL        string            `json:"page_url,omitempty"`
	UserAgent      string            `json:"user_agent,omitempty"`
	Info           map[string]string `json:"info,omitempty"`
	ReceivedAt     time.Time         `json:"received_at"`
}

// Parse extracts a client report from a raw JSON body. Only known fields are
// read; everything under "info" is flattened to strings.
func Parse(body []byte) (Report, error) {
	if !gjson.ValidBytes(body) {
		return Report{}, ErrInvalidReport
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Report{}, ErrInvalidReport
	}

	r := Report{
		Source:         SourceClient,
		Component:      root.Get("component").String(),
		Message:        root.Get("message").String(),
		Stack:          root.Get("stack").String(),
		ComponentStack: root.Get("componentStack").String(),
		SessionID:      root.Get("session_id").String(),
		PageURL:        root.Get("url").String(),
	}
	if r.Message == "" {
		r.Message = root.Get("error.message").String()
	}
	if r.Stack == "" {
		r.Stack = root.Get("error.stack").String()
	}
	if r.ComponentStack == "" {
		r.ComponentStack = root.Get("info.componentStack").String()
	}

	if info := root.Get("info"); info.IsObject() {
		r.Info = make(map[string]string)
		info.ForEach(func(key, value gjson.Result) bool {
			if key.String() == "componentStack" {
				return true
			}
			r.Info[key.String()] = value.String()
			return len(r.Info) < maxInfoFields
		})
	}

	if strings.TrimSpace(r.Message) == "" {
		return Report{}, ErrEmptyReport
	}
	return r, nil
}

// Reporter is the error-tracking hook. It sanitises reports, assigns IDs,
// logs them and counts them.
type Reporter struct {
	logger   *zap.Logger
	recorder Recorder
	policy   *bluemonday.Policy
	now      func() time.Time
}

// NewReporter creates a reporter. recorder may be nil.
func NewReporter(logger *zap.Logger, recorder Recorder) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{
		logger:   logger.Named("report"),
		recorder: recorder,
		policy:   bluemonday.StrictPolicy(),
		now:      time.Now,
	}
}

// Submit records r and returns it as stored.
func (rp *Reporter) Submit(r Report) Report {
	r = rp.sanitize(r)
	r.ID = id.NewReportID()
	r.ReceivedAt = rp.now()
	if r.Component == "" {
		r.Component = "ChatWidget"
	}
	if r.Source == "" {
		r.Source = SourceClient
	}

	fields := []zap.Field{
		zap.String("report_id", r.ID.String()),
		zap.String("source", r.Source),
		zap.String("component", r.Component),
		zap.String("session_id", r.SessionID),
		zap.String("page_url", r.PageURL),
		zap.String("user_agent", r.UserAgent),
		zap.String("stack", r.Stack),
		zap.String("component_stack", r.ComponentStack),
	}
	if len(r.Info) > 0 {
		keys := make([]string, 0, len(r.Info))
		for k := range r.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fields = append(fields, zap.String("info."+k, r.Info[k]))
		}
	}
	rp.logger.Error("Chat Widget Error: "+r.Message, fields...)

	if rp.recorder != nil {
		rp.recorder.RecordErrorReport(r.Source)
	}
	return r
}

// Report implements widget.ErrorReporter for failures caught server side.
func (rp *Reporter) Report(err error, info map[string]string) {
	r := Report{
		Source:    SourceServer,
		Message:   fmt.Sprint(err),
		Component: info["component"],
		SessionID: info["session_id"],
		Stack:     info["stack"],
		Info:      make(map[string]string, len(info)),
	}
	if src := info["source"]; src != "" {
		r.Source = src
	}
	for k, v := range info {
		switch k {
		case "component", "session_id", "stack", "source":
		default:
			r.Info[k] = v
		}
	}
	rp.Submit(r)
}

// truncate cuts s to at most limit bytes without splitting a rune
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (rp *Reporter) sanitize(r Report) Report {
	clean := func(s string, max int) string {
		s = rp.policy.Sanitize(s)
		return truncate(s, max)
	}

	r.Source = clean(r.Source, 16)
	r.Component = clean(r.Component, maxFieldLen)
	r.Message = clean(r.Message, maxMessageLen)
	r.Stack = clean(r.Stack, maxStackLen)
	r.ComponentStack = clean(r.ComponentStack, maxStackLen)
	r.SessionID = clean(r.SessionID, maxFieldLen)
	r.PageURL = clean(r.PageURL, maxFieldLen)
	r.UserAgent = clean(r.UserAgent, maxFieldLen)
	if len(r.Info) > 0 {
		info := make(map[string]string, len(r.Info))
		for k, v := range r.Info {
			info[clean(k, 64)] = clean(v, maxFieldLen)
		}
		r.Info = info
	}
	return r
}
