package ws

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
	"github.com/GriffinCanCode/chatbubble/internal/domain/widget"
	"github.com/GriffinCanCode/chatbubble/internal/infrastructure/monitoring"
)

// Options configures the session endpoint
type Options struct {
	// Session is the template every connection's session is built from.
	// Frame and OnChange are filled in per connection.
	Session widget.Options
	// AllowOrigins restricts the Origin header; empty or "*" allows all.
	AllowOrigins []string
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
}

// Handler serves one widget session per WebSocket connection
type Handler struct {
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Handler{
		opts:   opts,
		logger: opts.Logger.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowOrigins) == 0 {
		return true
	}
	for _, allowed := range h.opts.AllowOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleConnection upgrades the request and runs the session until the
// peer disconnects. The session is mounted on connect and closed on
// disconnect.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := newClient(conn, h.logger)
	if h.opts.Metrics != nil {
		cl.onSend = func(msgType string) { h.opts.Metrics.RecordWSMessage("out", msgType) }
	}

	session, err := h.newSession(cl)
	if err != nil {
		h.logger.Error("Failed to create widget session", zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		conn.Close()
		return
	}

	logger := h.logger.With(zap.String("session_id", session.ID().String()))
	logger.Info("Widget session connected", zap.String("remote_addr", c.ClientIP()))

	if m := h.opts.Metrics; m != nil {
		m.IncWSConnections()
		m.IncSessionsActive()
		defer func() {
			m.DecSessionsActive()
			m.DecWSConnections()
		}()
	}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		cl.writePump()
	}()

	cl.enqueue(Message{Type: TypeSession, SessionID: session.ID().String()})
	session.Mount()

	cl.readPump(func(data []byte) bool {
		return h.dispatch(cl, session, logger, data)
	})

	_ = session.Close()
	cl.shutdown()
	<-pumpDone
	logger.Info("Widget session disconnected")
}

func (h *Handler) newSession(cl *client) (*widget.Session, error) {
	opts := h.opts.Session
	opts.Frame = &remoteFrame{client: cl}
	opts.OnChange = func(snap widget.Snapshot) {
		cl.enqueue(Message{Type: TypeSnapshot, Snapshot: &snap})
	}

	if m := h.opts.Metrics; m != nil {
		notify := opts.Reliability.OnStateChange
		opts.Reliability.OnStateChange = func(from, to frame.State, retries int) {
			if notify != nil {
				notify(from, to, retries)
			}
			m.RecordFrameTransition(from.String(), to.String())
		}
	}
	if opts.Logger == nil {
		opts.Logger = h.opts.Logger
	}
	return widget.NewSession(opts)
}

// dispatch handles one inbound frame; false ends the connection.
func (h *Handler) dispatch(cl *client, session *widget.Session, logger *zap.Logger, data []byte) bool {
	ev, err := decodeEvent(data)
	if err != nil {
		logger.Debug("Dropping malformed event", zap.Error(err))
		cl.enqueue(Message{Type: TypeError, Message: "malformed event"})
		return true
	}
	if h.opts.Metrics != nil {
		h.opts.Metrics.RecordWSMessage("in", string(ev.Type))
	}

	if ev.Type == typePing {
		cl.enqueue(Message{Type: TypePong})
		return true
	}

	if err := session.Handle(ev); err != nil {
		if errors.Is(err, widget.ErrSessionClosed) {
			return false
		}
		cl.enqueue(Message{Type: TypeError, Message: err.Error()})
	}
	return true
}
