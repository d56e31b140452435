package ws

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/chatbubble/internal/domain/widget"
)

// Outbound message types
const (
	TypeSession  = "session"
	TypeSnapshot = "snapshot"
	TypeNavigate = "navigate"
	TypeError    = "error"
	TypePong     = "pong"
)

// typePing keeps idle connections alive through intermediaries that ignore
// protocol-level pings.
const typePing = "ping"

// Message is one server-to-client frame
type Message struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	URL       string           `json:"url,omitempty"`
	Snapshot  *widget.Snapshot `json:"snapshot,omitempty"`
	Message   string           `json:"message,omitempty"`
}

var api = sonic.ConfigStd

// decodeEvent parses one inbound frame.
func decodeEvent(data []byte) (widget.Event, error) {
	var ev widget.Event
	if err := api.Unmarshal(data, &ev); err != nil {
		return widget.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return widget.Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}

// encodeMessage serialises one outbound frame.
func encodeMessage(m Message) ([]byte, error) {
	return api.Marshal(m)
}
