/*
Package ws carries widget sessions over WebSocket.

Each connection gets its own widget.Session. The host page forwards DOM
signals as JSON events:

	{"type": "toggle"}
	{"type": "pointermove", "point": {"x": 412, "y": 230}}
	{"type": "viewport", "rect": {"left": 0, "top": 0, "right": 1280, "bottom": 800}}
	{"type": "load", "url": "/chat/KAqf6artL6k9TgtB"}

and receives:

	{"type": "session", "session_id": "sess_..."}
	{"type": "navigate", "url": "about:blank"}
	{"type": "snapshot", "snapshot": {...}}

Frames are encoded with sonic; writes are serialised through one write pump
per connection.
*/
package ws
