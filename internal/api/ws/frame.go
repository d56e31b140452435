package ws

import "github.com/GriffinCanCode/chatbubble/internal/domain/frame"

// remoteFrame is the browser's iframe seen from the server: navigating
// sends the page a command to point the iframe at url. The page answers
// with load/error events.
type remoteFrame struct {
	client *client
}

var _ frame.Frame = (*remoteFrame)(nil)

// Navigate implements frame.Frame. It only queues, so it is safe under the
// controller's lock.
func (f *remoteFrame) Navigate(url string) {
	f.client.enqueue(Message{Type: TypeNavigate, URL: url})
}
