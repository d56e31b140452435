package probe

import (
	"context"
	"sync"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatbubble/internal/domain/frame"
)

// LoadListener receives the outcome of a navigation. *frame.Controller
// satisfies it.
type LoadListener interface {
	LoadSucceeded()
	LoadFailed()
}

// HTTPFrame is a headless frame.Frame: navigating fetches the document over
// HTTP and reports the outcome asynchronously. A new navigation supersedes the
// one in flight, the way a browser abandons a load when the src changes.
type HTTPFrame struct {
	client *resty.Client
	logger *zap.Logger

	mu       sync.Mutex
	listener LoadListener
	cancel   context.CancelFunc
	gen      uint64
	closed   bool
	wg       sync.WaitGroup
}

// NewHTTPFrame creates a headless frame.
func NewHTTPFrame(cfg ClientConfig) *HTTPFrame {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFrame{
		client: newRestyClient(cfg, newRetryClient(cfg)),
		logger: logger.Named("probe"),
	}
}

// Attach sets who hears about load outcomes.
func (f *HTTPFrame) Attach(l LoadListener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

// Navigate implements frame.Frame. It never blocks on the network.
func (f *HTTPFrame) Navigate(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.gen++
	if f.closed || url == frame.BlankURL {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	gen := f.gen

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer cancel()
		f.fetch(ctx, gen, url)
	}()
}

func (f *HTTPFrame) fetch(ctx context.Context, gen uint64, url string) {
	resp, err := f.client.R().SetContext(ctx).Get(url)

	f.mu.Lock()
	current := gen == f.gen && !f.closed
	listener := f.listener
	f.mu.Unlock()

	if !current || listener == nil {
		return
	}

	switch {
	case err != nil:
		f.logger.Debug("document load failed", zap.String("url", url), zap.Error(err))
		listener.LoadFailed()
	case resp.IsError():
		f.logger.Debug("document load failed",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()))
		listener.LoadFailed()
	default:
		f.logger.Debug("document loaded",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()),
			zap.Duration("duration", resp.Time()))
		listener.LoadSucceeded()
	}
}

// Close abandons any load in flight and waits for it to unwind.
func (f *HTTPFrame) Close() {
	f.mu.Lock()
	f.closed = true
	f.gen++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.mu.Unlock()

	f.wg.Wait()
}
