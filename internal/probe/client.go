package probe

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const userAgent = "chatbubble-probe/1.0"

// ClientConfig configures the HTTP clients used by the probe.
type ClientConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
	// Retries bounds readiness-check attempts. Document loads never retry
	// here; the frame controller owns that policy.
	Retries  int
	RetryMin time.Duration
	RetryMax time.Duration
	Logger   *zap.Logger
}

// DefaultClientConfig returns the stock probe client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:  10 * time.Second,
		Retries:  2,
		RetryMin: 200 * time.Millisecond,
		RetryMax: 2 * time.Second,
	}
}

// newRetryClient builds the pooled retryablehttp client both probes share a
// transport with.
func newRetryClient(cfg ClientConfig) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Retries
	rc.RetryWaitMin = cfg.RetryMin
	rc.RetryWaitMax = cfg.RetryMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Logger != nil {
		rc.Logger = leveledLogger{cfg.Logger.Sugar()}
	} else {
		rc.Logger = nil
	}
	if cfg.InsecureSkipVerify {
		if tr, ok := rc.HTTPClient.Transport.(*http.Transport); ok {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	return rc
}

// newRestyClient returns a resty client on the retry client's pooled
// transport with resty's own retries off.
func newRestyClient(cfg ClientConfig, rc *retryablehttp.Client) *resty.Client {
	return resty.New().
		SetTransport(rc.HTTPClient.Transport).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
