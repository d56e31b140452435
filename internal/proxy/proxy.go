package proxy

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recorder receives per-request proxy observations
type Recorder interface {
	RecordProxyRequest(class string, status int, duration time.Duration)
	RecordUpstreamError()
}

// RequestHandler inspects or modifies a request before it is forwarded.
// A non-nil response short-circuits the upstream call.
type RequestHandler func(*http.Request, *goproxy.ProxyCtx) (*http.Request, *http.Response)

// ResponseHandler inspects or modifies an upstream response
type ResponseHandler func(*http.Response, *goproxy.ProxyCtx) *http.Response

// TransportConfig tunes the upstream connection pool
type TransportConfig struct {
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// NewTransport builds the upstream transport. Compression is disabled so
// the upstream is never asked for an encoded body.
func NewTransport(cfg TransportConfig) *http.Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		DisableCompression:    true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for local upstreams
		},
	}
}

// Option configures a Proxy
type Option func(*Proxy)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Proxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTransport replaces the upstream transport
func WithTransport(tr *http.Transport) Option {
	return func(p *Proxy) {
		if tr != nil {
			p.transport = tr
		}
	}
}

// WithRecorder reports every exchange to r
func WithRecorder(r Recorder) Option {
	return func(p *Proxy) {
		p.recorder = r
	}
}

// WithStyle injects css into proxied HTML documents
func WithStyle(css string, injector StyleInjector) Option {
	return func(p *Proxy) {
		if css == "" || injector == nil {
			return
		}
		p.style = &styleRewriter{injector: injector, css: css}
	}
}

// WithRequestHook appends a request handler after the built-in ones
func WithRequestHook(h RequestHandler) Option {
	return func(p *Proxy) {
		p.requestHooks = append(p.requestHooks, h)
	}
}

// WithResponseHook appends a response handler after the built-in ones
func WithResponseHook(h ResponseHandler) Option {
	return func(p *Proxy) {
		p.responseHooks = append(p.responseHooks, h)
	}
}

// exchange carries per-request decisions from the request chain to the
// response chain.
type exchange struct {
	path         string
	class        string
	cacheControl string
	started      time.Time
}

// Proxy forwards matched paths to the upstream origin so that it appears
// same-origin to the host page.
type Proxy struct {
	route     Route
	engine    *goproxy.ProxyHttpServer
	transport *http.Transport
	logger    *zap.Logger
	recorder  Recorder
	style     *styleRewriter

	requestHooks  []RequestHandler
	responseHooks []ResponseHandler
}

// New compiles route and builds the forwarding engine
func New(route Route, opts ...Option) (*Proxy, error) {
	compiled, err := route.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile route: %w", err)
	}

	p := &Proxy{
		route:  compiled,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("proxy")
	if p.transport == nil {
		p.transport = NewTransport(TransportConfig{})
	}
	if p.style != nil {
		p.style.logger = p.logger
	}

	// Built-in hooks run first; caller hooks see the rewritten request.
	p.requestHooks = append([]RequestHandler{p.rewriteRequest}, p.requestHooks...)
	p.responseHooks = append([]ResponseHandler{p.rewriteResponse}, p.responseHooks...)

	engine := goproxy.NewProxyHttpServer()
	engine.Tr = p.transport
	engine.Logger = zap.NewStdLog(p.logger)
	engine.OnRequest().DoFunc(p.handleRequest)
	engine.OnResponse().DoFunc(p.handleResponse)
	p.engine = engine

	p.logger.Info("Reverse proxy configured",
		zap.String("upstream", compiled.Upstream),
		zap.Strings("prefixes", compiled.Prefixes),
		zap.Bool("style_injection", p.style != nil),
	)
	return p, nil
}

// Route returns the compiled route
func (p *Proxy) Route() Route {
	return p.route
}

// ServeHTTP forwards r if its path is routed, 404 otherwise
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.route.Match(r.URL.Path) {
		http.NotFound(w, r)
		return
	}

	out := r.Clone(r.Context())
	out.URL.Scheme = p.route.target.Scheme
	out.URL.Host = p.route.target.Host
	out.RequestURI = ""

	p.engine.ServeHTTP(w, out)
}

// Handler adapts the proxy to gin. Unrouted paths fall through to the next
// handler.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.route.Match(c.Request.URL.Path) {
			c.Next()
			return
		}
		p.ServeHTTP(c.Writer, c.Request)
		c.Abort()
	}
}

// handleRequest runs the request hook chain
func (p *Proxy) handleRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	current := r
	for _, hook := range p.requestHooks {
		next, resp := hook(current, ctx)
		if resp != nil {
			p.logger.Debug("Request short-circuited by a hook", zap.String("path", current.URL.Path))
			return next, resp
		}
		if next == nil {
			p.logger.Error("A request hook returned a nil request", zap.String("path", current.URL.Path))
			return current, goproxy.NewResponse(current, goproxy.ContentTypeText, http.StatusInternalServerError,
				"Proxy error: a request hook returned no request")
		}
		current = next
	}
	return current, nil
}

// handleResponse maps transport failures to 502 and runs the response
// hook chain.
func (p *Proxy) handleResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	ex, _ := ctx.UserData.(*exchange)
	if ex == nil {
		ex = &exchange{started: time.Now()}
	}

	if resp == nil {
		msg := "unknown error"
		if ctx.Error != nil {
			msg = ctx.Error.Error()
		}
		p.logger.Warn("Upstream request failed", zap.String("path", ex.path), zap.String("error", msg))
		if p.recorder != nil {
			p.recorder.RecordUpstreamError()
			p.recorder.RecordProxyRequest(ex.class, http.StatusBadGateway, time.Since(ex.started))
		}
		return badGateway(ctx.Req, msg)
	}

	last := resp
	for _, hook := range p.responseHooks {
		next := hook(last, ctx)
		if next == nil {
			p.logger.Error("A response hook returned a nil response", zap.String("path", ex.path))
			break
		}
		last = next
	}

	if p.recorder != nil {
		p.recorder.RecordProxyRequest(ex.class, last.StatusCode, time.Since(ex.started))
	}
	return last
}

// rewriteRequest points the request at the upstream origin
func (p *Proxy) rewriteRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	path := p.route.RewritePath(r.URL.Path)
	class, value, _ := p.route.CacheControlFor(path)
	ctx.UserData = &exchange{
		path:         path,
		class:        class,
		cacheControl: value,
		started:      time.Now(),
	}

	if path != r.URL.Path {
		p.logger.Debug("Rewrote path", zap.String("from", r.URL.Path), zap.String("to", path))
	}
	r.URL.Path = p.route.target.Path + path
	r.URL.RawPath = ""

	forwardedProto := "http"
	if r.TLS != nil {
		forwardedProto = "https"
	}
	r.Header.Set("X-Forwarded-Host", r.Host)
	r.Header.Set("X-Forwarded-Proto", forwardedProto)
	r.Host = p.route.target.Host

	for _, h := range p.route.StripRequestHeaders {
		r.Header.Del(h)
	}
	return r, nil
}

// rewriteResponse strips blocking headers and assigns cache policy
func (p *Proxy) rewriteResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	for _, h := range p.route.StripResponseHeaders {
		resp.Header.Del(h)
	}

	if ex, ok := ctx.UserData.(*exchange); ok && ex.cacheControl != "" {
		resp.Header.Set("Cache-Control", ex.cacheControl)
		p.logger.Debug("Set cache policy",
			zap.String("path", ex.path),
			zap.String("class", ex.class),
			zap.String("cache_control", ex.cacheControl),
		)
	}

	if p.style != nil {
		resp = p.style.rewrite(resp)
	}
	return resp
}

func badGateway(req *http.Request, msg string) *http.Response {
	body := fmt.Sprintf("Proxy error: upstream connection failed: %s", msg)
	if req == nil {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{"Content-Type": []string{goproxy.ContentTypeText}},
			Body:       io.NopCloser(bytes.NewBufferString(body)),
		}
	}
	return goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusBadGateway, body)
}
