package proxy

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/elazarl/goproxy"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type seenRequest struct {
	path           string
	rawQuery       string
	host           string
	acceptEncoding string
	forwardedHost  string
}

type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	seen []seenRequest
}

func newUpstream(t *testing.T, handler http.HandlerFunc) *upstream {
	t.Helper()
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.seen = append(u.seen, seenRequest{
			path:           r.URL.Path,
			rawQuery:       r.URL.RawQuery,
			host:           r.Host,
			acceptEncoding: r.Header.Get("Accept-Encoding"),
			forwardedHost:  r.Header.Get("X-Forwarded-Host"),
		})
		u.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) last(t *testing.T) seenRequest {
	t.Helper()
	u.mu.Lock()
	defer u.mu.Unlock()
	require.NotEmpty(t, u.seen, "upstream was not called")
	return u.seen[len(u.seen)-1]
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.seen)
}

type exchangeRecord struct {
	class  string
	status int
}

type fakeRecorder struct {
	mu             sync.Mutex
	exchanges      []exchangeRecord
	upstreamErrors int
}

func (f *fakeRecorder) RecordProxyRequest(class string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, exchangeRecord{class: class, status: status})
}

func (f *fakeRecorder) RecordUpstreamError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upstreamErrors++
}

func newTestProxy(t *testing.T, upstreamURL string, opts ...Option) *Proxy {
	t.Helper()
	route := DefaultRoute()
	route.Upstream = upstreamURL
	p, err := New(route, opts...)
	require.NoError(t, err)
	return p
}

func serve(p http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	p.ServeHTTP(w, req)
	return w
}

func TestProxyRewritesLegacyStaticPath(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{}")
	})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodGet, "/static/css/app.css?v=3", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
	seen := up.last(t)
	assert.Equal(t, "/_next/static/css/app.css", seen.path)
	assert.Equal(t, "v=3", seen.rawQuery)
	assert.Equal(t, "public, max-age=3600, immutable", w.Header().Get("Cache-Control"))
}

func TestProxyStripsSecurityHeadersAndSetsDocumentCache(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Content-Security-Policy-Report-Only", "default-src 'self'")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><head></head><body>chat</body></html>")
	})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy-Report-Only"))
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Body.String(), "chat")
}

func TestProxyFontCachePolicy(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x77, 0x4f, 0x46, 0x32})
	})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodGet, "/_next/static/media/inter.woff2", nil)

	assert.Equal(t, "public, max-age=3600, immutable", w.Header().Get("Cache-Control"))
}

func TestProxyLeavesUnclassifiedCacheHeaderAlone(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private")
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodGet, "/api/parameters", nil)

	assert.Equal(t, "private", w.Header().Get("Cache-Control"))
}

func TestProxyRewritesRequestHeaders(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	p := newTestProxy(t, up.URL)

	serve(p, http.MethodGet, "http://widget.local/api/messages", http.Header{
		"Accept-Encoding": []string{"gzip, deflate, br"},
	})

	seen := up.last(t)
	assert.Empty(t, seen.acceptEncoding)
	assert.Equal(t, strings.TrimPrefix(up.URL, "http://"), seen.host)
	assert.Equal(t, "widget.local", seen.forwardedHost)
}

func TestProxyPassesUpstreamStatusThrough(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodPost, "/api/chat-messages", nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate limited")
	assert.Equal(t, 1, up.calls(), "no retries")
}

func TestProxyUnreachableUpstreamIs502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	rec := &fakeRecorder{}
	p := newTestProxy(t, deadURL, WithRecorder(rec))

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream connection failed")
	assert.Equal(t, 1, rec.upstreamErrors)
	assert.Equal(t, []exchangeRecord{{class: ClassDocument, status: http.StatusBadGateway}}, rec.exchanges)
}

func TestProxyUnroutedPathIs404(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	p := newTestProxy(t, up.URL)

	w := serve(p, http.MethodGet, "/not-proxied", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 0, up.calls())
}

func TestProxyGinHandler(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream")
	})
	p := newTestProxy(t, up.URL)

	router := gin.New()
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "local") })
	router.NoRoute(p.Handler())

	w := serve(router, http.MethodGet, "/chat/abc123", nil)
	assert.Equal(t, "upstream", w.Body.String())

	w = serve(router, http.MethodGet, "/health", nil)
	assert.Equal(t, "local", w.Body.String())

	w = serve(router, http.MethodGet, "/elsewhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, up.calls())
}

func TestProxyRecordsExchanges(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := &fakeRecorder{}
	p := newTestProxy(t, up.URL, WithRecorder(rec))

	serve(p, http.MethodGet, "/_next/static/chunks/main.js", nil)
	serve(p, http.MethodGet, "/api/site", nil)

	assert.Equal(t, []exchangeRecord{
		{class: ClassStatic, status: http.StatusOK},
		{class: "", status: http.StatusOK},
	}, rec.exchanges)
}

func TestProxyRequestHookShortCircuits(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	rec := &fakeRecorder{}
	var hookPath string
	p := newTestProxy(t, up.URL, WithRecorder(rec), WithRequestHook(
		func(r *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			hookPath = r.URL.Path
			return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusTeapot, "answered locally")
		},
	))

	w := serve(p, http.MethodGet, "/static/js/app.js", nil)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "answered locally", w.Body.String())
	assert.Equal(t, "/_next/static/js/app.js", hookPath, "hooks see the rewritten request")
	assert.Equal(t, 0, up.calls())
	assert.Equal(t, []exchangeRecord{{class: ClassStatic, status: http.StatusTeapot}}, rec.exchanges)
}

func TestProxyRequestHookNilRequestIs500(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	p := newTestProxy(t, up.URL, WithRequestHook(
		func(*http.Request, *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			return nil, nil
		},
	))

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "returned no request")
	assert.Equal(t, 0, up.calls())
}

func TestProxyRequestHookPassesThrough(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("X-Widget-Session"))
	})
	p := newTestProxy(t, up.URL, WithRequestHook(
		func(r *http.Request, _ *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			r.Header.Set("X-Widget-Session", "s-1")
			return r, nil
		},
	))

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", w.Body.String())
}

func TestProxyResponseHooks(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		_, _ = io.WriteString(w, "chat")
	})

	t.Run("modifies the response after built-in rewrites", func(t *testing.T) {
		var sawCSP string
		p := newTestProxy(t, up.URL, WithResponseHook(
			func(resp *http.Response, _ *goproxy.ProxyCtx) *http.Response {
				sawCSP = resp.Header.Get("Content-Security-Policy")
				resp.Header.Set("X-Frame-Source", "widget")
				return resp
			},
		))

		w := serve(p, http.MethodGet, "/chat/abc123", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, sawCSP)
		assert.Equal(t, "widget", w.Header().Get("X-Frame-Source"))
	})

	t.Run("nil response keeps the previous one", func(t *testing.T) {
		rec := &fakeRecorder{}
		laterCalled := false
		p := newTestProxy(t, up.URL,
			WithRecorder(rec),
			WithResponseHook(func(*http.Response, *goproxy.ProxyCtx) *http.Response { return nil }),
			WithResponseHook(func(resp *http.Response, _ *goproxy.ProxyCtx) *http.Response {
				laterCalled = true
				return resp
			}),
		)

		w := serve(p, http.MethodGet, "/chat/abc123", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "chat", w.Body.String())
		assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
		assert.False(t, laterCalled, "the chain stops at a nil response")
		assert.Equal(t, []exchangeRecord{{class: ClassDocument, status: http.StatusOK}}, rec.exchanges)
	})
}

func TestProxyInjectsStyleIntoDocuments(t *testing.T) {
	const page = "<!DOCTYPE html><html><head><title>Udify</title></head><body><main>chat</main></body></html>"

	tests := []struct {
		name     string
		encoding string
		encode   func([]byte) []byte
	}{
		{name: "identity", encode: func(b []byte) []byte { return b }},
		{name: "gzip", encoding: "gzip", encode: gzipBytes},
		{name: "brotli", encoding: "br", encode: brotliBytes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				if tt.encoding != "" {
					w.Header().Set("Content-Encoding", tt.encoding)
				}
				_, _ = w.Write(tt.encode([]byte(page)))
			})
			p := newTestProxy(t, up.URL, WithStyle(".header{display:none}", HeadInjector{Title: "Migo Chat"}))

			w := serve(p, http.MethodGet, "/chat/abc123", nil)

			body := w.Body.String()
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Empty(t, w.Header().Get("Content-Encoding"))
			assert.Contains(t, body, `<style data-injected="chatbubble">.header{display:none}</style>`)
			assert.Contains(t, body, "<title>Migo Chat</title>")
			assert.Contains(t, body, "<main>chat</main>")
			assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
		})
	}
}

func TestProxyStyleInjectionSkipsNonHTML(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = io.WriteString(w, "console.log('<head></head>')")
	})
	p := newTestProxy(t, up.URL, WithStyle("x{}", HeadInjector{}))

	w := serve(p, http.MethodGet, "/_next/static/chunks/main.js", nil)

	assert.Equal(t, "console.log('<head></head>')", w.Body.String())
}

func TestProxyStyleInjectionSniffsMissingContentType(t *testing.T) {
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, "<!DOCTYPE html><html><head></head><body></body></html>")
	})
	p := newTestProxy(t, up.URL, WithStyle("x{}", HeadInjector{}))

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Contains(t, w.Body.String(), "<style")
}

func TestProxyStyleInjectionUnsupportedEncodingPassesThrough(t *testing.T) {
	payload := []byte("not really deflate")
	up := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "deflate")
		_, _ = w.Write(payload)
	})
	p := newTestProxy(t, up.URL, WithStyle("x{}", HeadInjector{}))

	w := serve(p, http.MethodGet, "/chat/abc123", nil)

	assert.Equal(t, "deflate", w.Header().Get("Content-Encoding"))
	assert.Equal(t, payload, w.Body.Bytes())
}

func gzipBytes(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return buf.Bytes()
}

func brotliBytes(b []byte) []byte {
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, _ = bw.Write(b)
	_ = bw.Close()
	return buf.Bytes()
}
