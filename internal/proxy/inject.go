package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// maxInjectBody bounds how much of a document is buffered for injection
const maxInjectBody = 8 << 20

var errUnsupportedEncoding = errors.New("unsupported content encoding")

// StyleInjector applies cosmetic overrides to a proxied HTML document
type StyleInjector interface {
	InjectStyle(doc *goquery.Document, css string) error
}

// HeadInjector appends a <style> element to <head> and optionally replaces
// the document title.
type HeadInjector struct {
	Title string
}

// InjectStyle implements StyleInjector
func (h HeadInjector) InjectStyle(doc *goquery.Document, css string) error {
	head := doc.Find("head").First()
	if head.Length() == 0 {
		return errors.New("document has no head")
	}

	head.AppendHtml("<style data-injected=\"chatbubble\">" + css + "</style>")

	if h.Title != "" {
		title := head.Find("title").First()
		if title.Length() == 0 {
			head.AppendHtml("<title></title>")
			title = head.Find("title").First()
		}
		title.SetText(h.Title)
	}
	return nil
}

type styleRewriter struct {
	injector StyleInjector
	css      string
	logger   *zap.Logger
}

// rewrite injects the stylesheet into successful HTML responses. Any
// failure serves the upstream body unchanged.
func (s *styleRewriter) rewrite(resp *http.Response) *http.Response {
	if resp.StatusCode != http.StatusOK || resp.Body == nil {
		return resp
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isHTML(contentType) {
		return resp
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxInjectBody+1))
	resp.Body.Close()
	if err != nil {
		s.logger.Warn("Failed to read document for injection", zap.Error(err))
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}
	if len(raw) > maxInjectBody {
		s.logger.Warn("Document too large for injection", zap.Int("limit", maxInjectBody))
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	out, err := s.inject(resp.Header, raw)
	if err != nil {
		s.logger.Warn("Style injection skipped", zap.Error(err))
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		return resp
	}

	resp.Body = io.NopCloser(bytes.NewReader(out))
	resp.ContentLength = int64(len(out))
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
	resp.Header.Del("Content-Encoding")
	if contentType == "" {
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return resp
}

func (s *styleRewriter) inject(header http.Header, raw []byte) ([]byte, error) {
	body, err := decodeBody(header.Get("Content-Encoding"), raw)
	if err != nil {
		return nil, err
	}

	if header.Get("Content-Type") == "" && !isHTML(mimetype.Detect(body).String()) {
		return nil, fmt.Errorf("sniffed content is %s", mimetype.Detect(body).String())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := s.injector.InjectStyle(doc, s.css); err != nil {
		return nil, fmt.Errorf("failed to inject style: %w", err)
	}

	html, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return []byte(html), nil
}

// decodeBody undoes a Content-Encoding the upstream applied despite the
// stripped Accept-Encoding.
func decodeBody(encoding string, raw []byte) ([]byte, error) {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedEncoding, encoding)
	}

	body, err := io.ReadAll(io.LimitReader(r, maxInjectBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", encoding, err)
	}
	if len(body) > maxInjectBody {
		return nil, fmt.Errorf("decoded body exceeds %d bytes", maxInjectBody)
	}
	return body, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") || strings.HasPrefix(ct, "application/xhtml+xml")
}
