package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
)

var (
	ErrNoUpstream   = errors.New("route has no upstream")
	ErrInvalidRoute = errors.New("invalid route")
)

// Cache classes assigned by the default rules
const (
	ClassStatic   = "static"
	ClassDocument = "document"
)

// Rewrite replaces a leading From with To
type Rewrite struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// CacheRule assigns CacheControl to upstream paths matching any pattern
type CacheRule struct {
	Class        string   `yaml:"class"`
	Patterns     []string `yaml:"patterns"`
	CacheControl string   `yaml:"cache_control"`
}

// Route describes which local paths are forwarded where and how the
// exchange is rewritten on the way.
type Route struct {
	Upstream             string      `yaml:"upstream"`
	Prefixes             []string    `yaml:"prefixes"`
	Rewrites             []Rewrite   `yaml:"rewrites"`
	StripRequestHeaders  []string    `yaml:"strip_request_headers"`
	StripResponseHeaders []string    `yaml:"strip_response_headers"`
	CacheRules           []CacheRule `yaml:"cache_rules"`

	target *url.URL
}

// DefaultRoute returns the stock route for the hosted chat origin
func DefaultRoute() Route {
	return Route{
		Upstream: "https://udify.app",
		Prefixes: []string{
			"/api",
			"/_next",
			"/static",
			"/logo",
			"/console",
			"/favicon.ico",
			"/chat",
			"/cdn-cgi",
		},
		Rewrites: []Rewrite{
			{From: "/static/css", To: "/_next/static/css"},
			{From: "/static/chunks", To: "/_next/static/chunks"},
		},
		StripRequestHeaders: []string{"Accept-Encoding"},
		StripResponseHeaders: []string{
			"Content-Security-Policy",
			"Content-Security-Policy-Report-Only",
		},
		CacheRules: []CacheRule{
			{
				Class: ClassStatic,
				Patterns: []string{
					"/_next/static/**",
					"/**/*.js",
					"/**/*.css",
					"/**/*.woff",
					"/**/*.woff2",
				},
				CacheControl: "public, max-age=3600, immutable",
			},
			{
				Class:        ClassDocument,
				Patterns:     []string{"/chat/**"},
				CacheControl: "public, max-age=300",
			},
		},
	}
}

// LoadRouteFile overlays the YAML route file at path onto base. Sections
// absent from the file keep base's values.
func LoadRouteFile(path string, base Route) (Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Route{}, fmt.Errorf("failed to read route file: %w", err)
	}

	var file Route
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Route{}, fmt.Errorf("failed to parse route file %s: %w", path, err)
	}

	if file.Upstream != "" {
		base.Upstream = file.Upstream
	}
	if file.Prefixes != nil {
		base.Prefixes = file.Prefixes
	}
	if file.Rewrites != nil {
		base.Rewrites = file.Rewrites
	}
	if file.StripRequestHeaders != nil {
		base.StripRequestHeaders = file.StripRequestHeaders
	}
	if file.StripResponseHeaders != nil {
		base.StripResponseHeaders = file.StripResponseHeaders
	}
	if file.CacheRules != nil {
		base.CacheRules = file.CacheRules
	}
	return base, nil
}

// Compile validates the route and returns a copy ready for serving
func (r Route) Compile() (Route, error) {
	if r.Upstream == "" {
		return Route{}, ErrNoUpstream
	}

	target, err := url.Parse(r.Upstream)
	if err != nil {
		return Route{}, fmt.Errorf("%w: upstream %q: %v", ErrInvalidRoute, r.Upstream, err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return Route{}, fmt.Errorf("%w: upstream %q must be an absolute http(s) origin", ErrInvalidRoute, r.Upstream)
	}
	target.Path = strings.TrimSuffix(target.Path, "/")

	out := Route{
		Upstream: r.Upstream,
		target:   target,
	}

	for _, p := range r.Prefixes {
		if !strings.HasPrefix(p, "/") {
			return Route{}, fmt.Errorf("%w: prefix %q must start with /", ErrInvalidRoute, p)
		}
		out.Prefixes = append(out.Prefixes, p)
	}
	for _, rw := range r.Rewrites {
		if rw.From == "" {
			return Route{}, fmt.Errorf("%w: rewrite with empty from", ErrInvalidRoute)
		}
		out.Rewrites = append(out.Rewrites, rw)
	}
	for _, h := range r.StripRequestHeaders {
		out.StripRequestHeaders = append(out.StripRequestHeaders, http.CanonicalHeaderKey(h))
	}
	for _, h := range r.StripResponseHeaders {
		out.StripResponseHeaders = append(out.StripResponseHeaders, http.CanonicalHeaderKey(h))
	}
	for _, rule := range r.CacheRules {
		for _, pattern := range rule.Patterns {
			if !doublestar.ValidatePattern(pattern) {
				return Route{}, fmt.Errorf("%w: cache pattern %q", ErrInvalidRoute, pattern)
			}
		}
		rule.Patterns = append([]string(nil), rule.Patterns...)
		out.CacheRules = append(out.CacheRules, rule)
	}

	return out, nil
}

// Target returns the parsed upstream origin, nil before Compile
func (r Route) Target() *url.URL {
	if r.target == nil {
		return nil
	}
	u := *r.target
	return &u
}

// Match reports whether a local path is forwarded. A prefix matches itself
// and anything below it, never a sibling sharing its leading characters.
func (r Route) Match(path string) bool {
	for _, p := range r.Prefixes {
		if path == p {
			return true
		}
		dir := strings.TrimSuffix(p, "/") + "/"
		if strings.HasPrefix(path, dir) {
			return true
		}
	}
	return false
}

// RewritePath applies the first rewrite whose From leads path
func (r Route) RewritePath(path string) string {
	for _, rw := range r.Rewrites {
		if strings.HasPrefix(path, rw.From) {
			return rw.To + strings.TrimPrefix(path, rw.From)
		}
	}
	return path
}

// CacheControlFor returns the class and Cache-Control value of the first
// rule matching an upstream path. ok is false when no rule matches and the
// upstream header must be left alone.
func (r Route) CacheControlFor(path string) (class, value string, ok bool) {
	for _, rule := range r.CacheRules {
		for _, pattern := range rule.Patterns {
			if matched, _ := doublestar.Match(pattern, path); matched {
				return rule.Class, rule.CacheControl, true
			}
		}
	}
	return "", "", false
}
