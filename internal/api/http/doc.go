// Package http serves the widget's plain HTTP endpoints: health (optionally
// probing the upstream), the widget configuration host pages bootstrap from,
// the error-tracking hook and metrics.
package http
