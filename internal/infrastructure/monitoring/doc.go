/*
Package monitoring provides metrics collection for the chat widget server.

# Overview

Metrics live on a private Prometheus registry owned by each Metrics value,
alongside the Go runtime and process collectors.

# Metrics

  - HTTP requests (latency, throughput, size); unrouted requests are labelled "proxy"
  - Proxied exchanges by cache class and upstream status class
  - Upstream transport failures and readiness checks
  - Frame reliability transitions and mounted widget sessions
  - Widget error reports by source
  - WebSocket connections and messages

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// *Metrics satisfies proxy.Recorder
	p, _ := proxy.New(route, proxy.WithRecorder(metrics))

	timer := monitoring.NewTimer(metrics)
	// ... probe the upstream ...
	timer.Stop("ok")
*/
package monitoring
