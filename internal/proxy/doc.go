/*
Package proxy makes the hosted chat origin appear same-origin to the page
embedding it.

# Overview

A Route maps local path prefixes to one upstream origin. Matched requests
go through a goproxy engine whose hook chains rewrite the exchange:

Request chain:
  - legacy asset paths are rewritten (/static/css → /_next/static/css)
  - Host is switched to the upstream's, X-Forwarded-* record the original
  - Accept-Encoding is dropped so bodies come back unencoded

Response chain:
  - Content-Security-Policy headers are removed so the page can restyle
    the embedded document
  - Cache-Control is assigned by cache class, matched with doublestar globs
    against the upstream path
  - optionally, a stylesheet is injected into HTML documents

A failed upstream exchange becomes 502 carrying the transport error.
Upstream statuses pass through untouched and nothing is retried.

# Usage

	route, err := proxy.LoadRouteFile("routes.yaml", proxy.DefaultRoute())
	p, err := proxy.New(route,
		proxy.WithLogger(logger),
		proxy.WithRecorder(metrics),
		proxy.WithStyle(css, proxy.HeadInjector{Title: "Chat"}),
	)
	router.NoRoute(p.Handler())
*/
package proxy
