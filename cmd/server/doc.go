// Package main is the entry point for the chat widget backend.
//
// The binary serves two things from one origin: the widget API (config,
// error reports, health, metrics and the session WebSocket) and a reverse
// proxy that makes the hosted chat application appear same-origin to the
// host page.
//
//	Host page → chatbubble → upstream chat origin
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Serve the widget and proxy
//	./chatbubble serve --port 3000 --upstream https://udify.app
//
//	# Development mode (console logs, debug level)
//	./chatbubble serve --dev
//
//	# Check that a chat document loads under the retry policy
//	./chatbubble probe --url http://localhost:3000/chat/KAqf6artL6k9TgtB --check
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
