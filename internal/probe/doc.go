/*
Package probe loads the chat document without a browser.

HTTPFrame implements frame.Frame over HTTP, so Run can drive the same
reliability controller the widget uses (timeouts, backoff, blank-document
reloads) against a live origin and report how it went. Checker is the
readiness check behind /health?deep=1; GuardedChecker puts it behind a
circuit breaker so a dead origin is not probed on every request.

	res, err := probe.Run(ctx, "https://udify.app/chat/KAqf6artL6k9TgtB",
		frame.DefaultSettings(""), probe.DefaultClientConfig())
*/
package probe
