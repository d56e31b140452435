/*
Package frame keeps the embedded chat document alive.

# Overview

A Controller drives one embedded browsing context through
Idle → Preloading → Ready, falling back to Error on load errors, timeouts
and connectivity loss. Failed loads are retried with exponential backoff
until MaxRetries is spent; the shell then shows a manual retry panel.

# Lifecycle

	Idle        --Preload / SetOpen(true)-->  Preloading
	Preloading  --LoadSucceeded-->            Ready
	Preloading  --LoadFailed / timeout-->     Error (retryCount++)
	Ready       --LoadFailed-->               Error (retryCount++)
	Error       --backoff expiry-->           Preloading (forced reload)
	Error       --Online-->                   Preloading (retryCount = 0)
	any         --Offline-->                  Error

A forced reload navigates to about:blank first and back to the target after
ReloadDelay, so the load event fires even when the URL did not change.

# Timers

Every timer lives in a slot holding its handle. Re-arming a slot stops the
previous timer, and a callback that fires after being superseded is ignored.
Unmount stops all of them.

# Usage

	ctrl := frame.New(remote, frame.SystemClock{}, frame.DefaultSettings(chatURL))
	ctrl.Mount()
	ctrl.Preload()
	defer ctrl.Unmount()

	switch ctrl.Status().Surface() {
	case frame.SurfaceSpinner:
	case frame.SurfaceErrorPanel:
	}
*/
package frame
