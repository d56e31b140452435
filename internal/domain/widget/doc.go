/*
Package widget is the server side of the floating chat widget.

A Session holds what the browser would otherwise keep in component state:
whether the window is open, where it sits, and the frame controller keeping
the embedded chat document alive. The host page forwards DOM signals as
Events; the session answers with Snapshots describing exactly one surface
to show (spinner, retry panel or live document).

Pointer drags are coalesced: moves only record the newest sample, and one
geometry computation runs per display frame. Snapshot pushes are coalesced
the same way.

Any panic while handling an event is recovered, reported to the
ErrorReporter, and leaves the session in a fatal state showing the reload
fallback.
*/
package widget
