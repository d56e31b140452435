/*
Package geometry positions and resizes the floating chat window.

# Overview

Every function here is pure: it takes the viewport, the trigger control's
bounding rectangle and the current window geometry, and returns new values.
Nothing is rejected; out-of-range inputs are clamped.

# Rules

  - Initial placement is bottom-right, lifted above the trigger by its size
    plus a gap, then clamped inside the viewport margins.
  - Resizing uses the top-left handle: the bottom-right corner stays fixed and
    minimum sizes re-anchor that corner instead of letting the window jump.
  - When the result overlaps the trigger, the window shifts left; if that
    would cross the left margin it shifts up instead.

All collision checks go through Overlaps.

# Usage

	layout := geometry.DefaultLayout()
	viewport := geometry.Viewport(1280, 800)
	trigger := layout.TriggerRect(viewport)

	g := layout.Initial(viewport, trigger)
	g = layout.Resize(geometry.Point{X: -40, Y: -25}, g, viewport, trigger)
*/
package geometry
