package geometry

import "math"

// Point is a position in viewport pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size holds widget dimensions
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle in viewport pixels
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Geometry is the widget's position and size
type Geometry struct {
	Position Point `json:"position"`
	Size     Size  `json:"size"`
}

// RectAt builds the rectangle occupied by a widget of size s at p
func RectAt(p Point, s Size) Rect {
	return Rect{
		Left:   p.X,
		Top:    p.Y,
		Right:  p.X + s.Width,
		Bottom: p.Y + s.Height,
	}
}

// Viewport returns the rectangle of a window with the given inner dimensions
func Viewport(width, height float64) Rect {
	return Rect{Right: width, Bottom: height}
}

// Width returns the horizontal extent
func (r Rect) Width() float64 { return r.Right - r.Left }

// Height returns the vertical extent
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// IsZero reports whether the rectangle is unset
func (r Rect) IsZero() bool { return r == Rect{} }

// Contains reports whether inner lies fully within r
func (r Rect) Contains(inner Rect) bool {
	return inner.Left >= r.Left && inner.Top >= r.Top &&
		inner.Right <= r.Right && inner.Bottom <= r.Bottom
}

// Rect returns the bounding rectangle of the widget
func (g Geometry) Rect() Rect {
	return RectAt(g.Position, g.Size)
}

// Overlaps reports whether two rectangles intersect. Touching edges count
// as overlapping; the rectangles are disjoint only when an edge strictly
// passes the other's opposite edge.
func Overlaps(a, b Rect) bool {
	return !(a.Right < b.Left ||
		a.Left > b.Right ||
		a.Bottom < b.Top ||
		a.Top > b.Bottom)
}

// Layout holds the sizing constants of the floating window and its trigger
type Layout struct {
	MinWidth      float64 `json:"min_width"`
	MinHeight     float64 `json:"min_height"`
	DefaultWidth  float64 `json:"default_width"`
	DefaultHeight float64 `json:"default_height"`
	TriggerSize   float64 `json:"trigger_size"`
	Margin        float64 `json:"margin"`
	Gap           float64 `json:"gap"`
}

// DefaultLayout returns the stock widget layout
func DefaultLayout() Layout {
	return Layout{
		MinWidth:      300,
		MinHeight:     400,
		DefaultWidth:  384,
		DefaultHeight: 600,
		TriggerSize:   56,
		Margin:        20,
		Gap:           10,
	}
}

// DefaultSize returns the size a freshly opened window gets
func (l Layout) DefaultSize() Size {
	return Size{Width: l.DefaultWidth, Height: l.DefaultHeight}
}

// InitialPosition places a default-sized window at the bottom-right of the
// viewport, lifted above the trigger control.
func (l Layout) InitialPosition(viewport, trigger Rect) Point {
	size := l.DefaultSize()

	x := viewport.Right - size.Width - l.Margin
	y := viewport.Bottom - size.Height - l.Margin - l.TriggerSize - l.Gap

	if Overlaps(RectAt(Point{X: x, Y: y}, size), trigger) {
		x = viewport.Right - size.Width - trigger.Width() - l.Margin*2 - l.Gap
	}

	return Point{
		X: l.clampX(x, size.Width, viewport),
		Y: l.clampY(y, size.Height, viewport),
	}
}

// Initial returns the geometry of a freshly opened window
func (l Layout) Initial(viewport, trigger Rect) Geometry {
	return Geometry{
		Position: l.InitialPosition(viewport, trigger),
		Size:     l.DefaultSize(),
	}
}

// Resize applies a top-left handle drag. Dragging toward the upper-left
// grows the window while its bottom-right corner stays put.
func (l Layout) Resize(delta Point, initial Geometry, viewport, trigger Rect) Geometry {
	w := initial.Size.Width - delta.X
	h := initial.Size.Height - delta.Y
	x := initial.Position.X + delta.X
	y := initial.Position.Y + delta.Y

	w = math.Max(l.MinWidth, w)
	h = math.Max(l.MinHeight, h)

	// Keep the bottom/right edge anchored once a minimum is reached.
	if w == l.MinWidth {
		x = initial.Position.X + initial.Size.Width - l.MinWidth
	}
	if h == l.MinHeight {
		y = initial.Position.Y + initial.Size.Height - l.MinHeight
	}

	x = l.clampX(x, w, viewport)
	y = l.clampY(y, h, viewport)

	return l.avoid(Geometry{Position: Point{X: x, Y: y}, Size: Size{Width: w, Height: h}}, trigger)
}

// Fit re-clamps an existing geometry after the viewport or trigger moved
func (l Layout) Fit(g Geometry, viewport, trigger Rect) Geometry {
	return l.Resize(Point{}, g, viewport, trigger)
}

// avoid moves the window off the trigger: shift left first, and only when
// that would cross the left margin, shift up instead.
func (l Layout) avoid(g Geometry, trigger Rect) Geometry {
	if trigger.IsZero() || !Overlaps(g.Rect(), trigger) {
		return g
	}

	left := math.Min(g.Position.X, trigger.Left-g.Size.Width-l.Gap)
	if left >= l.Margin {
		g.Position.X = left
		return g
	}

	g.Position.Y = math.Min(g.Position.Y, trigger.Top-g.Size.Height-l.Gap)
	return g
}

func (l Layout) clampX(x, width float64, viewport Rect) float64 {
	return math.Max(viewport.Left+l.Margin, math.Min(x, viewport.Right-width-l.Margin))
}

func (l Layout) clampY(y, height float64, viewport Rect) float64 {
	return math.Max(viewport.Top+l.Margin, math.Min(y, viewport.Bottom-height-l.Margin))
}

// TriggerRect returns where the trigger control sits when the host page has
// not measured it yet: a square pinned to the bottom-right margin.
func (l Layout) TriggerRect(viewport Rect) Rect {
	return Rect{
		Left:   viewport.Right - l.Margin - l.TriggerSize,
		Top:    viewport.Bottom - l.Margin - l.TriggerSize,
		Right:  viewport.Right - l.Margin,
		Bottom: viewport.Bottom - l.Margin,
	}
}
