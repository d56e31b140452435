package frame

// State is the lifecycle stage of the embedded browsing context
type State int

const (
	StateIdle State = iota
	StatePreloading
	StateReady
	StateError
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreloading:
		return "preloading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets states travel as their names in JSON snapshots
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Surface is the single thing the shell renders inside the open window
type Surface int

const (
	SurfaceHidden Surface = iota
	SurfaceSpinner
	SurfaceErrorPanel
	SurfaceDocument
)

// String returns the string representation of the surface
func (s Surface) String() string {
	switch s {
	case SurfaceHidden:
		return "hidden"
	case SurfaceSpinner:
		return "spinner"
	case SurfaceErrorPanel:
		return "error"
	case SurfaceDocument:
		return "document"
	default:
		return "unknown"
	}
}

// MarshalText lets surfaces travel as their names in JSON snapshots
func (s Surface) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is what the shell needs to decide between spinner, error panel
// and live document.
type Status struct {
	State            State `json:"state"`
	RetryCount       int   `json:"retry_count"`
	Open             bool  `json:"open"`
	Offline          bool  `json:"offline"`
	Loading          bool  `json:"loading"`
	Error            bool  `json:"error"`
	RetriesExhausted bool  `json:"retries_exhausted"`
}

// Surface picks exactly one thing to render
func (s Status) Surface() Surface {
	switch {
	case !s.Open:
		return SurfaceHidden
	case s.RetriesExhausted:
		return SurfaceErrorPanel
	case s.Loading:
		return SurfaceSpinner
	case s.State == StateReady:
		return SurfaceDocument
	default:
		return SurfaceHidden
	}
}
