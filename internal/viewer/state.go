package viewer

import "fmt"

// State is where one model is in its lifecycle.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateVisible
	StateHidden
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateVisible:
		return "visible"
	case StateHidden:
		return "hidden"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state name for JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateUnloaded; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown model state %q", text)
}

// Ready reports whether a model in this state can be selected.
func (s State) Ready() bool {
	return s == StateVisible || s == StateHidden
}

// ModelStatus is a point-in-time view of one registered model.
type ModelStatus struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	State   State  `json:"state"`
	Visible bool   `json:"visible"`
	Error   string `json:"error,omitempty"`
}
