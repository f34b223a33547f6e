package ble

import "fmt"

// StateKind enumerates the connection states.
type StateKind int

const (
	Disconnected StateKind = iota
	Scanning
	Connecting
	Probing
	Connected
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Probing:
		return "probing"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is the manager's single view of what, if anything, is bound.
// DeviceID is set for Connecting, Probing and Connected (and for Failed when
// a device was involved); Target only for Connected; Err only for Failed.
type State struct {
	Kind     StateKind
	DeviceID string
	Target   Target
	Err      error
}

func (s State) String() string {
	switch s.Kind {
	case Connected:
		return fmt.Sprintf("connected(%s, %s/%s)", s.DeviceID, s.Target.ServiceID, s.Target.CharacteristicID)
	case Connecting, Probing:
		return fmt.Sprintf("%s(%s)", s.Kind, s.DeviceID)
	case Failed:
		return fmt.Sprintf("failed(%v)", s.Err)
	default:
		return s.Kind.String()
	}
}

// allowed lists legal transitions. Failed is always followed by Disconnected.
var allowed = map[StateKind][]StateKind{
	Disconnected: {Scanning, Connecting},
	Scanning:     {Disconnected, Connecting},
	Connecting:   {Probing, Failed, Disconnected},
	Probing:      {Connected, Failed, Disconnected},
	Connected:    {Disconnected},
	Failed:       {Disconnected},
}

func canTransition(from, to StateKind) bool {
	for _, k := range allowed[from] {
		if k == to {
			return true
		}
	}
	return false
}

// Status is a flat snapshot for UIs.
type Status struct {
	State     State
	Scanning  bool
	Connected bool
	Available bool
}
