package supervisor

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of the supervised process.
type State int

const (
	StateIdle State = iota
	StateLaunching
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLaunching:
		return "launching"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Live reports whether a process is being started or is running.
func (s State) Live() bool {
	return s == StateLaunching || s == StateRunning
}

type event int

const (
	eventLaunch event = iota
	eventNotFound
	eventStarted
	eventFailed
	eventExited
)

func (e event) String() string {
	switch e {
	case eventLaunch:
		return "launch"
	case eventNotFound:
		return "not-found"
	case eventStarted:
		return "started"
	case eventFailed:
		return "failed"
	case eventExited:
		return "exited"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var ErrInvalidTransition = errors.New("invalid supervisor transition")

// transition is the whole lifecycle:
//
//	idle|exited --launch--> launching --not-found--> launching (next candidate)
//	launching --started--> running --exited--> exited
//	launching --failed--> idle
func transition(from State, ev event) (State, error) {
	switch {
	case (from == StateIdle || from == StateExited) && ev == eventLaunch:
		return StateLaunching, nil
	case from == StateLaunching && ev == eventNotFound:
		return StateLaunching, nil
	case from == StateLaunching && ev == eventStarted:
		return StateRunning, nil
	case from == StateLaunching && ev == eventFailed:
		return StateIdle, nil
	case from == StateRunning && ev == eventExited:
		return StateExited, nil
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}
