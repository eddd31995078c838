// Package behavior implements the reactive exploration state machine.
//
// A Controller owns all behaviour memory (turn timer, followed wall side,
// spiral ramp) and advances it once per control cycle from a reduced scan.
package behavior

import (
	"fmt"
	"strings"
)

// Mode is one discrete behaviour of the controller.
type Mode int

const (
	ModeIdle Mode = iota
	ModeForward
	ModeTurn
	ModeFollowWall
	ModeSpiral
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModeForward:
		return "FORWARD"
	case ModeTurn:
		return "TURN"
	case ModeFollowWall:
		return "FOLLOW_WALL"
	case ModeSpiral:
		return "SPIRAL"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name into a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "IDLE":
		return ModeIdle, nil
	case "FORWARD":
		return ModeForward, nil
	case "TURN":
		return ModeTurn, nil
	case "FOLLOW_WALL", "SFO":
		return ModeFollowWall, nil
	case "SPIRAL":
		return ModeSpiral, nil
	default:
		return ModeIdle, fmt.Errorf("unknown mode %q", value)
	}
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MotionCommand is the only output that reaches the actuator.
type MotionCommand struct {
	Linear  float64 `json:"linear"`  // mm/s
	Angular float64 `json:"angular"` // rad/s
}

// Stop is the safe-stop command.
var Stop = MotionCommand{}

// Decision is the result of one Step.
type Decision struct {
	Mode    Mode          `json:"mode"`
	Command MotionCommand `json:"command"`
}
