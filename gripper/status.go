package gripper

import (
	"errors"
	"strings"
	"time"
)

// State is the lifecycle state of one actuator
type State int

const (
	// Idle means the actuator has never been commanded
	Idle State = iota

	// Moving means a smooth move is in progress
	Moving

	// Holding means the target was reached or motion was stopped
	Holding

	// Error means feedback has been lost for longer than the timeout
	Error

	// Calibrating is reserved; no operation currently enters it
	Calibrating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Moving:
		return "MOVING"
	case Holding:
		return "HOLDING"
	case Error:
		return "ERROR"
	case Calibrating:
		return "CALIBRATING"
	default:
		return "UNKNOWN"
	}
}

// Mode is the control strategy used to drive the actuator
type Mode int

const (
	// OpenLoop drives the planned trajectory directly
	OpenLoop Mode = iota

	// ClosedLoop tracks the planned trajectory with a PID correction
	ClosedLoop

	// ForceControl is reserved and behaves as OpenLoop; the status carries
	// a Degraded flag while it is selected
	ForceControl
)

func (m Mode) String() string {
	switch m {
	case OpenLoop:
		return "OPEN_LOOP"
	case ClosedLoop:
		return "CLOSED_LOOP"
	case ForceControl:
		return "FORCE_CONTROL"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownMode is returned by ParseMode for unrecognized input
var ErrUnknownMode = errors.New("unknown control mode")

// ParseMode converts a string like "open-loop" or "CLOSED_LOOP" to a Mode
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	switch s {
	case "openloop", "open":
		return OpenLoop, nil
	case "closedloop", "closed":
		return ClosedLoop, nil
	case "forcecontrol", "force":
		return ForceControl, nil
	default:
		return OpenLoop, ErrUnknownMode
	}
}

// Status is the full observable state of one actuator.  Copies returned by
// Controller.Status are snapshots and may be retained by the caller.
type Status struct {
	// ID is the actuator's slot index
	ID int `json:"id"`

	// State is the lifecycle state
	State State `json:"state"`

	// Mode is the active control strategy
	Mode Mode `json:"mode"`

	// CurrentPercent and TargetPercent are logical openness, 0-100
	CurrentPercent float64 `json:"currentPercent"`
	TargetPercent  float64 `json:"targetPercent"`

	// CurrentAngle is the angle corresponding to CurrentPercent, degrees
	CurrentAngle float64 `json:"currentAngle"`

	// HardwareAngle is the last raw angle read from the actuator, degrees
	HardwareAngle float64 `json:"hardwareAngle"`

	// Moving indicates a smooth move is in progress
	Moving bool `json:"moving"`

	// Progress is time-based movement progress, 0-100
	Progress float64 `json:"progress"`

	// MoveStart and MoveDuration describe the active movement
	MoveStart    time.Time     `json:"moveStart"`
	MoveDuration time.Duration `json:"moveDuration"`

	// FeedbackValid is false after the feedback timeout elapses without a read
	FeedbackValid bool `json:"feedbackValid"`

	// LastFeedback is the time of the last successful angle read
	LastFeedback time.Time `json:"lastFeedback"`

	// PositionError is the plan-versus-reality error in percent
	PositionError float64 `json:"positionError"`

	// Degraded is true when ForceControl is selected and falling back to
	// open-loop behavior
	Degraded bool `json:"degraded"`

	// TotalMovements counts completed movements
	TotalMovements uint64 `json:"totalMovements"`

	// MaxPositionError is the largest PositionError observed
	MaxPositionError float64 `json:"maxPositionError"`

	// LastUpdate is the time of the last control-loop update
	LastUpdate time.Time `json:"lastUpdate"`
}
