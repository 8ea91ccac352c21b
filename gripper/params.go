package gripper

import "time"

// ControlParams tunes the planner and corrector for one actuator
type ControlParams struct {
	// SlopeIncrease and SlopeDecrease are the planner ramp rates in
	// percent per control cycle
	SlopeIncrease float64 `json:"slopeIncrease" yaml:"slopeIncrease"`
	SlopeDecrease float64 `json:"slopeDecrease" yaml:"slopeDecrease"`

	// SlopeRealPriority enables re-anchoring the plan on the measured value
	SlopeRealPriority bool `json:"slopeRealPriority" yaml:"slopeRealPriority"`

	// PID gains; the correction tracks the planned angle in closed loop
	Kp float64 `json:"kp" yaml:"kp"`
	Ki float64 `json:"ki" yaml:"ki"`
	Kd float64 `json:"kd" yaml:"kd"`

	// OutputLimit bounds the PID correction in degrees
	OutputLimit float64 `json:"outputLimit" yaml:"outputLimit"`

	// DeadZone in degrees; errors inside it produce no correction
	DeadZone float64 `json:"deadZone" yaml:"deadZone"`

	// Friction and backlash compensation, reserved.  Stored and reported
	// but not applied by any current control path.
	StaticFriction  float64 `json:"staticFriction" yaml:"staticFriction"`
	DynamicFriction float64 `json:"dynamicFriction" yaml:"dynamicFriction"`
	Backlash        float64 `json:"backlash" yaml:"backlash"`

	// MaxPositionError is the tolerated plan-versus-reality error, percent
	MaxPositionError float64 `json:"maxPositionError" yaml:"maxPositionError"`

	// FeedbackTimeout is how long feedback may be absent before the
	// actuator is forced into the Error state
	FeedbackTimeout time.Duration `json:"feedbackTimeout" yaml:"feedbackTimeout"`

	// SafetyStopTimeout is the hard ceiling on a single movement
	SafetyStopTimeout time.Duration `json:"safetyStopTimeout" yaml:"safetyStopTimeout"`
}

// DefaultControlParams returns the reference tuning
func DefaultControlParams() ControlParams {
	return ControlParams{
		SlopeIncrease:     2.0,
		SlopeDecrease:     2.0,
		SlopeRealPriority: true,
		Kp:                0.5,
		Ki:                0.1,
		Kd:                0.05,
		OutputLimit:       10.0,
		DeadZone:          0.5,
		StaticFriction:    2.0,
		DynamicFriction:   0.1,
		Backlash:          1.0,
		MaxPositionError:  5.0,
		FeedbackTimeout:   5 * time.Second,
		SafetyStopTimeout: 30 * time.Second,
	}
}

// DefaultMapping returns the reference actuator mapping
func DefaultMapping() Mapping {
	return Mapping{
		ClosedAngle: 160.0,
		OpenAngle:   90.0,
		MinStep:     5.0,
		MaxSpeed:    20.0,
	}
}
