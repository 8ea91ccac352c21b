package gripper

import (
	"fmt"
	"math"

	"github.com/skyswordx/gripperd/util"
)

const (
	// AngleMin and AngleMax bound the physical travel of the actuator in degrees
	AngleMin = 0.0
	AngleMax = 240.0

	// MinStepFloor and MinStepCeil bound the permitted minimum step, degrees
	MinStepFloor = 0.1
	MinStepCeil  = 50.0
)

// Mapping converts between logical openness percent and physical angle.
// 0% is fully closed, 100% is fully open.
type Mapping struct {
	// ClosedAngle is the angle at 0% openness, degrees
	ClosedAngle float64 `json:"closedAngle" yaml:"closedAngle"`

	// OpenAngle is the angle at 100% openness, degrees
	OpenAngle float64 `json:"openAngle" yaml:"openAngle"`

	// MinStep is the smallest angular move considered significant, degrees.
	// Commands below it would be eaten by backlash.
	MinStep float64 `json:"minStep" yaml:"minStep"`

	// MaxSpeed is used to auto-compute movement durations, percent per second
	MaxSpeed float64 `json:"maxSpeed" yaml:"maxSpeed"`

	// Calibrated indicates the mapping came from a calibration rather than defaults
	Calibrated bool `json:"calibrated" yaml:"calibrated"`

	// Reverse inverts the percent-angle relationship
	Reverse bool `json:"reverse" yaml:"reverse"`
}

// Validate checks the mapping against the physical envelope.  A rejected
// mapping leaves the actuator's configuration untouched.
func (m Mapping) Validate() error {
	if m.ClosedAngle < AngleMin || m.ClosedAngle > AngleMax ||
		m.OpenAngle < AngleMin || m.OpenAngle > AngleMax {
		return fmt.Errorf("%w: closed=%.1f open=%.1f outside [%g,%g] deg",
			ErrInvalidMapping, m.ClosedAngle, m.OpenAngle, AngleMin, AngleMax)
	}
	if m.MinStep < MinStepFloor || m.MinStep > MinStepCeil {
		return fmt.Errorf("%w: min step %.1f outside [%g,%g] deg",
			ErrInvalidMapping, m.MinStep, MinStepFloor, MinStepCeil)
	}
	if math.Abs(m.ClosedAngle-m.OpenAngle) < m.MinStep {
		return fmt.Errorf("%w: angle range %.1f deg smaller than min step %.1f",
			ErrInvalidMapping, math.Abs(m.ClosedAngle-m.OpenAngle), m.MinStep)
	}
	return nil
}

// AngleToPercent converts a physical angle to openness percent, clamped
// to [0,100].
func (m Mapping) AngleToPercent(angle float64) float64 {
	rng := m.OpenAngle - m.ClosedAngle
	if math.Abs(rng) < 0.1 {
		return 0
	}
	var pct float64
	if m.Reverse {
		pct = (m.OpenAngle - angle) / rng * 100
	} else {
		pct = (angle - m.ClosedAngle) / rng * 100
	}
	return util.Clamp(pct, 0, 100)
}

// PercentToAngle converts openness percent to a physical angle, clamping the
// input to [0,100] and the result to the actuator's travel regardless of how
// the mapping is configured.
func (m Mapping) PercentToAngle(pct float64) float64 {
	pct = util.Clamp(pct, 0, 100)
	rng := m.OpenAngle - m.ClosedAngle
	var angle float64
	if m.Reverse {
		angle = m.OpenAngle - pct/100*rng
	} else {
		angle = m.ClosedAngle + pct/100*rng
	}
	return util.Clamp(angle, AngleMin, AngleMax)
}
