/*Package slope implements a rate-limited trajectory planner.

The planner ramps its output toward a target by a bounded step per update,
turning step commands into smooth setpoint trajectories for a downstream
controller.  With real-value priority enabled, the plan re-anchors to the
measured value whenever the measurement sits between the previous plan and
the target, so the plan cannot run away from the plant.
*/
package slope

import "math"

// Planner is a rate-limited trajectory generator.  It is not concurrent
// safe; the owning control loop serializes access.
type Planner struct {
	// increase is the per-update step when the magnitude is growing
	increase float64

	// decrease is the per-update step when the magnitude is shrinking
	decrease float64

	// realPriority enables re-anchoring the plan to the measured value
	realPriority bool

	target  float64
	planned float64 // last output, persisted across updates
	real    float64 // externally supplied measurement
	out     float64
}

// New returns a planner with the given rates.  Rates are per-update
// absolute deltas and must be non-negative.
func New(increase, decrease float64, realPriority bool) *Planner {
	return &Planner{
		increase:     math.Abs(increase),
		decrease:     math.Abs(decrease),
		realPriority: realPriority,
	}
}

// SetTarget sets the value the plan ramps toward
func (p *Planner) SetTarget(target float64) {
	p.target = target
}

// SetReal supplies the measured value; call before Update when real-value
// priority is enabled.
func (p *Planner) SetReal(real float64) {
	p.real = real
}

// SetIncreaseRate sets the per-update step for growing magnitude
func (p *Planner) SetIncreaseRate(rate float64) {
	p.increase = math.Abs(rate)
}

// SetDecreaseRate sets the per-update step for shrinking magnitude
func (p *Planner) SetDecreaseRate(rate float64) {
	p.decrease = math.Abs(rate)
}

// SetRealPriority enables or disables re-anchoring to the measured value
func (p *Planner) SetRealPriority(enable bool) {
	p.realPriority = enable
}

// Target returns the current target
func (p *Planner) Target() float64 { return p.target }

// Out returns the most recent output
func (p *Planner) Out() float64 { return p.out }

// Planned returns the internal plan state, which equals the last output
func (p *Planner) Planned() float64 { return p.planned }

// Real returns the most recently supplied measured value
func (p *Planner) Real() float64 { return p.real }

// Update advances the plan one step toward the target and returns the output.
//
// The branch is taken on the sign of the previous plan, not the output: a
// positive plan decelerates with the decrease rate when the target moves
// back toward zero, a negative plan mirrors that, and a zero plan has no
// established direction so either way out uses the increase rate.
func (p *Planner) Update() float64 {
	// re-anchor to the measurement when it lies between the plan and the
	// target in the direction of travel; planning then continues from
	// where the plant actually is
	if p.realPriority {
		if (p.target >= p.real && p.real >= p.planned) ||
			(p.target <= p.real && p.real <= p.planned) {
			p.out = p.real
		}
	}

	switch {
	case p.planned > 0:
		if p.target > p.planned {
			if math.Abs(p.planned-p.target) > p.increase {
				p.out += p.increase
			} else {
				p.out = p.target
			}
		} else if p.target < p.planned {
			if math.Abs(p.planned-p.target) > p.decrease {
				p.out -= p.decrease
			} else {
				p.out = p.target
			}
		}
	case p.planned < 0:
		if p.target < p.planned {
			if math.Abs(p.planned-p.target) > p.increase {
				p.out -= p.increase
			} else {
				p.out = p.target
			}
		} else if p.target > p.planned {
			if math.Abs(p.planned-p.target) > p.decrease {
				p.out += p.decrease
			} else {
				p.out = p.target
			}
		}
	default:
		if p.target > p.planned {
			if math.Abs(p.planned-p.target) > p.increase {
				p.out += p.increase
			} else {
				p.out = p.target
			}
		} else if p.target < p.planned {
			if math.Abs(p.planned-p.target) > p.increase {
				p.out -= p.increase
			} else {
				p.out = p.target
			}
		}
	}

	p.planned = p.out
	return p.out
}

// Reset zeroes all state, preserving the rates and priority flag.
func (p *Planner) Reset() {
	p.target = 0
	p.planned = 0
	p.real = 0
	p.out = 0
}
