/*Package pid implements a single-input single-output PID controller with
anti-windup, variable-speed integration, integral separation, derivative
on measurement, and feedforward.

The controller is deliberately number-in number-out; it holds no references
to hardware and never fails.  Misconfiguration is prevented at construction
(a non-positive cycle time falls back to the default) so that Update can be
called from a control loop without an error path.
*/
package pid

import "math"

const (
	// epsilon is the floating point comparison tolerance
	epsilon = 1e-6

	// DefaultDt is the cycle time used when none is configured, 1 ms
	DefaultDt = 0.001
)

// State describes what regime the controller operated in on its last update
type State int

const (
	// Stop means the error was approximately zero
	Stop State = iota

	// Normal means ordinary closed-loop operation
	Normal

	// Saturated means the output was clipped at its limit
	Saturated

	// DeadZone means the error was inside the dead zone and treated as zero
	DeadZone
)

func (s State) String() string {
	switch s {
	case Stop:
		return "STOP"
	case Normal:
		return "NORMAL"
	case Saturated:
		return "SATURATED"
	case DeadZone:
		return "DEAD_ZONE"
	default:
		return "UNKNOWN"
	}
}

// Config holds the full parameter set for a controller.  Zero values
// disable the associated feature: a limit of 0 is unbounded, variable-speed
// thresholds of 0 integrate fully, a separation threshold of 0 never
// separates.
type Config struct {
	// Kp, Ki, Kd are the proportional, integral and derivative gains
	Kp, Ki, Kd float64

	// Kf is the feedforward gain, applied to the change in target
	Kf float64

	// Dt is the cycle time in seconds; non-positive values fall back to DefaultDt
	Dt float64

	// DeadZone is the error magnitude treated as zero
	DeadZone float64

	// OutputLimit bounds the output to +/- its value; 0 is unbounded
	OutputLimit float64

	// IntegralLimit bounds Ki*integral to +/- its value; 0 is unbounded
	IntegralLimit float64

	// VariableSpeedA and VariableSpeedB are the full-integration and
	// no-integration error thresholds; both zero disables the feature
	VariableSpeedA, VariableSpeedB float64

	// SeparationThreshold clears the integral when |error| meets it; 0 disables
	SeparationThreshold float64

	// DerivativeOnMeasurement differentiates the feedback instead of the
	// error, avoiding derivative spikes on setpoint jumps
	DerivativeOnMeasurement bool
}

// Controller is a SISO PID controller.  It is not concurrent safe; the
// owning control loop serializes access.
type Controller struct {
	// configuration
	kp, ki, kd, kf      float64
	dt                  float64
	deadZone            float64
	outputLimit         float64
	integralLimit       float64
	enableOutputLimit   bool
	enableIntegralLimit bool
	varSpeedA           float64
	varSpeedB           float64
	separateThreshold   float64
	derivOnMeasurement  bool

	// mutable state
	target      float64
	feedback    float64
	output      float64
	err         float64
	integralErr float64

	prevFeedback float64
	prevTarget   float64
	prevErr      float64
	prevOutput   float64

	state State

	// debug breakdown and statistics
	pOut, iOut, dOut, fOut float64
	maxErr                 float64
	updateCount            uint64
}

// New returns a controller with the given gains and all enhanced features
// disabled, running at DefaultDt.
func New(kp, ki, kd float64) *Controller {
	return NewWithConfig(Config{Kp: kp, Ki: ki, Kd: kd})
}

// NewWithConfig returns a fully configured controller.
func NewWithConfig(cfg Config) *Controller {
	c := &Controller{
		kp: cfg.Kp,
		ki: cfg.Ki,
		kd: cfg.Kd,
		kf: cfg.Kf,
		dt: cfg.Dt,
	}
	if c.dt <= epsilon {
		c.dt = DefaultDt
	}
	c.SetDeadZone(cfg.DeadZone)
	c.SetOutputLimit(cfg.OutputLimit)
	c.SetIntegralLimit(cfg.IntegralLimit)
	c.SetVariableIntegration(cfg.VariableSpeedA, cfg.VariableSpeedB)
	c.SetIntegralSeparation(cfg.SeparationThreshold)
	c.derivOnMeasurement = cfg.DerivativeOnMeasurement
	return c
}

// SetGains updates the three feedback gains, leaving state intact so a
// controller can be retuned while running.
func (c *Controller) SetGains(kp, ki, kd float64) {
	c.kp = kp
	c.ki = ki
	c.kd = kd
}

// SetFeedforward sets the feedforward gain
func (c *Controller) SetFeedforward(kf float64) {
	c.kf = kf
}

// SetOutputLimit bounds the output to +/- limit; 0 disables the bound
func (c *Controller) SetOutputLimit(limit float64) {
	c.outputLimit = math.Abs(limit)
	c.enableOutputLimit = c.outputLimit > epsilon
}

// SetIntegralLimit bounds the integral contribution to +/- limit; 0 disables
func (c *Controller) SetIntegralLimit(limit float64) {
	c.integralLimit = math.Abs(limit)
	c.enableIntegralLimit = c.integralLimit > epsilon
}

// SetDeadZone sets the error magnitude treated as zero
func (c *Controller) SetDeadZone(dz float64) {
	c.deadZone = math.Abs(dz)
}

// SetVariableIntegration sets the full-integration threshold a and the
// no-integration threshold b.  They are swapped if given out of order.
func (c *Controller) SetVariableIntegration(a, b float64) {
	a, b = math.Abs(a), math.Abs(b)
	if b < a {
		a, b = b, a
	}
	c.varSpeedA = a
	c.varSpeedB = b
}

// SetIntegralSeparation sets the error magnitude at which accumulation is
// suspended and the integral cleared; 0 disables separation
func (c *Controller) SetIntegralSeparation(threshold float64) {
	c.separateThreshold = math.Abs(threshold)
}

// SetDerivativeOnMeasurement selects differentiating the feedback (true)
// or the error (false)
func (c *Controller) SetDerivativeOnMeasurement(enable bool) {
	c.derivOnMeasurement = enable
}

// Update runs one control cycle and returns the output.
func (c *Controller) Update(target, feedback float64) float64 {
	c.pOut = 0
	c.iOut = 0
	c.dOut = 0
	c.fOut = 0

	c.target = target
	c.feedback = feedback

	err := target - feedback
	absErr := math.Abs(err)

	// dead zone: zero inside, shrink toward zero outside so the output is
	// continuous across the zone boundary
	if c.deadZone >= epsilon {
		if absErr <= c.deadZone {
			c.target = c.feedback
			err = 0
		} else if err > 0 {
			err -= c.deadZone
		} else {
			err += c.deadZone
		}
		absErr = math.Abs(err)
	}
	c.err = err

	if absErr > c.maxErr {
		c.maxErr = absErr
	}

	c.pOut = c.kp * err

	// variable-speed integration: full below a, fading linearly to none at b
	var ratio float64
	if c.varSpeedA < epsilon && c.varSpeedB < epsilon {
		ratio = 1.0
	} else if absErr <= c.varSpeedA {
		ratio = 1.0
	} else if absErr < c.varSpeedB {
		ratio = (c.varSpeedB - absErr) / (c.varSpeedB - c.varSpeedA)
	} else {
		ratio = 0.0
	}

	// clamp the accumulator before accumulating so Ki*integral stays bounded
	if c.enableIntegralLimit && c.ki > epsilon {
		maxIntegral := c.integralLimit / c.ki
		if c.integralErr > maxIntegral {
			c.integralErr = maxIntegral
		} else if c.integralErr < -maxIntegral {
			c.integralErr = -maxIntegral
		}
	}

	if c.separateThreshold > epsilon && absErr >= c.separateThreshold {
		// large transient, suspend and dump the integral
		c.integralErr = 0
		c.iOut = 0
	} else {
		c.integralErr += ratio * c.dt * err
		c.iOut = c.ki * c.integralErr
	}

	if c.derivOnMeasurement {
		c.dOut = -c.kd * (feedback - c.prevFeedback) / c.dt
	} else {
		c.dOut = c.kd * (err - c.prevErr) / c.dt
	}

	c.fOut = c.kf * (target - c.prevTarget)

	c.output = c.pOut + c.iOut + c.dOut + c.fOut
	if c.enableOutputLimit {
		if c.output > c.outputLimit {
			c.output = c.outputLimit
		} else if c.output < -c.outputLimit {
			c.output = -c.outputLimit
		}
	}

	c.prevFeedback = feedback
	c.prevTarget = target
	c.prevErr = err
	c.prevOutput = c.output

	c.classify()
	c.updateCount++

	return c.output
}

// classify derives the state from the most recent cycle
func (c *Controller) classify() {
	absErr := math.Abs(c.err)
	switch {
	case absErr < epsilon:
		c.state = Stop
	case absErr <= c.deadZone:
		c.state = DeadZone
	case c.enableOutputLimit && math.Abs(c.output) >= c.outputLimit-epsilon:
		c.state = Saturated
	default:
		c.state = Normal
	}
}

// Reset zeroes all mutable state, preserving the configuration.
func (c *Controller) Reset() {
	c.target = 0
	c.feedback = 0
	c.output = 0
	c.err = 0
	c.integralErr = 0
	c.prevFeedback = 0
	c.prevTarget = 0
	c.prevErr = 0
	c.prevOutput = 0
	c.pOut = 0
	c.iOut = 0
	c.dOut = 0
	c.fOut = 0
	c.maxErr = 0
	c.updateCount = 0
	c.state = Stop
}

// ClearIntegral zeroes only the accumulated integral
func (c *Controller) ClearIntegral() {
	c.integralErr = 0
	c.iOut = 0
}

// Output returns the most recent output
func (c *Controller) Output() float64 { return c.output }

// Err returns the most recent (dead-zone adjusted) error
func (c *Controller) Err() float64 { return c.err }

// IntegralError returns the accumulated integral of error
func (c *Controller) IntegralError() float64 { return c.integralErr }

// State returns the regime of the last update
func (c *Controller) State() State { return c.state }

// Breakdown returns the per-term contributions of the last update,
// in the order p, i, d, f
func (c *Controller) Breakdown() (p, i, d, f float64) {
	return c.pOut, c.iOut, c.dOut, c.fOut
}

// MaxError returns the largest error magnitude seen since the last Reset
func (c *Controller) MaxError() float64 { return c.maxErr }

// UpdateCount returns the number of updates since the last Reset
func (c *Controller) UpdateCount() uint64 { return c.updateCount }

// Dt returns the configured cycle time in seconds
func (c *Controller) Dt() float64 { return c.dt }
