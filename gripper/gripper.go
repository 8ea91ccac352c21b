// Package gripper implements closed and open loop position control of
// serial-bus servo grippers.  A Controller owns a fixed set of actuator
// slots and advances all moving ones from a single periodic control loop;
// commands arrive through the public setters, which are serialized with
// the loop behind one mutex.
package gripper

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brandondube/ringo"
	"golang.org/x/time/rate"

	"github.com/skyswordx/gripperd/pid"
	"github.com/skyswordx/gripperd/slope"
	"github.com/skyswordx/gripperd/util"
)

const (
	// MaxGrippers is the number of actuator slots, fixed at startup.
	// Bus ids and slot indices are the same small integers.
	MaxGrippers = 4

	// ControlFrequency is the control loop rate in Hz
	ControlFrequency = 20

	// controlPeriod is one loop cycle
	controlPeriod = time.Second / ControlFrequency

	// commandSlack is added to each positional micro-move so the next
	// cycle's correction arrives before the servo finishes
	commandSlack = 10 * time.Millisecond

	// precision is the position tolerance for movement completion, percent
	precision = 0.5

	// percentEpsilon is the tolerance for plan completion, percent
	percentEpsilon = 0.1

	// errHistoryDepth is the per-actuator telemetry ring size
	errHistoryDepth = 128
)

// percentLimits bounds logical openness commands
var percentLimits = util.Limiter{Min: 0, Max: 100}

// Transport moves commands and feedback between the controller and the
// physical bus.  Calls are blocking and are expected to complete well
// within one control period.
type Transport interface {
	// ReadAngle reads the present angle of one actuator in degrees
	ReadAngle(id int) (float64, error)

	// WritePosition commands one actuator to the given angle over the
	// given duration
	WritePosition(id int, angle float64, duration time.Duration) error
}

// Controller drives up to MaxGrippers actuators.  The zero value is not
// usable; create one with New.
type Controller struct {
	sync.Mutex
	t   Transport
	now func() time.Time

	status  [MaxGrippers]Status
	mapping [MaxGrippers]Mapping
	params  [MaxGrippers]ControlParams
	pids    [MaxGrippers]*pid.Controller
	slopes  [MaxGrippers]*slope.Planner
	errHist [MaxGrippers]ringo.CircleF64
}

// New returns a Controller with every slot idle, in open loop, and carrying
// the reference mapping and tuning
func New(t Transport) *Controller {
	c := Controller{t: t, now: time.Now}
	start := time.Now()
	for i := 0; i < MaxGrippers; i++ {
		c.mapping[i] = DefaultMapping()
		c.params[i] = DefaultControlParams()
		c.status[i] = Status{
			ID:            i,
			State:         Idle,
			Mode:          OpenLoop,
			FeedbackValid: false,
			LastUpdate:    start,
			LastFeedback:  start,
		}
		p := c.params[i]
		c.pids[i] = pid.NewWithConfig(pid.Config{
			Kp:          p.Kp,
			Ki:          p.Ki,
			Kd:          p.Kd,
			Dt:          controlPeriod.Seconds(),
			OutputLimit: p.OutputLimit,
			DeadZone:    p.DeadZone,
		})
		c.slopes[i] = slope.New(p.SlopeIncrease, p.SlopeDecrease, p.SlopeRealPriority)
		c.errHist[i].Init(errHistoryDepth)
	}
	return &c
}

func validID(id int) error {
	if id < 0 || id >= MaxGrippers {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidID, id, MaxGrippers)
	}
	return nil
}

// ConfigureMapping installs a validated angle mapping for one actuator and
// marks it calibrated.  A rejected mapping changes nothing.
func (c *Controller) ConfigureMapping(id int, m Mapping) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}
	m.Calibrated = true
	c.Lock()
	defer c.Unlock()
	c.mapping[id] = m
	return nil
}

// Mapping returns a copy of one actuator's mapping
func (c *Controller) Mapping(id int) (Mapping, error) {
	if err := validID(id); err != nil {
		return Mapping{}, err
	}
	c.Lock()
	defer c.Unlock()
	return c.mapping[id], nil
}

// SetControlParams installs new tuning for one actuator and pushes it into
// the planner and corrector immediately
func (c *Controller) SetControlParams(id int, p ControlParams) error {
	if err := validID(id); err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	c.params[id] = p
	c.pids[id].SetGains(p.Kp, p.Ki, p.Kd)
	c.pids[id].SetOutputLimit(p.OutputLimit)
	c.pids[id].SetDeadZone(p.DeadZone)
	c.slopes[id].SetIncreaseRate(p.SlopeIncrease)
	c.slopes[id].SetDecreaseRate(p.SlopeDecrease)
	c.slopes[id].SetRealPriority(p.SlopeRealPriority)
	return nil
}

// ControlParams returns a copy of one actuator's tuning
func (c *Controller) ControlParams(id int) (ControlParams, error) {
	if err := validID(id); err != nil {
		return ControlParams{}, err
	}
	c.Lock()
	defer c.Unlock()
	return c.params[id], nil
}

// SetMode selects the control strategy for one actuator.  Changing the mode
// resets the planner and corrector so stale state cannot leak across
// strategies.  ForceControl is not implemented and behaves as open loop;
// the status carries Degraded while it is selected.
func (c *Controller) SetMode(id int, mode Mode) error {
	if err := validID(id); err != nil {
		return err
	}
	if mode < OpenLoop || mode > ForceControl {
		return fmt.Errorf("%w: %d", ErrUnknownMode, mode)
	}
	c.Lock()
	defer c.Unlock()
	st := &c.status[id]
	if mode != st.Mode {
		c.pids[id].Reset()
		c.slopes[id].Reset()
	}
	st.Mode = mode
	st.Degraded = mode == ForceControl
	return nil
}

// SmoothMove starts a ramped move of one actuator to targetPercent.  A
// non-positive duration auto-computes one from the mapping's MaxSpeed.
// The movement duration never exceeds the safety stop timeout.
func (c *Controller) SmoothMove(id int, targetPercent float64, duration time.Duration) error {
	if err := validID(id); err != nil {
		return err
	}
	if !percentLimits.Check(targetPercent) {
		return fmt.Errorf("%w: %.1f", ErrInvalidPercent, targetPercent)
	}
	c.Lock()
	defer c.Unlock()
	st := &c.status[id]
	if duration <= 0 {
		speed := c.mapping[id].MaxSpeed
		if speed <= 0 {
			return fmt.Errorf("%w: max speed %.1f %%/s, cannot auto-compute duration",
				ErrInvalidMapping, speed)
		}
		duration = time.Duration(math.Abs(targetPercent-st.CurrentPercent) / speed * float64(time.Second))
	}
	if max := c.params[id].SafetyStopTimeout; max > 0 && duration > max {
		duration = max
	}
	st.TargetPercent = targetPercent
	st.MoveStart = c.now()
	st.MoveDuration = duration
	st.Moving = true
	st.State = Moving
	st.Progress = 0
	c.slopes[id].SetTarget(targetPercent)
	return nil
}

// Stop freezes one actuator where it is.  Safe to call from any goroutine at
// any time; it is observed either before or after a loop cycle, never inside
// one.
func (c *Controller) Stop(id int) error {
	if err := validID(id); err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	st := &c.status[id]
	st.Moving = false
	st.State = Holding
	st.TargetPercent = st.CurrentPercent
	c.slopes[id].SetTarget(st.CurrentPercent)
	return nil
}

// Status returns a snapshot copy of one actuator's state
func (c *Controller) Status(id int) (Status, error) {
	if err := validID(id); err != nil {
		return Status{}, err
	}
	c.Lock()
	defer c.Unlock()
	return c.status[id], nil
}

// ErrorHistory returns the recent closed-loop position errors of one
// actuator, oldest first
func (c *Controller) ErrorHistory(id int) ([]float64, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	c.Lock()
	defer c.Unlock()
	return c.errHist[id].Contiguous(), nil
}

// CalibratePosition is reserved for on-site calibration against a named
// reference position
func (c *Controller) CalibratePosition(id int, reference string) error {
	if err := validID(id); err != nil {
		return err
	}
	return fmt.Errorf("calibrate position: %w", ErrNotImplemented)
}

// AdjustMapping is reserved for fine mapping adjustment by angular offset
func (c *Controller) AdjustMapping(id int, positionType string, angleOffset float64) error {
	if err := validID(id); err != nil {
		return err
	}
	return fmt.Errorf("adjust mapping: %w", ErrNotImplemented)
}

// PrecisionTest is reserved for sweeping the actuator and reporting
// repeatability
func (c *Controller) PrecisionTest(id int, startPercent, endPercent, stepPercent float64) error {
	if err := validID(id); err != nil {
		return err
	}
	return fmt.Errorf("precision test: %w", ErrNotImplemented)
}

// LearnFriction is reserved for identifying friction compensation
// coefficients
func (c *Controller) LearnFriction(id int) error {
	if err := validID(id); err != nil {
		return err
	}
	return fmt.Errorf("learn friction: %w", ErrNotImplemented)
}

// Run drives the control loop until ctx is canceled.  Exactly one Run per
// Controller.
func (c *Controller) Run(ctx context.Context) error {
	lim := rate.NewLimiter(rate.Every(controlPeriod), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		c.step()
	}
}

// step advances every non-idle actuator once.  Actuators are updated
// independently so one fault never blocks the rest.
func (c *Controller) step() {
	now := c.now()
	for id := 0; id < MaxGrippers; id++ {
		c.updateOne(id, now)
	}
}

func (c *Controller) updateOne(id int, now time.Time) {
	c.Lock()
	defer c.Unlock()
	st := &c.status[id]
	if st.State == Idle {
		return
	}
	m := c.mapping[id]
	p := c.params[id]

	// 1. feedback
	angle, err := c.t.ReadAngle(id)
	if err == nil {
		st.HardwareAngle = angle
		st.CurrentAngle = angle
		st.CurrentPercent = m.AngleToPercent(angle)
		st.FeedbackValid = true
		st.LastFeedback = now
	} else if now.Sub(st.LastFeedback) > p.FeedbackTimeout {
		st.FeedbackValid = false
		st.State = Error
		st.Moving = false
	}

	// 2. movement progress
	if st.Moving && st.MoveDuration > 0 {
		elapsed := now.Sub(st.MoveStart)
		if elapsed >= st.MoveDuration {
			st.Progress = 100
		} else {
			st.Progress = float64(elapsed) / float64(st.MoveDuration) * 100
		}
	}

	if st.Moving {
		// 3. plan, and in closed loop correct
		pl := c.slopes[id]
		pl.SetReal(st.CurrentPercent)
		pl.Update()
		planned := pl.Out()

		var targetAngle float64
		switch st.Mode {
		case OpenLoop:
			targetAngle = m.PercentToAngle(planned)
		case ClosedLoop:
			plannedAngle := m.PercentToAngle(planned)
			correction := c.pids[id].Update(plannedAngle, st.CurrentAngle)
			targetAngle = st.CurrentAngle + correction
			st.PositionError = math.Abs(planned - st.CurrentPercent)
			if st.PositionError > st.MaxPositionError {
				st.MaxPositionError = st.PositionError
			}
			c.errHist[id].Append(st.PositionError)
		case ForceControl:
			// not implemented; falls back to the open loop path and the
			// status carries Degraded while selected
			targetAngle = m.PercentToAngle(planned)
		}

		// 4. command; a failed write is superseded next cycle
		targetAngle = util.Clamp(targetAngle, AngleMin, AngleMax)
		_ = c.t.WritePosition(id, targetAngle, controlPeriod+commandSlack)

		// 5. completion, first true wins
		positionReached := math.Abs(st.TargetPercent-st.CurrentPercent) < precision
		timeReached := st.Progress >= 100
		planDone := math.Abs(pl.Out()-st.TargetPercent) < percentEpsilon
		if positionReached || timeReached || planDone {
			st.Moving = false
			st.State = Holding
			st.Progress = 100
			st.TotalMovements++
		}
	}

	st.LastUpdate = now
}
