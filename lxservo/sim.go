package lxservo

import (
	"sync"
	"time"
)

// simServo is a first-order plant: it tracks its commanded target at the
// rate implied by the commanded duration
type simServo struct {
	position float64
	target   float64
	rate     float64 // degrees per second
	load     bool    // torque enabled
	updated  time.Time
}

func (s *simServo) advance(now time.Time) {
	if s.position == s.target {
		s.updated = now
		return
	}
	step := s.rate * now.Sub(s.updated).Seconds()
	if s.position < s.target {
		s.position += step
		if s.position > s.target {
			s.position = s.target
		}
	} else {
		s.position -= step
		if s.position < s.target {
			s.position = s.target
		}
	}
	s.updated = now
}

// Simulator stands in for a physical bus.  It satisfies both
// gripper.Transport and gripper.Telemetry and is used by tests and the
// daemon's sim mode.
type Simulator struct {
	mu      sync.Mutex
	now     func() time.Time
	initial float64
	servos  map[int]*simServo
}

// NewSimulator returns a Simulator whose servos all rest at initial degrees
func NewSimulator(initial float64) *Simulator {
	return &Simulator{
		now:     time.Now,
		initial: initial,
		servos:  make(map[int]*simServo),
	}
}

func (s *Simulator) servo(id int) *simServo {
	sv, ok := s.servos[id]
	if !ok {
		sv = &simServo{position: s.initial, target: s.initial, load: true, updated: s.now()}
		s.servos[id] = sv
	}
	return sv
}

// ReadAngle returns the simulated present position of one servo
func (s *Simulator) ReadAngle(id int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv := s.servo(id)
	sv.advance(s.now())
	return sv.position, nil
}

// WritePosition retargets one servo; it will arrive after duration.  An
// unloaded servo ignores position commands, as the hardware does.
func (s *Simulator) WritePosition(id int, angle float64, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv := s.servo(id)
	now := s.now()
	sv.advance(now)
	if !sv.load {
		return nil
	}
	sv.target = angle
	if secs := duration.Seconds(); secs > 0 {
		sv.rate = abs(angle-sv.position) / secs
	} else {
		sv.position = angle
	}
	return nil
}

// Halt freezes one servo at its present simulated position
func (s *Simulator) Halt(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv := s.servo(id)
	sv.advance(s.now())
	sv.target = sv.position
	return nil
}

// SetLoad enables or disables one servo's torque
func (s *Simulator) SetLoad(id int, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv := s.servo(id)
	sv.advance(s.now())
	if !on {
		sv.target = sv.position
	}
	sv.load = on
	return nil
}

// Temperature returns a nominal case temperature
func (s *Simulator) Temperature(id int) (int, error) {
	return 26, nil
}

// Voltage returns a nominal two-cell pack voltage
func (s *Simulator) Voltage(id int) (float64, error) {
	return 7.4, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
