package gripper

import (
	"errors"
	"math"
	"testing"
	"time"
)

// plantTransport echoes the last commanded angle back as feedback, a
// zero-lag plant.  readErr, when set, fails reads of slot errID.
type plantTransport struct {
	angle   [MaxGrippers]float64
	readErr error
	errID   int
	writes  int
}

func (p *plantTransport) ReadAngle(id int) (float64, error) {
	if p.readErr != nil && id == p.errID {
		return 0, p.readErr
	}
	return p.angle[id], nil
}

func (p *plantTransport) WritePosition(id int, angle float64, d time.Duration) error {
	p.angle[id] = angle
	p.writes++
	return nil
}

// testController returns a controller on a fake clock starting at base
func testController(t *testing.T, tr Transport) (*Controller, *time.Time) {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := base
	c := New(tr)
	c.now = func() time.Time { return clk }
	for i := 0; i < MaxGrippers; i++ {
		c.status[i].LastFeedback = base
		c.status[i].LastUpdate = base
	}
	return c, &clk
}

func TestSmoothMoveStartsMovement(t *testing.T) {
	tr := &plantTransport{}
	c, _ := testController(t, tr)
	err := c.SmoothMove(0, 50, time.Second)
	if err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	st, _ := c.Status(0)
	if st.State != Moving || !st.Moving {
		t.Errorf("expected MOVING, got %v moving=%v", st.State, st.Moving)
	}
	if st.TargetPercent != 50 {
		t.Errorf("target = %v, want 50", st.TargetPercent)
	}
	if st.Progress != 0 {
		t.Errorf("progress = %v, want 0", st.Progress)
	}
	if st.MoveDuration != time.Second {
		t.Errorf("duration = %v, want 1s", st.MoveDuration)
	}
}

func TestSmoothMoveValidation(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	if err := c.SmoothMove(-1, 10, time.Second); !errors.Is(err, ErrInvalidID) {
		t.Errorf("id -1: got %v, want ErrInvalidID", err)
	}
	if err := c.SmoothMove(MaxGrippers, 10, time.Second); !errors.Is(err, ErrInvalidID) {
		t.Errorf("id %d: got %v, want ErrInvalidID", MaxGrippers, err)
	}
	if err := c.SmoothMove(0, 101, time.Second); !errors.Is(err, ErrInvalidPercent) {
		t.Errorf("percent 101: got %v, want ErrInvalidPercent", err)
	}
	if err := c.SmoothMove(0, -0.5, time.Second); !errors.Is(err, ErrInvalidPercent) {
		t.Errorf("percent -0.5: got %v, want ErrInvalidPercent", err)
	}
	// a rejected command leaves the slot idle
	st, _ := c.Status(0)
	if st.State != Idle {
		t.Errorf("state after rejected commands = %v, want IDLE", st.State)
	}
}

func TestSmoothMoveAutoDuration(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	// default max speed is 20 %/s, 0 -> 60% should take 3s
	if err := c.SmoothMove(1, 60, 0); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	st, _ := c.Status(1)
	if st.MoveDuration != 3*time.Second {
		t.Errorf("auto duration = %v, want 3s", st.MoveDuration)
	}
}

func TestSmoothMoveCappedBySafetyTimeout(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	if err := c.SmoothMove(0, 100, time.Hour); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	st, _ := c.Status(0)
	if st.MoveDuration != DefaultControlParams().SafetyStopTimeout {
		t.Errorf("duration = %v, want the safety stop timeout", st.MoveDuration)
	}
}

func TestOpenLoopMoveCompletes(t *testing.T) {
	tr := &plantTransport{}
	c, clk := testController(t, tr)
	tr.angle[0] = 160 // fully closed under the default mapping
	if err := c.SmoothMove(0, 50, 10*time.Second); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	for i := 0; i < 60; i++ {
		*clk = clk.Add(controlPeriod)
		c.step()
		st, _ := c.Status(0)
		if !st.Moving {
			break
		}
	}
	st, _ := c.Status(0)
	if st.State != Holding {
		t.Fatalf("state = %v, want HOLDING", st.State)
	}
	if st.Progress != 100 {
		t.Errorf("progress = %v, want 100", st.Progress)
	}
	if st.TotalMovements != 1 {
		t.Errorf("total movements = %d, want 1", st.TotalMovements)
	}
	if math.Abs(st.CurrentPercent-50) > 5 {
		t.Errorf("current percent = %v, want near 50", st.CurrentPercent)
	}
	if tr.writes == 0 {
		t.Error("no positions were commanded")
	}
}

func TestClosedLoopRecordsPositionError(t *testing.T) {
	tr := &plantTransport{}
	c, clk := testController(t, tr)
	tr.angle[0] = 160
	if err := c.SetMode(0, ClosedLoop); err != nil {
		t.Fatalf("SetMode returned %v", err)
	}
	if err := c.SmoothMove(0, 30, 5*time.Second); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	for i := 0; i < 40; i++ {
		*clk = clk.Add(controlPeriod)
		c.step()
	}
	hist, err := c.ErrorHistory(0)
	if err != nil {
		t.Fatalf("ErrorHistory returned %v", err)
	}
	if len(hist) == 0 {
		t.Error("closed-loop cycles recorded no position errors")
	}
	st, _ := c.Status(0)
	if st.State != Holding {
		t.Errorf("state = %v, want HOLDING", st.State)
	}
}

func TestStopFreezesActuator(t *testing.T) {
	tr := &plantTransport{}
	c, clk := testController(t, tr)
	tr.angle[0] = 160
	if err := c.SmoothMove(0, 100, 10*time.Second); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	for i := 0; i < 5; i++ {
		*clk = clk.Add(controlPeriod)
		c.step()
	}
	if err := c.Stop(0); err != nil {
		t.Fatalf("Stop returned %v", err)
	}
	st, _ := c.Status(0)
	if st.State != Holding || st.Moving {
		t.Errorf("after stop: state=%v moving=%v, want HOLDING and not moving", st.State, st.Moving)
	}
	if st.TargetPercent != st.CurrentPercent {
		t.Errorf("stop did not retarget to the current position: target=%v current=%v",
			st.TargetPercent, st.CurrentPercent)
	}
	writes := tr.writes
	// subsequent cycles must not command motion
	for i := 0; i < 5; i++ {
		*clk = clk.Add(controlPeriod)
		c.step()
	}
	if tr.writes != writes {
		t.Errorf("positions commanded after stop: %d -> %d", writes, tr.writes)
	}
}

func TestFeedbackTimeoutEscalatesToError(t *testing.T) {
	tr := &plantTransport{}
	c, clk := testController(t, tr)
	tr.angle[0] = 160
	if err := c.SmoothMove(0, 80, 10*time.Second); err != nil {
		t.Fatalf("SmoothMove returned %v", err)
	}
	*clk = clk.Add(controlPeriod)
	c.step()
	tr.readErr = errors.New("bus dead")

	// failures inside the timeout are tolerated
	*clk = clk.Add(time.Second)
	c.step()
	st, _ := c.Status(0)
	if st.State == Error {
		t.Fatal("escalated to ERROR before the feedback timeout elapsed")
	}
	if !st.FeedbackValid {
		t.Error("feedback marked invalid before the timeout elapsed")
	}

	*clk = clk.Add(DefaultControlParams().FeedbackTimeout + time.Second)
	c.step()
	st, _ = c.Status(0)
	if st.State != Error {
		t.Fatalf("state = %v, want ERROR", st.State)
	}
	if st.FeedbackValid {
		t.Error("feedback still marked valid after the timeout")
	}
	if st.Moving {
		t.Error("movement planning not halted on escalation")
	}

	// a fresh command re-arms the actuator
	tr.readErr = nil
	if err := c.SmoothMove(0, 80, time.Second); err != nil {
		t.Fatalf("SmoothMove after error returned %v", err)
	}
	st, _ = c.Status(0)
	if st.State != Moving {
		t.Errorf("state after reissue = %v, want MOVING", st.State)
	}
}

func TestFaultIsolation(t *testing.T) {
	// a dead read on one slot must not stall the other's movement
	tr := &plantTransport{readErr: errors.New("bus dead"), errID: 0}
	c, clk := testController(t, tr)
	tr.angle[1] = 160
	if err := c.SmoothMove(0, 20, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	if err := c.SmoothMove(1, 20, 10*time.Second); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 60; i++ {
		*clk = clk.Add(controlPeriod)
		c.step()
	}
	st, _ := c.Status(1)
	if st.State != Holding {
		t.Errorf("healthy actuator state = %v, want HOLDING", st.State)
	}
}

func TestSetModeDegradedFlag(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	if err := c.SetMode(0, ForceControl); err != nil {
		t.Fatalf("SetMode returned %v", err)
	}
	st, _ := c.Status(0)
	if !st.Degraded {
		t.Error("ForceControl did not set the degraded flag")
	}
	if err := c.SetMode(0, OpenLoop); err != nil {
		t.Fatalf("SetMode returned %v", err)
	}
	st, _ = c.Status(0)
	if st.Degraded {
		t.Error("degraded flag not cleared leaving ForceControl")
	}
	if err := c.SetMode(0, Mode(99)); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("mode 99: got %v, want ErrUnknownMode", err)
	}
}

func TestConfigureMappingRejectsInvalid(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	before, _ := c.Mapping(0)
	bad := Mapping{ClosedAngle: 300, OpenAngle: 90, MinStep: 5, MaxSpeed: 20}
	if err := c.ConfigureMapping(0, bad); !errors.Is(err, ErrInvalidMapping) {
		t.Fatalf("got %v, want ErrInvalidMapping", err)
	}
	after, _ := c.Mapping(0)
	if after != before {
		t.Error("rejected mapping mutated the configuration")
	}

	good := Mapping{ClosedAngle: 150, OpenAngle: 95, MinStep: 5, MaxSpeed: 25}
	if err := c.ConfigureMapping(0, good); err != nil {
		t.Fatalf("ConfigureMapping returned %v", err)
	}
	after, _ = c.Mapping(0)
	if !after.Calibrated {
		t.Error("accepted mapping not marked calibrated")
	}
	if after.ClosedAngle != 150 || after.OpenAngle != 95 {
		t.Errorf("mapping not installed: %+v", after)
	}
}

func TestReservedOperations(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	ops := map[string]error{
		"calibrate": c.CalibratePosition(0, "closed"),
		"adjust":    c.AdjustMapping(0, "open", 1.5),
		"precision": c.PrecisionTest(0, 0, 100, 10),
		"friction":  c.LearnFriction(0),
	}
	for name, err := range ops {
		if !errors.Is(err, ErrNotImplemented) {
			t.Errorf("%s: got %v, want ErrNotImplemented", name, err)
		}
	}
	if err := c.LearnFriction(-1); !errors.Is(err, ErrInvalidID) {
		t.Errorf("bad id checked after implementation gate: %v", err)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"open-loop", OpenLoop, true},
		{"OPEN_LOOP", OpenLoop, true},
		{"closed loop", ClosedLoop, true},
		{"CLOSED_LOOP", ClosedLoop, true},
		{"force", ForceControl, true},
		{"sideways", OpenLoop, false},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseMode(%q) accepted garbage", tc.in)
		}
	}
}

func TestStatusSnapshotIsACopy(t *testing.T) {
	c, _ := testController(t, &plantTransport{})
	st, err := c.Status(2)
	if err != nil {
		t.Fatalf("Status returned %v", err)
	}
	st.State = Error
	again, _ := c.Status(2)
	if again.State == Error {
		t.Error("mutating the snapshot leaked into the controller")
	}
}
