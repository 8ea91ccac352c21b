package slope

import (
	"math"
	"testing"
)

func TestRampReachesTargetAndHolds(t *testing.T) {
	p := New(2, 2, false)
	p.SetTarget(100)
	for i := 1; i <= 50; i++ {
		out := p.Update()
		want := float64(2 * i)
		if out != want {
			t.Fatalf("update %d: out = %v, want %v", i, out, want)
		}
	}
	// once there, it stays
	for i := 0; i < 5; i++ {
		if out := p.Update(); out != 100 {
			t.Fatalf("out = %v after reaching target, want 100", out)
		}
	}
}

func TestSnapToTargetWithoutOvershoot(t *testing.T) {
	p := New(3, 3, false)
	p.SetTarget(7)
	outs := []float64{}
	for i := 0; i < 4; i++ {
		outs = append(outs, p.Update())
	}
	want := []float64{3, 6, 7, 7}
	for i := range want {
		if outs[i] != want[i] {
			t.Errorf("step %d: out = %v, want %v", i, outs[i], want[i])
		}
	}
}

func TestRealValuePriorityReanchors(t *testing.T) {
	const rate = 0.1
	p := New(rate, rate, true)
	p.SetTarget(2.0)
	// march the plan up to 1.5
	for i := 0; i < 15; i++ {
		p.Update()
	}
	if math.Abs(p.Planned()-1.5) > 1e-9 {
		t.Fatalf("plan = %v, want 1.5", p.Planned())
	}
	// the plant is actually at 1.7, between plan and target:
	// the next step starts from reality, not the stale plan
	p.SetReal(1.7)
	out := p.Update()
	if math.Abs(out-(1.7+rate)) > 1e-9 {
		t.Errorf("out = %v, want %v (real + increase rate)", out, 1.7+rate)
	}
}

func TestRealValueIgnoredWhenNotBetween(t *testing.T) {
	const rate = 0.1
	p := New(rate, rate, true)
	p.SetTarget(2.0)
	for i := 0; i < 15; i++ {
		p.Update()
	}
	// measurement behind the plan: no re-anchor, plan continues
	p.SetReal(1.0)
	out := p.Update()
	if math.Abs(out-1.6) > 1e-9 {
		t.Errorf("out = %v, want 1.6 (plan unaffected by lagging measurement)", out)
	}
}

func TestDecreaseRateAppliesWhenBackingOff(t *testing.T) {
	p := New(5, 1, false)
	p.SetTarget(10)
	p.Update()
	p.Update() // planned = 10
	if p.Out() != 10 {
		t.Fatalf("out = %v, want 10", p.Out())
	}
	// target retreats: positive plan decelerates with the decrease rate
	p.SetTarget(4)
	if out := p.Update(); out != 9 {
		t.Errorf("out = %v, want 9 (decrease rate 1)", out)
	}
}

func TestNegativeRegimeMirrors(t *testing.T) {
	p := New(2, 1, false)
	p.SetTarget(-10)
	outs := []float64{p.Update(), p.Update(), p.Update()}
	want := []float64{-2, -4, -6}
	for i := range want {
		if outs[i] != want[i] {
			t.Errorf("step %d: out = %v, want %v", i, outs[i], want[i])
		}
	}
	// retreating toward zero from a negative plan uses the decrease rate
	p.SetTarget(0)
	if out := p.Update(); out != -5 {
		t.Errorf("out = %v, want -5", out)
	}
}

func TestBoundedStepInvariant(t *testing.T) {
	p := New(2.5, 1.5, false)
	p.SetTarget(37)
	prev := 0.0
	maxStep := 2.5
	for i := 0; i < 100; i++ {
		out := p.Update()
		if math.Abs(out-prev) > maxStep+1e-9 {
			t.Fatalf("step %d: |%v - %v| exceeds max rate", i, out, prev)
		}
		prev = out
	}
	if prev != 37 {
		t.Errorf("final out = %v, want 37", prev)
	}
}

func TestReset(t *testing.T) {
	p := New(1, 1, true)
	p.SetTarget(5)
	p.SetReal(2)
	p.Update()
	p.Reset()
	if p.Target() != 0 || p.Planned() != 0 || p.Real() != 0 || p.Out() != 0 {
		t.Error("Reset did not zero all state")
	}
	// rates survive the reset
	p.SetTarget(3)
	if out := p.Update(); out != 1 {
		t.Errorf("out = %v after reset, want 1", out)
	}
}
