package gripper

import (
	"fmt"
	"strings"
)

// Render returns a human-readable multi-line view of the status, suitable
// for terminals and the status-text HTTP route
func (s Status) Render() string {
	var b strings.Builder
	yn := func(v bool) string {
		if v {
			return "YES"
		}
		return "NO"
	}
	fv := "VALID"
	if !s.FeedbackValid {
		fv = "INVALID"
	}
	fmt.Fprintf(&b, "Gripper %d: %s / %s", s.ID, s.State, s.Mode)
	if s.Degraded {
		b.WriteString(" (degraded)")
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Position: %.1f%% (%.1f deg), target %.1f%%\n",
		s.CurrentPercent, s.CurrentAngle, s.TargetPercent)
	fmt.Fprintf(&b, "Moving: %s, progress %.1f%%\n", yn(s.Moving), s.Progress)
	fmt.Fprintf(&b, "Feedback: %s, position error %.2f%%\n", fv, s.PositionError)
	fmt.Fprintf(&b, "Movements: %d, max position error %.2f%%\n",
		s.TotalMovements, s.MaxPositionError)
	fmt.Fprintf(&b, "Hardware angle: %.1f deg, last update %s\n",
		s.HardwareAngle, s.LastUpdate.Format("15:04:05.000"))
	return b.String()
}
