// Package crossing decides whether a price series crossed a target
// between two consecutive observations.
package crossing

type Result int

const (
	None Result = iota
	Up
	Down
)

func (r Result) String() string {
	switch r {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "none"
}

// Crossed reports whether the result is a crossing in either direction.
func (r Result) Crossed() bool {
	return r != None
}

// Evaluate reports whether the target lies between the previous and current
// samples. The previous sample must be strictly on one side of the target;
// the current sample completes the crossing when it reaches or passes it.
// A nil previous means there is no baseline yet, so no crossing can be
// declared. A previous exactly equal to the target does not re-fire.
func Evaluate(previous *float64, current, target float64) Result {
	if previous == nil {
		return None
	}
	switch {
	case *previous > target && current <= target:
		return Down
	case *previous < target && current >= target:
		return Up
	}
	return None
}
