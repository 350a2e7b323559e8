package statements

import "time"

// UpdateState is the lifecycle of a computed period.
type UpdateState string

const (
	StateQueued   UpdateState = "queued"
	StateStarted  UpdateState = "started"
	StateFinished UpdateState = "finished"
	StateFailed   UpdateState = "failed"
)

// ValidateTransition checks update state changes. A finished period only moves
// again through an explicit invalidation back to queued.
func ValidateTransition(current, target UpdateState) error {
	if current == target {
		return nil
	}
	switch current {
	case "", StateQueued:
		if target == StateStarted || target == StateQueued {
			return nil
		}
	case StateStarted:
		if target == StateFinished || target == StateFailed {
			return nil
		}
	case StateFinished, StateFailed:
		if target == StateQueued || target == StateStarted {
			return nil
		}
	}
	return ErrInvalidTransition
}

// ShouldRecompute reports whether the period is stale with respect to its
// inputs. Periods that are not finished always need a run.
func ShouldRecompute(data *ReportData, inputsUpdatedAt []time.Time) bool {
	if data == nil {
		return false
	}
	if data.UpdateState != StateFinished {
		return true
	}
	for _, ts := range inputsUpdatedAt {
		if ts.After(data.UpdatedAt) {
			return true
		}
	}
	return false
}
