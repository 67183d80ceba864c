package runtime

import (
	"time"

	"github.com/aretw0/bandit/pkg/domain"
)

// Event drives a LoadState transition.
type Event int

const (
	EventBeginLoad Event = iota
	EventTimedOut
	EventResolved
	EventRendered
	EventExposureRecorded
)

func (e Event) String() string {
	switch e {
	case EventBeginLoad:
		return "begin_load"
	case EventTimedOut:
		return "timed_out"
	case EventResolved:
		return "resolved"
	case EventRendered:
		return "rendered"
	case EventExposureRecorded:
		return "exposure_recorded"
	default:
		return "unknown"
	}
}

// Next returns the state after applying ev at time now.
// Events that make no sense in the current phase leave the state unchanged;
// READY is terminal for the phase.
func Next(s domain.LoadState, ev Event, now time.Time) domain.LoadState {
	switch ev {
	case EventBeginLoad:
		if s.Phase == domain.PhasePreload {
			s.Phase = domain.PhaseWait
			s.LoadStart = now
		}
	case EventTimedOut:
		// The phase does not move; the flag is consulted when the fetch returns.
		if s.Phase == domain.PhaseWait && !s.TimedOut {
			s.TimedOut = true
			s.LoadEnd = now
		}
	case EventResolved:
		if s.Phase == domain.PhaseWait {
			s.Phase = domain.PhaseReady
			if s.LoadEnd.IsZero() {
				s.LoadEnd = now
			}
		}
	case EventRendered:
		s.RenderCount++
	case EventExposureRecorded:
		s.ExposureRecorded = true
	}
	return s
}
