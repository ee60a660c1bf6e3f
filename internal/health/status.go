package health

import (
	"github.com/timmy/jobtide/internal/domain"
)

// Transition thresholds. Any success resets the failure counter;
// from unavailable a success moves only to degraded (half-open probing).
const (
	DefaultDegradedAfter    = 3
	DefaultUnavailableAfter = 6
)

// Thresholds holds the consecutive-failure counts driving availability
// transitions.
type Thresholds struct {
	DegradedAfter    int // available -> degraded
	UnavailableAfter int // degraded -> unavailable
}

// DefaultThresholds returns the shipped transition thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedAfter:    DefaultDegradedAfter,
		UnavailableAfter: DefaultUnavailableAfter,
	}
}

// next computes the availability transition for one recorded outcome.
// The transition guards are explicit so each edge can be tested on its
// own:
//
//	available   --k consecutive failures-->  degraded
//	degraded    --m consecutive failures-->  unavailable
//	degraded    --success-->                 available
//	unavailable --success-->                 degraded (never straight to available)
//	any         --authentication failure-->  unavailable
//	available   --structural failure-->      degraded
func next(current domain.Availability, failures int, class domain.ErrorClass, t Thresholds) domain.Availability {
	if class == domain.ErrorClassNone {
		switch current {
		case domain.AvailabilityUnavailable:
			return domain.AvailabilityDegraded
		default:
			return domain.AvailabilityAvailable
		}
	}

	// Credential failures take the source out immediately; silent
	// retries against a dead credential only burn rate budget.
	if class == domain.ErrorClassAuth {
		return domain.AvailabilityUnavailable
	}

	// A response the adapter could not interpret means the source
	// changed shape under us; one occurrence is enough to degrade.
	if class == domain.ErrorClassStructural && current == domain.AvailabilityAvailable {
		return domain.AvailabilityDegraded
	}

	switch current {
	case domain.AvailabilityAvailable:
		if failures >= t.DegradedAfter {
			return domain.AvailabilityDegraded
		}
		return domain.AvailabilityAvailable
	case domain.AvailabilityDegraded:
		if failures >= t.UnavailableAfter {
			return domain.AvailabilityUnavailable
		}
		return domain.AvailabilityDegraded
	default:
		return domain.AvailabilityUnavailable
	}
}
