// Package phase holds the engagement lifecycle state machine. The gate is the
// sole authority over phase movement; callers compute fresh Inputs on every
// transition attempt because completion changes independently of phase
// requests.
package phase

import "scopeline/internal/domain"

// Inputs are the guard facts for one transition attempt. They are plain data
// so CanTransitionTo stays a pure function of current state plus inputs.
type Inputs struct {
	// DiscoveryCoverage is the meeting record's coverage score in [0,1].
	DiscoveryCoverage float64
	// ReadyThreshold is the configured coverage needed to leave discovery.
	ReadyThreshold float64
	// PurchasedServices is the committed service set.
	PurchasedServices []string
	// SpecServices counts purchased services that have a template.
	SpecServices int
	// SpecServiceIDs lists those services; only they gate development.
	// A purchased service without a template never blocks.
	SpecServiceIDs []string
	// CompletionPercent is the engagement-level completion aggregate.
	CompletionPercent float64
	// AnswerSetComplete records, per purchased service with a template,
	// whether its answer set has been marked complete. A missing key is an
	// incomplete set; an absent answer set is never silently skipped.
	AnswerSetComplete map[string]bool
	// ClientApproved and DevelopmentDone are externally-supplied business
	// flags; this engine does not decide them.
	ClientApproved  bool
	DevelopmentDone bool
}

// CanTransitionTo reports whether the engagement may move from current to
// target. Unknown or unreachable targets return false; the gate never panics
// and never mutates anything.
func CanTransitionTo(current, target domain.Phase, in Inputs) bool {
	switch current {
	case domain.PhaseDiscovery:
		return target == domain.PhaseAwaitingClientDecision && discoveryReady(in)
	case domain.PhaseAwaitingClientDecision:
		switch target {
		case domain.PhaseDiscovery:
			// Explicit backtrack, no data constraint.
			return true
		case domain.PhaseClientApproved:
			return in.ClientApproved
		}
		return false
	case domain.PhaseClientApproved:
		// Entering the phase is how requirement collection begins.
		return target == domain.PhaseImplementationSpec
	case domain.PhaseImplementationSpec:
		return target == domain.PhaseDevelopment && specificationComplete(in)
	case domain.PhaseDevelopment:
		return target == domain.PhaseCompleted && in.DevelopmentDone
	case domain.PhaseCompleted:
		return false
	}
	return false
}

// Next returns the phases reachable from current under the given inputs, in
// lifecycle order.
func Next(current domain.Phase, in Inputs) []domain.Phase {
	var out []domain.Phase
	for _, p := range domain.Phases {
		if CanTransitionTo(current, p, in) {
			out = append(out, p)
		}
	}
	return out
}

func discoveryReady(in Inputs) bool {
	if in.DiscoveryCoverage >= in.ReadyThreshold {
		return true
	}
	// A committed purchase with nothing left to specify also unblocks the
	// proposal.
	return len(in.PurchasedServices) > 0 && in.SpecServices == 0
}

func specificationComplete(in Inputs) bool {
	if in.CompletionPercent != 100 {
		return false
	}
	for _, sid := range in.SpecServiceIDs {
		if !in.AnswerSetComplete[sid] {
			return false
		}
	}
	return true
}
