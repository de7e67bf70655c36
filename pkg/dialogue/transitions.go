package dialogue

import "github.com/DoctaCloak/wraiven-recruiter/pkg/proto"

// allowedTransitions is the explicit conversation transition table. The
// engine only ever moves along these edges; anything else is a bug surfaced
// as a TransitionError.
var allowedTransitions = map[proto.Step]map[proto.Step]bool{
	proto.StepIdle: {
		proto.StepIdle:                 true,
		proto.StepAwaitingClarification: true,
		proto.StepAwaitingVouchMention:  true,
		proto.StepGeneralListening:      true,
		proto.StepVouchActive:           true,
		proto.StepApplicationActive:     true,
	},
	proto.StepAwaitingInitial: {
		proto.StepIdle:                 true,
		proto.StepAwaitingClarification: true,
		proto.StepAwaitingVouchMention:  true,
		proto.StepGeneralListening:      true,
		proto.StepVouchActive:           true,
		proto.StepApplicationActive:     true,
	},
	proto.StepAwaitingClarification: {
		proto.StepIdle:                 true,
		proto.StepAwaitingClarification: true,
		proto.StepAwaitingVouchMention:  true,
		proto.StepGeneralListening:      true,
		proto.StepVouchActive:           true,
		proto.StepApplicationActive:     true,
	},
	proto.StepAwaitingVouchMention: {
		proto.StepIdle:                 true,
		proto.StepAwaitingClarification: true,
		proto.StepAwaitingVouchMention:  true,
		proto.StepGeneralListening:      true,
		proto.StepVouchActive:           true,
		// A visitor asked to name a voucher can pivot to applying and
		// confirm in the same breath.
		proto.StepApplicationActive: true,
	},
	proto.StepAwaitingApplication: {
		proto.StepIdle:              true,
		proto.StepGeneralListening:  true,
		proto.StepApplicationActive: true,
	},
	proto.StepGeneralListening: {
		proto.StepIdle:                 true,
		proto.StepAwaitingClarification: true,
		proto.StepAwaitingVouchMention:  true,
		proto.StepGeneralListening:      true,
		proto.StepVouchActive:           true,
		proto.StepApplicationActive:     true,
	},
	// Sub-workflow steps resolve through their own coordinators, which
	// always land back on IDLE.
	proto.StepVouchActive: {
		proto.StepIdle: true,
	},
	proto.StepApplicationActive: {
		proto.StepIdle: true,
	},
}

// validateTransition checks one edge against the transition table.
func validateTransition(from, to proto.Step) error {
	if targets, ok := allowedTransitions[from]; ok && targets[to] {
		return nil
	}
	return &proto.TransitionError{From: from, To: to}
}
