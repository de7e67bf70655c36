// Package proto holds the shared vocabulary of the recruiter: conversation
// steps, waiter kinds, intents, member statuses, and platform events.
package proto

import (
	"fmt"
	"strings"
)

// Step is a conversation state the dialogue engine can be in for one user.
type Step string

const (
	StepIdle                  Step = "IDLE"
	StepAwaitingInitial       Step = "AWAITING_INITIAL_MESSAGE"
	StepAwaitingClarification Step = "AWAITING_CLARIFICATION"
	StepAwaitingVouchMention  Step = "AWAITING_VOUCH_MENTION"
	StepAwaitingApplication   Step = "AWAITING_APPLICATION_ANSWER"
	StepGeneralListening      Step = "GENERAL_LISTENING"
	StepVouchActive           Step = "VOUCH_ACTIVE"
	StepApplicationActive     Step = "APPLICATION_ACTIVE"
)

var allSteps = map[Step]bool{
	StepIdle:                  true,
	StepAwaitingInitial:       true,
	StepAwaitingClarification: true,
	StepAwaitingVouchMention:  true,
	StepAwaitingApplication:   true,
	StepGeneralListening:      true,
	StepVouchActive:           true,
	StepApplicationActive:     true,
}

func (s Step) String() string {
	return string(s)
}

// ValidateStep parses a stored step value, case-insensitively.
func ValidateStep(raw string) (Step, bool) {
	s := Step(strings.ToUpper(strings.TrimSpace(raw)))
	if allSteps[s] {
		return s, true
	}
	return "", false
}

// SubWorkflow reports whether the step delegates inbound handling to a
// dedicated sub-workflow instead of the main dialogue loop.
func (s Step) SubWorkflow() bool {
	return s == StepVouchActive || s == StepApplicationActive
}

// WaiterKind identifies which kind of turn waiter is armed for a user.
type WaiterKind string

const (
	WaiterNone            WaiterKind = "NONE"
	WaiterInitialResponse WaiterKind = "INITIAL_RESPONSE"
	WaiterClarification   WaiterKind = "CLARIFICATION"
	WaiterVouchMention    WaiterKind = "VOUCH_MENTION"
	WaiterVouchReaction   WaiterKind = "VOUCH_REACTION"
	WaiterGeneral         WaiterKind = "GENERAL"
)

var allWaiterKinds = map[WaiterKind]bool{
	WaiterNone:            true,
	WaiterInitialResponse: true,
	WaiterClarification:   true,
	WaiterVouchMention:    true,
	WaiterVouchReaction:   true,
	WaiterGeneral:         true,
}

func (k WaiterKind) String() string {
	return string(k)
}

// ValidateWaiterKind parses a stored waiter kind, case-insensitively.
func ValidateWaiterKind(raw string) (WaiterKind, bool) {
	k := WaiterKind(strings.ToUpper(strings.TrimSpace(raw)))
	if allWaiterKinds[k] {
		return k, true
	}
	return "", false
}

// ReactionKind reports whether the waiter fires on reactions rather than
// messages.
func (k WaiterKind) ReactionKind() bool {
	return k == WaiterVouchReaction
}

// TransitionError is returned when the engine is asked to move between steps
// the transition table does not connect.
type TransitionError struct {
	From Step
	To   Step
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid conversation transition %s -> %s", e.From, e.To)
}
