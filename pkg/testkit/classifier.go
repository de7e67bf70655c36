package testkit

import (
	"context"
	"sync"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// ScriptedClassifier returns canned classifications in order, repeating the
// last one when the script runs out. A nil script degrades every turn, the
// same shape the real classifier produces when its provider is down.
type ScriptedClassifier struct {
	mu     sync.Mutex
	script []*proto.Classification
	calls  int
}

// NewScriptedClassifier creates a classifier that replays script in order.
func NewScriptedClassifier(script ...*proto.Classification) *ScriptedClassifier {
	return &ScriptedClassifier{script: script}
}

// Classify implements classifier.Client.
func (s *ScriptedClassifier) Classify(_ context.Context, _ string, _ []proto.HistoryMessage) (*proto.Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.script) == 0 {
		return &proto.Classification{
			Intent:                proto.IntentUnclear,
			RequiresClarification: true,
			Degraded:              true,
		}, nil
	}

	idx := s.calls - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	return s.script[idx], nil
}

// Calls reports how many classifications were requested.
func (s *ScriptedClassifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Classified builds a clean classification for tests.
func Classified(intent proto.Intent) *proto.Classification {
	return &proto.Classification{
		Intent:     intent,
		Entities:   map[string]string{},
		Confidence: 0.9,
	}
}
