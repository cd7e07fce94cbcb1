package intent

import (
	"context"
	"sync/atomic"
)

// MockClassifier is a deterministic stand-in for the model backend, used in
// dev mode and tests. Calls returns how many times it was invoked so tests
// can assert the fast path never reaches it.
type MockClassifier struct {
	calls atomic.Int64

	// Err, when set, makes every call fail (simulates an unavailable
	// backend).
	Err error
	// Fixed, when set, is returned for every call.
	Fixed *Prediction
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

func (m *MockClassifier) Calls() int64 {
	return m.calls.Load()
}

func (m *MockClassifier) Classify(_ context.Context, req Request) (Prediction, error) {
	m.calls.Add(1)
	if m.Err != nil {
		return Prediction{}, m.Err
	}
	if m.Fixed != nil {
		return *m.Fixed, nil
	}
	// Reuse the deterministic keyword heuristics so dev mode behaves
	// sensibly without a model backend.
	if tool, args, ok := matchKeywords(normalizeUtterance(req.Utterance)); ok {
		return Prediction{Tool: tool, Arguments: args}, nil
	}
	return Prediction{Unresolved: true, Reason: "no_intent_matched"}, nil
}

var _ Classifier = (*MockClassifier)(nil)
