package scorer

import (
	"context"
	"sync"
)

// Mock is a scripted scorer client for tests and scorer-less development.
// Set Response or Err before use; calls are recorded for assertions.
type Mock struct {
	mu sync.Mutex

	Response *EvaluationResponse
	Err      error

	Evaluations []*EvaluationRequest
	Forwards    []MockForward
}

// MockForward records one ForwardBatch call.
type MockForward struct {
	SessionID string
	Stream    string
	Payload   []byte
}

// NewMock creates a mock that answers every evaluation with the given
// decision at zero risk.
func NewMock(decision string) *Mock {
	return &Mock{
		Response: &EvaluationResponse{Decision: decision, Mode: "mock"},
	}
}

func (m *Mock) Evaluate(ctx context.Context, req *EvaluationRequest) (*EvaluationResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Evaluations = append(m.Evaluations, req)
	if m.Err != nil {
		return nil, m.Err
	}
	out := *m.Response
	return &out, nil
}

func (m *Mock) ForwardBatch(ctx context.Context, sessionID, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.Forwards = append(m.Forwards, MockForward{SessionID: sessionID, Stream: stream, Payload: buf})
	return m.Err
}

// ForwardCount returns how many batches were forwarded.
func (m *Mock) ForwardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Forwards)
}

// LastForward returns the most recent forwarded batch, or nil.
func (m *Mock) LastForward() *MockForward {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Forwards) == 0 {
		return nil
	}
	f := m.Forwards[len(m.Forwards)-1]
	return &f
}

// EvaluationCount returns how many evaluations were requested.
func (m *Mock) EvaluationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Evaluations)
}

// LastEvaluation returns the most recent evaluation request, or nil.
func (m *Mock) LastEvaluation() *EvaluationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Evaluations) == 0 {
		return nil
	}
	return m.Evaluations[len(m.Evaluations)-1]
}
