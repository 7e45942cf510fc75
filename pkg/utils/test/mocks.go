package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MockInferer is a test inferer that records calls and returns configurable
// results.
type MockInferer struct {
	mu sync.Mutex

	// Requests accumulates every request passed to Infer.
	Requests []memory.Request

	// Fail causes Infer to return memory.ErrInferenceUnavailable.
	Fail bool

	// FailWhen, if set, fails only the requests it matches.
	FailWhen func(req memory.Request) bool

	// Err, if set, is returned by Infer as is.
	Err error

	// Response is the reply returned by Infer. Defaults to "ok".
	Response string
}

// NewMockInferer creates a new mock inferer.
func NewMockInferer() *MockInferer {
	return &MockInferer{Response: "ok"}
}

func (m *MockInferer) Infer(_ context.Context, req memory.Request) (*memory.Inference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Fail || (m.FailWhen != nil && m.FailWhen(req)) {
		return nil, fmt.Errorf("mock backend down: %w", memory.ErrInferenceUnavailable)
	}
	return &memory.Inference{
		Text:       req.Text,
		ExternalID: fmt.Sprintf("mem-%d-%d", req.UserID, len(m.Requests)),
		Response:   m.Response,
	}, nil
}

// Calls returns the number of Infer calls so far.
func (m *MockInferer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// SetFail toggles failure mode.
func (m *MockInferer) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fail = fail
}

func (m *MockInferer) Close() error {
	return nil
}

// MockBlobStore is an in-memory blob store.
type MockBlobStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Puts    int
	Fail    bool
}

// NewMockBlobStore creates a new mock blob store.
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{Objects: make(map[string][]byte)}
}

func (m *MockBlobStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return "", fmt.Errorf("mock blob store unavailable")
	}
	m.Puts++
	m.Objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

// PutCount returns the number of successful Put calls.
func (m *MockBlobStore) PutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Puts
}

func (m *MockBlobStore) Close() error {
	return nil
}

// MockPublisher records published events.
type MockPublisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
	Fail   bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return fmt.Errorf("mock broker unavailable")
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the published events.
func (m *MockPublisher) Events() []*eventstream.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.Event(nil), m.events...)
}

// EventsOfType returns the published events with the given type.
func (m *MockPublisher) EventsOfType(eventType string) []*eventstream.Event {
	var out []*eventstream.Event
	for _, e := range m.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockPublisher) Close() error {
	return nil
}
