package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher for testing.
type mockResponseWriter struct {
	header  http.Header
	err     error
	body    []byte
	mu      sync.Mutex
	flushes int
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header { return m.header }

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(int) {}

func (m *mockResponseWriter) Flush() {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
}

func (m *mockResponseWriter) Body() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

// noFlushWriter lacks http.Flusher.
type noFlushWriter struct {
	http.ResponseWriter
}

type runEvent struct {
	Type  string `json:"type"`
	RunID string `json:"run_id"`
}

func (e runEvent) EventType() string { return e.Type }

func (s *BroadcasterSuite) TestAddRemoveClient() {
	client, err := s.broadcaster.AddClient(newMockResponseWriter())
	s.Require().NoError(err)
	s.Equal("client-1", client.ID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}

	// second removal is a no-op
	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())
}

func (s *BroadcasterSuite) TestAddClient_NoFlusher() {
	_, err := s.broadcaster.AddClient(noFlushWriter{})
	s.Error(err)
	s.Equal(0, s.broadcaster.ClientCount())
}

func (s *BroadcasterSuite) TestBroadcast() {
	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{
			name: "typed event",
			data: runEvent{Type: "run_completed", RunID: "r1"},
			want: "event: run_completed\ndata: {\"type\":\"run_completed\",\"run_id\":\"r1\"}\n\n",
		},
		{
			name: "untyped payload",
			data: map[string]int{"n": 1},
			want: "data: {\"n\":1}\n\n",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			b := NewBroadcaster()
			w1, w2 := newMockResponseWriter(), newMockResponseWriter()
			_, err := b.AddClient(w1)
			s.Require().NoError(err)
			_, err = b.AddClient(w2)
			s.Require().NoError(err)

			b.Broadcast(tt.data)

			s.Equal(tt.want, w1.Body())
			s.Equal(tt.want, w2.Body())
		})
	}
}

func (s *BroadcasterSuite) TestBroadcast_RemovesDeadClients() {
	good := newMockResponseWriter()
	bad := newMockResponseWriter()
	bad.err = errors.New("broken pipe")

	_, err := s.broadcaster.AddClient(good)
	s.Require().NoError(err)
	_, err = s.broadcaster.AddClient(bad)
	s.Require().NoError(err)

	s.broadcaster.Broadcast(runEvent{Type: "run_started"})

	s.Equal(1, s.broadcaster.ClientCount())
	s.Contains(good.Body(), "event: run_started")
}

func (s *BroadcasterSuite) TestBroadcast_Unmarshalable() {
	w := newMockResponseWriter()
	_, err := s.broadcaster.AddClient(w)
	s.Require().NoError(err)

	s.broadcaster.Broadcast(make(chan int))
	s.Empty(w.Body())
}

func TestBroadcast_NoClients(t *testing.T) {
	assert.NotPanics(t, func() { NewBroadcaster().Broadcast(runEvent{Type: "x"}) })
}

func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := newMockResponseWriter()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleSSE(w, req)
	}()

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	b.Broadcast(runEvent{Type: "run_started", RunID: "r1"})
	require.Eventually(t, func() bool {
		return strings.Contains(w.Body(), "event: run_started")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, w.Body(), "event: connected\ndata: {\"clientId\":\"client-1\"}\n\n")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleSSE did not return after context cancel")
	}
	assert.Equal(t, 0, b.ClientCount())
}

func TestHandleSSE_NoWritesAfterReturn(t *testing.T) {
	b := NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := newMockResponseWriter()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleSSE(w, req)
	}()
	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	b.mu.RLock()
	client := b.clients["client-1"]
	b.mu.RUnlock()
	require.NotNil(t, client)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleSSE did not return after context cancel")
	}

	before := w.Body()
	assert.False(t, b.writeToClient(client, "data: late\n\n"))
	assert.Never(t, func() bool { return w.Body() != before }, 50*time.Millisecond, 5*time.Millisecond)
}
