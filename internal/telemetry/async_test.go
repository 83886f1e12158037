package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
	ctxErr []error
	err    error
	done   chan struct{}
}

func newRecordingEmitter(n int) *recordingEmitter {
	return &recordingEmitter{done: make(chan struct{}, n)}
}

func (m *recordingEmitter) Emit(ctx context.Context, event Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.ctxErr = append(m.ctxErr, ctx.Err())
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.err
}

func (m *recordingEmitter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
}

func TestEmitAsync_NilEmitter(t *testing.T) {
	EmitAsync(context.Background(), nil, Event{Flow: FlowLogin}, nil)
}

func TestEmitAsync_StampsTime(t *testing.T) {
	em := newRecordingEmitter(1)
	EmitAsync(context.Background(), em, Event{Flow: FlowLogin, Outcome: "session"}, nil)
	em.wait(t, 1)
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.events[0].At.IsZero() {
		t.Error("At should be set")
	}
	if em.events[0].Outcome != "session" {
		t.Errorf("Outcome = %q", em.events[0].Outcome)
	}
}

func TestEmitAsync_DetachedFromCancellation(t *testing.T) {
	em := newRecordingEmitter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	EmitAsync(ctx, em, Event{Flow: FlowRegister}, nil)
	em.wait(t, 1)
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.ctxErr[0] != nil {
		t.Errorf("emit context error = %v, want nil", em.ctxErr[0])
	}
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	em := newRecordingEmitter(3)
	em.err = errors.New("collector down")
	for i := 0; i < 3; i++ {
		EmitAsync(context.Background(), em, Event{Flow: FlowVerifyEmail}, nil)
	}
	em.wait(t, 3)
}
