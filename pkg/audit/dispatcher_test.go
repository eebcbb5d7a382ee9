package audit_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeuralTrust/TrustShield/pkg/audit"
)

type recordingService struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
	panics bool
}

func (s *recordingService) LogEvent(evt audit.Event) error {
	if s.panics {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingService) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDispatcher_DeliversEvents(t *testing.T) {
	svc := &recordingService{}
	d := audit.NewDispatcher(svc, testLogger())
	d.StartWorkers(2)

	for i := 0; i < 10; i++ {
		d.Emit(audit.Event{EventType: audit.EventAnomalyDetected})
	}
	d.Shutdown()

	assert.Equal(t, 10, svc.count())
}

func TestDispatcher_ShutdownFlushesQueue(t *testing.T) {
	svc := &recordingService{}
	d := audit.NewDispatcher(svc, testLogger())

	// Enqueue before any worker runs; the events sit in the channel.
	for i := 0; i < 5; i++ {
		d.Emit(audit.Event{EventType: audit.EventIPBlocked})
	}

	d.StartWorkers(1)
	d.Shutdown()

	assert.Equal(t, 5, svc.count())
}

func TestDispatcher_EmitAfterShutdownIsNoop(t *testing.T) {
	svc := &recordingService{}
	d := audit.NewDispatcher(svc, testLogger())
	d.StartWorkers(1)
	d.Shutdown()

	d.Emit(audit.Event{EventType: audit.EventIPBlocked})
	assert.Equal(t, 0, svc.count())
}

func TestDispatcher_NilReceiverAndNilService(t *testing.T) {
	var d *audit.Dispatcher
	assert.NotPanics(t, func() {
		d.Emit(audit.Event{EventType: audit.EventIPBlocked})
	})

	d = audit.NewDispatcher(nil, testLogger())
	d.StartWorkers(1)
	assert.NotPanics(t, func() {
		d.Emit(audit.Event{EventType: audit.EventIPBlocked})
		d.Shutdown()
	})
}

func TestDispatcher_ServiceErrorSwallowed(t *testing.T) {
	svc := &recordingService{err: errors.New("sink unavailable")}
	d := audit.NewDispatcher(svc, testLogger())
	d.StartWorkers(1)

	assert.NotPanics(t, func() {
		d.Emit(audit.Event{EventType: audit.EventInvalidTenant})
		d.Shutdown()
	})
	assert.Equal(t, 1, svc.count())
}

func TestDispatcher_ServicePanicContained(t *testing.T) {
	svc := &recordingService{panics: true}
	d := audit.NewDispatcher(svc, testLogger())
	d.StartWorkers(1)

	d.Emit(audit.Event{EventType: audit.EventUnauthorizedUser})

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete after sink panic")
	}
}

func TestDispatcher_ShutdownIdempotent(t *testing.T) {
	svc := &recordingService{}
	d := audit.NewDispatcher(svc, testLogger())
	d.StartWorkers(1)

	require.NotPanics(t, func() {
		d.Shutdown()
		d.Shutdown()
	})
}
