package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/NeuralTrust/TrustShield/pkg/infra/prometheus"
)

// Dispatcher decouples event emission from delivery. Emit never blocks the
// caller: events go through a bounded channel to worker goroutines, and a
// full channel drops the event with a warning. Collaborator errors are
// swallowed and logged, never propagated.
type Dispatcher struct {
	logger    *logrus.Logger
	service   Service
	eventChan chan Event
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	wg        sync.WaitGroup
}

func NewDispatcher(service Service, logger *logrus.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		logger:    logger,
		service:   service,
		eventChan: make(chan Event, 1000),
		ctx:       ctx,
		cancel:    cancel,
	}
	if service == nil {
		logger.Warn("audit service not configured, events will be discarded")
	}
	return d
}

func (d *Dispatcher) StartWorkers(n int) {
	for i := 0; i < n; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case evt := <-d.eventChan:
					d.deliver(evt)
				case <-d.ctx.Done():
					// Flush whatever was accepted before shutdown.
					for {
						select {
						case evt := <-d.eventChan:
							d.deliver(evt)
						default:
							return
						}
					}
				}
			}
		}()
	}
}

// Emit enqueues an event for delivery. Safe to call with a nil receiver or
// after Shutdown; both are no-ops.
func (d *Dispatcher) Emit(evt Event) {
	if d == nil || d.service == nil || d.closed.Load() {
		return
	}
	select {
	case d.eventChan <- evt:
	default:
		prometheus.AuditEventsDropped.Inc()
		d.logger.WithField("event_type", evt.EventType).
			Warn("audit event channel is full, dropping event")
	}
}

// Shutdown stops accepting new events, flushes the queue and waits for the
// workers to exit. Idempotent.
func (d *Dispatcher) Shutdown() {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(evt Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("panic", r).Error("audit service panicked")
		}
	}()
	if err := d.service.LogEvent(evt); err != nil {
		d.logger.WithError(err).WithField("event_type", evt.EventType).
			Error("failed to log audit event")
	}
}
