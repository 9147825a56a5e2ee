package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"hackboard/domain"
)

// EventSink receives board events, usually an Azure queue.
type EventSink interface {
	EnqueueEvent(ctx context.Context, ev domain.BoardEvent) error
}

// PublishOptions sizes the event publisher.
type PublishOptions struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

func (o PublishOptions) withDefaults() PublishOptions {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.HandoffTimeout < 0 {
		o.HandoffTimeout = 0
	}
	return o
}

// publisher hands board events to a fixed set of workers. When the buffer
// is full the event is published inline by the caller.
type publisher struct {
	sink   EventSink
	logger *log.Logger
	opts   PublishOptions

	mu     sync.RWMutex
	jobs   chan domain.BoardEvent
	wg     sync.WaitGroup
	closed bool
}

func newPublisher(sink EventSink, logger *log.Logger, opts PublishOptions) *publisher {
	if logger == nil {
		panic("Logger is not initialized")
	}
	opts = opts.withDefaults()
	p := &publisher{
		sink:   sink,
		logger: logger,
		opts:   opts,
		jobs:   make(chan domain.BoardEvent, opts.Buffer),
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		opts.Workers, opts.Buffer, opts.Timeout, opts.HandoffTimeout)
	return p
}

func (p *publisher) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		if err := p.send(ev); err != nil {
			p.logger.Errorf("publish failed, err: %v, project: %s, task: %s, type: %s, worker: %d",
				err, ev.ProjectID, ev.TaskID, ev.Type, id)
		}
	}
}

func (p *publisher) send(ev domain.BoardEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()
	return p.sink.EnqueueEvent(ctx, ev)
}

// Publish queues ev, falling back to an inline send when the workers are
// saturated.
func (p *publisher) Publish(ev domain.BoardEvent) {
	if p.tryHandoff(ev) {
		return
	}
	p.logger.Warn("publish buffer saturated; publishing inline")
	if err := p.send(ev); err != nil {
		p.logger.Errorf("publish inline failed, err: %v, project: %s, task: %s, type: %s",
			err, ev.ProjectID, ev.TaskID, ev.Type)
	}
}

func (p *publisher) tryHandoff(ev domain.BoardEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- ev:
		return true
	default:
	}
	if p.opts.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.opts.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (p *publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
