// Package producer implements the Producer (C2): a bounded FIFO buffer
// with drop-oldest-on-overflow, a demand-pull read interface, and a
// periodic external poll. Grounded on networking.BandwidthRegulator for
// the token-bucket-flavored rate accounting style (mutex-guarded state,
// a snapshot method returning a point-in-time copy) and on
// internal/radar/scanner.go's periodic-poll goroutine for the 100ms
// external tick.
package producer

import (
	"context"
	"sync"
	"time"

	"github.com/vsm-systems/corevsm/internal/causality"
	"github.com/vsm-systems/corevsm/internal/eventstore"
	"github.com/vsm-systems/corevsm/internal/metrics"
)

// Message is an event as it sits in the producer's buffer, stamped with
// the moment it entered the pipeline.
type Message struct {
	Event eventstore.Event
	Source string
	ReceivedAt time.Time
}

// PollFunc is invoked roughly every pollInterval and returns 0..3
// synthetic or externally sourced events to admit into the buffer.
type PollFunc func(ctx context.Context) []eventstore.Event

// Config controls the buffer capacity and poll cadence.
type Config struct {
	BufferCapacity int
	PollInterval time.Duration

	// OriginNode identifies this process in the causality envelope
	// stamped onto any event that arrives with none.
	OriginNode string
}

// Producer owns its buffer exclusively; no other component may touch it.
type Producer struct {
	mu sync.Mutex
	capacity int
	buffer []Message

	producedTotal int64
	droppedTotal int64
	rateWindow []time.Time

	poll PollFunc
	registry *metrics.Registry
	originNode string

	cancel context.CancelFunc
	done chan struct{}
}

// New constructs a Producer with the given capacity and optional external
// poll function (may be nil to disable periodic polling).
func New(cfg Config, poll PollFunc, registry *metrics.Registry) *Producer {
	capacity := cfg.BufferCapacity
	if capacity <= 0 {
		capacity = 1000
	}
	return &Producer{
		capacity: capacity,
		buffer: make([]Message, 0, capacity),
		poll: poll,
		registry: registry,
		originNode: cfg.OriginNode,
	}
}

// Start launches the periodic external poll goroutine. Calling Start
// without a poll function is a no-op.
func (p *Producer) Start(ctx context.Context, pollInterval time.Duration) {
	if p.poll == nil {
		return
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, event := range p.poll(ctx) {
					p.Ingest(event, "external_poll")
				}
			}
		}
	}()
}

// Stop cancels the poll goroutine and waits for it to exit.
func (p *Producer) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Ingest admits an event from any source (store subscription, direct
// injection, broadcast topic, or the external poll) into the bounded
// buffer, dropping the oldest entry on overflow. An event arriving with
// no causality envelope yet (the common case: this is usually the
// earliest point in the pipeline) gets a fresh one stamped here rather
// than leaving it to whatever eventually calls broker.Adapter.Publish;
// a caller that already attached one (e.g. the direct-injection HTTP
// handler) is left untouched.
func (p *Producer) Ingest(event eventstore.Event, source string) {
	if event.Causality.TraceID == "" {
		event.Causality = causality.New(p.originNode)
	}
	message := Message{Event: event, Source: source, ReceivedAt: time.Now()}

	p.mu.Lock()
	if len(p.buffer) >= p.capacity {
		//1.- Drop-oldest-on-overflow keeps the buffer bounded without blocking ingest.
		p.buffer = p.buffer[1:]
		p.droppedTotal++
		if p.registry != nil {
			p.registry.EventsDropped.WithLabelValues("buffer_overflow_dropped").Inc()
		}
	}
	p.buffer = append(p.buffer, message)
	p.producedTotal++
	p.rateWindow = append(p.rateWindow, message.ReceivedAt)
	p.pruneRateWindowLocked(message.ReceivedAt)
	p.mu.Unlock()

	if p.registry != nil {
		p.registry.EventsProduced.WithLabelValues(source).Inc()
		p.registry.BufferFillLevel.Set(p.FillLevel())
	}
}

func (p *Producer) pruneRateWindowLocked(now time.Time) {
	cutoff := now.Add(-1 * time.Second)
	idx := 0
	for idx < len(p.rateWindow) && p.rateWindow[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		p.rateWindow = append([]time.Time(nil), p.rateWindow[idx:]...)
	}
}

// Pull is the demand-pull interface: consumers request up to n events and
// receive min(n, buffered), removed from the buffer in FIFO order.
func (p *Producer) Pull(n int) []Message {
	if n <= 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	count := n
	if count > len(p.buffer) {
		count = len(p.buffer)
	}
	out := append([]Message(nil), p.buffer[:count]...)
	p.buffer = p.buffer[count:]
	if p.registry != nil {
		p.registry.BufferFillLevel.Set(float64(len(p.buffer)) / float64(p.capacity))
	}
	return out
}

// Metrics is a point-in-time snapshot of the producer's accounting.
type Metrics struct {
	ProducedTotal int64
	DroppedTotal int64
	RatePerSecond float64
	FillLevel float64
}

// Snapshot reports the current totals, sliding rate, and fill level.
func (p *Producer) Snapshot() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		ProducedTotal: p.producedTotal,
		DroppedTotal: p.droppedTotal,
		RatePerSecond: float64(len(p.rateWindow)),
		FillLevel: float64(len(p.buffer)) / float64(p.capacity),
	}
}

// FillLevel returns the current fraction of buffer capacity in use.
func (p *Producer) FillLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(len(p.buffer)) / float64(p.capacity)
}
