package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/metrics"
	"go.uber.org/zap"
)

// TypeStatusChanged is the event type emitted after a persisted transition.
const TypeStatusChanged = "order.status_changed"

// StatusChanged describes one persisted transition.
type StatusChanged struct {
	Type       string    `json:"type"`
	Flow       string    `json:"flow"`
	Table      string    `json:"table"`
	ID         uuid.UUID `json:"id"`
	LocationID uuid.UUID `json:"location_id"`
	Field      string    `json:"field"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    uuid.UUID `json:"actor_id"`
	At         time.Time `json:"at"`
}

const (
	queueSize   = 256
	sendTimeout = 5 * time.Second
)

// Publisher emits domain events. Delivery is best-effort and happens off the
// caller's path: events are queued for a single sender, and failures are
// logged and counted, never returned.
type Publisher struct {
	producer Producer
	topic    string
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan StatusChanged
	done   chan struct{}
}

func NewPublisher(producer Producer, topic string, log *zap.Logger) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		log:      log,
		queue:    make(chan StatusChanged, queueSize),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// StatusChanged queues ev for delivery keyed by row id, so one row's events
// stay ordered within a partition. It never waits on the broker; when the
// queue is full the event is dropped.
func (p *Publisher) StatusChanged(_ context.Context, ev StatusChanged) {
	ev.Type = TypeStatusChanged

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		metrics.OperationErrorsTotal.WithLabelValues("publish_event").Inc()
		p.log.Warn("domain event queue full, dropping event",
			zap.String("id", ev.ID.String()),
			zap.String("to", ev.To),
		)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		p.send(ev)
	}
}

func (p *Publisher) send(ev StatusChanged) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal domain event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := p.producer.SendMessage(ctx, p.topic, []byte(ev.ID.String()), payload); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("publish_event").Inc()
		p.log.Warn("publish domain event",
			zap.String("id", ev.ID.String()),
			zap.String("to", ev.To),
			zap.Error(err),
		)
	}
}

// Close stops accepting events, flushes the queue and releases the producer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return p.producer.Close()
}
