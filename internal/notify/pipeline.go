// Package notify turns raw change events into debounced view refetches and
// one-shot new-order alerts.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/metrics"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces event bursts into one refetch.
const DefaultDebounce = 120 * time.Millisecond

// Refetcher reloads the view's current filtered list and returns the IDs it
// now shows.
type Refetcher func(ctx context.Context) ([]uuid.UUID, error)

// Alerter plays the new-order alert. Errors are tolerated.
type Alerter interface {
	Alert(ctx context.Context, id uuid.UUID) error
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(ctx context.Context, id uuid.UUID) error

func (f AlerterFunc) Alert(ctx context.Context, id uuid.UUID) error { return f(ctx, id) }

// Pipeline belongs to one mounted view. It is safe for concurrent use.
type Pipeline struct {
	refetch  Refetcher
	alerter  Alerter
	debounce time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	seen    map[uuid.UUID]struct{}
	timer   *time.Timer
	stopped bool

	// serialises refetches so results merge in order
	fetchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pipeline. A debounce of zero or less uses DefaultDebounce.
func New(refetch Refetcher, alerter Alerter, debounce time.Duration, log *zap.Logger) *Pipeline {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		refetch:  refetch,
		alerter:  alerter,
		debounce: debounce,
		log:      log,
		seen:     make(map[uuid.UUID]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Prime marks ids as already known, typically from the initial fetch, so
// they never alert.
func (p *Pipeline) Prime(ids []uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.seen[id] = struct{}{}
	}
}

// Seen reports whether id is in the seen set.
func (p *Pipeline) Seen(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.seen[id]
	return ok
}

// SeenCount returns the size of the seen set.
func (p *Pipeline) SeenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// OnChangeEvent handles one change feed event. An INSERT of an unseen id
// alerts exactly once; every event schedules a refetch.
func (p *Pipeline) OnChangeEvent(eventType string, id uuid.UUID) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	alert := false
	if eventType == enum.ChangeInsert {
		if _, ok := p.seen[id]; !ok {
			p.seen[id] = struct{}{}
			alert = true
		}
	}
	p.mu.Unlock()

	if alert {
		p.playAlert(id)
	}
	p.ScheduleRefetch()
}

func (p *Pipeline) playAlert(id uuid.UUID) {
	if p.alerter == nil {
		return
	}
	if err := p.alerter.Alert(p.ctx, id); err != nil {
		metrics.AlertsFailedTotal.Inc()
		p.log.Debug("alert playback failed", zap.String("id", id.String()), zap.Error(err))
		return
	}
	metrics.AlertsPlayedTotal.Inc()
}

// ScheduleRefetch (re)starts the debounce timer.
func (p *Pipeline) ScheduleRefetch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, p.fire)
}

func (p *Pipeline) fire() {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}

	metrics.RefetchesTotal.Inc()
	ids, err := p.refetch(p.ctx)
	if err != nil {
		if p.ctx.Err() == nil {
			metrics.OperationErrorsTotal.WithLabelValues("refetch").Inc()
			p.log.Warn("view refetch failed", zap.Error(err))
		}
		return
	}
	p.Prime(ids)
}

// Stop cancels any pending refetch. Events after Stop are ignored.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()
	p.cancel()
}
