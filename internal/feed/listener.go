package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Channel is the NOTIFY channel the row triggers publish on.
const Channel = "row_changes"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Publisher receives decoded change events.
type Publisher interface {
	Publish(ev Event)
}

// Listener relays PostgreSQL notifications into a Publisher.
type Listener struct {
	pool *pgxpool.Pool
	pub  Publisher
	log  *zap.Logger
}

// NewListener creates a Listener on pool publishing to pub.
func NewListener(pool *pgxpool.Pool, pub Publisher, log *zap.Logger) *Listener {
	return &Listener{pool: pool, pub: pub, log: log}
}

// Run listens until ctx is cancelled, reconnecting with backoff when the
// connection drops. Notifications sent while disconnected are lost; the
// polling fallback on each view covers that gap.
func (l *Listener) Run(ctx context.Context) {
	var b backoff
	for {
		listened, err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		delay := b.next(listened)
		l.log.Warn("change feed listener disconnected", zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff doubles the reconnect delay on consecutive failures, up to
// maxBackoff. A session that got as far as LISTEN starts over at minBackoff.
type backoff struct {
	cur time.Duration
}

func (b *backoff) next(listened bool) time.Duration {
	if listened || b.cur == 0 {
		b.cur = minBackoff
	}
	d := b.cur
	b.cur = min(b.cur*2, maxBackoff)
	return d
}

// listen holds one LISTEN session. listened reports whether the session was
// established before it ended.
func (l *Listener) listen(ctx context.Context) (listened bool, err error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.log.Info("change feed listening", zap.String("channel", Channel))

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := DecodeNotification(n.Payload)
		if err != nil {
			l.log.Debug("skip malformed notification", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		l.pub.Publish(ev)
	}
}

var errIncomplete = errors.New("incomplete change event")

// DecodeNotification parses a row trigger payload.
func DecodeNotification(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" || ev.Table == "" {
		return Event{}, errIncomplete
	}
	return ev, nil
}
