package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/partnerdesk/api/internal/feed"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/metrics"
	"github.com/partnerdesk/api/internal/notify"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store"
	"github.com/partnerdesk/api/internal/view"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBuffer = 64

	// Delay before re-joining the feed after the hub dropped this client.
	resubscribeDelay = 100 * time.Millisecond
)

var errSendBufferFull = errors.New("send buffer full")

// Client is one connected list view: a websocket, a view controller and the
// notification pipeline that keeps the controller fresh.
type Client struct {
	conn       *websocket.Conn
	feed       Feed
	locationID uuid.UUID
	ctrl       *view.Controller
	pipeline   *notify.Pipeline
	poll       time.Duration
	log        *zap.Logger

	subMu sync.Mutex
	sub   *feed.Subscription

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(conn *websocket.Conn, hub Feed, ctrl *view.Controller, debounce, poll time.Duration, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		feed:   hub,
		ctrl:   ctrl,
		poll:   poll,
		log:    log,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	c.pipeline = notify.New(c.refetch, notify.AlerterFunc(c.alert), debounce, log)
	return c
}

// start loads the first page, primes the seen set and starts the pumps.
func (c *Client) start(locationID uuid.UUID) {
	flow := c.ctrl.Flow()
	c.locationID = locationID
	c.sub = c.feed.Subscribe(flow.Table, locationID)
	metrics.ViewSessions.Inc()

	if page, err := c.ctrl.Load(c.ctx); err != nil {
		c.log.Warn("initial view load", zap.String("flow", flow.Slug), zap.Error(err))
		c.enqueue(Outbound{Type: TypeActionError, Error: "could not load list"})
	} else {
		c.pipeline.Prime(page.IDs())
		c.enqueue(Outbound{Type: TypeSnapshot, Data: page})
	}

	go c.writePump()
	go c.eventLoop()
	go c.readPump()
}

// refetch is the pipeline's Refetcher: reload, push the snapshot, report IDs.
func (c *Client) refetch(ctx context.Context) ([]uuid.UUID, error) {
	page, err := c.ctrl.Load(ctx)
	if err != nil {
		return nil, err
	}
	c.enqueue(Outbound{Type: TypeSnapshot, Data: page})
	return page.IDs(), nil
}

func (c *Client) alert(_ context.Context, id uuid.UUID) error {
	return c.enqueue(Outbound{Type: TypeAlert, Data: alertData{ID: id}})
}

// enqueue never blocks; a client that stops reading loses messages until the
// next snapshot.
func (c *Client) enqueue(msg Outbound) error {
	select {
	case <-c.done:
		return context.Canceled
	default:
	}
	select {
	case c.send <- encode(msg):
		return nil
	default:
		return errSendBufferFull
	}
}

// eventLoop feeds change events and the polling fallback into the pipeline.
func (c *Client) eventLoop() {
	events := c.sub.C
	var resub <-chan time.Time
	var tick <-chan time.Time
	if c.poll > 0 {
		ticker := time.NewTicker(c.poll)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				resub = time.After(resubscribeDelay)
				continue
			}
			c.pipeline.OnChangeEvent(ev.Type, ev.ID)
		case <-resub:
			resub = nil
			sub := c.resubscribe()
			if sub == nil {
				return
			}
			events = sub.C
			// Changes may have been missed while detached.
			c.pipeline.ScheduleRefetch()
		case <-tick:
			c.pipeline.ScheduleRefetch()
		}
	}
}

// resubscribe joins the feed again after the hub dropped the previous
// subscription. It returns nil once the client is closed.
func (c *Client) resubscribe() *feed.Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	select {
	case <-c.done:
		return nil
	default:
	}
	c.log.Debug("change feed resubscribe")
	c.sub = c.feed.Subscribe(c.ctrl.Flow().Table, c.locationID)
	return c.sub
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.pipeline.Stop()
		c.subMu.Lock()
		if c.sub != nil {
			c.feed.Unsubscribe(c.sub)
		}
		c.subMu.Unlock()
		metrics.ViewSessions.Dec()
		c.conn.Close()
	})
}

// readPump handles client messages until the connection closes.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(Outbound{Type: TypeActionError, Error: "invalid message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg Inbound) {
	switch msg.Type {
	case TypeFilter:
		f := view.Filter{Page: 1}
		if msg.Filter != nil {
			f = *msg.Filter
		}
		if err := c.ctrl.SetFilter(f); err != nil {
			c.enqueue(Outbound{Type: TypeActionError, RequestID: msg.RequestID, Error: err.Error()})
			return
		}
		go c.reload()

	case TypeTransition:
		// Saves run concurrently so a second action on the same row is
		// refused by the controller instead of queued behind the first.
		go c.transition(msg)

	case TypeSeen:
		go func() {
			if err := c.ctrl.MarkSeen(c.ctx, msg.ID); err != nil {
				c.enqueue(Outbound{Type: TypeActionError, RequestID: msg.RequestID, Error: errorMessage(err)})
				return
			}
			c.enqueue(Outbound{Type: TypeActionResult, RequestID: msg.RequestID, Data: map[string]uuid.UUID{"id": msg.ID}})
		}()

	default:
		c.enqueue(Outbound{Type: TypeActionError, RequestID: msg.RequestID, Error: "unknown message type"})
	}
}

func (c *Client) reload() {
	page, err := c.ctrl.Load(c.ctx)
	if err != nil {
		c.log.Warn("view reload", zap.Error(err))
		c.enqueue(Outbound{Type: TypeActionError, Error: "could not load list"})
		return
	}
	c.pipeline.Prime(page.IDs())
	c.enqueue(Outbound{Type: TypeSnapshot, Data: page})
}

func (c *Client) transition(msg Inbound) {
	row, err := c.ctrl.Act(c.ctx, msg.ID, msg.Status, msg.CancelReason)
	if err != nil {
		c.enqueue(Outbound{Type: TypeActionError, RequestID: msg.RequestID, Error: errorMessage(err)})
		return
	}
	c.enqueue(Outbound{Type: TypeActionResult, RequestID: msg.RequestID, Data: row})
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, view.ErrSaveInFlight):
		return view.ErrSaveInFlight.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, service.ErrWrongFlow):
		return "not found"
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrUnknownStatus):
		return err.Error()
	case errors.Is(err, service.ErrPersistence):
		return service.ErrPersistence.Error()
	default:
		return "internal server error"
	}
}

// writePump writes queued messages and keepalive pings, one JSON document
// per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
