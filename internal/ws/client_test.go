package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/partnerdesk/api/internal/auth"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/feed"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store"
	"github.com/partnerdesk/api/internal/view"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret-for-ws"

// --- Fakes ---

type fakeLister struct {
	mu     sync.Mutex
	orders []models.Order
}

func (f *fakeLister) add(o models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append([]models.Order{o}, f.orders...)
}

func (f *fakeLister) ListOrders(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, len(f.orders))
	copy(out, f.orders)
	return out, int64(len(out)), nil
}

func (f *fakeLister) ListBookings(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error) {
	return []models.Booking{}, 0, nil
}

type fakeActions struct {
	lister *fakeLister
}

func (f *fakeActions) TransitionOrder(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
	f.lister.mu.Lock()
	defer f.lister.mu.Unlock()
	for i, o := range f.lister.orders {
		if o.ID != req.ID {
			continue
		}
		decision, err := lifecycle.Decide(req.Flow, o.Status, req.Status)
		if err != nil {
			return nil, err
		}
		o.Status = req.Status
		o.Read = true
		f.lister.orders[i] = o
		return &service.OrderResult{Order: o, Decision: decision}, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeActions) TransitionBooking(ctx context.Context, req service.TransitionRequest) (*service.BookingResult, error) {
	return nil, store.ErrNotFound
}

func (f *fakeActions) MarkSeen(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error {
	return nil
}

// --- Helpers ---

func newOrder(loc uuid.UUID, code string) models.Order {
	return models.Order{
		ID:          uuid.New(),
		LocationID:  loc,
		OrderCode:   code,
		Status:      enum.TableOrderPlaced,
		Items:       []models.Item{},
		TotalAmount: decimal.NewFromInt(25000),
		Timestamps:  map[string]*time.Time{},
		CreatedAt:   time.Now(),
	}
}

type testEnv struct {
	hub    *feed.Hub
	lister *fakeLister
	srv    *httptest.Server
	loc    uuid.UUID
}

func setupWS(t *testing.T, orders ...models.Order) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := feed.NewHub()
	go hub.Run(ctx)

	env := setupWSWithFeed(t, hub, orders...)
	env.hub = hub
	return env
}

// setupWSWithFeed serves views backed by an arbitrary change feed.
func setupWSWithFeed(t *testing.T, f Feed, orders ...models.Order) *testEnv {
	t.Helper()
	lister := &fakeLister{orders: orders}
	h := NewHandler(f, lister, &fakeActions{lister: lister}, testJWTSecret,
		Options{PageSize: 10, Debounce: 10 * time.Millisecond}, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/ws/locations/{lid}/flows/{flow}", h.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	loc := uuid.New()
	if len(orders) > 0 {
		loc = orders[0].LocationID
	}
	return &testEnv{lister: lister, srv: srv, loc: loc}
}

// droppableFeed hands out subscriptions the test can close, the way the hub
// does when a subscriber falls behind.
type droppableFeed struct {
	mu   sync.Mutex
	subs []chan feed.Event
}

func (f *droppableFeed) Subscribe(table string, locationID uuid.UUID) *feed.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan feed.Event, 8)
	f.subs = append(f.subs, ch)
	return &feed.Subscription{C: ch}
}

func (f *droppableFeed) Unsubscribe(sub *feed.Subscription) {}

func (f *droppableFeed) waitSubscriptions(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := len(f.subs)
		f.mu.Unlock()
		if n >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscriptions: want %d", want)
}

func (f *droppableFeed) drop(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.subs[i])
}

func (f *droppableFeed) push(i int, ev feed.Event) {
	f.mu.Lock()
	ch := f.subs[i]
	f.mu.Unlock()
	ch <- ev
}

func token(t *testing.T, loc uuid.UUID, partnerType string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testJWTSecret, uuid.New(), []uuid.UUID{loc}, partnerType, enum.RolePartner, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func (e *testEnv) url(flow, tok string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") +
		fmt.Sprintf("/ws/locations/%s/flows/%s?token=%s", e.loc, flow, tok)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
}

func readMsg(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func readSnapshot(t *testing.T, conn *websocket.Conn) view.Page {
	t.Helper()
	msg := readMsg(t, conn)
	if msg.Type != TypeSnapshot {
		t.Fatalf("type: got %q, want %q", msg.Type, TypeSnapshot)
	}
	var page view.Page
	if err := json.Unmarshal(msg.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	return page
}

func waitForSubscribers(t *testing.T, hub *feed.Hub, table string, loc uuid.UUID, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers(table, loc) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscribers: got %d, want %d", hub.Subscribers(table, loc), want)
}

// --- Tests ---

func TestServeWS_InitialSnapshot(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t, newOrder(loc, "T-01"), newOrder(loc, "T-02"))

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	page := readSnapshot(t, conn)

	if page.Flow != "table-orders" {
		t.Errorf("flow: got %q", page.Flow)
	}
	if len(page.Rows) != 2 || page.Total != 2 {
		t.Fatalf("rows: got %d (total %d), want 2", len(page.Rows), page.Total)
	}
	if page.Rows[0].Status != enum.TableOrderPlaced {
		t.Errorf("status: got %q", page.Rows[0].Status)
	}
}

func TestServeWS_InsertAlertsAndRefetches(t *testing.T) {
	loc := uuid.New()
	existing := newOrder(loc, "T-01")
	env := setupWS(t, existing)

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)
	waitForSubscribers(t, env.hub, enum.TableTableOrders, loc, 1)

	fresh := newOrder(loc, "T-02")
	env.lister.add(fresh)
	env.hub.Publish(feed.Event{Type: enum.ChangeInsert, Table: enum.TableTableOrders, ID: fresh.ID, LocationID: loc})

	alert := readMsg(t, conn)
	if alert.Type != TypeAlert {
		t.Fatalf("type: got %q, want %q", alert.Type, TypeAlert)
	}
	var data alertData
	if err := json.Unmarshal(alert.Data, &data); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if data.ID != fresh.ID {
		t.Errorf("alert id: got %s, want %s", data.ID, fresh.ID)
	}

	page := readSnapshot(t, conn)
	if len(page.Rows) != 2 {
		t.Fatalf("rows after refetch: got %d, want 2", len(page.Rows))
	}

	// An update to an already seen row refetches without alerting.
	env.hub.Publish(feed.Event{Type: enum.ChangeUpdate, Table: enum.TableTableOrders, ID: existing.ID, LocationID: loc})
	readSnapshot(t, conn)
}

func TestServeWS_IgnoresOtherLocations(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t, newOrder(loc, "T-01"))

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)
	waitForSubscribers(t, env.hub, enum.TableTableOrders, loc, 1)

	env.hub.Publish(feed.Event{Type: enum.ChangeInsert, Table: enum.TableTableOrders, ID: uuid.New(), LocationID: uuid.New()})

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var msg received
	if err := conn.ReadJSON(&msg); err == nil {
		t.Fatalf("unexpected message %q", msg.Type)
	}
}

func TestServeWS_Transition(t *testing.T) {
	loc := uuid.New()
	order := newOrder(loc, "T-01")
	env := setupWS(t, order)

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)

	if err := conn.WriteJSON(Inbound{Type: TypeTransition, RequestID: "r1", ID: order.ID, Status: enum.TableOrderAccepted}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMsg(t, conn)
	if msg.Type != TypeActionResult || msg.RequestID != "r1" {
		t.Fatalf("got %q/%q, want %q/r1", msg.Type, msg.RequestID, TypeActionResult)
	}
	var row view.Row
	if err := json.Unmarshal(msg.Data, &row); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	if row.Status != enum.TableOrderAccepted || row.Saving {
		t.Errorf("row: status %q saving %v", row.Status, row.Saving)
	}

	// ACCEPTED -> COMPLETED skips PREPARING and READY.
	if err := conn.WriteJSON(Inbound{Type: TypeTransition, RequestID: "r2", ID: order.ID, Status: enum.TableOrderCompleted}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMsg(t, conn)
	if msg.Type != TypeActionError || msg.RequestID != "r2" {
		t.Fatalf("got %q/%q, want %q/r2", msg.Type, msg.RequestID, TypeActionError)
	}
	if msg.Error == "" {
		t.Error("expected error text")
	}
}

func TestServeWS_FilterReloads(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t, newOrder(loc, "T-01"))

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)

	if err := conn.WriteJSON(Inbound{Type: TypeFilter, Filter: &view.Filter{Status: enum.TableOrderPlaced, Page: 1}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	page := readSnapshot(t, conn)
	if page.Filter.Status != enum.TableOrderPlaced {
		t.Errorf("filter status: got %q", page.Filter.Status)
	}

	if err := conn.WriteJSON(Inbound{Type: TypeFilter, Filter: &view.Filter{Status: "BOGUS"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMsg(t, conn); msg.Type != TypeActionError {
		t.Fatalf("type: got %q, want %q", msg.Type, TypeActionError)
	}
}

func TestServeWS_UnknownMessage(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t)
	env.loc = loc

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMsg(t, conn); msg.Type != TypeActionError {
		t.Fatalf("type: got %q", msg.Type)
	}
}

func TestServeWS_DisconnectUnsubscribes(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t, newOrder(loc, "T-01"))

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)
	waitForSubscribers(t, env.hub, enum.TableTableOrders, loc, 1)

	conn.Close()
	waitForSubscribers(t, env.hub, enum.TableTableOrders, loc, 0)
}

func TestServeWS_ResubscribesAfterDrop(t *testing.T) {
	loc := uuid.New()
	f := &droppableFeed{}
	env := setupWSWithFeed(t, f, newOrder(loc, "T-01"))

	conn := dial(t, env.url("table-orders", token(t, loc, enum.PartnerRestaurant)))
	readSnapshot(t, conn)
	f.waitSubscriptions(t, 1)

	f.drop(0)
	// Rejoining the feed refetches to cover anything missed while detached.
	readSnapshot(t, conn)
	f.waitSubscriptions(t, 2)

	fresh := newOrder(loc, "T-02")
	env.lister.add(fresh)
	f.push(1, feed.Event{Type: enum.ChangeInsert, Table: enum.TableTableOrders, ID: fresh.ID, LocationID: loc})

	alert := readMsg(t, conn)
	if alert.Type != TypeAlert {
		t.Fatalf("type: got %q, want %q", alert.Type, TypeAlert)
	}
	var data alertData
	if err := json.Unmarshal(alert.Data, &data); err != nil {
		t.Fatalf("decode alert: %v", err)
	}
	if data.ID != fresh.ID {
		t.Errorf("alert id: got %s, want %s", data.ID, fresh.ID)
	}
}

func TestServeWS_Rejections(t *testing.T) {
	loc := uuid.New()
	env := setupWS(t)
	env.loc = loc

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing token", fmt.Sprintf("/ws/locations/%s/flows/table-orders", loc), http.StatusUnauthorized},
		{"bad token", fmt.Sprintf("/ws/locations/%s/flows/table-orders?token=nope", loc), http.StatusUnauthorized},
		{"bad location", "/ws/locations/xyz/flows/table-orders?token=" + token(t, loc, enum.PartnerRestaurant), http.StatusBadRequest},
		{"other location", fmt.Sprintf("/ws/locations/%s/flows/table-orders?token=%s", uuid.New(), token(t, loc, enum.PartnerRestaurant)), http.StatusForbidden},
		{"unknown flow", fmt.Sprintf("/ws/locations/%s/flows/nope?token=%s", loc, token(t, loc, enum.PartnerRestaurant)), http.StatusNotFound},
		{"wrong partner type", fmt.Sprintf("/ws/locations/%s/flows/store-orders?token=%s", loc, token(t, loc, enum.PartnerRestaurant)), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(env.srv.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
