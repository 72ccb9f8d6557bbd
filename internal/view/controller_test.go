package view

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

type mockLister struct {
	listOrdersFn   func(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error)
	listBookingsFn func(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error)
	lastParams     store.ListParams
}

func (m *mockLister) ListOrders(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error) {
	m.lastParams = arg
	return m.listOrdersFn(ctx, table, arg)
}

func (m *mockLister) ListBookings(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error) {
	m.lastParams = arg
	return m.listBookingsFn(ctx, arg)
}

type mockActions struct {
	transitionOrderFn   func(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error)
	transitionBookingFn func(ctx context.Context, req service.TransitionRequest) (*service.BookingResult, error)
	markSeenFn          func(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error
}

func (m *mockActions) TransitionOrder(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
	return m.transitionOrderFn(ctx, req)
}

func (m *mockActions) TransitionBooking(ctx context.Context, req service.TransitionRequest) (*service.BookingResult, error) {
	return m.transitionBookingFn(ctx, req)
}

func (m *mockActions) MarkSeen(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error {
	if m.markSeenFn == nil {
		return nil
	}
	return m.markSeenFn(ctx, flow, locationID, id)
}

// --- Test helpers ---

func testOrder(loc uuid.UUID, status string) models.Order {
	return models.Order{
		ID:          uuid.New(),
		LocationID:  loc,
		OrderCode:   "T-01",
		Status:      status,
		Items:       []models.Item{},
		TotalAmount: decimal.NewFromInt(1000),
		Timestamps:  map[string]*time.Time{},
		CreatedAt:   time.Now(),
	}
}

func staticLister(orders ...models.Order) *mockLister {
	return &mockLister{
		listOrdersFn: func(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error) {
			return orders, int64(len(orders)), nil
		},
	}
}

// --- Tests ---

func TestLoadBuildsSnapshotWithActions(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.TableOrderPlaced)
	lister := staticLister(o)
	c := NewController(lifecycle.TableOrders, loc, uuid.New(), 10, lister, &mockActions{})

	page, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || len(page.Rows) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
	want := []string{enum.TableOrderAccepted, enum.TableOrderCancelled}
	if fmt.Sprint(page.Rows[0].Actions) != fmt.Sprint(want) {
		t.Errorf("expected actions %v, got %v", want, page.Rows[0].Actions)
	}
	if ids := page.IDs(); len(ids) != 1 || ids[0] != o.ID {
		t.Errorf("unexpected ids %v", ids)
	}
	if len(lister.lastParams.LocationIDs) != 1 || lister.lastParams.LocationIDs[0] != loc {
		t.Errorf("query not scoped to location: %+v", lister.lastParams)
	}
}

func TestLoadUsesFilterAndPage(t *testing.T) {
	loc := uuid.New()
	lister := staticLister()
	c := NewController(lifecycle.PickupOrders, loc, uuid.New(), 10, lister, &mockActions{})

	if err := c.SetFilter(Filter{Status: enum.PickupOrderReadyForPickup, Query: " rina ", Page: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := lister.lastParams
	if p.Status != enum.PickupOrderReadyForPickup || p.Query != "rina" || p.Limit != 10 || p.Offset != 20 {
		t.Fatalf("unexpected params %+v", p)
	}
}

func TestSetFilterRejectsUnknownStatus(t *testing.T) {
	c := NewController(lifecycle.Bookings, uuid.New(), uuid.New(), 10, staticLister(), &mockActions{})
	if err := c.SetFilter(Filter{Status: enum.TableOrderPlaced}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if c.Filter().Status != "" {
		t.Fatal("filter must be unchanged after a rejected update")
	}
}

func TestLoadBookings(t *testing.T) {
	loc := uuid.New()
	b := models.Booking{ID: uuid.New(), LocationID: loc, BookingCode: "BK-7", Status: enum.BookingConfirmed, PartySize: 4, BookingAt: time.Now()}
	lister := &mockLister{
		listBookingsFn: func(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error) {
			return []models.Booking{b}, 1, nil
		},
	}
	c := NewController(lifecycle.Bookings, loc, uuid.New(), 10, lister, &mockActions{})

	page, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Rows[0].Code != "BK-7" || page.Rows[0].PartySize != 4 || len(page.Rows[0].Actions) != 3 {
		t.Fatalf("unexpected row %+v", page.Rows[0])
	}
}

func TestActReplacesRowOnSuccess(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.TableOrderPlaced)
	actor := uuid.New()
	var got service.TransitionRequest
	actions := &mockActions{
		transitionOrderFn: func(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
			got = req
			updated := o
			updated.Status = req.Status
			updated.Read = true
			return &service.OrderResult{Order: updated}, nil
		},
	}
	c := NewController(lifecycle.TableOrders, loc, actor, 10, staticLister(o), actions)
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row, err := c.Act(context.Background(), o.ID, enum.TableOrderAccepted, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Status != enum.TableOrderAccepted || row.Saving {
		t.Fatalf("unexpected row %+v", row)
	}
	if got.ActorID != actor || got.LocationID != loc || got.Flow != lifecycle.TableOrders {
		t.Errorf("unexpected request %+v", got)
	}
	if snap := c.Snapshot(); snap.Rows[0].Status != enum.TableOrderAccepted {
		t.Errorf("snapshot not updated: %+v", snap.Rows[0])
	}
	if c.Saving(o.ID) {
		t.Error("saving marker must be cleared")
	}
}

func TestActRevertsOnPersistenceFailure(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.TableOrderPlaced)
	actions := &mockActions{
		transitionOrderFn: func(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
			return nil, fmt.Errorf("%w: connection reset", service.ErrPersistence)
		},
	}
	c := NewController(lifecycle.TableOrders, loc, uuid.New(), 10, staticLister(o), actions)
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := c.Act(context.Background(), o.ID, enum.TableOrderAccepted, "")
	if !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	row := c.Snapshot().Rows[0]
	if row.Status != enum.TableOrderPlaced || row.Saving || len(row.Actions) != 2 {
		t.Fatalf("expected reverted row, got %+v", row)
	}
	if c.Saving(o.ID) {
		t.Error("saving marker must be cleared after failure")
	}
}

func TestActRejectsConcurrentSaveOnSameRow(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.TableOrderPlaced)
	release := make(chan struct{})
	entered := make(chan struct{})
	actions := &mockActions{
		transitionOrderFn: func(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
			close(entered)
			<-release
			updated := o
			updated.Status = req.Status
			return &service.OrderResult{Order: updated}, nil
		},
	}
	lister := staticLister(o)
	c := NewController(lifecycle.TableOrders, loc, uuid.New(), 10, lister, actions)
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Act(context.Background(), o.ID, enum.TableOrderAccepted, "")
		done <- err
	}()
	<-entered

	if _, err := c.Act(context.Background(), o.ID, enum.TableOrderCancelled, ""); !errors.Is(err, ErrSaveInFlight) {
		t.Fatalf("expected ErrSaveInFlight, got %v", err)
	}
	row := c.Snapshot().Rows[0]
	if !row.Saving || row.Status != enum.TableOrderAccepted {
		t.Fatalf("expected optimistic patch, got %+v", row)
	}

	// a refetch during the save keeps the optimistic row
	page, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !page.Rows[0].Saving {
		t.Fatal("refetch must not clobber a row being saved")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Saving(o.ID) {
		t.Fatal("saving marker must be cleared")
	}
}

func TestActOnRowLoadedDuringSaveKeepsFetchedRow(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.TableOrderPlaced)
	o.OrderCode = "T-42"
	o.CustomerName = "Dewi"

	release := make(chan struct{})
	entered := make(chan struct{})
	actions := &mockActions{
		transitionOrderFn: func(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error) {
			close(entered)
			<-release
			return nil, fmt.Errorf("%w: timeout", service.ErrPersistence)
		},
	}
	var onPage []models.Order
	lister := &mockLister{
		listOrdersFn: func(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error) {
			return onPage, int64(len(onPage)), nil
		},
	}
	c := NewController(lifecycle.TableOrders, loc, uuid.New(), 10, lister, actions)
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The row is not on the page when the action starts.
	done := make(chan error, 1)
	go func() {
		_, err := c.Act(context.Background(), o.ID, enum.TableOrderAccepted, "")
		done <- err
	}()
	<-entered

	onPage = []models.Order{o}
	page, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := page.Rows[0]
	if row.ID != o.ID || !row.Saving {
		t.Fatalf("expected fetched row marked saving, got %+v", row)
	}
	if row.Code != "T-42" || row.CustomerName != "Dewi" || row.Status != enum.TableOrderPlaced {
		t.Fatalf("fetched fields replaced by an empty placeholder: %+v", row)
	}
	if len(row.Actions) == 0 {
		t.Error("fetched row lost its actions")
	}

	close(release)
	if err := <-done; !errors.Is(err, service.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := c.Snapshot().Rows[0]; got.Saving || got.Code != "T-42" {
		t.Fatalf("expected settled fetched row, got %+v", got)
	}
}

func TestMarkSeenPatchesSnapshot(t *testing.T) {
	loc := uuid.New()
	o := testOrder(loc, enum.StoreOrderNew)
	c := NewController(lifecycle.StoreOrders, loc, uuid.New(), 10, staticLister(o), &mockActions{})
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.MarkSeen(context.Background(), o.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := c.Snapshot().Rows[0]
	if !row.Read || row.PartnerSeenAt == nil {
		t.Fatalf("expected read row, got %+v", row)
	}
}

func TestParseFilter(t *testing.T) {
	v := url.Values{}
	v.Set("status", "READY")
	v.Set("q", "budi")
	v.Set("from", "2026-03-01")
	v.Set("to", "2026-03-02")
	v.Set("page", "2")

	f, err := ParseFilter(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Status != "READY" || f.Query != "budi" || f.Page != 2 {
		t.Fatalf("unexpected filter %+v", f)
	}
	if f.From.Format(time.RFC3339) != "2026-03-01T00:00:00Z" {
		t.Errorf("unexpected from %v", f.From)
	}
	if f.To.Day() != 2 || f.To.Hour() != 23 {
		t.Errorf("to should cover the whole day, got %v", f.To)
	}

	bad := url.Values{}
	bad.Set("page", "two")
	if _, err := ParseFilter(bad); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	bad = url.Values{}
	bad.Set("from", "yesterday")
	if _, err := ParseFilter(bad); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestNormalizeRejectsInvertedRange(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	if _, err := (Filter{From: &from, To: &to}).Normalize(lifecycle.TableOrders); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}
