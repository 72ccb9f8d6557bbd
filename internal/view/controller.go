// Package view holds the per-mount state of a realtime list view: the
// active filter, the last loaded page and the rows with a save in flight.
package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/service"
	"github.com/partnerdesk/api/internal/store"
)

var ErrSaveInFlight = errors.New("a change to this row is already being saved")

// Lister loads list pages. Satisfied by *postgres.Store.
type Lister interface {
	ListOrders(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error)
	ListBookings(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error)
}

// Actions performs partner actions. Satisfied by *service.LifecycleService.
type Actions interface {
	TransitionOrder(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error)
	TransitionBooking(ctx context.Context, req service.TransitionRequest) (*service.BookingResult, error)
	MarkSeen(ctx context.Context, flow *lifecycle.Flow, locationID, id uuid.UUID) error
}

// Page is one loaded list page.
type Page struct {
	Flow     string `json:"flow"`
	Rows     []Row  `json:"rows"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Filter   Filter `json:"filter"`
}

// IDs returns the row IDs of the page in display order.
func (p Page) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(p.Rows))
	for i, r := range p.Rows {
		ids[i] = r.ID
	}
	return ids
}

// Controller is owned by one mounted view. It is safe for concurrent use.
type Controller struct {
	flow       *lifecycle.Flow
	locationID uuid.UUID
	actorID    uuid.UUID
	pageSize   int
	lister     Lister
	actions    Actions

	mu     sync.Mutex
	filter Filter
	page   Page
	saving map[uuid.UUID]pendingSave
}

// pendingSave is a row with a save in flight. patched is false when the row
// was not on the page at the time of the action, so there is no optimistic
// copy to show.
type pendingSave struct {
	row     Row
	patched bool
}

// NewController creates a controller for flow at one location. actorID is
// recorded on every action taken through it.
func NewController(flow *lifecycle.Flow, locationID, actorID uuid.UUID, pageSize int, lister Lister, actions Actions) *Controller {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Controller{
		flow:       flow,
		locationID: locationID,
		actorID:    actorID,
		pageSize:   pageSize,
		lister:     lister,
		actions:    actions,
		filter:     Filter{Page: 1},
		page:       Page{Flow: flow.Slug, Rows: []Row{}, Page: 1, PageSize: pageSize, Filter: Filter{Page: 1}},
		saving:     make(map[uuid.UUID]pendingSave),
	}
}

// Flow returns the controller's flow.
func (c *Controller) Flow() *lifecycle.Flow { return c.flow }

// Filter returns the active filter.
func (c *Controller) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// SetFilter replaces the active filter. The next Load uses it.
func (c *Controller) SetFilter(f Filter) error {
	f, err := f.Normalize(c.flow)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
	return nil
}

// Load queries the current page and replaces the local snapshot. Rows with
// a save in flight keep their optimistic state until the save settles.
func (c *Controller) Load(ctx context.Context) (Page, error) {
	filter := c.Filter()
	params := filter.Params([]uuid.UUID{c.locationID}, c.pageSize)

	var (
		rows  []Row
		total int64
	)
	if c.flow.IsBooking() {
		bookings, n, err := c.lister.ListBookings(ctx, params)
		if err != nil {
			return Page{}, fmt.Errorf("load %s: %w", c.flow.Slug, err)
		}
		rows = make([]Row, 0, len(bookings))
		for _, b := range bookings {
			rows = append(rows, BookingRow(b))
		}
		total = n
	} else {
		orders, n, err := c.lister.ListOrders(ctx, c.flow.Table, params)
		if err != nil {
			return Page{}, fmt.Errorf("load %s: %w", c.flow.Slug, err)
		}
		rows = make([]Row, 0, len(orders))
		for _, o := range orders {
			rows = append(rows, OrderRow(c.flow, o))
		}
		total = n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range rows {
		pending, ok := c.saving[r.ID]
		switch {
		case !ok:
		case pending.patched:
			rows[i] = pending.row
		default:
			rows[i].Saving = true
		}
	}
	c.page = Page{
		Flow:     c.flow.Slug,
		Rows:     rows,
		Total:    total,
		Page:     filter.Page,
		PageSize: c.pageSize,
		Filter:   filter,
	}
	return c.snapshotLocked(), nil
}

// Snapshot returns a copy of the last loaded page including local patches.
func (c *Controller) Snapshot() Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Page {
	p := c.page
	p.Rows = make([]Row, len(c.page.Rows))
	copy(p.Rows, c.page.Rows)
	return p
}

// Act requests a status change on one row. The row is patched locally
// before the call and reverted if the call fails. Only one save per row may
// be in flight.
func (c *Controller) Act(ctx context.Context, id uuid.UUID, status, reason string) (Row, error) {
	c.mu.Lock()
	if _, busy := c.saving[id]; busy {
		c.mu.Unlock()
		return Row{}, ErrSaveInFlight
	}
	idx, prev, found := c.findLocked(id)
	if found {
		patched := prev
		patched.Status = status
		patched.Read = true
		patched.Actions = []string{}
		patched.Saving = true
		if reason != "" {
			r := reason
			patched.CancelReason = &r
		}
		c.page.Rows[idx] = patched
		c.saving[id] = pendingSave{row: patched, patched: true}
	} else {
		c.saving[id] = pendingSave{}
	}
	c.mu.Unlock()

	req := service.TransitionRequest{
		Flow:         c.flow,
		LocationID:   c.locationID,
		ID:           id,
		Status:       status,
		CancelReason: reason,
		ActorID:      c.actorID,
	}
	var (
		row Row
		err error
	)
	if c.flow.IsBooking() {
		var res *service.BookingResult
		if res, err = c.actions.TransitionBooking(ctx, req); err == nil {
			row = BookingRow(res.Booking)
		}
	} else {
		var res *service.OrderResult
		if res, err = c.actions.TransitionOrder(ctx, req); err == nil {
			row = OrderRow(c.flow, res.Order)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.saving, id)
	if err != nil {
		if found {
			c.replaceLocked(id, prev)
		} else if idx, r, ok := c.findLocked(id); ok {
			// Loaded while the save was in flight.
			r.Saving = false
			c.page.Rows[idx] = r
		}
		return Row{}, err
	}
	c.replaceLocked(id, row)
	return row, nil
}

// MarkSeen acknowledges a row and patches the local snapshot.
func (c *Controller) MarkSeen(ctx context.Context, id uuid.UUID) error {
	if err := c.actions.MarkSeen(ctx, c.flow, c.locationID, id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx, r, ok := c.findLocked(id); ok {
		r.Read = true
		if r.PartnerSeenAt == nil {
			now := time.Now().UTC()
			r.PartnerSeenAt = &now
		}
		c.page.Rows[idx] = r
	}
	return nil
}

// Saving reports whether a save on id is in flight.
func (c *Controller) Saving(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.saving[id]
	return ok
}

func (c *Controller) findLocked(id uuid.UUID) (int, Row, bool) {
	for i, r := range c.page.Rows {
		if r.ID == id {
			return i, r, true
		}
	}
	return -1, Row{}, false
}

func (c *Controller) replaceLocked(id uuid.UUID, row Row) {
	if idx, _, ok := c.findLocked(id); ok {
		c.page.Rows[idx] = row
	}
}
