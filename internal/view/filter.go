package view

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/store"
)

// DefaultPageSize is the list page size when none is configured.
const DefaultPageSize = 10

var ErrInvalidFilter = errors.New("invalid filter")

// Filter is the user-selected list query. Page is 1-based.
type Filter struct {
	Status string     `json:"status,omitempty"`
	Query  string     `json:"q,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Page   int        `json:"page"`
}

// Normalize validates f against flow and fills defaults.
func (f Filter) Normalize(flow *lifecycle.Flow) (Filter, error) {
	f.Status = strings.TrimSpace(f.Status)
	f.Query = strings.TrimSpace(f.Query)
	if f.Status != "" && !flow.Knows(f.Status) {
		return Filter{}, fmt.Errorf("%w: unknown status %q for %s", ErrInvalidFilter, f.Status, flow.Slug)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return Filter{}, fmt.Errorf("%w: from is after to", ErrInvalidFilter)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	return f, nil
}

// Params converts the filter to a row store query for one page.
func (f Filter) Params(locationIDs []uuid.UUID, pageSize int) store.ListParams {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return store.ListParams{
		LocationIDs: locationIDs,
		Status:      f.Status,
		Query:       f.Query,
		From:        f.From,
		To:          f.To,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	}
}

// ParseFilter reads status, q, from, to and page from query parameters.
// Dates accept RFC3339 or YYYY-MM-DD; a bare "to" date covers the whole day.
func ParseFilter(v url.Values) (Filter, error) {
	f := Filter{
		Status: v.Get("status"),
		Query:  v.Get("q"),
	}
	if s := v.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: page must be a number", ErrInvalidFilter)
		}
		f.Page = n
	}
	var err error
	if f.From, err = parseDate(v.Get("from"), false); err != nil {
		return Filter{}, err
	}
	if f.To, err = parseDate(v.Get("to"), true); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidFilter, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
