package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

// Decision is the accepted outcome of a transition request.
type Decision struct {
	From                       string
	To                         string
	TimestampField             string
	RequiresInventoryDecrement bool
	// MarksRead is always set: any partner action acknowledges the row.
	MarksRead bool
}

// Decide checks whether current -> requested is a direct edge of flow.
// It has no side effects; the caller persists the decision.
func Decide(flow *Flow, current, requested string) (Decision, error) {
	if !flow.Knows(current) {
		return Decision{}, fmt.Errorf("%s: %w: %q", flow.Slug, ErrUnknownStatus, current)
	}
	for _, e := range flow.Edges[current] {
		if e.To != requested {
			continue
		}
		return Decision{
			From:                       current,
			To:                         requested,
			TimestampField:             e.TimestampField,
			RequiresInventoryDecrement: flow.TracksInventory && e.Fulfils,
			MarksRead:                  true,
		}, nil
	}
	return Decision{}, fmt.Errorf("%s: %w from %s to %s", flow.Slug, ErrInvalidTransition, current, requested)
}

// Successors returns the statuses reachable in one step from current.
// Terminal and unknown statuses have none.
func Successors(flow *Flow, current string) []string {
	edges := flow.Edges[current]
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// Timestamps holds per-transition stamps keyed by column name.
type Timestamps map[string]*time.Time

// Stamp sets field to now unless it is already set. A stamp is never
// overwritten by a later transition.
func Stamp(ts Timestamps, field string, now time.Time) bool {
	if field == "" {
		return false
	}
	if existing, ok := ts[field]; ok && existing != nil {
		return false
	}
	t := now
	ts[field] = &t
	return true
}
