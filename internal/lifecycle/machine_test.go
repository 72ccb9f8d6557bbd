package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/partnerdesk/api/internal/enum"
)

func allStatuses(f *Flow) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for from, edges := range f.Edges {
		add(from)
		for _, e := range edges {
			add(e.To)
		}
	}
	for _, s := range f.Terminal {
		add(s)
	}
	return out
}

func isEdge(f *Flow, from, to string) bool {
	for _, e := range f.Edges[from] {
		if e.To == to {
			return true
		}
	}
	return false
}

func TestDecide_RejectsEveryNonEdge(t *testing.T) {
	flows := append(Flows(), Payments)
	for _, f := range flows {
		statuses := allStatuses(f)
		for _, from := range statuses {
			for _, to := range statuses {
				_, err := Decide(f, from, to)
				if isEdge(f, from, to) {
					if err != nil {
						t.Errorf("%s: %s -> %s: unexpected error %v", f.Slug, from, to, err)
					}
					continue
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s: %s -> %s: got %v, want ErrInvalidTransition", f.Slug, from, to, err)
				}
			}
		}
	}
}

func TestDecide_KnownEdges(t *testing.T) {
	cases := []struct {
		name    string
		flow    *Flow
		from    string
		to      string
		wantErr error
	}{
		{"table ready back to placed", TableOrders, enum.TableOrderReady, enum.TableOrderPlaced, ErrInvalidTransition},
		{"table skip preparing", TableOrders, enum.TableOrderAccepted, enum.TableOrderReady, ErrInvalidTransition},
		{"table cancelled to accepted", TableOrders, enum.TableOrderCancelled, enum.TableOrderAccepted, ErrInvalidTransition},
		{"pickup cancelled to accepted", PickupOrders, enum.PickupOrderCancelled, enum.PickupOrderAccepted, ErrInvalidTransition},
		{"booking cancelled to confirmed", Bookings, enum.BookingCancelled, enum.BookingConfirmed, ErrInvalidTransition},
		{"booking no show from pending", Bookings, enum.BookingPending, enum.BookingNoShow, ErrInvalidTransition},
		{"store delivered to rejected", StoreOrders, enum.StoreOrderDelivered, enum.StoreOrderRejected, ErrInvalidTransition},
		{"unknown current", TableOrders, "ARCHIVED", enum.TableOrderAccepted, ErrUnknownStatus},
		{"unknown requested", TableOrders, enum.TableOrderPlaced, "ARCHIVED", ErrInvalidTransition},
		{"lowercase is a different status", TableOrders, "placed", enum.TableOrderAccepted, ErrUnknownStatus},
		{"table accept", TableOrders, enum.TableOrderPlaced, enum.TableOrderAccepted, nil},
		{"store placed accept", StoreOrders, enum.StoreOrderPlaced, enum.StoreOrderAccepted, nil},
		{"store new reject", StoreOrders, enum.StoreOrderNew, enum.StoreOrderRejected, nil},
		{"booking no show", Bookings, enum.BookingConfirmed, enum.BookingNoShow, nil},
		{"payment refund", Payments, enum.PaymentStatusPaid, enum.PaymentStatusRefunded, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decide(tc.flow, tc.from, tc.to)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestDecide_TerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, f := range append(Flows(), Payments) {
		for _, term := range f.Terminal {
			if got := Successors(f, term); len(got) != 0 {
				t.Errorf("%s: terminal %s has successors %v", f.Slug, term, got)
			}
			for _, to := range allStatuses(f) {
				if _, err := Decide(f, term, to); !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s: %s -> %s: got %v, want ErrInvalidTransition", f.Slug, term, to, err)
				}
			}
		}
	}
}

func TestDecide_SideEffectFlags(t *testing.T) {
	d, err := Decide(StoreOrders, enum.StoreOrderReady, enum.StoreOrderDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.RequiresInventoryDecrement {
		t.Error("store delivery should require inventory decrement")
	}
	if d.TimestampField != FieldDeliveredAt {
		t.Errorf("timestamp field: got %s, want %s", d.TimestampField, FieldDeliveredAt)
	}
	if !d.MarksRead {
		t.Error("every decision marks the row read")
	}

	d, err = Decide(StoreOrders, enum.StoreOrderReady, enum.StoreOrderRejected)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.RequiresInventoryDecrement {
		t.Error("rejection must not decrement inventory")
	}

	d, err = Decide(TableOrders, enum.TableOrderReady, enum.TableOrderCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.RequiresInventoryDecrement {
		t.Error("table orders do not track inventory")
	}

	d, err = Decide(PaymentOrders, enum.StoreOrderReady, enum.StoreOrderDelivered)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.RequiresInventoryDecrement {
		t.Error("payment order delivery should require inventory decrement")
	}
}

func TestDecide_EveryEdgeStampsOneField(t *testing.T) {
	for _, f := range append(Flows(), Payments) {
		for from, edges := range f.Edges {
			for _, e := range edges {
				d, err := Decide(f, from, e.To)
				if err != nil {
					t.Fatalf("%s: %s -> %s: %v", f.Slug, from, e.To, err)
				}
				if d.TimestampField == "" {
					t.Errorf("%s: %s -> %s stamps nothing", f.Slug, from, e.To)
				}
			}
		}
	}
}

func TestStamp_NeverOverwrites(t *testing.T) {
	ts := Timestamps{}
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)

	// PLACED -> ACCEPTED
	d, err := Decide(TableOrders, enum.TableOrderPlaced, enum.TableOrderAccepted)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !Stamp(ts, d.TimestampField, first) {
		t.Fatal("first stamp should be applied")
	}

	// ACCEPTED -> PREPARING leaves accepted_at alone
	d, err = Decide(TableOrders, enum.TableOrderAccepted, enum.TableOrderPreparing)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	Stamp(ts, d.TimestampField, later)

	if got := *ts[FieldAcceptedAt]; !got.Equal(first) {
		t.Fatalf("accepted_at changed: got %v, want %v", got, first)
	}
	if got := *ts[FieldPreparingAt]; !got.Equal(later) {
		t.Fatalf("preparing_at: got %v, want %v", got, later)
	}
	if Stamp(ts, FieldAcceptedAt, later) {
		t.Fatal("re-stamping accepted_at must be refused")
	}
	if len(ts) != 2 {
		t.Fatalf("stamped fields: got %d, want 2", len(ts))
	}
}

func TestFlowBySlug(t *testing.T) {
	for _, f := range Flows() {
		got, ok := FlowBySlug(f.Slug)
		if !ok || got != f {
			t.Errorf("FlowBySlug(%q) did not return the flow", f.Slug)
		}
	}
	if _, ok := FlowBySlug("payment-status"); ok {
		t.Error("payment sub-flow is not addressable by slug")
	}
	if _, ok := FlowBySlug("nope"); ok {
		t.Error("unknown slug resolved")
	}
}

func TestSuccessors(t *testing.T) {
	got := Successors(Bookings, enum.BookingConfirmed)
	want := []string{enum.BookingCompleted, enum.BookingCancelled, enum.BookingNoShow}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
