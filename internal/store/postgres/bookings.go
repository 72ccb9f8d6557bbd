package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/store"
)

var bookingColumns = append([]string{
	"id", "location_id", "booking_code", "customer_name", "customer_phone", "party_size",
	"booking_at", "notes", "status", "read", "partner_seen_at", "cancel_reason",
	"created_at", "updated_at",
}, bookingTimestampColumns...)

// ListBookings returns one page of bookings, latest booking slot first.
func (s *Store) ListBookings(ctx context.Context, arg store.ListParams) ([]models.Booking, int64, error) {
	where := `
		WHERE location_id = ANY($1)
		  AND ($2::text = '' OR status = $2)
		  AND ($3::text = '' OR customer_name ILIKE $3 OR customer_phone ILIKE $3 OR booking_code ILIKE $3)
		  AND ($4::timestamptz IS NULL OR booking_at >= $4)
		  AND ($5::timestamptz IS NULL OR booking_at < $5)`
	q := ""
	if strings.TrimSpace(arg.Query) != "" {
		q = likePattern(arg.Query)
	}
	args := []any{arg.LocationIDs, arg.Status, q, optionalTime(arg.From), optionalTime(arg.To)}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM bookings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM bookings %s
		ORDER BY booking_at DESC, id DESC
		LIMIT $6 OFFSET $7`, strings.Join(bookingColumns, ", "), where)
	rows, err := s.db.Query(ctx, sql, append(args, arg.Limit, arg.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// GetBooking fetches one booking scoped to its owning location.
func (s *Store) GetBooking(ctx context.Context, locationID, id uuid.UUID) (models.Booking, error) {
	sql := fmt.Sprintf(`SELECT %s FROM bookings WHERE id = $1 AND location_id = $2`, strings.Join(bookingColumns, ", "))
	b, err := scanBooking(s.db.QueryRow(ctx, sql, id, locationID))
	if err != nil {
		return models.Booking{}, notFound(err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (models.Booking, error) {
	var b models.Booking
	stamps := make([]*time.Time, len(bookingTimestampColumns))
	dest := []any{
		&b.ID, &b.LocationID, &b.BookingCode, &b.CustomerName, &b.CustomerPhone, &b.PartySize,
		&b.BookingAt, &b.Notes, &b.Status, &b.Read, &b.PartnerSeenAt, &b.CancelReason,
		&b.CreatedAt, &b.UpdatedAt,
	}
	for i := range stamps {
		dest = append(dest, &stamps[i])
	}
	if err := row.Scan(dest...); err != nil {
		return models.Booking{}, err
	}
	b.Timestamps = make(map[string]*time.Time, len(stamps))
	for i, col := range bookingTimestampColumns {
		b.Timestamps[col] = stamps[i]
	}
	return b, nil
}
