package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/partnerdesk/api/internal/models"
	"github.com/partnerdesk/api/internal/store"
)

var orderColumns = append([]string{
	"id", "location_id", "order_code", "customer_name", "customer_phone", "table_number",
	"status", "payment_status", "items", "total_amount", "read", "partner_seen_at",
	"cancel_reason", "created_at", "updated_at",
}, orderTimestampColumns...)

// ListOrders returns one page of orders plus the total row count for the filter.
func (s *Store) ListOrders(ctx context.Context, table string, arg store.ListParams) ([]models.Order, int64, error) {
	t, err := orderTable(table)
	if err != nil {
		return nil, 0, err
	}

	where := `
		WHERE location_id = ANY($1)
		  AND ($2::text = '' OR status = $2)
		  AND ($3::text = '' OR customer_name ILIKE $3 OR customer_phone ILIKE $3 OR order_code ILIKE $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)`
	q := ""
	if strings.TrimSpace(arg.Query) != "" {
		q = likePattern(arg.Query)
	}
	args := []any{arg.LocationIDs, arg.Status, q, optionalTime(arg.From), optionalTime(arg.To)}

	var total int64
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM "+t+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", table, err)
	}

	sql := fmt.Sprintf(`SELECT %s FROM %s %s
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7`, strings.Join(orderColumns, ", "), t, where)
	rows, err := s.db.Query(ctx, sql, append(args, arg.Limit, arg.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan %s: %w", table, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// GetOrder fetches one order scoped to its owning location.
func (s *Store) GetOrder(ctx context.Context, table string, locationID, id uuid.UUID) (models.Order, error) {
	t, err := orderTable(table)
	if err != nil {
		return models.Order{}, err
	}
	sql := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND location_id = $2`, strings.Join(orderColumns, ", "), t)
	o, err := scanOrder(s.db.QueryRow(ctx, sql, id, locationID))
	if err != nil {
		return models.Order{}, notFound(err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o     models.Order
		items []byte
		total pgtype.Numeric
	)
	stamps := make([]*time.Time, len(orderTimestampColumns))
	dest := []any{
		&o.ID, &o.LocationID, &o.OrderCode, &o.CustomerName, &o.CustomerPhone, &o.TableNumber,
		&o.Status, &o.PaymentStatus, &items, &total, &o.Read, &o.PartnerSeenAt,
		&o.CancelReason, &o.CreatedAt, &o.UpdatedAt,
	}
	for i := range stamps {
		dest = append(dest, &stamps[i])
	}
	if err := row.Scan(dest...); err != nil {
		return models.Order{}, err
	}
	o.Items = models.ParseItems(items)
	o.TotalAmount = numericToDecimal(total)
	o.Timestamps = make(map[string]*time.Time, len(stamps))
	for i, col := range orderTimestampColumns {
		o.Timestamps[col] = stamps[i]
	}
	return o, nil
}
