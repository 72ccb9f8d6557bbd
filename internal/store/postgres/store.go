package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/store"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db DBTX
}

var _ store.Store = (*Store)(nil)

func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

var orderTables = map[string]bool{
	enum.TableTableOrders:   true,
	enum.TablePickupOrders:  true,
	enum.TableStoreOrders:   true,
	enum.TablePaymentOrders: true,
}

var statusColumns = map[string]bool{
	"status":         true,
	"payment_status": true,
}

// Table and column names are interpolated into SQL, so only known ones pass.
func orderTable(table string) (string, error) {
	if !orderTables[table] {
		return "", fmt.Errorf("%w: %q", store.ErrUnknownTable, table)
	}
	return pgx.Identifier{table}.Sanitize(), nil
}

func flowTable(table string) (string, error) {
	if table == enum.TableBookings {
		return pgx.Identifier{table}.Sanitize(), nil
	}
	return orderTable(table)
}

func timestampColumn(table, field string) (string, error) {
	var cols []string
	if table == enum.TableBookings {
		cols = bookingTimestampColumns
	} else {
		cols = orderTimestampColumns
	}
	for _, c := range cols {
		if c == field {
			return pgx.Identifier{c}.Sanitize(), nil
		}
	}
	return "", fmt.Errorf("unknown timestamp column %q for %s", field, table)
}

var orderTimestampColumns = []string{
	lifecycle.FieldAcceptedAt,
	lifecycle.FieldPreparingAt,
	lifecycle.FieldReadyAt,
	lifecycle.FieldCompletedAt,
	lifecycle.FieldPickedUpAt,
	lifecycle.FieldDeliveredAt,
	lifecycle.FieldCancelledAt,
	lifecycle.FieldRejectedAt,
	lifecycle.FieldPaidAt,
	lifecycle.FieldRefundedAt,
}

var bookingTimestampColumns = []string{
	lifecycle.FieldConfirmedAt,
	lifecycle.FieldCompletedAt,
	lifecycle.FieldCancelledAt,
	lifecycle.FieldNoShowAt,
}

// likePattern escapes LIKE metacharacters and wraps q for a substring match.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(q)) + "%"
}

func optionalTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// UpdateStatus writes an accepted transition. Timestamps use COALESCE so a
// stamp set by an earlier transition is never overwritten. There is no
// version check: concurrent sessions resolve last-write-wins.
func (s *Store) UpdateStatus(ctx context.Context, arg store.StatusUpdate) error {
	table, err := flowTable(arg.Table)
	if err != nil {
		return err
	}
	col := arg.StatusColumn
	if col == "" {
		col = "status"
	}
	if !statusColumns[col] || (col == "payment_status" && arg.Table == enum.TableBookings) {
		return fmt.Errorf("unknown status column %q for %s", col, arg.Table)
	}
	tsCol, err := timestampColumn(arg.Table, arg.TimestampField)
	if err != nil {
		return err
	}
	statusCol := pgx.Identifier{col}.Sanitize()

	sql := fmt.Sprintf(`
		UPDATE %[1]s SET
			%[2]s = $1,
			%[3]s = COALESCE(%[3]s, $2),
			read = CASE WHEN $3 THEN true ELSE read END,
			partner_seen_at = CASE WHEN $3 THEN COALESCE(partner_seen_at, $2) ELSE partner_seen_at END,
			cancel_reason = COALESCE($4, cancel_reason),
			updated_at = $2
		WHERE id = $5 AND location_id = $6`, table, statusCol, tsCol)

	tag, err := s.db.Exec(ctx, sql, arg.Status, arg.At, arg.MarkRead, arg.CancelReason, arg.ID, arg.LocationID)
	if err != nil {
		return fmt.Errorf("update %s status: %w", arg.Table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkSeen acknowledges a row without changing its status.
func (s *Store) MarkSeen(ctx context.Context, table string, locationID, id uuid.UUID, at time.Time) error {
	t, err := flowTable(table)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`
		UPDATE %s SET read = true, partner_seen_at = COALESCE(partner_seen_at, $1)
		WHERE id = $2 AND location_id = $3`, t)
	tag, err := s.db.Exec(ctx, sql, at, id, locationID)
	if err != nil {
		return fmt.Errorf("mark %s seen: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CountUnread counts rows the partner has not acknowledged yet.
func (s *Store) CountUnread(ctx context.Context, table string, locationIDs []uuid.UUID) (int64, error) {
	t, err := flowTable(table)
	if err != nil {
		return 0, err
	}
	var n int64
	sql := fmt.Sprintf(`SELECT count(*) FROM %s WHERE location_id = ANY($1) AND read = false`, t)
	if err := s.db.QueryRow(ctx, sql, locationIDs).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread %s: %w", table, err)
	}
	return n, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
