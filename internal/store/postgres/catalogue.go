package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/partnerdesk/api/internal/models"
)

const catalogueColumns = `id, location_id, name, price, stock_qty, track_inventory,
	low_stock_threshold, stock_status, is_available, updated_at`

func scanCatalogueItem(row pgx.Row) (models.CatalogueItem, error) {
	var (
		it    models.CatalogueItem
		price pgtype.Numeric
	)
	err := row.Scan(&it.ID, &it.LocationID, &it.Name, &price, &it.StockQty, &it.TrackInventory,
		&it.LowStockThreshold, &it.StockStatus, &it.IsAvailable, &it.UpdatedAt)
	if err != nil {
		return models.CatalogueItem{}, err
	}
	it.Price = numericToDecimal(price)
	return it, nil
}

// GetCatalogueItem resolves an item within the location that owns it.
func (s *Store) GetCatalogueItem(ctx context.Context, locationID, id uuid.UUID) (models.CatalogueItem, error) {
	row := s.db.QueryRow(ctx, `SELECT `+catalogueColumns+` FROM catalogue_items WHERE id = $1 AND location_id = $2`, id, locationID)
	it, err := scanCatalogueItem(row)
	if err != nil {
		return models.CatalogueItem{}, notFound(err)
	}
	return it, nil
}

// UpdateCatalogueStock writes the stock fields of item.
func (s *Store) UpdateCatalogueStock(ctx context.Context, item models.CatalogueItem) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE catalogue_items
		SET stock_qty = $1, stock_status = $2, is_available = $3, updated_at = now()
		WHERE id = $4 AND location_id = $5`,
		item.StockQty, item.StockStatus, item.IsAvailable, item.ID, item.LocationID)
	if err != nil {
		return fmt.Errorf("update catalogue stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(pgx.ErrNoRows)
	}
	return nil
}

// InsertStockMovement appends to the audit log.
func (s *Store) InsertStockMovement(ctx context.Context, mv models.StockMovement) (models.StockMovement, error) {
	if mv.ID == uuid.Nil {
		mv.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO stock_movements
			(id, item_id, location_id, movement_type, qty_delta, qty_before, qty_after, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		mv.ID, mv.ItemID, mv.LocationID, mv.MovementType, mv.QtyDelta, mv.QtyBefore, mv.QtyAfter,
		mv.Reason, mv.ActorID).Scan(&mv.CreatedAt)
	if err != nil {
		return models.StockMovement{}, fmt.Errorf("insert stock movement: %w", err)
	}
	return mv, nil
}

// ListCatalogue returns every item of a location ordered by name.
func (s *Store) ListCatalogue(ctx context.Context, locationID uuid.UUID) ([]models.CatalogueItem, error) {
	rows, err := s.db.Query(ctx, `SELECT `+catalogueColumns+` FROM catalogue_items WHERE location_id = $1 ORDER BY name`, locationID)
	if err != nil {
		return nil, fmt.Errorf("list catalogue: %w", err)
	}
	defer rows.Close()

	items := []models.CatalogueItem{}
	for rows.Next() {
		it, err := scanCatalogueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalogue item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListStockMovements returns the newest movements first, optionally for one item.
func (s *Store) ListStockMovements(ctx context.Context, locationID uuid.UUID, itemID *uuid.UUID, limit int) ([]models.StockMovement, error) {
	var item pgtype.UUID
	if itemID != nil {
		item = pgtype.UUID{Bytes: *itemID, Valid: true}
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, item_id, location_id, movement_type, qty_delta, qty_before, qty_after, reason, actor_id, created_at
		FROM stock_movements
		WHERE location_id = $1 AND ($2::uuid IS NULL OR item_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, locationID, item, limit)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	movements := []models.StockMovement{}
	for rows.Next() {
		var mv models.StockMovement
		if err := rows.Scan(&mv.ID, &mv.ItemID, &mv.LocationID, &mv.MovementType, &mv.QtyDelta,
			&mv.QtyBefore, &mv.QtyAfter, &mv.Reason, &mv.ActorID, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}
