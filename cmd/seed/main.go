package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/partnerdesk/api/internal/auth"
	"github.com/partnerdesk/api/internal/config"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/logger"
	"github.com/partnerdesk/api/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type seedLocation struct {
	name        string
	partnerType string
}

var demoLocations = []seedLocation{
	{name: "Warung Demo", partnerType: enum.PartnerRestaurant},
	{name: "Toko Demo", partnerType: enum.PartnerStore},
}

func main() {
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the printed dev tokens")
	orders := flag.Int("orders", 3, "Orders to create per flow table")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", zap.Error(err))
	}

	// Seed in a transaction: all demo data or none.
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx)

	locations := make(map[string]uuid.UUID, len(demoLocations))
	for _, loc := range demoLocations {
		id, err := seedLocationRow(ctx, tx, loc, log)
		if err != nil {
			log.Fatal("seed location", zap.String("name", loc.name), zap.Error(err))
		}
		locations[loc.partnerType] = id
	}

	items, err := seedCatalogue(ctx, tx, locations[enum.PartnerStore])
	if err != nil {
		log.Fatal("seed catalogue", zap.Error(err))
	}

	restaurant := locations[enum.PartnerRestaurant]
	for _, t := range []struct {
		table  string
		prefix string
		status string
	}{
		{enum.TableTableOrders, "T", enum.TableOrderPlaced},
		{enum.TablePickupOrders, "P", enum.PickupOrderNew},
	} {
		if err := seedOrders(ctx, tx, t.table, restaurant, t.prefix, t.status, nil, *orders); err != nil {
			log.Fatal("seed orders", zap.String("table", t.table), zap.Error(err))
		}
	}

	store := locations[enum.PartnerStore]
	for _, t := range []struct {
		table  string
		prefix string
	}{
		{enum.TableStoreOrders, "S"},
		{enum.TablePaymentOrders, "PAY"},
	} {
		if err := seedOrders(ctx, tx, t.table, store, t.prefix, enum.StoreOrderNew, items, *orders); err != nil {
			log.Fatal("seed orders", zap.String("table", t.table), zap.Error(err))
		}
	}

	if err := seedBookings(ctx, tx, restaurant, *orders); err != nil {
		log.Fatal("seed bookings", zap.Error(err))
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("commit", zap.Error(err))
	}
	log.Info("seed completed")

	printToken(cfg.JWTSecret, "restaurant partner", []uuid.UUID{restaurant}, enum.PartnerRestaurant, enum.RolePartner, *tokenTTL, log)
	printToken(cfg.JWTSecret, "store partner", []uuid.UUID{store}, enum.PartnerStore, enum.RolePartner, *tokenTTL, log)
	printToken(cfg.JWTSecret, "admin", nil, "", enum.RoleAdmin, *tokenTTL, log)
}

// seedLocationRow creates a demo location if it doesn't exist.
func seedLocationRow(ctx context.Context, tx pgx.Tx, loc seedLocation, log *zap.Logger) (uuid.UUID, error) {
	var existingID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM locations WHERE name = $1 LIMIT 1`, loc.name).Scan(&existingID)
	if err == nil {
		log.Info("location already exists, skipping", zap.String("name", loc.name), zap.String("id", existingID.String()))
		return existingID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("check location: %w", err)
	}

	id := uuid.New()
	if _, err := tx.Exec(ctx, `INSERT INTO locations (id, name, partner_type) VALUES ($1, $2, $3)`,
		id, loc.name, loc.partnerType); err != nil {
		return uuid.Nil, fmt.Errorf("insert location: %w", err)
	}
	log.Info("created location", zap.String("name", loc.name), zap.String("id", id.String()))
	return id, nil
}

func seedCatalogue(ctx context.Context, tx pgx.Tx, locationID uuid.UUID) ([]models.Item, error) {
	demo := []struct {
		name      string
		price     int64
		qty       int32
		threshold int32
		tracked   bool
	}{
		{"Kopi Susu", 18000, 40, 5, true},
		{"Roti Bakar", 15000, 6, 5, true},
		{"Air Mineral", 5000, 0, 0, false},
	}

	items := make([]models.Item, 0, len(demo))
	for _, d := range demo {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM catalogue_items WHERE location_id = $1 AND name = $2`, locationID, d.name).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			id = uuid.New()
			status := enum.StockStatusInStock
			if d.tracked {
				status = models.StockStatusFor(d.qty, d.threshold)
			}
			available := status != enum.StockStatusOutOfStock
			_, err = tx.Exec(ctx, `
				INSERT INTO catalogue_items
					(id, location_id, name, price, stock_qty, track_inventory, low_stock_threshold, stock_status, is_available)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				id, locationID, d.name, decimal.NewFromInt(d.price), d.qty, d.tracked, d.threshold, status, available)
		}
		if err != nil {
			return nil, fmt.Errorf("catalogue item %s: %w", d.name, err)
		}
		items = append(items, models.Item{ID: id.String(), Name: d.name, Qty: 1, Price: decimal.NewFromInt(d.price)})
	}
	return items, nil
}

func seedOrders(ctx context.Context, tx pgx.Tx, table string, locationID uuid.UUID, prefix, status string, items []models.Item, n int) error {
	if items == nil {
		items = []models.Item{{ID: uuid.NewString(), Name: "Nasi Goreng", Qty: 2, Price: decimal.NewFromInt(22000)}}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}

	for i := 1; i <= n; i++ {
		var tableNumber *string
		if table == enum.TableTableOrders {
			s := fmt.Sprintf("%d", i)
			tableNumber = &s
		}
		// table is one of the fixed enum table names.
		_, err := tx.Exec(ctx, `
			INSERT INTO `+table+` (id, location_id, order_code, customer_name, customer_phone, table_number, status, items, total_amount)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), locationID, fmt.Sprintf("%s-%04d", prefix, i), fmt.Sprintf("Customer %d", i),
			fmt.Sprintf("08123456%04d", i), tableNumber, status, raw, total)
		if err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func seedBookings(ctx context.Context, tx pgx.Tx, locationID uuid.UUID, n int) error {
	start := time.Now().Truncate(time.Hour).Add(24 * time.Hour)
	for i := 1; i <= n; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, location_id, booking_code, customer_name, customer_phone, party_size, booking_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New(), locationID, fmt.Sprintf("B-%04d", i), fmt.Sprintf("Guest %d", i),
			fmt.Sprintf("08129876%04d", i), 2+i, start.Add(time.Duration(i)*time.Hour), enum.BookingPending)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
	}
	return nil
}

func printToken(secret, label string, locations []uuid.UUID, partnerType, role string, ttl time.Duration, log *zap.Logger) {
	tok, err := auth.GenerateToken(secret, uuid.New(), locations, partnerType, role, ttl)
	if err != nil {
		log.Error("generate token", zap.String("for", label), zap.Error(err))
		return
	}
	fmt.Fprintf(os.Stdout, "%s token:\n%s\n\n", label, tok)
}
