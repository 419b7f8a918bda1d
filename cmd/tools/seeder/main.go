// Seeder loads a demo catalog and a few loyalty members so the register can
// be exercised against a fresh database.
package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	seedItems(ctx, pool)
	seedMembers(ctx, pool)
	log.Println("seeding completed")
}

func seedItems(ctx context.Context, pool *pgxpool.Pool) {
	items := []struct {
		ID           string
		Name         string
		SKU          string
		Price        int64
		Stock        int32
		ReorderPoint int32
	}{
		{"itm_espresso", "Espresso", "BEV-001", 700, 200, 20},
		{"itm_latte", "Caffe Latte", "BEV-002", 1200, 150, 20},
		{"itm_teh_tarik", "Teh Tarik", "BEV-003", 500, 180, 20},
		{"itm_croissant", "Butter Croissant", "BAK-001", 850, 60, 10},
		{"itm_kaya_toast", "Kaya Toast", "BAK-002", 480, 80, 10},
		{"itm_nasi_lemak", "Nasi Lemak Bungkus", "FOOD-001", 650, 40, 8},
		{"itm_mee_goreng", "Mee Goreng", "FOOD-002", 900, 35, 8},
		{"itm_tumbler", "Store Tumbler", "MERCH-001", 4500, 25, 5},
		{"itm_beans_250", "House Blend Beans 250g", "MERCH-002", 3200, 30, 6},
		{"itm_giftcard", "Gift Card Sleeve", "MERCH-003", 150, 100, 10},
	}

	log.Println("seeding inventory items...")
	for _, item := range items {
		_, err := pool.Exec(ctx, `INSERT INTO inventory_items (id, name, sku, price, stock, reorder_point)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, reorder_point = EXCLUDED.reorder_point`,
			item.ID, item.Name, item.SKU, item.Price, item.Stock, item.ReorderPoint)
		if err != nil {
			log.Printf("seed item %s: %v", item.ID, err)
		}
	}
}

func seedMembers(ctx context.Context, pool *pgxpool.Pool) {
	members := []struct {
		ID     string
		Name   string
		Email  string
		Tier   string
		Points int64
	}{
		{"mem_aina", "Aina Rahman", "aina@example.com", "gold", 420},
		{"mem_budi", "Budi Santoso", "budi@example.com", "bronze", 35},
		{"mem_chen", "Chen Wei Ling", "chen@example.com", "silver", 180},
		{"mem_dev", "Devika Nair", "devika@example.com", "platinum", 1260},
	}

	log.Println("seeding members...")
	for _, m := range members {
		_, err := pool.Exec(ctx, `INSERT INTO members (member_id, name, email, tier, points)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (member_id) DO NOTHING`,
			m.ID, m.Name, m.Email, m.Tier, m.Points)
		if err != nil {
			log.Printf("seed member %s: %v", m.ID, err)
		}
	}
}
