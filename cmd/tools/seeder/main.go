package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/mkarim-dev/backend-bazar/internal/auth"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	storeID := seedStore(db)
	seedAPIKey(db, storeID)
	seedProducts(db, storeID)
	seedCoupons(db, storeID)
	seedShipping(db, storeID)

	log.Println("Seeding completed successfully!")
}

func seedStore(db *sql.DB) string {
	var storeID string
	err := db.QueryRow(`
		INSERT INTO stores (name, slug) VALUES ('Demo Store', 'demo')
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id;
	`).Scan(&storeID)
	if err != nil {
		log.Fatalf("Failed to seed store: %v", err)
	}
	log.Printf("Using Store ID: %s", storeID)
	return storeID
}

func seedAPIKey(db *sql.DB, storeID string) {
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(secretBytes); err != nil {
		log.Fatalf("Failed to generate api key secret: %v", err)
	}
	secret := hex.EncodeToString(secretBytes)
	hash, err := auth.HashAPIKeySecret(secret)
	if err != nil {
		log.Fatalf("Failed to hash api key secret: %v", err)
	}

	var keyID string
	err = db.QueryRow(`
		INSERT INTO seller_api_keys (store_id, secret_hash) VALUES ($1, $2)
		RETURNING id;
	`, storeID, hash).Scan(&keyID)
	if err != nil {
		log.Fatalf("Failed to seed api key: %v", err)
	}
	log.Printf("Seller API key (save it, the secret is not stored): %s.%s", keyID, secret)
}

func seedProducts(db *sql.DB, storeID string) {
	products := []struct {
		Title       string
		Slug        string
		Price       int64
		Mrp         int64
		WeightGrams int64
	}{
		{"Kaos Hitam Polos", "kaos-hitam-polos", 100_000, 120_000, 200},
		{"Hoodie Oversize", "hoodie-oversize", 250_000, 300_000, 600},
		{"Sepatu Lari Ringan", "sepatu-lari-ringan", 850_000, 1_000_000, 900},
		{"Botol Minum 1L", "botol-minum-1l", 75_000, 90_000, 300},
		{"Tas Ransel Harian", "tas-ransel-harian", 400_000, 500_000, 1_100},
	}

	log.Println("Seeding Products...")
	for _, p := range products {
		_, err := db.Exec(`
			INSERT INTO products (id, store_id, title, slug, price, mrp, weight_grams, in_stock)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true)
			ON CONFLICT (store_id, slug) DO UPDATE SET
				price = EXCLUDED.price,
				mrp = EXCLUDED.mrp,
				weight_grams = EXCLUDED.weight_grams;
		`, uuid.NewString(), storeID, p.Title, p.Slug, p.Price, p.Mrp, p.WeightGrams)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Title, err)
		}
	}
}

func seedCoupons(db *sql.DB, storeID string) {
	coupons := []struct {
		Code       string
		Type       string
		PercentBps int32
		Amount     int64
		MinSpend   int64
	}{
		{"WELCOME10", "percentage", 1_000, 0, 100_000},
		{"HEMAT20K", "fixed", 0, 20_000, 150_000},
	}

	log.Println("Seeding Coupons...")
	for _, c := range coupons {
		_, err := db.Exec(`
			INSERT INTO coupons (id, store_id, code, discount_type, percent_bps, amount,
				min_subtotal, is_public, is_active, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, true, NOW() + INTERVAL '1 year')
			ON CONFLICT (store_id, code) DO NOTHING;
		`, uuid.NewString(), storeID, c.Code, c.Type, c.PercentBps, c.Amount, c.MinSpend)
		if err != nil {
			log.Printf("Failed to seed coupon %s: %v", c.Code, err)
		}
	}
}

func seedShipping(db *sql.DB, storeID string) {
	log.Println("Seeding Shipping Setting...")
	_, err := db.Exec(`
		INSERT INTO shipping_settings (
			store_id, enabled, shipping_type, flat_rate, free_shipping_min,
			local_delivery_fee, local_areas, enable_cod, cod_fee,
			enable_express, express_fee, estimated_days, express_estimated_days
		) VALUES ($1, true, 'FLAT_RATE', 15000, 500000,
			8000, ARRAY['jakarta selatan', 'jakarta pusat'], true, 5000,
			true, 30000, 3, 1)
		ON CONFLICT (store_id) DO NOTHING;
	`, storeID)
	if err != nil {
		log.Printf("Failed to seed shipping setting: %v", err)
	}
}
