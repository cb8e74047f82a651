package main

import (
	"context"
	"dispatch-route-service/internal/adapters/cache"
	"dispatch-route-service/internal/platform/db"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// dbtool prepares the address store database.
//
//	dbtool            create the schema
//	dbtool -stats     also print how many addresses are stored
func main() {
	stats := flag.Bool("stats", false, "print the number of stored addresses")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(databaseURL) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, databaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	log.Println("Initializing database schema...")
	if err := cache.InitSchema(ctx, conn); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")

	if *stats {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM geocode_cache`).Scan(&n); err != nil {
			log.Fatalf("count addresses: %v", err)
		}
		log.Printf("stored addresses=%d", n)
	}
}
