package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
)

var bookingTables = []string{
	"payment_audits",
	"payments",
	"seat_holds",
	"bookings",
	"audit_logs",
}

var catalogTables = []string{
	"schedules",
	"routes",
	"buses",
	"bus_companies",
	"cities",
}

func main() {
	var (
		dbURLFlag      string
		includeCatalog bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&includeCatalog, "include-catalog", false, "also truncate schedules, routes, buses, companies and cities")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	tables := bookingTables
	if includeCatalog {
		tables = append(append([]string{}, bookingTables...), catalogTables...)
	}

	fmt.Printf("Connected to database. Truncating %d tables...\n", len(tables))

	truncateSQL := "TRUNCATE TABLE "
	for i, t := range tables {
		if i > 0 {
			truncateSQL += ", "
		}
		truncateSQL += t
	}
	truncateSQL += " RESTART IDENTITY CASCADE"

	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Data cleared successfully (tables truncated, identities reset).")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
