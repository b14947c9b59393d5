package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Seeds a local database with one user and two astrologers for manual
// testing. Usage: DATABASE_URL=... go run scripts/seed.go
func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: DATABASE_URL=... go run scripts/seed.go\n")
		os.Exit(1)
	}

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	userID := uuid.NewString()
	if _, err := db.Exec(`
		INSERT INTO users (id, name, email, coins) VALUES ($1, $2, $3, $4)
	`, userID, "Demo User", "demo@example.com", 1000); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("user: %s (1000 coins)\n", userID)

	for _, a := range []struct {
		name string
		rate int64
	}{
		{"Pandit Arjun", 20},
		{"Tara Devi", 35},
	} {
		id := uuid.NewString()
		if _, err := db.Exec(`
			INSERT INTO astrologers (id, name, rate_per_minute) VALUES ($1, $2, $3)
		`, id, a.name, a.rate); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("astrologer: %s (%s, %d coins/min)\n", id, a.name, a.rate)
	}
}
