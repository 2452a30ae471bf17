package main

import (
	"fmt"
	"log"
	"os"

	"github.com/mgthompo1/tapkernel/pkg/store"
)

func main() {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN environment variable is required")
	}

	if err := store.Migrate(dsn); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Println("migrations completed")
}
