// Standalone migration runner for environments where the API server's
// migrate-on-boot is not wanted (CI, manual rollbacks).
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/eventsnap/facefinder/internal/config"
	"github.com/eventsnap/facefinder/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	action := flag.String("action", "up", "Migration action: up, down, version, force")
	version := flag.Int("version", 0, "Target version (for force action)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// golang-migrate needs a database/sql handle, not a pgx pool
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrator, err := database.NewMigrator(db, "facefinder")
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer func() { _ = migrator.Close() }()

	switch *action {
	case "up":
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("migration up failed: %w", err)
		}
		log.Println("migrations applied")

	case "down":
		if err := migrator.Down(); err != nil {
			return fmt.Errorf("migration down failed: %w", err)
		}
		log.Println("last migration rolled back")

	case "version":
		v, dirty, err := migrator.Version()
		if err != nil {
			return fmt.Errorf("failed to get version: %w", err)
		}
		if dirty {
			log.Printf("version %d (dirty, migration incomplete)", v)
		} else {
			log.Printf("version %d", v)
		}

	case "force":
		if *version == 0 {
			return fmt.Errorf("version flag is required for force action")
		}
		if err := migrator.Force(*version); err != nil {
			return fmt.Errorf("force migration failed: %w", err)
		}
		log.Printf("version forced to %d", *version)

	default:
		return fmt.Errorf("invalid action: %s (use: up, down, version, force)", *action)
	}

	return nil
}
