package main

import (
	"flag"
	"log"

	"github.com/smurching/cloudnotes/internal/config"
	"github.com/smurching/cloudnotes/internal/database"
)

func main() {
	var (
		direction = flag.String("direction", "up", "Migration direction: up, down or version")
		steps     = flag.Int("steps", 0, "Number of steps to rollback (only for down)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *direction {
	case "up":
		log.Println("Running migrations...")
		if err := database.RunMigrations(cfg.MigrationsPath, cfg.DatabaseUrl); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("✅ Migrations completed successfully")
	case "down":
		log.Printf("Rolling back %d migrations...\n", *steps)
		if err := database.RollbackMigrations(cfg.MigrationsPath, cfg.DatabaseUrl, *steps); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("✅ Rollback completed successfully")
	case "version":
		version, dirty, err := database.Version(cfg.MigrationsPath, cfg.DatabaseUrl)
		if err != nil {
			log.Fatalf("Failed to read version: %v", err)
		}
		log.Printf("Schema version %d (dirty: %v)", version, dirty)
	default:
		log.Fatalf("Unknown direction %q", *direction)
	}
}
