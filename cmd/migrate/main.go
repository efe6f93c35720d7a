package main

import (
	"NativeSwap/internal/observability"
	"NativeSwap/internal/persistence"
	"NativeSwap/migrations"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	_ "github.com/lib/pq"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down>")
		fmt.Println("  up   - apply all pending migrations")
		fmt.Println("  down - roll back the last migration")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  NSWAP_POSTGRES_DSN    - Postgres connection string")
		fmt.Println("  NSWAP_MIGRATIONS_DIR  - read migrations from disk instead of the embedded set")
		os.Exit(1)
	}
	logger := observability.NewLogger("migrate")

	pgURL := os.Getenv("NSWAP_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/nativeswap?sslmode=disable"
	}

	var files fs.FS = migrations.FS
	if dir := os.Getenv("NSWAP_MIGRATIONS_DIR"); dir != "" {
		files = os.DirFS(dir)
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, files)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate up")
		}
		logger.Info().Msg("all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migrate down")
		}
		logger.Info().Msg("last migration rolled back")

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up' or 'down')\n", os.Args[1])
		os.Exit(1)
	}
}
