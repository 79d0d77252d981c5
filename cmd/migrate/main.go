// Command migrate applies, rolls back and seeds the database schema.
//
// Usage: migrate [flags] up|down|seed|status
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"contractdesk.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("CONTRACTDESK_PG_DSN"), "PostgreSQL DSN")
	migrationsPath := fs.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
	seedsPath := fs.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall deadline for the command")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dsn == "" {
		return fmt.Errorf("missing DSN: provide via -dsn or CONTRACTDESK_PG_DSN")
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: migrate [flags] up|down|seed|status")
	}
	command := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch command {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
