// Command migrate applies the identity schema and role seeds to
// PostgreSQL.
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

	"keyward.io/internal/migrate"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("KEYWARD_PG_DSN"), "PostgreSQL DSN (defaults to KEYWARD_PG_DSN)")
		migrationsPath = flag.String("migrations", "ops/migrations/sql", "directory with .up.sql/.down.sql pairs")
		seedsPath      = flag.String("seeds", "ops/migrations/seeds", "directory with idempotent seed files")
	)
	flag.Usage = usage
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or KEYWARD_PG_DSN")
	}
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)
	if err := run(ctx, mgr, cmd); err != nil {
		log.Fatalf("migrate %s: %v", cmd, err)
	}
}

func run(ctx context.Context, mgr *migrate.Manager, cmd string) error {
	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		fmt.Printf("%d applied\n", len(applied))
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: migrate [flags] <command>

Commands:
  up      apply pending migrations
  down    roll back the most recent migration
  seed    apply role seeds once each
  status  list applied migrations

Flags:`)
	flag.PrintDefaults()
}
