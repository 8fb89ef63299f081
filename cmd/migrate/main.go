package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/fanstage/backoffice/internal/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up      apply pending migrations
  down    roll back the last applied migration
  seed    apply pending seed files
  status  print applied migrations, oldest first

flags:
`

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	dsn := fs.String("dsn", "", "PostgreSQL DSN (defaults to BACKOFFICE_PG_DSN)")
	migrationsDir := fs.String("migrations", "ops/migrations/sql", "directory of .up.sql/.down.sql files")
	seedsDir := fs.String("seeds", "ops/migrations/seeds", "directory of seed files")
	timeout := fs.Duration("timeout", 30*time.Second, "overall command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one command")
	}

	// The flag wins; otherwise read the environment the way the server
	// does, .env merged in for local runs.
	if *dsn == "" {
		_ = godotenv.Load()
		*dsn = os.Getenv("BACKOFFICE_PG_DSN")
	}
	if *dsn == "" {
		return errors.New("no DSN: set -dsn or BACKOFFICE_PG_DSN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}

	runner := migrate.New(db, *migrationsDir, *seedsDir)
	switch cmd := fs.Arg(0); cmd {
	case "up":
		return runner.Up(ctx)
	case "down":
		return runner.Down(ctx)
	case "seed":
		return runner.Seed(ctx)
	case "status":
		applied, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for i, name := range applied {
			fmt.Printf("%3d  %s\n", i+1, name)
		}
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}
