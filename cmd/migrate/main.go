package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/replybridge/internal/config"
	appmigrations "github.com/wolfman30/replybridge/migrations"
)

const usage = "usage: migrate [up | down <steps> | force <version> | version]"

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	databaseURL := strings.TrimSpace(cfg.DatabaseURL)
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	m, err := newMigrator(db)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _, _ = m.Close() }()

	msg, err := cmd.apply(m)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(msg)
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(appmigrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

type command struct {
	name string
	arg  int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{name: "up"}, nil
	}
	switch args[0] {
	case "up", "version":
		return command{name: args[0]}, nil
	case "down", "force":
		if len(args) < 2 {
			return command{}, errors.New(usage)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid %s argument %q: %w", args[0], args[1], err)
		}
		if args[0] == "down" && n <= 0 {
			return command{}, fmt.Errorf("down needs a positive step count, got %d", n)
		}
		return command{name: args[0], arg: n}, nil
	default:
		return command{}, errors.New(usage)
	}
}

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func (c command) apply(m migrator) (string, error) {
	switch c.name {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("migrate up: %w", err)
		}
		return "migrations complete", nil
	case "down":
		if err := m.Steps(-c.arg); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return "", fmt.Errorf("migrate down: %w", err)
		}
		return fmt.Sprintf("rolled back %d step(s)", c.arg), nil
	case "force":
		if err := m.Force(c.arg); err != nil {
			return "", fmt.Errorf("force version: %w", err)
		}
		return fmt.Sprintf("forced version to %d", c.arg), nil
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return "no migrations applied", nil
		}
		if err != nil {
			return "", fmt.Errorf("read version: %w", err)
		}
		return fmt.Sprintf("version %d (dirty=%t)", v, dirty), nil
	default:
		return "", errors.New(usage)
	}
}
