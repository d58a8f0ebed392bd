// Command migrate manages the postgres schema. The sqlite and memory
// adapters own their own schemas, so it refuses to run against them.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/example/authgate/internal/config"
)

func main() {
	var (
		command = flag.String("command", "up", "up, down, version, or force")
		steps   = flag.Int("steps", 0, "number of migration steps for up/down (0 = all)")
		version = flag.Uint("version", 0, "target version for force")
		dir     = flag.String("dir", "./migrations", "migrations directory")
	)
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DBAdapter != "postgres" {
		log.Fatalf("unsupported DB_ADAPTER: %s (migrations are postgres-only; sqlite and memory manage their own schema)", cfg.DBAdapter)
	}
	dsn, err := cfg.BuildPostgresDSN()
	if err != nil {
		log.Fatalf("postgres config error: %v", err)
	}

	m, cleanup, err := newMigrator(*dir, dsn)
	if err != nil {
		log.Fatalf("migrate init: %v", err)
	}
	defer cleanup()

	switch *command {
	case "up":
		err = step(m, *steps)
	case "down":
		if *steps == 0 {
			err = m.Down()
		} else {
			err = step(m, -*steps)
		}
	case "version":
		v, dirty, verr := m.Version()
		if verr == migrate.ErrNilVersion {
			fmt.Println("no migrations applied yet")
			return
		}
		if verr != nil {
			log.Fatalf("reading version: %v", verr)
		}
		if dirty {
			fmt.Printf("database is dirty at version %d; fix manually, then -command force\n", v)
			os.Exit(1)
		}
		fmt.Printf("current migration version: %d\n", v)
		return
	case "force":
		if *version == 0 {
			log.Fatal("force requires -version")
		}
		err = m.Force(int(*version))
	default:
		log.Fatalf("unknown command: %s (supported: up, down, version, force)", *command)
	}
	if err != nil {
		log.Fatalf("migration %s failed: %v", *command, err)
	}
	fmt.Printf("migration %s done\n", *command)
}

// step applies n migration steps: positive up, negative down, zero means all
// the way up. An already-current schema is not an error.
func step(m *migrate.Migrate, n int) error {
	var err error
	if n == 0 {
		err = m.Up()
	} else {
		err = m.Steps(n)
	}
	if err == migrate.ErrNoChange {
		return nil
	}
	return err
}

func newMigrator(dir, dsn string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, func() { db.Close() }, nil
}
