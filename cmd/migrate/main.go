package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/partnerdesk/api/internal/config"
	"github.com/partnerdesk/api/internal/logger"
	"go.uber.org/zap"
)

func main() {
	dir := flag.String("path", "migrations", "Directory holding the migration files")
	down := flag.Bool("down", false, "Roll back every migration instead of applying them")
	steps := flag.Int("steps", 0, "Apply (or with -down roll back) only this many migrations")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("open db for migrations", zap.Error(err))
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("create migrate driver", zap.Error(err))
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatal("create migrate instance", zap.Error(err))
	}

	switch {
	case *steps > 0 && *down:
		err = m.Steps(-*steps)
	case *steps > 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal("run migrations", zap.Error(err))
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Fprintln(os.Stdout, "schema version: none")
	case err != nil:
		log.Fatal("read schema version", zap.Error(err))
	default:
		fmt.Fprintf(os.Stdout, "schema version: %d (dirty=%v)\n", version, dirty)
	}
}
