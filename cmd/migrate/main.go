// Command migrate applies the goose migrations in ./migrations.
//
//	migrate [up|down|status|version] [-dir migrations]
package main

import (
	"database/sql"
	"flag"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/floroz/winbid/internal/config"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the migration files")
	flag.Parse()

	command := "up"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := config.Load()
	if err != nil {
		defaults := config.Defaults()
		defaults.NewLogger().Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()
	if cfg.Database.URL == "" {
		logger.Error("database.url is not set")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		logger.Error("Unable to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("Unable to set dialect", "error", err)
		os.Exit(1)
	}

	if err := goose.Run(command, db, *dir, flag.Args()[min(1, flag.NArg()):]...); err != nil {
		logger.Error("Migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("Migration finished", "command", command)
}
