package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/agentflow/config"
	"github.com/BaSui01/agentflow/ctxstore"
)

// runMigrate drives the context store schema with golang-migrate instead
// of the AutoMigrate path NewServer uses for local/dev databases
// (adapted from the teacher's cmd/agentflow/migrate.go, trimmed to the
// two drivers this module ships).
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand, subargs := args[0], args[1:]
	switch subcommand {
	case "up":
		runMigrateUp(subargs)
	case "down":
		runMigrateDown(subargs)
	case "version":
		runMigrateVersion(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`agentflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Roll back every applied migration
  version   Show the current schema version

Options:
  --config <path>   Path to configuration file (YAML)`)
}

func newMigrator(args []string) (*ctxstore.Migrator, error) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	driver := ctxstore.DriverSQLite
	if cfg.Database.Driver == "postgres" {
		driver = ctxstore.DriverPostgres
	}
	return ctxstore.NewMigrator(driver, cfg.Database.MigrateURL())
}

func runMigrateUp(args []string) {
	m, err := newMigrator(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

func runMigrateDown(args []string) {
	m, err := newMigrator(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := m.Down(); err != nil {
		fmt.Fprintf(os.Stderr, "rollback failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations rolled back")
}

func runMigrateVersion(args []string) {
	m, err := newMigrator(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get version: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("version: %d dirty: %v\n", version, dirty)
}
