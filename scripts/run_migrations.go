package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/safar/go-stock-ledger/internal/config"
	"github.com/safar/go-stock-ledger/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		fatal("usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		fatal("direction must be 'up' or 'down'", "direction", direction)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config", "error", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.Log)

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		fatal("connect to database", "error", err)
	}
	defer db.Close()

	migrationDir := "migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		fatal("read migration directory", "error", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), fmt.Sprintf(".%s.sql", direction)) {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)
	if direction == "down" {
		slices.Reverse(migrationFiles)
	}

	for _, filename := range migrationFiles {
		content, err := os.ReadFile(filepath.Join(migrationDir, filename))
		if err != nil {
			fatal("read migration file", "file", filename, "error", err)
		}

		logger.Info("running migration", "file", filename)
		if _, err := db.Exec(string(content)); err != nil {
			fatal("execute migration", "file", filename, "error", err)
		}
	}

	logger.Info("migrations complete", "count", len(migrationFiles), "direction", direction)
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
