// notes-mcp serves the notes review tools over MCP stdio.
//
// Usage:
//
//	notes-mcp    # reads the same DATABASE_* settings as the API
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"nexus/api/internal/app"
	"nexus/api/internal/config"
	"nexus/api/internal/mcpserver"
	"nexus/api/internal/notelog"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
)

func main() {
	// stdout carries the MCP protocol.
	log.SetOutput(os.Stderr)

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx := context.Background()
	if strings.TrimSpace(cfg.MCPUserName) == "" {
		return fmt.Errorf("NEXUS_MCP_USER is required")
	}

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return fmt.Errorf("invalid database driver: %w", err)
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewSQLStore(db, dialect)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	deps := app.Deps{Search: search.NewService(meiliClient, search.NewStoreFallback(dataStore))}
	defer deps.Search.Close()
	if strings.TrimSpace(cfg.NotesReposDir) != "" {
		deps.NoteLog = notelog.New(cfg.NotesReposDir)
	}

	service := app.New(cfg, dataStore, deps)
	return server.ServeStdio(mcpserver.New(service, cfg.MCPUserName))
}
