package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"git.home.luguber.info/inful/reqsite/internal/collector"
	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/exports"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
	"git.home.luguber.info/inful/reqsite/internal/workspace"
)

// runDiscover stages the exports and prints what was found, without
// invoking the generator or publishing anything.
func runDiscover(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws := workspace.NewPersistentManager(".", "work")
	if err := ws.Create(); err != nil {
		return fmt.Errorf("prepare work directory: %w", err)
	}
	checkoutDir, err := ws.CreateSubdir("checkout")
	if err != nil {
		return fmt.Errorf("prepare checkout directory: %w", err)
	}

	c := collector.New(cfg.Source, cfg.Staging.Path, checkoutDir)
	if _, err := c.Collect(ctx); err != nil {
		slog.Warn("Collection incomplete", logfields.Error(err))
	}

	set, err := exports.Discover(cfg.Staging.Path)
	if err != nil {
		return fmt.Errorf("discover exports: %w", err)
	}

	fmt.Printf("Staging directory: %s\n", set.Root)
	if set.HierarchyPath != "" {
		fmt.Printf("Hierarchy: %s (%d modules)\n", set.HierarchyPath, len(set.Modules))
		for _, m := range set.Modules {
			fmt.Printf("  %-12s %-10s %s\n", m.Level, m.Abbrev, m.Name)
		}
	} else {
		fmt.Println("Hierarchy: not found")
	}

	fmt.Printf("Requirement files (%d):\n", len(set.RequirementFiles))
	for _, f := range set.RequirementFiles {
		fmt.Printf("  %s\n", f)
	}
	fmt.Printf("Test files (%d):\n", len(set.TestFiles))
	for _, f := range set.TestFiles {
		fmt.Printf("  %s\n", f)
	}

	if missing := set.MissingModuleFiles(); len(missing) > 0 {
		fmt.Printf("Modules without export files (%d):\n", len(missing))
		for _, m := range missing {
			fmt.Printf("  %s\n", m)
		}
	}

	return nil
}
