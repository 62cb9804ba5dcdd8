package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"os"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/history"
)

// runHistory prints the most recent pipeline runs from the history store.
func runHistory(cfg *config.Config, limit int) error {
	if cfg.History.Path == "" {
		return fmt.Errorf("history is not configured (set history.path)")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tDURATION\tOUTCOME\tSTAGED\tPUBLISHED\tDEST OK\tDEST FAILED\tRUN ID")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Start.Format(time.RFC3339),
			r.End.Sub(r.Start).Truncate(time.Second),
			r.Outcome,
			r.FilesStaged,
			r.FilesPublished,
			r.DestinationsOK,
			r.DestinationsKO,
			r.RunID,
		)
	}
	return w.Flush()
}
