package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3guy0/gemcaller/storage"
	"github.com/web3guy0/gemcaller/types"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a summary of the persisted state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, summarize(snap))
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "reset",
		Short: "Clear the alerted set and tracking map",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			snap := types.NewSnapshot()
			snap.SavedAt = time.Now().UTC()
			if err := store.Save(cmd.Context(), snap); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "state cleared")
			return nil
		},
	}
	c.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return c
}

func openStore() (storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return storage.Open(cfg.StateBackend, cfg.StatePath)
}

func summarize(snap *types.Snapshot) string {
	reported := 0
	for _, e := range snap.Tracking {
		if e.Reported {
			reported++
		}
	}
	saved := "never"
	if !snap.SavedAt.IsZero() {
		saved = snap.SavedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("alerted:  %d\ntracking: %d (%d reported)\nsaved:    %s\n",
		len(snap.Alerted), len(snap.Tracking), reported, saved)
}
