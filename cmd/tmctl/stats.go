package main

import (
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/connector"
)

func newStatsCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				r := connector.NewRemoteSession(remote, connector.WithTimeout(cfg.RPC.Timeout))
				if err := r.Open("", ""); err != nil {
					return err
				}
				defer r.Close()
				st, err := r.Stats()
				if err != nil {
					return err
				}
				renderStats(cmd.OutOrStdout(), remote, st)
				return nil
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()
			renderStats(cmd.OutOrStdout(), cfg.Index.DataDir, engine.Stats().Proto())
			return nil
		},
	}
	cmd.Flags().StringVarP(&remote, "remote", "r", "", "tmserver RPC address instead of the local data directory")
	return cmd
}
