package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wanemu/internal/participants"
	"wanemu/internal/pingmatrix"
)

var (
	selectPercentage float64
	selectMinNodes   int
	selectSeed       string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Pick a random participant set from the ping table",
	Long:  "select samples host ids present in the ping table and writes them to the participants file, one per line.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sel := cfg.Selection
		if cmd.Flags().Changed("percentage") {
			sel.Percentage = selectPercentage
		}
		if cmd.Flags().Changed("min-nodes") {
			sel.MinNodes = selectMinNodes
		}
		if cmd.Flags().Changed("seed") {
			sel.Seed = selectSeed
		}
		if sel.Percentage <= 0 || sel.Percentage > 1 {
			return fmt.Errorf("percentage must be in (0,1], got %v", sel.Percentage)
		}
		pings, err := pingmatrix.Load(cfg.Pings)
		if err != nil {
			return err
		}
		hosts := pings.Hosts()
		if len(hosts) == 0 {
			return fmt.Errorf("%s lists no hosts", cfg.Pings)
		}
		chosen := participants.Select(hosts, sel.Percentage, sel.MinNodes, participants.NewRand(sel.Seed))
		if err := participants.Write(cfg.Participants, chosen); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Selected %d of %d hosts into %s\n", len(chosen), len(hosts), cfg.Participants)
		return nil
	},
}

func init() {
	selectCmd.Flags().Float64Var(&selectPercentage, "percentage", 0.1, "Fraction of hosts to select")
	selectCmd.Flags().IntVar(&selectMinNodes, "min-nodes", 2, "Minimum number of hosts")
	selectCmd.Flags().StringVar(&selectSeed, "seed", "participants", "Name of the random stream")
}
