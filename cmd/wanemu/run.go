package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wanemu/internal/emulation"
	"wanemu/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run [peer-binary]",
	Short: "Build the emulated network and run one peer per participant",
	Long:  "run reads participants and ping measurements, builds and shapes the emulated network, launches the peer binary on every host and keeps it running until stopped.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.PeerBinary = args[0]
		}
		ctx, err := commandContext(cmd, cfg)
		if err != nil {
			return err
		}
		runner := emulation.ExecRunner{}
		o := &orchestrator.Orchestrator{
			Config: cfg,
			Net:    emulation.NewNetns(runner),
			Runner: runner,
		}
		m, err := o.Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Run %s finished, logs in %s\n", m.RunID, cfg.LogDir)
		if m.Degraded() {
			fmt.Fprintf(cmd.OutOrStdout(), "Warning: %d hosts ran without delay shaping\n", len(m.Unshaped))
		}
		return nil
	},
}
