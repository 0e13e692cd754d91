package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wanemu/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the Grafana dashboard for the stretch table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		paths, err := dashboard.Render(dashboardOut, dashboard.Options{
			Database: cfg.Results.GreptimeDatabase,
			Table:    cfg.Results.GreptimeTable,
		})
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
