package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wanemu/internal/analysis"
	"wanemu/internal/archive"
	"wanemu/internal/logging"
	"wanemu/internal/manifest"
	"wanemu/internal/pingmatrix"
)

var (
	analyzeDir     string
	analyzeArchive string
	analyzePlain   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Compute message propagation stretch from peer logs",
	Long:  "analyze reads the peer logs of a finished run and reports, per receiving node, the ratio of observed delivery delay to the measured ping between source and receiver.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, err := commandContext(cmd, cfg)
		if err != nil {
			return err
		}
		dir := cfg.LogDir
		if analyzeDir != "" {
			dir = analyzeDir
		}
		if analyzeArchive != "" {
			tmp, err := os.MkdirTemp("", "wanemu-analyze-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)
			names, err := archive.Extract(analyzeArchive, tmp)
			if err != nil {
				return fmt.Errorf("extract %s: %w", analyzeArchive, err)
			}
			logging.FromContext(ctx).Debug("archive extracted", "archive", analyzeArchive, "files", len(names))
			dir = tmp
		}
		pings, err := pingmatrix.Load(cfg.Pings)
		if err != nil {
			return err
		}
		rep, err := analysis.Analyze(ctx, dir, pings)
		if errors.Is(err, analysis.ErrNoSource) {
			for _, d := range rep.Diagnostics {
				fmt.Fprintln(cmd.OutOrStdout(), d.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Could not determine source node or publish time.")
			return nil
		}
		if err != nil {
			return err
		}
		if m, merr := manifest.Read(dir); merr == nil {
			rep.RunID = m.RunID
		} else {
			logging.FromContext(ctx).Debug("no manifest", "dir", dir, "err", merr)
		}

		w, cleanup, err := newWriters(cfg, cmd.OutOrStdout(), analyzePlain)
		if err != nil {
			return err
		}
		defer cleanup()
		return w.WriteReport(rep)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeDir, "dir", "", "Log directory to analyze (default log_dir from config)")
	analyzeCmd.Flags().StringVar(&analyzeArchive, "archive", "", "Analyze the logs packed in a .tar.zst archive instead of a directory")
	analyzeCmd.Flags().BoolVar(&analyzePlain, "plain", false, "Plain text output even on a terminal")
}
