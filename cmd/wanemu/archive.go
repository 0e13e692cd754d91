package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"wanemu/internal/archive"
	"wanemu/internal/manifest"
)

var archiveCmd = &cobra.Command{
	Use:   "archive [output]",
	Short: "Pack the run logs and manifest into a .tar.zst file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, err := commandContext(cmd, cfg)
		if err != nil {
			return err
		}
		dst := defaultArchiveName(cfg.LogDir, time.Now())
		if len(args) == 1 {
			dst = args[0]
		}
		n, err := archive.Create(ctx, cfg.LogDir, dst)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived %d files to %s\n", n, dst)
		return nil
	},
}

// defaultArchiveName names the archive after the run id when a manifest
// exists, or after now otherwise.
func defaultArchiveName(dir string, now time.Time) string {
	suffix := now.UTC().Format("20060102T150405Z")
	if m, err := manifest.Read(dir); err == nil && m.RunID != "" {
		suffix = m.RunID
	}
	return filepath.Clean(dir) + "-" + suffix + ".tar.zst"
}
