package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"wanemu/internal/emulation"
	"wanemu/internal/identity"
	"wanemu/internal/participants"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities [peer-binary]",
	Short: "Generate and print peer identities for the participants",
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
		ids, err := participants.Read(cfg.Participants)
		if err != nil {
			return err
		}
		p := &identity.Provider{Binary: cfg.PeerBinary, Runner: emulation.ExecRunner{}}
		idents, err := p.Generate(ctx, ids)
		if err != nil {
			return err
		}
		sort.Ints(ids)
		for _, id := range ids {
			pid, _ := idents.Get(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%d:%s\n", id, pid)
		}
		return nil
	},
}
