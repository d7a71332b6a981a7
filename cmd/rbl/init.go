package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lc/rbl/internal/config"
	"github.com/lc/rbl/internal/dnsbl"
)

// starterLists are written by rbl init.
var starterLists = []dnsbl.Check{
	{Domain: "zen.spamhaus.org"},
	{Domain: "bl.spamcop.net"},
	{Domain: "b.barracudacentral.org"},
}

func (a *app) initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		RunE: func(_ *cobra.Command, _ []string) error {
			if len(a.cfg.Lists) > 0 && !force {
				color.Yellow("Configuration already has lists; use --force to overwrite.")
				return nil
			}

			cfg := config.Default()
			cfg.Lists = starterLists
			if err := a.provider.Save(cfg); err != nil {
				return err
			}
			color.New(color.FgGreen, color.Bold).Println("✓ Configuration written")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing lists")
	return cmd
}
