package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/dnsresolver"
)

func (a *app) healthCmd() *cobra.Command {
	var timeout int

	cmd := &cobra.Command{
		Use:   "health [zone]...",
		Short: "Test whether blacklist zones are working",
		Long: `Query each zone for the RFC 5782 test entries: 127.0.0.2 must be listed
and 127.0.0.1 must not. Without arguments the configured lists are tested.`,
		Example: "rbl health zen.spamhaus.org bl.spamcop.net",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timeout") {
				timeout = a.cfg.Lookup.Timeout
			}
			zones := args
			if len(zones) == 0 {
				zones = distinctDomains(a.cfg.Lists)
			}
			if len(zones) == 0 {
				return fmt.Errorf("no zones given and no lists configured")
			}

			var resolverOpts []dnsresolver.Opt
			if len(a.cfg.Lookup.Resolvers) > 0 {
				resolverOpts = append(resolverOpts, dnsresolver.WithResolvers(a.cfg.Lookup.Resolvers))
			}
			client, err := dnsbl.New(timeout, dnsbl.WithResolver(
				dnsresolver.New(time.Duration(timeout)*time.Second, resolverOpts...)))
			if err != nil {
				return err
			}

			table := newTable(os.Stdout, "Zone", "Health", "Detail")
			unhealthy := 0
			for _, zone := range zones {
				err := dnsbl.CheckHealth(cmd.Context(), client, zone)
				if err != nil {
					unhealthy++
					table.Append([]string{zone, color.HiRedString("unhealthy"), err.Error()})
					continue
				}
				table.Append([]string{zone, color.GreenString("ok"), ""})
			}
			table.Render()

			if unhealthy > 0 {
				return fmt.Errorf("%d of %d zone(s) unhealthy", unhealthy, len(zones))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 0, "seconds to wait for replies (default from config)")
	return cmd
}

func distinctDomains(checks []dnsbl.Check) []string {
	seen := make(map[string]bool, len(checks))
	var out []string
	for _, c := range checks {
		if !seen[c.Domain] {
			seen[c.Domain] = true
			out = append(out, c.Domain)
		}
	}
	return out
}
