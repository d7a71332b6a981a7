package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lc/rbl/pkg/client"
)

func (a *app) daemonClient() *client.Client {
	return client.New(a.cfg.Socket.Path)
}

func (a *app) queryCmd() *cobra.Command {
	var earlyExit bool

	cmd := &cobra.Command{
		Use:     "query <ip>...",
		Short:   "Check addresses through the rbld daemon",
		Example: "rbl query 192.0.2.1 --early-exit",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var early *bool
			if cmd.Flags().Changed("early-exit") {
				early = &earlyExit
			}

			cli := a.daemonClient()
			reports := make([]report, 0, len(args))
			for _, addr := range args {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(a.cfg.Lookup.Timeout+5)*time.Second)
				resp, err := cli.Lookup(ctx, addr, early)
				cancel()
				if err != nil {
					reports = append(reports, report{Address: addr, Error: err.Error()})
					continue
				}
				reports = append(reports, report{
					Address:  resp.Address,
					Listed:   resp.Listed,
					Hits:     resp.Hits,
					Duration: resp.Duration,
				})
			}

			renderReports(os.Stdout, reports, false)
			for _, r := range reports {
				if r.Listed {
					return errListed
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&earlyExit, "early-exit", false, "stop at the first hit (default from daemon config)")
	return cmd
}

func (a *app) listsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show the lists rbld checks against",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()

			lists, err := a.daemonClient().Lists(ctx)
			if err != nil {
				return err
			}
			if len(lists) == 0 {
				color.Yellow("No lists configured.")
				return nil
			}

			table := newTable(os.Stdout, "Domain", "Type", "Data", "User Data")
			for _, c := range lists {
				ud := ""
				if c.UserData != nil {
					ud = fmt.Sprint(c.UserData)
				}
				table.Append([]string{c.Domain, c.Type.String(), c.Data, ud})
			}
			color.New(color.Bold).Println("CONFIGURED LISTS:")
			table.Render()
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show rbld status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()

			st, err := a.daemonClient().Status(ctx)
			if err != nil {
				return err
			}

			color.New(color.Bold).Printf("rbld %s (%s)\n", st.Version, st.Commit)
			fmt.Printf("uptime:   %s\n", st.Uptime.Round(time.Second))
			fmt.Printf("lists:    %d\n", st.Stats.Lists)
			fmt.Printf("lookups:  %d (%d listed, %d hits, %d failed)\n",
				st.Stats.Lookups, st.Stats.Listed, st.Stats.Hits, st.Stats.Failures)

			if len(st.Stats.Zones) == 0 {
				return nil
			}
			fmt.Println()
			table := newTable(os.Stdout, "Zone", "Health", "Checked", "Detail")
			for _, z := range st.Stats.Zones {
				health := color.GreenString("ok")
				if !z.Healthy {
					health = color.HiRedString("unhealthy")
				}
				table.Append([]string{z.Zone, health, z.CheckedAt.Format(time.RFC3339), z.Error})
			}
			table.Render()
			return nil
		},
	}
}
