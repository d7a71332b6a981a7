package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lc/rbl/internal/config"
	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/dnsresolver"
	"github.com/lc/rbl/internal/filesys"
)

// maxParallel bounds how many addresses are checked at once.
const maxParallel = 8

type checkOptions struct {
	zones     []string
	resolvers []string
	timeout   int
	earlyExit bool
	all       bool
	output    string
	json      bool
}

// report is the outcome for one address, as rendered and written to --output.
type report struct {
	Address  string        `json:"address"`
	Listed   bool          `json:"listed"`
	Hits     []dnsbl.Hit   `json:"hits"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (a *app) checkCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check <ip>...",
		Short: "Check addresses against DNS blacklists",
		Long: `Check one or more IPv4 or IPv6 addresses against DNS blacklists.

Each address gets its own lookup; addresses are checked in parallel. Lists come
from the configuration file unless --zone is given. rbl exits with status 2 when
any address is listed.`,
		Example: `  rbl check 192.0.2.1 --zone zen.spamhaus.org
  rbl check 192.0.2.1 --zone bl.example:match:127.0.0.3 --zone bl.example:mask:4
  rbl check 192.0.2.1 --all --output report.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("timeout") {
				opts.timeout = a.cfg.Lookup.Timeout
			}
			if !cmd.Flags().Changed("early-exit") {
				opts.earlyExit = a.cfg.Lookup.EarlyExit
			}
			if len(opts.resolvers) == 0 {
				opts.resolvers = a.cfg.Lookup.Resolvers
			}

			checks, err := resolveChecks(opts.zones, a.cfg.Lists)
			if err != nil {
				return err
			}

			reports, err := runChecks(cmd.Context(), args, checks, opts)
			if err != nil {
				return err
			}

			if opts.output != "" {
				if err := writeReports(filesys.OS(), opts.output, reports); err != nil {
					return err
				}
			}
			if opts.json {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				renderReports(os.Stdout, reports, opts.all)
			}

			for _, r := range reports {
				if r.Listed {
					return errListed
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.zones, "zone", "z", nil, "blacklist as domain[:type[:data]] (repeatable)")
	f.StringSliceVar(&opts.resolvers, "resolver", nil, "DNS resolver host[:port] (repeatable)")
	f.IntVarP(&opts.timeout, "timeout", "t", config.DefaultTimeout, "seconds to wait for replies")
	f.BoolVar(&opts.earlyExit, "early-exit", false, "stop at the first hit")
	f.BoolVar(&opts.all, "all", false, "show every list, not only hits")
	f.StringVarP(&opts.output, "output", "o", "", "write a JSON report to this file")
	f.BoolVar(&opts.json, "json", false, "print JSON instead of a table")
	return cmd
}

// resolveChecks parses zones, falling back to the configured lists.
func resolveChecks(zones []string, configured []dnsbl.Check) ([]dnsbl.Check, error) {
	if len(zones) == 0 {
		if len(configured) == 0 {
			return nil, fmt.Errorf("no lists configured; pass --zone or add lists to the configuration")
		}
		return configured, nil
	}

	checks := make([]dnsbl.Check, 0, len(zones))
	for _, z := range zones {
		c, err := dnsbl.ParseCheck(z)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// runChecks looks up every address with its own client. Per-address
// failures are recorded in the report; only a transport failure or a
// cancelled ctx aborts the whole run.
func runChecks(ctx context.Context, addrs []string, checks []dnsbl.Check, opts checkOptions) ([]report, error) {
	var resolverOpts []dnsresolver.Opt
	if len(opts.resolvers) > 0 {
		resolverOpts = append(resolverOpts, dnsresolver.WithResolvers(opts.resolvers))
	}

	if opts.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be a positive number of seconds, got %d", dnsbl.ErrConfiguration, opts.timeout)
	}

	var queryOpts []dnsbl.QueryOpt
	queryOpts = append(queryOpts, dnsbl.WithEarlyExitIf(opts.earlyExit))
	if opts.all {
		queryOpts = append(queryOpts, dnsbl.WithReturnAll())
	}

	reports := make([]report, len(addrs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for i, addr := range addrs {
		g.Go(func() error {
			resolver := dnsresolver.New(time.Duration(opts.timeout)*time.Second, resolverOpts...)
			client, err := dnsbl.New(opts.timeout, dnsbl.WithResolver(resolver))
			if err != nil {
				return err
			}

			start := time.Now()
			hits, err := client.Lookup(ctx, addr, checks, queryOpts...)
			r := report{Address: addr, Hits: hits, Duration: time.Since(start)}
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, dnsbl.ErrTransport) {
					return fmt.Errorf("%s: %w", addr, err)
				}
				r.Error = err.Error()
			}
			if r.Hits == nil {
				r.Hits = []dnsbl.Hit{}
			}
			for _, h := range r.Hits {
				if h.Listed {
					r.Listed = true
					break
				}
			}
			reports[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func writeReports(fs filesys.FileOps, path string, reports []report) error {
	b, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return filesys.AtomicWrite(fs, path, append(b, '\n'), 0o644)
}
