// Command rbl checks IP addresses against DNS blacklists.
//
// Usage:
//
//	rbl check <ip>...          - Check addresses directly against the configured lists
//	rbl query <ip>...          - Ask the rbld daemon to check addresses
//	rbl health [zone]...       - Test zones with their RFC 5782 test entries
//	rbl lists                  - Show the lists rbld checks against
//	rbl status                 - Show rbld status and counters
//	rbl init                   - Write a starter configuration file
//
// Examples:
//
//	rbl check 192.0.2.1 --zone zen.spamhaus.org
//	rbl check 192.0.2.1 2001:db8::1 --zone bl.example:mask:0.0.0.2 --early-exit
//	rbl check 192.0.2.1 --all --output report.json
//
// Lists come from ~/.rbl/config.yaml unless --zone is given. A zone is written
// as domain[:type[:data]] where type is normal, match or mask.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lc/rbl/internal/buildinfo"
	"github.com/lc/rbl/internal/config"
	"github.com/lc/rbl/internal/filesys"
)

// errListed makes rbl exit with status 2 when an address is listed.
var errListed = errors.New("address listed")

type app struct {
	configPath string
	provider   config.Provider
	cfg        *config.Config
}

func (a *app) loadConfig(_ *cobra.Command, _ []string) error {
	if a.configPath != "" {
		a.provider = config.NewWithPath(filesys.OS(), a.configPath)
	} else {
		a.provider = config.New()
	}
	cfg, err := a.provider.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	a.cfg = cfg
	return nil
}

func main() {
	a := &app{}

	root := &cobra.Command{
		Use:   "rbl",
		Short: "DNS blacklist checker",
		Long: `rbl checks IPv4 and IPv6 addresses against DNS-based blacklists.
Queries to every list are sent at once and answered within a single timeout.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "configuration file (default ~/"+config.DefaultConfigPath+")")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", buildinfo.Version)
			fmt.Printf("commit: %s\n", buildinfo.Commit)
		},
	}

	root.AddCommand(
		a.checkCmd(),
		a.queryCmd(),
		a.healthCmd(),
		a.listsCmd(),
		a.statusCmd(),
		a.initCmd(),
		versionCmd,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		if errors.Is(err, errListed) {
			os.Exit(2)
		}
		color.New(color.FgHiRed, color.Bold).Fprint(os.Stderr, "Error: ")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
