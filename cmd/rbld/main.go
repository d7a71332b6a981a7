// Command rbld serves DNS blacklist lookups over a Unix socket.
//
// It loads ~/.rbl/config.yaml (or --config), checks every requested address
// against the configured lists one lookup at a time, and periodically tests
// the lists for health. Use the rbl CLI (rbl query, rbl status, rbl lists)
// to talk to it.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lc/rbl/internal/buildinfo"
	"github.com/lc/rbl/internal/config"
	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/dnsresolver"
	"github.com/lc/rbl/internal/engine"
	"github.com/lc/rbl/internal/filesys"
	"github.com/lc/rbl/internal/log"
	"github.com/lc/rbl/pkg/api"
)

func main() {
	var (
		configPath     string
		healthInterval time.Duration
	)

	root := &cobra.Command{
		Use:          "rbld",
		Short:        "DNS blacklist lookup daemon",
		Version:      buildinfo.String(),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			provider := config.New()
			if configPath != "" {
				provider = config.NewWithPath(filesys.OS(), configPath)
			}
			cfg, err := provider.Load()
			if err != nil {
				return err
			}
			return run(cfg, healthInterval)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "configuration file (default ~/"+config.DefaultConfigPath+")")
	root.Flags().DurationVar(&healthInterval, "health-interval", engine.DefaultHealthInterval, "how often to health check the lists (0 disables)")

	if err := root.Execute(); err != nil {
		log.Fatalf("rbld: %v", err)
	}
}

func run(cfg *config.Config, healthInterval time.Duration) error {
	if len(cfg.Lists) == 0 {
		log.Warn("no lists configured; lookups will be rejected")
	}

	var resolverOpts []dnsresolver.Opt
	if len(cfg.Lookup.Resolvers) > 0 {
		resolverOpts = append(resolverOpts, dnsresolver.WithResolvers(cfg.Lookup.Resolvers))
	}
	res := dnsresolver.New(time.Duration(cfg.Lookup.Timeout)*time.Second, resolverOpts...)
	log.Info("resolvers", "servers", res.Resolvers)

	client, err := dnsbl.New(cfg.Lookup.Timeout, dnsbl.WithResolver(res))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := engine.New(client, cfg.Lists, cfg.Lookup.EarlyExit, engine.WithHealthInterval(healthInterval))
	eng.Run(ctx)
	defer eng.Close()

	apiSrv := api.New(eng)
	sockPath := cfg.Socket.Path

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiSrv.ListenAndServe(sockPath)
	}()
	log.Info("rbld started", "version", buildinfo.Version, "socket", sockPath, "lists", len(cfg.Lists))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info("shutting down", "signal", s.String())
	case err := <-serveErr:
		return err
	}

	shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
	defer done()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("api shutdown error: %v", err)
	}
	if err := os.Remove(sockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("removing socket", "path", sockPath, "error", err)
	}
	log.Sync()
	return nil
}
