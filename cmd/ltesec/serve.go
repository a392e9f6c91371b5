package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxfuzzer/ltesec/internal/config"
	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/mutator"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/server"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/fluxfuzzer/ltesec/internal/ui"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	addr    string
	mutator string
	format  string
	outDir  string
	tui     bool
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose a testbench over HTTP for an out-of-process stack",
		Long: `Serve runs a testbench behind the HTTP reporting API and the live dashboard.

SIGUSR1 prints the summary of every testcase so far. SIGINT or SIGTERM stops
the server, writes the report and exits with 1 if any testcase is interesting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if f.addr != "" {
				cfg.Server.Addr = f.addr
			}
			if f.mutator != "" {
				cfg.Mutator.Mode = f.mutator
			}
			if f.format != "" {
				cfg.Output.Format = f.format
			}
			if f.tui {
				cfg.Output.TUI = true
			}
			if err := cfg.Validate(); err != nil {
				return usageError(err)
			}
			return runServe(cmd, cfg, f.outDir)
		},
	}

	cmd.Flags().StringVarP(&f.addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVarP(&f.mutator, "mutator", "m", "", "Mask mutator for /api/testcases/next: bitflip, interesting, random")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Report format written on shutdown")
	cmd.Flags().StringVarP(&f.outDir, "output", "o", "", "Write the shutdown report to this directory instead of stdout")
	cmd.Flags().BoolVar(&f.tui, "tui", false, "Show the live terminal dashboard")
	return cmd
}

func newGenerator(cfg *config.Config) (*mutator.Generator, error) {
	m, err := mutator.New(cfg.Mutator.Mode, cfg.Mutator.Seed)
	if err != nil {
		return nil, err
	}
	seed := mutator.MaskPair{
		EIA: secalg.CapabilityMask(cfg.Mutator.EIASeed),
		EEA: secalg.CapabilityMask(cfg.Mutator.EEASeed),
	}
	return mutator.NewGenerator(m, seed), nil
}

func runServe(cmd *cobra.Command, cfg *config.Config, outDir string) error {
	log := logger.CLILog
	out := cmd.OutOrStdout()

	gen, err := newGenerator(cfg)
	if err != nil {
		return usageError(err)
	}

	hub := server.NewHub(cfg.Server.BroadcastBuffer)
	var feed *ui.Feed
	if cfg.Output.TUI {
		feed = ui.NewFeed(200)
		quietLogs(cfg)
	}
	listener := hub.Publish
	if feed != nil {
		listener = testbench.MultiListener(hub.Publish, feed.Publish)
	}
	tb := testbench.New(&testbench.Options{Rules: cfg.Rules(), Listener: listener})
	srv := server.New(tb, &server.Options{Hub: hub, Generator: gen})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.Server.Addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	if cfg.Output.TUI {
		// The TUI owns the terminal; quitting it stops the server
		go func() {
			for sig := range sigCh {
				if sig != syscall.SIGUSR1 {
					errCh <- nil
					return
				}
			}
		}()
		d := ui.NewDashboard(tb.RunID()+" @ "+cfg.Server.Addr, tb, feed)
		p := ui.NewProgram(d)
		go func() {
			if err := <-errCh; err != nil {
				log.WithError(err).Error("Server stopped")
			}
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			log.WithError(err).Error("Dashboard failed")
		}
	} else {
		fmt.Fprintln(out, ui.GetBannerStyled())
		fmt.Fprintf(out, "[*] Reporting API on %s (run %s)\n", cfg.Server.Addr, tb.RunID())
	wait:
		for {
			select {
			case err := <-errCh:
				if err != nil {
					return usageError(fmt.Errorf("server failed: %w", err))
				}
				break wait
			case sig := <-sigCh:
				if sig == syscall.SIGUSR1 {
					fmt.Fprint(out, tb.Summary())
					continue
				}
				fmt.Fprintln(out, "\n[*] Shutting down gracefully...")
				break wait
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Shutdown incomplete")
	}

	if err := writeReport(tb, cfg.Output.Format, outDir, out); err != nil {
		return usageError(err)
	}
	if !tb.Result() {
		return errFailed
	}
	return nil
}
