package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/schc/internal/capture"
	"firestige.xyz/schc/internal/config"
	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/rules"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run the capture and compression loop",
	Long: `Run the packet capture loop in foreground.

The loop will:
  1. Load the configuration and the shared rule set
  2. Initialize logging and the Prometheus metrics server
  3. Open the configured source (pcap file or AF_PACKET socket)
  4. Parse and compress every captured UDP packet
  5. Handle SIGTERM/SIGINT for graceful shutdown

A pcap file source exits when the file is exhausted; a live source runs
until a signal arrives.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCaptureCommand(); err != nil {
			exitWithError("capture failed", err)
		}
	},
}

var captureConfigFile string

func init() {
	captureCmd.Flags().StringVarP(&captureConfigFile, "config", "c", "/etc/schc/config.yaml",
		"config file path")
}

func runCaptureCommand() error {
	cfg, err := config.Load(captureConfigFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Init(&cfg.Log)
	logger := log.GetLogger()

	candidates, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	logger.WithField("rules", len(candidates)).Info("rule set loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Stop(context.Background())
	}

	src, err := capture.NewSource(&cfg.Capture)
	if err != nil {
		return fmt.Errorf("failed to create capture source: %w", err)
	}

	pl := capture.NewPipeline(src, cfg.Capture.Source, capture.ParserFor(cfg.Capture.Stack),
		candidates, capture.DirectionFor(cfg.Capture.Direction), nil)

	if err := pl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
