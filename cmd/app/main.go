package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"Argo/internal/di"
	"Argo/pkg/config"
	"Argo/pkg/server"
)

var (
	configPath string
	runTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "argo",
	Short: "Argo multi-source signal consensus engine",
	Long: `Argo polls independent market opinion sources on a fixed cadence, combines
their views into a regime-weighted consensus and publishes calibrated trading
signals whose outcomes it tracks against later prices.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consensus loop, outcome tracker and read API",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Run one outcome tracking pass over open signals and exit",
	RunE:  runResolve,
}

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Rebuild the confidence calibration model from resolved signals and exit",
	RunE:  runRetrain,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	resolveCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "deadline for the pass")
	retrainCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "deadline for the retrain")

	rootCmd.AddCommand(serveCmd, resolveCmd, retrainCmd)
}

func initialize(ctx context.Context) (*server.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := di.InitializeApp(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, cleanup, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	app, cleanup, err := initialize(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	// blocks until SIGINT/SIGTERM
	return app.Run(ctx)
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	app, cleanup, err := initialize(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := app.ResolveOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d won=%d lost=%d expired=%d skipped=%d errors=%d\n",
		rep.Scanned, rep.Won, rep.Lost, rep.Expired, rep.Skipped, rep.Errors)
	return nil
}

func runRetrain(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
	defer cancel()

	app, cleanup, err := initialize(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return app.RetrainOnce(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
