package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"SignalSentinel/internal/model"
	"SignalSentinel/internal/predictor"
)

var scanClass string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan of a trade class and print the report",
	Long: `Run one full scan of a trade class against live market data and print the
scan report as JSON. Signals that pass every gate are emitted and tracked exactly
as in the long-running bot.

Examples:
  bot scan --class scalp
  bot scan --class swing --config configs/config.yaml`,
	RunE: runScan,
}

var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "Resolve the current dominance regime and print it",
	RunE:  runRegime,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print performance of resolved trades",
	RunE:  runStats,
}

func init() {
	scanCmd.Flags().StringVar(&scanClass, "class", string(model.Day), "Trade class to scan (scalp|day|swing)")
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runScan(_ *cobra.Command, _ []string) error {
	class, err := model.ParseClass(scanClass)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	a.warmUp(ctx, false)

	report, err := a.scheduler.RunScan(ctx, class)
	if err != nil {
		return fmt.Errorf("%s scan: %w", class, err)
	}
	return printJSON(report)
}

func runRegime(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.regime.Restore(ctx); err != nil {
		return fmt.Errorf("restore regime: %w", err)
	}
	fast, err := a.regime.SampleFast(ctx)
	if err != nil {
		fast = a.regime.Signal()
	}
	return printJSON(map[string]any{
		"macro": a.regime.RefreshSlow(ctx),
		"fast":  fast,
	})
}

func runStats(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	outcomes, err := a.rec.LoadOutcomes(ctx, 0)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	return printJSON(predictor.ComputeStats(outcomes, a.model.LastTrained()))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
