package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ncharlet/bessopt/config"
	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/plan"
	"github.com/ncharlet/bessopt/infra/logger"
	"github.com/ncharlet/bessopt/infra/solver"
	"github.com/ncharlet/bessopt/internal/seriesio"
)

var capacities []float64

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compare battery capacities over the same horizon",
	RunE:  runSweep,
}

func init() {
	sweepCmd.Flags().StringVarP(&seriesPath, "series", "s", "", "CSV load series")
	sweepCmd.Flags().Float64SliceVar(&capacities, "capacities", nil, "capacities in kWh to sweep")
	if err := sweepCmd.MarkFlagRequired("series"); err != nil {
		panic(err)
	}
	if err := sweepCmd.MarkFlagRequired("capacities"); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dt := time.Duration(cfg.Horizon.StepMinutes) * time.Minute
	series, err := seriesio.ReadCSV(seriesPath, dt)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	windows, err := sliceWindows(series, cfg.Horizon)
	if err != nil {
		return err
	}

	scenarios := make([]plan.Scenario, 0, len(capacities))
	for _, capKWh := range capacities {
		bc := cfg.Battery
		bc.CapacityKWh = capKWh
		spec, err := bc.Spec()
		if err != nil {
			return fmt.Errorf("capacity %.1f: %w", capKWh, err)
		}
		scenarios = append(scenarios, plan.Scenario{
			Name:       fmt.Sprintf("%.1fkWh", capKWh),
			Spec:       spec,
			InitialSOC: spec.ClampSOC(cfg.Horizon.InitialSOCKWh),
		})
	}

	solverCfg := solver.Config{
		Timeout:  time.Duration(cfg.Solver.TimeoutSeconds) * time.Second,
		MaxNodes: cfg.Solver.MaxNodes,
	}
	newSolver := func() milp.Solver { return solver.New(solverCfg, logger.NopLogger{}) }

	logg := logger.New("sweep")
	results := plan.Sweep(ctx, scenarios, windows, newSolver, plan.Options{BigM: cfg.Horizon.BigM})
	for _, r := range results {
		if r.Err != nil {
			logg.Errorf("%s: %v", r.Scenario.Name, r.Err)
			continue
		}
		logg.Infof("%s: saved %.2f (%.2f%%)", r.Scenario.Name, r.Run.MoneySaved, r.Run.ScorePercent)
	}
	return nil
}
