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
	"github.com/ncharlet/bessopt/core/model"
	"github.com/ncharlet/bessopt/core/plan"
	"github.com/ncharlet/bessopt/infra/logger"
	"github.com/ncharlet/bessopt/infra/metrics"
	"github.com/ncharlet/bessopt/infra/solver"
	"github.com/ncharlet/bessopt/internal/eventbus"
	"github.com/ncharlet/bessopt/internal/seriesio"
	"github.com/ncharlet/bessopt/pkg/export"
)

var (
	seriesPath string
	outPath    string
	outFormat  string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Optimize battery dispatch over the horizon",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&seriesPath, "series", "s", "", "CSV load series (time,demand_kwh,generation_kwh,buy_price,sell_price)")
	planCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the dispatch schedule to this file")
	planCmd.Flags().StringVar(&outFormat, "format", "csv", "output format: csv or json")
	if err := planCmd.MarkFlagRequired("series"); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	spec, err := cfg.Battery.Spec()
	if err != nil {
		return fmt.Errorf("battery spec: %w", err)
	}

	logg := logger.New("plan")
	logg.Debugw("battery parameters", toFields(spec.Parameters()))

	dt := time.Duration(cfg.Horizon.StepMinutes) * time.Minute
	series, err := seriesio.ReadCSV(seriesPath, dt)
	if err != nil {
		return fmt.Errorf("load series: %w", err)
	}
	windows, err := sliceWindows(series, cfg.Horizon)
	if err != nil {
		return err
	}

	sink, err := metrics.FromConfig(cfg.Metrics, logg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	bus := eventbus.New()
	defer bus.Close()
	go logProgress(bus.Subscribe(), logg)

	eng := solver.New(solver.Config{
		Timeout:  time.Duration(cfg.Solver.TimeoutSeconds) * time.Second,
		MaxNodes: cfg.Solver.MaxNodes,
	}, logger.New("solver"))

	driver := plan.NewDriver(spec, eng, plan.Options{
		BigM:   cfg.Horizon.BigM,
		Logger: logger.New("driver"),
		Sink:   sink,
		Bus:    bus,
	})
	run, err := driver.Run(ctx, windows, cfg.Horizon.InitialSOCKWh)
	if err != nil {
		return fmt.Errorf("horizon run %s: %w", run.RunID, err)
	}

	logg.Infof("run %s: %d periods, cost %.2f -> %.2f, saved %.2f (%.2f%%)",
		run.RunID, len(run.Periods), run.CostWithoutBattery, run.CostWithBattery,
		run.MoneySaved, run.ScorePercent)

	if outPath == "" {
		return nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	switch outFormat {
	case "csv":
		return export.WriteCSV(f, run)
	case "json":
		return export.WriteJSON(f, run)
	default:
		return fmt.Errorf("unknown output format %q", outFormat)
	}
}

func sliceWindows(series *model.Series, cfg config.HorizonConfig) ([]model.PeriodWindow, error) {
	switch cfg.Periods {
	case "monthly":
		return series.MonthlyWindows(), nil
	case "single":
		w, err := series.Window(0, series.Len())
		if err != nil {
			return nil, err
		}
		return []model.PeriodWindow{w}, nil
	case "explicit":
		var windows []model.PeriodWindow
		start := 0
		for _, b := range append(cfg.Boundaries, series.Len()) {
			if b > series.Len() {
				return nil, fmt.Errorf("boundary %d beyond series length %d", b, series.Len())
			}
			w, err := series.Window(start, b)
			if err != nil {
				return nil, err
			}
			windows = append(windows, w)
			start = b
		}
		return windows, nil
	default:
		return nil, fmt.Errorf("unknown periods scheme %q", cfg.Periods)
	}
}

func logProgress(events <-chan eventbus.Event, logg logger.Logger) {
	for ev := range events {
		switch e := ev.(type) {
		case eventbus.PeriodStarted:
			logg.Debugf("period %d: optimizing %d steps from %s", e.Period, e.Steps, e.Start.Format(time.RFC3339))
		case eventbus.PeriodCompleted:
			logg.Infof("period %d: solved in %s, saved %.2f", e.Period, e.SolveDuration, e.MoneySaved)
		case eventbus.RunCompleted:
			logg.Infof("run %s complete: %d periods, saved %.2f", e.RunID, e.Periods, e.MoneySaved)
		}
	}
}

func toFields(params map[string]float64) map[string]any {
	fields := make(map[string]any, len(params))
	for k, v := range params {
		fields[k] = v
	}
	return fields
}
