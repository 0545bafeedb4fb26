package plan

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ncharlet/bessopt/core/logger"
	"github.com/ncharlet/bessopt/core/metrics"
	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
	"github.com/ncharlet/bessopt/internal/eventbus"
)

// Options configures a Driver. Zero values fall back to defaults: the
// default big-M constant, a no-op logger, a no-op sink and no bus.
type Options struct {
	BigM   float64
	Logger logger.Logger
	Sink   metrics.Sink
	Bus    *eventbus.Bus
}

// Driver runs the rolling horizon: it optimizes the periods in
// chronological order, feeding each period's ending SOC into the next
// period as its initial SOC. The chain is strictly sequential; a failed
// period halts the run, but all earlier period results stay valid.
type Driver struct {
	builder Builder
	solver  milp.Solver
	log     logger.Logger
	sink    metrics.Sink
	bus     *eventbus.Bus
}

// NewDriver wires a driver from the battery spec and a solving capability.
func NewDriver(spec model.BatterySpec, solver milp.Solver, opts Options) *Driver {
	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Driver{
		builder: Builder{Spec: spec, BigM: opts.BigM},
		solver:  solver,
		log:     log,
		sink:    sink,
		bus:     opts.Bus,
	}
}

// Run optimizes the windows in order, starting from initialSOC. On a
// period failure it returns both the error and the run holding every
// period completed so far.
func (d *Driver) Run(ctx context.Context, windows []model.PeriodWindow, initialSOC float64) (*HorizonRun, error) {
	run := &HorizonRun{RunID: uuid.New()}
	soc := initialSOC

	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return run, fmt.Errorf("period %d: %w", i, err)
		}
		if d.bus != nil {
			d.bus.Publish(eventbus.PeriodStarted{Period: i, Start: window.Start(), Steps: window.Len()})
		}

		res, err := d.runPeriod(ctx, i, window, soc)
		if err != nil {
			d.log.Errorf("period %d failed, halting run: %v", i, err)
			return run, fmt.Errorf("period %d: %w", i, err)
		}

		run.Periods = append(run.Periods, *res)
		run.CostWithoutBattery += res.CostWithoutBattery
		run.CostWithBattery += res.CostWithBattery
		soc = res.FinalSOC

		d.log.Infof("period %d optimized: %d steps, saved %.2f, final soc %.2f kWh",
			i, window.Len(), res.MoneySaved, res.FinalSOC)
		if err := d.sink.RecordPeriod(metrics.PeriodEvent{
			RunID:              run.RunID.String(),
			Period:             i,
			Start:              window.Start(),
			FinalSOC:           res.FinalSOC,
			CostWithoutBattery: res.CostWithoutBattery,
			CostWithBattery:    res.CostWithBattery,
			MoneySaved:         res.MoneySaved,
		}); err != nil {
			d.log.Warnf("record period metrics: %v", err)
		}
		if d.bus != nil {
			d.bus.Publish(eventbus.PeriodCompleted{
				Period:        i,
				FinalSOC:      res.FinalSOC,
				MoneySaved:    res.MoneySaved,
				SolveDuration: res.SolveDuration,
			})
		}
	}

	// Aggregate score from the accumulated costs, not from averaging
	// per-period scores.
	if run.CostWithoutBattery != 0 {
		run.ScorePercent = (run.CostWithBattery - run.CostWithoutBattery) / math.Abs(run.CostWithoutBattery) * 100
	}
	run.MoneySaved = math.Abs(run.CostWithoutBattery - run.CostWithBattery)

	if err := d.sink.RecordRun(metrics.RunEvent{
		RunID:              run.RunID.String(),
		Periods:            len(run.Periods),
		CostWithoutBattery: run.CostWithoutBattery,
		CostWithBattery:    run.CostWithBattery,
		ScorePercent:       run.ScorePercent,
		MoneySaved:         run.MoneySaved,
	}); err != nil {
		d.log.Warnf("record run metrics: %v", err)
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.RunCompleted{
			RunID:      run.RunID.String(),
			Periods:    len(run.Periods),
			MoneySaved: run.MoneySaved,
		})
	}
	return run, nil
}

// runPeriod performs one build-solve-extract cycle.
func (d *Driver) runPeriod(ctx context.Context, period int, window model.PeriodWindow, initialSOC float64) (*PeriodResult, error) {
	m, idx, err := d.builder.Build(window, initialSOC)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	sol, err := d.solver.Solve(ctx, m)
	if sol != nil {
		if rerr := d.sink.RecordSolve(metrics.SolveEvent{
			Period:   period,
			Steps:    window.Len(),
			Status:   sol.Status.String(),
			Duration: sol.Duration,
		}); rerr != nil {
			d.log.Warnf("record solve metrics: %v", rerr)
		}
		d.log.Debugw("milp solve finished", map[string]any{
			"period":   period,
			"steps":    window.Len(),
			"status":   sol.Status.String(),
			"duration": sol.Duration.String(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}

	res, err := Extract(window, idx, sol, initialSOC)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	return res, nil
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}
