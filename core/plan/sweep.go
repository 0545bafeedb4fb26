package plan

import (
	"context"
	"sync"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
)

// Scenario is one independent horizon run of a sweep: a battery spec and
// the first period's SOC.
type Scenario struct {
	Name       string
	Spec       model.BatterySpec
	InitialSOC float64
}

// SweepResult pairs a scenario with its run outcome.
type SweepResult struct {
	Scenario Scenario
	Run      *HorizonRun
	Err      error
}

// Sweep runs the scenarios concurrently over the same windows. Each
// scenario is a full, independent SOC chain, so runs may proceed in
// parallel even though the periods inside each run never do. newSolver
// must return a fresh solver per scenario so no solver state is shared.
func Sweep(ctx context.Context, scenarios []Scenario, windows []model.PeriodWindow, newSolver func() milp.Solver, opts Options) []SweepResult {
	results := make([]SweepResult, len(scenarios))
	var wg sync.WaitGroup
	for i, sc := range scenarios {
		wg.Add(1)
		go func(i int, sc Scenario) {
			defer wg.Done()
			d := NewDriver(sc.Spec, newSolver(), opts)
			run, err := d.Run(ctx, windows, sc.InitialSOC)
			results[i] = SweepResult{Scenario: sc, Run: run, Err: err}
		}(i, sc)
	}
	wg.Wait()
	return results
}
