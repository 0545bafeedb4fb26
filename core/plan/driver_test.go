package plan

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
	"github.com/ncharlet/bessopt/infra/solver"
)

func newSolver() milp.Solver { return solver.New(solver.Config{}, nil) }

// checkInvariants verifies the identities that must hold for any optimum
// regardless of degeneracy: per-step energy balance, SOC bounds and mode
// exclusivity.
func checkInvariants(t *testing.T, spec model.BatterySpec, w model.PeriodWindow, res *PeriodResult) {
	t.Helper()
	for i, step := range res.Steps {
		src := w.At(i)
		charge := step.GridCharge + step.PVCharge
		discharge := step.LocalDischarge + step.ExportDischarge
		exchange := step.NetImport + step.NetExport - src.PositiveLoad() - src.NegativeLoad()
		// The discharge channels are <= 0 by construction, so the
		// battery's contribution to the grid exchange is the signed sum
		// of both directions.
		if math.Abs(charge+discharge-exchange) > 1e-6 {
			t.Errorf("step %d: energy balance violated by %.9f", i, charge+discharge-exchange)
		}
		if step.SOC < spec.MinSOCKWh()-1e-6 || step.SOC > spec.MaxSOCKWh()+1e-6 {
			t.Errorf("step %d: soc %.6f outside [%.1f, %.1f]", i, step.SOC, spec.MinSOCKWh(), spec.MaxSOCKWh())
		}
		if step.Charging && step.Discharging {
			t.Errorf("step %d: charge and discharge modes both set", i)
		}
	}
}

// Scenario: constant deficit, identical prices, battery immobilized by
// zero power limits. The battery cannot act, so the optimized cost must
// equal the baseline exactly.
func TestDriver_IdleBatteryMatchesBaseline(t *testing.T) {
	spec, err := model.NewBatterySpec(100, 0, 0, 0.95, 0.95, 0.1, 0.9)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	dt := 30 * time.Minute
	w := testWindow(t, flatSteps(48, 10, 0, 0.2, 0.2, dt), dt)

	d := NewDriver(spec, newSolver(), Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w}, 50)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res := run.Periods[0]
	wantCost := 0.2 * 10 * 48
	if math.Abs(res.CostWithoutBattery-wantCost) > 1e-6 {
		t.Fatalf("baseline cost %.6f, want %.6f", res.CostWithoutBattery, wantCost)
	}
	if math.Abs(res.CostWithBattery-res.CostWithoutBattery) > 1e-6 {
		t.Fatalf("idle battery changed cost: %.6f vs %.6f", res.CostWithBattery, res.CostWithoutBattery)
	}
	if math.Abs(res.ScorePercent) > 1e-6 {
		t.Fatalf("score %.6f%%, want 0", res.ScorePercent)
	}
	checkInvariants(t, spec, w, &res)
}

// Scenario: a full day at hourly resolution with cheap overnight tariff
// and an active battery. The optimum charges 40 kWh off-peak and shifts
// it into the peak hours, so the exact optimal cost is known.
func TestDriver_FullDayTariffArbitrage(t *testing.T) {
	spec, err := model.NewBatterySpec(40, 10, 10, 1, 1, 0, 1)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	steps := make([]model.TimeStep, 24)
	for i := range steps {
		buy := 0.3
		if i < 8 {
			buy = 0.1
		}
		steps[i] = model.TimeStep{
			Time:      start.Add(time.Duration(i) * time.Hour),
			DemandKWh: 10,
			BuyPrice:  buy,
			SellPrice: 0.05,
		}
	}
	w := testWindow(t, steps, time.Hour)

	d := NewDriver(spec, newSolver(), Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res := run.Periods[0]
	wantBaseline := 8*10*0.1 + 16*10*0.3
	if math.Abs(res.CostWithoutBattery-wantBaseline) > 1e-6 {
		t.Fatalf("baseline %.6f, want %.6f", res.CostWithoutBattery, wantBaseline)
	}
	// 40 kWh move from 0.1 to 0.3 tariff, lossless: savings of 8.
	wantCost := wantBaseline - 40*(0.3-0.1)
	if math.Abs(res.CostWithBattery-wantCost) > 1e-6 {
		t.Fatalf("optimized cost %.6f, want %.6f", res.CostWithBattery, wantCost)
	}
	checkInvariants(t, spec, w, &res)
}

func surplusSteps(dt time.Duration) []model.TimeStep {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	mk := func(i int, demand, gen float64) model.TimeStep {
		return model.TimeStep{
			Time:      start.Add(time.Duration(i) * dt),
			DemandKWh: demand,
			GenKWh:    gen,
			BuyPrice:  0.3,
			SellPrice: 0.05,
		}
	}
	return []model.TimeStep{
		mk(0, 0, 8),
		mk(1, 0, 6),
		mk(2, 7, 0),
		mk(3, 7, 0),
	}
}

// Scenario: solar surplus early, deficit later, lossless battery large
// enough to shift all of it. Storing the surplus must beat selling it.
func TestDriver_ShiftsSurplusIntoDeficit(t *testing.T) {
	spec, err := model.NewBatterySpec(20, 10, 10, 1, 1, 0, 1)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	w := testWindow(t, surplusSteps(time.Hour), time.Hour)

	d := NewDriver(spec, newSolver(), Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res := run.Periods[0]
	wantBaseline := 0.3*14 - 0.05*14
	if math.Abs(res.CostWithoutBattery-wantBaseline) > 1e-6 {
		t.Fatalf("baseline %.6f, want %.6f", res.CostWithoutBattery, wantBaseline)
	}
	if res.CostWithBattery >= res.CostWithoutBattery {
		t.Fatalf("battery did not reduce cost: %.6f vs %.6f", res.CostWithBattery, res.CostWithoutBattery)
	}
	if res.MoneySaved <= 0 {
		t.Fatalf("money saved %.6f, want > 0", res.MoneySaved)
	}
	// All 14 kWh of surplus are shiftable, so the optimum imports and
	// exports nothing.
	if math.Abs(res.CostWithBattery) > 1e-6 {
		t.Fatalf("optimized cost %.6f, want 0", res.CostWithBattery)
	}
	checkInvariants(t, spec, w, &res)
}

func TestDriver_ChainsSOCAcrossPeriods(t *testing.T) {
	spec, err := model.NewBatterySpec(20, 10, 10, 1, 1, 0, 1)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	series, err := model.NewSeries(surplusSteps(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	w0, _ := series.Window(0, 2)
	w1, _ := series.Window(2, 4)

	d := NewDriver(spec, newSolver(), Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w0, w1}, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(run.Periods) != 2 {
		t.Fatalf("periods %d, want 2", len(run.Periods))
	}
	if run.Periods[1].InitialSOC != run.Periods[0].FinalSOC {
		t.Fatalf("chain broken: period 1 starts at %.9f, period 0 ended at %.9f",
			run.Periods[1].InitialSOC, run.Periods[0].FinalSOC)
	}
	if got := len(run.Steps()); got != 4 {
		t.Fatalf("flattened steps %d, want 4", got)
	}
	// Aggregates derive from accumulated costs.
	wantWithout := run.Periods[0].CostWithoutBattery + run.Periods[1].CostWithoutBattery
	if math.Abs(run.CostWithoutBattery-wantWithout) > 1e-9 {
		t.Fatalf("aggregate baseline %.6f, want %.6f", run.CostWithoutBattery, wantWithout)
	}
}

func TestDriver_DeterministicObjective(t *testing.T) {
	spec, err := model.NewBatterySpec(20, 10, 10, 1, 1, 0, 1)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	w := testWindow(t, surplusSteps(time.Hour), time.Hour)

	d := NewDriver(spec, newSolver(), Options{})
	first, err := d.Run(context.Background(), []model.PeriodWindow{w}, 0)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := d.Run(context.Background(), []model.PeriodWindow{w}, 0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if math.Abs(first.CostWithBattery-second.CostWithBattery) > 1e-9 {
		t.Fatalf("objective differs across identical solves: %.12f vs %.12f",
			first.CostWithBattery, second.CostWithBattery)
	}
}

func TestDriver_EmptyWindow(t *testing.T) {
	spec := testSpec(t)
	series, err := model.NewSeries(nil, time.Hour)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	w, _ := series.Window(0, 0)

	d := NewDriver(spec, newSolver(), Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w}, 42)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res := run.Periods[0]
	if res.FinalSOC != 42 {
		t.Fatalf("final soc %.1f, want initial 42", res.FinalSOC)
	}
	if res.CostWithBattery != 0 || res.CostWithoutBattery != 0 {
		t.Fatal("empty window should cost nothing")
	}
}

// failAfter succeeds for the first n solves, then fails.
type failAfter struct {
	n      int
	solves int
	inner  milp.Solver
}

func (f *failAfter) Solve(ctx context.Context, m *milp.Model) (*milp.Solution, error) {
	f.solves++
	if f.solves > f.n {
		return nil, milp.ErrUnavailable
	}
	return f.inner.Solve(ctx, m)
}

func TestDriver_FailedPeriodHaltsRunKeepingPriorResults(t *testing.T) {
	spec, err := model.NewBatterySpec(20, 10, 10, 1, 1, 0, 1)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	series, err := model.NewSeries(surplusSteps(time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	w0, _ := series.Window(0, 2)
	w1, _ := series.Window(2, 4)

	d := NewDriver(spec, &failAfter{n: 1, inner: newSolver()}, Options{})
	run, err := d.Run(context.Background(), []model.PeriodWindow{w0, w1}, 0)
	if !errors.Is(err, milp.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(run.Periods) != 1 {
		t.Fatalf("completed periods %d, want 1", len(run.Periods))
	}
}

func TestDriver_ContextCancellation(t *testing.T) {
	spec := testSpec(t)
	w := testWindow(t, flatSteps(2, 10, 0, 0.2, 0.1, time.Hour), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDriver(spec, newSolver(), Options{})
	if _, err := d.Run(ctx, []model.PeriodWindow{w}, 50); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
