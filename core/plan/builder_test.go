package plan

import (
	"math"
	"testing"
	"time"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
)

func testSpec(t *testing.T) model.BatterySpec {
	t.Helper()
	spec, err := model.NewBatterySpec(100, 50, 50, 0.95, 0.95, 0.1, 0.9)
	if err != nil {
		t.Fatalf("spec: %v", err)
	}
	return spec
}

func testWindow(t *testing.T, steps []model.TimeStep, dt time.Duration) model.PeriodWindow {
	t.Helper()
	series, err := model.NewSeries(steps, dt)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	w, err := series.Window(0, series.Len())
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func flatSteps(n int, demand, gen, buy, sell float64, dt time.Duration) []model.TimeStep {
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	steps := make([]model.TimeStep, n)
	for i := range steps {
		steps[i] = model.TimeStep{
			Time:      start.Add(time.Duration(i) * dt),
			DemandKWh: demand,
			GenKWh:    gen,
			BuyPrice:  buy,
			SellPrice: sell,
		}
	}
	return steps
}

func TestBuilder_Shape(t *testing.T) {
	spec := testSpec(t)
	w := testWindow(t, flatSteps(4, 10, 0, 0.2, 0.1, time.Hour), time.Hour)

	m, idx, err := Builder{Spec: spec}.Build(w, 50)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(idx) != 4 {
		t.Fatalf("index length %d, want 4", len(idx))
	}
	// 11 variables and 14 constraints per step.
	if m.NumVariables() != 4*11 {
		t.Fatalf("variables %d, want %d", m.NumVariables(), 4*11)
	}
	if m.NumConstraints() != 4*14 {
		t.Fatalf("constraints %d, want %d", m.NumConstraints(), 4*14)
	}
	// Objective has an import and an export term per step.
	if len(m.Objective()) != 4*2 {
		t.Fatalf("objective terms %d, want %d", len(m.Objective()), 4*2)
	}
}

func TestBuilder_VariableBounds(t *testing.T) {
	spec := testSpec(t)
	dt := 30 * time.Minute
	w := testWindow(t, flatSteps(1, 10, 0, 0.2, 0.1, dt), dt)

	m, idx, err := Builder{Spec: spec}.Build(w, 50)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	vars := m.Variables()
	ix := idx[0]

	if v := vars[ix.SOC]; v.Lower != 10 || v.Upper != 90 {
		t.Fatalf("soc bounds [%.1f, %.1f], want [10, 90]", v.Lower, v.Upper)
	}
	// Power limits convert to energy over the half-hour step.
	if v := vars[ix.GridCharge]; v.Lower != 0 || v.Upper != 25 {
		t.Fatalf("grid charge bounds [%.1f, %.1f], want [0, 25]", v.Lower, v.Upper)
	}
	if v := vars[ix.LocalDischarge]; v.Lower != -25 || v.Upper != 0 {
		t.Fatalf("local discharge bounds [%.1f, %.1f], want [-25, 0]", v.Lower, v.Upper)
	}
	if v := vars[ix.DeltaCharge]; !math.IsInf(v.Lower, -1) || !math.IsInf(v.Upper, 1) {
		t.Fatalf("delta charge should be free, got [%v, %v]", v.Lower, v.Upper)
	}
	for _, b := range []int{ix.ChargeInd, ix.DischargeInd} {
		if v := vars[b]; !v.Integer || v.Lower != 0 || v.Upper != 1 {
			t.Fatalf("indicator %s not binary", v.Name)
		}
	}
}

func TestBuilder_InitialSOCInFirstBalance(t *testing.T) {
	spec := testSpec(t)
	w := testWindow(t, flatSteps(2, 10, 0, 0.2, 0.1, time.Hour), time.Hour)

	m, _, err := Builder{Spec: spec}.Build(w, 42)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var first, second *milp.Constraint
	for i := range m.Constraints() {
		c := &m.Constraints()[i]
		switch c.Name {
		case "soc_balance_0":
			first = c
		case "soc_balance_1":
			second = c
		}
	}
	if first == nil || second == nil {
		t.Fatal("missing soc balance constraints")
	}
	if first.RHS != 42 {
		t.Fatalf("first balance rhs %.1f, want initial soc 42", first.RHS)
	}
	if second.RHS != 0 {
		t.Fatalf("second balance rhs %.1f, want 0", second.RHS)
	}
	if len(second.Terms) != len(first.Terms)+1 {
		t.Fatalf("second balance should couple to the previous soc variable")
	}
}

func TestBuilder_RejectsOutOfRangeInitialSOC(t *testing.T) {
	spec := testSpec(t)
	w := testWindow(t, flatSteps(1, 10, 0, 0.2, 0.1, time.Hour), time.Hour)

	if _, _, err := (Builder{Spec: spec}).Build(w, 5); err == nil {
		t.Fatal("expected error for initial soc below the floor")
	}
	if _, _, err := (Builder{Spec: spec}).Build(w, 95); err == nil {
		t.Fatal("expected error for initial soc above the ceiling")
	}
}

func TestBuilder_EmptyWindow(t *testing.T) {
	spec := testSpec(t)
	series, err := model.NewSeries(nil, time.Hour)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	w, err := series.Window(0, 0)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	m, idx, err := Builder{Spec: spec}.Build(w, 50)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if m.NumVariables() != 0 || m.NumConstraints() != 0 || len(idx) != 0 {
		t.Fatalf("empty window should build an empty model")
	}
}
