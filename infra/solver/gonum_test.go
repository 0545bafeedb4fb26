package solver

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ncharlet/bessopt/core/milp"
)

func TestSolve_LinearProgram(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 1)
	y := m.AddVariable("y", 0, 1)
	m.AddConstraint("cap", []milp.Term{{Var: x, Coeff: 1}, {Var: y, Coeff: 1}}, milp.LE, 1)
	m.SetObjective([]milp.Term{{Var: x, Coeff: -1}, {Var: y, Coeff: -1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != milp.StatusOptimal {
		t.Fatalf("status %s, want optimal", sol.Status)
	}
	if math.Abs(sol.Objective-(-1)) > 1e-6 {
		t.Fatalf("objective %.6f, want -1", sol.Objective)
	}
	if math.Abs(sol.Values[x]+sol.Values[y]-1) > 1e-6 {
		t.Fatalf("x+y = %.6f, want 1", sol.Values[x]+sol.Values[y])
	}
}

func TestSolve_EqualityConstraint(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 10)
	m.AddConstraint("fix", []milp.Term{{Var: x, Coeff: 1}}, milp.EQ, 5)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if math.Abs(sol.Values[x]-5) > 1e-6 {
		t.Fatalf("x = %.6f, want 5", sol.Values[x])
	}
}

func TestSolve_BranchesOnFractionalRelaxation(t *testing.T) {
	// max 3x + 3y s.t. 2x + 2y <= 3 with binary x, y. The relaxation
	// takes x = 1, y = 0.5 (objective -4.5); the integer optimum is a
	// single variable at 1 (objective -3).
	m := milp.NewModel()
	x := m.AddBinary("x")
	y := m.AddBinary("y")
	m.AddConstraint("cap", []milp.Term{{Var: x, Coeff: 2}, {Var: y, Coeff: 2}}, milp.LE, 3)
	m.SetObjective([]milp.Term{{Var: x, Coeff: -3}, {Var: y, Coeff: -3}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if math.Abs(sol.Objective-(-3)) > 1e-6 {
		t.Fatalf("objective %.6f, want -3", sol.Objective)
	}
	for _, v := range []int{x, y} {
		if frac := math.Abs(sol.Values[v] - math.Round(sol.Values[v])); frac > 1e-6 {
			t.Fatalf("non-integral value %.6f", sol.Values[v])
		}
	}
	if math.Abs(sol.Values[x]+sol.Values[y]-1) > 1e-6 {
		t.Fatalf("x+y = %.6f, want 1", sol.Values[x]+sol.Values[y])
	}
}

func TestSolve_Infeasible(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 1)
	m.AddConstraint("impossible", []milp.Term{{Var: x, Coeff: 1}}, milp.GE, 2)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if !errors.Is(err, milp.ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	if sol.Status != milp.StatusInfeasible {
		t.Fatalf("status %s, want infeasible", sol.Status)
	}
}

func TestSolve_Timeout(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 1)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	s := New(Config{Timeout: time.Nanosecond}, nil)
	time.Sleep(time.Millisecond)
	sol, err := s.Solve(context.Background(), m)
	if !errors.Is(err, milp.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if sol.Status != milp.StatusTimeout {
		t.Fatalf("status %s, want timeout", sol.Status)
	}
}

func TestSolve_NodeLimit(t *testing.T) {
	m := milp.NewModel()
	x := m.AddBinary("x")
	y := m.AddBinary("y")
	m.AddConstraint("cap", []milp.Term{{Var: x, Coeff: 2}, {Var: y, Coeff: 2}}, milp.LE, 3)
	m.SetObjective([]milp.Term{{Var: x, Coeff: -3}, {Var: y, Coeff: -3}})

	_, err := New(Config{MaxNodes: 1}, nil).Solve(context.Background(), m)
	var serr *milp.SolverError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SolverError, got %v", err)
	}
}

func TestSolve_SimplexFailure(t *testing.T) {
	old := simplexSolve
	simplexSolve = func(_ []float64, _ mat.Matrix, _ []float64, _ float64) (float64, []float64, error) {
		return 0, nil, errors.New("boom")
	}
	defer func() { simplexSolve = old }()

	m := milp.NewModel()
	x := m.AddVariable("x", 0, 1)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	_, err := New(Config{}, nil).Solve(context.Background(), m)
	var serr *milp.SolverError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SolverError, got %v", err)
	}
}

// A free variable defined through an equality row is substituted out of
// the relaxation and must be recovered in the solution.
func TestSolve_RecoversEqualityDefinedFreeVariable(t *testing.T) {
	m := milp.NewModel()
	x := m.AddFreeVariable("x")
	y := m.AddVariable("y", 0, 4)
	m.AddConstraint("def", []milp.Term{{Var: x, Coeff: 1}, {Var: y, Coeff: -2}}, milp.EQ, 1)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if math.Abs(sol.Values[y]) > 1e-6 {
		t.Fatalf("y = %.6f, want 0", sol.Values[y])
	}
	if math.Abs(sol.Values[x]-1) > 1e-6 {
		t.Fatalf("x = %.6f, want 1 (x = 2y+1 at y=0)", sol.Values[x])
	}
	if math.Abs(sol.Objective-1) > 1e-6 {
		t.Fatalf("objective %.6f, want 1", sol.Objective)
	}
}

// Collapsed bounds fix a variable outright; the remaining problem must
// still honor the rows it appeared in.
func TestSolve_PinsCollapsedBounds(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 10)
	z := m.AddVariable("z", 3, 3)
	m.AddConstraint("cap", []milp.Term{{Var: x, Coeff: 1}, {Var: z, Coeff: 1}}, milp.LE, 5)
	m.SetObjective([]milp.Term{{Var: x, Coeff: -1}, {Var: z, Coeff: 1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Values[z] != 3 {
		t.Fatalf("z = %.6f, want pinned 3", sol.Values[z])
	}
	if math.Abs(sol.Values[x]-2) > 1e-6 {
		t.Fatalf("x = %.6f, want 2", sol.Values[x])
	}
	if math.Abs(sol.Objective-1) > 1e-6 {
		t.Fatalf("objective %.6f, want 1", sol.Objective)
	}
}

func TestSolve_EmptyModel(t *testing.T) {
	sol, err := New(Config{}, nil).Solve(context.Background(), milp.NewModel())
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Status != milp.StatusOptimal || sol.Objective != 0 {
		t.Fatalf("empty model: status %s objective %.3f", sol.Status, sol.Objective)
	}
}

func TestSolve_RecordsDuration(t *testing.T) {
	m := milp.NewModel()
	x := m.AddVariable("x", 0, 1)
	m.SetObjective([]milp.Term{{Var: x, Coeff: 1}})

	sol, err := New(Config{}, nil).Solve(context.Background(), m)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol.Duration <= 0 {
		t.Fatalf("duration %v, want > 0", sol.Duration)
	}
}
