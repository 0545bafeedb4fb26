// Package milp describes mixed-integer linear programs and the narrow
// solver contract the planning engine depends on. Model construction is
// separated from solving so MILP engines are interchangeable.
package milp

import (
	"context"
	"math"
	"time"
)

// Variable is one decision variable with box bounds. Integer variables
// are restricted to integral values within the bounds; binaries are
// integer variables bounded to [0,1].
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Term is a coefficient applied to the variable at index Var.
type Term struct {
	Var   int
	Coeff float64
}

// Op is a constraint relation.
type Op int

const (
	LE Op = iota // sum <= rhs
	GE           // sum >= rhs
	EQ           // sum == rhs
)

// Constraint is a linear relation over the model's variables.
type Constraint struct {
	Name  string
	Terms []Term
	Op    Op
	RHS   float64
}

// Model is a minimization MILP. Build it with AddVariable and the
// constraint helpers, then hand it to a Solver.
type Model struct {
	vars      []Variable
	cons      []Constraint
	objective []Term
}

// NewModel returns an empty minimization model.
func NewModel() *Model { return &Model{} }

// AddVariable appends a continuous variable and returns its index.
func (m *Model) AddVariable(name string, lower, upper float64) int {
	m.vars = append(m.vars, Variable{Name: name, Lower: lower, Upper: upper})
	return len(m.vars) - 1
}

// AddFreeVariable appends an unbounded continuous variable.
func (m *Model) AddFreeVariable(name string) int {
	return m.AddVariable(name, math.Inf(-1), math.Inf(1))
}

// AddBinary appends a binary indicator variable and returns its index.
func (m *Model) AddBinary(name string) int {
	m.vars = append(m.vars, Variable{Name: name, Lower: 0, Upper: 1, Integer: true})
	return len(m.vars) - 1
}

// AddConstraint appends a linear constraint.
func (m *Model) AddConstraint(name string, terms []Term, op Op, rhs float64) {
	m.cons = append(m.cons, Constraint{Name: name, Terms: terms, Op: op, RHS: rhs})
}

// SetObjective replaces the minimization objective.
func (m *Model) SetObjective(terms []Term) { m.objective = terms }

// NumVariables returns the number of decision variables.
func (m *Model) NumVariables() int { return len(m.vars) }

// NumConstraints returns the number of linear constraints.
func (m *Model) NumConstraints() int { return len(m.cons) }

// Variables returns the variable definitions.
func (m *Model) Variables() []Variable { return m.vars }

// Constraints returns the linear constraints.
func (m *Model) Constraints() []Constraint { return m.cons }

// Objective returns the minimization objective terms.
func (m *Model) Objective() []Term { return m.objective }

// Status reports the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusTimeout
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// Solution carries the variable assignment and objective of a solved
// model. Duration records wall-clock solve time as an observability
// signal; it never influences the result.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Duration  time.Duration
}

// Solver is the external MILP-solving capability.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
