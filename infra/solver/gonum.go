// Package solver provides the gonum-backed MILP engine. The simplex
// method solves the LP relaxation; integrality is recovered by
// branch-and-bound on the fractional indicator variables.
package solver

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/infra/logger"
)

// Config tunes the branch-and-bound search.
type Config struct {
	// Timeout bounds the wall-clock duration of one Solve call. The
	// deadline is checked between branch-and-bound nodes, so a solve
	// can overrun by the duration of one simplex run on the relaxation.
	// Zero disables the deadline.
	Timeout time.Duration `json:"timeout"`
	// MaxNodes bounds the number of explored branch-and-bound nodes.
	MaxNodes int `json:"max_nodes"`
	// Tol is the simplex convergence tolerance.
	Tol float64 `json:"tol"`
	// IntTol is the threshold below which a relaxed value counts as
	// integral.
	IntTol float64 `json:"int_tol"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.MaxNodes == 0 {
		c.MaxNodes = 50000
	}
	if c.Tol == 0 {
		c.Tol = 1e-7
	}
	if c.IntTol == 0 {
		c.IntTol = 1e-6
	}
}

// BranchAndBound implements milp.Solver on top of gonum's simplex.
type BranchAndBound struct {
	cfg Config
	log logger.Logger
}

// New returns a configured branch-and-bound solver.
func New(cfg Config, log logger.Logger) *BranchAndBound {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &BranchAndBound{cfg: cfg, log: log}
}

// simplexSolve points to the LP solver for the reduced standard-form
// problem. It can be overridden in tests to simulate solver failures.
var simplexSolve = func(c []float64, a mat.Matrix, b []float64, tol float64) (float64, []float64, error) {
	return lp.Simplex(c, a, b, tol, nil)
}

// node is one branch-and-bound subproblem: the root model with
// tightened variable bounds.
type node struct {
	lower []float64
	upper []float64
}

// Solve runs branch-and-bound on m and returns the optimal integral
// solution. It returns milp.ErrInfeasible when no integral point exists,
// milp.ErrTimeout when the configured deadline expires, and a
// *milp.SolverError for any other failure.
func (s *BranchAndBound) Solve(ctx context.Context, m *milp.Model) (*milp.Solution, error) {
	start := time.Now()
	if m.NumVariables() == 0 {
		return &milp.Solution{Status: milp.StatusOptimal, Objective: 0, Duration: time.Since(start)}, nil
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	vars := m.Variables()
	root := node{lower: make([]float64, len(vars)), upper: make([]float64, len(vars))}
	for i, v := range vars {
		root.lower[i] = v.Lower
		root.upper[i] = v.Upper
	}

	var (
		best     []float64
		bestObj  = math.Inf(1)
		explored int
	)
	stack := []node{root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &milp.Solution{Status: milp.StatusTimeout, Duration: time.Since(start)}, milp.ErrTimeout
			}
			return &milp.Solution{Status: milp.StatusFailed, Duration: time.Since(start)}, &milp.SolverError{Reason: "solve canceled", Err: err}
		}
		if explored >= s.cfg.MaxNodes {
			return &milp.Solution{Status: milp.StatusFailed, Duration: time.Since(start)}, &milp.SolverError{Reason: "node limit exceeded"}
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		explored++

		obj, x, err := s.solveRelaxation(m, n)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			if explored == 1 {
				return &milp.Solution{Status: milp.StatusInfeasible, Duration: time.Since(start)}, milp.ErrInfeasible
			}
			continue
		case errors.Is(err, lp.ErrUnbounded):
			return &milp.Solution{Status: milp.StatusUnbounded, Duration: time.Since(start)}, &milp.SolverError{Reason: "relaxation unbounded", Err: err}
		case err != nil:
			return &milp.Solution{Status: milp.StatusFailed, Duration: time.Since(start)}, &milp.SolverError{Reason: "simplex failure", Err: err}
		}

		// Bound: the relaxation objective cannot beat the incumbent.
		if obj >= bestObj-1e-9 && best != nil {
			continue
		}

		branch := s.mostFractional(vars, x)
		if branch < 0 {
			if obj < bestObj {
				bestObj = obj
				best = x
			}
			continue
		}

		// Branch on the fractional indicator: floor side and ceil side.
		v := x[branch]
		down := node{lower: append([]float64(nil), n.lower...), upper: append([]float64(nil), n.upper...)}
		up := node{lower: append([]float64(nil), n.lower...), upper: append([]float64(nil), n.upper...)}
		down.upper[branch] = math.Floor(v)
		up.lower[branch] = math.Ceil(v)
		// Explore the side nearer the relaxed value first.
		if v-math.Floor(v) < 0.5 {
			stack = append(stack, up, down)
		} else {
			stack = append(stack, down, up)
		}
	}

	if best == nil {
		return &milp.Solution{Status: milp.StatusInfeasible, Duration: time.Since(start)}, milp.ErrInfeasible
	}

	s.log.Debugf("solved milp: %d vars, %d constraints, %d nodes, objective %.6f",
		m.NumVariables(), m.NumConstraints(), explored, bestObj)
	for i, v := range vars {
		if v.Integer {
			best[i] = math.Round(best[i])
		}
	}
	return &milp.Solution{
		Status:    milp.StatusOptimal,
		Values:    best,
		Objective: bestObj,
		Duration:  time.Since(start),
	}, nil
}

// mostFractional returns the integer variable farthest from integrality,
// or -1 when the assignment is integral.
func (s *BranchAndBound) mostFractional(vars []milp.Variable, x []float64) int {
	worst, at := s.cfg.IntTol, -1
	for i, v := range vars {
		if !v.Integer {
			continue
		}
		frac := math.Abs(x[i] - math.Round(x[i]))
		if frac > worst {
			worst = frac
			at = i
		}
	}
	return at
}

// solveRelaxation solves the LP relaxation of m under the node's bounds.
// The relaxation is reduced before the dense conversion; the objective is
// recomputed from the recovered assignment so the reductions need no
// constant-offset bookkeeping.
func (s *BranchAndBound) solveRelaxation(m *milp.Model, n node) (float64, []float64, error) {
	rx, err := newRelaxation(m, n)
	if err != nil {
		return 0, nil, err
	}
	if err := rx.reduce(); err != nil {
		return 0, nil, err
	}
	x, err := rx.solve(s.cfg.Tol)
	if err != nil {
		return 0, nil, err
	}
	var obj float64
	for _, t := range m.Objective() {
		obj += t.Coeff * x[t.Var]
	}
	return obj, x, nil
}

const (
	// coefEps is the magnitude below which a coefficient counts as zero.
	coefEps = 1e-9
	// feasEps is the residual tolerance when checking rows the
	// reductions drop.
	feasEps = 1e-6
)

// relaxation is one LP relaxation held in dense row form over the
// model's original variable space, so reductions can substitute columns
// in place and the solution maps back by index.
type relaxation struct {
	nVar    int
	c       []float64
	lower   []float64
	upper   []float64
	integer []bool
	eq      [][]float64
	eqRHS   []float64
	le      [][]float64 // every inequality normalized to <=
	leRHS   []float64
	removed []bool
	value   []float64 // assignment for pinned variables
	elims   []elimination
}

// elimination records a free variable substituted out through an
// equality row; the row is kept to back-substitute its value.
type elimination struct {
	v     int
	pivot float64
	row   []float64
	rhs   float64
}

func newRelaxation(m *milp.Model, n node) (*relaxation, error) {
	nVar := m.NumVariables()
	rx := &relaxation{
		nVar:    nVar,
		c:       make([]float64, nVar),
		lower:   append([]float64(nil), n.lower...),
		upper:   append([]float64(nil), n.upper...),
		integer: make([]bool, nVar),
		removed: make([]bool, nVar),
		value:   make([]float64, nVar),
	}
	for i, v := range m.Variables() {
		rx.integer[i] = v.Integer
	}
	for _, t := range m.Objective() {
		rx.c[t.Var] += t.Coeff
	}
	for j := 0; j < nVar; j++ {
		if rx.lower[j] > rx.upper[j]+feasEps {
			return nil, lp.ErrInfeasible
		}
	}
	row := func(terms []milp.Term, scale float64) []float64 {
		r := make([]float64, nVar)
		for _, t := range terms {
			r[t.Var] += scale * t.Coeff
		}
		return r
	}
	for _, con := range m.Constraints() {
		switch con.Op {
		case milp.LE:
			rx.le = append(rx.le, row(con.Terms, 1))
			rx.leRHS = append(rx.leRHS, con.RHS)
		case milp.GE:
			rx.le = append(rx.le, row(con.Terms, -1))
			rx.leRHS = append(rx.leRHS, -con.RHS)
		case milp.EQ:
			rx.eq = append(rx.eq, row(con.Terms, 1))
			rx.eqRHS = append(rx.eqRHS, con.RHS)
		}
	}
	return rx, nil
}

// reduce shrinks the relaxation before the dense standard-form
// conversion: collapsed bounds pin variables, free variables are
// substituted out through the equality rows that define them, singleton
// rows become bounds and vacuous rows are dropped. Without these
// reductions the dispatch models emit every box bound as explicit rows
// and split every free column, and the resulting basis turns singular at
// realistic horizon lengths.
func (r *relaxation) reduce() error {
	for changed := true; changed; {
		changed = false

		for j := 0; j < r.nVar; j++ {
			if r.removed[j] {
				continue
			}
			if r.upper[j]-r.lower[j] < coefEps {
				r.pin(j, r.lower[j])
				changed = true
			}
		}

		for i := 0; i < len(r.eq); {
			if v := r.freeVarIn(r.eq[i]); v >= 0 {
				r.eliminate(i, v)
				changed = true
				continue
			}
			if v := r.singletonVarIn(r.eq[i]); v >= 0 {
				val := r.eqRHS[i] / r.eq[i][v]
				if val < r.lower[v]-feasEps || val > r.upper[v]+feasEps {
					return lp.ErrInfeasible
				}
				r.eq = append(r.eq[:i], r.eq[i+1:]...)
				r.eqRHS = append(r.eqRHS[:i], r.eqRHS[i+1:]...)
				r.pin(v, val)
				changed = true
				continue
			}
			i++
		}

		for i := 0; i < len(r.le); {
			v := r.singletonVarIn(r.le[i])
			if v < 0 {
				i++
				continue
			}
			bound := r.leRHS[i] / r.le[i][v]
			if r.le[i][v] > 0 {
				if bound < r.upper[v] {
					r.upper[v] = bound
				}
			} else if bound > r.lower[v] {
				r.lower[v] = bound
			}
			if r.lower[v] > r.upper[v]+feasEps {
				return lp.ErrInfeasible
			}
			r.le = append(r.le[:i], r.le[i+1:]...)
			r.leRHS = append(r.leRHS[:i], r.leRHS[i+1:]...)
			changed = true
		}
	}
	return r.dropNullRows()
}

// pin fixes variable j at val and folds it into the row constants.
func (r *relaxation) pin(j int, val float64) {
	r.removed[j] = true
	r.value[j] = val
	fold := func(rows [][]float64, rhs []float64) {
		for k := range rows {
			if rows[k][j] != 0 {
				rhs[k] -= rows[k][j] * val
				rows[k][j] = 0
			}
		}
	}
	fold(r.eq, r.eqRHS)
	fold(r.le, r.leRHS)
	r.c[j] = 0
}

// freeVarIn returns a continuous variable with infinite bounds on both
// sides and a usable pivot in the row, or -1.
func (r *relaxation) freeVarIn(row []float64) int {
	for j, coef := range row {
		if r.removed[j] || r.integer[j] || math.Abs(coef) <= coefEps {
			continue
		}
		if math.IsInf(r.lower[j], -1) && math.IsInf(r.upper[j], 1) {
			return j
		}
	}
	return -1
}

// singletonVarIn returns the row's only variable, or -1 when the row
// holds none or several.
func (r *relaxation) singletonVarIn(row []float64) int {
	at := -1
	for j, coef := range row {
		if r.removed[j] || math.Abs(coef) <= coefEps {
			continue
		}
		if at >= 0 {
			return -1
		}
		at = j
	}
	return at
}

// eliminate substitutes variable v out of every row and the objective
// using equality row i, then drops the row. A free variable places no
// bound of its own, so the substitution preserves the feasible set.
func (r *relaxation) eliminate(i, v int) {
	row := r.eq[i]
	rhs := r.eqRHS[i]
	pivot := row[v]
	r.eq = append(r.eq[:i], r.eq[i+1:]...)
	r.eqRHS = append(r.eqRHS[:i], r.eqRHS[i+1:]...)
	r.elims = append(r.elims, elimination{v: v, pivot: pivot, row: row, rhs: rhs})
	r.removed[v] = true

	sub := func(rows [][]float64, rhss []float64) {
		for k := range rows {
			f := rows[k][v] / pivot
			if f == 0 {
				continue
			}
			for j := range rows[k] {
				rows[k][j] -= f * row[j]
			}
			rows[k][v] = 0
			rhss[k] -= f * rhs
		}
	}
	sub(r.eq, r.eqRHS)
	sub(r.le, r.leRHS)

	// The constant part of the objective substitution is dropped; the
	// caller recomputes the objective from the recovered assignment.
	if f := r.c[v] / pivot; f != 0 {
		for j := range r.c {
			r.c[j] -= f * row[j]
		}
		r.c[v] = 0
	}
}

// dropNullRows removes rows the reductions emptied, rejecting the
// relaxation when a dropped row was unsatisfiable.
func (r *relaxation) dropNullRows() error {
	null := func(row []float64) bool {
		for _, coef := range row {
			if math.Abs(coef) > coefEps {
				return false
			}
		}
		return true
	}
	for i := 0; i < len(r.eq); {
		if !null(r.eq[i]) {
			i++
			continue
		}
		if math.Abs(r.eqRHS[i]) > feasEps {
			return lp.ErrInfeasible
		}
		r.eq = append(r.eq[:i], r.eq[i+1:]...)
		r.eqRHS = append(r.eqRHS[:i], r.eqRHS[i+1:]...)
	}
	for i := 0; i < len(r.le); {
		if !null(r.le[i]) {
			i++
			continue
		}
		if r.leRHS[i] < -feasEps {
			return lp.ErrInfeasible
		}
		r.le = append(r.le[:i], r.le[i+1:]...)
		r.leRHS = append(r.leRHS[:i], r.leRHS[i+1:]...)
	}
	return nil
}

// Column transforms onto the nonnegative orthant.
const (
	colShifted = iota // y = x - lower
	colNegated        // y = upper - x
	colSplit          // x = y+ - y-
)

// solve converts the reduced relaxation to standard form and runs the
// simplex. Each variable is shifted onto [0, upper-lower] so a box bound
// costs one slack row instead of the two rows lp.Convert would emit, and
// only genuinely free columns are split.
func (r *relaxation) solve(tol float64) ([]float64, error) {
	kind := make([]int, r.nVar)
	col := make([]int, r.nVar)
	cols := 0
	var ubVars []int
	for j := 0; j < r.nVar; j++ {
		col[j] = -1
		if r.removed[j] {
			continue
		}
		switch {
		case !math.IsInf(r.lower[j], -1):
			kind[j], col[j] = colShifted, cols
			cols++
			if !math.IsInf(r.upper[j], 1) {
				ubVars = append(ubVars, j)
			}
		case !math.IsInf(r.upper[j], 1):
			kind[j], col[j] = colNegated, cols
			cols++
		default:
			kind[j], col[j] = colSplit, cols
			cols += 2
		}
	}

	if cols == 0 {
		// Fully determined by the reductions.
		return r.recover(make([]float64, r.nVar)), nil
	}
	rows := len(r.eq) + len(r.le) + len(ubVars)
	if rows == 0 {
		return r.solveBoundsOnly()
	}

	total := cols + len(r.le) + len(ubVars)
	a := mat.NewDense(rows, total, nil)
	b := make([]float64, rows)
	cStd := make([]float64, total)

	place := func(i, j int, coef float64) float64 {
		switch kind[j] {
		case colShifted:
			a.Set(i, col[j], coef)
			return coef * r.lower[j]
		case colNegated:
			a.Set(i, col[j], -coef)
			return coef * r.upper[j]
		default:
			a.Set(i, col[j], coef)
			a.Set(i, col[j]+1, -coef)
			return 0
		}
	}
	fill := func(i int, row []float64, rhs float64) {
		for j, coef := range row {
			if coef == 0 || r.removed[j] {
				continue
			}
			rhs -= place(i, j, coef)
		}
		b[i] = rhs
	}

	at := 0
	for i := range r.eq {
		fill(at, r.eq[i], r.eqRHS[i])
		at++
	}
	slack := cols
	for i := range r.le {
		fill(at, r.le[i], r.leRHS[i])
		a.Set(at, slack, 1)
		at++
		slack++
	}
	for _, j := range ubVars {
		a.Set(at, col[j], 1)
		a.Set(at, slack, 1)
		b[at] = r.upper[j] - r.lower[j]
		at++
		slack++
	}

	for j := 0; j < r.nVar; j++ {
		if r.removed[j] || r.c[j] == 0 {
			continue
		}
		switch kind[j] {
		case colShifted:
			cStd[col[j]] += r.c[j]
		case colNegated:
			cStd[col[j]] -= r.c[j]
		default:
			cStd[col[j]] += r.c[j]
			cStd[col[j]+1] -= r.c[j]
		}
	}

	_, xStd, err := simplexSolve(cStd, a, b, tol)
	if err != nil {
		return nil, err
	}

	x := make([]float64, r.nVar)
	for j := 0; j < r.nVar; j++ {
		if r.removed[j] {
			continue
		}
		switch kind[j] {
		case colShifted:
			x[j] = xStd[col[j]] + r.lower[j]
		case colNegated:
			x[j] = r.upper[j] - xStd[col[j]]
		default:
			x[j] = xStd[col[j]] - xStd[col[j]+1]
		}
	}
	return r.recover(x), nil
}

// solveBoundsOnly handles the rowless case: every surviving variable
// sits at whichever bound its cost favors.
func (r *relaxation) solveBoundsOnly() ([]float64, error) {
	x := make([]float64, r.nVar)
	for j := 0; j < r.nVar; j++ {
		if r.removed[j] {
			continue
		}
		switch {
		case r.c[j] > 0:
			if math.IsInf(r.lower[j], -1) {
				return nil, lp.ErrUnbounded
			}
			x[j] = r.lower[j]
		case r.c[j] < 0:
			if math.IsInf(r.upper[j], 1) {
				return nil, lp.ErrUnbounded
			}
			x[j] = r.upper[j]
		default:
			switch {
			case !math.IsInf(r.lower[j], -1):
				x[j] = r.lower[j]
			case !math.IsInf(r.upper[j], 1):
				x[j] = r.upper[j]
			}
		}
	}
	return r.recover(x), nil
}

// recover completes the assignment: pinned variables take their value
// and eliminated variables back-substitute in reverse elimination order,
// so each stored row only references values already known.
func (r *relaxation) recover(x []float64) []float64 {
	for j := 0; j < r.nVar; j++ {
		if r.removed[j] {
			x[j] = r.value[j]
		}
	}
	for k := len(r.elims) - 1; k >= 0; k-- {
		e := r.elims[k]
		sum := e.rhs
		for j, coef := range e.row {
			if j == e.v || coef == 0 {
				continue
			}
			sum -= coef * x[j]
		}
		x[e.v] = sum / e.pivot
	}
	return x
}
