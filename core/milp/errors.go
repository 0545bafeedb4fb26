package milp

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned when the solving capability cannot be invoked.
var ErrUnavailable = errors.New("milp: solver unavailable")

// ErrInfeasible is returned when the model has no feasible point.
var ErrInfeasible = errors.New("milp: model infeasible")

// ErrTimeout is returned when the solve exceeded its configured deadline.
var ErrTimeout = errors.New("milp: solve timed out")

// SolverError wraps any other solve failure.
type SolverError struct {
	Reason string
	Err    error
}

func (e *SolverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("milp: solve failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("milp: solve failed: %s", e.Reason)
}

func (e *SolverError) Unwrap() error { return e.Err }
