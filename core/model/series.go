package model

import (
	"fmt"
	"time"
)

// DataGapError reports a missing or misaligned timestep in a load series.
type DataGapError struct {
	Index    int
	Expected time.Time
	Got      time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("series gap at index %d: expected %s, got %s",
		e.Index, e.Expected.Format(time.RFC3339), e.Got.Format(time.RFC3339))
}

// TimeStep is one observation of the site: consumed and generated energy
// over the step, and the grid tariffs that applied.
type TimeStep struct {
	Time      time.Time
	DemandKWh float64
	GenKWh    float64
	BuyPrice  float64
	SellPrice float64
}

// NetLoad is demand minus generation; positive is a deficit, negative a
// surplus.
func (s TimeStep) NetLoad() float64 { return s.DemandKWh - s.GenKWh }

// PositiveLoad is the deficit part of the net load (>= 0).
func (s TimeStep) PositiveLoad() float64 {
	if n := s.NetLoad(); n > 0 {
		return n
	}
	return 0
}

// NegativeLoad is the surplus part of the net load (<= 0).
func (s TimeStep) NegativeLoad() float64 {
	if n := s.NetLoad(); n < 0 {
		return n
	}
	return 0
}

// Series is an ordered load/generation/price sequence at a fixed step
// duration. Construct with NewSeries so alignment is checked once.
type Series struct {
	steps []TimeStep
	dt    time.Duration
}

// NewSeries validates that the steps are contiguous at the given duration.
func NewSeries(steps []TimeStep, dt time.Duration) (*Series, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("step duration must be positive, got %s", dt)
	}
	for i := 1; i < len(steps); i++ {
		want := steps[i-1].Time.Add(dt)
		if !steps[i].Time.Equal(want) {
			return nil, &DataGapError{Index: i, Expected: want, Got: steps[i].Time}
		}
	}
	cp := make([]TimeStep, len(steps))
	copy(cp, steps)
	return &Series{steps: cp, dt: dt}, nil
}

// Len returns the number of steps.
func (s *Series) Len() int { return len(s.steps) }

// StepDuration returns the fixed step duration.
func (s *Series) StepDuration() time.Duration { return s.dt }

// StepHours returns the step duration in hours, the unit power limits
// are converted with.
func (s *Series) StepHours() float64 { return s.dt.Hours() }

// At returns the step at index i.
func (s *Series) At(i int) TimeStep { return s.steps[i] }

// Window returns the half-open slice [from, to) as an immutable view.
func (s *Series) Window(from, to int) (PeriodWindow, error) {
	if from < 0 || to > len(s.steps) || from > to {
		return PeriodWindow{}, fmt.Errorf("window [%d,%d) out of range for %d steps", from, to, len(s.steps))
	}
	return PeriodWindow{steps: s.steps[from:to], dt: s.dt}, nil
}

// MonthlyWindows slices the series at calendar-month boundaries, in
// chronological order. A series shorter than a month yields one window.
func (s *Series) MonthlyWindows() []PeriodWindow {
	var windows []PeriodWindow
	start := 0
	for i := 1; i < len(s.steps); i++ {
		prev, cur := s.steps[i-1].Time, s.steps[i].Time
		if cur.Month() != prev.Month() || cur.Year() != prev.Year() {
			windows = append(windows, PeriodWindow{steps: s.steps[start:i], dt: s.dt})
			start = i
		}
	}
	if start < len(s.steps) {
		windows = append(windows, PeriodWindow{steps: s.steps[start:], dt: s.dt})
	}
	return windows
}

// PeriodWindow is an immutable view over one optimization period of a
// Series.
type PeriodWindow struct {
	steps []TimeStep
	dt    time.Duration
}

// Len returns the number of steps in the window.
func (w PeriodWindow) Len() int { return len(w.steps) }

// At returns the step at index t within the window.
func (w PeriodWindow) At(t int) TimeStep { return w.steps[t] }

// StepHours returns the step duration in hours.
func (w PeriodWindow) StepHours() float64 { return w.dt.Hours() }

// Start returns the timestamp of the first step, or the zero time for an
// empty window.
func (w PeriodWindow) Start() time.Time {
	if len(w.steps) == 0 {
		return time.Time{}
	}
	return w.steps[0].Time
}

// BaselineCost is the grid cost of the window with no battery: deficits
// bought at the buy price, surpluses sold at the sell price.
func (w PeriodWindow) BaselineCost() float64 {
	var cost float64
	for _, s := range w.steps {
		cost += s.BuyPrice*s.PositiveLoad() + s.SellPrice*s.NegativeLoad()
	}
	return cost
}
