// Package metrics defines the observability events emitted by the
// planning pipeline and the sink contract concrete recorders implement.
package metrics

import "time"

// SolveEvent records one MILP solve. Duration is an observability
// signal only; it never feeds back into the optimization.
type SolveEvent struct {
	Period   int
	Steps    int
	Status   string
	Duration time.Duration
}

// PeriodEvent records the outcome of one completed period.
type PeriodEvent struct {
	RunID              string
	Period             int
	Start              time.Time
	FinalSOC           float64
	CostWithoutBattery float64
	CostWithBattery    float64
	MoneySaved         float64
}

// RunEvent records the aggregates of a completed horizon run.
type RunEvent struct {
	RunID              string
	Periods            int
	CostWithoutBattery float64
	CostWithBattery    float64
	ScorePercent       float64
	MoneySaved         float64
}

// Sink records planning events for observability purposes.
type Sink interface {
	RecordSolve(SolveEvent) error
	RecordPeriod(PeriodEvent) error
	RecordRun(RunEvent) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) RecordSolve(SolveEvent) error   { return nil }
func (NopSink) RecordPeriod(PeriodEvent) error { return nil }
func (NopSink) RecordRun(RunEvent) error       { return nil }
