package metrics

import (
	"errors"

	coremetrics "github.com/ncharlet/bessopt/core/metrics"
)

// MultiSink fans events out to several sinks, joining their errors.
type MultiSink struct {
	sinks []coremetrics.Sink
}

// NewMultiSink combines the given sinks into one.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordSolve(ev coremetrics.SolveEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordSolve(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordPeriod(ev coremetrics.PeriodEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordPeriod(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordRun(ev coremetrics.RunEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordRun(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
