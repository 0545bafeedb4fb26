package plan

import (
	"time"

	"github.com/google/uuid"
)

// Channel identifies one of the per-step decision channels, in the fixed
// order results are reported in.
type Channel int

const (
	ChannelSOC Channel = iota
	ChannelDeltaCharge
	ChannelDeltaDischarge
	ChannelGridCharge
	ChannelPVCharge
	ChannelLocalDischarge
	ChannelExportDischarge
	ChannelNetImport
	ChannelNetExport
	numChannels
)

var channelNames = [numChannels]string{
	"soc",
	"delta_charge",
	"delta_discharge",
	"grid_charge_energy",
	"pv_charge_energy",
	"local_discharge_energy",
	"export_discharge_energy",
	"net_import",
	"net_export",
}

func (c Channel) String() string {
	if c < 0 || c >= numChannels {
		return "unknown"
	}
	return channelNames[c]
}

// ChannelNames returns the fixed reporting order of the decision channels.
func ChannelNames() []string { return channelNames[:] }

// StepDispatch is the solved dispatch of one timestep.
type StepDispatch struct {
	Time            time.Time
	SOC             float64
	DeltaCharge     float64
	DeltaDischarge  float64
	GridCharge      float64
	PVCharge        float64
	LocalDischarge  float64
	ExportDischarge float64
	NetImport       float64
	NetExport       float64
	Charging        bool
	Discharging     bool
}

// Channels returns the step's decision values in the fixed channel order.
func (s StepDispatch) Channels() [9]float64 {
	return [9]float64{
		s.SOC, s.DeltaCharge, s.DeltaDischarge,
		s.GridCharge, s.PVCharge,
		s.LocalDischarge, s.ExportDischarge,
		s.NetImport, s.NetExport,
	}
}

// PeriodResult is the solved dispatch of one optimization period.
type PeriodResult struct {
	Steps              []StepDispatch
	InitialSOC         float64
	FinalSOC           float64
	CostWithoutBattery float64
	CostWithBattery    float64
	ScorePercent       float64
	MoneySaved         float64
	SolveDuration      time.Duration
}

// HorizonRun is the SOC-chained concatenation of period results over the
// full planning horizon, with aggregates derived from the accumulated
// costs rather than averaged per-period scores.
type HorizonRun struct {
	RunID   uuid.UUID
	Periods []PeriodResult

	CostWithoutBattery float64
	CostWithBattery    float64
	ScorePercent       float64
	MoneySaved         float64
}

// Steps flattens all period results into one horizon-long series.
func (r *HorizonRun) Steps() []StepDispatch {
	var out []StepDispatch
	for _, p := range r.Periods {
		out = append(out, p.Steps...)
	}
	return out
}

// FinalSOC is the ending SOC of the last period, or zero for an empty run.
func (r *HorizonRun) FinalSOC() float64 {
	if len(r.Periods) == 0 {
		return 0
	}
	return r.Periods[len(r.Periods)-1].FinalSOC
}
