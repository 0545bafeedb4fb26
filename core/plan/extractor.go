package plan

import (
	"fmt"
	"math"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
)

// DegenerateCostError reports a period whose no-battery baseline cost is
// zero, leaving the relative score undefined.
type DegenerateCostError struct {
	Start string
}

func (e *DegenerateCostError) Error() string {
	return fmt.Sprintf("baseline cost is zero for period starting %s: score undefined", e.Start)
}

// Extract unpacks a solved model into a period result and derives the
// cost and score scalars.
func Extract(window model.PeriodWindow, idx []StepIndex, sol *milp.Solution, initialSOC float64) (*PeriodResult, error) {
	res := &PeriodResult{
		InitialSOC:    initialSOC,
		FinalSOC:      initialSOC,
		SolveDuration: sol.Duration,
	}
	if window.Len() == 0 {
		// Nothing to dispatch: both cost figures are zero and the SOC
		// carries through unchanged.
		return res, nil
	}

	res.Steps = make([]StepDispatch, window.Len())
	for t := 0; t < window.Len(); t++ {
		step := window.At(t)
		ix := idx[t]
		v := sol.Values
		res.Steps[t] = StepDispatch{
			Time:            step.Time,
			SOC:             v[ix.SOC],
			DeltaCharge:     v[ix.DeltaCharge],
			DeltaDischarge:  v[ix.DeltaDischarge],
			GridCharge:      v[ix.GridCharge],
			PVCharge:        v[ix.PVCharge],
			LocalDischarge:  v[ix.LocalDischarge],
			ExportDischarge: v[ix.ExportDischarge],
			NetImport:       v[ix.NetImport],
			NetExport:       v[ix.NetExport],
			Charging:        v[ix.ChargeInd] > 0.5,
			Discharging:     v[ix.DischargeInd] > 0.5,
		}
		res.CostWithBattery += step.BuyPrice*v[ix.NetImport] + step.SellPrice*v[ix.NetExport]
	}
	res.FinalSOC = res.Steps[len(res.Steps)-1].SOC
	res.CostWithoutBattery = window.BaselineCost()

	if res.CostWithoutBattery == 0 {
		return nil, &DegenerateCostError{Start: window.Start().String()}
	}
	res.ScorePercent = (res.CostWithBattery - res.CostWithoutBattery) / math.Abs(res.CostWithoutBattery) * 100
	res.MoneySaved = math.Abs(res.CostWithoutBattery - res.CostWithBattery)
	return res, nil
}
