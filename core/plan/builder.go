// Package plan contains the rolling-horizon dispatch optimization: the
// per-period MILP construction, result extraction and the sequential
// SOC-chained driver.
package plan

import (
	"fmt"

	"github.com/ncharlet/bessopt/core/milp"
	"github.com/ncharlet/bessopt/core/model"
)

// DefaultBigM is the disjunctive constant used when none is configured.
// It must dominate any realistic per-step SOC delta without pushing the
// simplex into ill-conditioning.
const DefaultBigM = 10000

// Builder constructs the per-period MILP from a battery spec, a period
// window and an initial SOC. It is a pure function of its inputs.
type Builder struct {
	Spec model.BatterySpec
	BigM float64
}

// stepVars holds the variable indices for one timestep.
type stepVars struct {
	soc          int
	dCharge      int
	dDischarge   int
	gridCharge   int
	pvCharge     int
	localDis     int
	exportDis    int
	netImport    int
	netExport    int
	chargeInd    int
	dischargeInd int
}

// Build assembles the dispatch MILP for the window. The returned index
// map locates each step's variables for extraction.
func (b Builder) Build(window model.PeriodWindow, initialSOC float64) (*milp.Model, []StepIndex, error) {
	spec := b.Spec
	if initialSOC < spec.MinSOCKWh()-1e-9 || initialSOC > spec.MaxSOCKWh()+1e-9 {
		return nil, nil, fmt.Errorf("initial soc %.3f outside [%.3f, %.3f]",
			initialSOC, spec.MinSOCKWh(), spec.MaxSOCKWh())
	}
	bigM := b.BigM
	if bigM == 0 {
		bigM = DefaultBigM
	}
	dt := window.StepHours()

	m := milp.NewModel()
	n := window.Len()
	vars := make([]stepVars, n)
	idx := make([]StepIndex, n)
	var objective []milp.Term

	for t := 0; t < n; t++ {
		step := window.At(t)
		v := stepVars{
			soc:          m.AddVariable(fmt.Sprintf("soc_%d", t), spec.MinSOCKWh(), spec.MaxSOCKWh()),
			dCharge:      m.AddFreeVariable(fmt.Sprintf("delta_charge_%d", t)),
			dDischarge:   m.AddFreeVariable(fmt.Sprintf("delta_discharge_%d", t)),
			gridCharge:   m.AddVariable(fmt.Sprintf("grid_charge_%d", t), 0, spec.ChargePowerKW()*dt),
			pvCharge:     m.AddVariable(fmt.Sprintf("pv_charge_%d", t), 0, spec.ChargePowerKW()*dt),
			localDis:     m.AddVariable(fmt.Sprintf("local_discharge_%d", t), -spec.DischargePowerKW()*dt, 0),
			exportDis:    m.AddVariable(fmt.Sprintf("export_discharge_%d", t), -spec.DischargePowerKW()*dt, 0),
			netImport:    m.AddFreeVariable(fmt.Sprintf("net_import_%d", t)),
			netExport:    m.AddFreeVariable(fmt.Sprintf("net_export_%d", t)),
			chargeInd:    m.AddBinary(fmt.Sprintf("charge_ind_%d", t)),
			dischargeInd: m.AddBinary(fmt.Sprintf("discharge_ind_%d", t)),
		}
		vars[t] = v
		idx[t] = StepIndex{
			SOC: v.soc, DeltaCharge: v.dCharge, DeltaDischarge: v.dDischarge,
			GridCharge: v.gridCharge, PVCharge: v.pvCharge,
			LocalDischarge: v.localDis, ExportDischarge: v.exportDis,
			NetImport: v.netImport, NetExport: v.netExport,
			ChargeInd: v.chargeInd, DischargeInd: v.dischargeInd,
		}

		// Objective: buy cost of imports plus sell revenue of exports
		// (net_export <= 0, so its term is a negative cost).
		objective = append(objective,
			milp.Term{Var: v.netImport, Coeff: step.BuyPrice},
			milp.Term{Var: v.netExport, Coeff: step.SellPrice},
		)

		// SOC balance: soc[t] = soc[t-1] + delta_charge + delta_discharge.
		balance := []milp.Term{
			{Var: v.soc, Coeff: 1},
			{Var: v.dCharge, Coeff: -1},
			{Var: v.dDischarge, Coeff: -1},
		}
		rhs := 0.0
		if t == 0 {
			rhs = initialSOC
		} else {
			balance = append(balance, milp.Term{Var: vars[t-1].soc, Coeff: -1})
		}
		m.AddConstraint(fmt.Sprintf("soc_balance_%d", t), balance, milp.EQ, rhs)

		// Big-M mode coupling. The indicators are cross-wired by design:
		// setting discharge_ind caps delta_charge to zero and setting
		// charge_ind floors delta_discharge to zero, while the
		// exclusivity row keeps both modes from engaging at once.
		m.AddConstraint(fmt.Sprintf("charge_lb_%d", t), []milp.Term{
			{Var: v.dCharge, Coeff: 1}, {Var: v.chargeInd, Coeff: bigM},
		}, milp.GE, 0)
		m.AddConstraint(fmt.Sprintf("charge_ub_%d", t), []milp.Term{
			{Var: v.dCharge, Coeff: 1}, {Var: v.dischargeInd, Coeff: bigM},
		}, milp.LE, bigM)
		m.AddConstraint(fmt.Sprintf("discharge_ub_%d", t), []milp.Term{
			{Var: v.dDischarge, Coeff: 1}, {Var: v.dischargeInd, Coeff: -bigM},
		}, milp.LE, 0)
		m.AddConstraint(fmt.Sprintf("discharge_lb_%d", t), []milp.Term{
			{Var: v.dDischarge, Coeff: 1}, {Var: v.chargeInd, Coeff: -bigM},
		}, milp.GE, -bigM)
		m.AddConstraint(fmt.Sprintf("mode_excl_%d", t), []milp.Term{
			{Var: v.chargeInd, Coeff: 1}, {Var: v.dischargeInd, Coeff: 1},
		}, milp.LE, 1)

		// Charge energy drawn from grid and PV, net of charge losses.
		m.AddConstraint(fmt.Sprintf("charge_split_%d", t), []milp.Term{
			{Var: v.gridCharge, Coeff: 1},
			{Var: v.pvCharge, Coeff: 1},
			{Var: v.dCharge, Coeff: -1 / spec.ChargeEfficiency()},
		}, milp.EQ, 0)

		// Discharge energy delivered locally and exported, net of losses.
		m.AddConstraint(fmt.Sprintf("discharge_split_%d", t), []milp.Term{
			{Var: v.localDis, Coeff: 1},
			{Var: v.exportDis, Coeff: 1},
			{Var: v.dDischarge, Coeff: -spec.DischargeEfficiency()},
		}, milp.EQ, 0)

		// Power limits over the step.
		m.AddConstraint(fmt.Sprintf("charge_limit_%d", t), []milp.Term{
			{Var: v.gridCharge, Coeff: 1}, {Var: v.pvCharge, Coeff: 1},
		}, milp.LE, spec.ChargePowerKW()*dt)
		m.AddConstraint(fmt.Sprintf("discharge_limit_%d", t), []milp.Term{
			{Var: v.localDis, Coeff: 1}, {Var: v.exportDis, Coeff: 1},
		}, milp.GE, -spec.DischargePowerKW()*dt)

		// PV charging cannot exceed the local surplus, and local
		// discharge cannot serve more than the local deficit.
		m.AddConstraint(fmt.Sprintf("pv_avail_%d", t), []milp.Term{
			{Var: v.pvCharge, Coeff: 1},
		}, milp.LE, -step.NegativeLoad())
		m.AddConstraint(fmt.Sprintf("local_need_%d", t), []milp.Term{
			{Var: v.localDis, Coeff: 1},
		}, milp.GE, -step.PositiveLoad())

		// Grid exchange accounting.
		m.AddConstraint(fmt.Sprintf("net_import_%d", t), []milp.Term{
			{Var: v.netImport, Coeff: 1},
			{Var: v.gridCharge, Coeff: -1},
			{Var: v.localDis, Coeff: -1},
		}, milp.EQ, step.PositiveLoad())
		m.AddConstraint(fmt.Sprintf("net_export_%d", t), []milp.Term{
			{Var: v.netExport, Coeff: 1},
			{Var: v.pvCharge, Coeff: -1},
			{Var: v.exportDis, Coeff: -1},
		}, milp.EQ, step.NegativeLoad())
	}

	m.SetObjective(objective)
	return m, idx, nil
}

// StepIndex locates one timestep's variables inside the built model.
type StepIndex struct {
	SOC             int
	DeltaCharge     int
	DeltaDischarge  int
	GridCharge      int
	PVCharge        int
	LocalDischarge  int
	ExportDischarge int
	NetImport       int
	NetExport       int
	ChargeInd       int
	DischargeInd    int
}
