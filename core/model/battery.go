package model

import "fmt"

// ConfigurationError reports an invalid battery specification.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("battery configuration: %s %s", e.Field, e.Reason)
}

// BatterySpec holds the physical parameters of a stationary battery.
// All energies are in kWh, powers in kW, efficiencies and SOC bounds as
// fractions. The zero value is not usable; construct with NewBatterySpec
// so the bounds are checked once and the value can be shared read-only.
type BatterySpec struct {
	capacityKWh         float64
	chargePowerKW       float64
	dischargePowerKW    float64
	chargeEfficiency    float64
	dischargeEfficiency float64
	minSOCFraction      float64
	maxSOCFraction      float64
}

// NewBatterySpec validates the parameters and returns an immutable spec.
func NewBatterySpec(capacityKWh, chargePowerKW, dischargePowerKW, chargeEff, dischargeEff, minSOC, maxSOC float64) (BatterySpec, error) {
	if capacityKWh < 0 {
		return BatterySpec{}, &ConfigurationError{Field: "capacity_kwh", Reason: "must not be negative"}
	}
	if chargePowerKW < 0 {
		return BatterySpec{}, &ConfigurationError{Field: "charge_power_kw", Reason: "must not be negative"}
	}
	if dischargePowerKW < 0 {
		return BatterySpec{}, &ConfigurationError{Field: "discharge_power_kw", Reason: "must not be negative"}
	}
	if chargeEff <= 0 || chargeEff > 1 {
		return BatterySpec{}, &ConfigurationError{Field: "charge_efficiency", Reason: "must be in (0,1]"}
	}
	if dischargeEff <= 0 || dischargeEff > 1 {
		return BatterySpec{}, &ConfigurationError{Field: "discharge_efficiency", Reason: "must be in (0,1]"}
	}
	if minSOC < 0 {
		return BatterySpec{}, &ConfigurationError{Field: "min_soc_fraction", Reason: "must not be negative"}
	}
	if maxSOC > 1 {
		return BatterySpec{}, &ConfigurationError{Field: "max_soc_fraction", Reason: "must not exceed 1"}
	}
	if minSOC >= maxSOC {
		return BatterySpec{}, &ConfigurationError{Field: "min_soc_fraction", Reason: "must be strictly below max_soc_fraction"}
	}
	return BatterySpec{
		capacityKWh:         capacityKWh,
		chargePowerKW:       chargePowerKW,
		dischargePowerKW:    dischargePowerKW,
		chargeEfficiency:    chargeEff,
		dischargeEfficiency: dischargeEff,
		minSOCFraction:      minSOC,
		maxSOCFraction:      maxSOC,
	}, nil
}

func (b BatterySpec) CapacityKWh() float64         { return b.capacityKWh }
func (b BatterySpec) ChargePowerKW() float64       { return b.chargePowerKW }
func (b BatterySpec) DischargePowerKW() float64    { return b.dischargePowerKW }
func (b BatterySpec) ChargeEfficiency() float64    { return b.chargeEfficiency }
func (b BatterySpec) DischargeEfficiency() float64 { return b.dischargeEfficiency }
func (b BatterySpec) MinSOCFraction() float64      { return b.minSOCFraction }
func (b BatterySpec) MaxSOCFraction() float64      { return b.maxSOCFraction }

// MinSOCKWh is the lowest admissible stored energy.
func (b BatterySpec) MinSOCKWh() float64 { return b.minSOCFraction * b.capacityKWh }

// MaxSOCKWh is the highest admissible stored energy.
func (b BatterySpec) MaxSOCKWh() float64 { return b.maxSOCFraction * b.capacityKWh }

// ClampSOC bounds a stored-energy value to the admissible SOC window.
func (b BatterySpec) ClampSOC(soc float64) float64 {
	if soc < b.MinSOCKWh() {
		return b.MinSOCKWh()
	}
	if soc > b.MaxSOCKWh() {
		return b.MaxSOCKWh()
	}
	return soc
}

// Parameters returns a descriptive record of the battery for reporting.
func (b BatterySpec) Parameters() map[string]float64 {
	return map[string]float64{
		"capacity_kwh":         b.capacityKWh,
		"charge_power_kw":      b.chargePowerKW,
		"discharge_power_kw":   b.dischargePowerKW,
		"charge_efficiency":    b.chargeEfficiency,
		"discharge_efficiency": b.dischargeEfficiency,
		"min_soc_kwh":          b.MinSOCKWh(),
		"max_soc_kwh":          b.MaxSOCKWh(),
	}
}
