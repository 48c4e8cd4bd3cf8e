package assessment

import (
	"fmt"

	"github.com/dr-abraham74/paracetamol-OD/pkg/labref"
)

// NomogramPoint is one anchor on the acute treatment line: the plasma
// paracetamol concentration at a whole hour after ingestion.
type NomogramPoint struct {
	Hour     int     `json:"hour"`
	LevelMgL float64 `json:"level_mg_l"`
}

// DosingBand maps a body-weight range onto an infusion protocol. A nil
// MaxKg marks the open-ended top band.
type DosingBand struct {
	MinKg    float64        `json:"min_kg"`
	MaxKg    *float64       `json:"max_kg,omitempty"`
	Protocol DosingProtocol `json:"protocol"`
}

// ParameterSet carries every configurable constant the rules read. The
// engine takes a copy at construction, so changing a set after NewEngine
// has no effect on a running engine.
type ParameterSet struct {
	HighRiskDoseMgPerKg        float64 `json:"high_risk_dose_mg_per_kg"`
	HighRiskElapsedHours       float64 `json:"high_risk_elapsed_hours"`
	SignificantDoseMgPerKg     float64 `json:"significant_dose_mg_per_kg"`
	BloodTestWaitHours         float64 `json:"blood_test_wait_hours"`
	LatePresentationHours      float64 `json:"late_presentation_hours"`
	LicensedDose24hMg          float64 `json:"licensed_dose_24h_mg"`
	StaggeredLevelCutoffMgL    float64 `json:"staggered_level_cutoff_mg_l"`
	LateLevelCutoffMgL         float64 `json:"late_level_cutoff_mg_l"`
	TherapeuticLevelCutoffMgL  float64 `json:"therapeutic_level_cutoff_mg_l"`
	ContinuationLevelCutoffMgL float64 `json:"continuation_level_cutoff_mg_l"`
	INRUpperLimit              float64 `json:"inr_upper_limit"`
	ALTUpperLimitIuL           int     `json:"alt_upper_limit_iu_l"`

	Nomogram    []NomogramPoint `json:"nomogram"`
	DosingBands []DosingBand    `json:"dosing_bands"`
}

func fptr(v float64) *float64 { return &v }

func bptr(v bool) *bool { return &v }

// DefaultParameters returns the published rule set: the treatment
// nomogram between 4 and 15 hours, the weight-banded two-phase infusion
// table, and the dose and laboratory thresholds. Laboratory limits come
// from labref so the API and the rules agree on reference values.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		HighRiskDoseMgPerKg:        150,
		HighRiskElapsedHours:       7,
		SignificantDoseMgPerKg:     75,
		BloodTestWaitHours:         4,
		LatePresentationHours:      24,
		LicensedDose24hMg:          labref.LicensedDose24hMg,
		StaggeredLevelCutoffMgL:    labref.DetectionCutoffMgL,
		LateLevelCutoffMgL:         labref.DetectionCutoffMgL,
		TherapeuticLevelCutoffMgL:  labref.TherapeuticActionLevelMgL,
		ContinuationLevelCutoffMgL: labref.TherapeuticActionLevelMgL,
		INRUpperLimit:              labref.INRUpperLimit,
		ALTUpperLimitIuL:           labref.ALTUpperLimitIuL,

		Nomogram: []NomogramPoint{
			{Hour: 4, LevelMgL: 100},
			{Hour: 5, LevelMgL: 82},
			{Hour: 6, LevelMgL: 70},
			{Hour: 7, LevelMgL: 60},
			{Hour: 8, LevelMgL: 50},
			{Hour: 9, LevelMgL: 40},
			{Hour: 10, LevelMgL: 35},
			{Hour: 11, LevelMgL: 30},
			{Hour: 12, LevelMgL: 25},
			{Hour: 13, LevelMgL: 20},
			{Hour: 14, LevelMgL: 18},
			{Hour: 15, LevelMgL: 15},
		},

		// Two-phase regimen per weight band. First phase runs over 2 h,
		// second over 10 h; volumes include the 200 ml and 1000 ml diluent
		// bags plus 1 ml per 200 mg of concentrate. Weights above the top
		// band are dosed at the 110 kg ceiling.
		DosingBands: []DosingBand{
			{MinKg: 40, MaxKg: fptr(49), Protocol: DosingProtocol{
				WeightRangeLabel: "40-49 kg",
				FirstDoseMg:      4600, FirstVolumeMl: 223, FirstRateMlHr: 111.5,
				SecondDoseMg: 9000, SecondVolumeMl: 1045, SecondRateMlHr: 104.5,
			}},
			{MinKg: 50, MaxKg: fptr(59), Protocol: DosingProtocol{
				WeightRangeLabel: "50-59 kg",
				FirstDoseMg:      5600, FirstVolumeMl: 228, FirstRateMlHr: 114,
				SecondDoseMg: 11000, SecondVolumeMl: 1055, SecondRateMlHr: 105.5,
			}},
			{MinKg: 60, MaxKg: fptr(69), Protocol: DosingProtocol{
				WeightRangeLabel: "60-69 kg",
				FirstDoseMg:      6600, FirstVolumeMl: 233, FirstRateMlHr: 116.5,
				SecondDoseMg: 13000, SecondVolumeMl: 1065, SecondRateMlHr: 106.5,
			}},
			{MinKg: 70, MaxKg: fptr(79), Protocol: DosingProtocol{
				WeightRangeLabel: "70-79 kg",
				FirstDoseMg:      7600, FirstVolumeMl: 238, FirstRateMlHr: 119,
				SecondDoseMg: 15000, SecondVolumeMl: 1075, SecondRateMlHr: 107.5,
			}},
			{MinKg: 80, MaxKg: fptr(89), Protocol: DosingProtocol{
				WeightRangeLabel: "80-89 kg",
				FirstDoseMg:      8600, FirstVolumeMl: 243, FirstRateMlHr: 121.5,
				SecondDoseMg: 17000, SecondVolumeMl: 1085, SecondRateMlHr: 108.5,
			}},
			{MinKg: 90, MaxKg: fptr(99), Protocol: DosingProtocol{
				WeightRangeLabel: "90-99 kg",
				FirstDoseMg:      9600, FirstVolumeMl: 248, FirstRateMlHr: 124,
				SecondDoseMg: 19000, SecondVolumeMl: 1095, SecondRateMlHr: 109.5,
			}},
			{MinKg: 100, MaxKg: fptr(109), Protocol: DosingProtocol{
				WeightRangeLabel: "100-109 kg",
				FirstDoseMg:      10600, FirstVolumeMl: 253, FirstRateMlHr: 126.5,
				SecondDoseMg: 21000, SecondVolumeMl: 1105, SecondRateMlHr: 110.5,
			}},
			{MinKg: 110, Protocol: DosingProtocol{
				WeightRangeLabel: ">109 kg",
				FirstDoseMg:      11000, FirstVolumeMl: 255, FirstRateMlHr: 127.5,
				SecondDoseMg: 22000, SecondVolumeMl: 1110, SecondRateMlHr: 111,
			}},
		},
	}
}

// Validate checks that a parameter set is internally coherent before an
// engine is built from it. A set that passes cannot make the rule chain
// divide by zero, read an empty table, or invert a threshold ordering.
func (p *ParameterSet) Validate() error {
	if p.HighRiskDoseMgPerKg <= 0 {
		return fmt.Errorf("high_risk_dose_mg_per_kg must be positive, got %v", p.HighRiskDoseMgPerKg)
	}
	if p.SignificantDoseMgPerKg <= 0 {
		return fmt.Errorf("significant_dose_mg_per_kg must be positive, got %v", p.SignificantDoseMgPerKg)
	}
	if p.SignificantDoseMgPerKg > p.HighRiskDoseMgPerKg {
		return fmt.Errorf("significant_dose_mg_per_kg %v exceeds high_risk_dose_mg_per_kg %v",
			p.SignificantDoseMgPerKg, p.HighRiskDoseMgPerKg)
	}
	if p.HighRiskElapsedHours < 0 {
		return fmt.Errorf("high_risk_elapsed_hours must not be negative, got %v", p.HighRiskElapsedHours)
	}
	if p.BloodTestWaitHours <= 0 {
		return fmt.Errorf("blood_test_wait_hours must be positive, got %v", p.BloodTestWaitHours)
	}
	if p.LatePresentationHours <= p.BloodTestWaitHours {
		return fmt.Errorf("late_presentation_hours %v must exceed blood_test_wait_hours %v",
			p.LatePresentationHours, p.BloodTestWaitHours)
	}
	if p.LicensedDose24hMg <= 0 {
		return fmt.Errorf("licensed_dose_24h_mg must be positive, got %v", p.LicensedDose24hMg)
	}
	for name, v := range map[string]float64{
		"staggered_level_cutoff_mg_l":    p.StaggeredLevelCutoffMgL,
		"late_level_cutoff_mg_l":         p.LateLevelCutoffMgL,
		"therapeutic_level_cutoff_mg_l":  p.TherapeuticLevelCutoffMgL,
		"continuation_level_cutoff_mg_l": p.ContinuationLevelCutoffMgL,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if p.INRUpperLimit <= 0 {
		return fmt.Errorf("inr_upper_limit must be positive, got %v", p.INRUpperLimit)
	}
	if p.ALTUpperLimitIuL <= 0 {
		return fmt.Errorf("alt_upper_limit_iu_l must be positive, got %v", p.ALTUpperLimitIuL)
	}

	if len(p.Nomogram) < 2 {
		return fmt.Errorf("nomogram needs at least two points, got %d", len(p.Nomogram))
	}
	for i, pt := range p.Nomogram {
		if pt.LevelMgL <= 0 {
			return fmt.Errorf("nomogram point %d: level must be positive, got %v", i, pt.LevelMgL)
		}
		if i == 0 {
			continue
		}
		prev := p.Nomogram[i-1]
		if pt.Hour <= prev.Hour {
			return fmt.Errorf("nomogram hours must be strictly ascending: point %d hour %d after hour %d",
				i, pt.Hour, prev.Hour)
		}
		if pt.LevelMgL >= prev.LevelMgL {
			return fmt.Errorf("nomogram levels must be strictly descending: point %d level %v after %v",
				i, pt.LevelMgL, prev.LevelMgL)
		}
	}

	if len(p.DosingBands) == 0 {
		return fmt.Errorf("dosing table has no bands")
	}
	for i, b := range p.DosingBands {
		if b.Protocol.WeightRangeLabel == "" {
			return fmt.Errorf("dosing band %d has no label", i)
		}
		if b.MaxKg != nil && *b.MaxKg < b.MinKg {
			return fmt.Errorf("dosing band %q: max %v below min %v", b.Protocol.WeightRangeLabel, *b.MaxKg, b.MinKg)
		}
		if b.MaxKg == nil && i != len(p.DosingBands)-1 {
			return fmt.Errorf("dosing band %q is open-ended but not last", b.Protocol.WeightRangeLabel)
		}
		if i > 0 && b.MinKg <= p.DosingBands[i-1].MinKg {
			return fmt.Errorf("dosing bands must ascend by weight: band %q starts at %v", b.Protocol.WeightRangeLabel, b.MinKg)
		}
		for name, v := range map[string]float64{
			"first dose":    b.Protocol.FirstDoseMg,
			"first volume":  b.Protocol.FirstVolumeMl,
			"first rate":    b.Protocol.FirstRateMlHr,
			"second dose":   b.Protocol.SecondDoseMg,
			"second volume": b.Protocol.SecondVolumeMl,
			"second rate":   b.Protocol.SecondRateMlHr,
		} {
			if v <= 0 {
				return fmt.Errorf("dosing band %q: %s must be positive, got %v", b.Protocol.WeightRangeLabel, name, v)
			}
		}
	}
	if p.DosingBands[len(p.DosingBands)-1].MaxKg != nil {
		return fmt.Errorf("last dosing band must be open-ended")
	}
	return nil
}
