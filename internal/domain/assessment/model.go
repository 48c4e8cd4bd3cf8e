package assessment

import (
	"fmt"
	"math"
)

// Recommendation is the closed set of triage outcomes an initial
// assessment can produce.
type Recommendation string

const (
	// RecommendationStartNacDelayBloods instructs clinicians to start
	// acetylcysteine immediately and take bloods after the standard wait.
	RecommendationStartNacDelayBloods Recommendation = "START_NAC_DELAY_BLOODS"
	// RecommendationDelayBloodsSelfHarm defers blood sampling until levels
	// become interpretable; no treatment is started in the meantime.
	RecommendationDelayBloodsSelfHarm Recommendation = "DELAY_BLOODS_SELF_HARM"
	// RecommendationTakeBloodsDecide asks for an immediate paracetamol level
	// so the nomogram can decide treatment.
	RecommendationTakeBloodsDecide Recommendation = "TAKE_BLOODS_DECIDE"
	// RecommendationLatePresentation covers presentations beyond the window
	// in which the nomogram applies; clinical signs drive the decision.
	RecommendationLatePresentation Recommendation = "LATE_PRESENTATION"
	// RecommendationReferHospitalSymptomatic sends a symptomatic therapeutic
	// excess to hospital regardless of dose arithmetic.
	RecommendationReferHospitalSymptomatic Recommendation = "REFER_HOSPITAL_SYMPTOMATIC"
	// RecommendationReferHospitalHighDoseExcess sends a supra-licensed,
	// high mg/kg therapeutic excess to hospital for delayed bloods.
	RecommendationReferHospitalHighDoseExcess Recommendation = "REFER_HOSPITAL_HIGH_DOSE_EXCESS"
	// RecommendationConsiderBloodsLowRiskExcess flags a supra-licensed but
	// low mg/kg excess where bloods are discretionary.
	RecommendationConsiderBloodsLowRiskExcess Recommendation = "CONSIDER_BLOODS_LOW_RISK_EXCESS"
	// RecommendationNoActionTherapeutic closes a within-licence ingestion
	// with no further action.
	RecommendationNoActionTherapeutic Recommendation = "NO_ACTION_THERAPEUTIC"
	// RecommendationReviewCase is the fallback when no triage rule matched;
	// the case goes to a senior clinician instead of an automated pathway.
	RecommendationReviewCase Recommendation = "REVIEW_CASE"
)

// PatientIntake captures the presentation facts gathered at triage.
// DosePerKg is derived from DoseMg and WeightKg during Validate and callers
// must not set it themselves; any submitted value is overwritten.
type PatientIntake struct {
	AgeYears       int     `json:"age_years"`
	WeightKg       float64 `json:"weight_kg"`
	DoseMg         float64 `json:"dose_mg"`
	TimeHours      float64 `json:"time_hours"`
	IsSelfHarm     bool    `json:"is_self_harm"`
	IsStaggered    bool    `json:"is_staggered"`
	IsDoseReliable bool    `json:"is_dose_reliable"`
	IsSymptomatic  bool    `json:"is_symptomatic"`
	DosePerKg      float64 `json:"dose_per_kg"`
}

// Validate checks the intake fields and computes DosePerKg. Weight is
// checked before the division so a zero or negative weight can never reach
// the arithmetic. Validate is idempotent: repeated calls on the same intake
// produce the same result.
func (p *PatientIntake) Validate() error {
	if p.AgeYears < 0 {
		return &ValidationError{Field: "age_years", Reason: "must not be negative"}
	}
	if !(p.WeightKg > 0) || math.IsInf(p.WeightKg, 0) {
		return &ValidationError{Field: "weight_kg", Reason: "must be greater than zero"}
	}
	if !(p.DoseMg > 0) || math.IsInf(p.DoseMg, 0) {
		return &ValidationError{Field: "dose_mg", Reason: "must be greater than zero"}
	}
	if !(p.TimeHours >= 0) || math.IsInf(p.TimeHours, 0) {
		return &ValidationError{Field: "time_hours", Reason: "must not be negative"}
	}
	p.DosePerKg = p.DoseMg / p.WeightKg
	return nil
}

// ClinicalSigns records the bedside findings relevant to liver injury.
type ClinicalSigns struct {
	HasJaundice        bool `json:"has_jaundice"`
	HasLiverTenderness bool `json:"has_liver_tenderness"`
}

// BloodPanel holds one set of laboratory results. Creatinine is recorded
// for the clinical picture but no triage rule currently reads it.
type BloodPanel struct {
	ParacetamolLevelMgL float64 `json:"paracetamol_level_mg_l"`
	INR                 float64 `json:"inr"`
	ALTIuL              int     `json:"alt_iu_l"`
	CreatinineUmolL     int     `json:"creatinine_umol_l"`
}

// Validate rejects physically impossible laboratory values.
func (b *BloodPanel) Validate() error {
	if !(b.ParacetamolLevelMgL >= 0) || math.IsInf(b.ParacetamolLevelMgL, 0) {
		return &ValidationError{Field: "paracetamol_level_mg_l", Reason: "must not be negative"}
	}
	if !(b.INR >= 0) || math.IsInf(b.INR, 0) {
		return &ValidationError{Field: "inr", Reason: "must not be negative"}
	}
	if b.ALTIuL < 0 {
		return &ValidationError{Field: "alt_iu_l", Reason: "must not be negative"}
	}
	if b.CreatinineUmolL < 0 {
		return &ValidationError{Field: "creatinine_umol_l", Reason: "must not be negative"}
	}
	return nil
}

// Decision is the outcome of the initial triage. It is returned by value
// and never mutated after construction. BloodDelayHours is set only when a
// deliberate wait before sampling is part of the recommendation, and
// ClinicalSignsNeeded only when the next stage must include an examination.
type Decision struct {
	Recommendation      Recommendation `json:"recommendation"`
	Reason              string         `json:"reason"`
	BloodTestsNeeded    bool           `json:"blood_tests_needed"`
	BloodDelayHours     *float64       `json:"blood_delay_hours,omitempty"`
	ClinicalSignsNeeded *bool          `json:"clinical_signs_needed,omitempty"`
}

// NacIndication is the outcome of the admission-bloods stage: whether to
// start (or keep running) the acetylcysteine infusion, and why.
type NacIndication struct {
	Indicated bool   `json:"indicated"`
	Reason    string `json:"reason"`
}

// NacContinuation is the outcome of the reassessment stage, evaluated at
// the end of the second infusion phase.
type NacContinuation struct {
	Continue bool   `json:"continue"`
	Reason   string `json:"reason"`
}

// DosingProtocol is one row of the weight-banded infusion table: the dose,
// diluted volume and pump rate for each of the two infusion phases.
type DosingProtocol struct {
	WeightRangeLabel string  `json:"weight_range_label"`
	FirstDoseMg      float64 `json:"first_dose_mg"`
	FirstVolumeMl    float64 `json:"first_volume_ml"`
	FirstRateMlHr    float64 `json:"first_rate_ml_hr"`
	SecondDoseMg     float64 `json:"second_dose_mg"`
	SecondVolumeMl   float64 `json:"second_volume_ml"`
	SecondRateMlHr   float64 `json:"second_rate_ml_hr"`
}

// Phase selects which infusion phase a dosing query is about.
type Phase string

const (
	PhaseInitial      Phase = "initial"
	PhaseContinuation Phase = "continuation"
)

// ParsePhase validates a phase string from an API query or console prompt.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseInitial, PhaseContinuation:
		return Phase(s), nil
	}
	return "", &ValidationError{Field: "phase", Reason: fmt.Sprintf("must be %q or %q", PhaseInitial, PhaseContinuation)}
}
