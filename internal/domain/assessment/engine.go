package assessment

import (
	"fmt"
	"strings"
)

// Engine evaluates the triage rules against a fixed parameter set. All
// methods are pure: identical inputs produce identical outputs, nothing is
// mutated and no I/O happens, so one engine serves concurrent requests.
type Engine struct {
	params   ParameterSet
	nomogram *Nomogram
	dosing   *DosingTable
}

// NewEngine validates the parameter set and builds the lookup structures.
func NewEngine(params ParameterSet) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("parameter set: %w", err)
	}
	return &Engine{
		params:   params,
		nomogram: NewNomogram(params.Nomogram),
		dosing:   NewDosingTable(params.DosingBands),
	}, nil
}

// Parameters returns a copy of the active parameter set.
func (e *Engine) Parameters() ParameterSet {
	p := e.params
	p.Nomogram = make([]NomogramPoint, len(e.params.Nomogram))
	copy(p.Nomogram, e.params.Nomogram)
	p.DosingBands = make([]DosingBand, len(e.params.DosingBands))
	copy(p.DosingBands, e.params.DosingBands)
	return p
}

// TreatmentLine exposes the nomogram for display and for plotting an
// admission level by hand.
func (e *Engine) TreatmentLine(hours float64) (mgL float64, ok bool) {
	return e.nomogram.TreatmentLine(hours)
}

// DosingProtocolFor returns the infusion protocol for a body weight.
func (e *Engine) DosingProtocolFor(weightKg float64) DosingProtocol {
	return e.dosing.ProtocolFor(weightKg)
}

// InitialDecision runs the presentation triage. The rule chains are
// ordered and the first matching rule wins; the trailing review-case rule
// makes the decision total over valid intakes.
func (e *Engine) InitialDecision(intake *PatientIntake) (Decision, error) {
	if err := intake.Validate(); err != nil {
		return Decision{}, err
	}
	if intake.IsSelfHarm {
		return e.selfHarmDecision(intake), nil
	}
	return e.therapeuticExcessDecision(intake), nil
}

// -- Self-harm chain --

func (e *Engine) selfHarmDecision(in *PatientIntake) Decision {
	p := e.params

	// An unreliable history always counts as significant regardless of the
	// reported dose.
	if in.DosePerKg < p.SignificantDoseMgPerKg && in.IsDoseReliable {
		return Decision{
			Recommendation: RecommendationDelayBloodsSelfHarm,
			Reason: fmt.Sprintf("reported dose %.1f mg/kg is below the %.0f mg/kg significant-dose threshold and the history is reliable; take bloods %.0f h after ingestion",
				in.DosePerKg, p.SignificantDoseMgPerKg, p.BloodTestWaitHours),
			BloodTestsNeeded: true,
			BloodDelayHours:  fptr(p.BloodTestWaitHours),
		}
	}

	if in.TimeHours > p.LatePresentationHours {
		return Decision{
			Recommendation: RecommendationLatePresentation,
			Reason: fmt.Sprintf("presentation at %.1f h is beyond the %.0f h window; examine for liver signs and take bloods without delay",
				in.TimeHours, p.LatePresentationHours),
			BloodTestsNeeded:    true,
			ClinicalSignsNeeded: bptr(true),
		}
	}

	if in.IsStaggered {
		return Decision{
			Recommendation: RecommendationStartNacDelayBloods,
			Reason: fmt.Sprintf("staggered ingestion cannot be timed against the treatment line; start acetylcysteine now and take bloods after %.0f h",
				p.BloodTestWaitHours),
			BloodTestsNeeded: true,
			BloodDelayHours:  fptr(p.BloodTestWaitHours),
		}
	}

	// Acute single ingestion.
	switch {
	case in.DosePerKg >= p.HighRiskDoseMgPerKg && in.TimeHours >= p.HighRiskElapsedHours:
		return Decision{
			Recommendation: RecommendationStartNacDelayBloods,
			Reason: fmt.Sprintf("dose %.1f mg/kg is at or above the %.0f mg/kg high-risk threshold with %.1f h already elapsed; start acetylcysteine without waiting for a level",
				in.DosePerKg, p.HighRiskDoseMgPerKg, in.TimeHours),
			BloodTestsNeeded: true,
			BloodDelayHours:  fptr(p.BloodTestWaitHours),
		}
	case in.TimeHours < p.BloodTestWaitHours:
		return Decision{
			Recommendation: RecommendationDelayBloodsSelfHarm,
			Reason: fmt.Sprintf("levels drawn before %.0f h are uninterpretable; take bloods %.0f h after ingestion",
				p.BloodTestWaitHours, p.BloodTestWaitHours),
			BloodTestsNeeded: true,
			BloodDelayHours:  fptr(p.BloodTestWaitHours),
		}
	case in.TimeHours >= p.BloodTestWaitHours:
		return Decision{
			Recommendation: RecommendationTakeBloodsDecide,
			Reason: fmt.Sprintf("acute ingestion at %.1f h is within the treatment-line window; take bloods now and plot against the line",
				in.TimeHours),
			BloodTestsNeeded: true,
		}
	}

	return reviewCase(fmt.Sprintf("self-harm ingestion of %.1f mg/kg at %.1f h fits no rule", in.DosePerKg, in.TimeHours))
}

// -- Therapeutic-excess chain --

func (e *Engine) therapeuticExcessDecision(in *PatientIntake) Decision {
	p := e.params
	overLicensed := in.DoseMg > p.LicensedDose24hMg

	switch {
	case in.IsSymptomatic:
		return Decision{
			Recommendation: RecommendationReferHospitalSymptomatic,
			Reason: fmt.Sprintf("symptomatic after %.0f mg in 24 h; refer to hospital and take bloods on arrival",
				in.DoseMg),
			BloodTestsNeeded: true,
		}
	case overLicensed && in.DosePerKg >= p.SignificantDoseMgPerKg:
		return Decision{
			Recommendation: RecommendationReferHospitalHighDoseExcess,
			Reason: fmt.Sprintf("%.0f mg exceeds the licensed %.0f mg/24 h and %.1f mg/kg is at or above the %.0f mg/kg threshold; refer to hospital for bloods %.0f h after the last dose",
				in.DoseMg, p.LicensedDose24hMg, in.DosePerKg, p.SignificantDoseMgPerKg, p.BloodTestWaitHours),
			BloodTestsNeeded: true,
			BloodDelayHours:  fptr(p.BloodTestWaitHours),
		}
	case overLicensed && in.DosePerKg < p.SignificantDoseMgPerKg:
		return Decision{
			Recommendation: RecommendationConsiderBloodsLowRiskExcess,
			Reason: fmt.Sprintf("%.0f mg exceeds the licensed %.0f mg/24 h but %.1f mg/kg is below the %.0f mg/kg threshold; consider bloods if any concern",
				in.DoseMg, p.LicensedDose24hMg, in.DosePerKg, p.SignificantDoseMgPerKg),
			BloodTestsNeeded: true,
		}
	case !overLicensed && in.DosePerKg < p.SignificantDoseMgPerKg:
		return Decision{
			Recommendation: RecommendationNoActionTherapeutic,
			Reason: fmt.Sprintf("%.0f mg is within the licensed %.0f mg/24 h and %.1f mg/kg is below the %.0f mg/kg threshold; no treatment needed",
				in.DoseMg, p.LicensedDose24hMg, in.DosePerKg, p.SignificantDoseMgPerKg),
		}
	}

	// Reachable when a low total dose lands at or above the per-kg
	// threshold in a light patient.
	return reviewCase(fmt.Sprintf("therapeutic excess of %.0f mg at %.1f mg/kg fits no rule", in.DoseMg, in.DosePerKg))
}

func reviewCase(detail string) Decision {
	return Decision{
		Recommendation: RecommendationReviewCase,
		Reason:         detail + "; review with a senior clinician",
	}
}

// -- Acetylcysteine indication --

// AssessNacIndication decides whether to start (or, for empirical starts,
// keep running) acetylcysteine once admission bloods are back. signs may
// be nil when no examination was requested.
func (e *Engine) AssessNacIndication(intake *PatientIntake, admission BloodPanel, signs *ClinicalSigns) (NacIndication, error) {
	if err := intake.Validate(); err != nil {
		return NacIndication{}, err
	}
	if err := admission.Validate(); err != nil {
		return NacIndication{}, err
	}
	p := e.params
	level := admission.ParacetamolLevelMgL

	if signs != nil && (signs.HasJaundice || signs.HasLiverTenderness) {
		return NacIndication{
			Indicated: true,
			Reason:    "jaundice or liver tenderness on examination; start acetylcysteine",
		}, nil
	}
	if admission.INR > p.INRUpperLimit || admission.ALTIuL > p.ALTUpperLimitIuL {
		return NacIndication{
			Indicated: true,
			Reason: fmt.Sprintf("liver injury on admission bloods (INR %.2f, ALT %d IU/L against limits %.1f and %d IU/L); start acetylcysteine",
				admission.INR, admission.ALTIuL, p.INRUpperLimit, p.ALTUpperLimitIuL),
		}, nil
	}

	if intake.IsSelfHarm {
		if intake.IsStaggered {
			if level > p.StaggeredLevelCutoffMgL {
				return NacIndication{
					Indicated: true,
					Reason: fmt.Sprintf("staggered ingestion with paracetamol still detectable at %.1f mg/L (cutoff %.0f mg/L); continue acetylcysteine",
						level, p.StaggeredLevelCutoffMgL),
				}, nil
			}
			return NacIndication{
				Indicated: false,
				Reason: fmt.Sprintf("staggered ingestion with level %.1f mg/L at or below the %.0f mg/L cutoff and normal liver markers",
					level, p.StaggeredLevelCutoffMgL),
			}, nil
		}

		if line, ok := e.nomogram.TreatmentLine(intake.TimeHours); ok {
			if level >= line {
				return NacIndication{
					Indicated: true,
					Reason: fmt.Sprintf("level %.1f mg/L is on or above the treatment line (%.1f mg/L at %.1f h); start acetylcysteine",
						level, line, intake.TimeHours),
				}, nil
			}
			return NacIndication{
				Indicated: false,
				Reason: fmt.Sprintf("level %.1f mg/L is below the treatment line (%.1f mg/L at %.1f h)",
					level, line, intake.TimeHours),
			}, nil
		}
		if _, maxHours := e.nomogram.Domain(); intake.TimeHours > maxHours {
			if level > p.LateLevelCutoffMgL {
				return NacIndication{
					Indicated: true,
					Reason: fmt.Sprintf("beyond the %.0f h treatment line with paracetamol still detectable at %.1f mg/L (cutoff %.0f mg/L); start acetylcysteine",
						maxHours, level, p.LateLevelCutoffMgL),
				}, nil
			}
			return NacIndication{
				Indicated: false,
				Reason: fmt.Sprintf("beyond the %.0f h treatment line with level %.1f mg/L at or below the %.0f mg/L cutoff and normal liver markers",
					maxHours, level, p.LateLevelCutoffMgL),
			}, nil
		}
		// Sample drawn before the treatment line starts. The initial triage
		// delays bloods past this point, but a directly submitted early
		// sample must not be read as reassuring.
		return NacIndication{
			Indicated: false,
			Reason: fmt.Sprintf("level drawn before %.0f h cannot exclude toxicity; repeat bloods %.0f h after ingestion",
				p.BloodTestWaitHours, p.BloodTestWaitHours),
		}, nil
	}

	if level >= p.TherapeuticLevelCutoffMgL {
		return NacIndication{
			Indicated: true,
			Reason: fmt.Sprintf("level %.1f mg/L is at or above the %.0f mg/L action level after therapeutic excess; start acetylcysteine",
				level, p.TherapeuticLevelCutoffMgL),
		}, nil
	}
	return NacIndication{
		Indicated: false,
		Reason: fmt.Sprintf("level %.1f mg/L is below the %.0f mg/L action level and liver markers are normal",
			level, p.TherapeuticLevelCutoffMgL),
	}, nil
}

// -- Acetylcysteine continuation --

// AssessNacContinuation decides, at the end of the second infusion phase,
// whether the infusion carries on. Every criterion is evaluated so the
// reason lists all grounds, not just the first.
func (e *Engine) AssessNacContinuation(reassessment BloodPanel, admission *BloodPanel) (NacContinuation, error) {
	if admission == nil {
		return NacContinuation{}, ErrMissingAdmissionBaseline
	}
	if err := reassessment.Validate(); err != nil {
		return NacContinuation{}, err
	}
	p := e.params

	var grounds []string
	if reassessment.ParacetamolLevelMgL >= p.ContinuationLevelCutoffMgL {
		grounds = append(grounds, fmt.Sprintf("paracetamol %.1f mg/L is still at or above %.0f mg/L",
			reassessment.ParacetamolLevelMgL, p.ContinuationLevelCutoffMgL))
	}
	if reassessment.ALTIuL >= 2*admission.ALTIuL {
		grounds = append(grounds, fmt.Sprintf("ALT %d IU/L has at least doubled from the admission value of %d IU/L",
			reassessment.ALTIuL, admission.ALTIuL))
	}
	if reassessment.ALTIuL > 2*p.ALTUpperLimitIuL {
		grounds = append(grounds, fmt.Sprintf("ALT %d IU/L exceeds twice the %d IU/L upper limit of normal",
			reassessment.ALTIuL, p.ALTUpperLimitIuL))
	}
	if reassessment.INR > admission.INR {
		grounds = append(grounds, fmt.Sprintf("INR has risen from %.2f to %.2f",
			admission.INR, reassessment.INR))
	}

	if len(grounds) == 0 {
		return NacContinuation{
			Continue: false,
			Reason:   "no continuation criterion met; stop the infusion and recheck bloods in 4-6 h",
		}, nil
	}
	return NacContinuation{
		Continue: true,
		Reason:   strings.Join(grounds, "; ") + "; continue acetylcysteine",
	}, nil
}
