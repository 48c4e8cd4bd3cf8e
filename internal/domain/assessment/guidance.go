package assessment

// Disclaimer accompanies every rendered recommendation.
const Disclaimer = "Decision support only. Apply clinical judgement and local guidance; discuss uncertainty with a senior clinician or the poisons service."

var guidanceByRecommendation = map[Recommendation][]string{
	RecommendationStartNacDelayBloods: {
		"Start the acetylcysteine infusion now using the weight-banded protocol.",
		"Send baseline bloods with the delayed paracetamol level: INR, ALT, creatinine.",
		"Reassess against the level once it is back; stopping early is safe if it was never indicated.",
	},
	RecommendationDelayBloodsSelfHarm: {
		"Do not start treatment yet; a level this early cannot be interpreted.",
		"Book bloods for 4 h post ingestion: paracetamol level, INR, ALT, creatinine.",
		"Keep the patient under observation until the level is back.",
	},
	RecommendationTakeBloodsDecide: {
		"Take bloods now: paracetamol level, INR, ALT, creatinine.",
		"Plot the level against the treatment line to decide on acetylcysteine.",
	},
	RecommendationLatePresentation: {
		"Examine for jaundice and liver tenderness.",
		"Take bloods immediately: paracetamol level, INR, ALT, creatinine.",
		"A detectable level or deranged liver markers at this stage warrant acetylcysteine.",
	},
	RecommendationReferHospitalSymptomatic: {
		"Refer to hospital; symptoms after a therapeutic excess need assessment.",
		"Bloods on arrival: paracetamol level, INR, ALT, creatinine.",
	},
	RecommendationReferHospitalHighDoseExcess: {
		"Refer to hospital for assessment.",
		"Bloods 4 h after the last dose: paracetamol level, INR, ALT, creatinine.",
	},
	RecommendationConsiderBloodsLowRiskExcess: {
		"Risk is low; bloods are discretionary.",
		"If anything in the history raises concern, check a level and liver markers.",
	},
	RecommendationNoActionTherapeutic: {
		"No treatment needed for a dose within the licensed limit.",
		"Advise on maximum daily dosing and safety-net for symptoms.",
	},
	RecommendationReviewCase: {
		"The presentation does not fit a standard pathway.",
		"Review with a senior clinician or contact the poisons service before deciding.",
	},
}

// Guidance returns the advisory lines rendered beneath a recommendation.
// Unknown recommendations get no guidance rather than an error; the
// recommendation itself still carries its reason.
func Guidance(rec Recommendation) []string {
	lines := guidanceByRecommendation[rec]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}
