// Package labref holds the published laboratory reference values the
// paracetamol overdose rules are written against. It is the single source
// of truth for these numbers; runtime parameter sets take their defaults
// from here.
package labref

// Liver function reference limits (adult).
const (
	// ALTUpperLimitIuL is the upper limit of normal for alanine
	// aminotransferase in IU/L.
	ALTUpperLimitIuL = 33

	// INRUpperLimit is the upper limit of normal for the international
	// normalised ratio.
	INRUpperLimit = 1.3
)

// Paracetamol assay cutoffs in mg/L.
const (
	// DetectionCutoffMgL is the level below which a measured paracetamol
	// concentration is treated as not clinically meaningful. Used for
	// staggered ingestions and presentations past the nomogram window.
	DetectionCutoffMgL = 5.0

	// TherapeuticActionLevelMgL is the concentration at or above which a
	// therapeutic-excess presentation warrants antidote treatment.
	TherapeuticActionLevelMgL = 10.0
)

// LicensedDose24hMg is the maximum licensed adult paracetamol dose over
// 24 hours, in milligrams.
const LicensedDose24hMg = 4000.0

// IsALTElevated reports whether an ALT result exceeds the upper limit of
// normal.
func IsALTElevated(altIuL int) bool {
	return altIuL > ALTUpperLimitIuL
}

// IsALTCritical reports whether an ALT result exceeds twice the upper
// limit of normal, the level treated as established liver injury.
func IsALTCritical(altIuL int) bool {
	return altIuL > 2*ALTUpperLimitIuL
}

// IsINRElevated reports whether an INR result exceeds the upper limit of
// normal.
func IsINRElevated(inr float64) bool {
	return inr > INRUpperLimit
}
