package assessment

import "math"

// Nomogram evaluates the acute-ingestion treatment line. The line is
// defined only between the first and last anchor hours; earlier samples
// are uninterpretable and later ones fall outside the published data, so
// both report an undefined result rather than a value of zero.
type Nomogram struct {
	points []NomogramPoint
}

// NewNomogram builds a nomogram from anchor points already checked by
// ParameterSet.Validate.
func NewNomogram(points []NomogramPoint) *Nomogram {
	pts := make([]NomogramPoint, len(points))
	copy(pts, points)
	return &Nomogram{points: pts}
}

// Domain returns the inclusive hour range the treatment line covers.
func (n *Nomogram) Domain() (minHours, maxHours float64) {
	return float64(n.points[0].Hour), float64(n.points[len(n.points)-1].Hour)
}

// TreatmentLine returns the treatment-line concentration in mg/L at the
// given time since ingestion. Values between anchors are linearly
// interpolated and rounded to one decimal place. ok is false outside the
// nomogram domain.
func (n *Nomogram) TreatmentLine(hours float64) (mgL float64, ok bool) {
	minHours, maxHours := n.Domain()
	if math.IsNaN(hours) || hours < minHours || hours > maxHours {
		return 0, false
	}
	for i := 1; i < len(n.points); i++ {
		lo, hi := n.points[i-1], n.points[i]
		if hours > float64(hi.Hour) {
			continue
		}
		frac := (hours - float64(lo.Hour)) / float64(hi.Hour-lo.Hour)
		level := lo.LevelMgL + frac*(hi.LevelMgL-lo.LevelMgL)
		return math.Round(level*10) / 10, true
	}
	return 0, false
}
