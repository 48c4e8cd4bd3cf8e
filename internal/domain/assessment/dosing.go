package assessment

// DosingTable selects the weight-banded infusion protocol. Band matching
// is first-match-wins in ascending weight order; anything the closed bands
// do not cover, including weights above the top closed band, falls through
// to the open-ended final band. The table is written for adults of 40 kg
// and over, which the closed bands cover completely.
type DosingTable struct {
	bands []DosingBand
}

// NewDosingTable builds a table from bands already checked by
// ParameterSet.Validate.
func NewDosingTable(bands []DosingBand) *DosingTable {
	bs := make([]DosingBand, len(bands))
	copy(bs, bands)
	return &DosingTable{bands: bs}
}

// ProtocolFor returns the infusion protocol for a body weight. It is
// total over positive weights: the fallback band means there is no weight
// without a protocol.
func (t *DosingTable) ProtocolFor(weightKg float64) DosingProtocol {
	for _, b := range t.bands {
		if b.MaxKg == nil {
			continue
		}
		if weightKg >= b.MinKg && weightKg <= *b.MaxKg {
			return b.Protocol
		}
	}
	return t.bands[len(t.bands)-1].Protocol
}

// Bands returns the table rows in order, for display and for the
// parameters endpoint.
func (t *DosingTable) Bands() []DosingBand {
	bs := make([]DosingBand, len(t.bands))
	copy(bs, t.bands)
	return bs
}
