package assessment

import "testing"

func testDosingTable(t *testing.T) *DosingTable {
	t.Helper()
	return NewDosingTable(DefaultParameters().DosingBands)
}

func TestDosingTable_ProtocolFor_Bands(t *testing.T) {
	table := testDosingTable(t)

	tests := []struct {
		weightKg  float64
		wantLabel string
		wantDose1 float64
	}{
		{40, "40-49 kg", 4600},
		{45, "40-49 kg", 4600},
		{49, "40-49 kg", 4600},
		{50, "50-59 kg", 5600},
		{59, "50-59 kg", 5600},
		{60, "60-69 kg", 6600},
		{70, "70-79 kg", 7600},
		{79, "70-79 kg", 7600},
		{80, "80-89 kg", 8600},
		{90, "90-99 kg", 9600},
		{100, "100-109 kg", 10600},
		{109, "100-109 kg", 10600},
		{110, ">109 kg", 11000},
		{150, ">109 kg", 11000},
	}
	for _, tt := range tests {
		got := table.ProtocolFor(tt.weightKg)
		if got.WeightRangeLabel != tt.wantLabel {
			t.Errorf("ProtocolFor(%v): label = %q, want %q", tt.weightKg, got.WeightRangeLabel, tt.wantLabel)
		}
		if got.FirstDoseMg != tt.wantDose1 {
			t.Errorf("ProtocolFor(%v): first dose = %v, want %v", tt.weightKg, got.FirstDoseMg, tt.wantDose1)
		}
	}
}

func TestDosingTable_ProtocolFor_SeventyKg(t *testing.T) {
	got := testDosingTable(t).ProtocolFor(70)

	want := DosingProtocol{
		WeightRangeLabel: "70-79 kg",
		FirstDoseMg:      7600, FirstVolumeMl: 238, FirstRateMlHr: 119,
		SecondDoseMg: 15000, SecondVolumeMl: 1075, SecondRateMlHr: 107.5,
	}
	if got != want {
		t.Errorf("ProtocolFor(70) = %+v, want %+v", got, want)
	}
}

func TestDosingTable_ProtocolFor_TopBand(t *testing.T) {
	got := testDosingTable(t).ProtocolFor(132)

	want := DosingProtocol{
		WeightRangeLabel: ">109 kg",
		FirstDoseMg:      11000, FirstVolumeMl: 255, FirstRateMlHr: 127.5,
		SecondDoseMg: 22000, SecondVolumeMl: 1110, SecondRateMlHr: 111,
	}
	if got != want {
		t.Errorf("ProtocolFor(132) = %+v, want %+v", got, want)
	}
}

// Weights the closed bands do not cover fall through to the open band
// rather than matching nothing. The table is written for 40 kg and up;
// the fallback keeps the lookup total instead of silently dosing zero.
func TestDosingTable_ProtocolFor_FallbackBand(t *testing.T) {
	table := testDosingTable(t)

	for _, weight := range []float64{39, 30, 49.5} {
		got := table.ProtocolFor(weight)
		if got.WeightRangeLabel != ">109 kg" {
			t.Errorf("ProtocolFor(%v): label = %q, want fallback %q", weight, got.WeightRangeLabel, ">109 kg")
		}
	}
}

// Infusion arithmetic is internally consistent: each phase rate empties
// its volume over the phase duration (2 h then 10 h), and each volume is
// the diluent bag plus one millilitre per 200 mg of concentrate.
func TestDosingTable_BandArithmetic(t *testing.T) {
	for _, band := range testDosingTable(t).Bands() {
		p := band.Protocol
		if got := p.FirstVolumeMl / 2; got != p.FirstRateMlHr {
			t.Errorf("%s: first rate %v, want %v", p.WeightRangeLabel, p.FirstRateMlHr, got)
		}
		if got := p.SecondVolumeMl / 10; got != p.SecondRateMlHr {
			t.Errorf("%s: second rate %v, want %v", p.WeightRangeLabel, p.SecondRateMlHr, got)
		}
		if got := 200 + p.FirstDoseMg/200; got != p.FirstVolumeMl {
			t.Errorf("%s: first volume %v, want %v", p.WeightRangeLabel, p.FirstVolumeMl, got)
		}
		if got := 1000 + p.SecondDoseMg/200; got != p.SecondVolumeMl {
			t.Errorf("%s: second volume %v, want %v", p.WeightRangeLabel, p.SecondVolumeMl, got)
		}
	}
}
