package flux

// IntervalsFromBits synthesises flux-reversal intervals (ns) for a bit
// sequence of data bits already MFM/FM pre-encoded as bit-cells (true
// = transition at this cell, false = no transition), at the given
// bit-cell width. Grounded on the teacher's mfm/flux.go
// GenerateFluxTransitions, generalised from a fixed MFM byte slice to
// an arbitrary bit-cell sequence so it can drive both builders and
// PLL round-trip tests.
func IntervalsFromBits(cells []bool, bitcellNs float64) []uint64 {
	var transitions []uint64
	t := uint64(0)
	for _, cell := range cells {
		t += uint64(bitcellNs)
		if cell {
			transitions = append(transitions, t)
			t = 0
		}
	}
	return transitions
}
