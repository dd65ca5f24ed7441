// Package flux models the raw, lowest level of a captured track: a
// sequence of flux-reversal interval times, one or more revolutions
// deep, and the PLL that turns them into a bit-cell stream.
//
// Grounded on the teacher's pll/pll.go (the PLL state machine) and
// mfm/flux.go (bitcell<->flux-interval conversion), generalised from
// a single hard-coded MFM bit rate into the spec's parameterised
// FluxDecoder (§4.2 of SPEC_FULL.md / spec.md).
package flux

// Data is a flux capture: a sequence of revolutions, each a sequence
// of inter-flux-reversal interval times in nanoseconds. The sum of one
// revolution's intervals is one rotation period.
type Data struct {
	Revolutions [][]uint64
	// Normalised marks intervals synthesised from a bitstream rather
	// than an authentic capture (TrackData.normalised_flux in the
	// spec).
	Normalised bool
}

// NewData wraps revolutions of captured flux intervals.
func NewData(revolutions [][]uint64) *Data {
	return &Data{Revolutions: revolutions}
}

// RevolutionCount returns the number of revolutions captured.
func (d *Data) RevolutionCount() int {
	if d == nil {
		return 0
	}
	return len(d.Revolutions)
}
