package build

import (
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/flux"
)

// FluxTrackBuilder emits bit-cells as flux-reversal interval times,
// the target used when the caller needs a synthetic flux capture (the
// spec's "normalised flux" -- generated rather than digitised). A
// reversal is recorded at every "1" cell; a run of "0" cells lengthens
// the interval to the next reversal instead of producing zero-length
// entries.
//
// Grounded on the teacher's mfm/flux.go bitcell<->interval conversion,
// generalised to arbitrary encodings via enc.BitcellNs.
type FluxTrackBuilder struct {
	*Builder
	bitcellNs float64
	pending   int
	current   []uint64
	revs      [][]uint64
}

// NewFluxTrackBuilder creates a builder that accumulates flux
// intervals at the bit-cell width implied by rate.
func NewFluxTrackBuilder(rate enc.Datarate, encoding enc.Encoding) *FluxTrackBuilder {
	t := &FluxTrackBuilder{bitcellNs: enc.BitcellNs(rate)}
	t.Builder = NewBuilder(t, encoding, rate)
	return t
}

// AddRawBit implements RawBitSink: a 1 bit closes out the interval
// that has been accumulating since the last reversal (or since the
// start of the revolution); a 0 bit just lengthens it.
func (t *FluxTrackBuilder) AddRawBit(bit bool) {
	t.pending++
	if bit {
		t.current = append(t.current, uint64(float64(t.pending)*t.bitcellNs))
		t.pending = 0
	}
}

// AddIndexMark closes the current revolution (flushing any pending
// sub-reversal interval as a final entry) and starts a new one.
func (t *FluxTrackBuilder) AddIndexMark() {
	if t.pending > 0 {
		t.current = append(t.current, uint64(float64(t.pending)*t.bitcellNs))
		t.pending = 0
	}
	t.revs = append(t.revs, t.current)
	t.current = nil
}

// Finish closes any in-progress revolution and returns the assembled,
// normalised flux capture.
func (t *FluxTrackBuilder) Finish() *flux.Data {
	if len(t.current) > 0 || t.pending > 0 {
		t.AddIndexMark()
	}
	return &flux.Data{Revolutions: t.revs, Normalised: true}
}
