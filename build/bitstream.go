package build

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
)

// BitstreamTrackBuilder emits directly into a BitBuffer -- the target
// used when the caller only needs the bit-cell shape of a track (no
// flux timing), e.g. generating a bitstream to feed straight into a
// scanner for round-trip testing.
type BitstreamTrackBuilder struct {
	*Builder
	buf *bitbuf.BitBuffer
}

// NewBitstreamTrackBuilder creates a builder that appends to a fresh
// BitBuffer sized for one revolution at rate.
func NewBitstreamTrackBuilder(rate enc.Datarate, encoding enc.Encoding) *BitstreamTrackBuilder {
	t := &BitstreamTrackBuilder{buf: bitbuf.NewForDatarate(rate, 1)}
	t.buf.Datarate = rate
	t.buf.Encoding = encoding
	t.Builder = NewBuilder(t, encoding, rate)
	return t
}

// AddRawBit implements RawBitSink by appending directly to the
// underlying BitBuffer.
func (t *BitstreamTrackBuilder) AddRawBit(bit bool) { t.buf.Add(bit) }

// AddIndexMark records an index pulse at the current write position.
func (t *BitstreamTrackBuilder) AddIndexMark() { t.buf.AddIndex() }

// Finish returns the assembled BitBuffer, shrunk to its exact size and
// rewound to bit 0 for reading.
func (t *BitstreamTrackBuilder) Finish() *bitbuf.BitBuffer {
	t.buf.ShrinkToFit()
	t.buf.Seek(0)
	return t.buf
}
