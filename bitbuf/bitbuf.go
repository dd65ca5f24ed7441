// Package bitbuf implements BitBuffer, the bit-level ring buffer that
// sits between raw flux and the structured Track: a packed bit store
// with index marks, sync-loss marks, splice position, and
// encoding-aware byte readers.
//
// Grounded on the teacher's mfm.Reader/mfm.Writer (mfm/reader.go,
// mfm/writer.go): readHalfBit/readBit/readByte become Read1/read two
// half-bits per MFM data bit, writeHalfBit/writeBit/writeByte become
// the write half of this file, generalised from "always MFM" to the
// encoding-aware reads spec.md §4.3 requires (FM, MFM, Apple GCR, raw).
package bitbuf

import (
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/flux"
)

// BitBuffer is a packed, growable bit store. Bit i lives in bit (i&7)
// of byte i/8, LSB-first within the byte (spec.md §3).
type BitBuffer struct {
	data    []byte
	bitsize int // number of valid bits
	bitpos  int // read cursor
	wrapped bool

	indexes     []int // sorted bit positions of observed index pulses
	syncLosses  []int // bit positions of observed sync losses
	splicepos   int

	Datarate enc.Datarate
	Encoding enc.Encoding
}

// NewForDatarate allocates an empty buffer sized to comfortably hold
// revs revolutions at rate, per spec.md §4.3's sizing estimate
// (bits/s * revs * 60/300 * 2 * 1.2 -- i.e. scaled for a slower-than-
// 300RPM medium with headroom for PLL jitter).
func NewForDatarate(rate enc.Datarate, revs int) *BitBuffer {
	bps := rate.BitsPerSecond()
	if revs <= 0 {
		revs = 1
	}
	bits := float64(bps) * float64(revs) * 60.0 / 300.0 * 2.0 * 1.2
	b := &BitBuffer{Datarate: rate}
	b.data = make([]byte, 0, int(bits/8)+1)
	return b
}

// NewFromBytes wraps raw bytes as a bit buffer of exactly bitLen valid
// bits (bitLen <= len(data)*8).
func NewFromBytes(data []byte, bitLen int) *BitBuffer {
	b := &BitBuffer{
		data:    append([]byte(nil), data...),
		bitsize: bitLen,
	}
	return b
}

// NewFromDecoder drains a PLL flux decoder, appending bits and
// recording index / sync-loss events as it goes.
func NewFromDecoder(d *flux.Decoder, rate enc.Datarate, encoding enc.Encoding) *BitBuffer {
	b := NewForDatarate(rate, flux1RevHint(d))
	b.Datarate = rate
	b.Encoding = encoding
	for {
		bit := d.NextBit()
		if d.Index() {
			b.AddIndex()
		}
		if d.SyncLost() {
			b.SyncLost()
		}
		if bit < 0 {
			break
		}
		b.Add(bit != 0)
	}
	return b
}

func flux1RevHint(d *flux.Decoder) int {
	if d == nil {
		return 1
	}
	return 1
}

// BitSize returns the number of valid bits in the buffer.
func (b *BitBuffer) BitSize() int { return b.bitsize }

// BitPos returns the current read cursor.
func (b *BitBuffer) BitPos() int { return b.bitpos }

// Wrapped reports whether a read has crossed the physical end of the
// buffer since the last Clear/Seek to 0.
func (b *BitBuffer) Wrapped() bool { return b.wrapped }

// Seek moves the read cursor to bit position p (0 <= p <= bitsize).
func (b *BitBuffer) Seek(p int) {
	if p < 0 {
		p = 0
	}
	if p > b.bitsize {
		p = b.bitsize
	}
	b.bitpos = p
	b.wrapped = false
}

// Clear resets the buffer to empty, including all hints and marks.
func (b *BitBuffer) Clear() {
	b.data = b.data[:0]
	b.bitsize = 0
	b.bitpos = 0
	b.wrapped = false
	b.indexes = nil
	b.syncLosses = nil
	b.splicepos = 0
	b.Datarate = enc.RateUnknown
	b.Encoding = enc.EncUnknown
}

// ---- write side ----

// Add appends one bit, growing the underlying byte vector by doubling
// on overflow.
func (b *BitBuffer) Add(bit bool) {
	byteIdx := b.bitsize / 8
	if byteIdx >= len(b.data) {
		newCap := len(b.data)*2 + 1
		grown := make([]byte, newCap)
		copy(grown, b.data)
		b.data = grown
	}
	if bit {
		bitIdx := b.bitsize & 7
		b.data[byteIdx] |= 1 << uint(bitIdx)
	}
	b.bitsize++
}

// AddIndex records the current bit position as an index mark.
func (b *BitBuffer) AddIndex() {
	b.indexes = append(b.indexes, b.bitsize)
}

// SyncLost records a sync-loss event at the current bit position.
func (b *BitBuffer) SyncLost() {
	b.syncLosses = append(b.syncLosses, b.bitsize)
}

// Remove truncates the buffer by n bits from its current end
// (bitsize -= n).
func (b *BitBuffer) Remove(n int) {
	b.bitsize -= n
	if b.bitsize < 0 {
		b.bitsize = 0
	}
	// Drop any index/sync-loss marks that now point past the end.
	b.indexes = truncateMarks(b.indexes, b.bitsize)
	b.syncLosses = truncateMarks(b.syncLosses, b.bitsize)
	if b.bitpos > b.bitsize {
		b.bitpos = b.bitsize
	}
}

func truncateMarks(marks []int, limit int) []int {
	out := marks[:0:0]
	for _, m := range marks {
		if m <= limit {
			out = append(out, m)
		}
	}
	return out
}

// SetSplicePos marks bit position p as the safe write splice.
func (b *BitBuffer) SetSplicePos(p int) { b.splicepos = p }

// SplicePos returns the recorded splice position.
func (b *BitBuffer) SplicePos() int { return b.splicepos }

// ShrinkToFit trims the backing array to exactly ceil(bitsize/8)
// bytes, matching the universal invariant checked by the test suite.
func (b *BitBuffer) ShrinkToFit() {
	need := (b.bitsize + 7) / 8
	if len(b.data) != need {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
}

// ---- read side ----

// Read1 reads one bit, LSB-first within byte (spec.md §3). Crossing
// bitsize rewinds to 0 and sets Wrapped.
func (b *BitBuffer) Read1() bool {
	if b.bitsize == 0 {
		return false
	}
	if b.bitpos >= b.bitsize {
		b.bitpos = 0
		b.wrapped = true
	}
	byteIdx := b.bitpos / 8
	bitIdx := b.bitpos & 7
	bit := (b.data[byteIdx] >> uint(bitIdx)) & 1
	b.bitpos++
	return bit != 0
}

// Read2 reads two bits MSB-first and returns them as 0-3.
func (b *BitBuffer) Read2() int {
	v := 0
	for i := 0; i < 2; i++ {
		v = (v << 1)
		if b.Read1() {
			v |= 1
		}
	}
	return v
}

// Read8MSB reads eight bits MSB-first into a byte.
func (b *BitBuffer) Read8MSB() byte {
	var v byte
	for i := 0; i < 8; i++ {
		v <<= 1
		if b.Read1() {
			v |= 1
		}
	}
	return v
}

// Read8LSB reads eight bits, but assembles them LSB-first (the first
// bit read lands in bit 0).
func (b *BitBuffer) Read8LSB() byte {
	var v byte
	for i := 0; i < 8; i++ {
		if b.Read1() {
			v |= 1 << uint(i)
		}
	}
	return v
}

// Read16 reads 16 bits MSB-first.
func (b *BitBuffer) Read16() uint16 {
	return uint16(b.Read8MSB())<<8 | uint16(b.Read8MSB())
}

// Read32 reads 32 bits MSB-first.
func (b *BitBuffer) Read32() uint32 {
	return uint32(b.Read16())<<16 | uint32(b.Read16())
}

// ReadByte decodes one byte using the buffer's current Encoding hint:
// FM (clock, clock, data, data: 4 cells/bit), MFM (clock/data, 2 cells/bit),
// Apple (shift until the high bit is 1, as Disk II hardware does), or
// raw 8-bit for any other encoding.
func (b *BitBuffer) ReadByte() byte {
	switch b.Encoding {
	case enc.FM:
		return b.readByteFM()
	case enc.MFM, enc.RX02:
		return b.readByteMFM()
	case enc.Apple:
		return b.readByteApple()
	default:
		return b.Read8MSB()
	}
}

// readByteFM consumes exactly 32 bit-cells: FM halves the bit density
// of MFM, so both the forced clock bit and the data bit are written
// twice on the wire -- 4 raw cells per data bit, 32 per byte, matching
// the teacher's addBit doubling every raw bit for FM
// (TrackBuilder::addDataBit / addBit) and BitBuffer::read_byte's FM
// case calling read1() four times per bit.
func (b *BitBuffer) readByteFM() byte {
	var v byte
	for i := 0; i < 8; i++ {
		b.Read1() // clock cell, first half, discarded
		b.Read1() // clock cell, second half, discarded
		v <<= 1
		bit := b.Read1() // data cell, first half
		b.Read1()        // data cell, second half, discarded
		if bit {
			v |= 1
		}
	}
	return v
}

// readByteMFM consumes exactly 16 bit-cells (clock, data per data
// bit), grounded on mfm.Reader.readBit/readByte.
func (b *BitBuffer) readByteMFM() byte {
	var v byte
	for i := 0; i < 8; i++ {
		b.Read1() // clock cell, discarded
		v <<= 1
		if b.Read1() {
			v |= 1
		}
	}
	return v
}

// readByteApple shifts in bits until the accumulated byte's high bit
// is set, mirroring real Disk II hardware's self-synchronising GCR
// shift register; consumes between 8 and 15 cells. After 15 cells the
// read stops even if the high bit is still clear.
func (b *BitBuffer) readByteApple() byte {
	var v byte
	for n := 0; v&0x80 == 0 && n < 15; n++ {
		v = (v << 1)
		if b.Read1() {
			v |= 1
		}
	}
	return v
}

// Remaining returns the number of bits left to read before the cursor
// reaches bitsize. The teacher's C++ source adds splicepos to this
// value; per spec.md §9 that addition is suspicious (it is used by
// only a few callers and produces a remaining-count that overshoots
// the buffer once a splice position has been recorded). This
// implementation deliberately does NOT replicate it -- see
// DESIGN.md's open-question ledger.
func (b *BitBuffer) Remaining() int {
	return b.bitsize - b.bitpos
}

// SyncLostBetween reports whether any recorded sync-loss position
// falls within (begin, end].
func (b *BitBuffer) SyncLostBetween(begin, end int) bool {
	for _, p := range b.syncLosses {
		if p > begin && p <= end {
			return true
		}
	}
	return false
}

// Indexes returns the recorded index-mark positions, in ascending
// order (callers must not mutate the returned slice).
func (b *BitBuffer) Indexes() []int { return b.indexes }

// TrackBitSize returns indexes[0] if any index was recorded, else
// bitsize -- the length of one revolution starting at bit 0.
func (b *BitBuffer) TrackBitSize() int {
	if len(b.indexes) > 0 {
		return b.indexes[0]
	}
	return b.bitsize
}

// TrackOffset returns p's offset from the nearest index mark at or
// before it (p - max{i in indexes : i <= p}), or p itself if no such
// mark exists.
func (b *BitBuffer) TrackOffset(p int) int {
	best := -1
	for _, i := range b.indexes {
		if i <= p && i > best {
			best = i
		}
	}
	if best < 0 {
		return p
	}
	return p - best
}

// TrackBitstream returns a copy of the buffer limited to
// [0, TrackBitSize()) -- one revolution starting at the first
// recorded index.
func (b *BitBuffer) TrackBitstream() *BitBuffer {
	n := b.TrackBitSize()
	out := NewFromBytes(nil, 0)
	out.Datarate = b.Datarate
	out.Encoding = b.Encoding
	out.data = make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		byteIdx := i / 8
		bitIdx := i & 7
		if b.data[byteIdx]&(1<<uint(bitIdx)) != 0 {
			out.data[byteIdx] |= 1 << uint(bitIdx)
		}
	}
	out.bitsize = n
	return out
}
