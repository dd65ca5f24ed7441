// Package build implements the TrackBuilder hierarchy: encoding-aware
// emission of bits/bytes/marks/CRCs/sectors, shared by the two
// concrete targets (a BitBuffer or a flux-interval vector).
//
// Grounded on the teacher's mfm.Writer (mfm/writer.go):
// writeHalfBit/writeBit/writeByte/writeGap/writeMarker/
// writeIndexMarker become the Builder's AddRawBit-driven primitives,
// generalised from "always MFM, always a 512-byte IBM sector" to the
// full set of spec.md §4.5 operations (FM, RX02, Amiga, arbitrary
// sizes, forced CRC errors).
package build

import (
	"github.com/discflux/floppy/crc"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// RawBitSink is the one operation a concrete builder target must
// provide; every higher-level Add* method on Builder is built on top
// of it (spec.md §4.5's "abstract builder exposes add_raw_bit as the
// only pure-virtual primitive").
type RawBitSink interface {
	AddRawBit(bit bool)
}

// Builder is the shared TrackBuilder logic: clocking, CRC
// accumulation, address marks, sector bodies. A zero Builder is not
// usable; construct with NewBuilder.
type Builder struct {
	sink     RawBitSink
	Encoding enc.Encoding
	Datarate enc.Datarate

	lastBit bool
	crc     *crc.CRC16
}

// NewBuilder wraps sink with the encoding-aware add-methods.
func NewBuilder(sink RawBitSink, encoding enc.Encoding, rate enc.Datarate) *Builder {
	return &Builder{sink: sink, Encoding: encoding, Datarate: rate, crc: crc.New(crc.InitCRC)}
}

// AddRawBit emits one bit-cell directly, bypassing clocking -- used
// by callers assembling custom marks bit-by-bit.
func (b *Builder) AddRawBit(bit bool) { b.sink.AddRawBit(bit) }

// AddRawWord emits a 16-cell raw pattern MSB first, bypassing clocking
// entirely -- used for sync words that are already a full
// clock+data-interleaved pattern (e.g. Amiga's 0x4489 0x4489).
func (b *Builder) AddRawWord(v uint16) {
	for i := 15; i >= 0; i-- {
		b.sink.AddRawBit((v>>uint(i))&1 != 0)
	}
}

// AddRawByte emits 8 raw bits MSB first with no clock cells at all --
// Apple's self-synchronising GCR scheme encodes timing entirely in
// its byte values (every code has its high bit set), so there is
// nothing for a separate clock cell to carry.
func (b *Builder) AddRawByte(v byte) {
	for i := 7; i >= 0; i-- {
		b.sink.AddRawBit((v>>uint(i))&1 != 0)
	}
}

// AddDataBit emits the encoding-correct clock cell then the data
// cell(s) for one data bit, tracking last_bit for the MFM clock rule
// (clock = ¬last & ¬b).
func (b *Builder) AddDataBit(bit bool) {
	switch b.Encoding {
	case enc.FM:
		// FM halves MFM's bit density: the teacher's addBit doubles
		// every raw cell for FM, so a forced clock bit and the data
		// bit each cost 2 raw cells here -- 4 cells per data bit.
		b.sink.AddRawBit(true)
		b.sink.AddRawBit(true)
		b.sink.AddRawBit(bit)
		b.sink.AddRawBit(bit)
	default:
		clock := !b.lastBit && !bit
		b.sink.AddRawBit(clock)
		b.sink.AddRawBit(bit)
		b.lastBit = bit
	}
}

// AddBit is an alias for AddDataBit, matching spec.md §4.5's naming
// for the generic encoding-aware single-bit emitter.
func (b *Builder) AddBit(bit bool) { b.AddDataBit(bit) }

// AddByte emits one byte MSB-first using AddDataBit.
func (b *Builder) AddByte(data byte) {
	for i := 7; i >= 0; i-- {
		b.AddDataBit((data>>uint(i))&1 != 0)
	}
}

// AddBlockFill emits count copies of fill.
func (b *Builder) AddBlockFill(fill byte, count int) {
	for i := 0; i < count; i++ {
		b.AddByte(fill)
	}
}

// AddBlock emits every byte of data in order.
func (b *Builder) AddBlock(data []byte) {
	for _, by := range data {
		b.AddByte(by)
	}
}

// AddByteUpdateCRC emits data and feeds it into the running CRC.
func (b *Builder) AddByteUpdateCRC(data byte) {
	b.AddByte(data)
	b.crc.Add(data)
}

// AddBlockUpdateCRC emits every byte of data and feeds each into the
// running CRC.
func (b *Builder) AddBlockUpdateCRC(data []byte) {
	for _, by := range data {
		b.AddByteUpdateCRC(by)
	}
}

// AddByteWithClock emits one byte using an explicit clock byte rather
// than the computed MFM clock rule -- used for sync marks with
// deliberate missing clock bits (A1 with clock 0x0A, C2 with clock
// 0x14, FM marks with clock 0xC7/0xD7).
func (b *Builder) AddByteWithClock(data, clock byte) {
	for i := 7; i >= 0; i-- {
		c := (clock>>uint(i))&1 != 0
		d := (data>>uint(i))&1 != 0
		b.sink.AddRawBit(c)
		b.sink.AddRawBit(d)
	}
	b.lastBit = data&1 != 0
}

// gapFill returns the default gap filler byte for the builder's
// encoding (0x4E for MFM-family, 0xFF for FM).
func (b *Builder) gapFill() byte {
	switch b.Encoding {
	case enc.FM:
		return 0xFF
	case enc.Apple:
		return 0xFF // self-sync filler byte
	default:
		return 0x4E
	}
}

// AddGap emits count bytes of fill, or the encoding's default filler
// when fill is 0 (auto).
func (b *Builder) AddGap(count int, fill byte) {
	if fill == 0 {
		fill = b.gapFill()
	}
	b.AddBlockFill(fill, count)
}

// AddSync emits the pre-mark zero run: 12 bytes for MFM-family, 6 for
// FM.
func (b *Builder) AddSync() {
	n := 12
	if b.Encoding == enc.FM {
		n = 6
	}
	b.AddBlockFill(0x00, n)
}

// AMKind names a sync mark family for AddAM/AddIAM.
type AMKind int

const (
	AMData AMKind = iota
	AMIndex
)

// AddAM emits sync + three A1 sync bytes (clock 0x0A) then a type
// byte for MFM, or sync + the type byte with clock 0xC7 for FM/RX02
// (index marks use AddIAM), re-seeding the running CRC from the appropriate
// constant so the type byte and everything after contribute to the
// sector's CRC.
func (b *Builder) AddAM(tag byte) {
	b.AddSync()
	switch b.Encoding {
	case enc.FM, enc.RX02:
		b.AddByteWithClock(tag, 0xC7)
		b.crc.Init(crc.InitCRC)
		b.crc.Add(tag)
	default:
		for i := 0; i < 3; i++ {
			b.AddByteWithClock(0xA1, 0x0A)
		}
		b.crc.Init(crc.A1A1A1)
		b.AddByteUpdateCRC(tag)
	}
}

// AddIAM emits the index address mark: sync + three C2 (clock 0x14)
// + 0xFC for MFM; a bare 0xFC with clock 0xD7 for FM.
func (b *Builder) AddIAM() {
	switch b.Encoding {
	case enc.FM, enc.RX02:
		b.AddByteWithClock(0xFC, 0xD7)
	default:
		b.AddSync()
		for i := 0; i < 3; i++ {
			b.AddByteWithClock(0xC2, 0x14)
		}
		b.AddByte(0xFC)
	}
}

// AddCRCBytes emits the current running CRC's two bytes MSB first. If
// bad is true, the emitted value is XORed with 0x5555 first so the
// sector deliberately fails CRC validation.
func (b *Builder) AddCRCBytes(bad bool) {
	v := b.crc.Value()
	if bad {
		v ^= 0x5555
	}
	b.AddByte(byte(v >> 8))
	b.AddByte(byte(v))
}

// AddTrackStart emits gap4a + IAM + gap1 at the start of a track.
// shortGap uses the reduced gap4a length some protections rely on.
func (b *Builder) AddTrackStart(shortGap bool) {
	gap4a := 80
	if shortGap {
		gap4a = 40
	}
	b.AddGap(gap4a, 0)
	b.AddIAM()
	b.AddGap(50, 0)
}

// AddSectorHeader emits a full IDAM: AM + CHRN + CRC.
func (b *Builder) AddSectorHeader(h track.Header, crcError bool) {
	b.AddAM(0xFE)
	b.AddByteUpdateCRC(byte(h.Cyl))
	b.AddByteUpdateCRC(byte(h.Head))
	b.AddByteUpdateCRC(byte(h.Sector))
	b.AddByteUpdateCRC(byte(h.SizeCode))
	b.AddCRCBytes(crcError)
}

// AddSectorData emits a full data field: AM + data (padded/truncated
// to sizeCode's declared size) + CRC.
func (b *Builder) AddSectorData(data []byte, sizeCode int, dam track.DAM, crcError bool) {
	b.AddAM(byte(dam))
	size := track.NewHeader(0, 0, 0, sizeCode).SizeBytes()
	body := make([]byte, size)
	copy(body, data)
	b.AddBlockUpdateCRC(body)
	b.AddCRCBytes(crcError)
}

// SectorSpec is the input to AddSector: a fully specified sector body
// to emit (IDAM + gap2 + data + gap3).
type SectorSpec struct {
	Header   track.Header
	Data     []byte
	Gap2     int
	Gap3     int
	DAM      track.DAM
	IDCRCBad bool
	DataCRCBad bool

	// Volume is the Apple DOS 3.3 volume number (defaults to 254 when
	// left 0, the value spec.md's example scenario uses).
	Volume byte
}

// AddSector emits a complete sector: IDAM, gap2, data field, gap3.
// Amiga and RX02 dispatch to their own variant builders (AddAmigaSector
// / AddRX02Sector) because their on-wire shape diverges from the
// generic IBM layout.
func (b *Builder) AddSector(spec SectorSpec) {
	switch b.Encoding {
	case enc.Amiga:
		b.AddAmigaSector(spec)
		return
	case enc.RX02:
		b.AddRX02Sector(spec)
		return
	case enc.Apple:
		b.AddAppleSector(spec)
		return
	}
	b.AddSectorHeader(spec.Header, spec.IDCRCBad)
	b.AddGap(spec.Gap2, 0)
	b.AddSectorData(spec.Data, spec.Header.SizeCode, spec.DAM, spec.DataCRCBad)
	b.AddGap(spec.Gap3, 0)
}
