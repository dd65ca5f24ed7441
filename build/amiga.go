package build

import (
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// AddAmigaSector emits one Amiga-format sector: a zero preamble, two
// raw 0x4489 sync words, an odd/even-shuffled info longword + 16 bytes
// of unused header (conventionally all-zero) with its own checksum,
// then the odd/even-shuffled 512-byte data block with its checksum.
// There is no separate data address mark -- the info longword's
// format byte (0xFF) plays that role.
//
// Grounded on the teacher's mfm.Reader.scanAmiga/unshuffle
// (mfm/reader.go), run in reverse: where the reader unshuffles a
// captured bitstream back into bytes, this builder shuffles bytes
// into the bitstream the reader expects (spec.md §4.4 Amiga row).
func (b *Builder) AddAmigaSector(spec SectorSpec) {
	b.AddGap(2, 0x00)
	b.AddAmigaSync()

	info := []byte{
		byte(spec.Header.Cyl*2 + spec.Header.Head),
		byte(spec.Header.Sector),
		byte(amigaSectorsToGap(spec.Header.Sector)),
		0xFF,
	}
	unused := make([]byte, 16)
	headerBlock := append(append([]byte{}, info...), unused...)

	oddH, evenH := enc.SplitAmigaBits(headerBlock)
	headerSum := enc.AmigaChecksum(oddH, evenH)
	if spec.IDCRCBad {
		headerSum ^= 1
	}

	data := make([]byte, track.NewHeader(0, 0, 0, 2).SizeBytes()) // 512 bytes
	copy(data, spec.Data)
	oddD, evenD := enc.SplitAmigaBits(data)
	dataSum := enc.AmigaChecksum(oddD, evenD)
	if spec.DataCRCBad {
		dataSum ^= 1
	}

	b.AddBlock(oddH)
	b.AddBlock(evenH)
	b.addAmigaChecksum(headerSum)
	b.addAmigaChecksum(dataSum)
	b.AddBlock(oddD)
	b.AddBlock(evenD)

	b.AddGap(spec.Gap3, 0x00)
}

// AddAmigaSync emits the zero-byte preamble and the two raw 0x4489
// sync words that mark the start of every Amiga sector.
func (b *Builder) AddAmigaSync() {
	b.AddBlockFill(0x00, 4)
	b.AddRawWord(enc.MarkA1)
	b.AddRawWord(enc.MarkA1)
}

// addAmigaChecksum splits a 32-bit checksum into its four bytes and
// emits the odd/even-shuffled planes, mirroring how every other
// Amiga longword is written.
func (b *Builder) addAmigaChecksum(sum uint32) {
	bytes := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	odd, even := enc.SplitAmigaBits(bytes)
	b.AddBlock(odd)
	b.AddBlock(even)
}

// amigaSectorsToGap approximates the "sectors remaining until the
// track gap" field real Amiga tracks store, assuming the conventional
// 11-sector DD layout.
func amigaSectorsToGap(sector int) int {
	remaining := 11 - sector
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
