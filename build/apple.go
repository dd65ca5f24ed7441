package build

import "github.com/discflux/floppy/track"

// gcr6and2Encode is the inverse of the scanner's decode table: index
// by a 6-bit value, get the on-disk GCR byte. Derived mechanically
// from the teacher's decode table rather than copied from a separate
// encode table (the teacher's BitstreamDecoder.cpp has no Apple
// writer -- scan_bitstream_apple is read-only there, consistent with
// TrackBuilder.cpp never mentioning Apple; this builder fills that
// gap by inverting the documented decode table, so that Apple tracks
// can be round-tripped through build and scan).
var gcr6and2Encode = buildGCR6and2Encode()

func buildGCR6and2Encode() [64]byte {
	raw := [64]byte{
		0x96, 0x97, 0x9a, 0x9b, 0x9d, 0x9e, 0x9f, 0xa6,
		0xa7, 0xab, 0xac, 0xad, 0xae, 0xaf, 0xb2, 0xb3,
		0xb4, 0xb5, 0xb6, 0xb7, 0xb9, 0xba, 0xbb, 0xbc,
		0xbd, 0xbe, 0xbf, 0xcb, 0xcd, 0xce, 0xcf, 0xd3,
		0xd6, 0xd7, 0xd9, 0xda, 0xdb, 0xdc, 0xdd, 0xde,
		0xdf, 0xe5, 0xe6, 0xe7, 0xe9, 0xea, 0xeb, 0xec,
		0xed, 0xee, 0xef, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6,
		0xf7, 0xf9, 0xfa, 0xfb, 0xfc, 0xfd, 0xfe, 0xff,
	}
	return raw
}

// encode4and4 writes one 8-bit value using Apple's self-synchronising
// 4-and-4 scheme (every on-disk byte has its odd bits forced to 1):
// the first byte carries v's odd-position bits, the second its
// even-position bits.
func encode4and4(v byte) (byte, byte) {
	return ((v >> 1) & 0x55) | 0xAA, (v & 0x55) | 0xAA
}

// nibblizeApple converts 256 logical data bytes into the 343
// on-disk GCR bytes (342 data codes + one checksum code) the real
// 6-and-2 scheme stores, inverting the scanner's decode loop exactly.
func nibblizeApple(data []byte) []byte {
	cum := make([]byte, 342)
	for i := 0; i < 256; i++ {
		cum[86+i] = data[i] >> 2
	}
	for j := 0; j < 86; j++ {
		// The 2-bit fragments are stored bit-swapped, as the
		// scanner expects.
		low := func(i int) byte {
			if i < len(data) {
				return (data[i]&1)<<1 | (data[i]&2)>>1
			}
			return 0
		}
		cum[j] = (low(j+172) << 4) | (low(j+86) << 2) | low(j)
	}

	raw := make([]byte, 343)
	var prev byte
	for i, c := range cum {
		delta := c ^ prev
		raw[i] = gcr6and2Encode[delta]
		prev = c
	}
	raw[342] = gcr6and2Encode[prev] // checksum code: XORs the running total back to zero
	return raw
}

// AddAppleSector emits one Apple DOS 3.3 sector: a D5 AA 96 address
// prologue, 4-and-4-encoded volume/track/sector/checksum, a DE AA EB
// epilogue, gap2, a D5 AA AD data prologue, the 343-byte 6-and-2 GCR
// body, and a closing epilogue. There is no IBM-style CRC -- identity
// and data are both protected by an XOR checksum instead.
//
// Grounded on the teacher's scan_bitstream_apple decode path
// (BitstreamDecoder.cpp), run in reverse (spec.md S3).
func (b *Builder) AddAppleSector(spec SectorSpec) {
	volume := spec.Volume
	if volume == 0 {
		volume = 254
	}

	b.AddAppleMark(0xd5, 0xaa, 0x96)
	trackByte := byte(spec.Header.Cyl)
	sectorByte := byte(spec.Header.Sector)
	chk := volume ^ trackByte ^ sectorByte
	for _, v := range []byte{volume, trackByte, sectorByte, chk} {
		hi, lo := encode4and4(v)
		b.AddRawByte(hi)
		b.AddRawByte(lo)
	}
	b.AddAppleMark(0xde, 0xaa, 0xeb)

	b.AddGap(spec.Gap2, 0)

	b.AddAppleMark(0xd5, 0xaa, 0xad)
	data := make([]byte, track.NewHeader(0, 0, 0, 1).SizeBytes()) // 256 bytes
	copy(data, spec.Data)
	for _, raw := range nibblizeApple(data) {
		b.AddRawByte(raw)
	}
	b.AddAppleMark(0xde, 0xaa, 0xeb)

	b.AddGap(spec.Gap3, 0)
}

// AddAppleMark emits a three-byte raw address mark.
func (b *Builder) AddAppleMark(a, bb, c byte) {
	b.AddRawByte(a)
	b.AddRawByte(bb)
	b.AddRawByte(c)
}
