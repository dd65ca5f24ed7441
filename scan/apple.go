package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// gcr6and2Decode maps an on-disk Apple GCR byte to its 6-bit value, or
// 0x80 (high bit set) if the byte is not a legal GCR code.
//
// Grounded verbatim on the teacher's gcr6and2 table
// (BitstreamDecoder.cpp, "GCR 6/2 encode/decode").
var gcr6and2Decode = [256]byte{
	0x96: 0, 0x97: 1, 0x9a: 2, 0x9b: 3, 0x9d: 4, 0x9e: 5, 0x9f: 6, 0xa6: 7,
	0xa7: 8, 0xab: 9, 0xac: 10, 0xad: 11, 0xae: 12, 0xaf: 13, 0xb2: 14, 0xb3: 15,
	0xb4: 16, 0xb5: 17, 0xb6: 18, 0xb7: 19, 0xb9: 20, 0xba: 21, 0xbb: 22, 0xbc: 23,
	0xbd: 24, 0xbe: 25, 0xbf: 26, 0xcb: 27, 0xcd: 28, 0xce: 29, 0xcf: 30, 0xd3: 31,
	0xd6: 32, 0xd7: 33, 0xd9: 34, 0xda: 35, 0xdb: 36, 0xdc: 37, 0xdd: 38, 0xde: 39,
	0xdf: 40, 0xe5: 41, 0xe6: 42, 0xe7: 43, 0xe9: 44, 0xea: 45, 0xeb: 46, 0xec: 47,
	0xed: 48, 0xee: 49, 0xef: 50, 0xf2: 51, 0xf3: 52, 0xf4: 53, 0xf5: 54, 0xf6: 55,
	0xf7: 56, 0xf9: 57, 0xfa: 58, 0xfb: 59, 0xfc: 60, 0xfd: 61, 0xfe: 62, 0xff: 63,
}

func init() {
	for i := range gcr6and2Decode {
		if gcr6and2Decode[i] == 0 && i != 0x96 {
			gcr6and2Decode[i] = 0x80
		}
	}
}

const appleIDAMWindow = 0xd5aa96
const appleDAMWindow = 0xd5aaad
const appleWindowMask = 0xffffff

// appleDataField records a candidate DAM's bitstream offset.
type appleDataField struct{ offset int }

// ScanApple scans an Apple DOS 3.3 GCR bitstream: sectors are found by
// the D5 AA 96 address prologue, self-synchronising 4-and-4-encoded
// volume/track/sector/checksum, a DE AA epilogue; data fields start
// at D5 AA AD and hold 342 GCR-encoded bytes plus a checksum, decoded
// via the 6-and-2 scheme (spec.md §4.4 Apple row).
//
// Grounded directly on the teacher's scan_bitstream_apple
// (BitstreamDecoder.cpp).
func ScanApple(b *bitbuf.BitBuffer, rate enc.Datarate) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.Apple
	b.Seek(0)

	result := track.NewTrack()
	var dataFields []appleDataField
	var window uint32

	for !b.Wrapped() {
		bit := b.Read1()
		window = (window << 1) & 0xffffffff
		if bit {
			window |= 1
		}

		switch window & appleWindowMask {
		case appleIDAMWindow:
			amOffset := b.BitPos() - 24
			idraw := make([]byte, 11)
			for i := range idraw {
				idraw[i] = b.ReadByte()
			}
			var id [4]byte
			for m := 0; m < 4; m++ {
				id[m] = ((idraw[m<<1] & 0x55) << 1) | (idraw[1+(m<<1)] & 0x55)
			}
			if idraw[8] != 0xde || (idraw[9] != 0xaa && idraw[9] != 0xab) {
				continue
			}
			if id[0]^id[1]^id[2] != id[3] {
				continue
			}
			s := track.NewSector(rate, enc.Apple, track.NewHeader(int(id[1]), 0, int(id[2]), 1))
			s.Offset = amOffset
			result.AddSector(s)
		case appleDAMWindow:
			dataFields = append(dataFields, appleDataField{offset: b.BitPos() - 24})
		}
	}

	attachAppleData(b, result, dataFields)
	return result, nil
}

// attachAppleData finds, for each recognised header, the nearest
// following data field within the conventional gap2 window, decodes
// its 6-and-2 GCR body, and attaches it.
func attachAppleData(b *bitbuf.BitBuffer, t *track.Track, dataFields []appleDataField) {
	const shift = 3 // 8 cells/byte (Apple's self-synced GCR read), log2(8)
	minDistance := (3+8+3)<<shift + 3*10
	maxDistance := (3+8+3)<<shift + (3+25)*10

	for _, s := range t.Sectors {
		for _, df := range dataFields {
			dist := df.offset - s.Offset
			if dist < minDistance || dist > maxDistance {
				continue
			}

			b.Seek(df.offset)
			b.ReadByte()
			b.ReadByte()
			b.ReadByte()

			raw := make([]byte, 343)
			for i := range raw {
				raw[i] = b.ReadByte()
			}

			var cksum byte
			invalid := 0
			dec := make([]byte, 343)
			for i, r := range raw {
				x := gcr6and2Decode[r]
				cksum ^= x
				dec[i] = cksum
				invalid += int(x >> 7)
			}

			out := make([]byte, 256)
			for i := range out {
				var bits byte
				switch {
				case i < 86:
					bits = dec[i] & 3
				case i < 172:
					bits = (dec[i-86] >> 2) & 3
				default:
					bits = (dec[i-172] >> 4) & 3
				}
				out[i] = (dec[i+86] << 2) | ((bits & 2) >> 1) | ((bits & 1) << 1)
			}

			bad := cksum != 0 || invalid > 0
			dam := track.DAMNormal
			if invalid > 0 {
				dam = track.DAMDeleted
			}
			outcome := s.AddData(out, bad, dam)
			if outcome != track.Unchanged && !bad {
				break
			}
		}
	}
}
