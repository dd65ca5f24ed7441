package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// gcr5Decode maps a raw 5-bit Commodore GCR code to its 4-bit nibble,
// or 0xFF if the code is not part of the legal alphabet. Grounded on
// the teacher's gcr5 table (BitstreamDecoder.cpp), translated from
// its character literals back to the nibble values they name.
var gcr5Decode = [32]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0x8, 0x0, 0x1, 0xFF, 0xC, 0x4, 0x5,
	0xFF, 0xFF, 0x2, 0x3, 0xFF, 0xF, 0x6, 0x7,
	0xFF, 0x9, 0xA, 0xB, 0xFF, 0xD, 0xE, 0xFF,
}

const (
	commodoreAM   = 0x08
	commodoreDAM  = 0x07
	commodoreSize = 1 // SizeCode for 256 bytes
)

// gcrReadNibble reads one 5-bit GCR code and decodes it.
func gcrReadNibble(b *bitbuf.BitBuffer) (byte, bool) {
	v := byte(0)
	for i := 0; i < 5; i++ {
		v <<= 1
		if b.Read1() {
			v |= 1
		}
	}
	n := gcr5Decode[v]
	return n, n != 0xFF
}

// gcrReadByte decodes one GCR byte as two 5-bit nibble codes.
func gcrReadByte(b *bitbuf.BitBuffer) (byte, bool) {
	hi, ok1 := gcrReadNibble(b)
	lo, ok2 := gcrReadNibble(b)
	return hi<<4 | lo, ok1 && ok2
}

type commodoreDAMCandidate struct{ offset int }

// ScanCommodore scans a Commodore 1541-style GCR bitstream: sectors
// are delimited by a long run of 1 bits (sync) followed by an 0x08
// (IDAM) or 0x07 (DAM) GCR-decoded tag byte; the header carries an
// XOR checksum over sector/track/disk-id, and the 256-byte data field
// carries a trailing XOR checksum byte (spec.md §4.4 GCR row).
//
// Grounded on the teacher's scan_bitstream_gcr (BitstreamDecoder.cpp).
func ScanCommodore(b *bitbuf.BitBuffer, rate enc.Datarate) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.GCR
	b.Seek(0)

	result := track.NewTrack()
	var candidates []commodoreDAMCandidate
	window := uint32(0)
	sync := false

	for !b.Wrapped() {
		window = (window << 1) & 0xffffff
		if b.Read1() {
			window |= 1
		}
		if window == 0xffffff {
			sync = true
			continue
		}
		if !sync {
			continue
		}
		sync = false

		amOffset := b.BitPos() - 1
		b.Seek(amOffset)
		am, ok := gcrReadByte(b)
		if !ok {
			continue
		}

		switch am {
		case commodoreAM:
			id := make([]byte, 7)
			good := true
			for i := range id {
				v, okb := gcrReadByte(b)
				id[i] = v
				good = good && okb
			}
			if !good {
				continue
			}
			if id[1]^id[2]^id[3]^id[4] != id[0] {
				continue
			}
			hdr := track.NewHeader(int(id[2])-1, 0, int(id[1]), commodoreSize)
			s := track.NewSector(rate, enc.GCR, hdr)
			s.Offset = amOffset
			result.AddSector(s)
		case commodoreDAM:
			candidates = append(candidates, commodoreDAMCandidate{offset: amOffset})
		}
	}

	attachCommodoreData(b, result, candidates)
	return result, nil
}

func attachCommodoreData(b *bitbuf.BitBuffer, t *track.Track, candidates []commodoreDAMCandidate) {
	const cellsPerByte = 10 // two 5-bit GCR codes
	gap2Bytes := 8
	minDistance := (1+3)*10 + gap2Bytes*cellsPerByte
	maxDistance := minDistance + 16*cellsPerByte

	for _, s := range t.Sectors {
		for _, cand := range candidates {
			dist := cand.offset - s.Offset
			if dist < minDistance || dist > maxDistance {
				continue
			}

			b.Seek(cand.offset)
			gcrReadByte(b) // consume the DAM tag byte itself

			size := s.Header.SizeBytes()
			data := make([]byte, size)
			good := true
			var sum byte
			for i := range data {
				v, ok := gcrReadByte(b)
				data[i] = v
				good = good && ok
				sum ^= v
			}
			want, ok := gcrReadByte(b)
			good = good && ok

			bad := !good || sum != want
			outcome := s.AddData(data, bad, track.DAMNormal)
			if outcome != track.Unchanged && !bad {
				break
			}
		}
	}
}
