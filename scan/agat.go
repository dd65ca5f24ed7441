package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

type agatDataField struct{ offset int }

// ScanAgat scans an Agat 840K MFM track: address and data field
// prologues are recognised as one of three observed MFM-encoded
// bit patterns (hardware jitter and at least one known HFE-conversion
// tool each produce a slightly different clocking of the same 0xA4/
// 0xFF gap byte pair), followed by a 2-byte 0x956A (IDAM) or 0x6A95
// (DAM) tag, a 4-byte id field ending in a 0x5A epilogue, and (for
// data) a 256-byte body closed by a single rollover-adjusted byte-sum
// checksum.
//
// Grounded directly on the teacher's scan_bitstream_agat
// (BitstreamDecoder.cpp).
func ScanAgat(b *bitbuf.BitBuffer, rate enc.Datarate, cyl, head int) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.MFM
	b.Seek(0)

	result := track.NewTrack()
	trackLen := b.TrackBitSize()
	var dataFields []agatDataField
	var window uint64

	for !b.Wrapped() {
		if len(result.Sectors) == 0 && b.BitPos() > trackLen {
			break
		}

		window <<= 1
		if b.Read1() {
			window |= 1
		}
		window &= 0x1ffffffff

		switch window {
		case 0x89245555, 0x44922d55, 0x44905555:
			// sync recognised
		default:
			continue
		}

		amOffset := b.BitPos()
		am := int(b.ReadByte())<<8 | int(b.ReadByte())

		switch am {
		case 0x956a:
			id := make([]byte, 4)
			for i := range id {
				id[i] = b.ReadByte()
			}
			if id[3] != 0x5a {
				continue
			}
			s := track.NewSector(rate, enc.Agat, track.NewHeader(cyl, head, int(id[2]), 1))
			s.Offset = b.TrackOffset(amOffset)
			result.AddSector(s)
		case 0x6a95:
			dataFields = append(dataFields, agatDataField{offset: amOffset})
		}
	}

	attachAgatData(b, result, dataFields)
	return result, nil
}

func attachAgatData(b *bitbuf.BitBuffer, t *track.Track, fields []agatDataField) {
	const shift = 4
	const gap2Size = 5
	minDistance := (2 + 4 + gap2Size) << shift
	maxDistance := (2 + 4 + gap2Size + 16) << shift

	for _, s := range t.Sectors {
		for _, df := range fields {
			damOffset := b.TrackOffset(df.offset)
			dist := damOffset - s.Offset
			if dist < 0 {
				dist += b.TrackBitSize()
			}
			if dist < minDistance || dist > maxDistance {
				continue
			}

			b.Seek(df.offset)
			b.ReadByte()
			b.ReadByte()

			size := s.Header.SizeBytes()
			data := make([]byte, size+1)
			for i := range data {
				data[i] = b.ReadByte()
			}
			stored := data[size]

			var cksum int
			for i := 0; i < size; i++ {
				if cksum > 255 {
					cksum++
					cksum &= 255
				}
				cksum += int(data[i])
			}
			cksum &= 255

			bad := int(stored) != cksum
			outcome := s.AddData(data[:size], bad, track.DAMNormal)
			if outcome != track.Unchanged && !bad {
				break
			}
		}
	}
}
