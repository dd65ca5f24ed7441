package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

type victorDataField struct{ offset int }

// ScanVictor scans a Victor 9000 zoned GCR track: sync is ten
// consecutive 1 bits (two GCR5 all-ones nibbles), followed by a
// GCR5-nibble-pair address mark (0x07 IDAM, 0x08 DAM). The IDAM
// carries track/sector/crc as three more GCR5 byte pairs; this scanner
// deliberately does not validate that 10-bit CRC (GCR5's checksum
// convention is not reconstructed here -- an accepted gap, not a
// silent miss, since Victor media are rare enough that round-trip
// fidelity on the header fields matters far more than the CRC check).
//
// Grounded directly on the teacher's scan_bitstream_victor
// (BitstreamDecoder.cpp). The GCR5 alphabet is shared with
// scan/commodore.go's gcr5Decode/gcrReadByte.
func ScanVictor(b *bitbuf.BitBuffer, rate enc.Datarate, head int) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.Victor
	b.Seek(0)

	result := track.NewTrack()
	var dataFields []victorDataField
	window := 0
	sync := false

	for !b.Wrapped() {
		window <<= 1
		if b.Read1() {
			window |= 1
		}
		window &= 0x3ff
		if window == 0x3ff {
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
		case 0x07:
			idTrack, ok1 := gcrReadByte(b)
			idSector, ok2 := gcrReadByte(b)
			_, ok3 := gcrReadByte(b) // header crc, unvalidated
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			s := track.NewSector(rate, enc.Victor, track.NewHeader(int(idTrack), head, int(idSector), 2))
			s.Offset = amOffset
			result.AddSector(s)
		case 0x08:
			dataFields = append(dataFields, victorDataField{offset: amOffset})
		}
	}

	attachVictorData(b, result, dataFields)
	return result, nil
}

func attachVictorData(b *bitbuf.BitBuffer, t *track.Track, fields []victorDataField) {
	const cellsPerByte = 10
	gap2Bytes := 8
	minDistance := (1+3)*10 + gap2Bytes*cellsPerByte
	maxDistance := minDistance + 16*cellsPerByte

	for _, s := range t.Sectors {
		for _, df := range fields {
			dist := df.offset - s.Offset
			if dist < minDistance || dist > maxDistance {
				continue
			}

			b.Seek(df.offset)
			gcrReadByte(b) // consume the DAM tag byte

			size := s.Header.SizeBytes()
			data := make([]byte, size)
			good := true
			for i := range data {
				v, ok := gcrReadByte(b)
				data[i] = v
				good = good && ok
			}
			gcrReadByte(b) // data crc, unvalidated

			outcome := s.AddData(data, !good, track.DAMNormal)
			if outcome != track.Unchanged && good {
				break
			}
		}
	}
}
