package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// ScanMX scans a DVK "MX" disk track: FM-encoded, one sync pattern
// per track (the FM rendering of data byte 0xF3) followed by a
// 2-byte track number and eleven fixed 256-byte sectors, each closed
// by a 16-bit additive checksum (not CRC-16) over its 128 little-
// endian words.
//
// Grounded directly on the teacher's scan_bitstream_mx
// (BitstreamDecoder.cpp).
func ScanMX(b *bitbuf.BitBuffer, rate enc.Datarate, head int) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.FM
	b.Seek(0)

	result := track.NewTrack()
	trackLen := b.TrackBitSize()
	var window uint64
	sync := false

	for !b.Wrapped() {
		if len(result.Sectors) == 0 && b.BitPos() > trackLen {
			break
		}
		if sync {
			break
		}

		window = (window << 1)
		if b.Read1() {
			window |= 1
		}

		if window != 0x88888888aaaa88aa { // FM-encoded 0x00F3
			continue
		}
		sync = true

		storedTrack := int(b.ReadByte())<<8 | int(b.ReadByte())

		zeroCksum := false
		for s := 0; s < 11; s++ {
			sec := track.NewSector(rate, enc.MX, track.NewHeader(storedTrack, head, s, 1))
			sec.Offset = b.TrackOffset(b.BitPos())

			block := make([]byte, 256)
			var cksum uint32
			for i := 0; i < 128; i++ {
				msb := b.ReadByte()
				lsb := b.ReadByte()
				cksum += uint32(lsb) | uint32(msb)<<8
				block[i*2] = lsb
				block[i*2+1] = msb
			}
			cksum &= 0xffff

			storedCksum := uint32(b.ReadByte())<<8 | uint32(b.ReadByte())

			if cksum != storedCksum {
				sec.AddData(block, true, track.DAMNormal)
				if storedCksum == 0 {
					zeroCksum = true
				}
			} else {
				sec.AddData(block, zeroCksum && storedCksum == 0, track.DAMNormal)
			}
			result.AddSector(sec)
		}

		b.ReadByte()
		b.ReadByte() // trailing "extra" word, unused
	}

	return result, nil
}
