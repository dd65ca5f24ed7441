package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// amigaDataSizeCode is the size code whose SizeBytes() (512) matches
// every Amiga sector's fixed data length.
const amigaDataSizeCode = 2

// ScanAmiga scans an Amiga-format bitstream: sectors are found by the
// raw 32-bit 0x44894489 double-sync pattern (no separate address
// mark), then an odd/even-shuffled info longword + 16 unused bytes
// with its own checksum, then the odd/even-shuffled 512-byte data
// block with its own checksum (spec.md §4.4 Amiga row).
//
// Grounded on the teacher's mfm.Reader.scanAmiga/unshuffle
// (mfm/reader.go): the 32-bit rolling-history resync idiom
// (scan.history) is the same one scanIBMPC uses, reused here for a
// wider sync pattern than IBM's 16-bit marks.
func ScanAmiga(b *bitbuf.BitBuffer, rate enc.Datarate) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.Amiga
	b.Seek(0)

	result := track.NewTrack()
	h := newHistory(b)

	for !b.Wrapped() {
		h.shift()
		if h.value != 0x44894489 {
			continue
		}
		markStart := b.BitPos() - 32
		decodeAmigaSector(b, rate, result, markStart)
	}
	return result, nil
}

// decodeAmigaSector reads one sector body immediately following a
// detected double-sync pattern and, if its header checksum is
// correct, attaches the (possibly checksum-bad) data copy to result.
func decodeAmigaSector(b *bitbuf.BitBuffer, rate enc.Datarate, result *track.Track, markStart int) {
	b.Encoding = enc.MFM

	headerOdd := readBytes(b, 20)
	headerEven := readBytes(b, 20)
	headerSumOdd := readBytes(b, 4)
	headerSumEven := readBytes(b, 4)
	dataSumOdd := readBytes(b, 4)
	dataSumEven := readBytes(b, 4)
	dataSize := track.NewHeader(0, 0, 0, amigaDataSizeCode).SizeBytes()
	dataOdd := readBytes(b, dataSize)
	dataEven := readBytes(b, dataSize)

	header := enc.UnshuffleAmigaBits(headerOdd, headerEven)
	info := header[:4]

	wantHeaderSum := unshuffleChecksum(headerSumOdd, headerSumEven)
	gotHeaderSum := enc.AmigaChecksum(headerOdd, headerEven)
	if gotHeaderSum != wantHeaderSum {
		// A corrupt info longword means cyl/head/sector can't be
		// trusted; there is nothing to attach this sector's data to.
		return
	}

	cyl := int(info[0]) / 2
	headNum := int(info[0]) % 2
	sector := int(info[1])
	hdr := track.NewHeader(cyl, headNum, sector, amigaDataSizeCode)

	s := findOrAddSector(result, rate, hdr, markStart)

	wantDataSum := unshuffleChecksum(dataSumOdd, dataSumEven)
	gotDataSum := enc.AmigaChecksum(dataOdd, dataEven)
	data := enc.UnshuffleAmigaBits(dataOdd, dataEven)
	s.AddData(data, gotDataSum != wantDataSum, track.DAMNormal)
}

// findOrAddSector returns the existing sector at hdr's address within
// result, or creates and adds a fresh one -- Amiga tracks have no
// separate ID field, so the sector record itself is created lazily on
// first sight of a validated info longword.
func findOrAddSector(result *track.Track, rate enc.Datarate, hdr track.Header, offset int) *track.Sector {
	if s := result.Get(hdr); s != nil {
		return s
	}
	s := track.NewSector(rate, enc.Amiga, hdr)
	s.Offset = offset
	result.AddSector(s)
	return s
}

func unshuffleChecksum(odd, even []byte) uint32 {
	b := enc.UnshuffleAmigaBits(odd, even)
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func readBytes(b *bitbuf.BitBuffer, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b.ReadByte()
	}
	return out
}
