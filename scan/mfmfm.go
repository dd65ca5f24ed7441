package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/crc"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// damTag classifies a data address mark byte against the known set.
func damTag(b byte) (track.DAM, bool) {
	switch b {
	case 0xFB:
		return track.DAMNormal, true
	case 0xF8:
		return track.DAMDeleted, true
	case 0xF9:
		return track.DAMAlt1, true
	case 0xFA:
		return track.DAMAlt2, true
	case 0xFD:
		return track.DAMRX02, true
	}
	return track.DAMNone, false
}

type damCandidate struct {
	offset int
	dam    track.DAM
}

// ScanMFMFM scans an MFM or FM bitstream for IBM-PC-style sectors,
// including the RX02 variant (FM IDAM, then MFM data+CRC once a 0xFD
// DAM is seen). Grounded on the teacher's mfm.Reader.scanIBMPC /
// ReadSectorIBMPC (mfm/reader.go), generalised from "exactly one
// 512-byte sector shape" to arbitrary size codes, multiple DAM types,
// and the RX02 encoding switch (spec.md §4.4).
func ScanMFMFM(b *bitbuf.BitBuffer, rate enc.Datarate, encoding enc.Encoding, gap2 int) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = encoding
	b.Seek(0)

	result := track.NewTrack()
	var candidates []damCandidate

	idEncoding := encoding
	if encoding == enc.RX02 {
		idEncoding = enc.FM
	}

	// Terminate as soon as the bitstream wraps past one revolution,
	// whether or not any sector has been found yet (spec.md §4.4).
	for {
		tag, offset, ok := scanMarkGeneric(b, idEncoding)
		if !ok {
			break
		}

		switch {
		case tag == 0xFE:
			hdr := decodeIDAM(b, idEncoding)
			s := track.NewSector(rate, encoding, hdr.header)
			s.BadIDCRC = hdr.badCRC
			s.Offset = offset
			result.AddSector(s)
		default:
			if dam, ok := damTag(tag); ok {
				candidates = append(candidates, damCandidate{offset: offset, dam: dam})
			}
		}
	}

	attachData(b, result, candidates, encoding, gap2)
	return result, nil
}

type idamResult struct {
	header track.Header
	badCRC bool
}

// decodeIDAM reads the six bytes following an 0xFE tag (C,H,R,N plus
// a two-byte CRC) and validates the header CRC, seeded per encoding:
// MFM seeds from crc.A1A1A1 (the three-0xA1-sync value), FM/RX02 seed
// from crc.InitCRC.
func decodeIDAM(b *bitbuf.BitBuffer, idEncoding enc.Encoding) idamResult {
	b.Encoding = idEncoding
	raw := make([]byte, 6)
	for i := range raw {
		raw[i] = b.ReadByte()
	}
	seed := crc.InitCRC
	if idEncoding == enc.MFM {
		seed = crc.A1A1A1
	}
	got := crc.Block(seed, append([]byte{0xFE}, raw[:4]...))
	want := uint16(raw[4])<<8 | uint16(raw[5])
	header := track.NewHeader(int(raw[0]), int(raw[1]), int(raw[2]), int(raw[3]))
	return idamResult{header: header, badCRC: got != want}
}

// scanMarkGeneric shifts bits until a recognised address mark is
// found (IDAM 0xFE or any DAM byte), returning the tag and the bit
// offset of the mark's first sync cell.
func scanMarkGeneric(b *bitbuf.BitBuffer, idEncoding enc.Encoding) (tag byte, offset int, ok bool) {
	if idEncoding == enc.MFM {
		return scanMarkMFM(b)
	}
	return scanMarkFM(b)
}

// scanMarkMFM looks for the 0x4489 (A1, clock 0x0A) sync cell pattern
// followed by a normally MFM-decoded tag byte.
func scanMarkMFM(b *bitbuf.BitBuffer) (byte, int, bool) {
	window := uint16(0)
	for !b.Wrapped() {
		startPos := b.BitPos()
		bit := b.Read1()
		window <<= 1
		if bit {
			window |= 1
		}
		if window != enc.MarkA1 {
			continue
		}
		markStart := startPos - 15
		// Skip two more A1 sync bytes (16 cells each); don't
		// require them to re-match exactly, real captures can
		// splice mid-sync.
		for i := 0; i < 32 && !b.Wrapped(); i++ {
			b.Read1()
		}
		b.Encoding = enc.MFM
		tag := b.ReadByte()
		return tag, markStart, true
	}
	return 0, 0, false
}

// scanMarkFM looks for any of the known FM tag bytes encoded with
// clock 0xC7, matched directly as a 16-cell raw pattern (no sync
// prefix precedes FM address marks).
func scanMarkFM(b *bitbuf.BitBuffer) (byte, int, bool) {
	tags := []byte{0xFE, 0xFB, 0xF8, 0xF9, 0xFA, 0xFD}
	patterns := make(map[uint16]byte, len(tags))
	for _, t := range tags {
		patterns[enc.InterleaveClockData(0xC7, t)] = t
	}

	window := uint16(0)
	for !b.Wrapped() {
		startPos := b.BitPos()
		bit := b.Read1()
		window <<= 1
		if bit {
			window |= 1
		}
		if tag, ok := patterns[window]; ok {
			return tag, startPos - 15, true
		}
	}
	return 0, 0, false
}

// attachData runs the second pass of §4.4: for each sector found,
// scan the DAM candidate list for one within the header-to-data
// window, read and verify its data field, and attach it.
func attachData(b *bitbuf.BitBuffer, t *track.Track, candidates []damCandidate, encoding enc.Encoding, gap2 int) {
	idEncoding := encoding
	dataEncoding := encoding
	if encoding == enc.RX02 {
		idEncoding = enc.FM
		dataEncoding = enc.MFM
	}
	min, max := headerToDataWindow(idEncoding, gap2)

	for _, s := range t.Sectors {
		if s.BadIDCRC {
			continue
		}
		for _, cand := range candidates {
			dist := cand.offset - s.Offset
			if dist < min || dist > max {
				continue
			}
			size := s.Header.SizeBytes()
			if encoding == enc.RX02 {
				// RX02 doubles the data size relative to the header
				// size code (spec.md S4: "header.size = 1" yields
				// 256-byte data for size-code 0).
				size = track.NewHeader(0, 0, 0, s.Header.SizeCode+1).SizeBytes()
			}

			// cand.offset is the mark's first sync cell: skip the
			// three A1 sync bytes and the tag byte (MFM) or the
			// 16-cell clocked tag (FM/RX02); the tag was already
			// decoded by scanMarkGeneric.
			b.Seek(cand.offset)
			skip := 16
			if idEncoding == enc.MFM {
				skip = 4 * 16
			}
			for i := 0; i < skip; i++ {
				b.Read1()
			}
			tagByte := byte(cand.dam)
			b.Encoding = dataEncoding
			data := make([]byte, size)
			for i := range data {
				data[i] = b.ReadByte()
			}
			crcHi := b.ReadByte()
			crcLo := b.ReadByte()

			seed := crc.InitCRC
			if dataEncoding == enc.MFM {
				seed = crc.A1A1A1
			}
			got := crc.Block(seed, append([]byte{tagByte}, data...))
			want := uint16(crcHi)<<8 | uint16(crcLo)
			bad := got != want

			dam, _ := damTag(tagByte)
			outcome := s.AddData(data, bad, dam)
			if outcome != track.Unchanged && !bad {
				break
			}
		}
	}
}
