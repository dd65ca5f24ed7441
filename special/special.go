// Package special implements the copy-protection track detectors and
// generators of spec.md §4.6: each known protection gets an
// Is<X>Track predicate run against a scanned Track, and a
// Generate<X>Track that re-synthesises the bitstream the protection
// needs. GenerateSpecial probes the empty-track, System-24, OperaSoft
// and 8K-sector detectors in that order and runs the first matching
// generator; the Spectrum +3 Speedlock detector and generator are not
// dispatched by GenerateSpecial.
//
// Grounded directly on the teacher's SpecialFormat.cpp. Not every
// protection documented there is ported -- KBI-19, CPC and
// RainbowArts Speedlock and KBI-10 all lean on the teacher's
// retroactive "addCrc(n)" (computing a CRC over the last n already-
// written bytes), a capability this module's streaming CRC builder
// (build.Builder) doesn't have; porting them would mean redesigning
// the builder's CRC model for a handful of rare protections. The ones
// below (empty track, System-24, OperaSoft, 8K sector, Spectrum +3
// Speedlock) need no such
// retroactive CRC and are ported faithfully; see DESIGN.md for the
// per-protection ledger.
package special

import (
	"bytes"

	"github.com/discflux/floppy/build"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// IsEmptyTrack reports whether track holds no sectors at all.
func IsEmptyTrack(t *track.Track) bool {
	return t.Size() == 0
}

// GenerateEmptyTrack produces a DD track that is pure gap filler: the
// datarate/encoding don't matter since there are no sync marks to
// place, so 250K MFM is used as an arbitrary but conventional choice.
func GenerateEmptyTrack(t *track.Track) *build.BitstreamTrackBuilder {
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddBlockFill(0x4e, 6250)
	return bt
}

// IsSystem24Track reports whether track matches the Sega System-24
// 0x2F00 layout: exactly seven 500K MFM sectors with declared sizes
// 4,4,4,4,4,3,1, each already carrying data.
func IsSystem24Track(t *track.Track) bool {
	sizes := []int{4, 4, 4, 4, 4, 3, 1}
	if len(t.Sectors) != len(sizes) {
		return false
	}
	for i, s := range t.Sectors {
		if s.Datarate != enc.Rate500K || s.Encoding != enc.MFM || s.Header.SizeCode != sizes[i] || !s.HasData() {
			return false
		}
	}
	return true
}

// GenerateSystem24Track re-emits each sector with the shorter gap3
// (41 bytes) System-24 uses after the sixth sector, and the normal 52
// bytes before it.
func GenerateSystem24Track(t *track.Track) *build.BitstreamTrackBuilder {
	bt := build.NewBitstreamTrackBuilder(enc.Rate500K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	for _, s := range t.Sectors {
		gap3 := 52
		if s.Header.Sector >= 6 {
			gap3 = 41
		}
		bt.AddSector(build.SectorSpec{
			Header: s.Header,
			Data:   s.FirstData(),
			Gap2:   22,
			Gap3:   gap3,
			DAM:    s.DAM,
		})
	}
	return bt
}

// IsOperaSoftTrack reports whether track matches OperaSoft's
// nine-sector layout: eight normal sectors (size code 1) plus one
// oversized 8-size-code sector carrying a 32K payload, numbered 0-8
// with no gaps in the sector-id set.
func IsOperaSoftTrack(t *track.Track) bool {
	if len(t.Sectors) != 9 {
		return false
	}
	sizes := []int{1, 1, 1, 1, 1, 1, 1, 1, 8}
	var mask uint32
	for i, s := range t.Sectors {
		if s.Datarate != enc.Rate250K || s.Encoding != enc.MFM {
			return false
		}
		if s.Header.SizeCode != sizes[i] {
			return false
		}
		mask |= 1 << uint(s.Header.Sector)
	}
	return mask == (1<<9)-1
}

// GenerateOperaSoftTrack re-emits the eight normal sectors as usual,
// then hand-crafts the ninth: a sector-8 header whose data field is
// actually sector 7's 256-byte payload, preceded by a dummy 256-byte
// 0x55 block (closed by its own CRC) that the original disc used to
// pad out the sector's declared size code 8 (32K).
func GenerateOperaSoftTrack(t *track.Track) *build.BitstreamTrackBuilder {
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)

	var sector7 *track.Sector
	for _, s := range t.Sectors {
		if s.Header.Sector == 7 {
			sector7 = s
		}
	}

	for _, s := range t.Sectors {
		if s.Header.Sector != 8 {
			bt.AddSector(build.SectorSpec{
				Header: s.Header,
				Data:   s.FirstData(),
				Gap2:   22,
				Gap3:   0xf0,
				DAM:    s.DAM,
			})
			continue
		}
		bt.AddSectorHeader(s.Header, false)
		bt.AddGap(22, 0)
		bt.AddAM(byte(s.DAM))
		dummy := make([]byte, 256)
		for i := range dummy {
			dummy[i] = 0x55
		}
		bt.AddBlockUpdateCRC(dummy)
		bt.AddCRCBytes(false)
		bt.AddGap(0x512-256-2, 0x4e)
		if sector7 != nil {
			bt.AddBlock(sector7.FirstData())
		}
	}
	return bt
}

// Is8KSectorTrack reports whether track is a single MFM size-code-6
// (8192-byte declared) sector -- the long-track coin-op format.
func Is8KSectorTrack(t *track.Track) bool {
	if len(t.Sectors) != 1 {
		return false
	}
	s := t.Sectors[0]
	return s.Datarate == enc.Rate250K && s.Encoding == enc.MFM && s.Header.SizeCode == 6 && s.HasData()
}

// GenerateEightKSectorTrack re-emits the single 8K sector's header and
// data up to a maximum of 0x18a3 bytes (the longest capture observed,
// from Coin-Op Hits), padded to that length with gap filler -- no
// trailing CRC field, matching the original long-track layout.
func GenerateEightKSectorTrack(t *track.Track) *build.BitstreamTrackBuilder {
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddGap(16, 0)
	bt.AddIAM()
	bt.AddGap(16, 0)

	s := t.Sectors[0]
	bt.AddSectorHeader(s.Header, false)
	bt.AddGap(22, 0)
	bt.AddAM(byte(s.DAM))

	const maxSize = 0x18a3
	data := s.FirstData()
	if len(data) > maxSize {
		data = data[:maxSize]
	}
	bt.AddBlock(data)
	bt.AddGap(maxSize-len(data), 0)
	return bt
}

// speedlockSignature is the literal string the Spectrum +3 Speedlock
// protection stamps into sector 0's data field, at one of two known
// offsets depending on release.
const speedlockSignature = "SPEEDLOCK"

// IsSpectrumSpeedlockTrack reports whether t matches the Spectrum +3
// Speedlock weak-sector layout: a 9-sector 250K MFM track whose
// sector 0 carries the SPEEDLOCK signature and whose sector 1 is a
// fuzzy sector (at least one copy with a bad data CRC). weakOffset/
// weakSize name the byte range within sector 1's data that differs
// between reads -- the full 512 bytes for the "fully weak" variant
// (reported when the first half of the first copy's data is not one
// repeated byte value), or the
// narrower [336,368) range real +3 Speedlock releases mostly use.
func IsSpectrumSpeedlockTrack(t *track.Track) (weakOffset, weakSize int, ok bool) {
	if t.Size() != 9 {
		return 0, 0, false
	}
	s0, s1 := t.Sectors[0], t.Sectors[1]
	if s0.Encoding != enc.MFM || s1.Encoding != enc.MFM ||
		s0.Datarate != enc.Rate250K || s1.Datarate != enc.Rate250K ||
		s0.Header.SizeBytes() != 512 || s1.Header.SizeBytes() != 512 ||
		!s0.HasData() || !s1.HasData() || !hasBadDataCopy(s1) {
		return 0, 0, false
	}

	data0 := s0.FirstData()
	sig := []byte(speedlockSignature)
	at304 := len(data0) >= 313 && bytes.Equal(data0[304:313], sig)
	at176 := len(data0) >= 185 && bytes.Equal(data0[176:185], sig)
	if !at304 && !at176 {
		return 0, 0, false
	}

	data1 := s1.FirstData()
	half := len(data1) / 2
	if half > 1 && !bytes.Equal(data1[:half-1], data1[1:half]) {
		return 0, 512, true
	}
	return 336, 32, true
}

// hasBadDataCopy reports whether any of s's data copies has a bad
// data CRC, the signal a weak/fuzzy sector leaves in this model.
func hasBadDataCopy(s *track.Sector) bool {
	for _, c := range s.Copies() {
		if c.BadDataCRC {
			return true
		}
	}
	return false
}

// GenerateSpectrumSpeedlockTrack re-synthesises a Spectrum +3
// Speedlock track's bitstream: every sector re-emitted at its usual
// position, except sector 1 (the weak sector), whose weak byte range
// is written with three distinct fills at three points around the
// track -- its usual position (the sector's own first data copy),
// and duplicate occurrences after sectors 3 and 5 (0xee- and
// 0x00-filled respectively) -- so that rescanning the regenerated
// bitstream finds three data copies for sector 1, per spec.md §8
// scenario S5.
//
// Grounded on the teacher's GenerateSpectrumSpeedlockTrack
// (SpecialFormat.cpp), which duplicates the weak sector once (to two
// physical copies) and relies on genuinely noisy flux, decoded across
// multiple captured revolutions, to produce further distinct copies
// on top of that; this module has no multi-revolution flux-noise
// model, so a third explicit duplicate with its own distinct
// weak-region fill stands in as the deterministic equivalent.
func GenerateSpectrumSpeedlockTrack(t *track.Track) *build.BitstreamTrackBuilder {
	weakOffset, weakSize, ok := IsSpectrumSpeedlockTrack(t)
	if !ok {
		return nil
	}
	s1 := t.Sectors[1]
	original := s1.FirstData()

	fill := func(b byte) []byte {
		d := append([]byte(nil), original...)
		end := weakOffset + weakSize
		if end > len(d) {
			end = len(d)
		}
		for i := weakOffset; i < end; i++ {
			d[i] = b
		}
		return d
	}

	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	for _, s := range t.Sectors {
		isWeak := s.Header.Sector == s1.Header.Sector
		bt.AddSector(build.SectorSpec{
			Header:     s.Header,
			Data:       s.FirstData(),
			Gap2:       22,
			Gap3:       52,
			DAM:        s.DAM,
			DataCRCBad: isWeak,
		})
		switch s.Header.Sector {
		case t.Sectors[3].Header.Sector:
			bt.AddSector(build.SectorSpec{
				Header:     s1.Header,
				Data:       fill(0xee),
				Gap2:       22,
				Gap3:       52,
				DAM:        s1.DAM,
				DataCRCBad: true,
			})
		case t.Sectors[5].Header.Sector:
			bt.AddSector(build.SectorSpec{
				Header:     s1.Header,
				Data:       fill(0x00),
				Gap2:       22,
				Gap3:       52,
				DAM:        s1.DAM,
				DataCRCBad: true,
			})
		}
	}
	return bt
}

// GenerateSpecial probes the empty-track, System-24, OperaSoft and
// 8K-sector detectors in that order and returns the bitstream builder
// for the first match, or nil if t matches none of them. Spectrum +3
// Speedlock tracks are not probed here. Mirrors the teacher's generate_special dispatch order.
func GenerateSpecial(t *track.Track) *build.BitstreamTrackBuilder {
	switch {
	case IsEmptyTrack(t):
		return GenerateEmptyTrack(t)
	case IsSystem24Track(t):
		return GenerateSystem24Track(t)
	case IsOperaSoftTrack(t):
		return GenerateOperaSoftTrack(t)
	case Is8KSectorTrack(t):
		return GenerateEightKSectorTrack(t)
	}
	return nil
}
