// Package normalise implements the track- and bitstream-level cleanup
// policy applied after a scan and before a track is trusted or
// written out: duplicate removal, privacy scrubbing, gap stripping,
// datarate/encoding/gap3 overrides, known weak-sector repair, 8K-sector
// checksum-method reconciliation, and cross-copy repair from a second
// read of the same track.
//
// Grounded directly on the teacher's NormaliseTrack, NormaliseBitstream,
// RepairTrack and ChecksumMethods (original_source/src/DiskUtil.cpp),
// and on SpecialFormat.cpp's IsSpectrumSpeedlockTrack/IsCpcSpeedlockTrack/
// IsRainbowArtsTrack weak-sector detectors.
package normalise

import (
	"bytes"

	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/crc"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/message"
	"github.com/discflux/floppy/track"
)

// GapPolicy selects how gap data (bytes captured beyond a sector's
// declared size) is treated during normalisation.
type GapPolicy int

const (
	// GapsNone strips all gap data unconditionally.
	GapsNone GapPolicy = iota
	// GapsClean strips only gap data recognised as a normal,
	// regenerable MFM gap3 run.
	GapsClean
	// GapsAll keeps gap data exactly as captured.
	GapsAll
)

// FixMode selects how known weak-sector protections are handled when
// a disk is missing the second data copy repair needs.
type FixMode int

const (
	// FixNone leaves missing weak-sector copies alone.
	FixNone FixMode = iota
	// FixWarn reports missing copies without changing anything
	// (callers surface this via their own logger).
	FixWarn
	// FixApply synthesises the missing weak-sector copy.
	FixApply
)

// Options mirrors the teacher's global opt.* fields consulted by
// NormaliseTrack, scoped down to an explicit struct so normalisation
// has no hidden global state.
type Options struct {
	NoDups   bool
	NoData   bool
	Offsets  bool
	Gaps     GapPolicy
	Datarate enc.Datarate // enc.RateUnknown leaves each sector's datarate alone
	Encoding enc.Encoding // enc.EncUnknown leaves each sector's encoding alone
	Gap3     int          // -1 leaves each sector's gap3 alone
	Fix      FixMode
	Check8K  bool
	// EightK accumulates 8K-sector checksum-method evidence across an
	// entire disk; required (non-nil) when Check8K is set, since the
	// reconciliation is inherently disk-wide rather than per-track.
	EightK *EightKChecksumState
}

// NormaliseTrack applies Options to track in place and reports whether
// anything changed. cylhead gates the cylinder-specific weak-sector
// checks (Speedlock/RainbowArts/OperaSoft all key off a known cylinder).
// sink receives Fix/Warning messages for any weak-sector repair
// considered; pass nil to discard them.
func NormaliseTrack(cylhead track.CylHead, t *track.Track, opt Options, sink message.Sink) bool {
	changed := false

	if !opt.Offsets {
		t.TrackLen = 0
	}

	if opt.NoDups {
		for i := 0; i < len(t.Sectors); i++ {
			for j := i + 1; j < len(t.Sectors); j++ {
				s, o := t.Sectors[i], t.Sectors[j]
				if s.Header.Compare(o.Header) && s.Encoding == o.Encoding {
					t.Sectors = append(t.Sectors[:j], t.Sectors[j+1:]...)
					j--
					changed = true
				}
			}
		}
	}

	for _, s := range t.Sectors {
		if opt.NoData && s.HasData() {
			s.ClearData()
			changed = true
		}
		if !opt.Offsets {
			s.Offset = 0
		}
		if opt.Datarate != enc.RateUnknown {
			s.Datarate = opt.Datarate
			changed = true
		}
		if opt.Encoding != enc.EncUnknown {
			s.Encoding = opt.Encoding
			changed = true
		}
		if opt.Gap3 != -1 {
			s.Gap3 = opt.Gap3
		}
		if s.HasGapData() {
			switch opt.Gaps {
			case GapsNone:
				s.TrimGapData()
				changed = true
			case GapsClean:
				if gap3, ok := regenerableGap3(s); ok {
					s.TrimGapData()
					if s.Gap3 == 0 {
						s.Gap3 = gap3
					}
					changed = true
				}
			case GapsAll:
				// keep gap data exactly as captured
			}
		}
	}

	if opt.Fix != FixNone {
		if cylhead.Cyl == 0 && len(t.Sectors) == 9 {
			if fixSpectrumSpeedlock(t, opt.Fix, sink) {
				changed = true
			}
			if fixCpcSpeedlock(t, opt.Fix, sink) {
				changed = true
			}
		}
		if cylhead.Cyl == 40 && len(t.Sectors) == 9 {
			if fixRainbowArts(t, opt.Fix, sink) {
				changed = true
			}
			if fixOperaSoft(t, opt.Fix, sink) {
				changed = true
			}
		}
	}

	if opt.Check8K && opt.EightK != nil && len(t.Sectors) == 1 && t.Sectors[0].Is8KSector() {
		opt.EightK.Reconcile(cylhead, t.Sectors[0], sink)
	}

	return changed
}

// NormaliseBitstream applies bitstream-level cleanup (currently just
// sync-mark alignment) and reports whether anything changed.
func NormaliseBitstream(b *bitbuf.BitBuffer) bool {
	return b.Align()
}

// regenerableGap3 is a simplified stand-in for the teacher's
// test_remove_gap3: it recognises a "normal" gap3 as a uniform run of
// filler bytes (0x4e, the standard MFM gap fill, or 0x00) trailing the
// sector's declared data size, and reports its length. The teacher's
// version additionally tolerates a bounded number of write-splice bits
// at the gap3/gap4 boundary via a bit-level TrackDataParser this
// module doesn't have; lacking that parser, a sector whose trailing
// bytes aren't a clean uniform run is conservatively left alone
// (reported as not regenerable) rather than guessed at.
func regenerableGap3(s *track.Sector) (int, bool) {
	size := s.Header.SizeBytes()
	data := s.FirstData()
	if len(data) <= size {
		return 0, false
	}
	tail := data[size:]
	fill := tail[0]
	if fill != 0x4e && fill != 0x00 {
		return 0, false
	}
	if !allEqual(tail[1:], fill) {
		return 0, false
	}
	return len(tail), true
}

// invert writes the bitwise complement of src[from:from+n] into dst at
// the same range, used by every weak-sector fixup below to synthesise
// a second copy with the "typical" differences a real weak read shows.
func invert(dst []byte, from, n int) {
	for i := from; i < from+n && i < len(dst); i++ {
		dst[i] = ^dst[i]
	}
}

// fixSpectrumSpeedlock adds whichever copies of a Spectrum +3
// Speedlock weak sector (track[1]) are missing, up to the three
// distinct copies a rescan needs to see: FixApply synthesises them,
// FixWarn only reports that they are missing.
//
// The teacher's own repair (DiskUtil.cpp's NormaliseTrack) stops at a
// second copy and leans on genuinely noisy flux from further real
// disk reads for any more; this module has no multi-revolution
// flux-noise model to draw a third copy from, so a second synthetic
// variant (the weak region filled with 0xee rather than complemented)
// stands in for it.
func fixSpectrumSpeedlock(t *track.Track, mode FixMode, sink message.Sink) bool {
	s1 := t.Sectors[1]
	offset, size, ok := isSpectrumSpeedlockTrack(t)
	if !ok || len(s1.Copies()) >= 3 {
		return false
	}
	if mode != FixApply {
		message.Emit(sink, message.Warning, "missing multiple copies of +3 Speedlock weak sector")
		return false
	}
	if len(s1.Copies()) < 2 {
		data := append([]byte(nil), s1.FirstData()...)
		invert(data, offset, size)
		s1.AddData(data, true, s1.DAM)
	}
	if len(s1.Copies()) < 3 {
		data := append([]byte(nil), s1.FirstData()...)
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < end; i++ {
			data[i] = 0xee
		}
		s1.AddData(data, true, s1.DAM)
	}
	message.Emit(sink, message.Fix, "added suitable copies of +3 Speedlock weak sector")
	return true
}

// fixCpcSpeedlock mirrors fixSpectrumSpeedlock for the CPC variant,
// whose weak sector lives at track[7].
func fixCpcSpeedlock(t *track.Track, mode FixMode, sink message.Sink) bool {
	s7 := t.Sectors[7]
	offset, size, ok := isCpcSpeedlockTrack(t)
	if !ok || len(s7.Copies()) != 1 {
		return false
	}
	if mode != FixApply {
		message.Emit(sink, message.Warning, "missing multiple copies of CPC Speedlock weak sector")
		return false
	}
	data := append([]byte(nil), s7.FirstData()...)
	invert(data, offset, size)
	s7.AddData(data, true, s7.DAM)
	message.Emit(sink, message.Fix, "added suitable second copy of CPC Speedlock weak sector")
	return true
}

// fixRainbowArts mirrors the above for the RainbowArts protection,
// whose weak sector lives at track[1] (logical sector id 198).
func fixRainbowArts(t *track.Track, mode FixMode, sink message.Sink) bool {
	s1 := t.Sectors[1]
	offset, size, ok := isRainbowArtsTrack(t)
	if !ok || len(s1.Copies()) != 1 {
		return false
	}
	if mode != FixApply {
		message.Emit(sink, message.Warning, "missing multiple copies of Rainbow Arts weak sector")
		return false
	}
	data := append([]byte(nil), s1.FirstData()...)
	invert(data, offset, size)
	s1.AddData(data, true, s1.DAM)
	message.Emit(sink, message.Fix, "added suitable second copy of Rainbow Arts weak sector")
	return true
}

// fixOperaSoft hand-crafts the missing OperaSoft 32K sector (track[8])
// from a CPDRead-style dump that captured sector 7 but not the
// synthetic eighth sector: 256 bytes of 0x55 closed by its CRC, gap
// filler out to offset 0x512, then sector 7's payload appended so the
// protection's read-past-the-declared-size check passes.
func fixOperaSoft(t *track.Track, mode FixMode, sink message.Sink) bool {
	var sector7, sector8 *track.Sector
	for _, s := range t.Sectors {
		switch s.Header.Sector {
		case 7:
			sector7 = s
		case 8:
			sector8 = s
		}
	}
	if sector7 == nil || sector8 == nil || !sector7.HasData() || sector8.HasData() {
		return false
	}
	if !isOperaSoftTrackShape(t) {
		return false
	}
	if mode != FixApply {
		message.Emit(sink, message.Warning, "missing data in OperaSoft 32K sector")
		return false
	}

	data8 := make([]byte, 256)
	for i := range data8 {
		data8[i] = 0x55
	}
	c := crc.New(crc.InitCRC)
	c.AddBlock(data8)
	bts := c.Bytes()
	data8 = append(data8, bts[0], bts[1])

	const protectionOffset = 0x512
	if len(data8) < protectionOffset {
		fill := make([]byte, protectionOffset-len(data8))
		for i := range fill {
			fill[i] = 0x4e
		}
		data8 = append(data8, fill...)
	}
	data8 = append(data8, sector7.FirstData()...)

	sector8.AddData(data8, true, sector8.DAM)
	message.Emit(sink, message.Fix, "added missing data to OperaSoft 32K sector")
	return true
}

func isSpectrumSpeedlockTrack(t *track.Track) (offset, size int, ok bool) {
	if len(t.Sectors) != 9 {
		return 0, 0, false
	}
	s0, s1 := t.Sectors[0], t.Sectors[1]
	if s0.Encoding != enc.MFM || s1.Encoding != enc.MFM ||
		s0.Datarate != enc.Rate250K || s1.Datarate != enc.Rate250K ||
		s0.Header.SizeBytes() != 512 || s1.Header.SizeBytes() != 512 {
		return 0, 0, false
	}
	data0, data1 := s0.FirstData(), s1.FirstData()
	if len(data0) < 512 || len(data1) < 512 || !hasBadDataCRC(s1) {
		return 0, 0, false
	}
	if !bytes.Contains(data0[304:313], []byte("SPEEDLOCK")) && !bytes.Contains(data0[176:185], []byte("SPEEDLOCK")) {
		return 0, 0, false
	}
	if !allEqual(data1[:len(data1)/2-1], data1[0]) {
		return 0, 512, true
	}
	return 336, 32, true
}

func isCpcSpeedlockTrack(t *track.Track) (offset, size int, ok bool) {
	if len(t.Sectors) != 9 {
		return 0, 0, false
	}
	s0, s7 := t.Sectors[0], t.Sectors[7]
	if s0.Encoding != enc.MFM || s7.Encoding != enc.MFM ||
		s0.Datarate != enc.Rate250K || s7.Datarate != enc.Rate250K ||
		s0.Header.SizeBytes() != 512 || s7.Header.SizeBytes() != 512 {
		return 0, 0, false
	}
	data0, data7 := s0.FirstData(), s7.FirstData()
	if len(data0) < 512 || len(data7) < 512 || !hasBadDataCRC(s7) {
		return 0, 0, false
	}
	hasSig := bytes.Contains(data0[257:266], []byte("SPEEDLOCK")) || bytes.Contains(data0[129:138], []byte("SPEEDLOCK"))
	if !hasSig {
		sig := []byte{0x4a, 0x00, 0x09, 0x46, 0x00, 0x00, 0x00, 0x42, 0x02, 0x47, 0x2a, 0xff}
		if !bytes.Equal(data0[208:208+len(sig)], sig) || crc.Block(crc.InitCRC, data0[49:220]) != 0x62c2 {
			return 0, 0, false
		}
	}
	switch {
	case !allEqual(data7[:len(data7)/2-1], data7[0]):
		return 0, 512, true
	case data0[129] == 'S':
		return 256, 256, true
	default:
		return 336, 32, true
	}
}

func isRainbowArtsTrack(t *track.Track) (offset, size int, ok bool) {
	if len(t.Sectors) != 9 {
		return 0, 0, false
	}
	s1, s3 := t.Sectors[1], t.Sectors[3]
	if s1.Encoding != enc.MFM || s3.Encoding != enc.MFM ||
		s1.Datarate != enc.Rate250K || s3.Datarate != enc.Rate250K ||
		s1.Header.SizeBytes() != 512 || s3.Header.SizeBytes() != 512 ||
		s1.Header.Sector != 198 || !hasBadDataCRC(s1) {
		return 0, 0, false
	}
	data3 := s3.FirstData()
	if len(data3) < 512 {
		return 0, 0, false
	}
	sig := []byte{0x2a, 0x6d, 0xa7, 0x01, 0x30, 0x01, 0xaf, 0xed, 0x42, 0x4d, 0x44, 0x21, 0x70, 0x01}
	if !bytes.Equal(data3[:len(sig)], sig) {
		return 0, 0, false
	}
	return 100, 256, true
}

func isOperaSoftTrackShape(t *track.Track) bool {
	if len(t.Sectors) != 9 {
		return false
	}
	sizes := []int{1, 1, 1, 1, 1, 1, 1, 1, 8}
	var mask uint32
	for i, s := range t.Sectors {
		if s.Datarate != enc.Rate250K || s.Encoding != enc.MFM || s.Header.SizeCode != sizes[i] {
			return false
		}
		mask |= 1 << uint(s.Header.Sector)
	}
	return mask == (1<<9)-1
}

func hasBadDataCRC(s *track.Sector) bool {
	for _, c := range s.Copies() {
		if c.BadDataCRC {
			return true
		}
	}
	return false
}

func allEqual(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}

// RepairTrack merges sectors from src into t, preferring t's own data
// where both hold a copy, and appending any sector present only in src
// (inserted just before the first sector that follows it on src, or at
// the end if none do). Repeated sectors on either track are skipped
// since the correct source copy would be ambiguous. Returns whether t
// changed.
func RepairTrack(cylhead track.CylHead, t *track.Track, src *track.Track, sink message.Sink) bool {
	changed := false

	for _, srcSector := range src.Sectors {
		if src.IsRepeated(srcSector) {
			continue
		}

		rate := srcSector.Datarate
		if len(t.Sectors) > 0 {
			is250or300 := func(r enc.Datarate) bool { return r == enc.Rate250K || r == enc.Rate300K }
			if is250or300(t.Sectors[0].Datarate) && is250or300(rate) {
				rate = t.Sectors[0].Datarate
			}
		}

		target := findSector(t, srcSector.Header, rate, srcSector.Encoding)
		if target != nil {
			if t.IsRepeated(target) {
				continue
			}
			beforeGood := target.HasGoodData()
			outcome := track.Unchanged
			for _, c := range srcSector.Copies() {
				if r := target.AddData(c.Data, c.BadDataCRC, srcSector.DAM); r != track.Unchanged {
					outcome = r
				}
			}
			if outcome != track.Unchanged {
				changed = true
				if target.HasGoodData() && !beforeGood {
					message.Emit(sink, message.Fix, "repaired %s sector %d", cylhead, target.Header.Sector)
				} else {
					message.Emit(sink, message.Fix, "improved %s sector %d", cylhead, target.Header.Sector)
				}
			}
			continue
		}

		insertIdx := len(t.Sectors)
		srcIdx := indexOf(src, srcSector)
		for i := srcIdx + 1; i < len(src.Sectors); i++ {
			if m := findSector(t, src.Sectors[i].Header, src.Sectors[i].Datarate, src.Sectors[i].Encoding); m != nil {
				insertIdx = indexOf(t, m)
				break
			}
		}

		clone := cloneSector(srcSector)
		clone.Datarate = rate
		t.Sectors = append(t.Sectors, nil)
		copy(t.Sectors[insertIdx+1:], t.Sectors[insertIdx:])
		t.Sectors[insertIdx] = clone
		changed = true
		message.Emit(sink, message.Fix, "added missing %s sector %d", cylhead, srcSector.Header.Sector)
	}

	return changed
}

func findSector(t *track.Track, h track.Header, rate enc.Datarate, encoding enc.Encoding) *track.Sector {
	for _, s := range t.Sectors {
		if s.Header.Compare(h) && s.Datarate == rate && s.Encoding == encoding {
			return s
		}
	}
	return nil
}

func indexOf(t *track.Track, s *track.Sector) int {
	for i, o := range t.Sectors {
		if o == s {
			return i
		}
	}
	return -1
}

func cloneSector(s *track.Sector) *track.Sector {
	clone := track.NewSector(s.Datarate, s.Encoding, s.Header)
	clone.Offset = s.Offset
	clone.Gap3 = s.Gap3
	clone.BadIDCRC = s.BadIDCRC
	for _, c := range s.Copies() {
		clone.AddData(c.Data, c.BadDataCRC, s.DAM)
	}
	return clone
}
