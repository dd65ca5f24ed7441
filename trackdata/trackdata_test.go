package trackdata

import (
	"testing"

	"github.com/discflux/floppy/build"
	"github.com/discflux/floppy/coreerr"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// TestTrackFromBitstream exercises Track()'s bitstream-to-track path
// via a hand-built single-sector MFM bitstream.
func TestTrackFromBitstream(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	hdr := track.NewHeader(1, 0, 1, 2)

	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	bt.AddSector(build.SectorSpec{Header: hdr, Data: data, Gap2: 22, Gap3: 80, DAM: track.DAMNormal})
	buf := bt.Finish()

	td := FromBitstream(track.CylHead{Cyl: 1, Head: 0}, buf, 22)
	tr, err := td.Track()
	if err != nil {
		t.Fatalf("Track() error: %v", err)
	}
	if len(tr.Sectors) != 1 {
		t.Fatalf("want 1 sector, got %d", len(tr.Sectors))
	}
	s := tr.Sectors[0]
	if s.Header.Sector != 1 || s.Header.Cyl != 1 {
		t.Fatalf("unexpected header: %+v", s.Header)
	}
	if !s.HasGoodData() {
		t.Fatalf("expected good data")
	}
	got := s.FirstData()
	for i := range got {
		if got[i] != byte(i) {
			t.Fatalf("data mismatch at %d: got %x", i, got[i])
		}
	}

	if !td.HasTrack() {
		t.Fatalf("expected Track to be cached after scan")
	}
}

// TestBitstreamFromTrackEmptyTrack exercises the track-to-bitstream
// path for the one case that always has a generator: an empty track.
func TestBitstreamFromTrackEmptyTrack(t *testing.T) {
	td := FromTrack(track.CylHead{Cyl: 2, Head: 1}, track.NewTrack(), enc.Rate250K, enc.MFM, 22)
	b, err := td.Bitstream()
	if err != nil {
		t.Fatalf("Bitstream() error: %v", err)
	}
	if b.BitSize() == 0 {
		t.Fatalf("expected non-empty generated bitstream")
	}
	if !td.HasBitstream() {
		t.Fatalf("expected Bitstream to be cached")
	}
}

// TestBitstreamFromTrackUnsupported confirms a non-special, non-empty
// Track with no bitstream yields the documented Unsupported error
// rather than inventing a generic synthesiser.
func TestBitstreamFromTrackUnsupported(t *testing.T) {
	tr := track.NewTrack()
	s := track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(0, 0, 1, 2))
	s.AddData(make([]byte, 512), false, track.DAMNormal)
	tr.AddSector(s)

	td := FromTrack(track.CylHead{Cyl: 0, Head: 0}, tr, enc.Rate250K, enc.MFM, 22)
	_, err := td.Bitstream()
	if err == nil {
		t.Fatalf("expected an error for a non-special single-sector track")
	}
	if k, ok := coreerr.KindOf(err); !ok || k != coreerr.Unsupported {
		t.Fatalf("expected coreerr.Unsupported, got %v", err)
	}
}

// TestFluxFromBitstreamRoundTrip exercises Flux()'s bitstream-to-flux
// synthesis and confirms the result decodes back via the normal flux
// path into a bitstream of plausible size.
func TestFluxFromBitstreamRoundTrip(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i * 7)
	}
	hdr := track.NewHeader(10, 0, 1, 1)

	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	bt.AddSector(build.SectorSpec{Header: hdr, Data: data, Gap2: 22, Gap3: 80, DAM: track.DAMNormal})
	buf := bt.Finish()

	td := FromBitstream(track.CylHead{Cyl: 10, Head: 0}, buf, 22)
	fd, err := td.Flux()
	if err != nil {
		t.Fatalf("Flux() error: %v", err)
	}
	if fd.RevolutionCount() != 1 {
		t.Fatalf("expected 1 revolution, got %d", fd.RevolutionCount())
	}
	if len(fd.Revolutions[0]) == 0 {
		t.Fatalf("expected non-empty flux intervals")
	}
	if !fd.Normalised {
		t.Fatalf("flux synthesised from a bitstream must be marked Normalised")
	}
	if !td.HasFlux() {
		t.Fatalf("expected Flux to be cached")
	}
}

// TestFluxPrecompensationAppliesPastCylinder40 confirms the +/-240ns
// write precompensation only kicks in from cylinder 40 onward by
// comparing flux synthesised at cylinder 0 against cylinder 41 for an
// identical bitstream.
func TestFluxPrecompensationAppliesPastCylinder40(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}
	hdr := track.NewHeader(41, 0, 1, 0)

	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	bt.AddSector(build.SectorSpec{Header: hdr, Data: data, Gap2: 22, Gap3: 80, DAM: track.DAMNormal})
	bufInner := bt.Finish()

	tdLow := FromBitstream(track.CylHead{Cyl: 0, Head: 0}, bufInner, 22)
	fdLow, err := tdLow.Flux()
	if err != nil {
		t.Fatalf("Flux() error at cyl 0: %v", err)
	}

	bt2 := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt2.AddIndexMark()
	bt2.AddTrackStart(false)
	bt2.AddSector(build.SectorSpec{Header: hdr, Data: data, Gap2: 22, Gap3: 80, DAM: track.DAMNormal})
	bufHigh := bt2.Finish()

	tdHigh := FromBitstream(track.CylHead{Cyl: 41, Head: 0}, bufHigh, 22)
	fdHigh, err := tdHigh.Flux()
	if err != nil {
		t.Fatalf("Flux() error at cyl 41: %v", err)
	}

	if len(fdLow.Revolutions[0]) != len(fdHigh.Revolutions[0]) {
		t.Fatalf("precompensation should not change the interval count: %d vs %d",
			len(fdLow.Revolutions[0]), len(fdHigh.Revolutions[0]))
	}
}

// TestPreferredDropsUnnormalisedFlux confirms the Unknown-preference
// fallback favours Bitstream over a held-but-unnormalised Flux.
func TestPreferredDropsUnnormalisedFlux(t *testing.T) {
	data := make([]byte, 64)
	hdr := track.NewHeader(0, 0, 1, 0)
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddSector(build.SectorSpec{Header: hdr, Data: data, Gap2: 22, Gap3: 80, DAM: track.DAMNormal})
	buf := bt.Finish()

	td := FromBitstream(track.CylHead{Cyl: 0, Head: 0}, buf, 22)
	if got := td.Preferred(PreferUnknown); got != PreferBitstream {
		t.Fatalf("want PreferBitstream with only a bitstream held, got %v", got)
	}
}
