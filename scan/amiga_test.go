package scan

import (
	"testing"

	"github.com/discflux/floppy/build"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// TestScanAmigaRoundTrip builds one Amiga sector with the track
// builder and checks ScanAmiga recovers its data intact (spec.md S2).
func TestScanAmigaRoundTrip(t *testing.T) {
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.Amiga)
	bt.AddIndexMark()
	bt.AddGap(100, 0)

	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i * 3)
	}
	bt.AddSector(build.SectorSpec{
		Header: track.NewHeader(3, 1, 7, 2),
		Data:   data,
	})
	bt.AddGap(200, 0)

	b := bt.Finish()
	got, err := ScanAmiga(b, enc.Rate250K)
	if err != nil {
		t.Fatalf("ScanAmiga: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(got.Sectors))
	}
	s := got.Sectors[0]
	if s.Header.Cyl != 3 || s.Header.Head != 1 || s.Header.Sector != 7 {
		t.Fatalf("got header %+v, want cyl=3 head=1 sector=7", s.Header)
	}
	if !s.HasGoodData() {
		t.Fatalf("no good data copy")
	}
	gotData := s.FirstData()
	for i, v := range gotData {
		if v != byte(i*3) {
			t.Fatalf("byte %d = %#x, want %#x", i, v, byte(i*3))
		}
	}
}
