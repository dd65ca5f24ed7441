package build

import (
	"testing"

	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/scan"
	"github.com/discflux/floppy/track"
)

// TestMFMRoundTrip builds a small MFM track with the builder and
// scans it back with scan.ScanMFMFM, checking every sector comes back
// with good ID and data CRCs and the expected payload -- spec.md's
// testable property #5 ("a track built then scanned yields the same
// sectors").
func TestMFMRoundTrip(t *testing.T) {
	bt := NewBitstreamTrackBuilder(enc.Rate250K, enc.MFM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)

	want := make(map[int][]byte)
	for sec := 1; sec <= 9; sec++ {
		data := make([]byte, 512)
		for i := range data {
			data[i] = byte(sec*13 + i)
		}
		want[sec] = data
		bt.AddSector(SectorSpec{
			Header: track.NewHeader(0, 0, sec, 2),
			Data:   data,
			Gap2:   22,
			Gap3:   54,
			DAM:    track.DAMNormal,
		})
	}
	bt.AddGap(600, 0)

	b := bt.Finish()
	got, err := scan.ScanMFMFM(b, enc.Rate250K, enc.MFM, 22)
	if err != nil {
		t.Fatalf("ScanMFMFM: %v", err)
	}
	if len(got.Sectors) != 9 {
		t.Fatalf("got %d sectors, want 9", len(got.Sectors))
	}
	for _, s := range got.Sectors {
		if s.BadIDCRC {
			t.Fatalf("sector %d: bad ID CRC", s.Header.Sector)
		}
		if !s.HasGoodData() {
			t.Fatalf("sector %d: no good data copy", s.Header.Sector)
		}
		gotData := s.FirstData()
		wantData := want[s.Header.Sector]
		if len(gotData) != len(wantData) {
			t.Fatalf("sector %d: data length %d, want %d", s.Header.Sector, len(gotData), len(wantData))
		}
		for i := range wantData {
			if gotData[i] != wantData[i] {
				t.Fatalf("sector %d: byte %d = %#x, want %#x", s.Header.Sector, i, gotData[i], wantData[i])
			}
		}
	}
}

// TestFMBadDataCRC checks that a deliberately corrupted data CRC
// (spec.md's forced-error builder option) round-trips as a sector
// with data but BadDataCRC set, rather than as a scan error.
func TestFMBadDataCRC(t *testing.T) {
	bt := NewBitstreamTrackBuilder(enc.Rate250K, enc.FM)
	bt.AddIndexMark()
	bt.AddTrackStart(false)
	bt.AddSector(SectorSpec{
		Header:     track.NewHeader(1, 0, 1, 1),
		Data:       []byte{1, 2, 3, 4},
		Gap2:       11,
		Gap3:       27,
		DAM:        track.DAMNormal,
		DataCRCBad: true,
	})
	bt.AddGap(200, 0)

	b := bt.Finish()
	got, err := scan.ScanMFMFM(b, enc.Rate250K, enc.FM, 11)
	if err != nil {
		t.Fatalf("ScanMFMFM: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(got.Sectors))
	}
	s := got.Sectors[0]
	if s.BadIDCRC {
		t.Fatalf("unexpected bad ID CRC")
	}
	if len(s.Copies()) != 1 {
		t.Fatalf("got %d data copies, want 1", len(s.Copies()))
	}
	if !s.Copies()[0].BadDataCRC {
		t.Fatalf("expected BadDataCRC to be set")
	}
}

// TestRX02RoundTrip checks an RX02 sector -- FM header, FM-framed
// data mark, MFM-framed doubled-size data body -- scans back cleanly
// (spec.md S4).
func TestRX02RoundTrip(t *testing.T) {
	bt := NewBitstreamTrackBuilder(enc.Rate250K, enc.RX02)
	bt.AddIndexMark()
	bt.AddTrackStart(false)

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	bt.AddSector(SectorSpec{
		Header: track.NewHeader(2, 0, 1, 0),
		Data:   data,
		Gap2:   11,
		Gap3:   27,
		DAM:    track.DAMRX02,
	})
	bt.AddGap(200, 0)

	b := bt.Finish()
	got, err := scan.ScanMFMFM(b, enc.Rate250K, enc.RX02, 11)
	if err != nil {
		t.Fatalf("ScanMFMFM: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(got.Sectors))
	}
	s := got.Sectors[0]
	if s.BadIDCRC {
		t.Fatalf("unexpected bad ID CRC")
	}
	if !s.HasGoodData() {
		t.Fatalf("no good data copy")
	}
	got256 := s.FirstData()
	if len(got256) != 256 {
		t.Fatalf("got %d data bytes, want 256", len(got256))
	}
	for i, v := range got256 {
		if v != byte(i) {
			t.Fatalf("byte %d = %#x, want %#x", i, v, byte(i))
		}
	}
}

// TestAppleRoundTrip builds one Apple DOS 3.3 sector (6-and-2 GCR,
// XOR checksum) and checks scan.ScanApple recovers it intact, per
// spec.md's S3 scenario.
func TestAppleRoundTrip(t *testing.T) {
	bt := NewBitstreamTrackBuilder(enc.Rate250K, enc.Apple)
	bt.AddIndexMark()
	bt.AddGap(128, 0)

	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(9)
	}
	bt.AddSector(SectorSpec{
		Header: track.NewHeader(17, 0, 3, 1),
		Data:   data,
		Gap2:   5,
		Gap3:   14,
	})
	bt.AddGap(100, 0)

	b := bt.Finish()
	got, err := scan.ScanApple(b, enc.Rate250K)
	if err != nil {
		t.Fatalf("ScanApple: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(got.Sectors))
	}
	s := got.Sectors[0]
	if s.Header.Cyl != 17 || s.Header.Sector != 3 {
		t.Fatalf("got header %+v, want cyl=17 sector=3", s.Header)
	}
	if !s.HasGoodData() {
		t.Fatalf("no good data copy")
	}
	gotData := s.FirstData()
	for i, v := range gotData {
		if v != 9 {
			t.Fatalf("byte %d = %#x, want 0x09", i, v)
		}
	}
}
