package disk

import (
	"testing"

	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

func TestFormatLaysOutRegularGeometry(t *testing.T) {
	f, ok := track.WellKnownFormat("PC360")
	if !ok {
		t.Fatalf("PC360 format missing")
	}

	d := New(track.Format{})
	data := make([]byte, f.DiskBytes())
	for i := range data {
		data[i] = byte(i)
	}
	d.Format(f, data, false)

	if got := d.Cyls(); got != f.Cyls {
		t.Fatalf("want %d cyls, got %d", f.Cyls, got)
	}
	if got := d.Heads(); got != f.Heads {
		t.Fatalf("want %d heads, got %d", f.Heads, got)
	}

	tr, err := d.ReadTrack(track.NewCylHead(0, 0), false)
	if err != nil {
		t.Fatalf("ReadTrack: %v", err)
	}
	if len(tr.Sectors) != f.Sectors {
		t.Fatalf("want %d sectors, got %d", f.Sectors, len(tr.Sectors))
	}
	first := tr.Sectors[0].FirstData()
	for i, b := range first {
		if b != byte(i) {
			t.Fatalf("sector data mismatch at %d: got %x", i, b)
		}
	}
}

func TestWriteReadTrackRoundTrip(t *testing.T) {
	d := New(track.Format{Datarate: enc.Rate250K, Encoding: enc.MFM})
	ch := track.NewCylHead(3, 1)

	tr := track.NewTrack()
	s := track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(3, 1, 1, 2))
	s.AddData(make([]byte, 512), false, track.DAMNormal)
	tr.AddSector(s)

	d.WriteTrack(ch, tr, enc.Rate250K, enc.MFM, 22)

	got, err := d.ReadTrack(ch, false)
	if err != nil {
		t.Fatalf("ReadTrack: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("want 1 sector, got %d", len(got.Sectors))
	}
}

func TestFindLocatesSectorAcrossTracks(t *testing.T) {
	d := New(track.Format{Datarate: enc.Rate250K, Encoding: enc.MFM})

	tr0 := track.NewTrack()
	tr0.AddSector(track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(0, 0, 1, 2)))
	d.WriteTrack(track.NewCylHead(0, 0), tr0, enc.Rate250K, enc.MFM, 22)

	target := track.NewHeader(5, 0, 3, 2)
	tr5 := track.NewTrack()
	s := track.NewSector(enc.Rate250K, enc.MFM, target)
	s.AddData([]byte("hello"), false, track.DAMNormal)
	tr5.AddSector(s)
	d.WriteTrack(track.NewCylHead(5, 0), tr5, enc.Rate250K, enc.MFM, 22)

	found, ok := d.Find(target)
	if !ok {
		t.Fatalf("expected to find sector")
	}
	if string(found.FirstData()) != "hello" {
		t.Fatalf("unexpected data: %q", found.FirstData())
	}

	if _, ok := d.Find(track.NewHeader(9, 0, 9, 2)); ok {
		t.Fatalf("did not expect to find a nonexistent sector")
	}
}

func TestFlipSidesSwapsHeads(t *testing.T) {
	d := New(track.Format{Datarate: enc.Rate250K, Encoding: enc.MFM})

	tr0 := track.NewTrack()
	s0 := track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(0, 0, 1, 2))
	s0.AddData([]byte("side0"), false, track.DAMNormal)
	tr0.AddSector(s0)
	d.WriteTrack(track.NewCylHead(0, 0), tr0, enc.Rate250K, enc.MFM, 22)

	tr1 := track.NewTrack()
	s1 := track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(0, 1, 1, 2))
	s1.AddData([]byte("side1"), false, track.DAMNormal)
	tr1.AddSector(s1)
	d.WriteTrack(track.NewCylHead(0, 1), tr1, enc.Rate250K, enc.MFM, 22)

	d.FlipSides()

	got0, _ := d.ReadTrack(track.NewCylHead(0, 0), false)
	got1, _ := d.ReadTrack(track.NewCylHead(0, 1), false)

	if string(got0.Sectors[0].FirstData()) != "side1" {
		t.Fatalf("expected side1 data at head 0 after flip, got %q", got0.Sectors[0].FirstData())
	}
	if string(got1.Sectors[0].FirstData()) != "side0" {
		t.Fatalf("expected side0 data at head 1 after flip, got %q", got1.Sectors[0].FirstData())
	}
}

func TestResizeDropsOutOfBoundsTracks(t *testing.T) {
	d := New(track.Format{Datarate: enc.Rate250K, Encoding: enc.MFM})
	for cyl := 0; cyl < 5; cyl++ {
		tr := track.NewTrack()
		tr.AddSector(track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(cyl, 0, 1, 2)))
		d.WriteTrack(track.NewCylHead(cyl, 0), tr, enc.Rate250K, enc.MFM, 22)
	}

	d.Resize(3, 1)

	if got := d.Cyls(); got != 3 {
		t.Fatalf("want 3 cyls after resize, got %d", got)
	}
	if _, ok := d.lookup(track.NewCylHead(4, 0)); ok {
		t.Fatalf("expected cylinder 4 to be dropped after resize")
	}
}

func TestEachVisitsInCylHeadOrder(t *testing.T) {
	d := New(track.Format{Datarate: enc.Rate250K, Encoding: enc.MFM})
	order := []track.CylHead{
		track.NewCylHead(1, 1),
		track.NewCylHead(0, 1),
		track.NewCylHead(1, 0),
		track.NewCylHead(0, 0),
	}
	for _, ch := range order {
		tr := track.NewTrack()
		tr.AddSector(track.NewSector(enc.Rate250K, enc.MFM, track.NewHeader(ch.Cyl, ch.Head, 1, 2)))
		d.WriteTrack(ch, tr, enc.Rate250K, enc.MFM, 22)
	}

	var visited []track.CylHead
	if err := d.Each(func(ch track.CylHead, _ *track.Track) {
		visited = append(visited, ch)
	}, true); err != nil {
		t.Fatalf("Each: %v", err)
	}

	want := []track.CylHead{
		track.NewCylHead(0, 0), track.NewCylHead(0, 1),
		track.NewCylHead(1, 0), track.NewCylHead(1, 1),
	}
	if len(visited) != len(want) {
		t.Fatalf("want %d visits, got %d", len(want), len(visited))
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("visit %d: want %v, got %v", i, want[i], visited[i])
		}
	}
}
