package track

import (
	"testing"

	"github.com/discflux/floppy/enc"
)

func TestHasGoodDataRequiresCleanHeaderAndCopy(t *testing.T) {
	s := NewSector(enc.Rate250K, enc.MFM, NewHeader(0, 0, 1, 2))
	if s.HasGoodData() {
		t.Fatalf("no copies yet: HasGoodData should be false")
	}
	s.AddData(make([]byte, 512), true, DAMNormal)
	if s.HasGoodData() {
		t.Fatalf("only a bad copy: HasGoodData should be false")
	}
	s.AddData(make([]byte, 512), false, DAMNormal)
	if !s.HasGoodData() {
		t.Fatalf("a good copy present: HasGoodData should be true")
	}

	bad := NewSector(enc.Rate250K, enc.MFM, NewHeader(0, 0, 2, 2))
	bad.BadIDCRC = true
	if bad.AddData([]byte{1}, false, DAMNormal) != Unchanged {
		t.Fatalf("adding data to a bad-ID sector should be rejected")
	}
	if bad.HasData() {
		t.Fatalf("bad-ID sector must not accumulate data copies")
	}
}

func TestIsRepeatedReflexiveAcrossMerge(t *testing.T) {
	tr := NewTrack()
	s1 := NewSector(enc.Rate250K, enc.MFM, NewHeader(0, 0, 1, 2))
	s1.AddData([]byte{1, 2, 3}, false, DAMNormal)
	tr.AddSector(s1)

	before := tr.Size()
	dup := NewSector(enc.Rate250K, enc.MFM, NewHeader(0, 0, 1, 2))
	dup.AddData([]byte{1, 2, 3}, false, DAMNormal)
	outcome := tr.AddSector(dup)

	if outcome != Unchanged {
		t.Fatalf("merging an identical sector should report Unchanged, got %v", outcome)
	}
	if tr.Size() != before {
		t.Fatalf("track size changed on a no-op merge: %d -> %d", before, tr.Size())
	}
}

func TestSectorIDsInterleave(t *testing.T) {
	f := Format{Sectors: 5, Base: 1, Interleave: 2}
	ids := f.SectorIDs(0)
	want := []int{1, 4, 2, 5, 3}
	if len(ids) != len(want) {
		t.Fatalf("len(ids) = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d] = %d, want %d (%v)", i, ids[i], want[i], ids)
		}
	}
}
