package bitbuf

import (
	"testing"

	"github.com/discflux/floppy/enc"
)

func fillPattern(b *BitBuffer, bits []bool) {
	for _, bit := range bits {
		b.Add(bit)
	}
}

func TestInvariantBitposBounds(t *testing.T) {
	b := NewFromBytes(nil, 0)
	for i := 0; i < 100; i++ {
		b.Add(i%3 == 0)
	}
	if b.bitpos < 0 || b.bitpos > b.bitsize {
		t.Fatalf("bitpos %d out of [0,%d]", b.bitpos, b.bitsize)
	}
	for i := 0; i < 150; i++ {
		b.Read1()
	}
	if b.bitpos < 0 || b.bitpos > b.bitsize {
		t.Fatalf("after reads: bitpos %d out of [0,%d]", b.bitpos, b.bitsize)
	}
	b.Remove(10)
	if b.bitpos < 0 || b.bitpos > b.bitsize {
		t.Fatalf("after remove: bitpos %d out of [0,%d]", b.bitpos, b.bitsize)
	}
	b.ShrinkToFit()
	want := (b.bitsize + 7) / 8
	if len(b.data) != want {
		t.Fatalf("len(data) = %d, want %d", len(b.data), want)
	}
}

func TestWrapSetsFlagOncePerRevolution(t *testing.T) {
	b := NewFromBytes(nil, 0)
	fillPattern(b, []bool{true, false, true, true, false})
	for i := 0; i < 5; i++ {
		b.Read1()
	}
	if b.Wrapped() {
		t.Fatalf("wrapped set before crossing bitsize")
	}
	b.Read1()
	if !b.Wrapped() {
		t.Fatalf("expected wrapped after crossing bitsize")
	}
}

func TestMFMByteReadConsumes16Cells(t *testing.T) {
	b := NewFromBytes(nil, 0)
	b.Encoding = enc.MFM
	// 16 arbitrary cells representing one clock/data encoded byte.
	cells := []bool{false, true, false, false, false, true, false, false, false, true, false, true, false, true, false, false}
	fillPattern(b, cells)
	start := b.bitpos
	_ = b.ReadByte()
	if consumed := b.bitpos - start; consumed != 16 {
		t.Fatalf("MFM ReadByte consumed %d cells, want 16", consumed)
	}
}

func TestFMByteReadConsumes32Cells(t *testing.T) {
	b := NewFromBytes(nil, 0)
	b.Encoding = enc.FM
	cells := make([]bool, 32)
	fillPattern(b, cells)
	start := b.bitpos
	_ = b.ReadByte()
	if consumed := b.bitpos - start; consumed != 32 {
		t.Fatalf("FM ReadByte consumed %d cells, want 32", consumed)
	}
}

func TestAppleByteReadBetween8And15Cells(t *testing.T) {
	b := NewFromBytes(nil, 0)
	b.Encoding = enc.Apple
	// High bit set on the 9th cell read.
	cells := []bool{false, false, false, false, false, false, false, false, true}
	fillPattern(b, cells)
	fillPattern(b, make([]bool, 8)) // padding so the read never runs dry
	start := b.bitpos
	_ = b.ReadByte()
	consumed := b.bitpos - start
	if consumed < 8 || consumed > 15 {
		t.Fatalf("Apple ReadByte consumed %d cells, want 8-15", consumed)
	}
}

func TestAlignIdempotent(t *testing.T) {
	b := NewFromBytes(nil, 0)
	b.Encoding = enc.MFM
	// Two stray bits, then the 0x4489 mark (16 bits), then payload.
	fillPattern(b, []bool{true, false})
	mark := []bool{false, true, false, false, false, true, false, false, true, false, false, false, true, false, false, true}
	fillPattern(b, mark)
	fillPattern(b, []bool{true, true, true, true})

	modified := b.Align()
	if !modified {
		t.Fatalf("expected Align to remove the two stray leading bits")
	}
	if b.bitsize != 2+16+4-2 {
		t.Fatalf("unexpected size after align: %d", b.bitsize)
	}
	if again := b.Align(); again {
		t.Fatalf("re-running Align on an aligned buffer should be a no-op")
	}
}

func TestTrackOffsetAndBitSize(t *testing.T) {
	b := NewFromBytes(nil, 0)
	for i := 0; i < 40; i++ {
		b.Add(i%2 == 0)
		if i == 10 {
			b.AddIndex()
		}
	}
	// The index is recorded after the 11th bit has been added.
	if got := b.TrackBitSize(); got != 11 {
		t.Fatalf("TrackBitSize() = %d, want 11", got)
	}
	if got := b.TrackOffset(15); got != 4 {
		t.Fatalf("TrackOffset(15) = %d, want 4", got)
	}
}
