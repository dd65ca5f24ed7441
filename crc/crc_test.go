package crc

import "testing"

func TestA1A1A1Constant(t *testing.T) {
	got := Block(InitCRC, []byte{0xA1, 0xA1, 0xA1})
	if got != A1A1A1 {
		t.Fatalf("CRC after three 0xA1 sync bytes = %#04x, want %#04x", got, A1A1A1)
	}
}

func TestSectorHeaderCRCIdentity(t *testing.T) {
	// CRC16(A1A1A1 FE C H R N CRC_hi CRC_lo) == 0 for a header emitted
	// without a forced CRC error (spec testable property #7).
	header := []byte{0xFE, 0, 0, 3, 2}
	sum := Block(A1A1A1, header)
	full := append(append([]byte{}, header...), byte(sum>>8), byte(sum))
	if got := Block(A1A1A1, full); got != 0 {
		t.Fatalf("CRC over header+trailer = %#04x, want 0", got)
	}
}

func TestAddByteEquivalence(t *testing.T) {
	c := New(InitCRC)
	c.AddBlock([]byte{1, 2, 3})

	c2 := New(InitCRC)
	c2.Add(1)
	c2.Add(2)
	c2.Add(3)

	if c.Value() != c2.Value() {
		t.Fatalf("Add and AddBlock diverged: %#04x vs %#04x", c.Value(), c2.Value())
	}
}

func TestByteHelper(t *testing.T) {
	want := Block(A1A1A1, []byte{0xFB})
	got := Byte(A1A1A1, 0xFB)
	if got != want {
		t.Fatalf("Byte() = %#04x, want %#04x", got, want)
	}
}
