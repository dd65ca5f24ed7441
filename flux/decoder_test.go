package flux

import "testing"

// TestDecoderLocksOnNoiselessFlux exercises spec property #10: with
// noiseless flux at the nominal bit-cell, the decoder reproduces the
// input bit sequence indefinitely and never asserts SyncLost.
func TestDecoderLocksOnNoiselessFlux(t *testing.T) {
	const bitcellNs = 2000.0 // 250 kbps MFM cell width

	want := []bool{true, false, true, false, false, true, false, true, true, false, false, true}
	transitions := IntervalsFromBits(want, bitcellNs)

	d := NewDecoder(NewData([][]uint64{transitions}), bitcellNs, 0, 0, 0)

	for i, w := range want {
		bit := d.NextBit()
		if bit < 0 {
			t.Fatalf("bit %d: decoder ended early", i)
		}
		got := bit == 1
		if got != w {
			t.Fatalf("bit %d = %v, want %v", i, got, w)
		}
		if d.SyncLost() {
			t.Fatalf("bit %d: unexpected sync loss on noiseless flux", i)
		}
	}
}

func TestDecoderIndexPerRevolution(t *testing.T) {
	const bitcellNs = 2000.0
	cells := []bool{true, false, true, false}
	rev := IntervalsFromBits(cells, bitcellNs)

	d := NewDecoder(NewData([][]uint64{rev, rev, rev}), bitcellNs, 0, 0, 0)

	indexCount := 0
	for {
		bit := d.NextBit()
		if bit < 0 {
			break
		}
		if d.Index() {
			indexCount++
		}
	}
	if indexCount != 2 {
		t.Fatalf("index events = %d, want 2 (crossing into revolutions 2 and 3)", indexCount)
	}
}

func TestDecoderEndOfInput(t *testing.T) {
	d := NewDecoder(NewData(nil), 2000, 0, 0, 0)
	if d.NextBit() != -1 {
		t.Fatalf("expected -1 for empty flux data")
	}
}
