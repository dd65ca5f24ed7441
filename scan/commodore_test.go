package scan

import (
	"testing"

	"github.com/discflux/floppy/build"
	"github.com/discflux/floppy/enc"
)

// gcr5Encode is the inverse of gcr5Decode, used only by this test to
// hand-assemble a Commodore GCR bitstream for ScanCommodore to read
// back.
var gcr5Encode = [16]byte{
	10, 11, 18, 19, 14, 15, 22, 23,
	9, 25, 26, 27, 13, 29, 30, 21,
}

func writeGCR5Nibble(bt *build.BitstreamTrackBuilder, nibble byte) {
	v := gcr5Encode[nibble&0xF]
	for i := 4; i >= 0; i-- {
		bt.AddRawBit((v>>uint(i))&1 != 0)
	}
}

func writeGCR5Byte(bt *build.BitstreamTrackBuilder, v byte) {
	writeGCR5Nibble(bt, v>>4)
	writeGCR5Nibble(bt, v&0xF)
}

func writeSync(bt *build.BitstreamTrackBuilder) {
	for i := 0; i < 40; i++ {
		bt.AddRawBit(true)
	}
}

// TestScanCommodoreRoundTrip hand-assembles one 1541-style GCR sector
// (sync, IDAM, sync, DAM, 256 data bytes, XOR checksum) and checks
// ScanCommodore recovers the header and data.
func TestScanCommodoreRoundTrip(t *testing.T) {
	bt := build.NewBitstreamTrackBuilder(enc.Rate250K, enc.GCR)

	track, sector := 5, 3
	diskID := byte(0x11)

	writeSync(bt)
	writeGCR5Byte(bt, 0x08) // IDAM
	checksum := byte(sector) ^ byte(track+1) ^ diskID ^ diskID
	writeGCR5Byte(bt, checksum)
	writeGCR5Byte(bt, byte(sector))
	writeGCR5Byte(bt, byte(track+1))
	writeGCR5Byte(bt, diskID)
	writeGCR5Byte(bt, diskID)
	writeGCR5Byte(bt, 0x0f)
	writeGCR5Byte(bt, 0x0f)

	for i := 0; i < 32; i++ {
		bt.AddRawBit(false)
	}

	writeSync(bt)
	writeGCR5Byte(bt, 0x07) // DAM

	data := make([]byte, 256)
	var sum byte
	for i := range data {
		data[i] = byte(i * 3)
		sum ^= data[i]
	}
	for _, v := range data {
		writeGCR5Byte(bt, v)
	}
	writeGCR5Byte(bt, sum)

	for i := 0; i < 64; i++ {
		bt.AddRawBit(false)
	}

	b := bt.Finish()
	got, err := ScanCommodore(b, enc.Rate250K)
	if err != nil {
		t.Fatalf("ScanCommodore: %v", err)
	}
	if len(got.Sectors) != 1 {
		t.Fatalf("got %d sectors, want 1", len(got.Sectors))
	}
	s := got.Sectors[0]
	if s.Header.Cyl != track || s.Header.Sector != sector {
		t.Fatalf("got header %+v, want cyl=%d sector=%d", s.Header, track, sector)
	}
	if !s.HasGoodData() {
		t.Fatalf("no good data copy")
	}
	gotData := s.FirstData()
	for i, v := range gotData {
		if v != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, v, data[i])
		}
	}
}
