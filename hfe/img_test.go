package hfe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/discflux/floppy/track"
)

// TestReadIMGGuessesPC360Geometry builds a raw PC360-sized image (40
// cyls, 2 heads, 9 sectors, 512 bytes) and confirms ReadIMG recovers
// the expected track/sector count by synthesising a bitstream and
// scanning it back.
func TestReadIMGGuessesPC360Geometry(t *testing.T) {
	f, ok := track.WellKnownFormat("PC360")
	if !ok {
		t.Fatalf("PC360 format missing")
	}

	raw := make([]byte, f.DiskBytes())
	for i := range raw {
		raw[i] = byte(i)
	}

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hd, err := ReadIMG(path)
	if err != nil {
		t.Fatalf("ReadIMG: %v", err)
	}
	if len(hd.Tracks) != f.Cyls {
		t.Fatalf("want %d cylinders, got %d", f.Cyls, len(hd.Tracks))
	}
	if hd.Header.NumberOfSide != uint8(f.Heads) {
		t.Fatalf("want %d heads, got %d", f.Heads, hd.Header.NumberOfSide)
	}
	if len(hd.Tracks[0].Side0) == 0 {
		t.Fatalf("expected cylinder 0 side 0 to have synthesised bitstream data")
	}
}

// TestReadIMGUnrecognisedSizeErrors confirms an image whose size
// matches no well-known geometry is rejected rather than guessed at.
func TestReadIMGUnrecognisedSizeErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "odd.img")
	if err := os.WriteFile(path, make([]byte, 12345), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadIMG(path); err == nil {
		t.Fatalf("expected an error for an unrecognised image size")
	}
}

// TestWriteIMGRoundTripsReadIMG confirms writing back a Disk read via
// ReadIMG reproduces the same sector bytes.
func TestWriteIMGRoundTripsReadIMG(t *testing.T) {
	f, ok := track.WellKnownFormat("PC360")
	if !ok {
		t.Fatalf("PC360 format missing")
	}

	raw := make([]byte, f.DiskBytes())
	for i := range raw {
		raw[i] = byte(i * 3)
	}

	inPath := filepath.Join(t.TempDir(), "in.img")
	if err := os.WriteFile(inPath, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hd, err := ReadIMG(inPath)
	if err != nil {
		t.Fatalf("ReadIMG: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "out.img")
	if err := WriteIMG(outPath, hd); err != nil {
		t.Fatalf("WriteIMG: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(raw) {
		t.Fatalf("want %d bytes, got %d", len(raw), len(got))
	}
	for i := range raw {
		if got[i] != raw[i] {
			t.Fatalf("byte %d mismatch: want %x, got %x", i, raw[i], got[i])
		}
	}
}
