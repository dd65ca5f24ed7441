package hwio

import (
	"errors"
	"testing"

	"github.com/discflux/floppy/enc"
)

func TestSetEncRate(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{}}}
	c := NewController(ft)

	if err := c.SetEncRate(enc.MFM, enc.Rate250K); err != nil {
		t.Fatalf("SetEncRate: %v", err)
	}
	want := []byte{opSetEncRate, byte(enc.MFM), byte(enc.Rate250K)}
	if len(ft.Sent) != 1 || string(ft.Sent[0]) != string(want) {
		t.Fatalf("Sent = %v, want %v", ft.Sent, want)
	}
}

func TestSeek(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{}}}
	c := NewController(ft)

	if err := c.Seek(40); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(ft.Sent) != 1 || ft.Sent[0][0] != opSeek || ft.Sent[0][1] != 40 {
		t.Fatalf("Sent = %v", ft.Sent)
	}
}

func TestReadID(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{5, 0, 3, 2}}}
	c := NewController(ft)

	hdr, err := c.ReadID(0)
	if err != nil {
		t.Fatalf("ReadID: %v", err)
	}
	if hdr.Cyl != 5 || hdr.Head != 0 || hdr.Sector != 3 || hdr.SizeCode != 2 {
		t.Fatalf("ReadID = %+v, want {5 0 3 2}", hdr)
	}
}

func TestReadIDShortResponse(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{5, 0}}}
	c := NewController(ft)

	if _, err := c.ReadID(0); err == nil {
		t.Fatal("expected error on short read_id response")
	}
}

func TestTimedScan(t *testing.T) {
	resp := []byte{
		0, 0, 1, 2, 0, 0, 0, 100,
		0, 0, 2, 2, 0, 0, 1, 44,
	}
	ft := &FakeTransport{Responses: [][]byte{resp}}
	c := NewController(ft)

	entries, err := c.TimedScan(0)
	if err != nil {
		t.Fatalf("TimedScan: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Header.Sector != 1 || entries[0].RelativeTime != 100 {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].Header.Sector != 2 || entries[1].RelativeTime != 300 {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
}

func TestRead(t *testing.T) {
	payload := []byte("sector-data-here")
	ft := &FakeTransport{Responses: [][]byte{payload}}
	c := NewController(ft)

	got, err := c.Read(0, 0, 0, 1, 2, 1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("Read = %q, want %q", got, payload)
	}
}

func TestReadTrack(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{0xaa, 0x55}}}
	c := NewController(ft)

	b, err := c.ReadTrack(0, 16)
	if err != nil {
		t.Fatalf("ReadTrack: %v", err)
	}
	if b.BitSize() != 16 {
		t.Fatalf("BitSize = %d, want 16", b.BitSize())
	}
}

func TestGetResult(t *testing.T) {
	ft := &FakeTransport{Responses: [][]byte{{0x40, 0x00, 0x00}}}
	c := NewController(ft)

	r, err := c.GetResult()
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r.ST0 != 0x40 {
		t.Fatalf("ST0 = 0x%02x, want 0x40", r.ST0)
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	ft := &FakeTransport{Err: errors.New("device gone")}
	c := NewController(ft)

	if _, err := c.GetResult(); err == nil {
		t.Fatal("expected error from failing transport")
	}
}
