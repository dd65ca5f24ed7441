// Package hwio implements spec.md §6.3's hardware-controller surface:
// the minimal operation set a real floppy controller must provide to
// act as a read source for the core, decoupled from any one transport.
//
// Grounded on the teacher's Greaseweazle/SuperCardPro/KryoFlux
// adapters (greaseweazle/, supercardpro/, kryoflux/, adapter/): those
// packages each speak one device's own wire protocol directly to
// produce a *hfe.Disk. hwio generalises the command/ACK shape
// adapter.FloppyAdapter's implementations share (greaseweazle's
// doCommand, kryoflux's controlOut/controlIn) into a single
// Controller interface plus a pluggable Transport, so higher-level
// code can drive §6.3's operations without caring whether the bytes
// travel over a serial port or raw USB.
package hwio

import (
	"fmt"

	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// ScanEntry is one (header, relative-time) pair returned by
// Controller.TimedScan: a sector header found during a full-track
// scan, tagged with its time offset in microseconds from the scan's
// start.
type ScanEntry struct {
	Header       track.Header
	RelativeTime int64 // microseconds since scan start
}

// Result is the FDC status-register triple a real controller reports
// after a command, per §6.3's get_result.
type Result struct {
	ST0, ST1, ST2 byte
}

// Controller is the hardware-controller operation set spec.md §6.3
// asks for: set_enc_rate, seek, read_id, timed_scan, read, read_track
// and get_result, each named directly after its spec counterpart.
type Controller interface {
	// SetEncRate configures the controller's encoding and datarate
	// ahead of any read.
	SetEncRate(encoding enc.Encoding, rate enc.Datarate) error
	// Seek moves the head to cyl.
	Seek(cyl int) error
	// ReadID reads the next sector header the index sees on head.
	ReadID(head int) (track.Header, error)
	// TimedScan reads every header on head for one revolution,
	// tagging each with its time offset from the scan's start.
	TimedScan(head int) ([]ScanEntry, error)
	// Read reads count sectors starting at (c,h,r) with size sz,
	// using physHead as the physical side select (which may differ
	// from the header's own logical head on flippy media).
	Read(physHead, c, h, r, sz, count int) ([]byte, error)
	// ReadTrack captures size raw bit-cells from head as a
	// BitBuffer, bypassing sector decoding entirely.
	ReadTrack(head int, size int) (*bitbuf.BitBuffer, error)
	// GetResult returns the FDC status registers left by the last
	// command.
	GetResult() (Result, error)
}

// controller is the shared Controller implementation: it knows the
// §6.3 operation set's command encoding but not how bytes actually
// move, which Transport supplies.
type controller struct {
	t Transport
}

// NewController wraps t with the §6.3 operation set.
func NewController(t Transport) Controller {
	return &controller{t: t}
}

// Command opcodes. These mirror the shape of a real FDC command
// byte plus argument bytes (as greaseweazle's CMD_* constants and
// kryoflux's vendor request codes both do), generalised into one
// transport-agnostic set so SerialTransport and USBTransport can each
// frame them their own way.
const (
	opSetEncRate byte = iota
	opSeek
	opReadID
	opTimedScan
	opRead
	opReadTrack
	opGetResult
)

func (c *controller) SetEncRate(encoding enc.Encoding, rate enc.Datarate) error {
	_, err := c.t.Command([]byte{opSetEncRate, byte(encoding), byte(rate)})
	if err != nil {
		return fmt.Errorf("set_enc_rate: %w", err)
	}
	return nil
}

func (c *controller) Seek(cyl int) error {
	_, err := c.t.Command([]byte{opSeek, byte(cyl)})
	if err != nil {
		return fmt.Errorf("seek(%d): %w", cyl, err)
	}
	return nil
}

func (c *controller) ReadID(head int) (track.Header, error) {
	resp, err := c.t.Command([]byte{opReadID, byte(head)})
	if err != nil {
		return track.Header{}, fmt.Errorf("read_id(head=%d): %w", head, err)
	}
	if len(resp) < 4 {
		return track.Header{}, fmt.Errorf("read_id(head=%d): short response (%d bytes)", head, len(resp))
	}
	return track.NewHeader(int(resp[0]), int(resp[1]), int(resp[2]), int(resp[3])), nil
}

func (c *controller) TimedScan(head int) ([]ScanEntry, error) {
	resp, err := c.t.Command([]byte{opTimedScan, byte(head)})
	if err != nil {
		return nil, fmt.Errorf("timed_scan(head=%d): %w", head, err)
	}
	const recordLen = 8 // 4 header bytes + 4 relative-time bytes (big-endian)
	if len(resp)%recordLen != 0 {
		return nil, fmt.Errorf("timed_scan(head=%d): response not a multiple of %d bytes", head, recordLen)
	}
	entries := make([]ScanEntry, 0, len(resp)/recordLen)
	for i := 0; i < len(resp); i += recordLen {
		rec := resp[i : i+recordLen]
		hdr := track.NewHeader(int(rec[0]), int(rec[1]), int(rec[2]), int(rec[3]))
		relTime := int64(rec[4])<<24 | int64(rec[5])<<16 | int64(rec[6])<<8 | int64(rec[7])
		entries = append(entries, ScanEntry{Header: hdr, RelativeTime: relTime})
	}
	return entries, nil
}

func (c *controller) Read(physHead, cyl, head, record, sz, count int) ([]byte, error) {
	cmd := []byte{opRead, byte(physHead), byte(cyl), byte(head), byte(record), byte(sz), byte(count)}
	resp, err := c.t.Command(cmd)
	if err != nil {
		return nil, fmt.Errorf("read(c=%d,h=%d,r=%d,n=%d,count=%d): %w", cyl, head, record, sz, count, err)
	}
	return resp, nil
}

func (c *controller) ReadTrack(head int, size int) (*bitbuf.BitBuffer, error) {
	cmd := []byte{opReadTrack, byte(head), byte(size >> 8), byte(size)}
	resp, err := c.t.Command(cmd)
	if err != nil {
		return nil, fmt.Errorf("read_track(head=%d, size=%d): %w", head, size, err)
	}
	return bitbuf.NewFromBytes(resp, len(resp)*8), nil
}

func (c *controller) GetResult() (Result, error) {
	resp, err := c.t.Command([]byte{opGetResult})
	if err != nil {
		return Result{}, fmt.Errorf("get_result: %w", err)
	}
	if len(resp) < 3 {
		return Result{}, fmt.Errorf("get_result: short response (%d bytes)", len(resp))
	}
	return Result{ST0: resp[0], ST1: resp[1], ST2: resp[2]}, nil
}
