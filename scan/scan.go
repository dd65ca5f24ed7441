// Package scan implements the bitstream-to-sectors scanners: one per
// encoding family (spec.md §4.4). Every scanner shares the same
// contract: seek a bitbuf.BitBuffer to 0, shift a rolling window bit
// by bit looking for the encoding's address marks, decode headers and
// data fields, validate CRCs/checksums (recording failures as sector
// flags rather than propagating them as errors), and terminate once
// the buffer has wrapped past one revolution.
//
// Grounded on the teacher's mfm.Reader (mfm/reader.go): scanIBMPC's
// 32-bit rolling-history synchronisation technique is the shared
// "find a sync mark at arbitrary bit alignment" idiom every scanner
// in this package reuses, generalised from "always look for
// 0xA1A1A1/0xC2C2C2" to each encoding's own marks.
package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// Context is the mutable, caller-owned scan state that spec.md §9
// asks to replace the teacher's static "last-successful (datarate,
// encoding)" hint in scan_flux: a flux-level scanner updates it after
// each attempt so that the next track tries the previous success
// first, without any scanner needing process-wide state.
type Context struct {
	LastDatarate enc.Datarate
	LastEncoding enc.Encoding
}

// EncodingOrder returns the encodings a flux-level scanner should try,
// the last successful one first (spec.md §4.4).
func (c *Context) EncodingOrder() []enc.Encoding {
	all := []enc.Encoding{enc.MFM, enc.Amiga, enc.GCR, enc.Apple, enc.FM, enc.RX02, enc.Ace, enc.MX, enc.Agat, enc.Victor}
	if c.LastEncoding == enc.EncUnknown {
		return all
	}
	order := []enc.Encoding{c.LastEncoding}
	for _, e := range all {
		if e != c.LastEncoding {
			order = append(order, e)
		}
	}
	return order
}

// Scanner decodes a bitstream-level track into sectors. A Scanner
// implementation seeks its own BitBuffer to 0, so callers may call it
// on the same buffer repeatedly without re-seeking.
type Scanner func(b *bitbuf.BitBuffer) (*track.Track, error)

// history is the shared "32-bit rolling window + resync on all-ones"
// idiom from mfm.Reader.scanIBMPC/scanAmiga, lifted out so every
// per-encoding scanner in this package can reuse it instead of each
// reimplementing bit-at-a-time synchronisation.
type history struct {
	b     *bitbuf.BitBuffer
	value uint32
}

func newHistory(b *bitbuf.BitBuffer) *history { return &history{b: b} }

// shift reads one raw bit-cell and folds it into the rolling window,
// resyncing to a half-bit boundary on a run of all-ones exactly as
// the teacher's scanIBMPC does.
func (h *history) shift() {
	bit := h.b.Read1()
	h.value = (h.value << 1) & 0xffffffff
	if bit {
		h.value |= 1
	}
	if h.value == 0xffffffff {
		h.b.Read1()
		h.value = 0
	}
}

// ScanBitstream dispatches to the concrete scanner for encoding, the
// single entry point TrackData.track() (§4.7) needs: it doesn't know
// or care which encoding family a bitstream holds, only that every
// scanner here shares the (buffer, rate, cylhead, gap2) shape once the
// encoding-specific extra arguments are supplied.
func ScanBitstream(b *bitbuf.BitBuffer, encoding enc.Encoding, rate enc.Datarate, cyl, head, gap2 int) (*track.Track, error) {
	switch encoding {
	case enc.MFM, enc.FM, enc.RX02:
		return ScanMFMFM(b, rate, encoding, gap2)
	case enc.Amiga:
		return ScanAmiga(b, rate)
	case enc.Apple:
		return ScanApple(b, rate)
	case enc.GCR:
		return ScanCommodore(b, rate)
	case enc.Ace:
		return ScanAce(b, rate, cyl, head)
	case enc.MX:
		return ScanMX(b, rate, head)
	case enc.Agat:
		return ScanAgat(b, rate, cyl, head)
	case enc.Victor:
		return ScanVictor(b, rate, head)
	default:
		return track.NewTrack(), nil
	}
}
