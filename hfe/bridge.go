package hfe

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
)

// sideToBitBuffer wraps one HFE track side's raw bytes as a BitBuffer.
// TrackData sides hold their bitcells MSB-first within a byte (readTrack
// reverses HFE's on-disk packing on load), while BitBuffer.Add/Read1 are
// LSB-first, so each byte is bit-reversed to land chronologically correct.
func sideToBitBuffer(side []byte, rate enc.Datarate, encoding enc.Encoding) *bitbuf.BitBuffer {
	raw := make([]byte, len(side))
	for i, v := range side {
		raw[i] = bitReverse(v)
	}
	b := bitbuf.NewFromBytes(raw, len(side)*8)
	b.Datarate = rate
	b.Encoding = encoding
	return b
}

// bitBufferToSide is sideToBitBuffer's inverse: drains b from its
// start for a full revolution and returns TrackData-convention
// (MSB-first) bytes.
func bitBufferToSide(b *bitbuf.BitBuffer) []byte {
	n := b.BitSize()
	out := make([]byte, (n+7)/8)
	b.Seek(0)
	for i := 0; i < n; i++ {
		if b.Read1() {
			out[i/8] |= 1 << uint(7-(i&7))
		}
	}
	return out
}

// datarateFor maps an HFE header's BitRate (kbit/s) to this module's
// Datarate enumeration.
func datarateFor(bitRateKbps uint16) enc.Datarate {
	switch {
	case bitRateKbps >= 900:
		return enc.Rate1M
	case bitRateKbps >= 450:
		return enc.Rate500K
	case bitRateKbps >= 280:
		return enc.Rate300K
	case bitRateKbps >= 200:
		return enc.Rate250K
	default:
		return enc.RateUnknown
	}
}

// bitRateFor is datarateFor's inverse, for headers synthesised when
// saving a disk.Disk back out as HFE.
func bitRateFor(rate enc.Datarate) uint16 {
	switch rate {
	case enc.Rate1M:
		return 1000
	case enc.Rate500K:
		return 500
	case enc.Rate300K:
		return 300
	case enc.Rate250K:
		return 250
	default:
		return 250
	}
}

// encodingFor maps an HFE header's TrackEncoding byte to this module's
// Encoding enumeration.
func encodingFor(e uint8) enc.Encoding {
	switch e {
	case ENC_ISOIBM_MFM:
		return enc.MFM
	case ENC_Amiga_MFM:
		return enc.Amiga
	case ENC_ISOIBM_FM, ENC_Emu_FM:
		return enc.FM
	default:
		return enc.EncUnknown
	}
}

// hfeEncodingFor is encodingFor's inverse.
func hfeEncodingFor(encoding enc.Encoding) uint8 {
	switch encoding {
	case enc.MFM:
		return ENC_ISOIBM_MFM
	case enc.Amiga:
		return ENC_Amiga_MFM
	case enc.FM:
		return ENC_ISOIBM_FM
	default:
		return ENC_Unknown
	}
}
