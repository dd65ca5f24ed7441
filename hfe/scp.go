package hfe

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/discflux/floppy/pll"
)

const (
	scpMagic       = "SCP"
	scpHeaderSize  = 16
	scpOffsetTable = 168 // one uint32 slot per possible track
	scpNsPerTick   = 25  // base SCP time resolution
)

// scpHeader mirrors the fixed 16-byte SCP file header: magic, version,
// disk type, revolution count, track range, flags, cell width,
// head selection and time resolution, followed by a checksum.
type scpHeader struct {
	Version     uint8
	DiskType    uint8
	Revolutions uint8
	StartTrack  uint8
	EndTrack    uint8
	Flags       uint8
	CellWidth   uint8
	Heads       uint8
	Resolution  uint8
}

// ReadSCP reads a SuperCard Pro flux-image file and returns a Disk
// whose per-side bitstreams are recovered from the file's first
// capture revolution per track via the same PLL clock recovery
// supercardpro.decodeFluxToMFM applies to a live hardware read
// (25ns-unit, big-endian, zero-marks-overflow flux intervals).
// Additional captured revolutions beyond the first are not retained;
// this module has no multi-revolution weak-bit model to put them in.
func ReadSCP(filename string) (*Disk, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) < scpHeaderSize+scpOffsetTable*4 || string(raw[:3]) != scpMagic {
		return nil, fmt.Errorf("not an SCP file: bad magic or truncated header")
	}

	hdr := scpHeader{
		Version:     raw[3],
		DiskType:    raw[4],
		Revolutions: raw[5],
		StartTrack:  raw[6],
		EndTrack:    raw[7],
		Flags:       raw[8],
		CellWidth:   raw[9],
		Heads:       raw[10],
		Resolution:  raw[11],
	}
	if hdr.Revolutions == 0 {
		return nil, fmt.Errorf("SCP file declares zero capture revolutions")
	}
	if hdr.EndTrack < hdr.StartTrack {
		return nil, fmt.Errorf("SCP file has end track %d before start track %d", hdr.EndTrack, hdr.StartTrack)
	}

	heads := 2
	if hdr.Heads == 1 || hdr.Heads == 2 {
		heads = 1
	}
	cyls := int(hdr.EndTrack)/2 + 1

	d := &Disk{Header: Header{
		NumberOfTrack:       uint8(cyls),
		NumberOfSide:        uint8(heads),
		TrackEncoding:       ENC_ISOIBM_MFM,
		FloppyInterfaceMode: IFM_GenericShugart_DD,
	}}
	d.Tracks = make([]TrackData, cyls)

	offsetTable := raw[scpHeaderSize : scpHeaderSize+scpOffsetTable*4]
	resolutionNs := uint64(scpNsPerTick) * uint64(hdr.Resolution+1)
	bitRateKhz := uint16(250)
	haveBitRate := false

	for trackNo := int(hdr.StartTrack); trackNo <= int(hdr.EndTrack); trackNo++ {
		trackOff := binary.LittleEndian.Uint32(offsetTable[trackNo*4 : trackNo*4+4])
		if trackOff == 0 {
			continue
		}
		if int(trackOff)+4 > len(raw) || string(raw[trackOff:trackOff+3]) != "TRK" {
			return nil, fmt.Errorf("track %d: missing or malformed TRK block", trackNo)
		}

		entryOff := int(trackOff) + 4
		if entryOff+12 > len(raw) {
			return nil, fmt.Errorf("track %d: truncated revolution entry", trackNo)
		}
		durationTicks := binary.LittleEndian.Uint32(raw[entryOff : entryOff+4])
		lengthSamples := binary.LittleEndian.Uint32(raw[entryOff+4 : entryOff+8])
		dataOff := int(trackOff) + int(binary.LittleEndian.Uint32(raw[entryOff+8:entryOff+12]))
		dataEnd := dataOff + int(lengthSamples)*2
		if dataOff < 0 || dataEnd > len(raw) {
			return nil, fmt.Errorf("track %d: flux sample data runs past end of file", trackNo)
		}

		transitions := decodeSCPFluxSamples(raw[dataOff:dataEnd], resolutionNs)
		if len(transitions) == 0 {
			continue
		}

		if !haveBitRate && durationTicks > 0 {
			indexTimeNs := uint64(durationTicks) * resolutionNs
			bitRateKhz = estimateBitRateKhz(lengthSamples, indexTimeNs)
			haveBitRate = true
		}

		mfmBytes, err := decodeTransitionsToMFM(transitions, bitRateKhz)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", trackNo, err)
		}

		cyl := trackNo / 2
		side := trackNo % 2
		if side == 0 {
			d.Tracks[cyl].Side0 = mfmBytes
		} else if heads > 1 {
			d.Tracks[cyl].Side1 = mfmBytes
		}
	}

	d.Header.BitRate = bitRateKhz
	return d, nil
}

// WriteSCP writes a Disk out as a single-revolution-per-track SCP
// flux image, converting each side's MFM bitcells to flux transition
// times and re-encoding them in the same 25ns-unit, big-endian,
// zero-marks-overflow form supercardpro.encodeFluxToSCP produces for
// a live write.
func WriteSCP(filename string, d *Disk) error {
	if len(d.Tracks) == 0 {
		return fmt.Errorf("disk has no tracks to write")
	}
	heads := int(d.Header.NumberOfSide)
	if heads == 0 {
		heads = 1
	}
	rpm := d.Header.FloppyRPM
	if rpm == 0 {
		rpm = 300
	}
	bitRateKhz := d.Header.BitRate
	if bitRateKhz == 0 {
		bitRateKhz = 250
	}

	endTrack := len(d.Tracks)*heads - 1

	trackBlocks := make([][]byte, scpOffsetTable)
	for cyl := range d.Tracks {
		for side := 0; side < heads; side++ {
			mfmBits := d.Tracks[cyl].Side0
			if side == 1 {
				mfmBits = d.Tracks[cyl].Side1
			}
			trackBlocks[cyl*heads+side] = buildSCPTrackBlock(mfmBits, bitRateKhz, rpm)
		}
	}

	offsetTable := make([]byte, scpOffsetTable*4)
	var body []byte
	cursor := uint32(scpHeaderSize + scpOffsetTable*4)
	for trackNo := 0; trackNo <= endTrack; trackNo++ {
		block := trackBlocks[trackNo]
		if len(block) == 0 {
			continue
		}
		binary.LittleEndian.PutUint32(offsetTable[trackNo*4:trackNo*4+4], cursor)
		body = append(body, block...)
		cursor += uint32(len(block))
	}

	headsField := uint8(0)
	if heads == 1 {
		headsField = 1
	}
	header := []byte{'S', 'C', 'P', 1, 0, 1, 0, byte(endTrack), 0, 0, headsField, 0, 0, 0, 0, 0}

	out := make([]byte, 0, len(header)+len(offsetTable)+len(body))
	out = append(out, header...)
	out = append(out, offsetTable...)
	out = append(out, body...)

	return os.WriteFile(filename, out, 0o644)
}

// decodeSCPFluxSamples parses a track's raw flux sample bytes (16-bit
// big-endian intervals in resolutionNs-scaled ticks, 0x0000 meaning
// "add a full 16-bit span and keep accumulating") into absolute
// transition times in nanoseconds, the same convention
// supercardpro.decodeFluxToMFM decodes for a live read.
func decodeSCPFluxSamples(data []byte, resolutionNs uint64) []uint64 {
	var transitions []uint64
	accumNs := uint64(0)
	for i := 0; i+1 < len(data); i += 2 {
		val := binary.BigEndian.Uint16(data[i : i+2])
		if val == 0 {
			accumNs += 0x10000 * resolutionNs
			continue
		}
		accumNs += uint64(val) * resolutionNs
		transitions = append(transitions, accumNs)
	}
	return transitions
}

// estimateBitRateKhz rounds a sample count and revolution duration to
// one of the standard floppy bit rates, the same thresholds
// supercardpro.calculateRPMAndBitRate uses for a live capture.
func estimateBitRateKhz(samples uint32, durationNs uint64) uint16 {
	if durationNs == 0 {
		return 250
	}
	bitsPerMsec := uint64(samples) * 1e6 / durationNs
	switch {
	case bitsPerMsec < 375:
		return 250
	case bitsPerMsec < 750:
		return 500
	default:
		return 1000
	}
}

// decodeTransitionsToMFM runs a PLL over absolute flux transition
// times and packs the recovered bitcells MSB-first into bytes,
// matching supercardpro.decodeFluxToMFM's bit-packing convention so
// the result plugs directly into a Disk's Side0/Side1 fields.
func decodeTransitionsToMFM(transitions []uint64, bitRateKhz uint16) ([]byte, error) {
	if len(transitions) == 0 {
		return nil, fmt.Errorf("no flux transitions to decode")
	}

	decoder := pll.NewDecoder(transitions, bitRateKhz)
	_ = decoder.NextBit() // discard first half-bit, as supercardpro.decodeFluxToMFM does

	var mfmBytes []byte
	currentByte := byte(0)
	bitCount := 0
	for {
		bit := decoder.NextBit()
		if bit {
			currentByte |= 1 << uint(7-bitCount)
		}
		bitCount++
		if bitCount == 8 {
			mfmBytes = append(mfmBytes, currentByte)
			currentByte = 0
			bitCount = 0
		}
		if decoder.IsDone() {
			break
		}
	}
	if bitCount > 0 {
		mfmBytes = append(mfmBytes, currentByte)
	}
	if len(mfmBytes) == 0 {
		return nil, fmt.Errorf("no bitcells recovered")
	}
	return mfmBytes, nil
}

// mfmToTransitions is decodeTransitionsToMFM's inverse: walks MSB-first
// MFM bitcells and emits a transition time (ns) for every set bit, the
// same bitcell-period arithmetic supercardpro.mfmToFluxTransitions uses.
func mfmToTransitions(mfmBits []byte, bitRateKhz uint16) []uint64 {
	if len(mfmBits) == 0 {
		return nil
	}
	bitcellPeriodNs := uint64(1e9 / (float64(bitRateKhz) * 1000.0 * 2))

	var transitions []uint64
	currentTime := uint64(0)
	bitCount := len(mfmBits) * 8
	for i := 0; i < bitCount; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		currentTime += bitcellPeriodNs
		if mfmBits[byteIdx]&(1<<uint(bitIdx)) != 0 {
			transitions = append(transitions, currentTime)
		}
	}
	return transitions
}

// buildSCPTrackBlock encodes one track side's MFM bitstream (or, for
// an empty side, a minimal one-revolution filler) as a single-revolution
// SCP TRK block: magic, one revolution entry, then its flux samples.
func buildSCPTrackBlock(mfmBits []byte, bitRateKhz uint16, rpm uint16) []byte {
	transitions := mfmToTransitions(mfmBits, bitRateKhz)
	rotationNs := 60e9 / float64(rpm)

	samples := encodeTransitionsToSCP(transitions, rotationNs)
	lengthSamples := uint32(len(samples) / 2)
	durationTicks := uint32(rotationNs / scpNsPerTick)

	block := make([]byte, 16)
	copy(block[0:3], "TRK")
	binary.LittleEndian.PutUint32(block[4:8], durationTicks)
	binary.LittleEndian.PutUint32(block[8:12], lengthSamples)
	binary.LittleEndian.PutUint32(block[12:16], 16) // flux data starts right after this one entry

	return append(block, samples...)
}

// encodeTransitionsToSCP is decodeSCPFluxSamples's inverse: converts
// relative-time transitions (ns) into 25ns-unit big-endian intervals,
// padding with filler intervals to cover a full revolution when the
// track has no transitions at all (an unformatted or erased track).
func encodeTransitionsToSCP(transitions []uint64, rotationNs float64) []byte {
	const fillerTicks = uint16(40) // 40 * 25ns = 1us filler interval

	if len(transitions) == 0 {
		nrSamples := uint32(rotationNs/scpNsPerTick) / uint32(fillerTicks)
		if nrSamples == 0 {
			nrSamples = 1
		}
		out := make([]byte, int(nrSamples)*2)
		for i := uint32(0); i < nrSamples; i++ {
			binary.BigEndian.PutUint16(out[i*2:i*2+2], fillerTicks)
		}
		return out
	}

	var out []byte
	lastNs := uint64(0)
	for _, t := range transitions {
		intervalTicks := uint32((t - lastNs) / scpNsPerTick)
		for intervalTicks >= 0x10000 {
			out = append(out, 0, 0)
			intervalTicks -= 0x10000
		}
		if intervalTicks == 0 {
			intervalTicks = 1
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(intervalTicks))
		out = append(out, buf...)
		lastNs = t
	}
	return out
}
