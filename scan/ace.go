package scan

import (
	"github.com/discflux/floppy/bitbuf"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// aceDataOffset returns the index just past a 0xFF 0x2A sync pair in
// data, or 0 if none is found -- the Jupiter Ace "Deep Thought"
// interface prefixes its payload with this pair before the text
// stream begins.
//
// Grounded on the teacher's GetDeepThoughtDataOffset (JupiterAce.cpp).
func aceDataOffset(data []byte) int {
	for i := 0; i < len(data); i++ {
		if data[i] != 0xFF {
			continue
		}
		if i+2 < len(data) && data[i+1] == 42 {
			return i + 2
		}
	}
	return 0
}

// isValidAceData checks the trailing byte-sum checksum the Deep
// Thought interface appends after the sync pair.
//
// Grounded on the teacher's IsValidDeepThoughtData (JupiterAce.cpp).
func isValidAceData(data []byte) bool {
	offset := aceDataOffset(data)
	if offset == 0 || offset == len(data) {
		return false
	}
	var sum byte
	for i := offset; i < len(data)-1; i++ {
		sum += data[i]
	}
	return sum == data[len(data)-1]
}

// ScanAce scans a Jupiter Ace "Deep Thought" disk track: an
// asynchronous, UART-like framing (clock+data bit pairs, 8 data bits
// LSB first, odd parity, one stop bit) rather than FM/MFM clocking,
// carrying one big 4096-byte block per track framed by a 0xFF 0x2A
// sync pair and closed with a byte-sum checksum.
//
// Grounded directly on the teacher's scan_bitstream_ace
// (BitstreamDecoder.cpp).
func ScanAce(b *bitbuf.BitBuffer, rate enc.Datarate, cyl, head int) (*track.Track, error) {
	b.Datarate = rate
	b.Encoding = enc.Ace
	b.Seek(0)

	result := track.NewTrack()

	const (
		stateWant255 = iota
		stateWant42
		stateData
	)
	state := stateWant255
	var block []byte
	idle := 0
	dataerror := false
	dataOffset := 0

	for !b.Wrapped() {
		word := 0
		if b.Read1() {
			word |= 2
		}
		if b.Read1() {
			word |= 1
		}

		if word&2 == 0 {
			b.Read1()
			continue
		}

		// Outside a frame a 1 represents the idle state.
		if word&1 == 0 {
			idle++
			if idle > 64 && state == stateData {
				break
			}
			continue
		}
		// The transition to 0 represents a potential start bit.
		idle = 0

		var data byte
		parity := 1
		clock := 2
		var bit int
		for i := 0; i < 10; i++ {
			w := 0
			if b.Read1() {
				w |= 2
			}
			if b.Read1() {
				w |= 1
			}
			bit = (^w) & 1
			parity ^= bit
			clock &= w
			data |= byte(bit<<uint(i)) & 0xff
		}

		if clock == 0 || bit == 0 || parity != 0 {
			if state != stateData {
				continue
			}
			dataerror = true
		} else {
			switch state {
			case stateWant255:
				if data == 255 {
					state = stateWant42
				} else {
					block = block[:0]
				}
			case stateWant42:
				if data == 42 {
					state = stateData
					dataOffset = b.TrackOffset(b.BitPos())
				} else if data != 255 {
					state = stateWant255
					block = block[:0]
				}
			}
		}

		block = append(block, data)
	}

	if state == stateData {
		s := track.NewSector(rate, enc.Ace, track.NewHeader(cyl, head, 0, 5)) // SizeCode 5 == 4096 bytes (128<<5)
		s.Offset = dataOffset
		if !isValidAceData(block) {
			dataerror = true
		}
		s.AddData(block, dataerror, track.DAMNormal)
		result.AddSector(s)
	}

	return result, nil
}
