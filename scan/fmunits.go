package scan

import "github.com/discflux/floppy/enc"

// cellsPerByte returns the number of raw bit-cells one encoded byte
// occupies for encoding (spec.md §4.4's "enc_unit"). MFM and RX02 use
// one clock cell per data cell (16 cells/byte); FM halves the bit
// density and doubles every raw cell (32 cells/byte), matching
// BitBuffer.readByteFM and Builder.AddDataBit's FM case.
func cellsPerByte(encoding enc.Encoding) int {
	if encoding == enc.FM {
		return 32
	}
	return 16
}

// headerToDataWindow returns the [min,max] bit-distance from an
// IDAM's bit offset within which a matching DAM candidate must fall,
// per spec.md §4.4: min = (1 AM + 6 ID)*enc_unit + gap2*16;
// max = min + 23*16.
func headerToDataWindow(encoding enc.Encoding, gap2 int) (min, max int) {
	unit := cellsPerByte(encoding)
	min = (1+6)*unit + gap2*16
	max = min + 23*16
	return
}
