package normalise

import (
	"github.com/discflux/floppy/crc"
	"github.com/discflux/floppy/message"
	"github.com/discflux/floppy/track"
)

// ChecksumType identifies one of the ad-hoc checksum conventions found
// trailing the first 0x1800 (6K) bytes of an 8K-sector track -- none
// of these are a real CRC the disk's own firmware checks, they're
// artefacts of whatever mastering tool wrote the original disc.
type ChecksumType int

const (
	// ChecksumNone means the region has no recognisable checksum at
	// all (e.g. unused filler tracks).
	ChecksumNone ChecksumType = iota
	// ChecksumConstant8C15 is a fixed 0x8C15 value seen on several
	// CPC/+3 titles, unrelated to the data it follows.
	ChecksumConstant8C15
	// ChecksumSum1800 is a one-byte sum of the first 0x1800 bytes.
	ChecksumSum1800
	// ChecksumXOR1800 is a one-byte XOR of the first 0x1800 bytes.
	ChecksumXOR1800
	// ChecksumXOR18A0 extends ChecksumXOR1800's running XOR out to
	// 0x18A0 bytes, needed for Coin-Op Hits.
	ChecksumXOR18A0
	// ChecksumCRCD2F61800 is a CRC-16/CCITT over the first 0x1800+2
	// bytes, seeded 0xD2F6.
	ChecksumCRCD2F61800
	// ChecksumCRCD2F61802 is a CRC-16/CCITT over the first 0x1802+2
	// bytes, seeded 0xD2F6.
	ChecksumCRCD2F61802
)

func (c ChecksumType) String() string {
	switch c {
	case ChecksumNone:
		return "None"
	case ChecksumConstant8C15:
		return "Constant_8C15"
	case ChecksumSum1800:
		return "Sum"
	case ChecksumXOR1800:
		return "XOR"
	case ChecksumXOR18A0:
		return "XOR_18A0"
	case ChecksumCRCD2F61800:
		return "CRC_D2F6"
	case ChecksumCRCD2F61802:
		return "CRC_D2F6_1802"
	default:
		return "Unknown"
	}
}

// Length returns the on-disk byte length of c's checksum field, 0 for
// ChecksumNone.
func (c ChecksumType) Length() int {
	switch c {
	case ChecksumSum1800, ChecksumXOR1800, ChecksumXOR18A0:
		return 1
	case ChecksumConstant8C15, ChecksumCRCD2F61800, ChecksumCRCD2F61802:
		return 2
	default:
		return 0
	}
}

const checksumRegionLen = 0x1800

// ChecksumMethods returns every checksum convention data is consistent
// with. More than one may match (a byte value can simultaneously
// satisfy a sum and an unrelated constant, say), and the caller
// reconciles that ambiguity across the whole disk.
func ChecksumMethods(data []byte) map[ChecksumType]bool {
	methods := map[ChecksumType]bool{}
	if len(data) <= checksumRegionLen {
		return methods
	}

	if allEqual(data[1:checksumRegionLen], data[0]) {
		methods[ChecksumNone] = true
	}

	if len(data) >= checksumRegionLen+3 && data[checksumRegionLen] == 0x8c && data[checksumRegionLen+1] == 0x15 {
		methods[ChecksumConstant8C15] = true
	}
	if len(data) >= checksumRegionLen+2 {
		if crc.Block(crc.ChecksumD2F6, data[:checksumRegionLen+2]) == 0 {
			methods[ChecksumCRCD2F61800] = true
		}
	}
	if len(data) >= checksumRegionLen+4 {
		if crc.Block(crc.ChecksumD2F6, data[:checksumRegionLen+2+2]) == 0 {
			methods[ChecksumCRCD2F61802] = true
		}
	}

	var sum, xor byte
	for _, b := range data[:checksumRegionLen] {
		sum += b
		xor ^= b
	}
	if data[checksumRegionLen] == sum {
		methods[ChecksumSum1800] = true
	}
	if data[checksumRegionLen] == xor {
		methods[ChecksumXOR1800] = true
	}
	if len(data) >= 0x18a1 {
		xorExt := xor
		for _, b := range data[checksumRegionLen:0x18a0] {
			xorExt ^= b
		}
		if data[0x18a0] == xorExt {
			methods[ChecksumXOR18A0] = true
		}
	}

	return methods
}

// eightKChecksumKey identifies one disk-wide checksum-method slot: the
// method can legitimately change within a disk, but doing so usually
// tracks a change of sector id or DAM (Fun Radio [2B] does this).
type eightKChecksumKey struct {
	sector int
	dam    track.DAM
}

// EightKChecksumState accumulates the checksum method observed per
// (sector, DAM) slot across every track of a disk with Options.Check8K
// set, so NormaliseTrack can flag an individual sector's checksum as
// invalid relative to what the rest of the disk uses. The zero value
// is ready to use.
type EightKChecksumState struct {
	methods map[eightKChecksumKey]map[ChecksumType]bool
}

// Reconcile folds sector's checksum evidence into the running per-key
// state and reports a Warning through sink if sector's checksum
// doesn't match the disk's established method for its key.
func (st *EightKChecksumState) Reconcile(cylhead track.CylHead, sector *track.Sector, sink message.Sink) {
	if st.methods == nil {
		st.methods = map[eightKChecksumKey]map[ChecksumType]bool{}
	}
	if sector.Copies() == nil || len(sector.Copies()) != 1 {
		return
	}
	data := sector.FirstData()
	if len(data) < checksumRegionLen+1 {
		return
	}

	key := eightKChecksumKey{sector: sector.Header.Sector, dam: sector.DAM}
	diskMethods := st.methods[key]
	sectorMethods := ChecksumMethods(data)

	if diskMethods == nil {
		if len(sectorMethods) > 0 {
			diskMethods = cloneMethodSet(sectorMethods)
		} else {
			diskMethods = map[ChecksumType]bool{ChecksumNone: true}
		}
		st.methods[key] = diskMethods
	}

	common := intersectMethodSets(sectorMethods, diskMethods)

	switch {
	case sectorMethods[ChecksumNone]:
		// None is always consistent: no checksum to violate.
	case len(common) == 1:
		if len(diskMethods) > 1 {
			st.methods[key] = common
		}
	case len(diskMethods) == 0:
		reportUnrecognisedChecksum(cylhead, data, sink)
	case len(diskMethods) == 1 && len(common) == 0 && !diskMethods[ChecksumNone]:
		reportInvalidChecksum(cylhead, diskMethods, data, sink)
	}
}

func reportUnrecognisedChecksum(cylhead track.CylHead, data []byte, sink message.Sink) {
	if len(data) >= checksumRegionLen+2 && data[checksumRegionLen] != data[checksumRegionLen+1] {
		message.Emit(sink, message.Warning, "unknown or invalid 6K checksum [%02X %02X] on %s",
			data[checksumRegionLen], data[checksumRegionLen+1], cylhead)
	} else if data[checksumRegionLen] != 0 {
		message.Emit(sink, message.Warning, "unknown or invalid 6K checksum [%02X] on %s",
			data[checksumRegionLen], cylhead)
	}
}

func reportInvalidChecksum(cylhead track.CylHead, diskMethods map[ChecksumType]bool, data []byte, sink message.Sink) {
	method := firstMethod(diskMethods)
	switch method.Length() {
	case 1:
		message.Emit(sink, message.Warning, "invalid %s checksum [%02X] on %s", method, data[checksumRegionLen], cylhead)
	case 2:
		if len(data) >= checksumRegionLen+2 {
			message.Emit(sink, message.Warning, "invalid %s checksum [%02X %02X] on %s",
				method, data[checksumRegionLen], data[checksumRegionLen+1], cylhead)
		}
	}
}

func firstMethod(methods map[ChecksumType]bool) ChecksumType {
	for m := range methods {
		return m
	}
	return ChecksumNone
}

func cloneMethodSet(src map[ChecksumType]bool) map[ChecksumType]bool {
	dst := make(map[ChecksumType]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func intersectMethodSets(a, b map[ChecksumType]bool) map[ChecksumType]bool {
	out := map[ChecksumType]bool{}
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}
