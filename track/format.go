package track

import "github.com/discflux/floppy/enc"

// Format is a regular-format descriptor: the parameters needed to
// synthesise or recognise a non-protected disk image (spec.md §3
// Disk / §6.4).
type Format struct {
	Name string

	Cyls    int
	Heads   int
	Sectors int // sectors per track

	SizeCode int
	Base     int // lowest sector id
	Offset   int // sector id offset added after interleave

	Interleave int
	Skew       int

	Gap3 int
	Fill byte

	Datarate enc.Datarate
	Encoding enc.Encoding

	Head0Remap int // physical head used for logical head 0 (-1 = no remap)
	Head1Remap int

	CylsFirst bool // iterate/lay out cylinder-major instead of head-major
}

// SectorSize returns the data size in bytes for this format's sectors.
func (f Format) SectorSize() int {
	return NewHeader(0, 0, 0, f.SizeCode).SizeBytes()
}

// TrackBytes returns the total sector-data bytes on one track of this
// format.
func (f Format) TrackBytes() int {
	return f.Sectors * f.SectorSize()
}

// DiskBytes returns the total sector-data bytes across the whole disk.
func (f Format) DiskBytes() int {
	return f.Cyls * f.Heads * f.TrackBytes()
}

// SectorIDs returns the logical sector ids for one track, in physical
// (interleaved, skewed) emission order for the track at cylHead.
func (f Format) SectorIDs(cyl int) []int {
	n := f.Sectors
	ids := make([]int, n)
	logical := make([]int, n)
	for i := range logical {
		logical[i] = f.Base + i
	}

	interleave := f.Interleave
	if interleave < 1 {
		interleave = 1
	}
	slot := 0
	used := make([]bool, n)
	for _, id := range logical {
		// Place id at the next free slot reached by stepping
		// interleave-1 positions at a time, wrapping.
		for used[slot] {
			slot = (slot + 1) % n
		}
		ids[slot] = id
		used[slot] = true
		slot = (slot + interleave) % n
	}

	if f.Skew != 0 && n > 0 {
		shift := ((cyl * f.Skew) % n + n) % n
		rotated := make([]int, n)
		for i, id := range ids {
			rotated[(i+shift)%n] = id
		}
		ids = rotated
	}
	return ids
}

// well-known regular-format enumeration (spec.md §6.4). Only a subset
// of the named enumeration is wired with concrete parameters; the
// others are recognised names without a shipped geometry (callers
// consult original-source documentation when they need one not listed
// here).
var wellKnown = map[string]Format{
	"PC360": {
		Name: "PC360", Cyls: 40, Heads: 2, Sectors: 9, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x2A, Fill: 0xF6,
		Datarate: enc.Rate250K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"PC720": {
		Name: "PC720", Cyls: 80, Heads: 2, Sectors: 9, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x2A, Fill: 0xF6,
		Datarate: enc.Rate250K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"PC1200": {
		Name: "PC1200", Cyls: 80, Heads: 2, Sectors: 15, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x2A, Fill: 0xF6,
		Datarate: enc.Rate500K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"PC1440": {
		Name: "PC1440", Cyls: 80, Heads: 2, Sectors: 18, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x1B, Fill: 0xF6,
		Datarate: enc.Rate500K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"PC2880": {
		Name: "PC2880", Cyls: 80, Heads: 2, Sectors: 36, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x53, Fill: 0xF6,
		Datarate: enc.Rate1M, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"AMIGADOS": {
		Name: "AMIGADOS", Cyls: 80, Heads: 2, Sectors: 11, SizeCode: 2,
		Base: 0, Interleave: 1, Gap3: 0,
		Datarate: enc.Rate250K, Encoding: enc.Amiga,
		Head1Remap: -1,
	},
	"ATARIST": {
		Name: "ATARIST", Cyls: 80, Heads: 2, Sectors: 9, SizeCode: 2,
		Base: 1, Interleave: 1, Gap3: 0x2A, Fill: 0xF6,
		Datarate: enc.Rate250K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"TRDOS": {
		Name: "TRDOS", Cyls: 80, Heads: 2, Sectors: 16, SizeCode: 1,
		Base: 1, Interleave: 1, Gap3: 0x19, Fill: 0xF6,
		Datarate: enc.Rate250K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
	"CPM": {
		Name: "CPM", Cyls: 40, Heads: 1, Sectors: 18, SizeCode: 0,
		Base: 1, Interleave: 1, Gap3: 0x2A, Fill: 0xE5,
		Datarate: enc.Rate250K, Encoding: enc.FM,
		Head1Remap: -1,
	},
	"AppleDO": {
		Name: "AppleDO", Cyls: 35, Heads: 1, Sectors: 16, SizeCode: 1,
		Base: 0, Interleave: 1, Gap3: 0,
		Datarate: enc.RateUnknown, Encoding: enc.Apple,
		Head1Remap: -1,
	},
	"System24": {
		Name: "System24", Cyls: 80, Heads: 2, Sectors: 7, SizeCode: 4,
		Base: 0, Interleave: 1, Gap3: 0x20,
		Datarate: enc.Rate500K, Encoding: enc.MFM,
		Head1Remap: -1,
	},
}

// WellKnownFormat looks up a regular-format descriptor by its
// enumeration name (spec.md §6.4): "PC360", "PC720", "PC1200",
// "PC1440", "PC2880", "AMIGADOS", "ATARIST", "TRDOS", "CPM",
// "AppleDO", "System24", ...
func WellKnownFormat(name string) (Format, bool) {
	f, ok := wellKnown[name]
	return f, ok
}

// WellKnownFormatNames lists the names recognised by WellKnownFormat.
func WellKnownFormatNames() []string {
	names := make([]string, 0, len(wellKnown))
	for n := range wellKnown {
		names = append(names, n)
	}
	return names
}
