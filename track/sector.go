package track

import "github.com/discflux/floppy/enc"

// DAM is the data-address-mark byte recorded with a sector's data
// field.
type DAM byte

const (
	DAMNone    DAM = 0x00
	DAMNormal  DAM = 0xFB
	DAMDeleted DAM = 0xF8
	DAMAlt1    DAM = 0xF9
	DAMAlt2    DAM = 0xFA
	DAMRX02    DAM = 0xFD
)

// MergeOutcome classifies what happened when a data copy was merged
// into a sector that may already hold one (spec.md §3's three-way
// rule).
type MergeOutcome int

const (
	// Unchanged means the candidate was identical to an existing copy.
	Unchanged MergeOutcome = iota
	// Improved means an existing bad copy was replaced by a good one
	// at the same position, or a duplicate good copy was dropped.
	Improved
	// NewData means a genuinely new copy was appended.
	NewData
)

// SectorData is one physical reading of a sector's data field.
type SectorData struct {
	Data       []byte
	BadDataCRC bool
}

// Sector is one logical sector record: identity, address-mark
// metadata, and zero or more data-field copies (weak/fuzzy sectors
// may be read differently on successive revolutions).
type Sector struct {
	Datarate enc.Datarate
	Encoding enc.Encoding
	Header   Header
	DAM      DAM

	// Offset is the bit-index within the enclosing track's BitBuffer
	// where the IDAM was found (0 if unknown).
	Offset int
	// Gap3 is the gap length to the next sector when re-emitting (0 =
	// auto).
	Gap3 int

	BadIDCRC bool
	copies   []SectorData
}

// NewSector constructs a Sector with no data copies yet.
func NewSector(datarate enc.Datarate, encoding enc.Encoding, header Header) *Sector {
	return &Sector{Datarate: datarate, Encoding: encoding, Header: header}
}

// Copies returns the sector's data copies in read order.
func (s *Sector) Copies() []SectorData { return s.copies }

// HasData reports whether the sector has at least one data copy.
func (s *Sector) HasData() bool { return len(s.copies) > 0 }

// HasGoodData reports whether at least one copy has a correct CRC and
// the header itself has a correct CRC (spec.md testable property #3).
func (s *Sector) HasGoodData() bool {
	if s.BadIDCRC {
		return false
	}
	for _, c := range s.copies {
		if !c.BadDataCRC {
			return true
		}
	}
	return false
}

// IsDeleted reports whether the sector's DAM marks deleted data.
func (s *Sector) IsDeleted() bool { return s.DAM == DAMDeleted }

// Is8KSector reports whether this is an MFM size-code-6 (8192-byte
// declared) sector, the special-cased "8K sector" of spec.md §4.4.
func (s *Sector) Is8KSector() bool {
	return s.Header.SizeCode == 6 && s.Encoding == enc.MFM
}

// HasGapData reports whether any copy is longer than the header's
// declared size (i.e. gap/overlap bytes were captured alongside it).
func (s *Sector) HasGapData() bool {
	size := s.Header.SizeBytes()
	for _, c := range s.copies {
		if len(c.Data) > size {
			return true
		}
	}
	return false
}

// AddData adds a data copy read with the given DAM, applying the
// three-way merge rule: an identical copy already present is a no-op
// (Unchanged); a copy at the same logical position that upgrades a
// bad CRC to a good one replaces it (Improved); anything else is
// appended (NewData). bad_id_crc sectors may not hold data copies.
func (s *Sector) AddData(data []byte, badCRC bool, dam DAM) MergeOutcome {
	if s.BadIDCRC {
		// Invariant: no data copies may be stored on a bad-ID sector.
		return Unchanged
	}
	s.DAM = dam
	for i, c := range s.copies {
		if bytesEqual(c.Data, data) && c.BadDataCRC == badCRC {
			return Unchanged
		}
		if bytesEqual(c.Data, data) && c.BadDataCRC && !badCRC {
			s.copies[i] = SectorData{Data: data, BadDataCRC: badCRC}
			return Improved
		}
	}
	s.copies = append(s.copies, SectorData{Data: data, BadDataCRC: badCRC})
	return NewData
}

// TrimGapData truncates every copy longer than the header's declared
// size back to that size, discarding any trailing gap bytes captured
// alongside the data field.
func (s *Sector) TrimGapData() {
	size := s.Header.SizeBytes()
	for i, c := range s.copies {
		if len(c.Data) > size {
			s.copies[i].Data = c.Data[:size]
		}
	}
}

// ClearData discards all data copies, leaving the sector's header
// identity intact -- used when scrubbing data for privacy during
// diagnostics (an empty copy is kept rather than none, so HasData
// still reports a placeholder was read).
func (s *Sector) ClearData() {
	s.copies = []SectorData{{}}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FirstData returns the first data copy's bytes, or nil if none.
func (s *Sector) FirstData() []byte {
	if len(s.copies) == 0 {
		return nil
	}
	return s.copies[0].Data
}
