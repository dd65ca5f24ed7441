package track

// Track is an ordered list of Sectors for one physical revolution, in
// the order they were encountered on the medium (not sorted by id),
// plus track-level timing metadata.
type Track struct {
	Sectors []*Sector

	// TrackLen is the track length in bit-cells.
	TrackLen int
	// TrackTimeUs is microseconds per revolution (0 if unknown).
	TrackTimeUs int
}

// NewTrack creates an empty track.
func NewTrack() *Track { return &Track{} }

// Size returns the number of sectors currently on the track.
func (t *Track) Size() int { return len(t.Sectors) }

// IsRepeated reports whether another sector on the track shares the
// same (header, datarate, encoding) as s.
func (t *Track) IsRepeated(s *Sector) bool {
	for _, o := range t.Sectors {
		if o == s {
			continue
		}
		if o.Header.Compare(s.Header) && o.Datarate == s.Datarate && o.Encoding == s.Encoding {
			return true
		}
	}
	return false
}

// AddSector inserts or merges a sector found at a given bitstream
// offset. If a sector with the same header already exists, the
// incoming header CRC / data copies are merged into it (via
// Sector.AddData for each incoming copy) rather than duplicating the
// entry; this keeps Track.IsRepeated reflexive across merges
// (testable property #4).
func (t *Track) AddSector(s *Sector) MergeOutcome {
	for _, existing := range t.Sectors {
		if existing.Header.Compare(s.Header) && existing.Datarate == s.Datarate && existing.Encoding == s.Encoding {
			outcome := Unchanged
			for _, c := range s.copies {
				if r := existing.AddData(c.Data, c.BadDataCRC, s.DAM); r != Unchanged {
					outcome = r
				}
			}
			if !existing.BadIDCRC && s.BadIDCRC {
				// keep the existing (good) header, ignore the worse one
			}
			return outcome
		}
	}
	t.Sectors = append(t.Sectors, s)
	return NewData
}

// Get returns the sector with the given header, or nil.
func (t *Track) Get(header Header) *Sector {
	for _, s := range t.Sectors {
		if s.Header.Compare(header) {
			return s
		}
	}
	return nil
}
