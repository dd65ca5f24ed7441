package hfe

import (
	"fmt"
	"os"

	"github.com/discflux/floppy/build"
	"github.com/discflux/floppy/scan"
	"github.com/discflux/floppy/track"
)

// ReadIMG reads a raw sector-image file (IMG/IMA: no timing, just
// sector_size()-byte chunks in physical emission order) and returns a
// Disk whose per-cylinder bitstreams are synthesised from the file's
// bytes via a regular-format geometry guessed from the file size.
//
// Grounded on the teacher's CalculateGeometry
// (original_source/include/Util.h) for the size-to-geometry guess and
// WriteRegularDisk's inverse, ReadRegularDisk, for the byte layout
// (original_source/src/DiskUtil.cpp); the bitstream is synthesised
// with build.BitstreamTrackBuilder rather than stored raw, since IMG
// itself carries no bit-cell timing to preserve.
func ReadIMG(filename string) (*Disk, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	format, ok := guessRegularFormat(len(raw))
	if !ok {
		return nil, fmt.Errorf("cannot determine a regular geometry for a %d-byte image", len(raw))
	}

	hd := &Disk{Header: Header{
		NumberOfTrack:       uint8(format.Cyls),
		NumberOfSide:        uint8(format.Heads),
		BitRate:             bitRateFor(format.Datarate),
		TrackEncoding:       hfeEncodingFor(format.Encoding),
		FloppyInterfaceMode: IFM_GenericShugart_DD,
	}}
	hd.Tracks = make([]TrackData, format.Cyls)

	pos := 0
	for cyl := 0; cyl < format.Cyls; cyl++ {
		for head := 0; head < format.Heads; head++ {
			bt := build.NewBitstreamTrackBuilder(format.Datarate, format.Encoding)
			bt.AddIndexMark()
			bt.AddTrackStart(false)
			for _, id := range format.SectorIDs(cyl) {
				size := format.SectorSize()
				if pos+size > len(raw) {
					return nil, fmt.Errorf("image too short for %d/%d/%d geometry", format.Cyls, format.Heads, format.Sectors)
				}
				bt.AddSector(build.SectorSpec{
					Header: track.NewHeader(cyl, head, id, format.SizeCode),
					Data:   raw[pos : pos+size],
					Gap2:   22,
					Gap3:   format.Gap3,
					DAM:    track.DAMNormal,
				})
				pos += size
			}
			side := bitBufferToSide(bt.Finish())
			if head == 0 {
				hd.Tracks[cyl].Side0 = side
			} else {
				hd.Tracks[cyl].Side1 = side
			}
		}
	}
	return hd, nil
}

// WriteIMG writes a Disk's bitstreams out as a raw sector-image file,
// in the teacher's WriteRegularDisk order (original_source/src/DiskUtil.cpp):
// one sector_size() chunk per sector id in physical emission order,
// missing sectors filled with zero bytes. Geometry is read from the
// scanned track at cylinder 0 head 0, since IMG carries no format
// descriptor of its own.
func WriteIMG(filename string, d *Disk) error {
	if len(d.Tracks) == 0 {
		return fmt.Errorf("disk has no tracks to write")
	}
	rate := datarateFor(d.Header.BitRate)
	encoding := encodingFor(d.Header.TrackEncoding)

	t0, err := scan.ScanBitstream(sideToBitBuffer(d.Tracks[0].Side0, rate, encoding), encoding, rate, 0, 0, 22)
	if err != nil {
		return fmt.Errorf("failed to scan cylinder 0 to learn geometry: %w", err)
	}
	if len(t0.Sectors) == 0 {
		return fmt.Errorf("cylinder 0 has no sectors, cannot infer geometry")
	}

	sizeCode := t0.Sectors[0].Header.SizeCode
	sectorSize := t0.Sectors[0].Header.SizeBytes()
	sectors := len(t0.Sectors)
	base := t0.Sectors[0].Header.Sector
	for _, s := range t0.Sectors {
		if s.Header.Sector < base {
			base = s.Header.Sector
		}
	}
	heads := int(d.Header.NumberOfSide)
	if heads == 0 {
		heads = 1
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	for cyl := 0; cyl < len(d.Tracks); cyl++ {
		for head := 0; head < heads; head++ {
			side := d.Tracks[cyl].Side0
			if head == 1 {
				side = d.Tracks[cyl].Side1
			}
			tr, err := scan.ScanBitstream(sideToBitBuffer(side, rate, encoding), encoding, rate, cyl, head, 22)
			if err != nil {
				return fmt.Errorf("failed to scan cylinder %d head %d: %w", cyl, head, err)
			}
			for i := 0; i < sectors; i++ {
				buf := make([]byte, sectorSize)
				if s := tr.Get(track.NewHeader(cyl, head, base+i, sizeCode)); s != nil && s.HasData() {
					copy(buf, s.FirstData())
				}
				if _, err := file.Write(buf); err != nil {
					return fmt.Errorf("write error, disk full?: %w", err)
				}
			}
		}
	}
	return nil
}

// guessRegularFormat finds a well-known regular format whose on-disk
// byte size matches n exactly, the same ambiguity-free heuristic the
// teacher's CalculateGeometry falls back to for a handful of known
// sizes before trying C/H/S arithmetic.
func guessRegularFormat(n int) (track.Format, bool) {
	for _, name := range track.WellKnownFormatNames() {
		f, ok := track.WellKnownFormat(name)
		if ok && f.DiskBytes() == n {
			return f, true
		}
	}
	return track.Format{}, false
}
