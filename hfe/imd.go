package hfe

import (
	"bytes"
	"fmt"
	"os"

	"github.com/discflux/floppy/mfm"
)

const imdCommentTerminator = 0x1a

// imdDataRatesKhz and imdEncodingsMFM are indexed by the IMD track mode
// byte (0-7), per Dave Dunfield's ImageDisk specification.
var imdDataRatesKhz = [8]uint16{500, 300, 250, 500, 300, 250, 1000, 1000}
var imdEncodingsMFM = [8]bool{false, false, false, true, true, true, false, true}

// ImdSector holds one decoded IMD sector record.
type ImdSector struct {
	Flag       byte // raw sector type byte read from the file (1-8), 0 means absent
	Compressed bool
	Deleted    bool
	Bad        bool
	Data       []byte
}

// ImdTrack holds one decoded IMD track header plus its sectors.
type ImdTrack struct {
	Mode      uint8
	Cylinder  uint8
	Head      uint8 // raw head byte, including the cyl-map/head-map flag bits
	Nsec      uint8
	Ssize     uint8
	SectorMap []byte
	CylMap    []byte
	HeadMap   []byte
	Sectors   []ImdSector
}

// ImdImage is the parsed contents of an IMD file: its free-text comment
// plus the per-track records that follow it.
type ImdImage struct {
	Comment   []byte
	Tracks    []ImdTrack
	FloppyRPM uint16
}

// imdSectorSize converts an IMD sector size code to a byte count.
// Code 0xFF means sizes are given explicitly in the per-sector size map.
func imdSectorSize(ssize uint8) int {
	if ssize == 0xff {
		return -1
	}
	return 128 << ssize
}

// ReadIMDFile parses a Dave Dunfield ImageDisk (.IMD) file.
func ReadIMDFile(filename string) (*ImdImage, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	termIdx := bytes.IndexByte(data, imdCommentTerminator)
	if termIdx < 0 {
		return nil, fmt.Errorf("IMD comment block has no 0x1A terminator")
	}

	img := &ImdImage{
		Comment: append([]byte(nil), data[:termIdx]...),
	}

	pos := termIdx + 1
	var maxBitrate uint16
	for pos < len(data) {
		if pos+5 > len(data) {
			return nil, fmt.Errorf("truncated track header at offset %d", pos)
		}

		mode := data[pos]
		cyl := data[pos+1]
		head := data[pos+2]
		nsec := data[pos+3]
		ssize := data[pos+4]
		pos += 5

		if int(mode) >= len(imdDataRatesKhz) {
			return nil, fmt.Errorf("invalid track mode %d on cyl %d head %d", mode, cyl, head)
		}

		track := ImdTrack{
			Mode:     mode,
			Cylinder: cyl,
			Head:     head,
			Nsec:     nsec,
			Ssize:    ssize,
		}

		if pos+int(nsec) > len(data) {
			return nil, fmt.Errorf("short file reading sector map for cyl %d head %d", cyl, head)
		}
		track.SectorMap = append([]byte(nil), data[pos:pos+int(nsec)]...)
		pos += int(nsec)

		if head&0x80 != 0 {
			if pos+int(nsec) > len(data) {
				return nil, fmt.Errorf("short file reading cylinder map for cyl %d head %d", cyl, head)
			}
			track.CylMap = append([]byte(nil), data[pos:pos+int(nsec)]...)
			pos += int(nsec)
		}

		if head&0x40 != 0 {
			if pos+int(nsec) > len(data) {
				return nil, fmt.Errorf("short file reading head map for cyl %d head %d", cyl, head)
			}
			track.HeadMap = append([]byte(nil), data[pos:pos+int(nsec)]...)
			pos += int(nsec)
		}

		sizeMap := make([]int, nsec)
		if ssize == 0xff {
			if pos+int(nsec)*2 > len(data) {
				return nil, fmt.Errorf("short file reading size map for cyl %d head %d", cyl, head)
			}
			for i := 0; i < int(nsec); i++ {
				sizeMap[i] = int(data[pos+i*2]) | int(data[pos+i*2+1])<<8
			}
			pos += int(nsec) * 2
		} else {
			for i := range sizeMap {
				sizeMap[i] = imdSectorSize(ssize)
			}
		}

		track.Sectors = make([]ImdSector, nsec)
		for i := 0; i < int(nsec); i++ {
			if pos >= len(data) {
				return nil, fmt.Errorf("short file reading sector %d of cyl %d head %d", i, cyl, head)
			}
			flag := data[pos]
			pos++

			sector := ImdSector{Flag: flag}
			if flag > 8 {
				return nil, fmt.Errorf("unknown sector type %d on cyl %d head %d sector %d", flag, cyl, head, i)
			}

			if flag != 0 {
				bits := flag - 1
				sector.Compressed = bits&1 != 0
				sector.Deleted = bits&2 != 0
				sector.Bad = bits&4 != 0

				size := sizeMap[i]
				if size < 0 {
					return nil, fmt.Errorf("invalid sector size on cyl %d head %d sector %d", cyl, head, i)
				}

				if sector.Compressed {
					if pos >= len(data) {
						return nil, fmt.Errorf("short file reading fill byte for cyl %d head %d sector %d", cyl, head, i)
					}
					fill := data[pos]
					pos++
					sector.Data = bytes.Repeat([]byte{fill}, size)
				} else {
					if pos+size > len(data) {
						return nil, fmt.Errorf("short file reading data for cyl %d head %d sector %d", cyl, head, i)
					}
					sector.Data = append([]byte(nil), data[pos:pos+size]...)
					pos += size
				}
			}

			track.Sectors[i] = sector
		}

		if rate := imdDataRatesKhz[mode]; rate > maxBitrate {
			maxBitrate = rate
		}

		img.Tracks = append(img.Tracks, track)
	}

	// RPM cannot be recovered from the IMD track mode alone; assume the
	// conventional floppy speed for the fastest data rate seen (double
	// density media runs at 300 RPM, high density at 360 RPM).
	if maxBitrate > 300 {
		img.FloppyRPM = 360
	} else {
		img.FloppyRPM = 300
	}

	return img, nil
}

// ConvertIMDToHFE re-encodes a decoded IMD image as MFM bitstreams in
// the layout used by Disk.Tracks, so it can be written out with WriteHFE
// or compared against a format's own MFM reader/writer. An image with any
// FM-encoded track is rejected with an error.
func ConvertIMDToHFE(img *ImdImage) (*Disk, error) {
	if len(img.Tracks) == 0 {
		return nil, fmt.Errorf("IMD image has no tracks")
	}

	var maxCyl, maxHead uint8
	for _, t := range img.Tracks {
		if t.Cylinder > maxCyl {
			maxCyl = t.Cylinder
		}
		if t.Head&0x0f > maxHead {
			maxHead = t.Head & 0x0f
		}
	}

	mode := img.Tracks[0].Mode
	encoding := uint8(ENC_ISOIBM_MFM)
	if !imdEncodingsMFM[mode] {
		encoding = ENC_ISOIBM_FM
	}

	disk := &Disk{
		Header: Header{
			NumberOfTrack: maxCyl + 1,
			NumberOfSide:  maxHead + 1,
			TrackEncoding: encoding,
			BitRate:       imdDataRatesKhz[mode],
			FloppyRPM:     img.FloppyRPM,
		},
		Tracks: make([]TrackData, maxCyl+1),
	}

	bitsPerMinute := uint64(disk.Header.BitRate) * 1000 * 60
	maxHalfBits := int(bitsPerMinute / uint64(disk.Header.FloppyRPM) * 2)

	for _, track := range img.Tracks {
		if !imdEncodingsMFM[track.Mode] {
			return nil, fmt.Errorf("FM-encoded IMD tracks are not supported (cyl %d head %d)", track.Cylinder, track.Head&0x0f)
		}

		sectorsBySlot := make([][]byte, track.Nsec)
		for i, sector := range track.Sectors {
			sectorsBySlot[i] = sector.Data
		}

		writer := mfm.NewWriter(maxHalfBits)
		mfmData := writer.EncodeTrackIBMPC(sectorsBySlot, int(track.Cylinder), int(track.Head&0x0f), int(track.Nsec))

		if track.Head&0x0f == 0 {
			disk.Tracks[track.Cylinder].Side0 = mfmData
		} else {
			disk.Tracks[track.Cylinder].Side1 = mfmData
		}
	}

	return disk, nil
}

// ReadIMD reads a file in IMD format and returns a Disk structure ready
// for use by the rest of this package.
func ReadIMD(filename string) (*Disk, error) {
	img, err := ReadIMDFile(filename)
	if err != nil {
		return nil, err
	}
	return ConvertIMDToHFE(img)
}

// WriteIMD writes a Disk structure to an IMD format file.
func WriteIMD(filename string, disk *Disk) error {
	return fmt.Errorf("IMD format not yet implemented")
}
