package hfe

import (
	"github.com/discflux/floppy/disk"
	"github.com/discflux/floppy/track"
)

// LoadDisk reads filename (any format Read recognises) and returns the
// structured disk.Disk it represents, with every track's bitstream
// wrapped but not yet scanned into sectors (disk.Disk.ReadTrack scans
// lazily via trackdata.TrackData).
func LoadDisk(filename string) (*disk.Disk, error) {
	hd, err := Read(filename)
	if err != nil {
		return nil, err
	}

	rate := datarateFor(hd.Header.BitRate)
	encoding := encodingFor(hd.Header.TrackEncoding)
	format := track.Format{
		Cyls:     int(hd.Header.NumberOfTrack),
		Heads:    int(hd.Header.NumberOfSide),
		Datarate: rate,
		Encoding: encoding,
	}

	d := disk.New(format)
	for cyl, t := range hd.Tracks {
		if len(t.Side0) > 0 {
			d.WriteBitstream(track.NewCylHead(cyl, 0), sideToBitBuffer(t.Side0, rate, encoding), 22)
		}
		if hd.Header.NumberOfSide > 1 && len(t.Side1) > 0 {
			d.WriteBitstream(track.NewCylHead(cyl, 1), sideToBitBuffer(t.Side1, rate, encoding), 22)
		}
	}
	return d, nil
}

// SaveDisk writes d out as an HFE file of the given version, reading
// every cylinder/head's bitstream (synthesising one from Track/Flux if
// that's all d holds, via trackdata.TrackData's lazy cache) and muxing
// the two sides together the way WriteHFE expects.
func SaveDisk(d *disk.Disk, filename string, version HFEVersion) error {
	cyls, heads := d.Cyls(), d.Heads()

	hd := &Disk{Header: Header{
		NumberOfTrack:       uint8(cyls),
		NumberOfSide:        uint8(heads),
		BitRate:             bitRateFor(d.Fmt.Datarate),
		TrackEncoding:       hfeEncodingFor(d.Fmt.Encoding),
		FloppyInterfaceMode: IFM_GenericShugart_DD,
		WriteAllowed:        1,
	}}
	hd.Tracks = make([]TrackData, cyls)

	for cyl := 0; cyl < cyls; cyl++ {
		b0, err := d.ReadBitstream(track.NewCylHead(cyl, 0), false)
		if err != nil {
			return err
		}
		hd.Tracks[cyl].Side0 = bitBufferToSide(b0)

		if heads > 1 {
			b1, err := d.ReadBitstream(track.NewCylHead(cyl, 1), false)
			if err != nil {
				return err
			}
			hd.Tracks[cyl].Side1 = bitBufferToSide(b1)
		}
	}

	return WriteHFE(filename, hd, version)
}
