package build

import (
	"github.com/discflux/floppy/crc"
	"github.com/discflux/floppy/enc"
	"github.com/discflux/floppy/track"
)

// AddRX02Sector emits an RX02 sector: an FM-encoded IDAM (shared with
// plain FM tracks) followed by an FM-framed data address mark whose
// payload switches to MFM framing at double the size the header's
// size code declares -- the DEC RX02 controller's trick for doubling
// capacity on an otherwise-FM disk (spec.md §4.4 RX02 row). The data
// field's CRC is seeded from crc.A1A1A1 rather than crc.InitCRC even
// though the mark byte itself is FM-framed, matching the convention
// this module's RX02 scanner (scan.attachData) assumes.
func (b *Builder) AddRX02Sector(spec SectorSpec) {
	outer := b.Encoding

	b.Encoding = enc.FM
	b.AddSectorHeader(spec.Header, spec.IDCRCBad)
	b.AddGap(spec.Gap2, 0)

	b.AddSync()
	b.AddByteWithClock(byte(spec.DAM), 0xC7)
	b.crc.Init(crc.A1A1A1)
	b.crc.Add(byte(spec.DAM))

	b.Encoding = enc.MFM
	doubled := spec.Header.SizeCode + 1
	size := track.NewHeader(0, 0, 0, doubled).SizeBytes()
	data := make([]byte, size)
	copy(data, spec.Data)
	b.AddBlockUpdateCRC(data)
	b.AddCRCBytes(spec.DataCRCBad)

	b.Encoding = outer
	b.AddGap(spec.Gap3, 0)
}
