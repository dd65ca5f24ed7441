package supercardpro

import (
	"fmt"
	"io"
	"time"

	"github.com/discflux/floppy/adapter"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	VendorID  = 0x0403
	ProductID = 0x6015
)

func init() {
	adapter.RegisterAdapter(VendorID, ProductID, NewClient)
}

const baudRate = 115200

// SCP command codes
const (
	SCPCMD_SELA        = 0x80 // select drive A
	SCPCMD_SELB        = 0x81 // select drive B
	SCPCMD_DSELA       = 0x82 // deselect drive A
	SCPCMD_DSELB       = 0x83 // deselect drive B
	SCPCMD_MTRAON      = 0x84 // turn motor A on
	SCPCMD_MTRBON      = 0x85 // turn motor B on
	SCPCMD_MTRAOFF     = 0x86 // turn motor A off
	SCPCMD_MTRBOFF     = 0x87 // turn motor B off
	SCPCMD_SEEK0       = 0x88 // seek track 0
	SCPCMD_STEPTO      = 0x89 // step to specified track
	SCPCMD_SIDE        = 0x8d // select side
	SCPCMD_SETPARAMS   = 0x91 // set parameters
	SCPCMD_READFLUX    = 0xa0 // read flux level
	SCPCMD_GETFLUXINFO = 0xa1 // get info for last flux read
	SCPCMD_WRITEFLUX   = 0xa6 // write flux data from RAM to disk
	SCPCMD_LOADRAM_USB = 0xa8 // load data from USB into buffer
	SCPCMD_SENDRAM_USB = 0xa9 // send data from buffer to USB
	SCPCMD_SCPINFO     = 0xd0 // get SCP info
)

// SCP status codes
const (
	SCP_STATUS_OK = 0x4f // command successful
)

// FluxInfo contains information about a single revolution of flux data
type FluxInfo struct {
	IndexTime  uint32 // Index pulse time
	NrBitcells uint32 // Number of bitcells
}

// FluxData contains flux information and data for up to 5 revolutions
type FluxData struct {
	Info [5]FluxInfo // Information for up to 5 revolutions
	Data []byte      // Flux data (512KB raw bytes from device)
}

// Client wraps a serial port connection to a SuperCard Pro device
type Client struct {
	port         serial.Port
	serialNumber string
}

// NewClient creates a new SuperCard Pro client using the provided port details.
// It opens the serial port and initializes the connection.
func NewClient(portDetails *enumerator.PortDetails) (adapter.FloppyAdapter, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
	}
	port, err := serial.Open(portDetails.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portDetails.Name, err)
	}

	client := &Client{
		port:         port,
		serialNumber: portDetails.SerialNumber,
	}

	return client, nil
}

// scpSend sends a command to the SuperCard Pro device using the SCP protocol.
// Protocol: [cmd byte][len byte][data...][checksum byte]
// Checksum = 0x4a + sum of all bytes before it.
// Response: [cmd echo byte][status byte], 0x4f on success.
// For SCPCMD_SENDRAM_USB, reads readData's length worth of bytes before
// reading the response.
func (c *Client) scpSend(cmd byte, data []byte, readData []byte) error {
	dataLen := len(data)
	if dataLen > 255 {
		return fmt.Errorf("data length %d exceeds maximum 255", dataLen)
	}

	packet := make([]byte, 3+dataLen)
	packet[0] = cmd
	packet[1] = byte(dataLen)
	if dataLen > 0 {
		copy(packet[2:2+dataLen], data)
	}

	checksum := byte(0x4a)
	for i := 0; i < 2+dataLen; i++ {
		checksum += packet[i]
	}
	packet[2+dataLen] = checksum

	if _, err := c.port.Write(packet); err != nil {
		return fmt.Errorf("failed to write command packet: %w", err)
	}

	if cmd == SCPCMD_SENDRAM_USB && readData != nil {
		if _, err := io.ReadFull(c.port, readData); err != nil {
			return fmt.Errorf("failed to read RAM data: %w", err)
		}
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("failed to read command response: %w", err)
	}

	if response[0] != cmd {
		return fmt.Errorf("command echo mismatch: sent 0x%02x, received 0x%02x", cmd, response[0])
	}

	if response[1] != SCP_STATUS_OK {
		return fmt.Errorf("command failed with status 0x%02x", response[1])
	}

	return nil
}

// loadRAM uploads flux sample data (uint16 big-endian intervals) into the
// device's onboard RAM at offset 0, ahead of a writeFlux call. Mirrors
// readFlux's SENDRAM_USB transfer in the opposite direction.
func (c *Client) loadRAM(flux []byte) error {
	length := uint32(len(flux))
	header := []byte{
		0, 0, 0, 0, // offset
		byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
	}

	if err := c.scpSend(SCPCMD_LOADRAM_USB, header, nil); err != nil {
		return fmt.Errorf("failed to send LOADRAM command: %w", err)
	}

	if _, err := c.port.Write(flux); err != nil {
		return fmt.Errorf("failed to upload flux data: %w", err)
	}

	response := make([]byte, 2)
	if _, err := io.ReadFull(c.port, response); err != nil {
		return fmt.Errorf("failed to read LOADRAM response: %w", err)
	}
	if response[1] != SCP_STATUS_OK {
		return fmt.Errorf("LOADRAM failed with status 0x%02x", response[1])
	}
	return nil
}

// writeFlux instructs the device to emit nrSamples flux intervals already
// staged in RAM by loadRAM, repeated for the given revolution count.
func (c *Client) writeFlux(nrSamples uint32, revs uint) error {
	info := []byte{
		byte(nrSamples >> 24), byte(nrSamples >> 16), byte(nrSamples >> 8), byte(nrSamples),
		byte(revs),
	}
	if err := c.scpSend(SCPCMD_WRITEFLUX, info, nil); err != nil {
		return fmt.Errorf("failed to send WRITEFLUX command: %w", err)
	}
	return nil
}

// selectDrive selects a drive and turns on its motor
func (c *Client) selectDrive(drive uint) error {
	var cmd byte = SCPCMD_SELA
	if drive == 1 {
		cmd = SCPCMD_SELB
	}
	if err := c.scpSend(cmd, nil, nil); err != nil {
		return fmt.Errorf("failed to select drive %d: %w", drive, err)
	}

	var motorCmd byte = SCPCMD_MTRAON
	if drive == 1 {
		motorCmd = SCPCMD_MTRBON
	}
	if err := c.scpSend(motorCmd, nil, nil); err != nil {
		return fmt.Errorf("failed to turn on motor for drive %d: %w", drive, err)
	}

	return nil
}

// deselectDrive deselects a drive and turns off its motor
func (c *Client) deselectDrive(drive uint) error {
	var motorCmd byte = SCPCMD_MTRAOFF
	if drive == 1 {
		motorCmd = SCPCMD_MTRBOFF
	}
	if err := c.scpSend(motorCmd, nil, nil); err != nil {
		return fmt.Errorf("failed to turn off motor for drive %d: %w", drive, err)
	}

	var cmd byte = SCPCMD_DSELA
	if drive == 1 {
		cmd = SCPCMD_DSELB
	}
	if err := c.scpSend(cmd, nil, nil); err != nil {
		return fmt.Errorf("failed to deselect drive %d: %w", drive, err)
	}

	return nil
}

// seekTrack seeks to the specified track (cyl = track>>1, side = track&1)
func (c *Client) seekTrack(track uint) error {
	cyl := track >> 1
	side := track & 1

	if cyl == 0 {
		if err := c.scpSend(SCPCMD_SEEK0, nil, nil); err != nil {
			return fmt.Errorf("failed to seek to track 0: %w", err)
		}
	} else {
		if err := c.scpSend(SCPCMD_STEPTO, []byte{byte(cyl)}, nil); err != nil {
			return fmt.Errorf("failed to step to cylinder %d: %w", cyl, err)
		}
	}

	if err := c.scpSend(SCPCMD_SIDE, []byte{byte(side)}, nil); err != nil {
		return fmt.Errorf("failed to select side %d: %w", side, err)
	}

	time.Sleep(20 * time.Millisecond)

	return nil
}

// Format formats the floppy disk
func (c *Client) Format() error {
	return fmt.Errorf("Format() not yet implemented for SuperCard Pro adapter")
}

// Close closes the serial port connection
func (c *Client) Close() error {
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}
