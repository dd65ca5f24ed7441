package kryoflux

import (
	"fmt"

	"github.com/google/gousb"
)

// DebugFlag enables verbose stream-decoding trace output.
const DebugFlag = false

// ReadBufferSize is the size of the bulk-in read chunks used while
// draining a stream capture.
const ReadBufferSize = 32 * 1024

// DefaultSampleClock and DefaultIndexClock are the KryoFlux board's
// nominal sample and index clock rates in Hz, used when a capture's
// KFInfo OOB block isn't parsed for exact values.
const (
	DefaultSampleClock = 24027428.5714285
	DefaultIndexClock  = DefaultSampleClock / 8
)

// Vendor control requests implemented by the KryoFlux firmware.
const (
	RequestDevice  = 0x00 // select target drive
	RequestMotor   = 0x01 // motor on/off
	RequestDensity = 0x02 // density select line
	RequestSide    = 0x03 // head select
	RequestTrack   = 0x04 // seek to cylinder
	RequestMinMax  = 0x05 // set min/max track range
	RequestStream  = 0x06 // start/stop stream capture
)

// IndexTiming records one decoded index pulse from a raw stream: the byte
// offset it occurred at and the sample/index clock counters at that point.
type IndexTiming struct {
	streamPosition uint32
	sampleCounter  uint32
	indexCounter   uint32
}

// DecodedStreamData is the result of decoding a raw KryoFlux stream: the
// flux transitions between the first two index pulses of a revolution,
// plus the index pulses themselves.
type DecodedStreamData struct {
	FluxTransitions []uint64
	IndexPulses     []IndexTiming
}

// controlOut sends a vendor control-out request with no data phase.
func (c *Client) controlOut(request uint8, value, index uint16) error {
	_, err := c.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, request, value, index, nil)
	return err
}

// controlIn sends a vendor control-in request and discards the response
// payload. The transfer's error is returned only when wait is true; with
// wait false it is ignored and controlIn always returns nil.
func (c *Client) controlIn(request uint8, value uint16, wait bool) error {
	buf := make([]byte, 1)
	_, err := c.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, request, value, 0, buf)
	if !wait {
		return nil
	}
	return err
}

// configure selects the target drive, density line and track range ahead
// of a capture.
func (c *Client) configure(device, density, minTrack, maxTrack int) error {
	if err := c.controlOut(RequestDevice, uint16(device), 0); err != nil {
		return fmt.Errorf("failed to select device %d: %w", device, err)
	}
	if err := c.controlOut(RequestDensity, uint16(density), 0); err != nil {
		return fmt.Errorf("failed to set density %d: %w", density, err)
	}
	if err := c.controlOut(RequestMinMax, uint16(minTrack), uint16(maxTrack)); err != nil {
		return fmt.Errorf("failed to set track range %d-%d: %w", minTrack, maxTrack, err)
	}
	return nil
}

// motorOn turns on the drive motor, selects the head and seeks to cyl.
func (c *Client) motorOn(side, cyl int) error {
	if err := c.controlOut(RequestMotor, 1, 0); err != nil {
		return fmt.Errorf("failed to turn on motor: %w", err)
	}
	if err := c.controlOut(RequestSide, uint16(side), 0); err != nil {
		return fmt.Errorf("failed to select side %d: %w", side, err)
	}
	if err := c.controlOut(RequestTrack, uint16(cyl), 0); err != nil {
		return fmt.Errorf("failed to seek to track %d: %w", cyl, err)
	}
	return nil
}

// motorOff turns off the drive motor.
func (c *Client) motorOff() error {
	return c.controlOut(RequestMotor, 0, 0)
}

// streamOn tells the firmware to begin streaming flux samples on the bulk
// endpoint for the currently selected track.
func (c *Client) streamOn() error {
	return c.controlOut(RequestStream, 1, 0)
}
