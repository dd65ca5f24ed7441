package kryoflux

import (
	"fmt"

	"github.com/discflux/floppy/adapter"
	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

const (
	VendorID  = 0x03eb
	ProductID = 0x6124
)

func init() {
	adapter.RegisterUSBAdapter(NewClient)
}

// bulkInEndpoint is the KryoFlux firmware's stream endpoint.
const bulkInEndpoint = 1

// Client talks to a KryoFlux board over raw USB bulk and control transfers,
// rather than through a virtual serial port like the other adapters.
type Client struct {
	usbCtx       *gousb.Context
	dev          *gousb.Device
	intf         *gousb.Interface
	intfDone     func()
	bulkIn       *gousb.InEndpoint
	serialNumber string
}

// NewClient opens the first KryoFlux board found on the USB bus.
// portDetails is unused: KryoFlux is registered via RegisterUSBAdapter
// and discovered directly by VID/PID rather than through the serial port
// enumerator used by the other adapters.
func NewClient(_ *enumerator.PortDetails) (adapter.FloppyAdapter, error) {
	usbCtx := gousb.NewContext()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		usbCtx.Close()
		return nil, fmt.Errorf("failed to open KryoFlux USB device: %w", err)
	}
	if dev == nil {
		usbCtx.Close()
		return nil, fmt.Errorf("no KryoFlux device found")
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to set auto detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to claim KryoFlux interface: %w", err)
	}

	bulkIn, err := intf.InEndpoint(bulkInEndpoint)
	if err != nil {
		done()
		dev.Close()
		usbCtx.Close()
		return nil, fmt.Errorf("failed to open bulk-in endpoint: %w", err)
	}

	serialNumber, _ := dev.SerialNumber()

	return &Client{
		usbCtx:       usbCtx,
		dev:          dev,
		intf:         intf,
		intfDone:     done,
		bulkIn:       bulkIn,
		serialNumber: serialNumber,
	}, nil
}

// PrintStatus prints KryoFlux status information to stdout
func (c *Client) PrintStatus() {
	fmt.Printf("KryoFlux Adapter\n")
	fmt.Printf("Serial Number: %s\n", c.serialNumber)
	fmt.Printf("Status: Connected\n")
}

// Close releases the USB interface and closes the device.
func (c *Client) Close() error {
	if c.intfDone != nil {
		c.intfDone()
	}
	var err error
	if c.dev != nil {
		err = c.dev.Close()
	}
	if c.usbCtx != nil {
		c.usbCtx.Close()
	}
	return err
}
