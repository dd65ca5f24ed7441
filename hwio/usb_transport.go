package hwio

import (
	"fmt"

	"github.com/google/gousb"
)

// usbRequest is the single vendor control request this transport uses
// to carry a framed Controller command, grounded on
// kryoflux.Client.controlOut/controlIn's vendor control-transfer
// pattern (kryoflux/protocol.go): one control-out with the command as
// its data stage, one control-in to retrieve the response.
const usbRequest = 0x40

// USBTransport frames Controller commands as vendor control transfers
// on a raw USB device, grounded on kryoflux/protocol.go's
// controlOut/controlIn plus supercardpro's length-prefixed response
// convention (the USB control pipe has no implicit framing, so the
// first response byte is the payload length).
type USBTransport struct {
	dev *gousb.Device
}

// NewUSBTransport wraps an already-opened gousb.Device.
func NewUSBTransport(dev *gousb.Device) *USBTransport {
	return &USBTransport{dev: dev}
}

// Command implements Transport.
func (u *USBTransport) Command(cmd []byte) ([]byte, error) {
	if _, err := u.dev.Control(gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice, usbRequest, 0, 0, cmd); err != nil {
		return nil, fmt.Errorf("control-out command: %w", err)
	}

	header := make([]byte, 1)
	if _, err := u.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, usbRequest, 0, 0, header); err != nil {
		return nil, fmt.Errorf("control-in response length: %w", err)
	}
	respLen := int(header[0])
	if respLen == 0 {
		return nil, nil
	}
	resp := make([]byte, respLen)
	if _, err := u.dev.Control(gousb.ControlIn|gousb.ControlVendor|gousb.ControlDevice, usbRequest, 0, 1, resp); err != nil {
		return nil, fmt.Errorf("control-in response payload: %w", err)
	}
	return resp, nil
}
