package hwio

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialTransport frames Controller commands over a virtual serial
// port, grounded on greaseweazle.Client.doCommand's length-prefixed
// command / status-byte response pattern (greaseweazle/greaseweazle.go):
// a one-byte length, the command bytes, then a one-byte status and a
// one-byte response length followed by that many payload bytes.
type SerialTransport struct {
	port serial.Port
}

// NewSerialTransport wraps an already-open serial.Port.
func NewSerialTransport(port serial.Port) *SerialTransport {
	return &SerialTransport{port: port}
}

// Command implements Transport.
func (s *SerialTransport) Command(cmd []byte) ([]byte, error) {
	if len(cmd) > 0xff {
		return nil, fmt.Errorf("command too long (%d bytes)", len(cmd))
	}
	frame := append([]byte{byte(len(cmd))}, cmd...)
	if _, err := s.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write command: %w", err)
	}

	header := make([]byte, 2)
	if _, err := io.ReadFull(s.port, header); err != nil {
		return nil, fmt.Errorf("read response header: %w", err)
	}
	status, respLen := header[0], header[1]
	resp := make([]byte, respLen)
	if respLen > 0 {
		if _, err := io.ReadFull(s.port, resp); err != nil {
			return nil, fmt.Errorf("read response payload: %w", err)
		}
	}
	if status != 0 {
		return nil, fmt.Errorf("controller returned status 0x%02x", status)
	}
	return resp, nil
}
