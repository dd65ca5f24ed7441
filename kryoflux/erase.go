package kryoflux

import "fmt"

// Erase is not supported for KryoFlux adapter: the board is a flux capture
// device and has no flux write/erase path.
func (c *Client) Erase(numberOfTracks int) error {
	return fmt.Errorf("Erase is not supported for KryoFlux adapter")
}
