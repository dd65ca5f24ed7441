package adapter

import (
	"github.com/discflux/floppy/hfe"
	"go.bug.st/serial/enumerator"
)

// FloppyAdapter defines the interface for floppy disk adapters
type FloppyAdapter interface {
	// PrintStatus prints adapter status information to stdout
	PrintStatus()
	// Read reads numberOfTracks cylinders from the floppy disk and
	// returns the decoded image.
	Read(numberOfTracks int) (*hfe.Disk, error)
	// Write writes disk to the floppy disk, up to numberOfTracks cylinders.
	Write(disk *hfe.Disk, numberOfTracks int) error
	// Erase overwrites numberOfTracks cylinders with a DC erase pattern.
	Erase(numberOfTracks int) error
}

// NewClientFunc is a function type that creates a new adapter client
type NewClientFunc func(portDetails *enumerator.PortDetails) (FloppyAdapter, error)

