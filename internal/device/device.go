// Package device defines the fixed-size-sector block device contract
// the rest of the filesystem core is built on, plus two concrete
// backings: an in-memory device for tests and an mmap-backed file
// device for real use.
package device

import "fmt"

// SectorSize is the fixed payload size of every sector on the device.
const SectorSize = 512

// Sector addresses a 512-byte unit on the device. InvalidSector is the
// reserved sentinel meaning "no sector here".
type Sector int64

// InvalidSector is the sentinel stored in an unallocated address slot.
const InvalidSector Sector = -1

// Valid reports whether s refers to an actual sector.
func (s Sector) Valid() bool {
	return s >= 0
}

// Device reads and writes whole sectors. Implementations must
// transfer exactly SectorSize bytes per call.
type Device interface {
	// ReadSector copies the contents of sector sec into dst, which
	// must be at least SectorSize bytes long.
	ReadSector(sec Sector, dst []byte) error
	// WriteSector copies SectorSize bytes from src into sector sec.
	WriteSector(sec Sector, src []byte) error
	// NumSectors returns the total number of addressable sectors.
	NumSectors() Sector
	// Close releases any resources backing the device.
	Close() error
}

// ErrOutOfRange is returned when a sector number lies outside the
// device's extent.
type ErrOutOfRange struct {
	Sector Sector
	Max    Sector
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("sector %d out of range (max %d)", e.Sector, e.Max)
}
