// Package freemap implements the free-sector bitmap allocator:
// Allocate, Release, and Flush, used by the inode layer and by the
// buffer cache's New helper.
//
// The bitmap itself lives in sector 0 so it is persistent across
// mounts; Allocate/Release are served from an in-memory segment list
// (see freelist.go) for speed and flushed back into the bitmap on
// Flush.
package freemap

import (
	"fmt"
	"sync"

	"github.com/sectorfs/sectorfs/internal/device"
)

// BitmapSector is the reserved sector holding the free-sector bitmap.
const BitmapSector device.Sector = 0

// RootDirSector is the reserved sector holding the root directory's
// on-disk inode.
const RootDirSector device.Sector = 1

// MaxSectors is the largest device size the bitmap can address: one
// bit per sector, packed into a single BitmapSector.
const MaxSectors = device.SectorSize * 8

// Map is the in-memory, mutex-guarded view of the on-disk free-sector
// bitmap.
type Map struct {
	mu    sync.Mutex
	free  *freeList
	total int64
	dirty bool
}

// Create builds a fresh free map for a device of n sectors, with
// BitmapSector and RootDirSector pre-reserved, and marks it dirty so
// the first Flush writes it out. Panics if n exceeds MaxSectors: the
// bitmap has nowhere else to put the extra bits.
func Create(n device.Sector) *Map {
	if n > MaxSectors {
		panic(fmt.Sprintf("freemap: %d sectors exceeds MaxSectors (%d)", n, MaxSectors))
	}
	m := &Map{
		free:  newFreeList(),
		total: int64(n),
		dirty: true,
	}
	m.free.release(0, int64(n))
	m.free.markUsed(int64(BitmapSector), 1)
	m.free.markUsed(int64(RootDirSector), 1)
	return m
}

// Load reconstructs the free map by reading the bitmap out of
// BitmapSector on dev. Returns an error if dev has more sectors than
// the bitmap can address.
func Load(dev device.Device) (*Map, error) {
	n := dev.NumSectors()
	if n > MaxSectors {
		return nil, fmt.Errorf("freemap: device has %d sectors, exceeds MaxSectors (%d)", n, MaxSectors)
	}
	m := &Map{
		free:  newFreeList(),
		total: int64(n),
	}

	buf := make([]byte, device.SectorSize)
	if err := dev.ReadSector(BitmapSector, buf); err != nil {
		return nil, err
	}

	m.free.release(0, int64(n))
	bit := 0
	for bit < int(n) && bit < device.SectorSize*8 {
		byteIdx := bit / 8
		mask := byte(1) << uint(bit%8)
		if buf[byteIdx]&mask != 0 {
			m.free.markUsed(int64(bit), 1)
		}
		bit++
	}
	return m, nil
}

// Allocate reserves count contiguous sectors and returns the first
// one. Returns (device.InvalidSector, false) if no such run exists.
func (m *Map) Allocate(count int) (device.Sector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, ok := m.free.allocContiguous(int64(count))
	if !ok {
		return device.InvalidSector, false
	}
	m.dirty = true
	return device.Sector(start), true
}

// Release returns count sectors starting at first to the free pool.
func (m *Map) Release(first device.Sector, count int) {
	if count == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.free.release(int64(first), int64(count))
	m.dirty = true
}

// Flush serializes the bitmap back into BitmapSector if it has
// changed since the last flush.
func (m *Map) Flush(dev device.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	buf := make([]byte, device.SectorSize)
	used := m.usedBitmap()
	for i, v := range used {
		if v {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	if err := dev.WriteSector(BitmapSector, buf); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// usedBitmap expands the free-segment list into a dense used/free
// slice for serialization. Caller holds m.mu.
func (m *Map) usedBitmap() []bool {
	used := make([]bool, m.total)
	for i := range used {
		used[i] = true
	}
	for _, seg := range m.free.segments {
		for i := seg.start; i <= seg.end; i++ {
			used[i] = false
		}
	}
	return used
}

// Free reports the number of currently-unallocated sectors.
func (m *Map) Free() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.free.count()
}
