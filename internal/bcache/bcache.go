// Package bcache implements the sector-granular buffer cache that
// mediates all block-device traffic. A fixed-size pool of cache lines
// is protected by a single pool-wide mutex; pinned lines are never
// evicted. Callers obtain a *Handle from Read/Write/New and must
// Unpin it on every exit path: the handle's Bytes slice is only valid
// while pinned.
package bcache

import (
	"fmt"
	"sync"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/freemap"
)

// Lines is the number of cache lines in the pool.
const Lines = 48

type line struct {
	payload   [device.SectorSize]byte
	sector    device.Sector
	timestamp uint64
	dirty     bool
	pinCount  int
}

func (l *line) empty() bool {
	return l.timestamp == 0
}

// Handle is a pinned, guarded view into one cache line: the pin is
// the handle's lifetime.
type Handle struct {
	pool  *Pool
	index int
	write bool
}

// Bytes returns the 512-byte payload of the pinned line. The slice is
// only valid until Unpin is called.
func (h *Handle) Bytes() []byte {
	return h.pool.lines[h.index].payload[:]
}

// Sector returns the sector number this handle is pinned to.
func (h *Handle) Sector() device.Sector {
	return h.pool.lines[h.index].sector
}

// Unpin releases this handle's pin. Safe to call at most once.
func (h *Handle) Unpin() {
	h.pool.unpinIndex(h.index)
}

// Pool is the fixed-size pool of cache lines sitting above a Device
// and a free-sector allocator.
type Pool struct {
	mu    sync.Mutex
	dev   device.Device
	free  *freemap.Map
	lines [Lines]line
	tick  uint64
}

// New creates and initializes a pool backed by dev, allocating fresh
// sectors through free. The tick counter starts at 1.
func New(dev device.Device, free *freemap.Map) *Pool {
	return &Pool{
		dev:  dev,
		free: free,
		tick: 1,
	}
}

// victim selects the line to evict for a fetch of sec, scanning in
// order: empty lines first, then the unpinned line with the smallest
// timestamp. Returns -1 if every line is pinned.
func (p *Pool) victim() int {
	best := -1
	for i := range p.lines {
		l := &p.lines[i]
		if l.pinCount > 0 {
			continue
		}
		if l.empty() {
			return i
		}
		if best == -1 || l.timestamp < p.lines[best].timestamp {
			best = i
		}
	}
	return best
}

func (p *Pool) find(sec device.Sector) int {
	for i := range p.lines {
		if !p.lines[i].empty() && p.lines[i].sector == sec {
			return i
		}
	}
	return -1
}

// writeBack flushes a dirty line to disk and clears its dirty bit.
// Caller holds p.mu.
func (p *Pool) writeBack(i int) error {
	l := &p.lines[i]
	if !l.dirty {
		return nil
	}
	if err := p.dev.WriteSector(l.sector, l.payload[:]); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// fetch brings sec into the pool for a read (forWrite=false) or a
// write (forWrite=true), pins it, and returns its line index. Caller
// holds p.mu. readFromDisk controls whether the sector's current
// contents are loaded (false only for New, which is write-only and
// starts from an uninitialized line).
func (p *Pool) fetch(sec device.Sector, forWrite bool, readFromDisk bool) (int, error) {
	p.tick++
	if i := p.find(sec); i >= 0 {
		l := &p.lines[i]
		l.timestamp = p.tick
		if forWrite {
			l.dirty = true
		}
		l.pinCount++
		return i, nil
	}

	i := p.victim()
	if i < 0 {
		return -1, fmt.Errorf("bcache: buffer full, every line pinned")
	}
	l := &p.lines[i]
	if err := p.writeBack(i); err != nil {
		return -1, err
	}
	l.sector = sec
	l.timestamp = p.tick
	l.dirty = forWrite
	l.pinCount = 1
	if readFromDisk {
		if err := p.dev.ReadSector(sec, l.payload[:]); err != nil {
			l.timestamp = 0
			l.pinCount = 0
			return -1, err
		}
	}
	return i, nil
}

// Read brings sec into the cache, pins it, and returns a read-only
// handle. Fatal (panics) if every line is pinned — the caller cannot
// make progress and must not silently drop data.
func (p *Pool) Read(sec device.Sector) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.fetch(sec, false, true)
	if err != nil {
		panic(err)
	}
	return &Handle{pool: p, index: i}
}

// Write brings sec into the cache, marks it dirty, pins it, and
// returns a mutable handle. Fatal (panics) on buffer exhaustion, same
// as Read.
func (p *Pool) Write(sec device.Sector) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, err := p.fetch(sec, true, true)
	if err != nil {
		panic(err)
	}
	return &Handle{pool: p, index: i, write: true}
}

// New allocates a fresh sector from the free map and obtains a cache
// line for it, pinned for writing and left uninitialized. Returns
// (nil, device.InvalidSector, false) if the free map is exhausted or
// every line is pinned —
// this is the one case the pool signals with a sentinel rather than a
// panic, so the caller can propagate an out-of-space error.
func (p *Pool) New() (*Handle, device.Sector, bool) {
	sec, ok := p.free.Allocate(1)
	if !ok {
		return nil, device.InvalidSector, false
	}

	p.mu.Lock()
	i, err := p.fetch(sec, true, false)
	p.mu.Unlock()
	if err != nil {
		p.free.Release(sec, 1)
		return nil, device.InvalidSector, false
	}
	return &Handle{pool: p, index: i, write: true}, sec, true
}

func (p *Pool) unpinIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	l := &p.lines[i]
	if l.pinCount == 0 {
		panic("bcache: unpin of a line with zero pins")
	}
	l.pinCount--
}

// Pin bumps the pin count of a line already holding sec. Returns
// false if sec is not resident.
func (p *Pool) Pin(sec device.Sector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	i := p.find(sec)
	if i < 0 {
		return false
	}
	p.lines[i].pinCount++
	return true
}

// Unpin decrements the pin count of a line holding sec. Returns false
// if sec is not resident.
func (p *Pool) Unpin(sec device.Sector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	i := p.find(sec)
	if i < 0 {
		return false
	}
	if p.lines[i].pinCount == 0 {
		panic("bcache: unpin of a line with zero pins")
	}
	p.lines[i].pinCount--
	return true
}

// PinByPointer and UnpinByPointer are the handle-based variants of Pin
// and Unpin: they validate that h was issued by this pool before
// touching its pin count.
func (p *Pool) PinByPointer(h *Handle) bool {
	if h == nil || h.pool != p {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	p.lines[h.index].pinCount++
	return true
}

func (p *Pool) UnpinByPointer(h *Handle) bool {
	if h == nil || h.pool != p {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	if p.lines[h.index].pinCount == 0 {
		panic("bcache: unpin of a line with zero pins")
	}
	p.lines[h.index].pinCount--
	return true
}

// FreeLine forcibly drops h's line without writing it back. The
// caller must hold exactly one pin on it: FreeLine asserts the pin
// count is exactly 1, clears it, and empties the line. It panics if
// the line is pinned by anyone else.
func (p *Pool) FreeLine(h *Handle) bool {
	if h == nil || h.pool != p {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++
	l := &p.lines[h.index]
	if l.pinCount != 1 {
		panic(fmt.Sprintf("bcache: FreeLine with pin count %d, want 1", l.pinCount))
	}
	l.pinCount = 0
	l.timestamp = 0
	l.dirty = false
	return true
}

// Flush asks the free-sector allocator to persist first, then writes
// back every dirty line and clears its dirty flag. The free map is
// always flushed before data lines.
func (p *Pool) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick++

	if err := p.free.Flush(p.dev); err != nil {
		return err
	}
	for i := range p.lines {
		if err := p.writeBack(i); err != nil {
			return err
		}
	}
	return nil
}
