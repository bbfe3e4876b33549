// Package inode implements the multi-level indexed file-block layer:
// on-disk inodes with direct/single-indirect/doubly-indirect
// addressing, lazy sparse allocation, and a process-wide open-inode
// table that shares one in-memory handle per on-disk sector across all
// openers.
package inode

import (
	"sync"

	"github.com/sectorfs/sectorfs/internal/bcache"
	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/freemap"
)

// Table is the open-inode table: a process-wide (here, per-mount)
// ordered sequence of in-memory inodes, visited linearly, enforcing at
// most one in-memory inode per on-disk sector.
//
// Lock ordering: Table.mu is acquired before any Inode.mu. Close holds
// both together across the entire remove-from-table-and-deallocate
// sequence, so a concurrent Open for the same sector can never race a
// fresh in-memory inode into existence against an in-flight
// deallocation.
type Table struct {
	mu     sync.Mutex
	pool   *bcache.Pool
	free   *freemap.Map
	inodes []*Inode
}

// NewTable creates an empty open-inode table bound to pool and free.
func NewTable(pool *bcache.Pool, free *freemap.Map) *Table {
	return &Table{pool: pool, free: free}
}

// Inode is the in-memory, reference-counted handle to an on-disk
// inode. It does not cache a copy of the on-disk image; the
// authoritative copy lives in the buffer cache and is re-read on each
// use.
type Inode struct {
	table          *Table
	sector         device.Sector
	mu             sync.Mutex
	openCount      int
	removed        bool
	denyWriteCount int
}

// Create writes a fresh on-disk inode image to sector (already
// reserved by the caller) with every address slot set to the invalid
// sentinel, link count 1, and the magic number set.
func (t *Table) Create(sector device.Sector, size int64, typ Type) error {
	h := t.pool.Write(sector)
	defer h.Unpin()
	copy(h.Bytes(), newOnDisk(typ, size).encode())
	return nil
}

// Open returns the shared in-memory handle for sector, incrementing
// its open count, creating a new one if none exists yet.
func (t *Table) Open(sector device.Sector) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, in := range t.inodes {
		if in.sector == sector {
			in.mu.Lock()
			in.openCount++
			in.mu.Unlock()
			return in
		}
	}

	in := &Inode{table: t, sector: sector, openCount: 1}
	t.inodes = append(t.inodes, in)
	return in
}

// Reopen bumps the open count of an already-open inode and returns it.
func (in *Inode) Reopen() *Inode {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.openCount++
	return in
}

// Inumber returns the on-disk sector number of in.
func (in *Inode) Inumber() device.Sector {
	return in.sector
}

func (in *Inode) readOnDisk() *onDisk {
	h := in.table.pool.Read(in.sector)
	defer h.Unpin()
	d, err := decodeOnDisk(h.Bytes())
	if err != nil {
		panic(err)
	}
	return d
}

// Type returns the on-disk type of in.
func (in *Inode) Type() Type {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.readOnDisk().Type
}

// Length returns the current size, in bytes, of in's on-disk image.
func (in *Inode) Length() int64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return int64(in.readOnDisk().Size)
}

// Remove marks in for deletion; the deletion itself happens when the
// last opener closes it.
func (in *Inode) Remove() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.removed = true
}

// DenyWrite disables writes to in for the duration of one opener's
// interest (e.g. while the file is being executed). Pairs with
// AllowWrite.
func (in *Inode) DenyWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.denyWriteCount++
	if in.denyWriteCount > in.openCount {
		panic("inode: deny_write_cnt exceeds open_cnt")
	}
}

// AllowWrite re-enables writes previously disabled by DenyWrite.
func (in *Inode) AllowWrite() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.denyWriteCount == 0 {
		panic("inode: allow_write without matching deny_write")
	}
	in.denyWriteCount--
}

// Close decrements in's open count. On reaching zero, it removes in
// from the table and, if in was also marked removed, releases every
// sector it owns to the free map, all while still holding both locks.
func (t *Table) Close(in *Inode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	in.mu.Lock()
	defer in.mu.Unlock()

	in.openCount--
	if in.openCount > 0 {
		return nil
	}

	for i, candidate := range t.inodes {
		if candidate == in {
			t.inodes = append(t.inodes[:i], t.inodes[i+1:]...)
			break
		}
	}

	if in.removed {
		return t.deallocate(in.sector)
	}
	return nil
}
