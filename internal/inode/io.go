package inode

import (
	"github.com/sectorfs/sectorfs/internal/device"
)

// sectorOffset returns the byte offset within a single sector.
func sectorOffset(offset int64) int64 {
	return offset % device.SectorSize
}

// direct returns (and, if forWrite, lazily allocates) the data sector
// covering a direct-region offset. It pins the inode sector only for
// the duration of the read or the single-slot update, even when only
// one field is being touched.
func (in *Inode) direct(idx int, forWrite bool) device.Sector {
	pool := in.table.pool

	h := pool.Read(in.sector)
	d, err := decodeOnDisk(h.Bytes())
	sec := device.Sector(0)
	if err == nil {
		sec = d.addr(idx)
	}
	h.Unpin()
	if err != nil {
		panic(err)
	}

	if sec.Valid() || !forWrite {
		return sec
	}

	newSec, ok := in.table.free.Allocate(1)
	if !ok {
		return device.InvalidSector
	}

	wh := pool.Write(in.sector)
	wd, err := decodeOnDisk(wh.Bytes())
	if err != nil {
		wh.Unpin()
		panic(err)
	}
	wd.setAddr(idx, newSec)
	copy(wh.Bytes(), wd.encode())
	wh.Unpin()

	zero := make([]byte, device.SectorSize)
	zh := pool.Write(newSec)
	copy(zh.Bytes(), zero)
	zh.Unpin()

	return newSec
}

// ensureIndirectBlock returns (and, if forWrite, lazily allocates) the
// indirect block recorded in the inode sector at addrs[slot]: NumDirect
// for the single-indirect block, or NumDirect+1 for the
// doubly-indirect block. A freshly allocated block has every entry set
// to the invalid sentinel.
func (in *Inode) ensureIndirectBlock(slot int, forWrite bool) device.Sector {
	pool := in.table.pool

	h := pool.Read(in.sector)
	d, err := decodeOnDisk(h.Bytes())
	blockSec := device.Sector(0)
	if err == nil {
		blockSec = d.addr(slot)
	}
	h.Unpin()
	if err != nil {
		panic(err)
	}

	if blockSec.Valid() || !forWrite {
		return blockSec
	}

	newSec, ok := in.table.free.Allocate(1)
	if !ok {
		return device.InvalidSector
	}

	wh := pool.Write(in.sector)
	wd, werr := decodeOnDisk(wh.Bytes())
	if werr != nil {
		wh.Unpin()
		panic(werr)
	}
	wd.setAddr(slot, newSec)
	copy(wh.Bytes(), wd.encode())
	wh.Unpin()

	zh := pool.Write(newSec)
	copy(zh.Bytes(), newIndirectBlock().encode())
	zh.Unpin()

	return newSec
}

// indirectEntry reads (and, if forWrite, lazily allocates) entry idx
// of the indirect block at blockSec, pinning the block only for the
// duration of the single-entry access.
func (in *Inode) indirectEntry(blockSec device.Sector, idx int, forWrite bool) device.Sector {
	pool := in.table.pool

	h := pool.Read(blockSec)
	ind := decodeIndirect(h.Bytes())
	sec := ind.addr(idx)
	h.Unpin()

	if sec.Valid() || !forWrite {
		return sec
	}

	newSec, ok := in.table.free.Allocate(1)
	if !ok {
		return device.InvalidSector
	}

	wh := pool.Write(blockSec)
	wind := decodeIndirect(wh.Bytes())
	wind.setAddr(idx, newSec)
	copy(wh.Bytes(), wind.encode())
	wh.Unpin()

	zero := make([]byte, device.SectorSize)
	zh := pool.Write(newSec)
	copy(zh.Bytes(), zero)
	zh.Unpin()

	return newSec
}

// resolve translates offset into a data sector. It returns
// device.InvalidSector (with no error) when offset lies at or beyond
// MaxFile, or when the slot is unallocated and forWrite is false (the
// caller then yields zeros: the file is sparse).
func (in *Inode) resolve(offset int64, forWrite bool) device.Sector {
	if offset >= MaxFile {
		return device.InvalidSector
	}

	if offset < DirectSize {
		return in.direct(int(offset/device.SectorSize), forWrite)
	}
	offset -= DirectSize

	if offset < SingleIndirSize {
		block := in.ensureIndirectBlock(NumDirect, forWrite)
		if !block.Valid() {
			return device.InvalidSector
		}
		return in.indirectEntry(block, int(offset/device.SectorSize), forWrite)
	}
	offset -= SingleIndirSize

	outer := in.ensureIndirectBlock(NumDirect+1, forWrite)
	if !outer.Valid() {
		return device.InvalidSector
	}
	outerIdx := int(offset / SingleIndirSize)
	innerIdx := int((offset % SingleIndirSize) / device.SectorSize)

	inner := in.indirectBlockChild(outer, outerIdx, forWrite)
	if !inner.Valid() {
		return device.InvalidSector
	}
	return in.indirectEntry(inner, innerIdx, forWrite)
}

// indirectBlockChild fetches (and, if forWrite, lazily allocates) the
// single-indirect block referenced by entry outerIdx of the
// doubly-indirect block at outer.
func (in *Inode) indirectBlockChild(outer device.Sector, outerIdx int, forWrite bool) device.Sector {
	pool := in.table.pool

	h := pool.Read(outer)
	ind := decodeIndirect(h.Bytes())
	child := ind.addr(outerIdx)
	h.Unpin()

	if child.Valid() || !forWrite {
		return child
	}

	newSec, ok := in.table.free.Allocate(1)
	if !ok {
		return device.InvalidSector
	}

	wh := pool.Write(outer)
	wind := decodeIndirect(wh.Bytes())
	wind.setAddr(outerIdx, newSec)
	copy(wh.Bytes(), wind.encode())
	wh.Unpin()

	zh := pool.Write(newSec)
	copy(zh.Bytes(), newIndirectBlock().encode())
	zh.Unpin()

	return newSec
}

// min3 returns the smallest of three int64s.
func min3(a, b, c int64) int64 {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// ReadAt reads up to len(dst) bytes starting at offset, returning the
// number of bytes actually transferred. Reads never error: they yield
// fewer bytes at end-of-file, and zeros across any sparse span.
func (in *Inode) ReadAt(dst []byte, offset int64) int64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	length := int64(in.readOnDisk().Size)
	var total int64
	remaining := int64(len(dst))

	for remaining > 0 {
		if offset >= length {
			break
		}
		step := min3(remaining, device.SectorSize-sectorOffset(offset), length-offset)
		if step <= 0 {
			break
		}

		sec := in.resolve(offset, false)
		dstSlice := dst[total : total+step]
		if !sec.Valid() {
			for i := range dstSlice {
				dstSlice[i] = 0
			}
		} else {
			h := in.table.pool.Read(sec)
			copy(dstSlice, h.Bytes()[sectorOffset(offset):sectorOffset(offset)+step])
			h.Unpin()
		}

		offset += step
		total += step
		remaining -= step
	}
	return total
}

// WriteAt writes up to len(src) bytes starting at offset, returning
// the number of bytes actually transferred. Returns 0 with no error if
// a writer has called DenyWrite on this inode. Writing past the
// current end of file grows it, lazily allocating through the single-
// and doubly-indirect regions as needed.
func (in *Inode) WriteAt(src []byte, offset int64) int64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.denyWriteCount > 0 {
		return 0
	}

	var total int64
	remaining := int64(len(src))

	for remaining > 0 {
		step := remaining
		if space := device.SectorSize - sectorOffset(offset); space < step {
			step = space
		}
		if step <= 0 {
			break
		}

		sec := in.resolve(offset, true)
		if !sec.Valid() {
			break
		}

		h := in.table.pool.Write(sec)
		copy(h.Bytes()[sectorOffset(offset):sectorOffset(offset)+step], src[total:total+step])
		h.Unpin()

		offset += step
		total += step
		remaining -= step
	}

	if total > 0 {
		in.growTo(offset)
	}
	return total
}

// growTo updates the on-disk size field if offset now exceeds it.
func (in *Inode) growTo(offset int64) {
	pool := in.table.pool
	h := pool.Write(in.sector)
	d, err := decodeOnDisk(h.Bytes())
	if err != nil {
		h.Unpin()
		panic(err)
	}
	if int64(d.Size) < offset {
		d.Size = int32(offset)
		copy(h.Bytes(), d.encode())
	}
	h.Unpin()
}
