// Package namespace implements the filesystem namespace: directories,
// path resolution (absolute and relative to a per-process working
// directory), and create/remove/chdir/open.
package namespace

import (
	"bytes"
	"encoding/binary"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fserr"
	"github.com/sectorfs/sectorfs/internal/inode"
)

// NameMax is the maximum number of bytes in a single path component.
const NameMax = 14

// entrySize is the on-disk size of one directory entry:
// inUse(1) + name(NameMax+1, NUL-padded) + sector(4).
const entrySize = 1 + (NameMax + 1) + 4

type dirEntry struct {
	InUse  uint8
	Name   [NameMax + 1]byte
	Sector int32
}

func decodeEntry(buf []byte) dirEntry {
	var e dirEntry
	_ = binary.Read(bytes.NewReader(buf), binary.LittleEndian, &e)
	return e
}

func (e dirEntry) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(entrySize)
	_ = binary.Write(&buf, binary.LittleEndian, &e)
	return buf.Bytes()
}

func (e dirEntry) name() string {
	i := bytes.IndexByte(e.Name[:], 0)
	if i < 0 {
		i = len(e.Name)
	}
	return string(e.Name[:i])
}

func makeEntry(name string, sector device.Sector) dirEntry {
	var e dirEntry
	e.InUse = 1
	copy(e.Name[:], name)
	e.Sector = int32(sector)
	return e
}

// Dir is an opened directory: a regular inode of type TypeDir whose
// content is an ordered sequence of fixed-size entries.
type Dir struct {
	Inode *inode.Inode
}

// Open wraps in as a Dir. Callers are responsible for verifying in's
// type is TypeDir beforehand (Walk/Leave do this).
func Open(in *inode.Inode) *Dir {
	return &Dir{Inode: in}
}

func (d *Dir) count() int64 {
	return d.Inode.Length() / entrySize
}

func (d *Dir) readEntry(i int64) dirEntry {
	buf := make([]byte, entrySize)
	d.Inode.ReadAt(buf, i*entrySize)
	return decodeEntry(buf)
}

func (d *Dir) writeEntry(i int64, e dirEntry) {
	d.Inode.WriteAt(e.encode(), i*entrySize)
}

// Lookup searches for name among d's in-use entries.
func (d *Dir) Lookup(name string) (device.Sector, bool) {
	n := d.count()
	for i := int64(0); i < n; i++ {
		e := d.readEntry(i)
		if e.InUse != 0 && e.name() == name {
			return device.Sector(e.Sector), true
		}
	}
	return device.InvalidSector, false
}

// Add appends a new entry mapping name to sector. It fails if name
// already exists or exceeds NameMax.
func (d *Dir) Add(name string, sector device.Sector) error {
	if len(name) > NameMax {
		return fserr.ErrNameTooLong
	}
	if _, ok := d.Lookup(name); ok {
		return fserr.ErrExists
	}

	n := d.count()
	for i := int64(0); i < n; i++ {
		e := d.readEntry(i)
		if e.InUse == 0 {
			d.writeEntry(i, makeEntry(name, sector))
			return nil
		}
	}
	d.writeEntry(n, makeEntry(name, sector))
	return nil
}

// Remove clears the entry named name. Returns false if it did not exist.
func (d *Dir) Remove(name string) bool {
	n := d.count()
	for i := int64(0); i < n; i++ {
		e := d.readEntry(i)
		if e.InUse != 0 && e.name() == name {
			e.InUse = 0
			d.writeEntry(i, e)
			return true
		}
	}
	return false
}

// Entry is one named child of a directory, as returned by Entries.
type Entry struct {
	Name   string
	Sector device.Sector
}

// Entries lists every in-use entry of d, in on-disk order.
func (d *Dir) Entries() []Entry {
	n := d.count()
	out := make([]Entry, 0, n)
	for i := int64(0); i < n; i++ {
		e := d.readEntry(i)
		if e.InUse == 0 {
			continue
		}
		out = append(out, Entry{Name: e.name(), Sector: device.Sector(e.Sector)})
	}
	return out
}

// Empty reports whether d contains only "." and "..".
func (d *Dir) Empty() bool {
	n := d.count()
	for i := int64(0); i < n; i++ {
		e := d.readEntry(i)
		if e.InUse == 0 {
			continue
		}
		name := e.name()
		if name != "." && name != ".." {
			return false
		}
	}
	return true
}
