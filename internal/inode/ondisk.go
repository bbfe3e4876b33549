package inode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fserr"
)

// Type distinguishes the two kinds of inode.
type Type uint16

const (
	TypeFile Type = 1
	TypeDir  Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "directory"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

// Magic identifies a sector as holding a valid on-disk inode.
const Magic uint32 = 0x53454346

// Address-space layout constants for the three addressing regions:
// direct, single-indirect, and doubly-indirect.
const (
	NumDirect       = 123
	NumAddrs        = 125
	IndirectEntries = 128

	DirectSize      = int64(NumDirect) * device.SectorSize
	SingleIndirSize = int64(IndirectEntries) * device.SectorSize
	DoublyIndirSize = int64(IndirectEntries) * SingleIndirSize
	MaxFile         = DirectSize + SingleIndirSize + DoublyIndirSize
)

// invalidAddr is the on-disk sentinel for an unallocated address slot.
const invalidAddr int32 = -1

// onDisk is the exactly-one-sector inode image: type, link count,
// size, the 125-entry address array, and the magic number. Field
// widths are chosen so the struct serializes to precisely
// device.SectorSize bytes: 2 + 2 + 4 + 125*4 + 4 = 512.
type onDisk struct {
	Type      Type
	LinkCount uint16
	Size      int32
	Addrs     [NumAddrs]int32
	Magic     uint32
}

func newOnDisk(typ Type, size int64) *onDisk {
	d := &onDisk{
		Type:      typ,
		LinkCount: 1,
		Size:      int32(size),
		Magic:     Magic,
	}
	for i := range d.Addrs {
		d.Addrs[i] = invalidAddr
	}
	return d
}

func decodeOnDisk(buf []byte) (*onDisk, error) {
	var d onDisk
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &d); err != nil {
		return nil, err
	}
	if d.Magic != Magic {
		return nil, fserr.ErrBadMagic
	}
	return &d, nil
}

func (d *onDisk) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(device.SectorSize)
	if err := binary.Write(&buf, binary.LittleEndian, d); err != nil {
		panic(err)
	}
	out := make([]byte, device.SectorSize)
	copy(out, buf.Bytes())
	return out
}

func (d *onDisk) addr(i int) device.Sector {
	return device.Sector(d.Addrs[i])
}

func (d *onDisk) setAddr(i int, sec device.Sector) {
	d.Addrs[i] = int32(sec)
}

// indirectBlock is a sector whose IndirectEntries entries are sector
// addresses.
type indirectBlock struct {
	Addrs [IndirectEntries]int32
}

func newIndirectBlock() *indirectBlock {
	var b indirectBlock
	for i := range b.Addrs {
		b.Addrs[i] = invalidAddr
	}
	return &b
}

func decodeIndirect(buf []byte) *indirectBlock {
	var b indirectBlock
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &b); err != nil {
		panic(err)
	}
	return &b
}

func (b *indirectBlock) encode() []byte {
	var buf bytes.Buffer
	buf.Grow(device.SectorSize)
	if err := binary.Write(&buf, binary.LittleEndian, b); err != nil {
		panic(err)
	}
	out := make([]byte, device.SectorSize)
	copy(out, buf.Bytes())
	return out
}

func (b *indirectBlock) addr(i int) device.Sector {
	return device.Sector(b.Addrs[i])
}

func (b *indirectBlock) setAddr(i int, sec device.Sector) {
	b.Addrs[i] = int32(sec)
}
