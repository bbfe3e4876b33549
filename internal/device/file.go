package device

import (
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// FileDevice is a Device backed by a single image file, memory-mapped
// for the lifetime of the device.
type FileDevice struct {
	file *os.File
	data mmap.MMap
	n    Sector
}

// OpenFileDevice maps an existing image file, sizing the device from
// the file's current length.
func OpenFileDevice(path string) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	return mapFileDevice(file, int(info.Size()/SectorSize))
}

// CreateFileDevice creates (or truncates) an image file sized for n
// sectors and maps it.
func CreateFileDevice(path string, n int) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(int64(n) * SectorSize); err != nil {
		file.Close()
		return nil, err
	}
	return mapFileDevice(file, n)
}

func mapFileDevice(file *os.File, n int) (*FileDevice, error) {
	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap device: %w", err)
	}
	if len(data) < n*SectorSize {
		data.Unmap()
		file.Close()
		return nil, fmt.Errorf("image file too small for %d sectors", n)
	}
	return &FileDevice{
		file: file,
		data: data,
		n:    Sector(n),
	}, nil
}

func (d *FileDevice) bounds(sec Sector) ([]byte, error) {
	if sec < 0 || sec >= d.n {
		return nil, &ErrOutOfRange{Sector: sec, Max: d.n - 1}
	}
	off := int64(sec) * SectorSize
	return d.data[off : off+SectorSize], nil
}

func (d *FileDevice) ReadSector(sec Sector, dst []byte) error {
	src, err := d.bounds(sec)
	if err != nil {
		return err
	}
	copy(dst[:SectorSize], src)
	return nil
}

func (d *FileDevice) WriteSector(sec Sector, src []byte) error {
	dst, err := d.bounds(sec)
	if err != nil {
		return err
	}
	copy(dst, src[:SectorSize])
	return nil
}

func (d *FileDevice) NumSectors() Sector {
	return d.n
}

// Close flushes the mapping to disk, unmaps it, and closes the file.
func (d *FileDevice) Close() error {
	if d.data == nil {
		return nil
	}
	if err := d.data.Flush(); err != nil {
		return err
	}
	if err := d.data.Unmap(); err != nil {
		return err
	}
	d.data = nil
	return d.file.Close()
}
