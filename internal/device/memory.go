package device

// MemoryDevice is a Device backed entirely by a byte slice. It exists
// for tests that want a device without touching the filesystem.
type MemoryDevice struct {
	sectors []byte
	n       Sector
}

// NewMemoryDevice allocates a zero-filled in-memory device of n sectors.
func NewMemoryDevice(n int) *MemoryDevice {
	return &MemoryDevice{
		sectors: make([]byte, n*SectorSize),
		n:       Sector(n),
	}
}

func (d *MemoryDevice) bounds(sec Sector) ([]byte, error) {
	if sec < 0 || sec >= d.n {
		return nil, &ErrOutOfRange{Sector: sec, Max: d.n - 1}
	}
	off := int64(sec) * SectorSize
	return d.sectors[off : off+SectorSize], nil
}

func (d *MemoryDevice) ReadSector(sec Sector, dst []byte) error {
	src, err := d.bounds(sec)
	if err != nil {
		return err
	}
	copy(dst[:SectorSize], src)
	return nil
}

func (d *MemoryDevice) WriteSector(sec Sector, src []byte) error {
	dst, err := d.bounds(sec)
	if err != nil {
		return err
	}
	copy(dst, src[:SectorSize])
	return nil
}

func (d *MemoryDevice) NumSectors() Sector {
	return d.n
}

func (d *MemoryDevice) Close() error {
	return nil
}
