package bcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/freemap"
)

func newTestPool(t *testing.T, sectors int) (*Pool, device.Device) {
	dev := device.NewMemoryDevice(sectors)
	free := freemap.Create(device.Sector(sectors))
	return New(dev, free), dev
}

func TestReadZeroedSector(t *testing.T) {
	pool, _ := newTestPool(t, 16)
	h := pool.Read(device.Sector(5))
	assert.Equal(t, make([]byte, device.SectorSize), h.Bytes())
	h.Unpin()
}

func TestWriteThenReadSameSector(t *testing.T) {
	pool, _ := newTestPool(t, 16)

	wh := pool.Write(device.Sector(3))
	copy(wh.Bytes(), []byte("hello"))
	wh.Unpin()

	rh := pool.Read(device.Sector(3))
	assert.Equal(t, "hello", string(rh.Bytes()[:5]))
	rh.Unpin()
}

func TestFlushWritesBackDirtyLines(t *testing.T) {
	pool, dev := newTestPool(t, 16)

	wh := pool.Write(device.Sector(10))
	copy(wh.Bytes(), []byte("payload"))
	wh.Unpin()

	assert.Nil(t, pool.Flush())

	buf := make([]byte, device.SectorSize)
	assert.Nil(t, dev.ReadSector(device.Sector(10), buf))
	assert.Equal(t, "payload", string(buf[:7]))
}

func TestEvictionWritesBackDirtyLine(t *testing.T) {
	pool, dev := newTestPool(t, Lines+80)

	wh := pool.Write(device.Sector(10))
	copy(wh.Bytes(), []byte("payload"))
	wh.Unpin()

	for i := 0; i < Lines+1; i++ {
		h := pool.Read(device.Sector(20 + i))
		h.Unpin()
	}

	buf := make([]byte, device.SectorSize)
	assert.Nil(t, dev.ReadSector(device.Sector(10), buf))
	assert.Equal(t, "payload", string(buf[:7]))
}

func TestAllLinesPinnedPanicsOnMiss(t *testing.T) {
	pool, _ := newTestPool(t, Lines+8)

	handles := make([]*Handle, Lines)
	for i := 0; i < Lines; i++ {
		handles[i] = pool.Read(device.Sector(i))
	}

	assert.Panics(t, func() {
		pool.Read(device.Sector(Lines))
	})

	for _, h := range handles {
		h.Unpin()
	}
}

func TestFreeLinePanicsOnSharedPin(t *testing.T) {
	pool, _ := newTestPool(t, 4)

	h1 := pool.Read(device.Sector(1))
	h2 := pool.Read(device.Sector(1))
	assert.Panics(t, func() {
		pool.FreeLine(h1)
	})
	h1.Unpin()
	h2.Unpin()
}

func TestNewAllocatesAndFetches(t *testing.T) {
	pool, _ := newTestPool(t, 16)

	h, sec, ok := pool.New()
	assert.True(t, ok)
	assert.True(t, sec.Valid())
	h.Unpin()
}
