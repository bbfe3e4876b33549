package freemap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sectorfs/sectorfs/internal/device"
)

func TestCreateReservesBitmapAndRootSectors(t *testing.T) {
	m := Create(64)
	assert.Equal(t, int64(62), m.Free())
}

func TestAllocateThenReleaseRestoresFreeCount(t *testing.T) {
	m := Create(64)
	before := m.Free()

	sec, ok := m.Allocate(3)
	assert.True(t, ok)
	assert.Equal(t, before-3, m.Free())

	m.Release(sec, 3)
	assert.Equal(t, before, m.Free())
}

func TestAllocateFailsWhenExhausted(t *testing.T) {
	m := Create(8)
	_, ok := m.Allocate(100)
	assert.False(t, ok)
}

func TestFlushThenLoadRoundTrips(t *testing.T) {
	dev := device.NewMemoryDevice(64)
	m := Create(device.Sector(64))
	sec, ok := m.Allocate(5)
	assert.True(t, ok)
	assert.Nil(t, m.Flush(dev))

	reloaded, err := Load(dev)
	assert.Nil(t, err)
	assert.Equal(t, m.Free(), reloaded.Free())

	_, stillOk := reloaded.Allocate(1)
	assert.True(t, stillOk)
	m.Release(sec, 5)
}

func TestCreatePanicsAboveMaxSectors(t *testing.T) {
	assert.Panics(t, func() {
		Create(MaxSectors + 1)
	})
}

func TestLoadRejectsDeviceAboveMaxSectors(t *testing.T) {
	dev := device.NewMemoryDevice(int(MaxSectors) + 8)
	_, err := Load(dev)
	assert.NotNil(t, err)
}
