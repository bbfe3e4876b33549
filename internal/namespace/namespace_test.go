package namespace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sectorfs/sectorfs/internal/bcache"
	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fserr"
	"github.com/sectorfs/sectorfs/internal/freemap"
	"github.com/sectorfs/sectorfs/internal/inode"
)

func newTestNamespace(t *testing.T, sectors int) (*Namespace, *inode.Table) {
	dev := device.NewMemoryDevice(sectors)
	free := freemap.Create(device.Sector(sectors))
	pool := bcache.New(dev, free)
	table := inode.NewTable(pool, free)

	assert.Nil(t, Format(table, freemap.RootDirSector))
	return New(table, free, freemap.RootDirSector), table
}

func TestRootResolvesToItself(t *testing.T) {
	ns, table := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	sec := Walk(table, ns.Root(), "")
	assert.Equal(t, ns.Root(), sec)

	in, err := ns.Open(pwd, "/")
	assert.Nil(t, err)
	table.Close(in)
}

func TestCreateAndLookup(t *testing.T) {
	ns, table := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	assert.Nil(t, ns.Create(pwd, "/foo", 0))

	in, err := ns.Open(pwd, "/foo")
	assert.Nil(t, err)
	assert.Equal(t, inode.TypeFile, in.Type())
	table.Close(in)

	assert.ErrorIs(t, ns.Create(pwd, "/foo", 0), fserr.ErrExists)
}

func TestMkdirAndNestedPaths(t *testing.T) {
	ns, table := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	assert.Nil(t, ns.Mkdir(pwd, "/a"))
	assert.Nil(t, ns.Mkdir(pwd, "/a/b"))
	assert.Nil(t, ns.Create(pwd, "/a/b/c", 0))

	in, err := ns.Open(pwd, "/a/b/c")
	assert.Nil(t, err)
	table.Close(in)

	// collapsing "/" runs
	in2, err := ns.Open(pwd, "//a///b/c")
	assert.Nil(t, err)
	table.Close(in2)
}

func TestChdirAffectsRelativeResolution(t *testing.T) {
	ns, table := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	assert.Nil(t, ns.Mkdir(pwd, "/a"))
	assert.Nil(t, ns.Chdir(pwd, "/a"))
	assert.Nil(t, ns.Create(pwd, "relfile", 0))

	in, err := ns.Open(pwd, "/a/relfile")
	assert.Nil(t, err)
	table.Close(in)
}

func TestRemoveRequiresEmptyDirectory(t *testing.T) {
	ns, _ := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	assert.Nil(t, ns.Mkdir(pwd, "/a"))
	assert.Nil(t, ns.Create(pwd, "/a/f", 0))

	assert.NotNil(t, ns.Remove(pwd, "/a"))

	assert.Nil(t, ns.Remove(pwd, "/a/f"))
	assert.Nil(t, ns.Remove(pwd, "/a"))

	_, err := ns.Open(pwd, "/a")
	assert.NotNil(t, err)
}

func TestLeaveYieldsLastComponentName(t *testing.T) {
	ns, table := newTestNamespace(t, 64)

	sec, name := Leave(table, ns.Root(), "a")
	assert.Equal(t, ns.Root(), sec)
	assert.Equal(t, "a", name)
}

func TestLeaveOnRootOnlyPathYieldsEmptyName(t *testing.T) {
	ns, table := newTestNamespace(t, 64)

	sec, name := Leave(table, ns.Root(), "")
	assert.Equal(t, ns.Root(), sec)
	assert.Equal(t, "", name)
}

func TestNameMaxBoundary(t *testing.T) {
	ns, _ := newTestNamespace(t, 64)
	pwd := NewWorkingDir(ns.Root())

	fourteen := "/12345678901234"
	assert.Len(t, fourteen[1:], NameMax)
	assert.Nil(t, ns.Create(pwd, fourteen, 0))

	table := ns.table
	in, err := ns.Open(pwd, fourteen)
	assert.Nil(t, err)
	table.Close(in)

	fifteen := "/123456789012345"
	assert.Len(t, fifteen[1:], NameMax+1)
	assert.NotNil(t, ns.Create(pwd, fifteen, 0))

	_, err = ns.Open(pwd, fifteen)
	assert.NotNil(t, err)
}
