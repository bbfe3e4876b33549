// Package fs bundles the buffer cache, inode layer, and namespace into
// a single filesystem context, and exposes the path-based operations a
// frontend (FUSE, a CLI, tests) drives: Create, Mkdir, Remove, Chdir,
// Open, Readdir.
package fs

import (
	"fmt"
	"log"

	"github.com/sectorfs/sectorfs/internal/bcache"
	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/freemap"
	"github.com/sectorfs/sectorfs/internal/inode"
	"github.com/sectorfs/sectorfs/internal/namespace"
)

// Filesystem is the assembled filesystem core bound to one block
// device.
type Filesystem struct {
	dev   device.Device
	pool  *bcache.Pool
	free  *freemap.Map
	table *inode.Table
	ns    *namespace.Namespace
}

// Format lays out a fresh filesystem on dev: a zeroed free map with
// the bitmap and root directory sectors reserved, and an empty root
// directory inode at freemap.RootDirSector.
func Format(dev device.Device) (*Filesystem, error) {
	if n := dev.NumSectors(); n > freemap.MaxSectors {
		return nil, fmt.Errorf("fs: device has %d sectors, exceeds freemap.MaxSectors (%d)", n, freemap.MaxSectors)
	}
	free := freemap.Create(dev.NumSectors())
	pool := bcache.New(dev, free)
	table := inode.NewTable(pool, free)

	if err := namespace.Format(table, freemap.RootDirSector); err != nil {
		return nil, err
	}
	if err := pool.Flush(); err != nil {
		return nil, err
	}

	ns := namespace.New(table, free, freemap.RootDirSector)
	log.Printf("fs: formatted %d sectors", dev.NumSectors())
	return &Filesystem{dev: dev, pool: pool, free: free, table: table, ns: ns}, nil
}

// Open reconstructs the filesystem context from an existing,
// previously formatted device: it loads the free map from its bitmap
// sector and resumes from the root directory.
func Open(dev device.Device) (*Filesystem, error) {
	free, err := freemap.Load(dev)
	if err != nil {
		return nil, err
	}
	pool := bcache.New(dev, free)
	table := inode.NewTable(pool, free)
	ns := namespace.New(table, free, freemap.RootDirSector)
	return &Filesystem{dev: dev, pool: pool, free: free, table: table, ns: ns}, nil
}

// Shutdown flushes every dirty buffer (and, transitively, the free
// map) and closes the underlying device.
func (fsys *Filesystem) Shutdown() error {
	if err := fsys.pool.Flush(); err != nil {
		return err
	}
	return fsys.dev.Close()
}

// NewWorkingDir returns a working directory rooted at the filesystem
// root, suitable for one new "process" or session.
func (fsys *Filesystem) NewWorkingDir() *namespace.WorkingDir {
	return namespace.NewWorkingDir(fsys.ns.Root())
}

// Free reports the number of unallocated sectors.
func (fsys *Filesystem) Free() int64 {
	return fsys.free.Free()
}

// Create makes a new regular file of the given initial size.
func (fsys *Filesystem) Create(pwd *namespace.WorkingDir, path string, size int64) error {
	return fsys.ns.Create(pwd, path, size)
}

// Mkdir makes a new, empty directory.
func (fsys *Filesystem) Mkdir(pwd *namespace.WorkingDir, path string) error {
	return fsys.ns.Mkdir(pwd, path)
}

// Remove unlinks path.
func (fsys *Filesystem) Remove(pwd *namespace.WorkingDir, path string) error {
	return fsys.ns.Remove(pwd, path)
}

// Chdir changes pwd's working directory to path.
func (fsys *Filesystem) Chdir(pwd *namespace.WorkingDir, path string) error {
	return fsys.ns.Chdir(pwd, path)
}

// Open resolves path and returns an open File handle onto it.
func (fsys *Filesystem) Open(pwd *namespace.WorkingDir, path string) (*File, error) {
	in, err := fsys.ns.Open(pwd, path)
	if err != nil {
		return nil, err
	}
	return &File{fsys: fsys, in: in}, nil
}
