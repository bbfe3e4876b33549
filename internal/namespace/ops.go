package namespace

import (
	"strings"
	"sync"

	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fserr"
	"github.com/sectorfs/sectorfs/internal/freemap"
	"github.com/sectorfs/sectorfs/internal/inode"
)

// WorkingDir is a per-process (here, per-session) working directory:
// the sector a relative path resolves against. It is owned by the
// caller and passed into every Namespace operation.
type WorkingDir struct {
	mu     sync.Mutex
	sector device.Sector
}

// NewWorkingDir creates a working directory initialized to root.
func NewWorkingDir(root device.Sector) *WorkingDir {
	return &WorkingDir{sector: root}
}

// Get returns the current working sector.
func (w *WorkingDir) Get() device.Sector {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sector
}

// Set replaces the current working sector.
func (w *WorkingDir) Set(sector device.Sector) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sector = sector
}

// Namespace ties the open-inode table and free map to a fixed root
// sector, and implements the path-based operations: Create, Mkdir,
// Remove, Chdir, Open.
type Namespace struct {
	table *inode.Table
	free  *freemap.Map
	root  device.Sector
}

// New builds a Namespace rooted at root.
func New(table *inode.Table, free *freemap.Map, root device.Sector) *Namespace {
	return &Namespace{table: table, free: free, root: root}
}

// Root returns the namespace's root sector.
func (ns *Namespace) Root() device.Sector {
	return ns.root
}

// Format initializes a fresh root directory at root, adding "."
// and ".." entries pointing to itself: the root is its own parent.
func Format(table *inode.Table, root device.Sector) error {
	if err := table.Create(root, 0, inode.TypeDir); err != nil {
		return err
	}
	in := table.Open(root)
	defer table.Close(in)
	dir := Open(in)
	if err := dir.Add(".", root); err != nil {
		return err
	}
	return dir.Add("..", root)
}

// start resolves the sector an operation should begin walking from,
// and the remainder of path with any leading "/" run stripped:
// absolute paths start at root, relative paths start at pwd's current
// sector.
func (ns *Namespace) start(pwd *WorkingDir, path string) (device.Sector, string) {
	if strings.HasPrefix(path, "/") {
		return ns.root, strings.TrimLeft(path, "/")
	}
	return pwd.Get(), path
}

// Open resolves path to its inode and returns the opened, reference-
// counted handle. The root itself is opened by passing "/".
func (ns *Namespace) Open(pwd *WorkingDir, path string) (*inode.Inode, error) {
	if path == "" {
		return nil, fserr.ErrNotFound
	}
	from, rest := ns.start(pwd, path)
	sec := Walk(ns.table, from, rest)
	if !sec.Valid() {
		return nil, fserr.ErrNotFound
	}
	return ns.table.Open(sec), nil
}

// create is shared by Create and Mkdir: it resolves path's parent
// directory and final component, allocates a fresh inode sector,
// writes its on-disk image, links it into the parent, and rolls the
// allocation back if linking fails.
func (ns *Namespace) create(pwd *WorkingDir, path string, size int64, typ inode.Type) error {
	if path == "" {
		return fserr.ErrNotFound
	}
	from, rest := ns.start(pwd, path)
	parentSec, name := Leave(ns.table, from, rest)
	if !parentSec.Valid() || name == "" {
		return fserr.ErrNotFound
	}

	parentIn := ns.table.Open(parentSec)
	defer ns.table.Close(parentIn)
	if parentIn.Type() != inode.TypeDir {
		return fserr.ErrNotDirectory
	}
	parentDir := Open(parentIn)

	newSec, ok := ns.free.Allocate(1)
	if !ok {
		return fserr.ErrNoSpace
	}
	if err := ns.table.Create(newSec, size, typ); err != nil {
		ns.free.Release(newSec, 1)
		return err
	}

	if typ == inode.TypeDir {
		childIn := ns.table.Open(newSec)
		childDir := Open(childIn)
		if err := childDir.Add(".", newSec); err != nil {
			childIn.Remove()
			ns.table.Close(childIn)
			return err
		}
		if err := childDir.Add("..", parentSec); err != nil {
			childIn.Remove()
			ns.table.Close(childIn)
			return err
		}
		ns.table.Close(childIn)
	}

	if err := parentDir.Add(name, newSec); err != nil {
		victim := ns.table.Open(newSec)
		victim.Remove()
		ns.table.Close(victim)
		return err
	}
	return nil
}

// Create makes a new regular file of the given initial size.
func (ns *Namespace) Create(pwd *WorkingDir, path string, size int64) error {
	return ns.create(pwd, path, size, inode.TypeFile)
}

// Mkdir makes a new, empty directory.
func (ns *Namespace) Mkdir(pwd *WorkingDir, path string) error {
	return ns.create(pwd, path, 0, inode.TypeDir)
}

// Remove unlinks path from its parent directory. A directory target
// must be empty (contain only "." and "..") before it can be removed.
func (ns *Namespace) Remove(pwd *WorkingDir, path string) error {
	if path == "" {
		return fserr.ErrNotFound
	}
	from, rest := ns.start(pwd, path)
	parentSec, name := Leave(ns.table, from, rest)
	if !parentSec.Valid() || name == "" {
		return fserr.ErrNotFound
	}

	parentIn := ns.table.Open(parentSec)
	defer ns.table.Close(parentIn)
	if parentIn.Type() != inode.TypeDir {
		return fserr.ErrNotDirectory
	}
	parentDir := Open(parentIn)

	targetSec, ok := parentDir.Lookup(name)
	if !ok {
		return fserr.ErrNotFound
	}

	targetIn := ns.table.Open(targetSec)
	defer ns.table.Close(targetIn)
	if targetIn.Type() == inode.TypeDir {
		if !Open(targetIn).Empty() {
			return fserr.ErrNotEmpty
		}
	}

	if !parentDir.Remove(name) {
		return fserr.ErrNotFound
	}
	targetIn.Remove()
	return nil
}

// Chdir resolves path and, if it names a directory, sets it as pwd's
// working sector.
func (ns *Namespace) Chdir(pwd *WorkingDir, path string) error {
	if path == "" {
		return fserr.ErrNotFound
	}
	from, rest := ns.start(pwd, path)
	sec := Walk(ns.table, from, rest)
	if !sec.Valid() {
		return fserr.ErrNotFound
	}

	in := ns.table.Open(sec)
	typ := in.Type()
	ns.table.Close(in)
	if typ != inode.TypeDir {
		return fserr.ErrNotDirectory
	}

	pwd.Set(sec)
	return nil
}
