package fs

import (
	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/fserr"
	"github.com/sectorfs/sectorfs/internal/inode"
	"github.com/sectorfs/sectorfs/internal/namespace"
)

// File is an open handle onto a resolved path: a thin wrapper around
// the shared, reference-counted in-memory inode.
type File struct {
	fsys *Filesystem
	in   *inode.Inode
}

// Stat describes a file or directory's metadata.
type Stat struct {
	IsDir bool
	Size  int64
	Inode device.Sector
}

// Stat returns f's current metadata.
func (f *File) Stat() Stat {
	return Stat{
		IsDir: f.in.Type() == inode.TypeDir,
		Size:  f.in.Length(),
		Inode: f.in.Inumber(),
	}
}

// ReadAt reads into dst starting at offset, returning the number of
// bytes transferred.
func (f *File) ReadAt(dst []byte, offset int64) int64 {
	return f.in.ReadAt(dst, offset)
}

// WriteAt writes src starting at offset, returning the number of bytes
// transferred, growing the file as needed.
func (f *File) WriteAt(src []byte, offset int64) int64 {
	return f.in.WriteAt(src, offset)
}

// DenyWrite disables writes against the underlying inode for the
// duration of the caller's interest (e.g. while mapping it for exec).
func (f *File) DenyWrite() {
	f.in.DenyWrite()
}

// AllowWrite re-enables writes previously disabled by DenyWrite.
func (f *File) AllowWrite() {
	f.in.AllowWrite()
}

// Readdir lists the entries of f, failing if f is not a directory.
func (f *File) Readdir() ([]namespace.Entry, error) {
	if f.in.Type() != inode.TypeDir {
		return nil, fserr.ErrNotDirectory
	}
	return namespace.Open(f.in).Entries(), nil
}

// Close releases f's reference to the underlying inode, deallocating
// its sectors if it was the last reference to a removed inode.
func (f *File) Close() error {
	return f.fsys.table.Close(f.in)
}
