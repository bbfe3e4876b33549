// Package frontend exposes the filesystem core over FUSE by adapting
// internal/fs.Filesystem to go-fuse's tree-node API.
package frontend

import (
	"context"
	"errors"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	gofs "github.com/hanwen/go-fuse/v2/fs"

	"github.com/sectorfs/sectorfs/internal/fs"
	"github.com/sectorfs/sectorfs/internal/fserr"
	"github.com/sectorfs/sectorfs/internal/namespace"
)

// errno maps a filesystem-core error onto the syscall.Errno FUSE
// expects.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fserr.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fserr.ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, fserr.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, fserr.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fserr.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, fserr.ErrNoSpace):
		return syscall.ENOSPC
	default:
		return syscall.EIO
	}
}

// Root builds the root node of a sectorfs FUSE tree over fsys, using
// one shared working directory for the whole mount.
func Root(fsys *fs.Filesystem) gofs.InodeEmbedder {
	return &node{fsys: fsys, pwd: fsys.NewWorkingDir(), path: "/"}
}

// node is one entry in the FUSE tree. It holds no cached state beyond
// the path it was looked up at: every operation re-resolves through
// fsys, re-reading the authoritative on-disk image on each use.
type node struct {
	gofs.Inode

	fsys *fs.Filesystem
	pwd  *namespace.WorkingDir
	path string
}

var (
	_ = (gofs.NodeGetattrer)((*node)(nil))
	_ = (gofs.NodeLookuper)((*node)(nil))
	_ = (gofs.NodeReaddirer)((*node)(nil))
	_ = (gofs.NodeCreater)((*node)(nil))
	_ = (gofs.NodeMkdirer)((*node)(nil))
	_ = (gofs.NodeUnlinker)((*node)(nil))
	_ = (gofs.NodeRmdirer)((*node)(nil))
	_ = (gofs.NodeOpener)((*node)(nil))
)

func (n *node) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func (n *node) child(path string) *node {
	return &node{fsys: n.fsys, pwd: n.pwd, path: path}
}

func statToAttr(st fs.Stat, out *gofuse.Attr) {
	out.Size = uint64(st.Size)
	if st.IsDir {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		out.Mode = syscall.S_IFREG | 0644
	}
	out.Ino = uint64(st.Inode)
}

func (n *node) Getattr(ctx context.Context, f gofs.FileHandle, out *gofuse.AttrOut) syscall.Errno {
	file, err := n.fsys.Open(n.pwd, n.path)
	if err != nil {
		return errno(err)
	}
	defer file.Close()
	statToAttr(file.Stat(), &out.Attr)
	out.SetTimeout(time.Second)
	return 0
}

func (n *node) Lookup(ctx context.Context, name string, out *gofuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	file, err := n.fsys.Open(n.pwd, childPath)
	if err != nil {
		return nil, errno(err)
	}
	st := file.Stat()
	file.Close()

	statToAttr(st, &out.Attr)
	out.SetEntryTimeout(time.Second)

	mode := uint32(syscall.S_IFREG)
	if st.IsDir {
		mode = syscall.S_IFDIR
	}
	child := n.child(childPath)
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: mode, Ino: uint64(st.Inode)}), 0
}

func (n *node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	file, err := n.fsys.Open(n.pwd, n.path)
	if err != nil {
		return nil, errno(err)
	}
	defer file.Close()

	entries, err := file.Readdir()
	if err != nil {
		return nil, errno(err)
	}

	list := make([]gofuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, gofuse.DirEntry{Name: e.Name})
	}
	return gofs.NewListDirStream(list), 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *gofuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.fsys.Mkdir(n.pwd, childPath); err != nil {
		return nil, errno(err)
	}
	return n.Lookup(ctx, name, out)
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *gofuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.fsys.Create(n.pwd, childPath, 0); err != nil {
		return nil, nil, 0, errno(err)
	}

	file, err := n.fsys.Open(n.pwd, childPath)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	st := file.Stat()
	statToAttr(st, &out.Attr)

	child := n.child(childPath)
	inode := n.NewInode(ctx, child, gofs.StableAttr{Mode: syscall.S_IFREG, Ino: uint64(st.Inode)})
	return inode, &fileHandle{file: file}, 0, 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Remove(n.pwd, n.childPath(name)))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Remove(n.pwd, n.childPath(name)))
}

func (n *node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	file, err := n.fsys.Open(n.pwd, n.path)
	if err != nil {
		return nil, 0, errno(err)
	}
	return &fileHandle{file: file}, 0, 0
}

// fileHandle adapts an open fs.File to go-fuse's FileHandle interface.
type fileHandle struct {
	file *fs.File
}

var (
	_ = (gofs.FileReader)((*fileHandle)(nil))
	_ = (gofs.FileWriter)((*fileHandle)(nil))
	_ = (gofs.FileGetattrer)((*fileHandle)(nil))
	_ = (gofs.FileReleaser)((*fileHandle)(nil))
)

func (h *fileHandle) Read(ctx context.Context, dst []byte, off int64) (gofuse.ReadResult, syscall.Errno) {
	n := h.file.ReadAt(dst, off)
	return gofuse.ReadResultData(dst[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n := h.file.WriteAt(data, off)
	return uint32(n), 0
}

func (h *fileHandle) Getattr(ctx context.Context, out *gofuse.AttrOut) syscall.Errno {
	statToAttr(h.file.Stat(), &out.Attr)
	return 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return errno(h.file.Close())
}
