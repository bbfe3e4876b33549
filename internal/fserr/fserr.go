// Package fserr names the functional error kinds the filesystem core
// surfaces to callers, and wraps lower-level OS/device errors onto
// them where possible.
package fserr

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoSpace means the free-sector allocator could not satisfy a
	// request.
	ErrNoSpace = errors.New("sectorfs: out of space")
	// ErrNotFound means a path component did not resolve.
	ErrNotFound = errors.New("sectorfs: not found")
	// ErrNotDirectory means path traversal entered a non-directory
	// component before reaching the end of the path.
	ErrNotDirectory = errors.New("sectorfs: not a directory")
	// ErrNameTooLong means a path component exceeded NAME_MAX bytes.
	ErrNameTooLong = errors.New("sectorfs: name too long")
	// ErrNotEmpty means a directory remove was attempted on a
	// directory containing entries other than "." and "..".
	ErrNotEmpty = errors.New("sectorfs: directory not empty")
	// ErrBadMagic means a sector expected to hold a valid on-disk inode
	// failed its magic-number check.
	ErrBadMagic = errors.New("sectorfs: bad magic number")
	// ErrExists means a directory add was attempted for a name that
	// is already present in the target directory.
	ErrExists = errors.New("sectorfs: already exists")
)

// Wrap maps an arbitrary OS-level error onto one of the sentinels
// above where possible, falling back to a plain wrap otherwise.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}
