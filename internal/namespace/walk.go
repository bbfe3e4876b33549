package namespace

import (
	"github.com/sectorfs/sectorfs/internal/device"
	"github.com/sectorfs/sectorfs/internal/inode"
)

// Walk resolves the entire path starting from the inode at sector
// from, returning the final sector or device.InvalidSector on any
// failure: a component not found, a component longer than NameMax, or
// traversing into a non-directory. "/" runs collapse as a single
// separator.
func Walk(table *inode.Table, from device.Sector, path string) device.Sector {
	cur := from
	i := 0
	for {
		for i < len(path) && path[i] == '/' {
			i++
		}
		if i >= len(path) {
			return cur
		}

		start := i
		for i < len(path) && path[i] != '/' {
			i++
		}
		name := path[start:i]
		if len(name) > NameMax {
			return device.InvalidSector
		}

		next, ok := lookupIn(table, cur, name)
		if !ok {
			return device.InvalidSector
		}
		cur = next
	}
}

// Leave is like Walk but stops one component short: it returns the
// containing directory's sector and the final component's name,
// without resolving that last component. A path that is only "/" or
// empty after the leading slashes are stripped, or that ends in a "/"
// run, yields an empty name and the final directory's sector itself
// (for a trailing "/", the last component is resolved as well).
func Leave(table *inode.Table, from device.Sector, path string) (device.Sector, string) {
	cur := from
	i := 0
	for {
		for i < len(path) && path[i] == '/' {
			i++
		}
		if i >= len(path) {
			return cur, ""
		}

		start := i
		for i < len(path) && path[i] != '/' {
			i++
		}
		name := path[start:i]
		if len(name) > NameMax {
			return device.InvalidSector, ""
		}

		j := i
		for j < len(path) && path[j] == '/' {
			j++
		}
		if i >= len(path) {
			return cur, name
		}

		next, ok := lookupIn(table, cur, name)
		if !ok {
			return device.InvalidSector, ""
		}
		cur = next
		i = j
	}
}

// lookupIn opens the directory at dirSector, verifies its type, and
// looks up name within it, closing the directory's inode on every
// path.
func lookupIn(table *inode.Table, dirSector device.Sector, name string) (device.Sector, bool) {
	in := table.Open(dirSector)
	if in.Type() != inode.TypeDir {
		table.Close(in)
		return device.InvalidSector, false
	}
	dir := Open(in)
	sec, ok := dir.Lookup(name)
	table.Close(in)
	return sec, ok
}
