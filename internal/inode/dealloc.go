package inode

import "github.com/sectorfs/sectorfs/internal/device"

// deallocate releases every sector owned by the inode at sector: its
// direct blocks, its single-indirect block and the data blocks it
// names, its doubly-indirect block and the data blocks named by each
// of its children, and finally the inode sector itself. Each indirect
// block is pinned only long enough to decode a copy of its entries;
// the sectors it names are released from that copy after the unpin.
func (t *Table) deallocate(sector device.Sector) error {
	h := t.pool.Read(sector)
	d, err := decodeOnDisk(h.Bytes())
	if err != nil {
		h.Unpin()
		return err
	}

	for i := 0; i < NumDirect; i++ {
		if a := d.addr(i); a.Valid() {
			t.free.Release(a, 1)
		}
	}

	if single := d.addr(NumDirect); single.Valid() {
		ih := t.pool.Read(single)
		ind := decodeIndirect(ih.Bytes())
		ih.Unpin()
		for i := 0; i < IndirectEntries; i++ {
			if a := ind.addr(i); a.Valid() {
				t.free.Release(a, 1)
			}
		}
		t.free.Release(single, 1)
	}

	if double := d.addr(NumDirect + 1); double.Valid() {
		oh := t.pool.Read(double)
		outer := decodeIndirect(oh.Bytes())
		oh.Unpin()
		for i := 0; i < IndirectEntries; i++ {
			inner := outer.addr(i)
			if !inner.Valid() {
				continue
			}
			ih := t.pool.Read(inner)
			innerBlock := decodeIndirect(ih.Bytes())
			ih.Unpin()
			for k := 0; k < IndirectEntries; k++ {
				if a := innerBlock.addr(k); a.Valid() {
					t.free.Release(a, 1)
				}
			}
			t.free.Release(inner, 1)
		}
		t.free.Release(double, 1)
	}

	h.Unpin()
	t.free.Release(sector, 1)
	return nil
}
