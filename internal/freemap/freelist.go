package freemap

import "fmt"

// segment is a free run of sector numbers [start, end] (both
// inclusive) that are currently unallocated, kept in a sorted list so
// adjacent runs can merge on release. It is round-tripped through the
// on-disk bitmap on Load/Flush instead of staying purely in memory.
type segment struct {
	start, end int64
}

type freeList struct {
	segments []segment
	total    int64
}

func newFreeList() *freeList {
	return &freeList{segments: make([]segment, 0, 1)}
}

func (l *freeList) count() int64 {
	return l.total
}

func (l *freeList) findSegment(id int64) int {
	for i := range l.segments {
		if l.segments[i].start >= id {
			return i
		}
	}
	return len(l.segments)
}

func (l *freeList) extendSegment(i int) {
	a := &l.segments[i]
	b := &l.segments[i+1]
	if a.end+1 != b.start {
		panic("freeList: extendSegment requires consecutive segments")
	}
	a.end = b.end
	l.segments = append(l.segments[:i+1], l.segments[i+2:]...)
}

// allocContiguous removes and returns the first n contiguous free
// sectors it can find, scanning segments in ascending order. Returns
// (0, false) if no run of n is available.
func (l *freeList) allocContiguous(n int64) (int64, bool) {
	for i := range l.segments {
		seg := &l.segments[i]
		if seg.end-seg.start+1 < n {
			continue
		}
		start := seg.start
		seg.start += n
		l.total -= n
		if seg.start > seg.end {
			l.segments = append(l.segments[:i], l.segments[i+1:]...)
		}
		return start, true
	}
	return 0, false
}

// release adds the run [start, start+n-1] back to the free list,
// merging with adjacent segments.
func (l *freeList) release(start, n int64) {
	end := start + n - 1
	i := l.findSegment(start)

	if i > 0 {
		prev := &l.segments[i-1]
		if prev.end >= start {
			panic(fmt.Sprintf("freeList: release of already-free range [%d,%d]", start, end))
		}
		if prev.end+1 == start {
			prev.end = end
			l.total += n
			if i < len(l.segments) && l.segments[i].start == end+1 {
				l.extendSegment(i - 1)
			}
			return
		}
	}

	if i < len(l.segments) {
		seg := &l.segments[i]
		if seg.start <= end {
			panic(fmt.Sprintf("freeList: release of already-free range [%d,%d]", start, end))
		}
		if seg.start == end+1 {
			seg.start = start
			l.total += n
			return
		}
		l.segments = append(l.segments[:i],
			append([]segment{{start, end}}, l.segments[i:]...)...)
	} else {
		l.segments = append(l.segments, segment{start, end})
	}
	l.total += n
}

// markUsed removes [start, start+n-1] from the free list; used while
// rebuilding the in-memory list from an on-disk bitmap at Load time.
func (l *freeList) markUsed(start, n int64) {
	end := start + n - 1
	i := l.findSegment(start)
	if i > 0 {
		prev := &l.segments[i-1]
		if prev.end >= start {
			tail := segment{end + 1, prev.end}
			prev.end = start - 1
			if tail.start <= tail.end {
				l.segments = append(l.segments[:i], append([]segment{tail}, l.segments[i:]...)...)
			}
			l.total -= n
			return
		}
	}
	if i < len(l.segments) {
		seg := &l.segments[i]
		if seg.start <= end {
			if seg.end > end {
				seg.start = end + 1
			} else {
				l.segments = append(l.segments[:i], l.segments[i+1:]...)
			}
			l.total -= n
		}
	}
}
