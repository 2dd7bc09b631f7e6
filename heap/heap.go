// Package heap is a reference Heap Service for the VM: a fixed-capacity arena
// of relocatable chunks addressed through handles.
//
// Unlocked chunks may move whenever an allocation triggers a collection, so
// callers must Lock a handle before touching its bytes and Release it
// afterwards. Locked and fixed chunks never move.
package heap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("ujvm.heap")

// Handle identifies a heap chunk. Zero is the null handle.
type Handle uint32

// Mark levels used by the collector walk.
const (
	Unseen   uint8 = 0
	Seen     uint8 = 1
	Expanded uint8 = 2
)

const align = 4

var (
	ErrOutOfMemory   = errors.New("heap: out of memory")
	ErrInvalidHandle = errors.New("heap: invalid handle")
)

// Collector marks every reachable chunk. The arena resets all marks to
// Unseen, calls MarkRoots, and frees whatever is still Unseen afterwards.
type Collector interface {
	MarkRoots()
}

// Stats is a point-in-time view of arena usage.
type Stats struct {
	Capacity    int
	Used        int // bytes held by live chunks
	Top         int // bump pointer
	Handles     int // live handles
	Collections int
	Freed       int // chunks reclaimed by collections
}

type chunk struct {
	off   int
	size  int
	mark  uint8
	locks int
	fixed bool
	live  bool
}

// Arena is a compacting handle heap.
type Arena struct {
	mem       []byte
	chunks    []chunk // chunks[h-1]
	free      []Handle
	top       int
	collector Collector
	inGC      bool

	collections int
	freed       int
}

// NewArena creates an arena with the given capacity in bytes.
func NewArena(capacity int) *Arena {
	return &Arena{mem: make([]byte, capacity)}
}

// SetCollector installs the mark coordinator called under memory pressure.
func (a *Arena) SetCollector(c Collector) {
	a.collector = c
}

// Alloc allocates a relocatable, zeroed chunk.
func (a *Arena) Alloc(size int) (Handle, error) {
	return a.alloc(size, false)
}

// AllocFixed allocates a chunk that compaction never moves.
func (a *Arena) AllocFixed(size int) (Handle, error) {
	return a.alloc(size, true)
}

func (a *Arena) alloc(size int, fixed bool) (Handle, error) {
	if size < 0 {
		return 0, fmt.Errorf("heap: negative size %d", size)
	}
	sz := (size + align - 1) &^ (align - 1)

	if a.top+sz > len(a.mem) {
		if a.inGC {
			return 0, ErrOutOfMemory
		}
		a.Collect()
		if a.top+sz > len(a.mem) {
			log.Debugf("alloc of %d bytes failed: top=%d cap=%d", size, a.top, len(a.mem))
			return 0, ErrOutOfMemory
		}
	}

	c := chunk{off: a.top, size: sz, fixed: fixed, live: true}
	a.top += sz
	clear(a.mem[c.off : c.off+sz])

	var h Handle
	if n := len(a.free); n > 0 {
		h = a.free[n-1]
		a.free = a.free[:n-1]
		a.chunks[h-1] = c
	} else {
		a.chunks = append(a.chunks, c)
		h = Handle(len(a.chunks))
	}
	return h, nil
}

func (a *Arena) get(h Handle) *chunk {
	if h == 0 || int(h) > len(a.chunks) || !a.chunks[h-1].live {
		panic(fmt.Errorf("%w: %d", ErrInvalidHandle, h))
	}
	return &a.chunks[h-1]
}

// Lock pins the chunk and returns its bytes. Locks nest.
func (a *Arena) Lock(h Handle) []byte {
	c := a.get(h)
	c.locks++
	return a.mem[c.off : c.off+c.size : c.off+c.size]
}

// Release undoes one Lock.
func (a *Arena) Release(h Handle) {
	c := a.get(h)
	if c.locks == 0 {
		panic(fmt.Errorf("heap: release of unlocked handle %d", h))
	}
	c.locks--
}

// IsLocked reports whether the chunk is currently pinned.
func (a *Arena) IsLocked(h Handle) bool {
	return a.get(h).locks > 0
}

// Locked returns the chunk's bytes if it is currently locked, without
// taking another lock. The bytes stay valid while the existing lock is held.
func (a *Arena) Locked(h Handle) ([]byte, bool) {
	c := a.get(h)
	if c.locks == 0 {
		return nil, false
	}
	return a.mem[c.off : c.off+c.size : c.off+c.size], true
}

// Mark raises the chunk's mark to m. Marks never decrease.
func (a *Arena) Mark(h Handle, m uint8) {
	c := a.get(h)
	if m > c.mark {
		c.mark = m
	}
}

// MarkOf returns the chunk's current mark.
func (a *Arena) MarkOf(h Handle) uint8 {
	return a.get(h).mark
}

// FirstMarked returns the lowest live handle carrying mark m, or 0.
func (a *Arena) FirstMarked(m uint8) Handle {
	for i := range a.chunks {
		if a.chunks[i].live && a.chunks[i].mark == m {
			return Handle(i + 1)
		}
	}
	return 0
}

// Free releases the handle. Its bytes are reclaimed by the next compaction.
func (a *Arena) Free(h Handle) {
	c := a.get(h)
	if c.off+c.size == a.top && !c.fixed {
		a.top = c.off
	}
	*c = chunk{}
	a.free = append(a.free, h)
}

// Valid reports whether h names a live chunk.
func (a *Arena) Valid(h Handle) bool {
	return h != 0 && int(h) <= len(a.chunks) && a.chunks[h-1].live
}

// Collect runs one mark/free/compact cycle.
func (a *Arena) Collect() {
	if a.inGC {
		return
	}
	a.inGC = true
	defer func() { a.inGC = false }()

	freed := 0
	if a.collector != nil {
		for i := range a.chunks {
			a.chunks[i].mark = Unseen
		}
		a.collector.MarkRoots()
		for i := range a.chunks {
			c := &a.chunks[i]
			if c.live && c.mark == Unseen && c.locks == 0 && !c.fixed {
				*c = chunk{}
				a.free = append(a.free, Handle(i+1))
				freed++
			}
		}
	}
	a.compact()
	a.collections++
	a.freed += freed
	log.Debugf("collection %d: freed %d chunks, top now %d/%d", a.collections, freed, a.top, len(a.mem))
}

// compact slides movable chunks toward offset zero. A movable chunk only
// moves if it fits entirely below the next pinned chunk.
func (a *Arena) compact() {
	order := make([]int, 0, len(a.chunks))
	for i := range a.chunks {
		if a.chunks[i].live {
			order = append(order, i)
		}
	}
	sort.Slice(order, func(x, y int) bool {
		return a.chunks[order[x]].off < a.chunks[order[y]].off
	})

	pinned := func(c *chunk) bool { return c.fixed || c.locks > 0 }

	cursor := 0
	for n, idx := range order {
		c := &a.chunks[idx]
		if pinned(c) {
			cursor = max(cursor, c.off+c.size)
			continue
		}
		limit := len(a.mem)
		for _, next := range order[n+1:] {
			if nc := &a.chunks[next]; pinned(nc) {
				limit = nc.off
				break
			}
		}
		if cursor < c.off && cursor+c.size <= limit {
			copy(a.mem[cursor:cursor+c.size], a.mem[c.off:c.off+c.size])
			c.off = cursor
		}
		cursor = c.off + c.size
	}
	a.top = cursor
}

// Stats reports current usage.
func (a *Arena) Stats() Stats {
	s := Stats{
		Capacity:    len(a.mem),
		Top:         a.top,
		Collections: a.collections,
		Freed:       a.freed,
	}
	for i := range a.chunks {
		if a.chunks[i].live {
			s.Used += a.chunks[i].size
			s.Handles++
		}
	}
	return s
}
