// Package list implements a doubly linked list stored in an arena.
//
// Elements are addressed by [Handle]s instead of pointers. A handle carries the
// generation of its slot, so a handle to a removed element never reaches the
// element that later reuses the slot.
package list

import "caching-proxy/lib/ds/internal"

const none = -1

type Handle struct {
	idx int
	gen uint64
}

type node[T any] struct {
	value      T
	prev, next int
	gen        uint64
	used       bool
}

type List[T any] struct {
	nodes      []node[T]
	free       []int
	head, tail int
	len        uint
}

func New[T any](initialCap uint) *List[T] {
	return &List[T]{
		nodes: make([]node[T], 0, initialCap),
		head:  none,
		tail:  none,
	}
}

func (l *List[T]) Len() uint { return l.len }

// Valid reports whether h still refers to an element of the list.
func (l *List[T]) Valid(h Handle) bool {
	if h.idx < 0 || h.idx >= len(l.nodes) {
		return false
	}
	n := &l.nodes[h.idx]
	return n.used && n.gen == h.gen
}

func (l *List[T]) Get(h Handle) (T, bool) {
	if !l.Valid(h) {
		return internal.Zero[T](), false
	}
	return l.nodes[h.idx].value, true
}

// PushBack appends v and returns its handle.
func (l *List[T]) PushBack(v T) Handle {
	idx := l.alloc()
	n := &l.nodes[idx]
	n.value = v
	n.used = true
	n.prev, n.next = l.tail, none

	l.linkBack(idx)
	l.len++

	return Handle{idx: idx, gen: n.gen}
}

// Front returns the first element.
func (l *List[T]) Front() (Handle, T, bool) {
	if l.head == none {
		return Handle{idx: none}, internal.Zero[T](), false
	}
	n := &l.nodes[l.head]
	return Handle{idx: l.head, gen: n.gen}, n.value, true
}

// Remove unlinks the element of h and frees its slot.
func (l *List[T]) Remove(h Handle) (T, bool) {
	if !l.Valid(h) {
		return internal.Zero[T](), false
	}

	l.unlink(h.idx)

	n := &l.nodes[h.idx]
	v := n.value
	n.value = internal.Zero[T]()
	n.used = false
	n.gen++ // invalidates outstanding handles.

	l.free = append(l.free, h.idx)
	l.len--

	return v, true
}

// MoveToBack moves the element of h to the back of the list.
// It returns false if h is no longer valid.
func (l *List[T]) MoveToBack(h Handle) bool {
	if !l.Valid(h) {
		return false
	}
	if l.tail == h.idx {
		return true
	}

	l.unlink(h.idx)
	l.linkBack(h.idx)

	return true
}

// Each calls f from front to back until f returns false.
func (l *List[T]) Each(f func(h Handle, v T) bool) {
	for idx := l.head; idx != none; idx = l.nodes[idx].next {
		n := &l.nodes[idx]
		if !f(Handle{idx: idx, gen: n.gen}, n.value) {
			return
		}
	}
}

func (l *List[T]) alloc() int {
	if k := len(l.free); k > 0 {
		idx := l.free[k-1]
		l.free = l.free[:k-1]
		return idx
	}

	// Generations start at 1 so that the zero Handle is never valid.
	l.nodes = append(l.nodes, node[T]{prev: none, next: none, gen: 1})
	return len(l.nodes) - 1
}

func (l *List[T]) linkBack(idx int) {
	n := &l.nodes[idx]
	n.prev, n.next = l.tail, none

	if l.tail == none {
		l.head = idx
	} else {
		l.nodes[l.tail].next = idx
	}
	l.tail = idx
}

func (l *List[T]) unlink(idx int) {
	n := &l.nodes[idx]

	if n.prev == none {
		l.head = n.next
	} else {
		l.nodes[n.prev].next = n.next
	}

	if n.next == none {
		l.tail = n.prev
	} else {
		l.nodes[n.next].prev = n.prev
	}

	n.prev, n.next = none, none
}
