// Package queue holds the priority container used by the boarding scheduler:
// a binary min-heap ordered by a caller-supplied comparator.
package queue

import (
	"container/heap"
	"sort"
)

// Queue is not safe for concurrent use; the scheduler serializes access.
type Queue[T any] struct {
	h entries[T]
}

// New returns an empty queue. less must be a strict total order that does
// not change while an entry is in the queue.
func New[T any](less func(a, b T) bool) *Queue[T] {
	return &Queue[T]{h: entries[T]{less: less}}
}

// Insert adds an entry in O(log n).
func (q *Queue[T]) Insert(entry T) {
	heap.Push(&q.h, entry)
}

// ExtractMin removes and returns the minimal entry. ok is false when empty.
func (q *Queue[T]) ExtractMin() (entry T, ok bool) {
	if q.h.Len() == 0 {
		return entry, false
	}
	return heap.Pop(&q.h).(T), true
}

// PeekMin returns the minimal entry without removing it.
func (q *Queue[T]) PeekMin() (entry T, ok bool) {
	if q.h.Len() == 0 {
		return entry, false
	}
	return q.h.items[0], true
}

func (q *Queue[T]) Size() int {
	return q.h.Len()
}

// ToOrderedSequence returns a sorted copy; the heap itself is untouched.
func (q *Queue[T]) ToOrderedSequence() []T {
	out := make([]T, len(q.h.items))
	copy(out, q.h.items)
	sort.Slice(out, func(i, j int) bool { return q.h.less(out[i], out[j]) })
	return out
}

// RemoveWhere drops every entry matching pred and rebuilds the heap.
func (q *Queue[T]) RemoveWhere(pred func(T) bool) int {
	kept := q.h.items[:0]
	removed := 0
	for _, item := range q.h.items {
		if pred(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0
	}
	var zero T
	for i := len(kept); i < len(q.h.items); i++ {
		q.h.items[i] = zero
	}
	q.h.items = kept
	heap.Init(&q.h)
	return removed
}

// Clear empties the queue.
func (q *Queue[T]) Clear() {
	q.h.items = nil
}

type entries[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (e entries[T]) Len() int           { return len(e.items) }
func (e entries[T]) Less(i, j int) bool { return e.less(e.items[i], e.items[j]) }
func (e entries[T]) Swap(i, j int)      { e.items[i], e.items[j] = e.items[j], e.items[i] }

func (e *entries[T]) Push(x any) {
	e.items = append(e.items, x.(T))
}

func (e *entries[T]) Pop() any {
	old := e.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero
	e.items = old[:n-1]
	return item
}
