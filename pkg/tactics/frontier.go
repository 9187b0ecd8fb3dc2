package tactics

import "container/heap"

type frontierEntry struct {
	priority int
	seq      int
	pos      Position
}

// entryHeap is a min-heap on priority, ties broken by insertion order so
// repeated fills over the same board pop tiles in the same sequence.
type entryHeap []frontierEntry

func (h entryHeap) Len() int { return len(h) }
func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)   { *h = append(*h, x.(frontierEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// frontier is the open set of a search. Entries are never decreased in
// place; a tile improved after being pushed is pushed again and the stale
// entry is skipped on pop.
type frontier struct {
	h   entryHeap
	seq int
}

func (f *frontier) push(priority int, p Position) {
	f.seq++
	heap.Push(&f.h, frontierEntry{priority: priority, seq: f.seq, pos: p})
}

func (f *frontier) pop() frontierEntry {
	return heap.Pop(&f.h).(frontierEntry)
}

func (f *frontier) empty() bool { return len(f.h) == 0 }
