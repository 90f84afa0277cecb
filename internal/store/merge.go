package store

import (
	"container/heap"
	"context"
	"io"
)

// heapItem wraps a chunk stream with its current entry for heap operations
type heapItem struct {
	src     *chunkReader
	current chunkEntry
	index   int // chunk number, for stable ordering
}

// mergeHeap implements heap.Interface for the k-way merge of sorted chunks.
type mergeHeap []*heapItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].current.tag != h[j].current.tag {
		return h[i].current.tag < h[j].current.tag
	}
	// Equal tags: earlier chunks hold earlier input
	return h[i].index < h[j].index
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(*heapItem))
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeChunks is phase 2 of the tag sort: it merges chunks 0..n-1 of arena
// in (tag, chunk, position) order and appends every pair and its tag to w.
func mergeChunks(ctx context.Context, arena *chunkArena, n int, w *Writer) error {
	h := make(mergeHeap, 0, n)
	defer func() {
		for _, item := range h {
			item.src.Close()
		}
	}()
	for i := 0; i < n; i++ {
		src, err := openChunk(arena.path(i))
		if err != nil {
			return err
		}
		e, err := src.Next()
		if err == io.EOF {
			src.Close()
			continue
		}
		if err != nil {
			src.Close()
			return err
		}
		h = append(h, &heapItem{src: src, current: e, index: i})
	}
	heap.Init(&h)

	for count := 0; len(h) > 0; count++ {
		if err := checkCancel(ctx, count); err != nil {
			return err
		}
		item := h[0]
		e := item.current
		if _, err := w.AppendRecord(e.left); err != nil {
			return err
		}
		if _, err := w.AppendRecord(e.right); err != nil {
			return err
		}
		if err := w.AppendTag(e.tag); err != nil {
			return err
		}

		next, err := item.src.Next()
		switch {
		case err == io.EOF:
			heap.Pop(&h)
			item.src.Close()
		case err != nil:
			return err
		default:
			item.current = next
			heap.Fix(&h, 0)
		}
	}
	return nil
}
