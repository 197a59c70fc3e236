package engine

import (
	"container/heap"
	"time"
)

// retryEntry is a failed job waiting out its backoff delay.
type retryEntry struct {
	job     *Job
	readyAt time.Time
}

// retryHeap is a min-heap keyed by readyAt. The queue drains due entries
// once per scheduling tick instead of arming one timer per retry.
type retryHeap []*retryEntry

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool { return h[i].readyAt.Before(h[j].readyAt) }

func (h retryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *retryHeap) Push(x any) {
	*h = append(*h, x.(*retryEntry))
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*retryHeap)(nil)
