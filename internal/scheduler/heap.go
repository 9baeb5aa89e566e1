package scheduler

import (
	"time"

	"auction-engine/internal/models"
)

// entry is the single pending wake-up of one auction
type entry struct {
	auctionID string
	phase     models.Phase
	wakeAt    time.Time
	index     int
}

// wakeHeap orders entries by wake time, auction ID breaking ties so that
// equal deadlines fire in a stable order.
type wakeHeap []*entry

func (h wakeHeap) Len() int { return len(h) }

func (h wakeHeap) Less(i, j int) bool {
	if !h[i].wakeAt.Equal(h[j].wakeAt) {
		return h[i].wakeAt.Before(h[j].wakeAt)
	}
	return h[i].auctionID < h[j].auctionID
}

func (h wakeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *wakeHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *wakeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
