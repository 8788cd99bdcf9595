package core

import "container/heap"

// eventQueue is a min-heap of events ordered by (Time, Seq). Seq is assigned
// at scheduling time, so events sharing a delivery time come out FIFO.
type eventQueue struct {
	items eventHeap
	seq   uint64
}

func (q *eventQueue) push(target EntityID, at float64, payload any) Event {
	q.seq++
	ev := Event{Target: target, Time: at, Seq: q.seq, Payload: payload}
	heap.Push(&q.items, ev)
	return ev
}

// popDue removes and returns the earliest event if its time is <= now.
func (q *eventQueue) popDue(now float64) (Event, bool) {
	if len(q.items) == 0 || q.items[0].Time > now {
		return Event{}, false
	}
	return heap.Pop(&q.items).(Event), true
}

func (q *eventQueue) len() int { return len(q.items) }

func (q *eventQueue) clear() int {
	n := len(q.items)
	q.items = nil
	return n
}

type eventHeap []Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = Event{}
	*h = old[:n-1]
	return ev
}
