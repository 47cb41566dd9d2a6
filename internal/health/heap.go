package health

import (
	"container/heap"
	"slices"
	"sync"
	"time"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

var _ heap.Interface = (*timeBasedHeap)(nil)

// probeTask is one replica's probe schedule entry.
type probeTask struct {
	replica    models.ReplicaID
	interval   time.Duration
	nextInvoke time.Time
}

// probeHeap orders replicas by their next probe invocation time.
type probeHeap struct {
	// TODO: add replica to index map maintained in Swap to make
	// remove O(log n) instead of O(n)
	taskHeap timeBasedHeap
	guard    sync.Mutex
}

func newProbeHeap(tasks []probeTask) *probeHeap {
	hp := &probeHeap{
		taskHeap: tasks,
	}
	heap.Init(&hp.taskHeap)
	return hp
}

func (h *probeHeap) updateAndGetTop() *probeTask {
	h.guard.Lock()
	defer h.guard.Unlock()

	if len(h.taskHeap) == 0 {
		return nil
	}
	h.taskHeap[0].nextInvoke = time.Now().Add(h.taskHeap[0].interval)
	heap.Fix(&h.taskHeap, 0)
	return &h.taskHeap[0]
}

func (h *probeHeap) getNext() *probeTask {
	h.guard.Lock()
	defer h.guard.Unlock()

	if len(h.taskHeap) == 0 {
		return nil
	}
	return &h.taskHeap[0]
}

func (h *probeHeap) find(id models.ReplicaID) int {
	h.guard.Lock()
	defer h.guard.Unlock()

	return slices.IndexFunc(h.taskHeap, func(t probeTask) bool {
		return t.replica == id
	})
}

func (h *probeHeap) remove(id models.ReplicaID) bool {
	index := h.find(id)
	if index < 0 {
		return false
	}
	h.guard.Lock()
	defer h.guard.Unlock()
	heap.Remove(&h.taskHeap, index)
	return true
}

func (h *probeHeap) push(t probeTask) {
	h.guard.Lock()
	defer h.guard.Unlock()
	heap.Push(&h.taskHeap, t)
}

type timeBasedHeap []probeTask

func (t timeBasedHeap) Len() int {
	return len(t)
}

func (t timeBasedHeap) Less(i int, j int) bool {
	return t[i].nextInvoke.Before(t[j].nextInvoke)
}

func (t timeBasedHeap) Swap(i int, j int) {
	t[i], t[j] = t[j], t[i]
}

func (t *timeBasedHeap) Push(x any) {
	*t = append(*t, x.(probeTask))
}

func (t *timeBasedHeap) Pop() any {
	if t.Len() == 0 {
		return nil
	}
	topVal := (*t)[t.Len()-1]
	*t = (*t)[:t.Len()-1]
	return topVal
}
