package executor

import "github.com/vk/corpusmill/internal/dag"

// readyQueue is a heap of runnable jobs ordered by priority, highest first.
// Ties fall back to job creation sequence so equally urgent work runs in a
// stable order.
type readyQueue []*dag.Job

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].Priority() != q[j].Priority() {
		return q[i].Priority() > q[j].Priority()
	}
	return q[i].Seq() < q[j].Seq()
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) { *q = append(*q, x.(*dag.Job)) }

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return j
}
