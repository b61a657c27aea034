package vector

import (
	"container/heap"
	"sort"
)

// TopK returns the indices of the k highest scores, best first. Equal scores keep
// corpus order (lower index first). k is clamped to len(scores); k < 1 yields nil.
func TopK(scores []float64, k int) []int {
	n := len(scores)
	if k > n {
		k = n
	}
	if k < 1 {
		return nil
	}
	if k*4 < n {
		return topKHeap(scores, k)
	}
	return topKSort(scores, k)
}

// ranksBefore reports whether entry i ranks ahead of entry j.
func ranksBefore(scores []float64, i, j int) bool {
	if scores[i] != scores[j] {
		return scores[i] > scores[j]
	}
	return i < j
}

func topKSort(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return ranksBefore(scores, idx[a], idx[b]) })
	return idx[:k]
}

// worstFirst is a min-heap on rank: the root is the weakest of the kept entries.
type worstFirst struct {
	scores []float64
	idx    []int
}

func (h *worstFirst) Len() int           { return len(h.idx) }
func (h *worstFirst) Less(a, b int) bool { return ranksBefore(h.scores, h.idx[b], h.idx[a]) }
func (h *worstFirst) Swap(a, b int)      { h.idx[a], h.idx[b] = h.idx[b], h.idx[a] }
func (h *worstFirst) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *worstFirst) Pop() any {
	last := h.idx[len(h.idx)-1]
	h.idx = h.idx[:len(h.idx)-1]
	return last
}

// topKHeap keeps a bounded heap of k entries: O(n log k) selection, then O(k log k) ordering.
func topKHeap(scores []float64, k int) []int {
	h := &worstFirst{scores: scores, idx: make([]int, 0, k)}
	for i := range scores {
		if h.Len() < k {
			heap.Push(h, i)
			continue
		}
		if ranksBefore(scores, i, h.idx[0]) {
			h.idx[0] = i
			heap.Fix(h, 0)
		}
	}
	out := h.idx
	sort.Slice(out, func(a, b int) bool { return ranksBefore(scores, out[a], out[b]) })
	return out
}
