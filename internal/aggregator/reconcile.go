package aggregator

import (
	"sort"

	"LogSearch/internal/cache"
)

// Reconcile selects a pairwise non-overlapping, maximal-coverage subset of
// the pooled cache entries relevant to the request window, ordered by
// selection.
//
// The policy is greedy: pick the entry with the largest overlap against the
// query window, drop everything overlapping it, repeat on what remains. It
// is not an optimal interval cover — an overlapping-but-not-selected entry
// is discarded even when it would have filled a gap the selected one leaves.
// Downstream gap-filling depends on this exact behavior; do not replace it
// with an exhaustive cover without revisiting that contract.
func Reconcile(entries []cache.CachedQueryResponse, req cache.CacheQueryRequest) []cache.CachedQueryResponse {
	var selected []cache.CachedQueryResponse
	reconcile(entries, req, &selected)
	return selected
}

func reconcile(entries []cache.CachedQueryResponse, req cache.CacheQueryRequest, selected *[]cache.CachedQueryResponse) {
	if len(entries) == 0 {
		return
	}

	// Entries wholly outside the query window are gone for good; recursive
	// calls never see them again.
	relevant := make([]cache.CachedQueryResponse, 0, len(entries))
	for _, e := range entries {
		if e.ResponseStartTime <= req.EndTime && e.ResponseEndTime >= req.StartTime {
			relevant = append(relevant, e)
		}
	}
	if len(relevant) == 0 {
		return
	}

	// Stable sort by start time; on equal overlap the entry sorting first
	// wins, which makes tie-breaks deterministic.
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].ResponseStartTime < relevant[j].ResponseStartTime
	})

	best := 0
	bestOverlap := windowOverlap(relevant[0], req)
	for i := 1; i < len(relevant); i++ {
		if ov := windowOverlap(relevant[i], req); ov > bestOverlap {
			best, bestOverlap = i, ov
		}
	}
	chosen := relevant[best]
	*selected = append(*selected, chosen)

	// Keep only entries disjoint from the chosen one. The chosen entry is
	// always dropped (even when zero-width, where the disjointness test
	// would keep it), so the working set strictly shrinks and recursion
	// terminates within len(entries) steps.
	remaining := relevant[:0]
	for i, e := range relevant {
		if i == best {
			continue
		}
		if e.ResponseEndTime <= chosen.ResponseStartTime || e.ResponseStartTime >= chosen.ResponseEndTime {
			remaining = append(remaining, e)
		}
	}
	reconcile(remaining, req, selected)
}

// windowOverlap is the length of the intersection between the entry's
// claimed range and the query window.
func windowOverlap(e cache.CachedQueryResponse, req cache.CacheQueryRequest) int64 {
	return min(e.ResponseEndTime, req.EndTime) - max(e.ResponseStartTime, req.StartTime)
}
