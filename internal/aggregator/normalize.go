package aggregator

import (
	"encoding/json"

	"go.uber.org/zap"

	"LogSearch/internal/cache"
	"LogSearch/internal/cluster"
	"LogSearch/internal/rpc"
)

// normalize converts one peer's raw cache items into the shared entry
// representation. A missing or malformed payload degrades to an empty
// response for that item, never a failure, and items without hits are
// dropped since they add no coverage. Limit is forced to -1: per-entry
// limits stop meaning anything once entries are pooled across sources.
func (a *Aggregator) normalize(node cluster.ClusterNode, items []rpc.CachedResult, cacheReq cache.CacheQueryRequest, traceID string) []cache.CachedQueryResponse {
	var entries []cache.CachedQueryResponse
	for _, item := range items {
		var res cache.SearchResponse
		switch {
		case len(item.CachedResponse) == 0:
			a.logger.Error("get cached results: item without payload",
				zap.String("trace_id", traceID),
				zap.String("node_addr", node.GRPCAddr),
			)
		default:
			if err := json.Unmarshal(item.CachedResponse, &res); err != nil {
				a.logger.Error("get cached results: payload parse error",
					zap.String("trace_id", traceID),
					zap.String("node_addr", node.GRPCAddr),
					zap.Error(err),
				)
				res = cache.SearchResponse{}
			}
		}

		if len(res.Hits) == 0 {
			continue
		}

		entries = append(entries, cache.CachedQueryResponse{
			CachedResponse:     res,
			Deltas:             nil,
			HasCachedData:      item.HasCachedData,
			CacheQueryResponse: item.CacheQueryResponse,
			ResponseStartTime:  item.CacheStartTime,
			ResponseEndTime:    item.CacheEndTime,
			TSColumn:           cacheReq.TSColumn,
			IsDescending:       item.IsDescending,
			Limit:              -1,
		})
	}
	return entries
}
