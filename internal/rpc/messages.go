// Package rpc carries the node-to-node QueryCache call: wire types, the
// client used by the aggregation layer, and the server answering peers from
// the local result cache. Messages travel as JSON over gRPC via the codec
// registered in codec.go.
package rpc

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "logsearch.QueryCache"

// MethodGetMultipleCachedResult is the full method path of the single call
// this service exposes.
const MethodGetMultipleCachedResult = "/" + ServiceName + "/GetMultipleCachedResult"

// QueryCacheRequest asks a peer for its cache entries overlapping a query
// window.
type QueryCacheRequest struct {
	StartTime       int64  `json:"start_time"`
	EndTime         int64  `json:"end_time"`
	IsAggregate     bool   `json:"is_aggregate"`
	QueryKey        string `json:"query_key"`
	FilePath        string `json:"file_path"`
	TimestampCol    string `json:"timestamp_col"`
	TraceID         string `json:"trace_id"`
	DiscardInterval int64  `json:"discard_interval"`
	IsDescending    bool   `json:"is_descending"`
}

// CachedResult is one raw cache item as returned by a peer. CachedResponse
// holds a serialized cache.SearchResponse; it may be empty when the peer had
// nothing usable for the claimed range.
type CachedResult struct {
	CachedResponse     []byte `json:"cached_response,omitempty"`
	HasCachedData      bool   `json:"has_cached_data"`
	CacheQueryResponse bool   `json:"cache_query_response"`
	CacheStartTime     int64  `json:"cache_start_time"`
	CacheEndTime       int64  `json:"cache_end_time"`
	IsDescending       bool   `json:"is_descending"`
}

// QueryCacheResponse is the peer's full answer: zero or more cache items.
type QueryCacheResponse struct {
	Results []CachedResult `json:"results"`
}
