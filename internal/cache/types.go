// Package cache holds the shared cache-entry representation used by the
// aggregation layer and a disk-backed store of previously computed search
// responses for the local node.
package cache

// SearchResponse is a previously computed (partial) search result payload.
// It is what actually gets cached; the surrounding CachedQueryResponse only
// records what time range it covers.
type SearchResponse struct {
	Took      int64            `json:"took"`
	Total     int64            `json:"total"`
	From      int64            `json:"from"`
	Size      int64            `json:"size"`
	Hits      []map[string]any `json:"hits"`
	IsPartial bool             `json:"is_partial,omitempty"`
}

// Delta is a sub-range of a cache entry that is not actually covered by it.
// Entries enter the aggregation layer with no deltas; downstream consumers
// compute them when planning the residual query.
type Delta struct {
	StartTime int64 `json:"delta_start_time"`
	EndTime   int64 `json:"delta_end_time"`
}

// CacheQueryRequest is the cacheable shape of one incoming query: the time
// window plus the fields that decide whether a cache entry is usable for it.
// Immutable once constructed; fan-out tasks receive copies.
type CacheQueryRequest struct {
	StartTime       int64  `json:"q_start_time"`
	EndTime         int64  `json:"q_end_time"`
	IsAggregate     bool   `json:"is_aggregate"`
	TSColumn        string `json:"ts_column"`
	DiscardInterval int64  `json:"discard_interval"`
	IsDescending    bool   `json:"is_descending"`
}

// CachedQueryResponse is one cache entry: a previously computed payload
// tagged with the time range it claims to cover.
type CachedQueryResponse struct {
	CachedResponse     SearchResponse `json:"cached_response"`
	Deltas             []Delta        `json:"deltas"`
	HasCachedData      bool           `json:"has_cached_data"`
	CacheQueryResponse bool           `json:"cache_query_response"`
	ResponseStartTime  int64          `json:"response_start_time"`
	ResponseEndTime    int64          `json:"response_end_time"`
	TSColumn           string         `json:"ts_column"`
	IsDescending       bool           `json:"is_descending"`
	// Limit is the row cap; -1 means unlimited. Set uniformly to -1 when
	// entries are pooled across sources, since per-entry limits stop being
	// meaningful at that point.
	Limit int64 `json:"limit"`
}
