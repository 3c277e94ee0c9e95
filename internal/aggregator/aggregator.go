// Package aggregator implements cross-node cache retrieval: it fans a
// cache-lookup request out to every reachable querier node and the local
// node, tolerates per-node failures, and reconciles the pooled entries into
// a non-overlapping, maximal-coverage selection.
package aggregator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"LogSearch/internal/cache"
	"LogSearch/internal/cluster"
	"LogSearch/internal/rpc"
)

// CacheClient issues the remote cache-lookup call to one peer node.
// rpc.Client implements it.
type CacheClient interface {
	GetMultipleCachedResults(ctx context.Context, node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error)
}

// LocalCache is the in-process lookup for the requesting node's own entries.
// cache.DiskCache implements it.
type LocalCache interface {
	GetCachedResults(ctx context.Context, filePath, traceID string, req cache.CacheQueryRequest) []cache.CachedQueryResponse
}

// Aggregator is the scatter coordinator. It is stateless; every call takes
// a fresh membership snapshot from the directory.
type Aggregator struct {
	directory cluster.Directory
	client    CacheClient
	local     LocalCache
	logger    *zap.Logger
}

// New creates an Aggregator. local may be nil on nodes without a result
// cache of their own.
func New(directory cluster.Directory, client CacheClient, local LocalCache, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		directory: directory,
		client:    client,
		local:     local,
		logger:    logger,
	}
}

// nodeResult collects one fan-out task's outcome. Each task owns its slot,
// so the join needs no locking.
type nodeResult struct {
	node  cluster.ClusterNode
	items []rpc.CachedResult
	err   error
}

// GetCachedResults fans the cache lookup out to all reachable querier nodes
// plus the local cache, and returns the reconciled, pairwise-disjoint entry
// selection. It never fails: any peer error is logged and that peer's
// contribution dropped, and an empty result is simply a full cache miss.
func (a *Aggregator) GetCachedResults(ctx context.Context, queryKey, filePath, traceID string, cacheReq cache.CacheQueryRequest) []cache.CachedQueryResponse {
	nodes, err := a.directory.ListOnlineQueryNodes(ctx)
	if err != nil {
		// An unanswerable directory is a full cache miss, not a failure.
		a.logger.Error("get cached results: list query nodes",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		return nil
	}

	// A node registered twice must only be queried once; id order keeps the
	// fan-out reproducible for tracing.
	nodes = cluster.DedupeByGRPCAddr(nodes)

	localNode, err := a.directory.LocalNode(ctx)
	if err != nil {
		a.logger.Warn("get cached results: identify local node",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}

	// The local node is served through the in-process path, not the remote
	// fan-out.
	remotes := nodes[:0]
	for _, node := range nodes {
		if !node.IsQuerier() {
			continue
		}
		if localNode != nil && node.UUID == localNode.UUID {
			continue
		}
		remotes = append(remotes, node)
	}

	if len(remotes) == 0 && localNode == nil {
		a.logger.Error("get cached results: no querier node online",
			zap.String("trace_id", traceID),
		)
		return nil
	}

	// Fan out. Tasks share no mutable state; each gets its own copy of the
	// request fields and owns one result slot.
	results := make([]nodeResult, len(remotes))
	var wg sync.WaitGroup
	for i, node := range remotes {
		wg.Add(1)
		go func(i int, node cluster.ClusterNode) {
			defer wg.Done()
			req := rpc.QueryCacheRequest{
				StartTime:       cacheReq.StartTime,
				EndTime:         cacheReq.EndTime,
				IsAggregate:     cacheReq.IsAggregate,
				QueryKey:        queryKey,
				FilePath:        filePath,
				TimestampCol:    cacheReq.TSColumn,
				TraceID:         traceID,
				DiscardInterval: cacheReq.DiscardInterval,
				IsDescending:    cacheReq.IsDescending,
			}
			items, err := a.client.GetMultipleCachedResults(ctx, node, req)
			results[i] = nodeResult{node: node, items: items, err: err}
		}(i, node)
	}
	wg.Wait()

	// Pool successful contributions; a failed task never aborts the call.
	var pooled []cache.CachedQueryResponse
	for _, r := range results {
		if r.err != nil {
			a.logger.Error("get cached results: node lookup failed",
				zap.String("trace_id", traceID),
				zap.String("node_addr", r.node.GRPCAddr),
				zap.Error(r.err),
			)
			continue
		}
		pooled = append(pooled, a.normalize(r.node, r.items, cacheReq, traceID)...)
	}

	// The local result is appended after the remote pool, never interleaved.
	if a.local != nil {
		pooled = append(pooled, a.local.GetCachedResults(ctx, filePath, traceID, cacheReq)...)
	}

	return Reconcile(pooled, cacheReq)
}
