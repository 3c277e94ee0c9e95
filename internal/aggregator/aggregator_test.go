package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LogSearch/internal/cache"
	"LogSearch/internal/cluster"
	"LogSearch/internal/rpc"
)

// mockDirectory implements cluster.Directory for tests.
type mockDirectory struct {
	nodes     []cluster.ClusterNode
	localNode *cluster.ClusterNode
	listErr   error
}

func (m *mockDirectory) ListOnlineQueryNodes(ctx context.Context) ([]cluster.ClusterNode, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]cluster.ClusterNode, len(m.nodes))
	copy(out, m.nodes)
	return out, nil
}

func (m *mockDirectory) LocalNode(ctx context.Context) (*cluster.ClusterNode, error) {
	return m.localNode, nil
}

func (m *mockDirectory) InternalToken() (string, error) {
	return "test-token", nil
}

// mockClient implements CacheClient with per-address behavior.
type mockClient struct {
	mu      sync.Mutex
	fetch   func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error)
	queried []string
}

func (m *mockClient) GetMultipleCachedResults(ctx context.Context, node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
	m.mu.Lock()
	m.queried = append(m.queried, node.GRPCAddr)
	m.mu.Unlock()
	if m.fetch != nil {
		return m.fetch(node, req)
	}
	return nil, nil
}

// mockLocal implements LocalCache.
type mockLocal struct {
	entries []cache.CachedQueryResponse
}

func (m *mockLocal) GetCachedResults(ctx context.Context, filePath, traceID string, req cache.CacheQueryRequest) []cache.CachedQueryResponse {
	return m.entries
}

func testNode(id uint64, uuid, addr string) cluster.ClusterNode {
	return cluster.ClusterNode{
		ID:       id,
		UUID:     uuid,
		GRPCAddr: addr,
		Roles:    []string{cluster.RoleQuerier},
		Status:   cluster.StatusOnline,
	}
}

func rawItem(t *testing.T, start, end int64, hits int) rpc.CachedResult {
	t.Helper()
	res := cache.SearchResponse{Total: int64(hits)}
	for i := 0; i < hits; i++ {
		res.Hits = append(res.Hits, map[string]any{"_timestamp": float64(start) + float64(i)})
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	return rpc.CachedResult{
		CachedResponse:     data,
		HasCachedData:      true,
		CacheQueryResponse: true,
		CacheStartTime:     start,
		CacheEndTime:       end,
	}
}

func testRequest() cache.CacheQueryRequest {
	return cache.CacheQueryRequest{StartTime: 0, EndTime: 1000, TSColumn: "_timestamp"}
}

func TestGetCachedResults_NoNodesNoLocal(t *testing.T) {
	agg := New(&mockDirectory{}, &mockClient{}, nil, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())
	assert.Empty(t, got)
}

func TestGetCachedResults_DirectoryErrorIsCacheMiss(t *testing.T) {
	dir := &mockDirectory{listErr: errors.New("etcd down")}
	agg := New(dir, &mockClient{}, nil, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())
	assert.Empty(t, got)
}

func TestGetCachedResults_RemoteEntries(t *testing.T) {
	dir := &mockDirectory{nodes: []cluster.ClusterNode{
		testNode(1, "a", "10.0.0.1:5081"),
		testNode(2, "b", "10.0.0.2:5081"),
	}}
	client := &mockClient{fetch: func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
		switch node.UUID {
		case "a":
			return []rpc.CachedResult{rawItem(t, 0, 400, 2)}, nil
		default:
			return []rpc.CachedResult{rawItem(t, 400, 800, 2)}, nil
		}
	}}

	agg := New(dir, client, nil, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	require.Len(t, got, 2)
	assert.Len(t, client.queried, 2)
	for _, e := range got {
		assert.Equal(t, int64(-1), e.Limit)
		assert.Equal(t, "_timestamp", e.TSColumn)
	}
}

func TestGetCachedResults_PartialFailureIsolation(t *testing.T) {
	// The aggregate with one unreachable peer equals the aggregate with
	// that peer absent from the directory.
	nodes := []cluster.ClusterNode{
		testNode(1, "a", "10.0.0.1:5081"),
		testNode(2, "b", "10.0.0.2:5081"),
		testNode(3, "c", "10.0.0.3:5081"),
	}
	fetch := func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
		switch node.UUID {
		case "a":
			return []rpc.CachedResult{rawItem(t, 0, 300, 1)}, nil
		case "b":
			return nil, rpc.ErrNodeUnreachable
		default:
			return []rpc.CachedResult{rawItem(t, 300, 600, 1)}, nil
		}
	}

	withFailure := New(&mockDirectory{nodes: nodes}, &mockClient{fetch: fetch}, nil, nil).
		GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	withoutPeer := New(&mockDirectory{nodes: []cluster.ClusterNode{nodes[0], nodes[2]}},
		&mockClient{fetch: fetch}, nil, nil).
		GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	assert.Equal(t, withoutPeer, withFailure)
	require.Len(t, withFailure, 2)
}

func TestGetCachedResults_LocalNodeExcludedFromFanout(t *testing.T) {
	local := testNode(1, "local-uuid", "10.0.0.1:5081")
	dir := &mockDirectory{
		nodes:     []cluster.ClusterNode{local, testNode(2, "b", "10.0.0.2:5081")},
		localNode: &local,
	}
	client := &mockClient{}
	localCache := &mockLocal{entries: []cache.CachedQueryResponse{
		{
			CachedResponse:    cache.SearchResponse{Hits: []map[string]any{{"x": 1.0}}},
			ResponseStartTime: 100,
			ResponseEndTime:   200,
			HasCachedData:     true,
			Limit:             -1,
		},
	}}

	agg := New(dir, client, localCache, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	assert.Equal(t, []string{"10.0.0.2:5081"}, client.queried)
	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].ResponseStartTime)
}

func TestGetCachedResults_OnlyLocal(t *testing.T) {
	local := testNode(1, "local-uuid", "10.0.0.1:5081")
	dir := &mockDirectory{nodes: []cluster.ClusterNode{local}, localNode: &local}
	client := &mockClient{}
	localCache := &mockLocal{entries: []cache.CachedQueryResponse{
		{
			CachedResponse:    cache.SearchResponse{Hits: []map[string]any{{"x": 1.0}}},
			ResponseStartTime: 0,
			ResponseEndTime:   500,
			Limit:             -1,
		},
	}}

	agg := New(dir, client, localCache, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	assert.Empty(t, client.queried)
	require.Len(t, got, 1)
}

func TestGetCachedResults_DuplicateAddressQueriedOnce(t *testing.T) {
	dir := &mockDirectory{nodes: []cluster.ClusterNode{
		testNode(1, "a", "10.0.0.1:5081"),
		testNode(2, "b", "10.0.0.1:5081"), // same address, different uuid
	}}
	client := &mockClient{}

	agg := New(dir, client, nil, nil)
	agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	assert.Equal(t, []string{"10.0.0.1:5081"}, client.queried)
}

func TestGetCachedResults_ZeroHitItemsDiscarded(t *testing.T) {
	dir := &mockDirectory{nodes: []cluster.ClusterNode{testNode(1, "a", "10.0.0.1:5081")}}
	client := &mockClient{fetch: func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
		return []rpc.CachedResult{
			rawItem(t, 0, 900, 0), // no hits: would dominate selection if kept
			rawItem(t, 100, 200, 1),
		}, nil
	}}

	agg := New(dir, client, nil, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].ResponseStartTime)
}

func TestGetCachedResults_MalformedPayloadDegrades(t *testing.T) {
	dir := &mockDirectory{nodes: []cluster.ClusterNode{testNode(1, "a", "10.0.0.1:5081")}}
	client := &mockClient{fetch: func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
		return []rpc.CachedResult{
			{CachedResponse: []byte("{broken"), HasCachedData: true, CacheStartTime: 0, CacheEndTime: 900},
			{HasCachedData: true, CacheStartTime: 0, CacheEndTime: 900}, // no payload at all
			rawItem(t, 100, 200, 1),
		}, nil
	}}

	agg := New(dir, client, nil, nil)
	got := agg.GetCachedResults(context.Background(), "qk", "fp", "t1", testRequest())

	require.Len(t, got, 1)
	assert.Equal(t, int64(100), got[0].ResponseStartTime)
}

func TestGetCachedResults_RequestFieldsReachClient(t *testing.T) {
	dir := &mockDirectory{nodes: []cluster.ClusterNode{testNode(1, "a", "10.0.0.1:5081")}}
	var gotReq rpc.QueryCacheRequest
	client := &mockClient{fetch: func(node cluster.ClusterNode, req rpc.QueryCacheRequest) ([]rpc.CachedResult, error) {
		gotReq = req
		return nil, nil
	}}

	cacheReq := cache.CacheQueryRequest{
		StartTime:       100,
		EndTime:         900,
		IsAggregate:     true,
		TSColumn:        "ts",
		DiscardInterval: 60,
		IsDescending:    true,
	}
	agg := New(dir, client, nil, nil)
	agg.GetCachedResults(context.Background(), "query-key", "file-path", "trace-1", cacheReq)

	assert.Equal(t, rpc.QueryCacheRequest{
		StartTime:       100,
		EndTime:         900,
		IsAggregate:     true,
		QueryKey:        "query-key",
		FilePath:        "file-path",
		TimestampCol:    "ts",
		TraceID:         "trace-1",
		DiscardInterval: 60,
		IsDescending:    true,
	}, gotReq)
}
