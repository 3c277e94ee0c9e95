// Package cluster models the set of query-capable nodes and how the
// process discovers them. The aggregation layer consumes a Directory
// snapshot per request; it never watches membership itself.
package cluster

import (
	"context"
	"sort"
)

// Node roles. A node may carry several.
const (
	RoleQuerier  = "querier"
	RoleIngester = "ingester"
)

// Node statuses as stored in the directory.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ClusterNode describes one member of the cluster as registered in the
// node directory.
type ClusterNode struct {
	ID       uint64   `json:"id"`
	UUID     string   `json:"uuid"`
	Name     string   `json:"name"`
	GRPCAddr string   `json:"grpc_addr"`
	Roles    []string `json:"roles"`
	Status   string   `json:"status"`
}

// IsQuerier reports whether the node can serve search/cache-lookup requests.
func (n *ClusterNode) IsQuerier() bool {
	for _, r := range n.Roles {
		if r == RoleQuerier {
			return true
		}
	}
	return false
}

// IsOnline reports whether the node's registration says it is serving.
func (n *ClusterNode) IsOnline() bool {
	return n.Status == StatusOnline
}

// Directory supplies the live node set and the identity material the
// aggregation layer needs. Implementations return snapshots; callers must
// not assume two calls see the same membership.
type Directory interface {
	// ListOnlineQueryNodes returns the online, query-capable nodes.
	ListOnlineQueryNodes(ctx context.Context) ([]ClusterNode, error)

	// LocalNode returns this process's own registration, or nil if it is
	// not (or no longer) present in the directory.
	LocalNode(ctx context.Context) (*ClusterNode, error)

	// InternalToken returns the shared token attached to node-to-node calls.
	InternalToken() (string, error)
}

// DedupeByGRPCAddr removes nodes sharing a gRPC address and returns the
// survivors ordered by node id. Duplicate registrations must not be
// queried twice; the id order keeps fan-out reproducible for tracing.
func DedupeByGRPCAddr(nodes []ClusterNode) []ClusterNode {
	if len(nodes) == 0 {
		return nodes
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].GRPCAddr < nodes[j].GRPCAddr
	})

	deduped := nodes[:1]
	for _, n := range nodes[1:] {
		if n.GRPCAddr != deduped[len(deduped)-1].GRPCAddr {
			deduped = append(deduped, n)
		}
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].ID < deduped[j].ID
	})
	return deduped
}
