package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func querier(id uint64, uuid, addr string) ClusterNode {
	return ClusterNode{
		ID:       id,
		UUID:     uuid,
		GRPCAddr: addr,
		Roles:    []string{RoleQuerier},
		Status:   StatusOnline,
	}
}

func TestIsQuerier(t *testing.T) {
	n := ClusterNode{Roles: []string{RoleIngester}}
	assert.False(t, n.IsQuerier())

	n.Roles = append(n.Roles, RoleQuerier)
	assert.True(t, n.IsQuerier())
}

func TestDedupeByGRPCAddr(t *testing.T) {
	nodes := []ClusterNode{
		querier(3, "c", "10.0.0.3:5081"),
		querier(1, "a", "10.0.0.1:5081"),
		querier(4, "d", "10.0.0.1:5081"), // same address as id 1
		querier(2, "b", "10.0.0.2:5081"),
	}

	got := DedupeByGRPCAddr(nodes)

	addrs := make(map[string]int)
	for _, n := range got {
		addrs[n.GRPCAddr]++
	}
	for addr, count := range addrs {
		assert.Equal(t, 1, count, "address %s queried more than once", addr)
	}

	// Ordered by node id after deduplication.
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].ID, got[i].ID)
	}
	assert.Len(t, got, 3)
}

func TestDedupeByGRPCAddr_Empty(t *testing.T) {
	assert.Empty(t, DedupeByGRPCAddr(nil))
}
