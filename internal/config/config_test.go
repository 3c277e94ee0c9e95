package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, Default(), cfg)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LOGSEARCH_NODE_ID", "7")
	t.Setenv("LOGSEARCH_GRPC_ADDR", "10.0.0.5:6081")
	t.Setenv("LOGSEARCH_ETCD_ENDPOINTS", "10.0.0.1:2379, 10.0.0.2:2379")
	t.Setenv("LOGSEARCH_GRPC_CONNECT_TIMEOUT", "5")
	t.Setenv("LOGSEARCH_GRPC_MAX_MESSAGE_SIZE_MB", "64")
	t.Setenv("LOGSEARCH_GRPC_COMPRESSION", "false")

	cfg := FromEnv()
	assert.Equal(t, uint64(7), cfg.NodeID)
	assert.Equal(t, "10.0.0.5:6081", cfg.GRPCAddr)
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.EtcdEndpoints)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 64, cfg.MaxMessageSizeMB)
	assert.False(t, cfg.CompressionEnabled)
}

func TestFromEnv_IgnoresGarbage(t *testing.T) {
	t.Setenv("LOGSEARCH_GRPC_MAX_MESSAGE_SIZE_MB", "not-a-number")
	t.Setenv("LOGSEARCH_GRPC_CONNECT_TIMEOUT", "-3")

	cfg := FromEnv()
	assert.Equal(t, Default().MaxMessageSizeMB, cfg.MaxMessageSizeMB)
	assert.Equal(t, Default().ConnectTimeout, cfg.ConnectTimeout)
}
