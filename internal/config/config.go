package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the cache node needs to come up: where to
// listen, where to find etcd, and the knobs the gRPC fan-out consumes.
type Config struct {
	// NodeID is the ordinal identity of this node within the cluster.
	// Fan-out order is sorted by it, so keep ids unique.
	NodeID uint64

	// NodeName is a human-readable node name used in logs and in the
	// etcd registration record.
	NodeName string

	// GRPCAddr is the host:port this node's QueryCache service listens on,
	// and the address peers dial to reach it.
	GRPCAddr string

	// HTTPAddr is the host:port of the local HTTP API (health, cache lookup).
	HTTPAddr string

	// DataDir is the root directory for the on-disk result cache.
	DataDir string

	// EtcdEndpoints are the etcd cluster endpoints used for node discovery.
	EtcdEndpoints []string

	// AuthToken is the shared internal token attached to every
	// node-to-node gRPC call and validated on the serving side.
	AuthToken string

	// ConnectTimeout bounds dialing a peer node.
	ConnectTimeout time.Duration

	// MaxMessageSizeMB caps gRPC request/response message sizes.
	MaxMessageSizeMB int

	// CompressionEnabled turns gzip on for node-to-node calls.
	CompressionEnabled bool

	// NodeTTL is the etcd lease TTL for this node's registration.
	// A node that stops renewing disappears from the directory after it.
	NodeTTL time.Duration
}

// Default returns a Config with sensible defaults for a single-node setup.
func Default() Config {
	return Config{
		NodeID:             1,
		NodeName:           "node-1",
		GRPCAddr:           "127.0.0.1:5081",
		HTTPAddr:           "127.0.0.1:5080",
		DataDir:            "data",
		EtcdEndpoints:      []string{"127.0.0.1:2379"},
		AuthToken:          "",
		ConnectTimeout:     2 * time.Second,
		MaxMessageSizeMB:   16,
		CompressionEnabled: true,
		NodeTTL:            10 * time.Second,
	}
}

// FromEnv returns Default overridden by LOGSEARCH_* environment variables.
func FromEnv() Config {
	cfg := Default()

	cfg.NodeID = getEnvUint("LOGSEARCH_NODE_ID", cfg.NodeID)
	cfg.NodeName = getEnv("LOGSEARCH_NODE_NAME", cfg.NodeName)
	cfg.GRPCAddr = getEnv("LOGSEARCH_GRPC_ADDR", cfg.GRPCAddr)
	cfg.HTTPAddr = getEnv("LOGSEARCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DataDir = getEnv("LOGSEARCH_DATA_DIR", cfg.DataDir)
	cfg.AuthToken = getEnv("LOGSEARCH_AUTH_TOKEN", cfg.AuthToken)

	if v := os.Getenv("LOGSEARCH_ETCD_ENDPOINTS"); v != "" {
		var endpoints []string
		for _, ep := range strings.Split(v, ",") {
			if ep = strings.TrimSpace(ep); ep != "" {
				endpoints = append(endpoints, ep)
			}
		}
		if len(endpoints) > 0 {
			cfg.EtcdEndpoints = endpoints
		}
	}

	cfg.ConnectTimeout = getEnvSeconds("LOGSEARCH_GRPC_CONNECT_TIMEOUT", cfg.ConnectTimeout)
	cfg.MaxMessageSizeMB = getEnvInt("LOGSEARCH_GRPC_MAX_MESSAGE_SIZE_MB", cfg.MaxMessageSizeMB)
	cfg.CompressionEnabled = getEnvBool("LOGSEARCH_GRPC_COMPRESSION", cfg.CompressionEnabled)
	cfg.NodeTTL = getEnvSeconds("LOGSEARCH_NODE_TTL", cfg.NodeTTL)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
