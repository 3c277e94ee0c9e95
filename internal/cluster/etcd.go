package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// NodePrefix is the etcd key prefix under which nodes register themselves.
const NodePrefix = "/logsearch/nodes/"

const revokeTimeout = 3 * time.Second

var ErrNoToken = errors.New("cluster: internal auth token not configured")

// EtcdDirectory is a Directory backed by node registrations in etcd.
// Each node writes its ClusterNode record (JSON) under NodePrefix with a
// leased TTL, so crashed nodes age out of the listing on their own.
type EtcdDirectory struct {
	cli       *clientv3.Client
	localUUID string
	token     string
	logger    *zap.Logger
}

// NewEtcdDirectory returns a directory reading node registrations from cli.
// localUUID identifies this process's own registration; token is the shared
// internal auth token handed to the RPC layer.
func NewEtcdDirectory(cli *clientv3.Client, localUUID, token string, logger *zap.Logger) *EtcdDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdDirectory{
		cli:       cli,
		localUUID: localUUID,
		token:     token,
		logger:    logger,
	}
}

var _ Directory = (*EtcdDirectory)(nil)

// ListOnlineQueryNodes returns a snapshot of the online querier nodes.
// Registrations that fail to decode are skipped, not fatal: one bad record
// must not take discovery down.
func (d *EtcdDirectory) ListOnlineQueryNodes(ctx context.Context) ([]ClusterNode, error) {
	resp, err := d.cli.Get(ctx, NodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list nodes from etcd: %w", err)
	}

	var nodes []ClusterNode
	for _, kv := range resp.Kvs {
		var node ClusterNode
		if err := json.Unmarshal(kv.Value, &node); err != nil {
			d.logger.Warn("skipping undecodable node registration",
				zap.String("key", string(kv.Key)),
				zap.Error(err),
			)
			continue
		}
		if node.IsOnline() && node.IsQuerier() {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// LocalNode returns this process's registration, or nil when the node is
// not present in the directory (e.g. its lease expired).
func (d *EtcdDirectory) LocalNode(ctx context.Context) (*ClusterNode, error) {
	resp, err := d.cli.Get(ctx, NodePrefix+d.localUUID)
	if err != nil {
		return nil, fmt.Errorf("get local node from etcd: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var node ClusterNode
	if err := json.Unmarshal(resp.Kvs[0].Value, &node); err != nil {
		return nil, fmt.Errorf("decode local node registration: %w", err)
	}
	return &node, nil
}

// InternalToken returns the shared internal auth token.
func (d *EtcdDirectory) InternalToken() (string, error) {
	if d.token == "" {
		return "", ErrNoToken
	}
	return d.token, nil
}

// Register writes node under NodePrefix with a lease of ttlSeconds and keeps
// the lease alive until ctx is cancelled. The returned function revokes the
// lease, removing the node from the directory immediately.
func Register(ctx context.Context, cli *clientv3.Client, node ClusterNode, ttlSeconds int64, logger *zap.Logger) (func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("encode node registration: %w", err)
	}

	lease, err := cli.Grant(ctx, ttlSeconds)
	if err != nil {
		return nil, fmt.Errorf("grant node lease: %w", err)
	}

	key := NodePrefix + node.UUID
	if _, err := cli.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return nil, fmt.Errorf("register node %s: %w", key, err)
	}

	keepAlive, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return nil, fmt.Errorf("keep node lease alive: %w", err)
	}

	// Drain keep-alive responses; the channel closes when ctx is cancelled
	// or the lease is lost.
	go func() {
		for range keepAlive {
		}
		logger.Info("node lease keep-alive stopped", zap.String("uuid", node.UUID))
	}()

	logger.Info("node registered",
		zap.String("uuid", node.UUID),
		zap.String("grpc_addr", node.GRPCAddr),
		zap.Int64("ttl_seconds", ttlSeconds),
	)

	return func() {
		// Best effort: the lease expires on its own if this fails.
		revokeCtx, cancel := context.WithTimeout(context.Background(), revokeTimeout)
		defer cancel()
		if _, err := cli.Revoke(revokeCtx, lease.ID); err != nil {
			logger.Warn("revoke node lease", zap.String("uuid", node.UUID), zap.Error(err))
		}
	}, nil
}
