package rpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"LogSearch/internal/cluster"
)

// TokenSource supplies the internal auth token attached to outgoing calls.
// cluster.Directory satisfies it.
type TokenSource interface {
	InternalToken() (string, error)
}

// Options are the transport knobs the client consumes; see config.Config.
type Options struct {
	ConnectTimeout     time.Duration
	MaxMessageSizeMB   int
	CompressionEnabled bool
}

// Client issues QueryCache calls to peer nodes. One Client serves all peers;
// connections are per call, bounded by the connect timeout.
type Client struct {
	opts   Options
	tokens TokenSource
	logger *zap.Logger
}

// NewClient returns a client using tokens for call credentials.
func NewClient(opts Options, tokens TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: opts, tokens: tokens, logger: logger}
}

// GetMultipleCachedResults asks one peer node for its cache entries matching
// req. Failures are classified: a dial failure wraps ErrNodeUnreachable, a
// remote Internal status carrying a coded JSON message becomes *CodedError,
// and any other remote error wraps ErrQuerierNode. All branches are logged
// with the trace id and node address.
func (c *Client) GetMultipleCachedResults(ctx context.Context, node cluster.ClusterNode, req QueryCacheRequest) ([]CachedResult, error) {
	token, err := c.tokens.InternalToken()
	if err != nil {
		c.logger.Error("get cached results: issue internal token",
			zap.String("trace_id", req.TraceID),
			zap.String("node_addr", node.GRPCAddr),
			zap.Error(err),
		)
		return nil, fmt.Errorf("issue internal token: %w", err)
	}

	c.logger.Info("get cached results: requesting node",
		zap.String("trace_id", req.TraceID),
		zap.String("node_addr", node.GRPCAddr),
		zap.Uint64("node_id", node.ID),
	)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()
	conn, err := grpc.DialContext(dialCtx, node.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		c.logger.Error("get cached results: connect",
			zap.String("trace_id", req.TraceID),
			zap.String("node_addr", node.GRPCAddr),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s", ErrNodeUnreachable, node.GRPCAddr)
	}
	defer conn.Close()

	maxSize := c.opts.MaxMessageSizeMB * 1024 * 1024
	callOpts := []grpc.CallOption{
		grpc.CallContentSubtype(CodecName),
		grpc.MaxCallRecvMsgSize(maxSize),
		grpc.MaxCallSendMsgSize(maxSize),
	}
	if c.opts.CompressionEnabled {
		callOpts = append(callOpts, grpc.UseCompressor(gzip.Name))
	}

	callCtx := ctx
	if token != "" {
		callCtx = metadata.AppendToOutgoingContext(ctx, "authorization", token)
	}

	var resp QueryCacheResponse
	if err := conn.Invoke(callCtx, MethodGetMultipleCachedResult, &req, &resp, callOpts...); err != nil {
		c.logger.Error("get cached results: call failed",
			zap.String("trace_id", req.TraceID),
			zap.String("node_addr", node.GRPCAddr),
			zap.Error(err),
		)
		return nil, classifyRemoteError(err)
	}

	return resp.Results, nil
}

// classifyRemoteError maps a failed call onto the error taxonomy. An
// Internal status whose message parses as a CodedError keeps its structured
// code; everything else is a generic querier node error.
func classifyRemoteError(err error) error {
	st, _ := status.FromError(err)
	if st.Code() == codes.Internal {
		if ce, perr := ParseCodedError(st.Message()); perr == nil {
			return ce
		}
	}
	return fmt.Errorf("%w: %s", ErrQuerierNode, st.Message())
}
