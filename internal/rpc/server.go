package rpc

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"LogSearch/internal/cache"
)

// CacheStore is the local result cache the server answers peers from.
type CacheStore interface {
	GetCachedResults(ctx context.Context, filePath, traceID string, req cache.CacheQueryRequest) []cache.CachedQueryResponse
}

// QueryCacheServer is the server-side contract of the QueryCache service.
type QueryCacheServer interface {
	GetMultipleCachedResult(ctx context.Context, req *QueryCacheRequest) (*QueryCacheResponse, error)
}

// Server answers QueryCache calls from the local result cache.
type Server struct {
	store  CacheStore
	logger *zap.Logger
}

// NewServer returns a Server reading from store.
func NewServer(store CacheStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger}
}

var _ QueryCacheServer = (*Server)(nil)

// GetMultipleCachedResult looks up local cache entries for the request
// window and returns them with their payloads serialized. An entry whose
// payload fails to serialize is skipped; the remaining entries still go out.
func (s *Server) GetMultipleCachedResult(ctx context.Context, req *QueryCacheRequest) (*QueryCacheResponse, error) {
	cacheReq := cache.CacheQueryRequest{
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		IsAggregate:     req.IsAggregate,
		TSColumn:        req.TimestampCol,
		DiscardInterval: req.DiscardInterval,
		IsDescending:    req.IsDescending,
	}

	entries := s.store.GetCachedResults(ctx, req.FilePath, req.TraceID, cacheReq)
	results := make([]CachedResult, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e.CachedResponse)
		if err != nil {
			s.logger.Error("serve cached results: encode payload",
				zap.String("trace_id", req.TraceID),
				zap.String("file_path", req.FilePath),
				zap.Error(err),
			)
			continue
		}
		results = append(results, CachedResult{
			CachedResponse:     data,
			HasCachedData:      e.HasCachedData,
			CacheQueryResponse: e.CacheQueryResponse,
			CacheStartTime:     e.ResponseStartTime,
			CacheEndTime:       e.ResponseEndTime,
			IsDescending:       e.IsDescending,
		})
	}

	s.logger.Info("served cached results",
		zap.String("trace_id", req.TraceID),
		zap.String("file_path", req.FilePath),
		zap.Int("entries", len(results)),
	)
	return &QueryCacheResponse{Results: results}, nil
}

// RegisterQueryCacheServer registers srv on a grpc.Server.
func RegisterQueryCacheServer(s *grpc.Server, srv QueryCacheServer) {
	s.RegisterService(&queryCacheServiceDesc, srv)
}

var queryCacheServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryCacheServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetMultipleCachedResult",
			Handler:    getMultipleCachedResultHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "logsearch querycache",
}

func getMultipleCachedResultHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryCacheRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(QueryCacheServer).GetMultipleCachedResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodGetMultipleCachedResult,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(QueryCacheServer).GetMultipleCachedResult(ctx, req.(*QueryCacheRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// AuthUnaryInterceptor rejects calls whose "authorization" metadata does not
// match the configured internal token. With an empty token auth is disabled.
func AuthUnaryInterceptor(token string, logger *zap.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 || values[0] != token {
			logger.Warn("rejected call with bad auth token", zap.String("method", info.FullMethod))
			ce := &CodedError{Code: CodeInvalidToken, Message: "invalid internal token"}
			return nil, status.Error(codes.Unauthenticated, ce.JSON())
		}
		return handler(ctx, req)
	}
}
