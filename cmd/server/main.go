package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"

	"LogSearch/internal/aggregator"
	"LogSearch/internal/cache"
	"LogSearch/internal/cluster"
	"LogSearch/internal/config"
	"LogSearch/internal/rpc"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	cfg := config.FromEnv()

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parseLogLevel(os.Getenv("LOGSEARCH_LOG_LEVEL")))
	logger, err := zapCfg.Build()
	if err != nil {
		os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	node := cluster.ClusterNode{
		ID:       cfg.NodeID,
		UUID:     uuid.NewString(),
		Name:     cfg.NodeName,
		GRPCAddr: cfg.GRPCAddr,
		Roles:    []string{cluster.RoleQuerier},
		Status:   cluster.StatusOnline,
	}

	logger.Info("starting LogSearch cache node",
		zap.String("version", Version),
		zap.Uint64("node_id", node.ID),
		zap.String("uuid", node.UUID),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("data_dir", cfg.DataDir),
	)

	store, err := cache.NewDiskCache(filepath.Join(cfg.DataDir, "results"), logger)
	if err != nil {
		logger.Fatal("open result cache", zap.Error(err))
	}

	etcdCli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: cfg.ConnectTimeout,
	})
	if err != nil {
		logger.Fatal("connect to etcd", zap.Error(err))
	}
	defer etcdCli.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	revoke, err := cluster.Register(ctx, etcdCli, node, int64(cfg.NodeTTL.Seconds()), logger)
	if err != nil {
		logger.Fatal("register node", zap.Error(err))
	}
	defer revoke()

	directory := cluster.NewEtcdDirectory(etcdCli, node.UUID, cfg.AuthToken, logger)
	client := rpc.NewClient(rpc.Options{
		ConnectTimeout:     cfg.ConnectTimeout,
		MaxMessageSizeMB:   cfg.MaxMessageSizeMB,
		CompressionEnabled: cfg.CompressionEnabled,
	}, directory, logger)
	agg := aggregator.New(directory, client, store, logger)

	// gRPC: the peer-facing QueryCache service.
	maxSize := cfg.MaxMessageSizeMB * 1024 * 1024
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(maxSize),
		grpc.MaxSendMsgSize(maxSize),
		grpc.ChainUnaryInterceptor(rpc.AuthUnaryInterceptor(cfg.AuthToken, logger)),
	)
	rpc.RegisterQueryCacheServer(grpcServer, rpc.NewServer(store, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("listen grpc", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()

	// HTTP: health plus the cache-lookup entry point the query pipeline calls.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": Version,
			"uuid":    node.UUID,
		})
	})
	mux.HandleFunc("POST /cache/results", cachedResultsHandler(agg, logger))

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("http_addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}

// cachedResultsRequest is the HTTP body for a cache lookup.
type cachedResultsRequest struct {
	QueryKey string `json:"query_key"`
	FilePath string `json:"file_path"`
	TraceID  string `json:"trace_id,omitempty"`
	cache.CacheQueryRequest
}

func cachedResultsHandler(agg *aggregator.Aggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cachedResultsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.StartTime > req.EndTime || req.QueryKey == "" || req.FilePath == "" {
			http.Error(w, `{"error":"query_key, file_path and a valid time range are required"}`, http.StatusBadRequest)
			return
		}
		if req.TraceID == "" {
			req.TraceID = uuid.NewString()
		}

		entries := agg.GetCachedResults(r.Context(), req.QueryKey, req.FilePath, req.TraceID, req.CacheQueryRequest)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"trace_id": req.TraceID,
			"entries":  entries,
		}); err != nil {
			logger.Error("encode cached results response",
				zap.String("trace_id", req.TraceID),
				zap.Error(err),
			)
		}
	}
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
