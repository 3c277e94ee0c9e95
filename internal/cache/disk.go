package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"LogSearch/internal/storage"
)

// DiskCache stores previously computed search responses on disk, one JSON
// file per entry, and serves the local-node side of cache lookups. Entries
// live under <root>/<file_path>/<start>_<end>_<asc|desc>.json; the covered
// time range is part of the name so the index can be rebuilt without
// opening any payload.
type DiskCache struct {
	root   string
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string][]entryMeta // file path → known entries
}

type entryMeta struct {
	start      int64
	end        int64
	descending bool
	name       string
}

// NewDiskCache opens (or creates) a result cache rooted at root and rebuilds
// the in-memory index from the files already present.
func NewDiskCache(root string, logger *zap.Logger) (*DiskCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := storage.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create result cache dir: %w", err)
	}

	c := &DiskCache{
		root:   root,
		logger: logger,
		index:  make(map[string][]entryMeta),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DiskCache) loadIndex() error {
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		meta, ok := parseEntryName(d.Name())
		if !ok {
			c.logger.Warn("ignoring unrecognized file in result cache", zap.String("path", path))
			return nil
		}

		rel, err := filepath.Rel(c.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		filePath := filepath.ToSlash(rel)
		c.index[filePath] = append(c.index[filePath], meta)
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild result cache index: %w", err)
	}

	entries := 0
	for _, metas := range c.index {
		entries += len(metas)
	}
	c.logger.Info("result cache index loaded",
		zap.String("root", c.root),
		zap.Int("file_paths", len(c.index)),
		zap.Int("entries", entries),
	)
	return nil
}

// Put stores a computed response covering [start, end] for filePath.
// Writing the same range twice replaces the previous payload.
func (c *DiskCache) Put(filePath string, start, end int64, isDescending bool, res SearchResponse) error {
	if start > end {
		return fmt.Errorf("result cache put: start %d after end %d", start, end)
	}

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode cached response: %w", err)
	}

	dir := filepath.Join(c.root, filepath.FromSlash(filePath))
	if err := storage.EnsureDir(dir); err != nil {
		return fmt.Errorf("create result cache entry dir: %w", err)
	}

	meta := entryMeta{start: start, end: end, descending: isDescending}
	meta.name = entryName(meta)
	if err := storage.AtomicWriteFile(filepath.Join(dir, meta.name), data, dir); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	metas := c.index[filePath]
	for i, m := range metas {
		if m.name == meta.name {
			metas[i] = meta
			return nil
		}
	}
	c.index[filePath] = append(metas, meta)
	return nil
}

// GetCachedResults returns the local cache entries for filePath that overlap
// the request window. Entries spanning less than the request's discard
// interval are not trusted and skipped; entries that fail to decode or carry
// no hits degrade to a miss for that entry, never an error.
func (c *DiskCache) GetCachedResults(ctx context.Context, filePath, traceID string, req CacheQueryRequest) []CachedQueryResponse {
	if ctx.Err() != nil {
		return nil
	}

	c.mu.RLock()
	metas := make([]entryMeta, len(c.index[filePath]))
	copy(metas, c.index[filePath])
	c.mu.RUnlock()

	dir := filepath.Join(c.root, filepath.FromSlash(filePath))
	var results []CachedQueryResponse
	for _, meta := range metas {
		if meta.start > req.EndTime || meta.end < req.StartTime {
			continue
		}
		if req.DiscardInterval > 0 && meta.end-meta.start < req.DiscardInterval {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, meta.name))
		if err != nil {
			c.logger.Error("read cached response",
				zap.String("trace_id", traceID),
				zap.String("file_path", filePath),
				zap.String("entry", meta.name),
				zap.Error(err),
			)
			continue
		}

		var res SearchResponse
		if err := json.Unmarshal(data, &res); err != nil {
			c.logger.Error("parse cached response",
				zap.String("trace_id", traceID),
				zap.String("file_path", filePath),
				zap.String("entry", meta.name),
				zap.Error(err),
			)
			continue
		}
		if len(res.Hits) == 0 {
			continue
		}

		results = append(results, CachedQueryResponse{
			CachedResponse:     res,
			HasCachedData:      true,
			CacheQueryResponse: true,
			ResponseStartTime:  meta.start,
			ResponseEndTime:    meta.end,
			TSColumn:           req.TSColumn,
			IsDescending:       meta.descending,
			Limit:              -1,
		})
	}
	return results
}

func entryName(m entryMeta) string {
	order := "asc"
	if m.descending {
		order = "desc"
	}
	return fmt.Sprintf("%d_%d_%s.json", m.start, m.end, order)
}

func parseEntryName(name string) (entryMeta, bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "_")
	if len(parts) != 3 {
		return entryMeta{}, false
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return entryMeta{}, false
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return entryMeta{}, false
	}
	if start > end {
		return entryMeta{}, false
	}

	switch parts[2] {
	case "asc":
		return entryMeta{start: start, end: end, name: name}, true
	case "desc":
		return entryMeta{start: start, end: end, descending: true, name: name}, true
	default:
		return entryMeta{}, false
	}
}
