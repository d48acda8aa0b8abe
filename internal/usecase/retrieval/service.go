package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/index"
)

// Service answers similarity queries over knowledge directories. Loaded
// snapshots are cached in memory and invalidated when the on-disk vectors
// file changes, so re-ingestion is picked up without a restart.
type Service struct {
	embed  Embedder
	ingest Ingester
	logger *zap.Logger

	mu    sync.Mutex // guards cache and locks, never held across I/O
	cache map[string]*cacheEntry
	locks map[string]*sync.Mutex
}

type cacheEntry struct {
	ix      *index.Index
	modTime time.Time
	size    int64
}

// New creates a retrieval service.
func New(embed Embedder, ing Ingester, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embed:  embed,
		ingest: ing,
		logger: logger,
		cache:  map[string]*cacheEntry{},
		locks:  map[string]*sync.Mutex{},
	}
}

// Query embeds text and returns the topK most similar passages from the
// knowledge directory. A missing snapshot triggers one ingestion run.
// threshold > 0 drops results scoring below it.
func (s *Service) Query(
	ctx context.Context, dir, text string, topK int, threshold float64,
) ([]domain.ScoredPassage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("query text: %w", domain.ErrEmptyInput)
	}
	if topK <= 0 {
		return nil, nil
	}

	ix, err := s.loadIndex(ctx, dir)
	if err != nil {
		return nil, err
	}

	embRes, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := ix.Search(embRes.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	if threshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= threshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	return results, nil
}

// loadIndex returns a cached snapshot or loads it from disk, running one
// ingestion pass when the directory has no snapshot yet. Each directory
// has its own lock so a cold start on one agent's knowledge dir does not
// stall queries against the others.
func (s *Service) loadIndex(ctx context.Context, dir string) (*index.Index, error) {
	lock := s.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	stat, statErr := os.Stat(index.VectorsPath(dir))
	if statErr == nil {
		if entry, ok := s.cached(dir); ok &&
			entry.modTime.Equal(stat.ModTime()) && entry.size == stat.Size() {
			return entry.ix, nil
		}
	}

	ix, err := index.Load(dir)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("No snapshot, ingesting knowledge dir", zap.String("dir", dir))
		if _, ingErr := s.ingest.Ingest(ctx, dir); ingErr != nil {
			return nil, fmt.Errorf("ingest %s: %w", dir, ingErr)
		}
		ix, err = index.Load(dir)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", dir, err)
	}

	entry := &cacheEntry{ix: ix}
	if stat, statErr := os.Stat(index.VectorsPath(dir)); statErr == nil {
		entry.modTime = stat.ModTime()
		entry.size = stat.Size()
	}
	s.mu.Lock()
	s.cache[dir] = entry
	s.mu.Unlock()

	return ix, nil
}

func (s *Service) dirLock(dir string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[dir]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dir] = l
	}
	return l
}

func (s *Service) cached(dir string) (*cacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[dir]
	return entry, ok
}
