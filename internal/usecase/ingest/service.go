package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/questor-ai/questor/internal/domain"
	"github.com/questor-ai/questor/internal/extract"
	"github.com/questor-ai/questor/internal/index"
)

const lockFileName = ".ingest.lock"

// Config holds ingestion tuning knobs.
type Config struct {
	BatchSize      int           // chunks embedded concurrently per batch
	BatchPause     time.Duration // pause between batches to respect rate limits
	LockRetryDelay time.Duration // poll interval while waiting for the dir lock
}

// Result summarizes one ingestion run.
type Result struct {
	Files   int `json:"files"`
	Chunks  int `json:"chunks"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Service builds a searchable snapshot from the documents in a knowledge
// directory. Concurrent runs over the same directory are serialized with a
// file lock so two processes never race on the snapshot.
type Service struct {
	embed   Embedder
	extract Extractor
	split   Splitter
	cfg     Config
	logger  *zap.Logger
}

// New creates an ingestion service.
func New(embed Embedder, ex Extractor, split Splitter, cfg Config, logger *zap.Logger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.LockRetryDelay <= 0 {
		cfg.LockRetryDelay = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{embed: embed, extract: ex, split: split, cfg: cfg, logger: logger}
}

// Ingest reads every supported document directly under dir, chunks and
// embeds the text, and persists the snapshot under dir. Individual chunk
// failures are logged and skipped; a run where nothing embeds fails with
// ErrNoValidVectors.
func (s *Service) Ingest(ctx context.Context, dir string) (Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return Result{}, fmt.Errorf("stat knowledge dir: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("knowledge path %s is not a directory", dir)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, s.cfg.LockRetryDelay)
	if err != nil {
		return Result{}, fmt.Errorf("acquire ingest lock: %w", err)
	}
	if !locked {
		return Result{}, fmt.Errorf("ingest lock for %s is held elsewhere", dir)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			s.logger.Warn("Failed to release ingest lock", zap.String("dir", dir), zap.Error(uerr))
		}
	}()

	passages, files, err := s.collectChunks(dir)
	if err != nil {
		return Result{}, err
	}
	if len(passages) == 0 {
		return Result{Files: files}, fmt.Errorf("no text chunks in %s: %w", dir, domain.ErrNoValidVectors)
	}

	vectors, failed, err := s.embedAll(ctx, passages)
	if err != nil {
		return Result{}, err
	}

	kept := make([]domain.Passage, 0, len(passages))
	keptVecs := make([][]float32, 0, len(vectors))
	for i, v := range vectors {
		if v == nil {
			continue
		}
		kept = append(kept, passages[i])
		keptVecs = append(keptVecs, v)
	}
	if len(kept) == 0 {
		return Result{Files: files, Chunks: len(passages), Failed: failed},
			fmt.Errorf("all %d chunks failed to embed: %w", len(passages), domain.ErrNoValidVectors)
	}

	ix, err := index.New(len(keptVecs[0]))
	if err != nil {
		return Result{}, fmt.Errorf("create index: %w", err)
	}
	if err := ix.Add(keptVecs, kept); err != nil {
		return Result{}, fmt.Errorf("populate index: %w", err)
	}
	if err := ix.Save(dir); err != nil {
		return Result{}, fmt.Errorf("persist snapshot: %w", err)
	}

	s.logger.Info("Ingestion complete",
		zap.String("dir", dir),
		zap.Int("files", files),
		zap.Int("chunks", len(passages)),
		zap.Int("indexed", len(kept)),
		zap.Int("failed", failed),
	)

	return Result{Files: files, Chunks: len(passages), Indexed: len(kept), Failed: failed}, nil
}

// collectChunks walks the top level of dir (no recursion), extracts and
// cleans each supported document, and splits it into passages.
func (s *Service) collectChunks(dir string) ([]domain.Passage, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read knowledge dir: %w", err)
	}

	var passages []domain.Passage
	files := 0

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		text, err := s.extract.Extract(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, domain.ErrUnsupportedFormat) {
				s.logger.Debug("Skipping unsupported file", zap.String("file", name))
				continue
			}
			s.logger.Warn("Failed to extract document", zap.String("file", name), zap.Error(err))
			continue
		}

		cleaned := extract.Preprocess(text)
		if cleaned == "" {
			s.logger.Debug("Document empty after cleanup", zap.String("file", name))
			continue
		}

		files++
		for i, chunkText := range s.split.Split(cleaned) {
			passages = append(passages, domain.Passage{
				Text:     chunkText,
				Source:   name,
				Sequence: i,
			})
		}
	}

	return passages, files, nil
}

// embedAll embeds passages in fixed-size concurrent batches. A nil row in
// the returned slice marks a chunk whose embedding failed.
func (s *Service) embedAll(ctx context.Context, passages []domain.Passage) ([][]float32, int, error) {
	vectors := make([][]float32, len(passages))
	failed := 0

	for start := 0; start < len(passages); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(passages) {
			end = len(passages)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				res, err := s.embed.Embed(gctx, passages[i].Text)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					s.logger.Warn("Failed to embed chunk",
						zap.String("source", passages[i].Source),
						zap.Int("sequence", passages[i].Sequence),
						zap.Error(err),
					)
					return nil
				}
				vectors[i] = res.Embedding
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, fmt.Errorf("embed batch: %w", err)
		}

		for i := start; i < end; i++ {
			if vectors[i] == nil {
				failed++
			}
		}

		if s.cfg.BatchPause > 0 && end < len(passages) {
			select {
			case <-ctx.Done():
				return nil, 0, fmt.Errorf("ingestion canceled: %w", ctx.Err())
			case <-time.After(s.cfg.BatchPause):
			}
		}
	}

	return vectors, failed, nil
}
