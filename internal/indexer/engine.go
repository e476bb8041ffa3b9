// Package indexer owns the live translation-memory index: it applies
// mutations, records metrics, persists snapshots to segment files and
// tracks the connector sessions reading from it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/fuzzy-tm-engine/pkg/proto"
)

type Engine struct {
	memIndex   *index.MemoryIndex
	writer     *segment.Writer
	cfg        config.IndexConfig
	metrics    *metrics.Metrics
	logger     *slog.Logger
	flushMu    sync.Mutex
	flushedGen atomic.Uint64
	lastFlush  atomic.Int64
	segments   atomic.Int64

	// stateMu orders mutations and lease changes against Close. Mutators
	// and Acquire hold it shared; Close holds it exclusively.
	stateMu sync.RWMutex
	leases  atomic.Int64
	closed  atomic.Bool
}

type Option func(*Engine)

// WithMetrics records mutation and flush metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates the engine and, when persistence is on, restores the
// newest readable segment in cfg.DataDir.
func NewEngine(cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.Persist {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, apperrors.Storage("creating index data directory", err)
		}
		w, err := segment.NewWriter(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		e.writer = w
		if err := e.loadExistingSegments(); err != nil {
			w.Close()
			return nil, fmt.Errorf("loading existing segments: %w", err)
		}
	}
	e.flushedGen.Store(e.memIndex.Snapshot().Generation())
	e.observeSize()
	return e, nil
}

// Index exposes the underlying index for read paths.
func (e *Engine) Index() *index.MemoryIndex { return e.memIndex }

// Snapshot returns the current index view.
func (e *Engine) Snapshot() *index.Snapshot { return e.memIndex.Snapshot() }

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return apperrors.New(apperrors.ErrAlreadyClosed, http.StatusServiceUnavailable, "index engine is closed")
	}
	return nil
}

func (e *Engine) Insert(entry index.Entry) (index.DocID, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	id := e.memIndex.Insert(entry)
	e.inserted(1)
	return id, nil
}

func (e *Engine) InsertBatch(entries []index.Entry) ([]index.DocID, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	ids := e.memIndex.InsertBatch(entries)
	e.inserted(len(ids))
	return ids, nil
}

func (e *Engine) InsertUnique(entry index.Entry) (index.DocID, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	id, err := e.memIndex.InsertUnique(entry)
	if err != nil {
		return 0, err
	}
	e.inserted(1)
	return id, nil
}

func (e *Engine) InsertOverwrite(entry index.Entry) (index.DocID, []index.DocID, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return 0, nil, err
	}
	id, replaced := e.memIndex.InsertOverwrite(entry)
	e.inserted(1)
	e.removed(len(replaced))
	return id, replaced, nil
}

// Remove reports whether a unit was removed. Unknown ids are not an error.
func (e *Engine) Remove(id index.DocID) (bool, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return false, err
	}
	ok := e.memIndex.Remove(id)
	if ok {
		e.removed(1)
	}
	return ok, nil
}

func (e *Engine) Update(id index.DocID, entry index.Entry) (index.DocID, error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	newID, err := e.memIndex.Update(id, entry)
	if err != nil {
		return 0, err
	}
	e.inserted(1)
	e.removed(1)
	return newID, nil
}

func (e *Engine) inserted(n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.UnitsIndexedTotal.Add(float64(n))
	}
	e.observeSize()
}

func (e *Engine) removed(n int) {
	if e.metrics != nil && n > 0 {
		e.metrics.UnitsRemovedTotal.Add(float64(n))
	}
	e.observeSize()
}

func (e *Engine) observeSize() {
	if e.metrics != nil {
		e.metrics.IndexUnits.Set(float64(e.memIndex.DocCount()))
	}
}

// Acquire registers a reader session. The returned release func must be
// called exactly once; Close refuses to run while leases are held.
func (e *Engine) Acquire() (release func(), err error) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	e.leases.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { e.leases.Add(-1) })
	}, nil
}

// Leases returns the number of open reader sessions.
func (e *Engine) Leases() int64 { return e.leases.Load() }

// Flush writes the current snapshot to a new segment file when anything
// changed since the last flush. It is a no-op without persistence.
func (e *Engine) Flush() error {
	if e.writer == nil {
		return nil
	}
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	if e.closed.Load() {
		return nil
	}

	snap := e.memIndex.Snapshot()
	if snap.Generation() == e.flushedGen.Load() {
		return nil
	}
	name, err := e.writer.Write(snap)
	if err != nil {
		e.countFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}
	e.flushedGen.Store(snap.Generation())
	e.lastFlush.Store(time.Now().Unix())
	if err := segment.Prune(e.cfg.DataDir, e.cfg.KeepSnapshots); err != nil {
		e.logger.Warn("pruning old segments failed", "error", err)
	}
	if paths, err := segment.List(e.cfg.DataDir); err == nil {
		e.segments.Store(int64(len(paths)))
	}
	e.countFlush("ok")
	e.logger.Info("segment flushed",
		"segment", name,
		"units", snap.Len(),
		"generation", snap.Generation(),
	)
	return nil
}

func (e *Engine) countFlush(status string) {
	if e.metrics != nil {
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
}

// StartFlushLoop flushes every FlushInterval until ctx is done, then
// performs a final flush. The returned channel closes when the loop exits.
func (e *Engine) StartFlushLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if e.writer == nil || e.cfg.FlushInterval <= 0 {
		close(done)
		return done
	}
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := e.Flush(); err != nil {
					e.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
	return done
}

// Stats summarises the engine state.
type Stats struct {
	Units      int
	Terms      int
	Generation uint64
	NextDocID  index.DocID
	Segments   int64
	LastFlush  time.Time
	Sessions   int64
}

func (e *Engine) Stats() Stats {
	snap := e.memIndex.Snapshot()
	s := Stats{
		Units:      snap.Len(),
		Terms:      snap.TermCount(),
		Generation: snap.Generation(),
		NextDocID:  snap.NextID(),
		Segments:   e.segments.Load(),
		Sessions:   e.leases.Load(),
	}
	if ts := e.lastFlush.Load(); ts > 0 {
		s.LastFlush = time.Unix(ts, 0)
	}
	return s
}

// Proto converts s for the HTTP and RPC responses.
func (s Stats) Proto() *proto.StatsResponse {
	resp := &proto.StatsResponse{
		Units:      int64(s.Units),
		Terms:      int64(s.Terms),
		Generation: s.Generation,
		NextDocID:  uint64(s.NextDocID),
		Segments:   s.Segments,
		Sessions:   s.Sessions,
	}
	if !s.LastFlush.IsZero() {
		resp.LastFlush = s.LastFlush.Unix()
	}
	return resp
}

// ErrSessionsOpen is returned by Close while connector sessions still hold
// the engine.
var ErrSessionsOpen = errors.New("connector sessions still open")

// Close flushes and marks the engine closed. It fails while sessions are
// open. If the final flush fails the engine stays open and Close may be
// retried.
func (e *Engine) Close() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if n := e.leases.Load(); n > 0 {
		return fmt.Errorf("%w: %d", ErrSessionsOpen, n)
	}
	if e.closed.Load() {
		return nil
	}
	if err := e.Flush(); err != nil {
		return fmt.Errorf("final flush on close: %w", err)
	}
	e.closed.Store(true)
	if e.writer != nil {
		e.writer.Close()
	}
	return nil
}

func (e *Engine) loadExistingSegments() error {
	paths, err := segment.List(e.cfg.DataDir)
	if err != nil {
		return err
	}
	e.segments.Store(int64(len(paths)))
	for i := len(paths) - 1; i >= 0; i-- {
		c, err := segment.Read(paths[i])
		if err != nil {
			e.logger.Error("failed to read segment, trying an older one",
				"segment", filepath.Base(paths[i]),
				"error", err,
			)
			continue
		}
		if err := e.memIndex.Restore(c.Records, index.DocID(c.Header.NextID), c.Header.Generation); err != nil {
			e.logger.Error("failed to restore segment, trying an older one",
				"segment", filepath.Base(paths[i]),
				"error", err,
			)
			continue
		}
		e.lastFlush.Store(c.Header.CreatedAt)
		e.logger.Info("loaded existing segment",
			"segment", filepath.Base(paths[i]),
			"units", c.Header.UnitCount,
			"generation", c.Header.Generation,
		)
		return nil
	}
	if len(paths) > 0 {
		return apperrors.Storage("loading segments", fmt.Errorf("none of %d segments in %s could be read", len(paths), e.cfg.DataDir))
	}
	e.logger.Info("no existing segments, starting empty", "data_dir", e.cfg.DataDir)
	return nil
}
