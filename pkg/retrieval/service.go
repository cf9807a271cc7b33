package retrieval

import (
	"sync"
	"sync/atomic"
	"time"

	"agentforge/pkg/logx"
)

// DefaultDebounce coalesces bursts of edits into one rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Source produces the file set for a deferred rebuild. It is called at
// rebuild time, not at scheduling time, so the freshest content is indexed.
type Source func() []File

// RebuildHook observes completed rebuilds.
type RebuildHook func(chunks int, took time.Duration)

// Options configures a Service.
type Options struct {
	WindowLines int
	StrideLines int
	MinScore    float64
	Debounce    time.Duration
	OnRebuild   RebuildHook
}

// Service owns the current index snapshot for one project. Readers always see
// a complete snapshot; rebuilds swap the pointer atomically.
type Service struct {
	chunker   *Chunker
	minScore  float64
	debounce  time.Duration
	onRebuild RebuildHook
	logger    *logx.Logger

	current atomic.Pointer[Index]

	buildMu sync.Mutex // serializes rebuilds so swaps happen in schedule order

	mu      sync.Mutex
	timer   *time.Timer
	pending Source
	closed  bool
	wg      sync.WaitGroup
}

// NewService creates a Service holding an empty index.
func NewService(opts Options) *Service {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	s := &Service{
		chunker:   NewChunker(opts.WindowLines, opts.StrideLines),
		minScore:  opts.MinScore,
		debounce:  opts.Debounce,
		onRebuild: opts.OnRebuild,
		logger:    logx.NewLogger("retrieval"),
	}
	s.current.Store(Build(nil, s.minScore))
	return s
}

// Reindex rebuilds the whole index from files and swaps it in before returning.
// Reindexing the same files is idempotent.
func (s *Service) Reindex(files []File) *Index {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	start := time.Now()
	ix := Build(s.chunker.ChunkAll(files), s.minScore)
	s.current.Store(ix)

	took := time.Since(start)
	s.logger.Debug("Rebuilt index: %d files, %d chunks in %s", len(files), ix.Len(), took)
	if s.onRebuild != nil {
		s.onRebuild(ix.Len(), took)
	}
	return ix
}

// Schedule requests a debounced rebuild from a fixed file set.
func (s *Service) Schedule(files []File) {
	s.ScheduleFunc(func() []File { return files })
}

// ScheduleFunc requests a debounced rebuild. Calls arriving within the debounce
// window replace the pending source and restart the timer, so a burst of
// edits triggers a single rebuild.
func (s *Service) ScheduleFunc(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = src
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

// fire runs the pending rebuild, if any.
func (s *Service) fire() {
	s.mu.Lock()
	src := s.pending
	s.pending = nil
	s.timer = nil
	if src == nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.Reindex(src())
}

// Flush runs a pending rebuild immediately instead of waiting for the timer,
// and waits for a rebuild the timer already started. After Flush returns,
// Snapshot reflects every Schedule call made before it.
func (s *Service) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	s.fire()
	s.wg.Wait()
}

// Pending reports whether a rebuild is scheduled but not yet started.
func (s *Service) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Close cancels any scheduled rebuild and waits for an in-flight one.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Snapshot returns the current complete index.
func (s *Service) Snapshot() *Index {
	return s.current.Load()
}

// Search queries the current snapshot.
func (s *Service) Search(query string, limit int) []Result {
	return s.Snapshot().Search(query, limit)
}
