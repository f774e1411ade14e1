// Package indexer keeps the search indexes of live and archived events in
// step with the event store. It rebuilds an index at startup when its
// metadata shows it is missing or stale, then drains the index work queues
// in bounded cycles.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/eventidx/eventidx/internal/indexer/details"
	"github.com/eventidx/eventidx/internal/indexer/metadata"
	"github.com/eventidx/eventidx/internal/indexer/plugin"
	"github.com/eventidx/eventidx/internal/indexer/queue"
	"github.com/eventidx/eventidx/internal/storage"
	"github.com/eventidx/eventidx/pkg/model"
)

// SchemaVersion is the version of the document layout written by this
// build. Changing it reindexes every index on the next start.
const SchemaVersion = 1

// Logical index names.
const (
	SummaryIndex = "event_summary"
	ArchiveIndex = "event_archive"
)

// rebuildPageSize is the event store page size of a full rebuild.
const rebuildPageSize = 1000

// ErrNotInitialized is returned by indexing runs before Init succeeded.
var ErrNotInitialized = errors.New("indexer not initialized")

// State is the consistency state of one index.
type State int

const (
	StateUninitialized State = iota
	StateConsistent
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConsistent:
		return "consistent"
	case StateRebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SearchIndex is the index side of a pipeline.
type SearchIndex interface {
	Name() string
	SetIndexDetails(items []model.EventDetailItem)
	Stage(ctx context.Context, event *model.EventSummary) error
	StageDelete(ctx context.Context, uuid string) error
	Commit(ctx context.Context, force bool) error
	Discard() int
	Clear(ctx context.Context) error
	NumDocs(ctx context.Context) (int64, error)
	Reindex(ctx context.Context) error
}

// Pipeline ties an event table to its index and work queue.
type Pipeline struct {
	Store storage.EventStore
	Index SearchIndex
	Queue *queue.DAO
	// Plugins run after Deps.Plugins for this pipeline only. Optional.
	Plugins plugin.Service
}

// QueueSizeEvent reports the queue depth observed at the end of a cycle.
type QueueSizeEvent struct {
	Table       string
	QueueLength int64
	Limit       int
}

// QueueSizeSink receives one QueueSizeEvent per cycle.
type QueueSizeSink interface {
	PublishQueueSize(event QueueSizeEvent)
}

// Recorder receives indexing counters.
type Recorder interface {
	AddIndexed(table string, n int)
	ObserveRebuild(index string, events int, elapsed time.Duration)
}

// Deps are the collaborators of an Indexer.
type Deps struct {
	Details  details.Source
	Metadata metadata.Store
	// Plugins is optional.
	Plugins plugin.Service
	// Sink is optional.
	Sink QueueSizeSink
	// Recorder is optional.
	Recorder Recorder
}

// Options tune an Indexer.
type Options struct {
	// BatchSize bounds the tasks handled per queue per cycle.
	BatchSize int
	// RebuildRate limits events staged per second during a full rebuild.
	// Zero means unlimited.
	RebuildRate float64
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

type pipelineState struct {
	Pipeline
	state State
}

// Indexer drives the live and archive pipelines. Init, RunOnce and
// RunUntilCaughtUp exclude each other.
type Indexer struct {
	mu          sync.Mutex
	pipelines   []*pipelineState
	deps        Deps
	opts        Options
	limiter     *rate.Limiter
	fingerprint []byte
	initialized bool
	logger      *slog.Logger
}

// New creates an Indexer over live and archive.
func New(live, archive Pipeline, deps Deps, opts Options, logger *slog.Logger) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = rebuildPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Plugins == nil {
		deps.Plugins = plugin.NewRegistry()
	}
	limit := rate.Inf
	if opts.RebuildRate > 0 {
		limit = rate.Limit(opts.RebuildRate)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		pipelines: []*pipelineState{{Pipeline: live}, {Pipeline: archive}},
		deps:      deps,
		opts:      opts,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With("component", "indexer"),
	}
}

// State returns the state of the named index.
func (ix *Indexer) State(indexName string) State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, p := range ix.pipelines {
		if p.Index.Name() == indexName {
			return p.state
		}
	}
	return StateUninitialized
}

// Init loads the detail item configuration, pushes it into both indexes and
// rebuilds or reindexes each index whose metadata shows it is out of date.
func (ix *Indexer) Init(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	items, err := ix.deps.Details.DetailItems(ctx)
	if err != nil {
		return fmt.Errorf("load detail items: %w", err)
	}
	for _, item := range items {
		ix.logger.Info("Indexed event detail", "item", item.String())
	}
	ix.fingerprint = Fingerprint(items)
	for _, p := range ix.pipelines {
		p.Index.SetIndexDetails(items)
	}

	for _, p := range ix.pipelines {
		if err := ix.initPipeline(ctx, p); err != nil {
			return fmt.Errorf("init index %s: %w", p.Index.Name(), err)
		}
	}
	ix.initialized = true
	return nil
}

func (ix *Indexer) initPipeline(ctx context.Context, p *pipelineState) error {
	name := p.Index.Name()
	meta, err := ix.deps.Metadata.Find(ctx, name)
	if err != nil {
		return fmt.Errorf("find metadata: %w", err)
	}
	numDocs, err := p.Index.NumDocs(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}

	switch {
	case meta == nil:
		if numDocs > 0 {
			ix.logger.Info("Index has documents but no metadata, clearing", "index", name, "documents", numDocs)
			if err := p.Index.Clear(ctx); err != nil {
				return err
			}
		}
		return ix.rebuild(ctx, p)

	case !meta.Matches(SchemaVersion, ix.fingerprint):
		if meta.SchemaVersion != SchemaVersion {
			ix.logger.Info("Index version changed", "index", name, "previous", meta.SchemaVersion, "current", SchemaVersion)
		} else {
			ix.logger.Info("Index configuration changed", "index", name)
		}
		return ix.reindex(ctx, p)

	case numDocs == 0:
		ix.logger.Info("Index is empty, rebuilding", "index", name)
		return ix.rebuild(ctx, p)
	}

	p.state = StateConsistent
	return nil
}

// rebuild re-reads every event of the table up to the rebuild start time
// and stages it. Nothing is committed until the whole table has been read,
// and a failed rebuild commits nothing.
func (ix *Indexer) rebuild(ctx context.Context, p *pipelineState) (err error) {
	name := p.Index.Name()
	defer func() {
		if err != nil {
			p.Index.Discard()
		}
	}()
	p.state = StateRebuilding
	start := ix.opts.Now()
	asOf := start.UnixMilli()
	ix.logger.Info("Rebuilding index", "index", name, "table", p.Store.Table())

	var after string
	staged := 0
	for {
		events, err := p.Store.ListBatch(ctx, after, asOf, rebuildPageSize)
		if err != nil {
			return fmt.Errorf("list events after %q: %w", after, err)
		}
		if len(events) == 0 {
			break
		}
		for _, event := range events {
			if err := ix.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %w", model.ErrCanceled, err)
			}
			if err := p.Index.Stage(ctx, event); err != nil {
				return fmt.Errorf("stage %s: %w", event.UUID, err)
			}
			after = event.UUID
			staged++
		}
	}

	if staged > 0 {
		if err := p.Index.Commit(ctx, true); err != nil {
			return err
		}
	}
	if err := ix.deps.Metadata.Update(ctx, name, SchemaVersion, ix.fingerprint); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	p.state = StateConsistent

	elapsed := ix.opts.Now().Sub(start)
	if ix.deps.Recorder != nil {
		ix.deps.Recorder.ObserveRebuild(name, staged, elapsed)
	}
	ix.logger.Info("Finished rebuilding index", "index", name, "events", staged, "elapsed", elapsed)
	return nil
}

func (ix *Indexer) reindex(ctx context.Context, p *pipelineState) error {
	p.state = StateRebuilding
	if err := p.Index.Reindex(ctx); err != nil {
		return err
	}
	if err := ix.deps.Metadata.Update(ctx, p.Index.Name(), SchemaVersion, ix.fingerprint); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	p.state = StateConsistent
	return nil
}

// RunOnce runs one cycle on the live queue, then one on the archive queue,
// and returns the number of tasks indexed.
func (ix *Indexer) RunOnce(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.initialized {
		return 0, ErrNotInitialized
	}
	return ix.pass(ctx, queue.NoCeiling)
}

// RunUntilCaughtUp runs passes until one indexes nothing. Tasks enqueued
// after the call started are left for later runs, so the loop ends even
// under a steady stream of writes.
func (ix *Indexer) RunUntilCaughtUp(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.initialized {
		return 0, ErrNotInitialized
	}

	ceiling := ix.opts.Now().UnixMilli()
	total := 0
	for {
		n, err := ix.pass(ctx, ceiling)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

func (ix *Indexer) pass(ctx context.Context, ceiling int64) (int, error) {
	total := 0
	for _, p := range ix.pipelines {
		n, err := ix.cycle(ctx, p, ceiling)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (ix *Indexer) cycle(ctx context.Context, p *pipelineState, ceiling int64) (int, error) {
	plugins := ix.deps.Plugins.PostProcessingPlugins()
	if p.Plugins != nil {
		plugins = append(plugins, p.Plugins.PostProcessingPlugins()...)
	}
	h := &indexingHandler{
		index:   p.Index,
		plugins: plugins,
		logger:  ix.logger,
	}
	result, err := p.Queue.RunCycle(ctx, h, ix.opts.BatchSize, ceiling)
	if err != nil {
		return 0, fmt.Errorf("index %s: %w", p.Index.Name(), err)
	}

	table := p.Queue.Table()
	n := len(result.Acknowledged)
	if n > 0 {
		ix.logger.Debug("Completed indexing", "index", p.Index.Name(), "count", n)
		if ix.deps.Recorder != nil {
			ix.deps.Recorder.AddIndexed(table, n)
		}
	}
	if ix.deps.Sink != nil && result.QueueLength >= 0 {
		ix.deps.Sink.PublishQueueSize(QueueSizeEvent{
			Table:       table,
			QueueLength: result.QueueLength,
			Limit:       result.Limit,
		})
	}
	return n, nil
}
