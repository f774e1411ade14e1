// Package index implements the searchable event index on PebbleDB.
//
// Writes are staged in memory and applied atomically by Commit. A cycle that
// fails discards its staged writes, leaving the index untouched.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/eventidx/eventidx/pkg/model"
)

// reindexBatchSize bounds the documents rewritten per batch during Reindex.
const reindexBatchSize = 1000

// Config configures the pebble database.
type Config struct {
	// Path is the directory holding the database.
	Path string `yaml:"path"`

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64 `yaml:"block_cache_size"`

	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS vfs.FS `yaml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "data/index",
		BlockCacheSize: 64 * 1024 * 1024,
	}
}

// Document is the stored form of an indexed event.
type Document struct {
	Event  *model.EventSummary `bson:"event"`
	Fields []Field             `bson:"fields,omitempty"`
}

// DB is a pebble database holding any number of named indexes.
type DB struct {
	db     *pebble.DB
	logger *slog.Logger
}

// Open opens or creates the database.
func Open(cfg Config, logger *slog.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("index path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BlockCacheSize <= 0 {
		cfg.BlockCacheSize = DefaultConfig().BlockCacheSize
	}

	if cfg.FS == nil {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	cache := pebble.NewCache(cfg.BlockCacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache: cache,
		FS:    cfg.FS,
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)},
		},
	}
	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}
	return &DB{db: db, logger: logger.With("component", "index-store")}, nil
}

// Index returns the named index. Calling it twice with the same name
// returns independent handles over the same keys.
func (d *DB) Index(name string) *Index {
	return &Index{
		db:      d.db,
		name:    name,
		pending: make(map[string][]byte),
		logger:  d.logger.With("index", name),
	}
}

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close pebble database: %w", err)
	}
	return nil
}

// Index is one logical index inside the database.
type Index struct {
	db     *pebble.DB
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	items   []model.EventDetailItem
	pending map[string][]byte // uuid → encoded document, nil = delete
}

// Name returns the index name.
func (i *Index) Name() string {
	return i.name
}

// SetIndexDetails sets the detail items projected into documents staged
// from now on.
func (i *Index) SetIndexDetails(items []model.EventDetailItem) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = append([]model.EventDetailItem(nil), items...)
}

// Stage records event for the next commit, replacing any earlier staged
// write of the same UUID.
func (i *Index) Stage(ctx context.Context, event *model.EventSummary) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	data, err := i.encodeLocked(event)
	if err != nil {
		return err
	}
	i.pending[event.UUID] = data
	return nil
}

// StageDelete records removal of uuid for the next commit.
func (i *Index) StageDelete(ctx context.Context, uuid string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending[uuid] = nil
	return nil
}

// Discard drops staged writes without applying them and returns how many
// were dropped.
func (i *Index) Discard() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := len(i.pending)
	if n > 0 {
		i.pending = make(map[string][]byte)
	}
	return n
}

// Commit applies staged writes in one synced batch. With force the memtable
// is also flushed to disk, even when nothing was staged.
func (i *Index) Commit(ctx context.Context, force bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.pending) > 0 {
		batch := i.db.NewBatch()
		defer batch.Close()
		for uuid, data := range i.pending {
			key := docKey(i.name, uuid)
			var err error
			if data == nil {
				err = batch.Delete(key, nil)
			} else {
				err = batch.Set(key, data, nil)
			}
			if err != nil {
				return fmt.Errorf("stage %s in batch: %w", uuid, err)
			}
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			return fmt.Errorf("commit index %s: %w", i.name, err)
		}
		i.pending = make(map[string][]byte)
	}

	if force {
		if err := i.db.Flush(); err != nil {
			return fmt.Errorf("flush index %s: %w", i.name, err)
		}
	}
	return nil
}

// Clear removes every committed document and drops staged writes.
func (i *Index) Clear(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending = make(map[string][]byte)
	prefix := docPrefix(i.name)
	if err := i.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("clear index %s: %w", i.name, err)
	}
	i.logger.Info("Index cleared")
	return nil
}

// NumDocs counts committed documents.
func (i *Index) NumDocs(ctx context.Context) (int64, error) {
	prefix := docPrefix(i.name)
	iter, err := i.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return 0, fmt.Errorf("iterate index %s: %w", i.name, err)
	}
	defer iter.Close()

	var n int64
	for iter.First(); iter.Valid(); iter.Next() {
		if n%1024 == 0 && ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %w", model.ErrCanceled, ctx.Err())
		}
		n++
	}
	return n, iter.Error()
}

// Get returns the committed document for uuid, or model.ErrNotFound.
func (i *Index) Get(ctx context.Context, uuid string) (*Document, error) {
	data, closer, err := i.db.Get(docKey(i.name, uuid))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", uuid, err)
	}
	defer closer.Close()

	var doc Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", uuid, err)
	}
	return &doc, nil
}

// Reindex rewrites every committed document, re-deriving its fields from
// the stored event under the current detail items. It is cheaper than a
// rebuild because the event store is not read.
func (i *Index) Reindex(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	prefix := docPrefix(i.name)
	iter, err := i.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return fmt.Errorf("iterate index %s: %w", i.name, err)
	}
	defer iter.Close()

	batch := i.db.NewBatch()
	defer func() { batch.Close() }()

	var count, inBatch int
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", model.ErrCanceled, err)
		}
		var doc Document
		if err := bson.Unmarshal(iter.Value(), &doc); err != nil {
			return fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		data, err := i.encodeLocked(doc.Event)
		if err != nil {
			return err
		}
		if err := batch.Set(append([]byte(nil), iter.Key()...), data, nil); err != nil {
			return fmt.Errorf("reindex %s: %w", doc.Event.UUID, err)
		}
		count++
		inBatch++
		if inBatch == reindexBatchSize {
			if err := batch.Commit(pebble.Sync); err != nil {
				return fmt.Errorf("commit reindex batch: %w", err)
			}
			batch.Close()
			batch = i.db.NewBatch()
			inBatch = 0
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate index %s: %w", i.name, err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit reindex batch: %w", err)
	}
	i.logger.Info("Index reindexed", "documents", count)
	return nil
}

func (i *Index) encodeLocked(event *model.EventSummary) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", model.ErrInvalidEvent)
	}
	data, err := bson.Marshal(Document{Event: event, Fields: deriveFields(event, i.items)})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.UUID, err)
	}
	return data, nil
}
