package indexer

import (
	"context"
	"log/slog"

	"github.com/eventidx/eventidx/internal/indexer/plugin"
	"github.com/eventidx/eventidx/internal/indexer/queue"
	"github.com/eventidx/eventidx/pkg/model"
)

// indexingHandler stages the events of one cycle into an index and runs
// the post-processing plugins over them. Plugin failures are logged and
// never fail the cycle.
type indexingHandler struct {
	index   SearchIndex
	plugins []plugin.Plugin
	logger  *slog.Logger
}

var _ queue.Handler = (*indexingHandler)(nil)

func (h *indexingHandler) Prepare(ctx context.Context, events []*model.EventSummary) error {
	for _, p := range h.plugins {
		preparer, ok := p.(plugin.Preparer)
		if !ok {
			continue
		}
		if err := preparer.Prepare(ctx, events); err != nil {
			h.logger.Warn("Post-processing plugin failed to prepare",
				"plugin", p.Name(), "events", len(events), "error", err)
		}
	}
	return nil
}

func (h *indexingHandler) Handle(ctx context.Context, event *model.EventSummary) error {
	if err := h.index.Stage(ctx, event); err != nil {
		return err
	}
	for _, p := range h.plugins {
		if err := p.Process(ctx, event); err != nil {
			h.logger.Warn("Post-processing plugin failed",
				"plugin", p.Name(), "uuid", event.UUID, "error", err)
		}
	}
	return nil
}

func (h *indexingHandler) HandleDeleted(ctx context.Context, uuid string) error {
	return h.index.StageDelete(ctx, uuid)
}

func (h *indexingHandler) Complete(ctx context.Context) error {
	return h.index.Commit(ctx, false)
}

// Abort drops whatever the failed cycle staged so a later commit cannot
// apply it.
func (h *indexingHandler) Abort(ctx context.Context) {
	if n := h.index.Discard(); n > 0 {
		h.logger.Warn("Discarded staged index writes of failed cycle", "index", h.index.Name(), "writes", n)
	}
}
