// Package plugin runs post-processing plugins over indexed events.
package plugin

import (
	"context"

	"github.com/eventidx/eventidx/pkg/model"
)

// Plugin post-processes an event after it has been staged for indexing.
type Plugin interface {
	Name() string
	Process(ctx context.Context, event *model.EventSummary) error
}

// Service supplies the plugins to run for each indexed event.
type Service interface {
	PostProcessingPlugins() []Plugin
}

// Registry is a Service over a fixed list of plugins.
type Registry struct {
	plugins []Plugin
}

var _ Service = (*Registry)(nil)

// NewRegistry creates a registry holding plugins, run in the given order.
func NewRegistry(plugins ...Plugin) *Registry {
	return &Registry{plugins: append([]Plugin(nil), plugins...)}
}

// PostProcessingPlugins returns a copy of the plugin list.
func (r *Registry) PostProcessingPlugins() []Plugin {
	return append([]Plugin(nil), r.plugins...)
}

// Preparer is implemented by plugins that want the whole batch of found
// events before they are processed one by one.
type Preparer interface {
	Prepare(ctx context.Context, events []*model.EventSummary) error
}
