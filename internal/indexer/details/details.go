// Package details loads the configured indexed event detail items.
package details

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eventidx/eventidx/pkg/model"
)

// Errors
var (
	ErrEmptyKey     = errors.New("detail key cannot be empty")
	ErrDuplicateKey = errors.New("duplicate detail key")
)

// Source supplies the current detail item configuration.
type Source interface {
	DetailItems(ctx context.Context) ([]model.EventDetailItem, error)
}

// Config represents the detail items file.
type Config struct {
	Details []model.EventDetailItem `yaml:"details"`
}

// Static is a fixed detail item list.
type Static []model.EventDetailItem

// DetailItems returns a copy of the list.
func (s Static) DetailItems(ctx context.Context) ([]model.EventDetailItem, error) {
	return append([]model.EventDetailItem(nil), s...), nil
}

// File reads detail items from a YAML file on every call, so edits take
// effect on the next indexer init.
type File struct {
	Path string
}

// DetailItems loads and validates the file. A missing file means no items.
func (f File) DetailItems(ctx context.Context) ([]model.EventDetailItem, error) {
	items, err := LoadFromFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return items, err
}

// LoadFromFile loads detail items from a YAML file.
func LoadFromFile(path string) ([]model.EventDetailItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read detail items file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses detail items from YAML bytes.
func LoadFromBytes(data []byte) ([]model.EventDetailItem, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse detail items: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Details))
	for i := range cfg.Details {
		item := &cfg.Details[i]
		if item.Key == "" {
			return nil, fmt.Errorf("detail %d: %w", i, ErrEmptyKey)
		}
		typ, err := model.ParseDetailType(string(item.Type))
		if err != nil {
			return nil, fmt.Errorf("detail %q: %w", item.Key, err)
		}
		item.Type = typ
		if seen[item.Key] {
			return nil, fmt.Errorf("detail %q: %w", item.Key, ErrDuplicateKey)
		}
		seen[item.Key] = true
	}
	return cfg.Details, nil
}
