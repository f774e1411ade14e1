package details

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventidx/eventidx/pkg/model"
)

func TestLoadFromBytes(t *testing.T) {
	yaml := `
details:
  - key: zenoss.device.production_state
    name: Production State
    type: INTEGER
  - { key: zenoss.device.ip_address, name: IP Address, type: ip_address }
  - { key: zenoss.device.location, name: Location, type: path }
`
	items, err := LoadFromBytes([]byte(yaml))
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, model.EventDetailItem{
		Key:  "zenoss.device.production_state",
		Name: "Production State",
		Type: model.DetailInteger,
	}, items[0])
	assert.Equal(t, model.DetailIPAddress, items[1].Type)
	assert.Equal(t, model.DetailPath, items[2].Type)
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"bad yaml", "details: [", nil},
		{"empty key", "details:\n  - { type: string }", ErrEmptyKey},
		{"bad type", "details:\n  - { key: a, type: blob }", nil},
		{"duplicate", "details:\n  - { key: a, type: string }\n  - { key: a, type: long }", ErrDuplicateKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFile_DetailItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "details.yml")

	items, err := File{Path: path}.DetailItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items, "missing file means no items")

	require.NoError(t, os.WriteFile(path, []byte("details:\n  - { key: a, name: A, type: string }\n"), 0o644))
	items, err = File{Path: path}.DetailItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.EventDetailItem{{Key: "a", Name: "A", Type: model.DetailString}}, items)
}

func TestStatic_DetailItemsCopies(t *testing.T) {
	s := Static{{Key: "a", Type: model.DetailString}}
	items, err := s.DetailItems(context.Background())
	require.NoError(t, err)
	items[0].Key = "changed"
	assert.Equal(t, "a", s[0].Key)
}
