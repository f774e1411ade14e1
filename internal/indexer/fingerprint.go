package indexer

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/eventidx/eventidx/pkg/model"
)

// Fingerprint hashes the parts of the detail item configuration that affect
// indexing: each item's key and type, in key order. Display names are
// ignored. It returns nil when there are no items.
func Fingerprint(items []model.EventDetailItem) []byte {
	if len(items) == 0 {
		return nil
	}
	sorted := append([]model.EventDetailItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	h := blake3.New()
	for _, item := range sorted {
		writeField(h, item.Key)
		writeField(h, string(item.Type))
	}
	return h.Sum(nil)
}

// writeField writes s prefixed with its length, so no key can spell out
// the boundary of the next item.
func writeField(w io.Writer, s string) {
	var n [binary.MaxVarintLen64]byte
	_, _ = w.Write(n[:binary.PutUvarint(n[:], uint64(len(s)))])
	_, _ = io.WriteString(w, s)
}
