package index

import (
	"net/netip"
	"path"
	"strconv"
	"strings"

	"github.com/eventidx/eventidx/pkg/model"
)

// Field is a configured event detail projected into a document, its values
// normalized according to the detail type.
type Field struct {
	Key    string           `bson:"key"`
	Type   model.DetailType `bson:"type"`
	Values []string         `bson:"values"`
}

// deriveFields projects the configured details of e. Values that do not
// parse as the configured type are dropped.
func deriveFields(e *model.EventSummary, items []model.EventDetailItem) []Field {
	var fields []Field
	for _, item := range items {
		raw := e.Detail(item.Key)
		if len(raw) == 0 {
			continue
		}
		values := make([]string, 0, len(raw))
		for _, v := range raw {
			if n, ok := normalize(item.Type, v); ok {
				values = append(values, n)
			}
		}
		if len(values) > 0 {
			fields = append(fields, Field{Key: item.Key, Type: item.Type, Values: values})
		}
	}
	return fields
}

func normalize(t model.DetailType, v string) (string, bool) {
	v = strings.TrimSpace(v)
	switch t {
	case model.DetailInteger:
		n, err := strconv.ParseInt(v, 10, 32)
		return strconv.FormatInt(n, 10), err == nil
	case model.DetailLong:
		n, err := strconv.ParseInt(v, 10, 64)
		return strconv.FormatInt(n, 10), err == nil
	case model.DetailFloat:
		f, err := strconv.ParseFloat(v, 32)
		return strconv.FormatFloat(f, 'g', -1, 32), err == nil
	case model.DetailDouble:
		f, err := strconv.ParseFloat(v, 64)
		return strconv.FormatFloat(f, 'g', -1, 64), err == nil
	case model.DetailIPAddress:
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return "", false
		}
		return addr.Unmap().String(), true
	case model.DetailPath:
		if v == "" {
			return "", false
		}
		return path.Clean("/" + v), true
	default:
		return v, true
	}
}
