package pgstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"chat-sync/internal/docstore"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeFields(fields docstore.Fields) ([]byte, error) {
	return json.Marshal(normalize(map[string]any(fields)))
}

func encodeValue(v any) ([]byte, error) {
	return json.Marshal(normalize(v))
}

func decodeFields(raw []byte) (docstore.Fields, error) {
	fields := docstore.Fields{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return fields, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timeLayout)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(timeLayout)
	case docstore.Fields:
		return normalize(map[string]any(t))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// buildSelect translates q into SQL over the documents table.
func buildSelect(q docstore.Query, forUpdate bool) (string, []any, error) {
	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString(`SELECT id, data FROM documents WHERE collection = $1`)
	for _, f := range q.Filters {
		if err := checkField(f.Field); err != nil {
			return "", nil, err
		}
		raw, err := encodeValue(f.Value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, f.Field, string(raw))
		fmt.Fprintf(&b, ` AND data -> $%d::text = $%d::jsonb`, len(args)-1, len(args))
	}
	if q.OrderBy != "" {
		if err := checkField(q.OrderBy); err != nil {
			return "", nil, err
		}
		args = append(args, q.OrderBy)
		dir := "ASC"
		if q.Direction == docstore.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&b, ` ORDER BY data -> $%d::text %s, id ASC`, len(args), dir)
	} else {
		b.WriteString(` ORDER BY id ASC`)
	}
	if q.Limit > 0 {
		b.WriteString(` LIMIT ` + strconv.Itoa(q.Limit))
	}
	if forUpdate {
		b.WriteString(` FOR UPDATE`)
	}
	return b.String(), args, nil
}

func checkField(field string) error {
	if field == "" || strings.ContainsAny(field, ".`\"'") {
		return fmt.Errorf("pgstore: unsupported field %q", field)
	}
	return nil
}
