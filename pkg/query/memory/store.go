// Package memory implements api.Query over in-memory fixture records.
//
// Records are JSON-shaped maps (map[string]any, []any, string, float64,
// bool, nil) grouped by entry point. Graph supports the subset of remote
// query features workflows rely on: equality filters on top-level fields,
// dotted field selection, list/single results and not-found errors.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/petrijr/sagaflow/pkg/api"
)

// ErrNotFound is wrapped by errors returned when ThrowIfKeyNotFound is set
// and a filtered value matches no record.
var ErrNotFound = errors.New("not found")

// Store holds fixture records. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string][]map[string]any
}

var _ api.Query = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[string][]map[string]any)}
}

// Load reads a JSON object of the form {"<entry point>": [records...]}
// and adds every record.
func Load(r io.Reader) (*Store, error) {
	var fixtures map[string][]any
	if err := json.NewDecoder(r).Decode(&fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	s := New()
	for entryPoint, records := range fixtures {
		if err := s.Add(entryPoint, records...); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends records to entryPoint. Records may be any JSON-encodable
// value; they are stored normalized.
func (s *Store) Add(entryPoint string, records ...any) error {
	normalized := make([]map[string]any, 0, len(records))
	for _, r := range records {
		m, err := normalizeRecord(r)
		if err != nil {
			return fmt.Errorf("%s record: %w", entryPoint, err)
		}
		normalized = append(normalized, m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[entryPoint] = append(s.records[entryPoint], normalized...)
	return nil
}

// Update applies fn to a copy of the record of entryPoint whose "id" is id
// and stores the result.
func (s *Store) Update(entryPoint, id string, fn func(record map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.records[entryPoint] {
		if r["id"] != id {
			continue
		}
		cp := deepCopy(r).(map[string]any)
		if err := fn(cp); err != nil {
			return err
		}
		m, err := normalizeRecord(cp)
		if err != nil {
			return fmt.Errorf("%s %s: %w", entryPoint, id, err)
		}
		s.records[entryPoint][i] = m
		return nil
	}
	return fmt.Errorf("%s id %w: %s", entryPoint, ErrNotFound, id)
}

// Get returns a copy of the record of entryPoint whose "id" is id.
func (s *Store) Get(entryPoint, id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records[entryPoint] {
		if r["id"] == id {
			return deepCopy(r).(map[string]any), true
		}
	}
	return nil, false
}

// Graph runs req against the fixtures. With List set the result is a
// []map[string]any (possibly empty); otherwise it is the first match or
// nil.
func (s *Store) Graph(ctx context.Context, req api.QueryRequest) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.EntryPoint == "" {
		return nil, errors.New("query: entry point is required")
	}

	filters, err := normalizeFilters(req.Variables)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []map[string]any
	for _, r := range s.records[req.EntryPoint] {
		if matches(r, filters) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	if req.ThrowIfKeyNotFound {
		if err := checkKeys(req.EntryPoint, filters, matched); err != nil {
			return nil, err
		}
	}

	tree := parseFields(req.Fields)
	out := make([]map[string]any, 0, len(matched))
	for _, r := range matched {
		out = append(out, project(r, tree).(map[string]any))
	}

	if req.List {
		return out, nil
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// normalizeRecord converts v into the JSON data model.
func normalizeRecord(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("record must be an object: %w", err)
	}
	return m, nil
}

// normalizeFilters turns every variable into a list of accepted values.
func normalizeFilters(vars map[string]any) (map[string][]any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}

	filters := make(map[string][]any, len(raw))
	for k, v := range raw {
		if list, ok := v.([]any); ok {
			filters[k] = list
		} else {
			filters[k] = []any{v}
		}
	}
	return filters, nil
}

func matches(r map[string]any, filters map[string][]any) bool {
	for key, accepted := range filters {
		if !containsValue(accepted, r[key]) {
			return false
		}
	}
	return true
}

func containsValue(list []any, v any) bool {
	for _, x := range list {
		if isScalar(x) && isScalar(v) && x == v {
			return true
		}
	}
	return false
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool:
		return true
	}
	return false
}

// checkKeys reports filtered values that matched no record.
func checkKeys(entryPoint string, filters map[string][]any, matched []map[string]any) error {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var missing []string
		for _, want := range filters[key] {
			found := false
			for _, r := range matched {
				if isScalar(r[key]) && r[key] == want {
					found = true
					break
				}
			}
			if !found {
				missing = append(missing, fmt.Sprint(want))
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s %s %w: %s", entryPoint, key, ErrNotFound, strings.Join(missing, ", "))
		}
	}
	return nil
}

// fieldTree is a parsed field selection. A nil tree or a "*" key selects
// everything at that level.
type fieldTree map[string]fieldTree

func parseFields(fields []string) fieldTree {
	if len(fields) == 0 {
		return nil
	}
	root := fieldTree{}
	for _, f := range fields {
		node := root
		for _, part := range strings.Split(f, ".") {
			next, ok := node[part]
			if !ok {
				next = fieldTree{}
				node[part] = next
			}
			node = next
		}
	}
	return root
}

func project(v any, tree fieldTree) any {
	switch val := v.(type) {
	case map[string]any:
		if len(tree) == 0 {
			return deepCopy(val)
		}
		out := make(map[string]any)
		if _, all := tree["*"]; all {
			for k, x := range val {
				out[k] = deepCopy(x)
			}
		}
		for k, sub := range tree {
			if k == "*" {
				continue
			}
			x, ok := val[k]
			if !ok {
				continue
			}
			out[k] = project(x, sub)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = project(x, tree)
		}
		return out
	default:
		return val
	}
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = deepCopy(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = deepCopy(x)
		}
		return out
	default:
		return val
	}
}
