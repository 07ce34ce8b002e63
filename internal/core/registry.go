package core

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/afero"
)

// Registry is the immutable set of extractable tables.
// It is constructed once at process start and passed by reference into
// every component that needs it; there is no mutation API.
type Registry struct {
	tables map[string]Table
	names  []string
}

// NewRegistry validates the given descriptors and builds a registry.
// Each table must have a name, a time field, and order fields that include
// the time field (the pagination-stability invariant). Duplicate names are
// rejected.
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if err := validateTable(t); err != nil {
			return nil, err
		}
		if _, exists := r.tables[t.Name]; exists {
			return nil, fmt.Errorf("duplicate table: %s", t.Name)
		}
		r.tables[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func validateTable(t Table) error {
	if t.Name == "" {
		return fmt.Errorf("table with empty name")
	}
	if t.TimeField == "" {
		return fmt.Errorf("table %s: missing time field", t.Name)
	}
	if len(t.OrderFields) == 0 {
		return fmt.Errorf("table %s: missing order fields", t.Name)
	}
	for _, f := range t.OrderFields {
		if f == t.TimeField {
			return nil
		}
	}
	return fmt.Errorf("table %s: order fields %v must include time field %s",
		t.Name, t.OrderFields, t.TimeField)
}

// Resolve returns the descriptor for a table name.
// A miss wraps ErrUnknownTable.
func (r *Registry) Resolve(name string) (Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

// Tables returns all descriptors sorted by name.
func (r *Registry) Tables() []Table {
	result := make([]Table, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, r.tables[name])
	}
	return result
}

// Names returns the sorted table names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	return len(r.tables)
}

// BuiltinRegistry returns the stock table set.
func BuiltinRegistry() *Registry {
	r, err := NewRegistry(
		Table{
			Name:        "tweets",
			TimeField:   "created_at_ts",
			PrimaryKey:  "tweet_id",
			OrderFields: []string{"created_at_ts", "tweet_id"},
			Description: "Tweet records",
		},
		Table{
			Name:        "replies",
			TimeField:   "created_at_ts",
			PrimaryKey:  "tweet_id",
			OrderFields: []string{"created_at_ts", "tweet_id"},
			Description: "Reply records",
		},
		Table{
			Name:        "users",
			TimeField:   "updated_at",
			PrimaryKey:  "user_id",
			OrderFields: []string{"updated_at", "user_id"},
			Description: "User profiles",
		},
		Table{
			Name:        "followers",
			TimeField:   "follower_created_at_ts",
			PrimaryKey:  "follower_id",
			OrderFields: []string{"follower_created_at_ts", "user_id", "follower_id"},
			Description: "Follower relationships",
		},
		Table{
			Name:        "following",
			TimeField:   "following_created_at_ts",
			PrimaryKey:  "following_id",
			OrderFields: []string{"following_created_at_ts", "user_id", "following_id"},
			Description: "Following relationships",
		},
		Table{
			Name:        "quoted_status_summary",
			TimeField:   "created_at_ts",
			PrimaryKey:  "tweet_id",
			OrderFields: []string{"created_at_ts", "tweet_id"},
			Description: "Quoted tweet summaries",
		},
		Table{
			Name:        "retweeted_status_summary",
			TimeField:   "created_at_ts",
			PrimaryKey:  "tweet_id",
			OrderFields: []string{"created_at_ts", "tweet_id"},
			Description: "Retweeted tweet summaries",
		},
		Table{
			Name:        "kol_task_status",
			TimeField:   "updated_at",
			PrimaryKey:  "user_id",
			OrderFields: []string{"updated_at", "user_id"},
			Description: "KOL task status",
		},
	)
	if err != nil {
		panic(fmt.Sprintf("builtin registry: %v", err))
	}
	return r
}

// LoadRegistry builds a registry from a JSON file containing an array of
// table descriptors, letting deployments supply their own table set.
func LoadRegistry(fsys afero.Fs, path string) (*Registry, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}

	var tables []Table
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parse tables file %s: %w", path, err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("tables file %s: no tables defined", path)
	}

	reg, err := NewRegistry(tables...)
	if err != nil {
		return nil, fmt.Errorf("tables file %s: %w", path, err)
	}
	return reg, nil
}
