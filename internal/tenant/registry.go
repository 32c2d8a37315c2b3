package tenant

import (
	"fmt"

	"github.com/seahkrah/SmartAttend-sub012/internal/domain"
)

// Table a registry entry for a tenant-isolated table.
type Table struct {
	Name     string
	Column   string // tenant discriminator column
	Required bool   // isolation mandatory (always true for business tables)
}

// Registry static table -> discriminator mapping, built once at process
// start and read-only afterwards. Tables absent from the registry cannot be
// reached through the scoped layer at all (fail closed).
type Registry struct {
	tables map[string]Table
}

// NewRegistry builds a registry from entries. Duplicate names and empty
// columns are rejected up front; this runs at startup, so fail hard.
func NewRegistry(entries []Table) (*Registry, error) {
	tables := make(map[string]Table, len(entries))
	for _, e := range entries {
		if e.Name == "" || e.Column == "" {
			return nil, fmt.Errorf("registry entry %q: table and column are required", e.Name)
		}
		if _, dup := tables[e.Name]; dup {
			return nil, fmt.Errorf("registry entry %q: duplicate table", e.Name)
		}
		tables[e.Name] = e
	}
	return &Registry{tables: tables}, nil
}

// Lookup returns the registry entry for a table, or ErrTableNotRegistered.
func (r *Registry) Lookup(table string) (Table, error) {
	t, ok := r.tables[table]
	if !ok {
		return Table{}, fmt.Errorf("table %q: %w", table, domain.ErrTableNotRegistered)
	}
	return t, nil
}

// DefaultRegistry the tables of the campus SaaS that participate in tenant
// isolation. New tables must be added here before the scoped layer will
// touch them.
func DefaultRegistry() *Registry {
	r, err := NewRegistry([]Table{
		{Name: "students", Column: "tenant_id", Required: true},
		{Name: "employees", Column: "tenant_id", Required: true},
		{Name: "courses", Column: "tenant_id", Required: true},
		{Name: "audit_records", Column: "tenant_id", Required: true},
		{Name: "audit_access_log", Column: "tenant_id", Required: true},
	})
	if err != nil {
		panic(err) // static entries, unreachable
	}
	return r
}
