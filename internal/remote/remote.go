// Package remote defines the backend-agnostic boundary to the relational store.
// All reads and writes against the hosted backend go through this interface.
// Stores never import a concrete backend directly.
package remote

import "context"

// Op is a filter operator.
type Op string

const (
	// OpEq matches rows whose column equals the filter value.
	OpEq Op = "eq"

	// OpIn matches rows whose column is one of the filter values.
	// The value must be a slice.
	OpIn Op = "in"
)

// Filter restricts a query, update, or delete to matching rows.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// In builds a membership filter over a set of values.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// Order describes a sort key.
type Order struct {
	Column     string
	Descending bool
}

// Join requests a foreign-key expansion: the row referenced by Column is
// inlined into the result under Name. Relation resolution is the store's
// responsibility.
type Join struct {
	// Name is the key the related row appears under in the result.
	Name string

	// Table is the related table.
	Table string

	// Column is the foreign-key column on the queried table.
	Column string
}

// Query describes a table-scoped select.
type Query struct {
	Table   string
	Columns []string // empty means all columns
	Filters []Filter
	Order   []Order
	Joins   []Join
	Limit   int // 0 means no limit
}

// Store is the capability set of the remote relational store. Implementations
// decode result rows into dest with JSON semantics; dest must be a pointer to
// a struct or slice of structs. A nil dest discards the result.
//
// The store is the single source of truth. Callers keep local caches
// consistent by re-fetching after every mutation, never by patching locally
// from the write response alone.
type Store interface {
	// Select fetches rows matching the query.
	Select(ctx context.Context, q Query, dest any) error

	// Insert writes one or more rows into table. rows may be a single
	// map/struct or a slice. When dest is non-nil the inserted rows are
	// returned into it.
	Insert(ctx context.Context, table string, rows any, dest any) error

	// Update applies patch to every row matching filters.
	Update(ctx context.Context, table string, patch map[string]any, filters []Filter, dest any) error

	// Delete removes every row matching filters.
	Delete(ctx context.Context, table string, filters []Filter) error
}
