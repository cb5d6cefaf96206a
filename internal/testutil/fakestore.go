// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/model"
	"taskdeck/internal/remote"
)

// UpdateCall records one Update invocation for assertions.
type UpdateCall struct {
	Table   string
	Patch   map[string]any
	Filters []remote.Filter
}

// FakeStore is an in-memory implementation of remote.Store for testing.
// Rows live as JSON-shaped maps per table. Joins resolve against the related
// table's id column, like the real backends.
type FakeStore struct {
	mu     sync.Mutex
	tables map[string][]map[string]any

	// Error injection, keyed by table.
	SelectErr map[string]error
	InsertErr map[string]error
	UpdateErr map[string]error
	DeleteErr map[string]error

	// UpdateCalls records every Update in order.
	UpdateCalls []UpdateCall
}

// NewFakeStore creates an empty fake store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		tables:    make(map[string][]map[string]any),
		SelectErr: make(map[string]error),
		InsertErr: make(map[string]error),
		UpdateErr: make(map[string]error),
		DeleteErr: make(map[string]error),
	}
}

// Seed inserts rows directly, bypassing error injection. Missing ids and
// timestamps are filled like a real insert.
func (f *FakeStore) Seed(table string, rows ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		f.tables[table] = append(f.tables[table], fillRow(table, normalize(row)))
	}
}

// Rows returns a deep copy of a table's rows.
func (f *FakeStore) Rows(table string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.tables[table]))
	for i, row := range f.tables[table] {
		out[i] = normalize(row)
	}
	return out
}

// Select implements remote.Store.
func (f *FakeStore) Select(ctx context.Context, q remote.Query, dest any) error {
	if err := f.SelectErr[q.Table]; err != nil {
		return err
	}

	f.mu.Lock()
	var matched []map[string]any
	for _, row := range f.tables[q.Table] {
		if rowMatches(row, q.Filters) {
			matched = append(matched, normalize(row))
		}
	}

	for _, o := range q.Order {
		col, desc := o.Column, o.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			less := lessValue(matched[i][col], matched[j][col])
			if desc {
				return lessValue(matched[j][col], matched[i][col])
			}
			return less
		})
	}

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	for _, j := range q.Joins {
		for _, row := range matched {
			row[j.Name] = nil
			fk, ok := row[j.Column].(string)
			if !ok || fk == "" {
				continue
			}
			for _, rel := range f.tables[j.Table] {
				if rel["id"] == fk {
					row[j.Name] = normalize(rel)
					break
				}
			}
		}
	}
	f.mu.Unlock()

	return decode(matched, dest)
}

// Insert implements remote.Store.
func (f *FakeStore) Insert(ctx context.Context, table string, rowsIn any, dest any) error {
	if err := f.InsertErr[table]; err != nil {
		return err
	}

	rows, err := normalizeAny(rowsIn)
	if err != nil {
		return &remote.FetchError{Op: "insert", Table: table, Wrapped: err}
	}

	f.mu.Lock()
	inserted := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		filled := fillRow(table, row)
		f.tables[table] = append(f.tables[table], filled)
		inserted = append(inserted, normalize(filled))
	}
	f.mu.Unlock()

	return decode(inserted, dest)
}

// Update implements remote.Store.
func (f *FakeStore) Update(ctx context.Context, table string, patch map[string]any, filters []remote.Filter, dest any) error {
	f.mu.Lock()
	f.UpdateCalls = append(f.UpdateCalls, UpdateCall{Table: table, Patch: patch, Filters: filters})
	f.mu.Unlock()

	if err := f.UpdateErr[table]; err != nil {
		return err
	}

	normalized := normalize(patch)

	f.mu.Lock()
	var updated []map[string]any
	for _, row := range f.tables[table] {
		if !rowMatches(row, filters) {
			continue
		}
		for k, v := range normalized {
			row[k] = v
		}
		updated = append(updated, normalize(row))
	}
	f.mu.Unlock()

	return decode(updated, dest)
}

// Delete implements remote.Store.
func (f *FakeStore) Delete(ctx context.Context, table string, filters []remote.Filter) error {
	if err := f.DeleteErr[table]; err != nil {
		return err
	}

	f.mu.Lock()
	kept := f.tables[table][:0]
	for _, row := range f.tables[table] {
		if !rowMatches(row, filters) {
			kept = append(kept, row)
		}
	}
	f.tables[table] = kept
	f.mu.Unlock()
	return nil
}

func rowMatches(row map[string]any, filters []remote.Filter) bool {
	for _, f := range filters {
		switch f.Op {
		case remote.OpIn:
			values, _ := f.Value.([]string)
			found := false
			for _, v := range values {
				if equalValue(row[f.Column], v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if !equalValue(row[f.Column], f.Value) {
				return false
			}
		}
	}
	return true
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessValue(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// normalize deep-copies a row with JSON semantics.
func normalize(row map[string]any) map[string]any {
	rows, err := normalizeAny(row)
	if err != nil || len(rows) == 0 {
		return map[string]any{}
	}
	return rows[0]
}

func normalizeAny(rowsIn any) ([]map[string]any, error) {
	data, err := json.Marshal(rowsIn)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && data[0] == '[' {
		var rows []map[string]any
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, err
	}
	return []map[string]any{row}, nil
}

func fillRow(table string, row map[string]any) map[string]any {
	if table != model.TableMemberships {
		if v, ok := row["id"].(string); !ok || v == "" {
			row["id"] = uuid.NewString()
		}
	}
	if table == model.TableProjects || table == model.TableTasks {
		now := time.Now().UTC().Format(time.RFC3339)
		for _, col := range []string{"created_at", "updated_at"} {
			if _, present := row[col]; !present {
				row[col] = now
			}
		}
	}
	return row
}

func decode(rows []map[string]any, dest any) error {
	if dest == nil {
		return nil
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode rows: %w", err)
	}
	return nil
}

// FetchErr builds a FetchError for injection.
func FetchErr(op, table string) error {
	return &remote.FetchError{Op: op, Table: table, Wrapped: fmt.Errorf("injected failure")}
}

// ValidationErr builds a ValidationError for injection.
func ValidationErr(table, message string) error {
	return &remote.ValidationError{Table: table, Message: message}
}
