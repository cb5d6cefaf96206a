// Package sqlite implements the remote.Store interface over a local SQLite
// database. It backs development and tests with the same relational contract
// the hosted store provides: table-scoped CRUD with filters, ordering, and
// foreign-key expansions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskdeck/internal/remote"
)

// tables maps each table to its column set. Filter, order, and patch columns
// are validated against it before they reach SQL.
var tables = map[string][]string{
	"people":              {"id", "email", "name", "role", "avatar_url"},
	"projects":            {"id", "name", "icon", "created_at", "updated_at"},
	"project_memberships": {"project_id", "person_id", "role"},
	"task_states":         {"id", "project_id", "name", "color", "position"},
	"task_priorities":     {"id", "project_id", "name", "color", "position"},
	"tasks":               {"id", "project_id", "title", "description", "state_id", "priority_id", "assigned_to", "created_by", "created_at", "updated_at"},
}

// Store is a local relational store.
type Store struct {
	db *sql.DB
}

// Open initializes the store at dbPath (":memory:" is allowed) and runs the
// required migrations.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The modernc driver opens a new connection per query by default; a
	// single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS people (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            name TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            avatar_url TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            icon TEXT NOT NULL DEFAULT '',
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS project_memberships (
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            person_id TEXT NOT NULL REFERENCES people(id),
            role TEXT NOT NULL DEFAULT 'member',
            UNIQUE(project_id, person_id)
        );`,
		`CREATE TABLE IF NOT EXISTS task_states (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            color TEXT NOT NULL DEFAULT '',
            position INTEGER NOT NULL,
            UNIQUE(project_id, position)
        );`,
		`CREATE TABLE IF NOT EXISTS task_priorities (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            color TEXT NOT NULL DEFAULT '',
            position INTEGER NOT NULL,
            UNIQUE(project_id, position)
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            state_id TEXT REFERENCES task_states(id),
            priority_id TEXT REFERENCES task_priorities(id),
            assigned_to TEXT REFERENCES people(id),
            created_by TEXT NOT NULL REFERENCES people(id),
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_person ON project_memberships(person_id);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Select implements remote.Store.
func (s *Store) Select(ctx context.Context, q remote.Query, dest any) error {
	cols, err := selectColumns(q.Table, q.Columns)
	if err != nil {
		return &remote.FetchError{Op: "select", Table: q.Table, Wrapped: err}
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(cols, ", ") + " FROM " + q.Table)

	where, args, err := whereClause(q.Table, q.Filters)
	if err != nil {
		return &remote.FetchError{Op: "select", Table: q.Table, Wrapped: err}
	}
	sb.WriteString(where)

	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			if !validColumn(q.Table, o.Column) {
				return &remote.FetchError{Op: "select", Table: q.Table, Wrapped: fmt.Errorf("unknown order column: %s", o.Column)}
			}
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = o.Column + " " + dir
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", q.Limit))
	}

	rows, err := s.queryMaps(ctx, sb.String(), args...)
	if err != nil {
		return &remote.FetchError{Op: "select", Table: q.Table, Wrapped: err}
	}

	for _, j := range q.Joins {
		if err := s.expandJoin(ctx, rows, j); err != nil {
			return &remote.FetchError{Op: "select", Table: q.Table, Wrapped: err}
		}
	}

	return decodeRows(rows, dest, "select", q.Table)
}

// Insert implements remote.Store. Missing id and timestamp columns are
// assigned before the write, matching what the hosted store defaults.
func (s *Store) Insert(ctx context.Context, table string, rowsIn any, dest any) error {
	if _, ok := tables[table]; !ok {
		return &remote.FetchError{Op: "insert", Table: table, Wrapped: fmt.Errorf("unknown table")}
	}

	rows, err := normalizeRows(rowsIn)
	if err != nil {
		return &remote.FetchError{Op: "insert", Table: table, Wrapped: err}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, row := range rows {
		fillDefaults(table, row, now)

		cols := make([]string, 0, len(row))
		for _, col := range tables[table] {
			if _, present := row[col]; present {
				cols = append(cols, col)
			}
		}
		if len(cols) == 0 {
			return &remote.FetchError{Op: "insert", Table: table, Wrapped: fmt.Errorf("no recognized columns")}
		}

		placeholders := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			placeholders[i] = "?"
			args[i] = row[col]
		}

		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return writeError("insert", table, err)
		}
	}

	return decodeRows(rows, dest, "insert", table)
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, table string, patch map[string]any, filters []remote.Filter, dest any) error {
	if _, ok := tables[table]; !ok {
		return &remote.FetchError{Op: "update", Table: table, Wrapped: fmt.Errorf("unknown table")}
	}

	patch, err := normalizeRow(patch)
	if err != nil {
		return &remote.FetchError{Op: "update", Table: table, Wrapped: err}
	}

	sets := make([]string, 0, len(patch))
	args := make([]any, 0, len(patch))
	for _, col := range tables[table] {
		v, present := patch[col]
		if !present {
			continue
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if len(sets) == 0 {
		return &remote.FetchError{Op: "update", Table: table, Wrapped: fmt.Errorf("empty patch")}
	}

	where, whereArgs, err := whereClause(table, filters)
	if err != nil {
		return &remote.FetchError{Op: "update", Table: table, Wrapped: err}
	}
	args = append(args, whereArgs...)

	stmt := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + where
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return writeError("update", table, err)
	}

	if dest != nil {
		return s.Select(ctx, remote.Query{Table: table, Filters: filters}, dest)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table string, filters []remote.Filter) error {
	if _, ok := tables[table]; !ok {
		return &remote.FetchError{Op: "delete", Table: table, Wrapped: fmt.Errorf("unknown table")}
	}

	where, args, err := whereClause(table, filters)
	if err != nil {
		return &remote.FetchError{Op: "delete", Table: table, Wrapped: err}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+where, args...); err != nil {
		return writeError("delete", table, err)
	}
	return nil
}

// expandJoin attaches the row referenced by j.Column under j.Name for every
// base row. Related rows are fetched in one batched lookup by primary key.
func (s *Store) expandJoin(ctx context.Context, baseRows []map[string]any, j remote.Join) error {
	if _, ok := tables[j.Table]; !ok {
		return fmt.Errorf("unknown join table: %s", j.Table)
	}

	seen := make(map[string]bool)
	ids := make([]string, 0, len(baseRows))
	for _, row := range baseRows {
		id, ok := row[j.Column].(string)
		if !ok || id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	related := make(map[string]map[string]any, len(ids))
	if len(ids) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
		args := make([]any, len(ids))
		for i, id := range ids {
			args[i] = id
		}
		cols := tables[j.Table]
		stmt := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s)",
			strings.Join(cols, ", "), j.Table, placeholders)
		rows, err := s.queryMaps(ctx, stmt, args...)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if id, ok := r["id"].(string); ok {
				related[id] = r
			}
		}
	}

	for _, row := range baseRows {
		if id, ok := row[j.Column].(string); ok {
			if rel, found := related[id]; found {
				row[j.Name] = rel
				continue
			}
		}
		row[j.Name] = nil
	}
	return nil
}

// queryMaps runs a query and scans every row into a map keyed by column.
func (s *Store) queryMaps(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func selectColumns(table string, requested []string) ([]string, error) {
	def, ok := tables[table]
	if !ok {
		return nil, fmt.Errorf("unknown table")
	}
	if len(requested) == 0 {
		return def, nil
	}
	for _, col := range requested {
		if !validColumn(table, col) {
			return nil, fmt.Errorf("unknown column: %s", col)
		}
	}
	return requested, nil
}

func whereClause(table string, filters []remote.Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		if !validColumn(table, f.Column) {
			return "", nil, fmt.Errorf("unknown filter column: %s", f.Column)
		}
		switch f.Op {
		case remote.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("in filter on %s needs a string slice", f.Column)
			}
			if len(values) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			placeholders := strings.TrimRight(strings.Repeat("?,", len(values)), ",")
			conds = append(conds, f.Column+" IN ("+placeholders+")")
			for _, v := range values {
				args = append(args, v)
			}
		default:
			if f.Value == nil {
				conds = append(conds, f.Column+" IS NULL")
				continue
			}
			conds = append(conds, f.Column+" = ?")
			args = append(args, f.Value)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func validColumn(table, col string) bool {
	for _, c := range tables[table] {
		if c == col {
			return true
		}
	}
	return false
}

// normalizeRows coerces the caller's rows value into map form with JSON
// semantics, so structs and maps behave identically.
func normalizeRows(rowsIn any) ([]map[string]any, error) {
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

func normalizeRow(patch map[string]any) (map[string]any, error) {
	rows, err := normalizeRows(patch)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func fillDefaults(table string, row map[string]any, now string) {
	if validColumn(table, "id") {
		if v, ok := row["id"].(string); !ok || v == "" {
			row["id"] = uuid.NewString()
		}
	}
	for _, col := range []string{"created_at", "updated_at"} {
		if !validColumn(table, col) {
			continue
		}
		if _, present := row[col]; !present {
			row[col] = now
		}
	}
}

func decodeRows(rows []map[string]any, dest any, op, table string) error {
	if dest == nil {
		return nil
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return &remote.FetchError{Op: op, Table: table, Wrapped: err}
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return &remote.FetchError{Op: op, Table: table, Wrapped: fmt.Errorf("decode rows: %w", err)}
	}
	return nil
}

// writeError maps constraint violations onto ValidationError; everything
// else stays a FetchError.
func writeError(op, table string, err error) error {
	if strings.Contains(err.Error(), "constraint") {
		return &remote.ValidationError{Table: table, Message: err.Error()}
	}
	return &remote.FetchError{Op: op, Table: table, Wrapped: err}
}
