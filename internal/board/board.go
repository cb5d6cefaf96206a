// Package board mirrors tasks from the remote store and exposes a derived,
// filtered view over them. Task reads use the full denormalized join; the
// cache holds snapshots, newest first.
package board

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"taskdeck/internal/directory"
	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/registry"
	"taskdeck/internal/remote"
)

var errNoRowReturned = errors.New("insert returned no row")

// TaskData is the caller-supplied part of a new task. StateID may be empty;
// it then defaults to the current project's lowest-position state.
type TaskData struct {
	ProjectID   string
	Title       string
	Description string
	StateID     string
	PriorityID  string
	AssignedTo  *string
}

// Filters is the in-memory filter specification for the derived view. An
// empty field constrains nothing.
type Filters struct {
	Search     string
	StateID    string
	PriorityID string
	AssigneeID string
	ProjectID  string
}

// Board is the client-side task cache and filter engine.
type Board struct {
	store     remote.Store
	registry  *registry.Registry
	directory *directory.Directory
	provider  identity.Provider
	logger    *slog.Logger

	mu       sync.Mutex
	tasks    []model.Task
	selected map[string]bool
	filters  Filters

	// scopeProjectID is the project of the last load; empty means the
	// board holds tasks across all projects.
	scopeProjectID string

	// loading is shared by overlapping actions; see the concurrency notes
	// on Directory.
	loading bool
	lastErr error
}

// New creates an empty board. The registry supplies the current project's
// state list for defaulting; the directory resolves task creators.
func New(store remote.Store, reg *registry.Registry, dir *directory.Directory, provider identity.Provider, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		store:     store,
		registry:  reg,
		directory: dir,
		provider:  provider,
		logger:    logger,
		selected:  make(map[string]bool),
	}
}

// Tasks returns the cached tasks, newest first.
func (b *Board) Tasks() []model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Loading reports whether an action is in flight.
func (b *Board) Loading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// Err returns the last action failure, or nil.
func (b *Board) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// LoadForProject fetches the project's tasks with the denormalized join,
// newest first, and replaces the cache.
func (b *Board) LoadForProject(ctx context.Context, projectID string) error {
	return b.load(ctx, projectID)
}

// LoadAll fetches tasks across all projects and replaces the cache.
func (b *Board) LoadAll(ctx context.Context) error {
	return b.load(ctx, "")
}

func (b *Board) load(ctx context.Context, projectID string) error {
	b.begin()

	q := remote.Query{
		Table: model.TableTasks,
		Joins: registry.TaskJoins,
		Order: []remote.Order{{Column: "created_at", Descending: true}},
	}
	if projectID != "" {
		q.Filters = []remote.Filter{remote.Eq("project_id", projectID)}
	}

	var tasks []model.Task
	if err := b.store.Select(ctx, q, &tasks); err != nil {
		b.finish("load tasks", err)
		return err
	}

	b.mu.Lock()
	b.tasks = tasks
	b.scopeProjectID = projectID
	b.mu.Unlock()
	b.finish("load tasks", nil)
	return nil
}

// Create inserts a task and prepends the re-fetched joined row to the cache.
// created_by comes from the directory's resolution of the current identity;
// no client-side guard is applied when that resolution comes up empty — the
// remote store's NOT NULL constraint reports the failure.
func (b *Board) Create(ctx context.Context, data TaskData) (model.Task, error) {
	b.begin()

	stateID := data.StateID
	if stateID == "" {
		if states := b.registry.States(); len(states) > 0 {
			stateID = states[0].ID
		}
	}

	var createdBy any
	if person, ok := b.directory.ResolveCurrentPerson(b.provider); ok {
		createdBy = person.ID
	}

	now := time.Now().UTC()
	row := map[string]any{
		"project_id":  data.ProjectID,
		"title":       data.Title,
		"description": data.Description,
		"state_id":    nullable(stateID),
		"priority_id": nullable(data.PriorityID),
		"assigned_to": data.AssignedTo,
		"created_by":  createdBy,
		"created_at":  now,
		"updated_at":  now,
	}

	var created []model.Task
	if err := b.store.Insert(ctx, model.TableTasks, row, &created); err != nil {
		b.finish("create task", err)
		return model.Task{}, err
	}
	if len(created) == 0 {
		err := &remote.FetchError{Op: "insert", Table: model.TableTasks, Wrapped: errNoRowReturned}
		b.finish("create task", err)
		return model.Task{}, err
	}

	task, found, err := b.fetchJoined(ctx, created[0].ID)
	if err != nil {
		b.finish("create task", err)
		return model.Task{}, err
	}
	if !found {
		err := &remote.NotFoundError{Table: model.TableTasks, Key: created[0].ID}
		b.finish("create task", err)
		return model.Task{}, err
	}

	b.mu.Lock()
	b.tasks = append([]model.Task{task}, b.tasks...)
	b.mu.Unlock()
	b.finish("create task", nil)
	return task, nil
}

// Update writes patch to the task, re-fetches the joined row, and replaces
// the matching cache entry in place. A task missing from the cache or gone
// from the store is a silent no-op: the write already succeeded and the
// local copy is simply stale.
func (b *Board) Update(ctx context.Context, taskID string, patch map[string]any) error {
	b.begin()

	full := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		full[k] = v
	}
	full["updated_at"] = time.Now().UTC()

	err := b.store.Update(ctx, model.TableTasks, full,
		[]remote.Filter{remote.Eq("id", taskID)}, nil)
	if err != nil {
		b.finish("update task", err)
		return err
	}

	task, found, err := b.fetchJoined(ctx, taskID)
	if err != nil {
		b.finish("update task", err)
		return err
	}

	if found {
		b.mu.Lock()
		for i := range b.tasks {
			if b.tasks[i].ID == taskID {
				b.tasks[i] = task
				break
			}
		}
		b.mu.Unlock()
	}
	b.finish("update task", nil)
	return nil
}

// Delete removes the task remotely and drops it from the cache.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	b.begin()

	err := b.store.Delete(ctx, model.TableTasks,
		[]remote.Filter{remote.Eq("id", taskID)})
	if err != nil {
		b.finish("delete task", err)
		return err
	}

	b.mu.Lock()
	for i := range b.tasks {
		if b.tasks[i].ID == taskID {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			break
		}
	}
	delete(b.selected, taskID)
	b.mu.Unlock()
	b.finish("delete task", nil)
	return nil
}

// UpdateState moves a task to another workflow state.
func (b *Board) UpdateState(ctx context.Context, taskID, stateID string) error {
	return b.Update(ctx, taskID, map[string]any{"state_id": stateID})
}

// UpdatePriority changes a task's priority.
func (b *Board) UpdatePriority(ctx context.Context, taskID, priorityID string) error {
	return b.Update(ctx, taskID, map[string]any{"priority_id": priorityID})
}

// Assign sets the task's assignee.
func (b *Board) Assign(ctx context.Context, taskID, personID string) error {
	return b.Update(ctx, taskID, map[string]any{"assigned_to": personID})
}

// Unassign clears the task's assignee.
func (b *Board) Unassign(ctx context.Context, taskID string) error {
	return b.Update(ctx, taskID, map[string]any{"assigned_to": nil})
}

// BulkUpdate applies one patch to every task in ids with a single remote
// update, fully reloads the task list, and clears the selection.
func (b *Board) BulkUpdate(ctx context.Context, patch map[string]any, ids []string) error {
	b.begin()

	full := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		full[k] = v
	}
	full["updated_at"] = time.Now().UTC()

	err := b.store.Update(ctx, model.TableTasks, full,
		[]remote.Filter{remote.In("id", ids)}, nil)
	if err != nil {
		b.finish("bulk update tasks", err)
		return err
	}
	b.finish("bulk update tasks", nil)

	b.mu.Lock()
	scope := b.scopeProjectID
	b.mu.Unlock()
	if err := b.load(ctx, scope); err != nil {
		return err
	}

	b.ClearSelection()
	return nil
}

// ToggleSelect flips a task in or out of the selection set.
func (b *Board) ToggleSelect(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selected[taskID] {
		delete(b.selected, taskID)
		return
	}
	b.selected[taskID] = true
}

// Selected returns the selected task ids, sorted.
func (b *Board) Selected() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.selected))
	for id := range b.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearSelection empties the selection set.
func (b *Board) ClearSelection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = make(map[string]bool)
}

// SetFilters replaces the filter specification.
func (b *Board) SetFilters(f Filters) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = f
}

// Filters returns the current filter specification.
func (b *Board) Filters() Filters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filters
}

// ClearFilters resets the filter specification.
func (b *Board) ClearFilters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = Filters{}
}

// FilteredTasks recomputes the derived view on every read. It is pure over
// the cached snapshot and never touches the network.
func (b *Board) FilteredTasks() []model.Task {
	b.mu.Lock()
	tasks := make([]model.Task, len(b.tasks))
	copy(tasks, b.tasks)
	f := b.filters
	b.mu.Unlock()

	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	return out
}

func matches(t model.Task, f Filters) bool {
	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		title := strings.ToLower(t.Title)
		desc := strings.ToLower(t.Description)
		if !strings.Contains(title, search) && !strings.Contains(desc, search) {
			return false
		}
	}
	if f.StateID != "" && t.StateID != f.StateID {
		return false
	}
	if f.PriorityID != "" && t.PriorityID != f.PriorityID {
		return false
	}
	if f.AssigneeID != "" && (t.AssignedTo == nil || *t.AssignedTo != f.AssigneeID) {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	return true
}

// fetchJoined fetches one task with the full join.
func (b *Board) fetchJoined(ctx context.Context, taskID string) (model.Task, bool, error) {
	var tasks []model.Task
	err := b.store.Select(ctx, remote.Query{
		Table:   model.TableTasks,
		Filters: []remote.Filter{remote.Eq("id", taskID)},
		Joins:   registry.TaskJoins,
		Limit:   1,
	}, &tasks)
	if err != nil {
		return model.Task{}, false, err
	}
	if len(tasks) == 0 {
		return model.Task{}, false, nil
	}
	return tasks[0], true, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (b *Board) begin() {
	b.mu.Lock()
	b.loading = true
	b.mu.Unlock()
}

func (b *Board) finish(action string, err error) {
	b.mu.Lock()
	b.loading = false
	b.lastErr = err
	b.mu.Unlock()
	if err != nil {
		b.logger.Error(action, slog.String("error", err.Error()))
	}
}
