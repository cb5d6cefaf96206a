// Package registry mirrors the projects the signed-in identity can access,
// plus the current project's memberships, task states, and task priorities.
// Consistency is pull-based: every mutation triggers a full re-fetch of the
// affected aggregate.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/remote"
)

var errNoRowReturned = errors.New("insert returned no row")

// ProjectData is the caller-supplied part of a new or updated project.
type ProjectData struct {
	Name string
	Icon string
}

// Registry is the client-side project cache and authorization source.
type Registry struct {
	store    remote.Store
	provider identity.Provider
	logger   *slog.Logger

	mu          sync.Mutex
	projects    []model.Project
	current     *model.Project
	memberships []model.Membership
	states      []model.TaskState
	priorities  []model.TaskPriority

	// loading is shared by overlapping actions; see the concurrency notes
	// on Directory.
	loading bool
	lastErr error
}

// New creates an empty registry.
func New(store remote.Store, provider identity.Provider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, provider: provider, logger: logger}
}

// Projects returns the cached project list for the current identity.
func (r *Registry) Projects() []model.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// CurrentProject returns the selected project, if any.
func (r *Registry) CurrentProject() (model.Project, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return model.Project{}, false
	}
	return *r.current, true
}

// Memberships returns the selected project's memberships with joined people.
func (r *Registry) Memberships() []model.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Membership, len(r.memberships))
	copy(out, r.memberships)
	return out
}

// States returns the selected project's task states ordered by position.
func (r *Registry) States() []model.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TaskState, len(r.states))
	copy(out, r.states)
	return out
}

// Priorities returns the selected project's priorities ordered by position.
func (r *Registry) Priorities() []model.TaskPriority {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.TaskPriority, len(r.priorities))
	copy(out, r.priorities)
	return out
}

// Loading reports whether an action is in flight.
func (r *Registry) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Err returns the last action failure, or nil.
func (r *Registry) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// ListForIdentity fetches the projects id belongs to: membership rows first,
// then the projects in the membership set, ordered by name. The cache is
// replaced only when both fetches succeed.
func (r *Registry) ListForIdentity(ctx context.Context, id identity.Identity) error {
	r.begin()

	var memberships []model.Membership
	err := r.store.Select(ctx, remote.Query{
		Table:   model.TableMemberships,
		Filters: []remote.Filter{remote.Eq("person_id", id.ID)},
	}, &memberships)
	if err != nil {
		r.finish("list projects", err)
		return err
	}

	projectIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		projectIDs = append(projectIDs, m.ProjectID)
	}

	var projects []model.Project
	if len(projectIDs) > 0 {
		err = r.store.Select(ctx, remote.Query{
			Table:   model.TableProjects,
			Filters: []remote.Filter{remote.In("id", projectIDs)},
			Order:   []remote.Order{{Column: "name"}},
		}, &projects)
		if err != nil {
			r.finish("list projects", err)
			return err
		}
	}

	r.mu.Lock()
	r.projects = projects
	r.mu.Unlock()
	r.finish("list projects", nil)
	return nil
}

// Select makes projectID the current project: the project row plus three
// independent fetches (memberships joined with people, states and priorities
// ordered by position). All four caches swap in together; any sub-fetch
// failure leaves the previous current-project state untouched.
func (r *Registry) Select(ctx context.Context, projectID string) error {
	r.begin()

	var projects []model.Project
	err := r.store.Select(ctx, remote.Query{
		Table:   model.TableProjects,
		Filters: []remote.Filter{remote.Eq("id", projectID)},
		Limit:   1,
	}, &projects)
	if err != nil {
		r.finish("select project", err)
		return err
	}
	if len(projects) == 0 {
		err = &remote.NotFoundError{Table: model.TableProjects, Key: projectID}
		r.finish("select project", err)
		return err
	}
	project := projects[0]

	var memberships []model.Membership
	err = r.store.Select(ctx, remote.Query{
		Table:   model.TableMemberships,
		Filters: []remote.Filter{remote.Eq("project_id", projectID)},
		Joins:   []remote.Join{{Name: "person", Table: model.TablePeople, Column: "person_id"}},
	}, &memberships)
	if err != nil {
		r.finish("select project", err)
		return err
	}

	var states []model.TaskState
	err = r.store.Select(ctx, remote.Query{
		Table:   model.TableStates,
		Filters: []remote.Filter{remote.Eq("project_id", projectID)},
		Order:   []remote.Order{{Column: "position"}},
	}, &states)
	if err != nil {
		r.finish("select project", err)
		return err
	}

	var priorities []model.TaskPriority
	err = r.store.Select(ctx, remote.Query{
		Table:   model.TablePriorities,
		Filters: []remote.Filter{remote.Eq("project_id", projectID)},
		Order:   []remote.Order{{Column: "position"}},
	}, &priorities)
	if err != nil {
		r.finish("select project", err)
		return err
	}

	r.mu.Lock()
	r.current = &project
	r.memberships = memberships
	r.states = states
	r.priorities = priorities
	r.mu.Unlock()
	r.finish("select project", nil)
	return nil
}

// Create inserts a project, binds id as its admin member, seeds the default
// states and priorities, and refreshes the project list.
//
// The writes are not atomic: a failed membership insert leaves an orphaned
// project row behind, and a failed seed insert leaves a project without its
// full default set. The remote store offers no client-driven transaction
// across tables, so partial state is accepted and surfaced as the error.
func (r *Registry) Create(ctx context.Context, data ProjectData, id identity.Identity) (model.Project, error) {
	r.begin()

	now := time.Now().UTC()
	var created []model.Project
	err := r.store.Insert(ctx, model.TableProjects, map[string]any{
		"name":       data.Name,
		"icon":       data.Icon,
		"created_at": now,
		"updated_at": now,
	}, &created)
	if err != nil {
		r.finish("create project", err)
		return model.Project{}, err
	}
	if len(created) == 0 {
		err = &remote.FetchError{Op: "insert", Table: model.TableProjects, Wrapped: errNoRowReturned}
		r.finish("create project", err)
		return model.Project{}, err
	}
	project := created[0]

	err = r.store.Insert(ctx, model.TableMemberships, map[string]any{
		"project_id": project.ID,
		"person_id":  id.ID,
		"role":       model.RoleAdmin,
	}, nil)
	if err != nil {
		r.finish("create project", err)
		return model.Project{}, err
	}

	states := make([]map[string]any, len(model.DefaultStates))
	for i, s := range model.DefaultStates {
		states[i] = map[string]any{
			"project_id": project.ID,
			"name":       s.Name,
			"color":      s.Color,
			"position":   s.Position,
		}
	}
	if err = r.store.Insert(ctx, model.TableStates, states, nil); err != nil {
		r.finish("create project", err)
		return model.Project{}, err
	}

	priorities := make([]map[string]any, len(model.DefaultPriorities))
	for i, p := range model.DefaultPriorities {
		priorities[i] = map[string]any{
			"project_id": project.ID,
			"name":       p.Name,
			"color":      p.Color,
			"position":   p.Position,
		}
	}
	if err = r.store.Insert(ctx, model.TablePriorities, priorities, nil); err != nil {
		r.finish("create project", err)
		return model.Project{}, err
	}

	r.finish("create project", nil)
	return project, r.ListForIdentity(ctx, id)
}

// Update patches a project and resynchronizes the current-project aggregate.
func (r *Registry) Update(ctx context.Context, projectID string, patch map[string]any) error {
	r.begin()

	full := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		full[k] = v
	}
	full["updated_at"] = time.Now().UTC()

	err := r.store.Update(ctx, model.TableProjects, full,
		[]remote.Filter{remote.Eq("id", projectID)}, nil)
	if err != nil {
		r.finish("update project", err)
		return err
	}
	r.finish("update project", nil)

	return r.Select(ctx, projectID)
}

// Delete removes a project and refreshes the project list for the current
// identity.
func (r *Registry) Delete(ctx context.Context, projectID string) error {
	r.begin()

	err := r.store.Delete(ctx, model.TableProjects,
		[]remote.Filter{remote.Eq("id", projectID)})
	if err != nil {
		r.finish("delete project", err)
		return err
	}
	r.finish("delete project", nil)

	id, ok := r.provider.CurrentIdentity()
	if !ok {
		return nil
	}
	return r.ListForIdentity(ctx, id)
}

// InviteMember adds the person with the given email to the project. The
// email must resolve to an existing directory entry.
func (r *Registry) InviteMember(ctx context.Context, projectID, email, role string) error {
	r.begin()

	var people []model.Person
	err := r.store.Select(ctx, remote.Query{
		Table:   model.TablePeople,
		Filters: []remote.Filter{remote.Eq("email", email)},
		Limit:   1,
	}, &people)
	if err != nil {
		r.finish("invite member", err)
		return err
	}
	if len(people) == 0 {
		err = &remote.NotFoundError{Table: model.TablePeople, Key: email}
		r.finish("invite member", err)
		return err
	}

	err = r.store.Insert(ctx, model.TableMemberships, map[string]any{
		"project_id": projectID,
		"person_id":  people[0].ID,
		"role":       role,
	}, nil)
	if err != nil {
		r.finish("invite member", err)
		return err
	}
	r.finish("invite member", nil)

	return r.Select(ctx, projectID)
}

// UpdateMemberRole changes a member's role and resynchronizes the project.
func (r *Registry) UpdateMemberRole(ctx context.Context, projectID, personID, role string) error {
	r.begin()

	err := r.store.Update(ctx, model.TableMemberships,
		map[string]any{"role": role},
		[]remote.Filter{remote.Eq("project_id", projectID), remote.Eq("person_id", personID)}, nil)
	if err != nil {
		r.finish("update member role", err)
		return err
	}
	r.finish("update member role", nil)

	return r.Select(ctx, projectID)
}

// RemoveMember removes a membership and resynchronizes the project.
func (r *Registry) RemoveMember(ctx context.Context, projectID, personID string) error {
	r.begin()

	err := r.store.Delete(ctx, model.TableMemberships,
		[]remote.Filter{remote.Eq("project_id", projectID), remote.Eq("person_id", personID)})
	if err != nil {
		r.finish("remove member", err)
		return err
	}
	r.finish("remove member", nil)

	return r.Select(ctx, projectID)
}

// CreateTaskState adds a workflow state to a project. State mutations always
// trigger a full current-project resync, never a local patch.
func (r *Registry) CreateTaskState(ctx context.Context, projectID, name, color string, position int) error {
	return r.writeAndResync(ctx, "create task state", projectID, func() error {
		return r.store.Insert(ctx, model.TableStates, map[string]any{
			"project_id": projectID,
			"name":       name,
			"color":      color,
			"position":   position,
		}, nil)
	})
}

// UpdateTaskState patches a workflow state.
func (r *Registry) UpdateTaskState(ctx context.Context, projectID, stateID string, patch map[string]any) error {
	return r.writeAndResync(ctx, "update task state", projectID, func() error {
		return r.store.Update(ctx, model.TableStates, patch,
			[]remote.Filter{remote.Eq("id", stateID)}, nil)
	})
}

// DeleteTaskState removes a workflow state.
func (r *Registry) DeleteTaskState(ctx context.Context, projectID, stateID string) error {
	return r.writeAndResync(ctx, "delete task state", projectID, func() error {
		return r.store.Delete(ctx, model.TableStates,
			[]remote.Filter{remote.Eq("id", stateID)})
	})
}

// CreateTaskPriority adds a priority level to a project.
func (r *Registry) CreateTaskPriority(ctx context.Context, projectID, name, color string, position int) error {
	return r.writeAndResync(ctx, "create task priority", projectID, func() error {
		return r.store.Insert(ctx, model.TablePriorities, map[string]any{
			"project_id": projectID,
			"name":       name,
			"color":      color,
			"position":   position,
		}, nil)
	})
}

// UpdateTaskPriority patches a priority level.
func (r *Registry) UpdateTaskPriority(ctx context.Context, projectID, priorityID string, patch map[string]any) error {
	return r.writeAndResync(ctx, "update task priority", projectID, func() error {
		return r.store.Update(ctx, model.TablePriorities, patch,
			[]remote.Filter{remote.Eq("id", priorityID)}, nil)
	})
}

// DeleteTaskPriority removes a priority level.
func (r *Registry) DeleteTaskPriority(ctx context.Context, projectID, priorityID string) error {
	return r.writeAndResync(ctx, "delete task priority", projectID, func() error {
		return r.store.Delete(ctx, model.TablePriorities,
			[]remote.Filter{remote.Eq("id", priorityID)})
	})
}

// IsCurrentIdentityAdmin reports whether the cached memberships grant the
// current identity the admin role. False when no project is selected or no
// identity is signed in; never an error.
func (r *Registry) IsCurrentIdentityAdmin() bool {
	id, ok := r.provider.CurrentIdentity()
	if !ok {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return false
	}
	for _, m := range r.memberships {
		if m.PersonID == id.ID && m.Role == model.RoleAdmin {
			return true
		}
	}
	return false
}

// TaskJoins is the denormalized expansion used for task reads.
var TaskJoins = []remote.Join{
	{Name: "project", Table: model.TableProjects, Column: "project_id"},
	{Name: "state", Table: model.TableStates, Column: "state_id"},
	{Name: "priority", Table: model.TablePriorities, Column: "priority_id"},
	{Name: "assignee", Table: model.TablePeople, Column: "assigned_to"},
	{Name: "creator", Table: model.TablePeople, Column: "created_by"},
}

// AllTasks fetches every task across projects with the full denormalized
// join, newest first. It does not touch the current-project caches.
func (r *Registry) AllTasks(ctx context.Context) ([]model.Task, error) {
	r.begin()

	var tasks []model.Task
	err := r.store.Select(ctx, remote.Query{
		Table: model.TableTasks,
		Joins: TaskJoins,
		Order: []remote.Order{{Column: "created_at", Descending: true}},
	}, &tasks)
	if err != nil {
		r.finish("fetch all tasks", err)
		return nil, err
	}
	r.finish("fetch all tasks", nil)
	return tasks, nil
}

func (r *Registry) writeAndResync(ctx context.Context, action, projectID string, write func() error) error {
	r.begin()
	if err := write(); err != nil {
		r.finish(action, err)
		return err
	}
	r.finish(action, nil)
	return r.Select(ctx, projectID)
}

func (r *Registry) begin() {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()
}

func (r *Registry) finish(action string, err error) {
	r.mu.Lock()
	r.loading = false
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		r.logger.Error(action, slog.String("error", err.Error()))
	}
}
