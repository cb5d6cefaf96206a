package registry_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/registry"
	"taskdeck/internal/remote"
	"taskdeck/internal/testutil"
)

var u1 = identity.Identity{ID: "u1", Email: "ana@acme.test"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(store *testutil.FakeStore) (*registry.Registry, *identity.Static) {
	provider := identity.NewStatic(u1)
	return registry.New(store, provider, discardLogger()), provider
}

func seedTwoProjects(store *testutil.FakeStore) {
	store.Seed(model.TablePeople,
		map[string]any{"id": "u1", "email": "ana@acme.test", "name": "Ana", "role": "member"},
		map[string]any{"id": "u2", "email": "bob@acme.test", "name": "Bob", "role": "member"},
	)
	store.Seed(model.TableProjects,
		map[string]any{"id": "pr2", "name": "Zeppelin", "icon": "Z"},
		map[string]any{"id": "pr1", "name": "Apollo", "icon": "A"},
		map[string]any{"id": "pr3", "name": "Mars", "icon": "M"},
	)
	store.Seed(model.TableMemberships,
		map[string]any{"project_id": "pr1", "person_id": "u1", "role": "admin"},
		map[string]any{"project_id": "pr2", "person_id": "u1", "role": "member"},
		map[string]any{"project_id": "pr3", "person_id": "u2", "role": "admin"},
	)
	store.Seed(model.TableStates,
		map[string]any{"id": "s2", "project_id": "pr1", "name": "Todo", "color": "blue", "position": 1},
		map[string]any{"id": "s1", "project_id": "pr1", "name": "Backlog", "color": "grey", "position": 0},
	)
	store.Seed(model.TablePriorities,
		map[string]any{"id": "q1", "project_id": "pr1", "name": "Low", "color": "grey", "position": 0},
	)
}

func TestListForIdentity(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	if err := reg.ListForIdentity(context.Background(), u1); err != nil {
		t.Fatalf("ListForIdentity: %v", err)
	}

	projects := reg.Projects()
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	// Ordered by name; u2's project excluded.
	if projects[0].Name != "Apollo" || projects[1].Name != "Zeppelin" {
		t.Errorf("wrong projects: %s, %s", projects[0].Name, projects[1].Name)
	}
}

func TestListForIdentity_PartialFailureLeavesCacheUnchanged(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	if err := reg.ListForIdentity(context.Background(), u1); err != nil {
		t.Fatalf("ListForIdentity: %v", err)
	}

	// Memberships fetch succeeds, project fetch fails.
	store.SelectErr[model.TableProjects] = testutil.FetchErr("select", model.TableProjects)
	if err := reg.ListForIdentity(context.Background(), u1); err == nil {
		t.Fatal("expected error")
	}

	if got := len(reg.Projects()); got != 2 {
		t.Errorf("cache should be unchanged on partial failure, got %d projects", got)
	}
}

func TestSelect_NotFound(t *testing.T) {
	store := testutil.NewFakeStore()
	reg, _ := newRegistry(store)

	err := reg.Select(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !remote.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSelect_PopulatesAggregate(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	if err := reg.Select(context.Background(), "pr1"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	project, ok := reg.CurrentProject()
	if !ok || project.ID != "pr1" {
		t.Fatalf("current project = %v %v", project.ID, ok)
	}

	memberships := reg.Memberships()
	if len(memberships) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(memberships))
	}
	if memberships[0].Person == nil || memberships[0].Person.Name != "Ana" {
		t.Errorf("membership person not joined: %+v", memberships[0].Person)
	}

	states := reg.States()
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	// Ordered by position.
	if states[0].Name != "Backlog" || states[1].Name != "Todo" {
		t.Errorf("states not ordered by position: %s, %s", states[0].Name, states[1].Name)
	}

	if got := len(reg.Priorities()); got != 1 {
		t.Errorf("expected 1 priority, got %d", got)
	}
}

func TestSelect_SubFetchFailureLeavesCurrentUntouched(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	if err := reg.Select(context.Background(), "pr1"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	store.SelectErr[model.TableStates] = testutil.FetchErr("select", model.TableStates)
	if err := reg.Select(context.Background(), "pr2"); err == nil {
		t.Fatal("expected error")
	}

	project, ok := reg.CurrentProject()
	if !ok || project.ID != "pr1" {
		t.Errorf("current project should still be pr1, got %v %v", project.ID, ok)
	}
	if got := len(reg.States()); got != 2 {
		t.Errorf("states cache should be untouched, got %d", got)
	}
}

func TestCreate_SeedsDefaults(t *testing.T) {
	store := testutil.NewFakeStore()
	reg, _ := newRegistry(store)

	project, err := reg.Create(context.Background(), registry.ProjectData{Name: "Acme"}, u1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if project.Name != "Acme" {
		t.Errorf("project name = %q, want Acme", project.Name)
	}

	if got := len(store.Rows(model.TableProjects)); got != 1 {
		t.Fatalf("expected 1 project row, got %d", got)
	}

	memberships := store.Rows(model.TableMemberships)
	if len(memberships) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(memberships))
	}
	if memberships[0]["person_id"] != "u1" || memberships[0]["role"] != "admin" {
		t.Errorf("creator membership = %v", memberships[0])
	}

	states := store.Rows(model.TableStates)
	if len(states) != 4 {
		t.Fatalf("expected 4 seeded states, got %d", len(states))
	}
	wantStates := []string{"Backlog", "Todo", "In Progress", "Done"}
	for i, name := range wantStates {
		if states[i]["name"] != name {
			t.Errorf("states[%d] = %v, want %s", i, states[i]["name"], name)
		}
		if int(states[i]["position"].(float64)) != i {
			t.Errorf("states[%d] position = %v, want %d", i, states[i]["position"], i)
		}
	}

	priorities := store.Rows(model.TablePriorities)
	if len(priorities) != 4 {
		t.Fatalf("expected 4 seeded priorities, got %d", len(priorities))
	}
	wantPriorities := []string{"Low", "Medium", "High", "Urgent"}
	for i, name := range wantPriorities {
		if priorities[i]["name"] != name {
			t.Errorf("priorities[%d] = %v, want %s", i, priorities[i]["name"], name)
		}
	}

	// The project list refreshed.
	if got := len(reg.Projects()); got != 1 {
		t.Errorf("expected 1 cached project, got %d", got)
	}
}

func TestCreate_MembershipFailureLeavesOrphanProject(t *testing.T) {
	store := testutil.NewFakeStore()
	reg, _ := newRegistry(store)

	store.InsertErr[model.TableMemberships] = testutil.FetchErr("insert", model.TableMemberships)
	if _, err := reg.Create(context.Background(), registry.ProjectData{Name: "Acme"}, u1); err == nil {
		t.Fatal("expected error")
	}

	// Earlier writes are not rolled back: the project row stays behind
	// with no admin membership.
	if got := len(store.Rows(model.TableProjects)); got != 1 {
		t.Errorf("expected the orphaned project row, got %d rows", got)
	}
	if got := len(store.Rows(model.TableMemberships)); got != 0 {
		t.Errorf("expected no memberships, got %d", got)
	}
	if got := len(store.Rows(model.TableStates)); got != 0 {
		t.Errorf("expected no states, got %d", got)
	}
}

func TestInviteMember(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	err := reg.InviteMember(context.Background(), "pr1", "bob@acme.test", "member")
	if err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	memberships := reg.Memberships()
	if len(memberships) != 2 {
		t.Fatalf("expected 2 memberships after invite, got %d", len(memberships))
	}
}

func TestInviteMember_UnknownEmail(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	err := reg.InviteMember(context.Background(), "pr1", "ghost@acme.test", "member")
	if err == nil {
		t.Fatal("expected error")
	}
	if !remote.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
	if got := len(store.Rows(model.TableMemberships)); got != 3 {
		t.Errorf("no membership should be inserted, got %d rows", got)
	}
}

func TestUpdateMemberRoleAndRemoveMember(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	if err := reg.InviteMember(context.Background(), "pr1", "bob@acme.test", "member"); err != nil {
		t.Fatalf("InviteMember: %v", err)
	}

	if err := reg.UpdateMemberRole(context.Background(), "pr1", "u2", "admin"); err != nil {
		t.Fatalf("UpdateMemberRole: %v", err)
	}
	var found bool
	for _, m := range reg.Memberships() {
		if m.PersonID == "u2" && m.Role == "admin" {
			found = true
		}
	}
	if !found {
		t.Error("u2 should be admin after role update")
	}

	if err := reg.RemoveMember(context.Background(), "pr1", "u2"); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if got := len(reg.Memberships()); got != 1 {
		t.Errorf("expected 1 membership after removal, got %d", got)
	}
}

func TestIsCurrentIdentityAdmin(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, provider := newRegistry(store)

	// No project selected.
	if reg.IsCurrentIdentityAdmin() {
		t.Error("admin should be false with no project selected")
	}

	if err := reg.Select(context.Background(), "pr1"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !reg.IsCurrentIdentityAdmin() {
		t.Error("u1 is admin of pr1")
	}

	if err := reg.Select(context.Background(), "pr2"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if reg.IsCurrentIdentityAdmin() {
		t.Error("u1 is only a member of pr2")
	}

	provider.SetIdentity(identity.Identity{}, false)
	if reg.IsCurrentIdentityAdmin() {
		t.Error("admin should be false when signed out")
	}
}

func TestTaskStateMutationsResync(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	reg, _ := newRegistry(store)

	err := reg.CreateTaskState(context.Background(), "pr1", "Review", "purple", 2)
	if err != nil {
		t.Fatalf("CreateTaskState: %v", err)
	}

	// The mutation triggered a full current-project resync.
	states := reg.States()
	if len(states) != 3 {
		t.Fatalf("expected 3 states after create, got %d", len(states))
	}
	if states[2].Name != "Review" {
		t.Errorf("states[2] = %q, want Review", states[2].Name)
	}

	if err := reg.DeleteTaskState(context.Background(), "pr1", states[2].ID); err != nil {
		t.Fatalf("DeleteTaskState: %v", err)
	}
	if got := len(reg.States()); got != 2 {
		t.Errorf("expected 2 states after delete, got %d", got)
	}
}

func TestAllTasks(t *testing.T) {
	store := testutil.NewFakeStore()
	seedTwoProjects(store)
	store.Seed(model.TableTasks,
		map[string]any{
			"id": "t1", "project_id": "pr1", "title": "older", "description": "",
			"state_id": "s1", "priority_id": "q1", "created_by": "u1",
			"created_at": "2026-01-01T10:00:00Z", "updated_at": "2026-01-01T10:00:00Z",
		},
		map[string]any{
			"id": "t2", "project_id": "pr2", "title": "newer", "description": "",
			"state_id": nil, "priority_id": nil, "created_by": "u2",
			"created_at": "2026-02-01T10:00:00Z", "updated_at": "2026-02-01T10:00:00Z",
		},
	)
	reg, _ := newRegistry(store)

	tasks, err := reg.AllTasks(context.Background())
	if err != nil {
		t.Fatalf("AllTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	// Newest first.
	if tasks[0].ID != "t2" || tasks[1].ID != "t1" {
		t.Errorf("wrong order: %s, %s", tasks[0].ID, tasks[1].ID)
	}
	// Denormalized join resolved.
	if tasks[1].State == nil || tasks[1].State.Name != "Backlog" {
		t.Errorf("t1 state not joined: %+v", tasks[1].State)
	}
	if tasks[1].Creator == nil || tasks[1].Creator.Name != "Ana" {
		t.Errorf("t1 creator not joined: %+v", tasks[1].Creator)
	}
	if tasks[1].Project == nil || tasks[1].Project.Name != "Apollo" {
		t.Errorf("t1 project not joined: %+v", tasks[1].Project)
	}
}
