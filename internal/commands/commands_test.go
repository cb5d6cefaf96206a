package commands_test

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"

	"taskdeck/internal/board"
	"taskdeck/internal/commands"
	"taskdeck/internal/config"
	"taskdeck/internal/directory"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/registry"
	"taskdeck/internal/session"
	"taskdeck/internal/testutil"
)

var ana = identity.Identity{ID: "u1", Email: "ana@acme.test"}

// newTestSession wires the fake store into a session the way the real
// composition root does.
func newTestSession(store *testutil.FakeStore, id identity.Identity) *session.Session {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := identity.NewStatic(id)
	dir := directory.New(store, logger)
	reg := registry.New(store, provider, logger)
	return &session.Session{
		Store:     store,
		Provider:  provider,
		Directory: dir,
		Registry:  reg,
		Board:     board.New(store, reg, dir, provider, logger),
	}
}

func seedWorkspace(store *testutil.FakeStore) {
	store.Seed(model.TablePeople,
		map[string]any{"id": "u1", "email": "ana@acme.test", "name": "Ana", "role": "admin"},
		map[string]any{"id": "u2", "email": "bob@acme.test", "name": "Bob", "role": "member"},
	)
	store.Seed(model.TableProjects,
		map[string]any{"id": "pr1", "name": "Apollo", "icon": "A"},
	)
	store.Seed(model.TableMemberships,
		map[string]any{"project_id": "pr1", "person_id": "u1", "role": "admin"},
	)
	store.Seed(model.TableStates,
		map[string]any{"id": "s1", "project_id": "pr1", "name": "Backlog", "color": "grey", "position": 0},
		map[string]any{"id": "s2", "project_id": "pr1", "name": "Done", "color": "green", "position": 3},
	)
	store.Seed(model.TablePriorities,
		map[string]any{"id": "q1", "project_id": "pr1", "name": "Low", "color": "grey", "position": 0},
		map[string]any{"id": "q2", "project_id": "pr1", "name": "High", "color": "red", "position": 2},
	)
	store.Seed(model.TableTasks,
		map[string]any{
			"id": "t1", "project_id": "pr1", "title": "Write docs", "description": "",
			"state_id": "s1", "priority_id": "q1", "created_by": "u1",
			"created_at": "2026-01-01T10:00:00Z", "updated_at": "2026-01-01T10:00:00Z",
		},
		map[string]any{
			"id": "t2", "project_id": "pr1", "title": "Fix login", "description": "",
			"state_id": "s1", "priority_id": "q2", "created_by": "u1",
			"created_at": "2026-01-02T10:00:00Z", "updated_at": "2026-01-02T10:00:00Z",
		},
	)
}

// runCommand is a helper to run a command against a fake-backed session.
func runCommand(t *testing.T, cmd commands.Command, sess *session.Session, args []string, quiet bool) (stdout, stderr string, code int) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	cfg := &config.Config{
		Dir:   t.TempDir(),
		Quiet: quiet,
	}

	code = cmd.Run(context.Background(), cfg, sess, args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func TestVersionCommand(t *testing.T) {
	cmd := &commands.VersionCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "taskdeck 0.1.0\n" {
		t.Errorf("expected version output, got %q", stdout)
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := &commands.HelpCmd{}

	stdout, stderr, code := runCommand(t, cmd, nil, nil, false)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("help output should contain 'Usage:'")
	}
}

func TestPeopleCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.PeopleCmd{}, sess, nil, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	expected := "Ana <ana@acme.test> (admin)\nBob <bob@acme.test> (member)\n"
	if stdout != expected {
		t.Errorf("expected %q, got %q", expected, stdout)
	}
}

func TestPeopleCommand_RoleFilter(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.PeopleCmd{}
	fsArgs(t, cmd, "--role", "member")
	stdout, _, code := runCommand(t, cmd, sess, nil, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d", code)
	}
	if stdout != "Bob <bob@acme.test> (member)\n" {
		t.Errorf("got %q", stdout)
	}
}

func TestProjectsCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.ProjectsCmd{}, sess, nil, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if stdout != "   1  A Apollo  [pr1]\n" {
		t.Errorf("got %q", stdout)
	}
}

func TestNewProjectCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.NewProjectCmd{}, sess, []string{"Launch", "Prep"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "created project Launch Prep") {
		t.Errorf("got %q", stdout)
	}
	if got := len(store.Rows(model.TableProjects)); got != 2 {
		t.Errorf("expected 2 project rows, got %d", got)
	}
	// The new project carries the full default workflow on top of the
	// seeded one's two states.
	if got := len(store.Rows(model.TableStates)); got != 6 {
		t.Errorf("expected 6 state rows, got %d", got)
	}
}

func TestNewProjectCommand_TitleRequired(t *testing.T) {
	store := testutil.NewFakeStore()
	sess := newTestSession(store, ana)

	_, stderr, code := runCommand(t, &commands.NewProjectCmd{}, sess, nil, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: project name required\n" {
		t.Errorf("got %q", stderr)
	}
}

func TestTasksCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.TasksCmd{}, sess, []string{"pr1"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), stdout)
	}
	// Newest first, numbered from 1.
	if !strings.Contains(lines[0], "1") || !strings.Contains(lines[0], "Fix login") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Write docs") || !strings.Contains(lines[1], "!Low") {
		t.Errorf("line 2 = %q", lines[1])
	}
}

func TestTasksCommand_SearchFilter(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.TasksCmd{}
	fsArgs(t, cmd, "--search", "docs")
	stdout, _, code := runCommand(t, cmd, sess, []string{"pr1"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d", code)
	}
	if strings.Contains(stdout, "Fix login") || !strings.Contains(stdout, "Write docs") {
		t.Errorf("got %q", stdout)
	}
}

func TestAddCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.AddCmd{}
	cmd.SetProjectID("pr1")
	stdout, stderr, code := runCommand(t, cmd, sess, []string{"Ship", "it"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stdout, "created task") {
		t.Errorf("got %q", stdout)
	}

	rows := store.Rows(model.TableTasks)
	last := rows[len(rows)-1]
	if last["title"] != "Ship it" {
		t.Errorf("title = %v", last["title"])
	}
	// Defaulted to the lowest-position state, created by the resolved
	// directory entry.
	if last["state_id"] != "s1" {
		t.Errorf("state_id = %v, want s1", last["state_id"])
	}
	if last["created_by"] != "u1" {
		t.Errorf("created_by = %v, want u1", last["created_by"])
	}
}

func TestAddCommand_PriorityAndAssignee(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.AddCmd{}
	fsArgs(t, cmd, "--priority", "high", "--assign", "bob@acme.test")
	cmd.SetProjectID("pr1")
	_, stderr, code := runCommand(t, cmd, sess, []string{"Ship", "it"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	rows := store.Rows(model.TableTasks)
	last := rows[len(rows)-1]
	if last["priority_id"] != "q2" {
		t.Errorf("priority_id = %v, want q2", last["priority_id"])
	}
	if last["assigned_to"] != "u2" {
		t.Errorf("assigned_to = %v, want u2", last["assigned_to"])
	}
}

func TestAddCommand_UnknownPriority(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.AddCmd{}
	fsArgs(t, cmd, "--priority", "blocker")
	cmd.SetProjectID("pr1")
	_, stderr, code := runCommand(t, cmd, sess, []string{"Ship"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: priority not found: blocker\n" {
		t.Errorf("got %q", stderr)
	}
}

func TestDoneCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.DoneCmd{}
	cmd.SetProjectID("pr1")
	// Task 2 in the newest-first listing is "Write docs" (t1).
	stdout, stderr, code := runCommand(t, cmd, sess, []string{"2"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("got %q", stdout)
	}

	for _, row := range store.Rows(model.TableTasks) {
		if row["id"] == "t1" && row["state_id"] != "s2" {
			t.Errorf("t1 state_id = %v, want s2 (Done)", row["state_id"])
		}
		if row["id"] == "t2" && row["state_id"] != "s1" {
			t.Errorf("t2 state_id = %v, should be untouched", row["state_id"])
		}
	}
}

func TestDoneCommand_OutOfRange(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.DoneCmd{}
	cmd.SetProjectID("pr1")
	_, stderr, code := runCommand(t, cmd, sess, []string{"9"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.Contains(stderr, "out of range") {
		t.Errorf("got %q", stderr)
	}
}

func TestRmCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.RmCmd{}
	cmd.SetProjectID("pr1")
	stdout, stderr, code := runCommand(t, cmd, sess, []string{"1"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("got %q", stdout)
	}

	rows := store.Rows(model.TableTasks)
	if len(rows) != 1 || rows[0]["id"] != "t1" {
		t.Errorf("expected only t1 to remain, got %v", rows)
	}
}

func TestProjectCommand_Show(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.ProjectCmd{}, sess, []string{"pr1"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	testutil.GoldenString(t, "project_show", stdout)
}

func TestProjectCommand_NotFound(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	_, stderr, code := runCommand(t, &commands.ProjectCmd{}, sess, []string{"nope"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if stderr != "error: project not found: nope\n" {
		t.Errorf("got %q", stderr)
	}
}

func TestProjectCommand_Invite(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	cmd := &commands.ProjectCmd{}
	fsArgs(t, cmd, "--invite", "bob@acme.test")
	stdout, stderr, code := runCommand(t, cmd, sess, []string{"pr1"}, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if stdout != "ok\n" {
		t.Errorf("got %q", stdout)
	}
	if got := len(store.Rows(model.TableMemberships)); got != 2 {
		t.Errorf("expected 2 memberships, got %d", got)
	}
}

func TestProjectCommand_InviteNeedsAdmin(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	store.Seed(model.TableMemberships,
		map[string]any{"project_id": "pr1", "person_id": "u2", "role": "member"},
	)
	bob := identity.Identity{ID: "u2", Email: "bob@acme.test"}
	sess := newTestSession(store, bob)

	cmd := &commands.ProjectCmd{}
	fsArgs(t, cmd, "--invite", "ana@acme.test")
	_, stderr, code := runCommand(t, cmd, sess, []string{"pr1"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.Contains(stderr, "only a project admin") {
		t.Errorf("got %q", stderr)
	}
}

func TestWhoamiCommand(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	stdout, stderr, code := runCommand(t, &commands.WhoamiCmd{}, sess, nil, false)

	if code != exitcode.Success {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if stdout != "Ana <ana@acme.test> (admin)\n" {
		t.Errorf("got %q", stdout)
	}
}

func TestRmProjectCommand_NonEmptyNeedsForce(t *testing.T) {
	store := testutil.NewFakeStore()
	seedWorkspace(store)
	sess := newTestSession(store, ana)

	_, stderr, code := runCommand(t, &commands.RmProjectCmd{}, sess, []string{"pr1"}, false)

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	if !strings.Contains(stderr, "use --force") {
		t.Errorf("got %q", stderr)
	}
	if got := len(store.Rows(model.TableProjects)); got != 1 {
		t.Errorf("project should survive, got %d rows", got)
	}
}

// fsArgs parses flag-style arguments into the command, the way the
// dispatcher would.
func fsArgs(t *testing.T, cmd commands.Command, args ...string) {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
}
