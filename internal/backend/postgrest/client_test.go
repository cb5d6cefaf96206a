package postgrest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"taskdeck/internal/backend/postgrest"
	"taskdeck/internal/model"
	"taskdeck/internal/remote"
)

// capture records the last request the test server saw.
type capture struct {
	method string
	path   string
	query  string
	header http.Header
	body   []byte
}

func newTestClient(t *testing.T, status int, response string) (*postgrest.Client, *capture) {
	t.Helper()
	captured := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.query = r.URL.RawQuery
		captured.header = r.Header.Clone()
		captured.body, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return postgrest.New(server.URL, "anon-key"), captured
}

func TestSelectBuildsQuery(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, `[{"id":"t1","title":"Write docs"}]`)

	var tasks []model.Task
	err := client.Select(context.Background(), remote.Query{
		Table:   model.TableTasks,
		Filters: []remote.Filter{remote.Eq("project_id", "pr1")},
		Joins:   []remote.Join{{Name: "state", Table: model.TableStates, Column: "state_id"}},
		Order:   []remote.Order{{Column: "created_at", Descending: true}},
		Limit:   5,
	}, &tasks)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if captured.method != http.MethodGet {
		t.Errorf("method = %s, want GET", captured.method)
	}
	if captured.path != "/rest/v1/tasks" {
		t.Errorf("path = %s, want /rest/v1/tasks", captured.path)
	}

	values := mustParseQuery(t, captured.query)
	if got := values.Get("select"); got != "*,state:task_states!state_id(*)" {
		t.Errorf("select = %q", got)
	}
	if got := values.Get("project_id"); got != "eq.pr1" {
		t.Errorf("project_id = %q, want eq.pr1", got)
	}
	if got := values.Get("order"); got != "created_at.desc" {
		t.Errorf("order = %q, want created_at.desc", got)
	}
	if got := values.Get("limit"); got != "5" {
		t.Errorf("limit = %q, want 5", got)
	}

	if len(tasks) != 1 || tasks[0].Title != "Write docs" {
		t.Errorf("decoded tasks = %+v", tasks)
	}
}

func TestSelectEncodesInAndNullFilters(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, `[]`)

	var tasks []model.Task
	err := client.Select(context.Background(), remote.Query{
		Table: model.TableTasks,
		Filters: []remote.Filter{
			remote.In("id", []string{"t1", "t2"}),
			{Column: "assigned_to", Op: remote.OpEq, Value: nil},
		},
	}, &tasks)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	values := mustParseQuery(t, captured.query)
	if got := values.Get("id"); got != "in.(t1,t2)" {
		t.Errorf("id = %q, want in.(t1,t2)", got)
	}
	if got := values.Get("assigned_to"); got != "is.null" {
		t.Errorf("assigned_to = %q, want is.null", got)
	}
}

func TestAuthHeaders(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, `[]`)

	var people []model.Person
	if err := client.Select(context.Background(), remote.Query{Table: model.TablePeople}, &people); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := captured.header.Get("apikey"); got != "anon-key" {
		t.Errorf("apikey = %q", got)
	}
	// Without a session the anon key doubles as the bearer.
	if got := captured.header.Get("Authorization"); got != "Bearer anon-key" {
		t.Errorf("Authorization = %q", got)
	}

	client.SetBearer("session-token")
	if err := client.Select(context.Background(), remote.Query{Table: model.TablePeople}, &people); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got := captured.header.Get("Authorization"); got != "Bearer session-token" {
		t.Errorf("Authorization = %q after SetBearer", got)
	}
}

func TestInsertPrefersRepresentationWhenDecoding(t *testing.T) {
	client, captured := newTestClient(t, http.StatusCreated, `[{"id":"t1","title":"Write docs"}]`)

	var created []model.Task
	row := map[string]any{"project_id": "pr1", "title": "Write docs"}
	if err := client.Insert(context.Background(), model.TableTasks, row, &created); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if captured.method != http.MethodPost {
		t.Errorf("method = %s, want POST", captured.method)
	}
	if got := captured.header.Get("Prefer"); got != "return=representation" {
		t.Errorf("Prefer = %q", got)
	}
	if got := captured.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}

	var sent map[string]any
	if err := json.Unmarshal(captured.body, &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent["title"] != "Write docs" {
		t.Errorf("body = %v", sent)
	}
	if len(created) != 1 || created[0].ID != "t1" {
		t.Errorf("created = %+v", created)
	}
}

func TestInsertMinimalWithoutDest(t *testing.T) {
	client, captured := newTestClient(t, http.StatusCreated, ``)

	row := map[string]any{"project_id": "pr1", "person_id": "u1", "role": "member"}
	if err := client.Insert(context.Background(), model.TableMemberships, row, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := captured.header.Get("Prefer"); got != "return=minimal" {
		t.Errorf("Prefer = %q, want return=minimal", got)
	}
}

func TestUpdateSendsPatch(t *testing.T) {
	client, captured := newTestClient(t, http.StatusOK, ``)

	err := client.Update(context.Background(), model.TableTasks,
		map[string]any{"state_id": "s2"},
		[]remote.Filter{remote.In("id", []string{"t1", "t2"})}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if captured.method != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", captured.method)
	}
	values := mustParseQuery(t, captured.query)
	if got := values.Get("id"); got != "in.(t1,t2)" {
		t.Errorf("id = %q", got)
	}
	var sent map[string]any
	if err := json.Unmarshal(captured.body, &sent); err != nil {
		t.Fatalf("request body: %v", err)
	}
	if sent["state_id"] != "s2" {
		t.Errorf("patch body = %v", sent)
	}
}

func TestDeleteSendsFilters(t *testing.T) {
	client, captured := newTestClient(t, http.StatusNoContent, ``)

	err := client.Delete(context.Background(), model.TableTasks,
		[]remote.Filter{remote.Eq("id", "t1")})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if captured.method != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", captured.method)
	}
	values := mustParseQuery(t, captured.query)
	if got := values.Get("id"); got != "eq.t1" {
		t.Errorf("id = %q, want eq.t1", got)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, `{"message":"no rows"}`, remote.IsNotFound},
		{"not acceptable", http.StatusNotAcceptable, ``, remote.IsNotFound},
		{"conflict", http.StatusConflict, `{"message":"duplicate key"}`, remote.IsValidation},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"null value"}`, remote.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, tc.status, tc.body)
			var people []model.Person
			err := client.Select(context.Background(), remote.Query{Table: model.TablePeople}, &people)
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Errorf("wrong error type: %v", err)
			}
		})
	}

	// Server errors stay plain fetch errors.
	client, _ := newTestClient(t, http.StatusInternalServerError, `{"message":"boom"}`)
	var people []model.Person
	err := client.Select(context.Background(), remote.Query{Table: model.TablePeople}, &people)
	if err == nil {
		t.Fatal("expected error")
	}
	if remote.IsNotFound(err) || remote.IsValidation(err) {
		t.Errorf("500 should be a fetch error, got %v", err)
	}
}

func mustParseQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query %q: %v", raw, err)
	}
	return values
}
