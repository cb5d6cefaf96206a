// Package model defines the entities mirrored from the remote relational
// store. JSON tags match the remote column and relation names.
package model

import "time"

// Table names in the remote store.
const (
	TablePeople      = "people"
	TableProjects    = "projects"
	TableMemberships = "project_memberships"
	TableStates      = "task_states"
	TablePriorities  = "task_priorities"
	TableTasks       = "tasks"
)

// RoleAdmin is the membership role that grants project administration.
const RoleAdmin = "admin"

// RoleMember is the default role for new people and invited members.
const RoleMember = "member"

// Person is a directory entry. Email is unique in the store.
type Person struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url"`
}

// Project groups tasks and memberships.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership grants a person a role within a project. At most one membership
// exists per (project, person) pair.
type Membership struct {
	ProjectID string  `json:"project_id"`
	PersonID  string  `json:"person_id"`
	Role      string  `json:"role"`
	Person    *Person `json:"person,omitempty"`
}

// TaskState is a per-project workflow column. Position is unique within a
// project and defines display order.
type TaskState struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Position  int    `json:"position"`
}

// TaskPriority is a per-project priority level, ordered by position.
type TaskPriority struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Position  int    `json:"position"`
}

// Task is a single work item. The pointer fields hold denormalized copies of
// related rows when the task was fetched with joins; they are snapshots, not
// live references.
type Task struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StateID     string    `json:"state_id"`
	PriorityID  string    `json:"priority_id"`
	AssignedTo  *string   `json:"assigned_to"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Project  *Project      `json:"project,omitempty"`
	State    *TaskState    `json:"state,omitempty"`
	Priority *TaskPriority `json:"priority,omitempty"`
	Assignee *Person       `json:"assignee,omitempty"`
	Creator  *Person       `json:"creator,omitempty"`
}

// Seed describes a default state or priority inserted at project creation.
type Seed struct {
	Name     string
	Color    string
	Position int
}

// DefaultStates is the workflow seeded into every new project.
var DefaultStates = []Seed{
	{Name: "Backlog", Color: "grey", Position: 0},
	{Name: "Todo", Color: "blue", Position: 1},
	{Name: "In Progress", Color: "orange", Position: 2},
	{Name: "Done", Color: "green", Position: 3},
}

// DefaultPriorities is the priority ladder seeded into every new project.
var DefaultPriorities = []Seed{
	{Name: "Low", Color: "grey", Position: 0},
	{Name: "Medium", Color: "orange", Position: 1},
	{Name: "High", Color: "red", Position: 2},
	{Name: "Urgent", Color: "purple", Position: 3},
}
