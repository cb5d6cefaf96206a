// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"taskdeck/internal/model"
)

const (
	// SectionSeparator is the separator line for section headers.
	SectionSeparator = "------------"
)

// FormatTask formats a numbered task line.
// Format: "{N:>4}  {STATE:<12}  {TITLE}" plus priority, assignee, and a
// relative creation time when present.
func FormatTask(w io.Writer, num int, task model.Task) {
	state := ""
	if task.State != nil {
		state = task.State.Name
	}

	line := fmt.Sprintf("%4d  %-12s  %s", num, state, normalizeTitle(task.Title))
	if task.Priority != nil {
		line += "  !" + task.Priority.Name
	}
	if task.Assignee != nil {
		line += "  @" + task.Assignee.Name
	}
	if !task.CreatedAt.IsZero() {
		line += "  (" + humanize.Time(task.CreatedAt) + ")"
	}
	fmt.Fprintln(w, line)
}

// FormatProject formats a numbered project line.
func FormatProject(w io.Writer, num int, project model.Project) {
	name := normalizeTitle(project.Name)
	if project.Icon != "" {
		name = project.Icon + " " + name
	}
	fmt.Fprintf(w, "%4d  %s  [%s]\n", num, name, project.ID)
}

// FormatPerson formats a directory entry.
func FormatPerson(w io.Writer, person model.Person) {
	fmt.Fprintf(w, "%s <%s> (%s)\n", normalizeTitle(person.Name), person.Email, person.Role)
}

// FormatMembership formats a project member line. The person column falls
// back to the raw id when the directory row was not joined.
func FormatMembership(w io.Writer, m model.Membership) {
	who := m.PersonID
	if m.Person != nil {
		who = fmt.Sprintf("%s <%s>", normalizeTitle(m.Person.Name), m.Person.Email)
	}
	fmt.Fprintf(w, "  %s (%s)\n", who, m.Role)
}

// FormatSeed formats a workflow state or priority line.
func FormatSeed(w io.Writer, name, color string, position int) {
	fmt.Fprintf(w, "  %d. %s (%s)\n", position, normalizeTitle(name), color)
}

// FormatSectionHeader formats a section header.
func FormatSectionHeader(w io.Writer, title string) {
	fmt.Fprintln(w, SectionSeparator)
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, SectionSeparator)
}

// normalizeTitle normalizes a title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
