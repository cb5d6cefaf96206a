package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"taskdeck/internal/board"
	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/remote"
	"taskdeck/internal/session"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	projectID string
	priority  string
	assign    string
	desc      string
}

// SetProjectID sets the project id (for testing).
func (c *AddCmd) SetProjectID(id string) {
	c.projectID = id
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "taskdeck add --project <id> [--priority <name>] [--assign <email>] [--desc <text>] <title...>"
}
func (c *AddCmd) NeedsSession() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.projectID, "project", "", "")
	fs.StringVar(&c.projectID, "p", "", "")
	fs.StringVar(&c.priority, "priority", "", "")
	fs.StringVar(&c.assign, "assign", "", "")
	fs.StringVar(&c.desc, "desc", "", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}
	if c.projectID == "" {
		fmt.Fprintln(errOut, "error: --project required")
		return exitcode.UserError
	}

	// The project aggregate supplies the default state and the priority
	// names; the directory supplies created_by and the assignee.
	if err := sess.Registry.Select(ctx, c.projectID); err != nil {
		if remote.IsNotFound(err) {
			fmt.Fprintf(errOut, "error: project not found: %s\n", c.projectID)
			return exitcode.UserError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	if err := sess.Directory.Refresh(ctx); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	data := board.TaskData{
		ProjectID:   c.projectID,
		Title:       title,
		Description: c.desc,
	}

	if c.priority != "" {
		found := false
		for _, p := range sess.Registry.Priorities() {
			if strings.EqualFold(p.Name, c.priority) {
				data.PriorityID = p.ID
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(errOut, "error: priority not found: %s\n", c.priority)
			return exitcode.UserError
		}
	}

	if c.assign != "" {
		person, found := sess.Directory.FindByEmail(c.assign)
		if !found {
			fmt.Fprintf(errOut, "error: no person with email: %s\n", c.assign)
			return exitcode.UserError
		}
		data.AssignedTo = &person.ID
	}

	task, err := sess.Board.Create(ctx, data)
	if err != nil {
		if remote.IsValidation(err) {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "created task [%s]\n", task.ID)
	}
	return exitcode.Success
}
