package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/board"
	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/output"
	"taskdeck/internal/session"
)

func init() {
	Register(&TasksCmd{})
}

// TasksCmd implements the tasks command. Filters narrow the listing without
// another fetch; the numbers printed are the references done and rm accept.
type TasksCmd struct {
	search   string
	stateID  string
	priority string
	assignee string
}

func (c *TasksCmd) Name() string      { return "tasks" }
func (c *TasksCmd) Aliases() []string { return []string{"ls"} }
func (c *TasksCmd) Synopsis() string  { return "List tasks" }
func (c *TasksCmd) Usage() string {
	return "taskdeck tasks [--search <text>] [--state <id>] [--priority <id>] [--assignee <id>] [project-id]"
}
func (c *TasksCmd) NeedsSession() bool { return true }

func (c *TasksCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.search, "search", "", "")
	fs.StringVar(&c.stateID, "state", "", "")
	fs.StringVar(&c.priority, "priority", "", "")
	fs.StringVar(&c.assignee, "assignee", "", "")
}

func (c *TasksCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if len(args) > 1 {
		fmt.Fprintln(errOut, "error: at most one project id")
		return exitcode.UserError
	}

	var err error
	if len(args) == 1 {
		err = sess.Board.LoadForProject(ctx, args[0])
	} else {
		err = sess.Board.LoadAll(ctx)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	sess.Board.SetFilters(board.Filters{
		Search:     c.search,
		StateID:    c.stateID,
		PriorityID: c.priority,
		AssigneeID: c.assignee,
	})

	tasks := sess.Board.FilteredTasks()
	if len(tasks) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks")
		}
		return exitcode.Success
	}

	for i, task := range tasks {
		output.FormatTask(out, i+1, task)
	}
	return exitcode.Success
}
