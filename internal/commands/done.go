package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/model"
	"taskdeck/internal/remote"
	"taskdeck/internal/session"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command: it moves a task into the project's
// terminal workflow state.
type DoneCmd struct {
	projectID string
}

// SetProjectID sets the project id (for testing).
func (c *DoneCmd) SetProjectID(id string) {
	c.projectID = id
}

func (c *DoneCmd) Name() string       { return "done" }
func (c *DoneCmd) Aliases() []string  { return nil }
func (c *DoneCmd) Synopsis() string   { return "Mark a task done" }
func (c *DoneCmd) Usage() string      { return "taskdeck done --project <id> <n>" }
func (c *DoneCmd) NeedsSession() bool { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.projectID, "project", "", "")
	fs.StringVar(&c.projectID, "p", "", "")
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	num, err := ParseTaskNum(args)
	if err != nil {
		if err == ErrTaskRefRequired {
			fmt.Fprintln(errOut, "error: task reference required")
		} else {
			fmt.Fprintf(errOut, "error: %v\n", err)
		}
		return exitcode.UserError
	}
	if c.projectID == "" {
		fmt.Fprintln(errOut, "error: --project required")
		return exitcode.UserError
	}

	if err := sess.Registry.Select(ctx, c.projectID); err != nil {
		if remote.IsNotFound(err) {
			fmt.Fprintf(errOut, "error: project not found: %s\n", c.projectID)
			return exitcode.UserError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	doneState, ok := terminalState(sess.Registry.States())
	if !ok {
		fmt.Fprintln(errOut, "error: project has no workflow states")
		return exitcode.UserError
	}

	task, err := resolveTaskByNumber(ctx, sess, c.projectID, num)
	if err != nil {
		if strings.Contains(err.Error(), "out of range") {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if err := sess.Board.UpdateState(ctx, task.ID, doneState.ID); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// terminalState picks the state a finished task lands in: the one named
// Done if present, otherwise the highest-position state.
func terminalState(states []model.TaskState) (model.TaskState, bool) {
	if len(states) == 0 {
		return model.TaskState{}, false
	}
	for _, s := range states {
		if strings.EqualFold(s.Name, "Done") {
			return s, true
		}
	}
	return states[len(states)-1], true
}
