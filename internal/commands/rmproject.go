package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/remote"
	"taskdeck/internal/session"
)

func init() {
	Register(&RmProjectCmd{})
}

// RmProjectCmd implements the rmproject command.
type RmProjectCmd struct {
	force bool
}

func (c *RmProjectCmd) Name() string       { return "rmproject" }
func (c *RmProjectCmd) Aliases() []string  { return nil }
func (c *RmProjectCmd) Synopsis() string   { return "Delete a project" }
func (c *RmProjectCmd) Usage() string      { return "taskdeck rmproject [--force] <project-id>" }
func (c *RmProjectCmd) NeedsSession() bool { return true }

func (c *RmProjectCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "")
}

func (c *RmProjectCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "error: project id required")
		return exitcode.UserError
	}
	projectID := args[0]

	if err := sess.Registry.Select(ctx, projectID); err != nil {
		if remote.IsNotFound(err) {
			fmt.Fprintf(errOut, "error: project not found: %s\n", projectID)
			return exitcode.UserError
		}
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if !sess.Registry.IsCurrentIdentityAdmin() {
		fmt.Fprintln(errOut, "error: only a project admin can delete a project")
		return exitcode.UserError
	}

	if !c.force {
		if err := sess.Board.LoadForProject(ctx, projectID); err != nil {
			fmt.Fprintf(errOut, "error: backend error: %v\n", err)
			return exitcode.BackendError
		}
		if n := len(sess.Board.Tasks()); n > 0 {
			fmt.Fprintf(errOut, "error: project has %d tasks (use --force)\n", n)
			return exitcode.UserError
		}
	}

	if err := sess.Registry.Delete(ctx, projectID); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
