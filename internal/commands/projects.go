package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/output"
	"taskdeck/internal/session"
)

func init() {
	Register(&ProjectsCmd{})
}

// ProjectsCmd implements the projects command.
type ProjectsCmd struct{}

func (c *ProjectsCmd) Name() string       { return "projects" }
func (c *ProjectsCmd) Aliases() []string  { return nil }
func (c *ProjectsCmd) Synopsis() string   { return "List your projects" }
func (c *ProjectsCmd) Usage() string      { return "taskdeck projects [common flags]" }
func (c *ProjectsCmd) NeedsSession() bool { return true }

func (c *ProjectsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ProjectsCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	id, ok := sess.Provider.CurrentIdentity()
	if !ok {
		fmt.Fprintln(errOut, "error: not signed in (run: taskdeck login)")
		return exitcode.AuthError
	}

	if err := sess.Registry.ListForIdentity(ctx, id); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	projects := sess.Registry.Projects()
	if len(projects) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no projects")
		}
		return exitcode.Success
	}

	for i, project := range projects {
		output.FormatProject(out, i+1, project)
	}
	return exitcode.Success
}
