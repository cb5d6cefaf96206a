package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/registry"
	"taskdeck/internal/session"
)

func init() {
	Register(&NewProjectCmd{})
}

// NewProjectCmd implements the newproject command. The creator becomes the
// project admin, and the default workflow states and priorities are seeded.
type NewProjectCmd struct {
	icon string
}

func (c *NewProjectCmd) Name() string       { return "newproject" }
func (c *NewProjectCmd) Aliases() []string  { return []string{"createproject"} }
func (c *NewProjectCmd) Synopsis() string   { return "Create a project" }
func (c *NewProjectCmd) Usage() string      { return "taskdeck newproject [--icon <icon>] <name...>" }
func (c *NewProjectCmd) NeedsSession() bool { return true }

func (c *NewProjectCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.icon, "icon", "", "")
}

func (c *NewProjectCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "error: project name required")
		return exitcode.UserError
	}
	name := strings.Join(args, " ")
	if strings.TrimSpace(name) == "" {
		fmt.Fprintln(errOut, "error: project name required")
		return exitcode.UserError
	}

	id, ok := sess.Provider.CurrentIdentity()
	if !ok {
		fmt.Fprintln(errOut, "error: not signed in (run: taskdeck login)")
		return exitcode.AuthError
	}

	project, err := sess.Registry.Create(ctx, registry.ProjectData{Name: name, Icon: c.icon}, id)
	if err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "created project %s [%s]\n", project.Name, project.ID)
	}
	return exitcode.Success
}
