package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/model"
	"taskdeck/internal/output"
	"taskdeck/internal/remote"
	"taskdeck/internal/session"
)

func init() {
	Register(&ProjectCmd{})
}

// ProjectCmd implements the project command: it shows one project's
// members, workflow states, and priorities, and carries the admin-only
// membership mutations.
type ProjectCmd struct {
	invite  string
	setRole string
	remove  string
	as      string
}

func (c *ProjectCmd) Name() string      { return "project" }
func (c *ProjectCmd) Aliases() []string { return nil }
func (c *ProjectCmd) Synopsis() string  { return "Show or administer a project" }
func (c *ProjectCmd) Usage() string {
	return "taskdeck project <project-id> [--invite <email> | --set-role <person-id> | --remove <person-id>] [--as <role>]"
}
func (c *ProjectCmd) NeedsSession() bool { return true }

func (c *ProjectCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.invite, "invite", "", "")
	fs.StringVar(&c.setRole, "set-role", "", "")
	fs.StringVar(&c.remove, "remove", "", "")
	fs.StringVar(&c.as, "as", "", "")
}

func (c *ProjectCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
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

	mutating := c.invite != "" || c.setRole != "" || c.remove != ""
	if mutating {
		if !sess.Registry.IsCurrentIdentityAdmin() {
			fmt.Fprintln(errOut, "error: only a project admin can manage members")
			return exitcode.UserError
		}
		if code := c.mutate(ctx, sess, projectID, errOut); code != exitcode.Success {
			return code
		}
		if !cfg.Quiet {
			fmt.Fprintln(out, "ok")
		}
		return exitcode.Success
	}

	c.show(sess, out)
	return exitcode.Success
}

func (c *ProjectCmd) mutate(ctx context.Context, sess *session.Session, projectID string, errOut io.Writer) int {
	role := c.as
	if role == "" {
		role = model.RoleMember
	}

	var err error
	switch {
	case c.invite != "":
		err = sess.Registry.InviteMember(ctx, projectID, c.invite, role)
		if remote.IsNotFound(err) {
			fmt.Fprintf(errOut, "error: no person with email: %s\n", c.invite)
			return exitcode.UserError
		}
	case c.setRole != "":
		if c.as == "" {
			fmt.Fprintln(errOut, "error: --set-role requires --as <role>")
			return exitcode.UserError
		}
		err = sess.Registry.UpdateMemberRole(ctx, projectID, c.setRole, role)
	case c.remove != "":
		err = sess.Registry.RemoveMember(ctx, projectID, c.remove)
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	return exitcode.Success
}

func (c *ProjectCmd) show(sess *session.Session, out io.Writer) {
	project, _ := sess.Registry.CurrentProject()

	title := project.Name
	if project.Icon != "" {
		title = project.Icon + " " + title
	}
	output.FormatSectionHeader(out, title)

	fmt.Fprintln(out, "Members:")
	for _, m := range sess.Registry.Memberships() {
		output.FormatMembership(out, m)
	}

	fmt.Fprintln(out, "States:")
	for _, s := range sess.Registry.States() {
		output.FormatSeed(out, s.Name, s.Color, s.Position)
	}

	fmt.Fprintln(out, "Priorities:")
	for _, p := range sess.Registry.Priorities() {
		output.FormatSeed(out, p.Name, p.Color, p.Position)
	}
}
