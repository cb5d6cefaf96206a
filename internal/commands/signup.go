package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/identity"
	"taskdeck/internal/model"
	"taskdeck/internal/session"
)

func init() {
	Register(&SignupCmd{})
}

// SignupCmd implements the signup command.
type SignupCmd struct {
	name     string
	email    string
	password string
}

func (c *SignupCmd) Name() string      { return "signup" }
func (c *SignupCmd) Aliases() []string { return nil }
func (c *SignupCmd) Synopsis() string  { return "Create an account on the hosted backend" }
func (c *SignupCmd) Usage() string {
	return "taskdeck signup --name <name> --email <email> --password <password>"
}
func (c *SignupCmd) NeedsSession() bool { return false }

func (c *SignupCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.name, "name", "", "")
	fs.StringVar(&c.email, "email", "", "")
	fs.StringVar(&c.password, "password", "", "")
}

func (c *SignupCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if !cfg.HasRemote() {
		fmt.Fprintf(errOut, "error: no hosted backend configured (set %s)\n", config.EnvRemoteURL)
		return exitcode.AuthError
	}
	if c.name == "" || c.email == "" || c.password == "" {
		fmt.Fprintln(errOut, "error: --name, --email and --password required")
		return exitcode.UserError
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}

	auth := identity.NewClient(cfg.RemoteURL, cfg.AnonKey, cfg.SessionPath())
	id, err := auth.SignUp(ctx, c.email, c.password, c.name)
	if err != nil {
		fmt.Fprintf(errOut, "error: sign up failed: %v\n", err)
		return exitcode.AuthError
	}

	// A directory entry keyed by the new identity makes the account
	// discoverable to project invites.
	sess, err = session.New(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	defer sess.Close()

	if err := sess.Directory.Refresh(ctx); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
	if _, ok := sess.Directory.ResolveCurrentPerson(sess.Provider); !ok {
		person := model.Person{Name: c.name, Email: c.email}
		if err := sess.Directory.CreatePerson(ctx, person, id); err != nil {
			fmt.Fprintf(errOut, "error: backend error: %v\n", err)
			return exitcode.BackendError
		}
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "signed up as %s <%s>\n", c.name, id.Email)
	}
	return exitcode.Success
}
