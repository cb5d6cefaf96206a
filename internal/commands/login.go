package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/identity"
	"taskdeck/internal/session"
)

func init() {
	Register(&LoginCmd{})
}

// LoginCmd implements the login command.
type LoginCmd struct {
	email    string
	password string
	provider string
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in to the hosted backend" }
func (c *LoginCmd) Usage() string {
	return "taskdeck login [--email <email> --password <password> | --provider <name>]"
}
func (c *LoginCmd) NeedsSession() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.email, "email", "", "")
	fs.StringVar(&c.password, "password", "", "")
	fs.StringVar(&c.provider, "provider", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if !cfg.HasRemote() {
		fmt.Fprintf(errOut, "error: no hosted backend configured (set %s)\n", config.EnvRemoteURL)
		return exitcode.AuthError
	}

	if err := cfg.EnsureDir(); err != nil {
		fmt.Fprintf(errOut, "error: failed to create config directory: %v\n", err)
		return exitcode.AuthError
	}

	auth := identity.NewClient(cfg.RemoteURL, cfg.AnonKey, cfg.SessionPath())
	if id, ok := auth.CurrentIdentity(); ok {
		if !cfg.Quiet {
			fmt.Fprintf(out, "already signed in as %s\n", id.Email)
		}
		return exitcode.Success
	}

	var id identity.Identity
	var err error
	switch {
	case c.provider != "":
		id, err = auth.SignInWithOAuth(ctx, c.provider, errOut)
	case c.email != "" && c.password != "":
		id, err = auth.SignIn(ctx, c.email, c.password)
	default:
		fmt.Fprintln(errOut, "error: --email and --password, or --provider, required")
		return exitcode.UserError
	}
	if err != nil {
		fmt.Fprintf(errOut, "error: sign in failed: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "signed in as %s\n", id.Email)
	}
	return exitcode.Success
}
