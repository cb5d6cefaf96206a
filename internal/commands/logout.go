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
	Register(&LogoutCmd{})
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string       { return "logout" }
func (c *LogoutCmd) Aliases() []string  { return nil }
func (c *LogoutCmd) Synopsis() string   { return "Sign out and discard the stored session" }
func (c *LogoutCmd) Usage() string      { return "taskdeck logout [common flags]" }
func (c *LogoutCmd) NeedsSession() bool { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if !cfg.HasRemote() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "local backend, nothing to sign out of")
		}
		return exitcode.Success
	}

	if !cfg.HasSession() {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not signed in")
		}
		return exitcode.Success
	}

	auth := identity.NewClient(cfg.RemoteURL, cfg.AnonKey, cfg.SessionPath())
	if err := auth.SignOut(ctx); err != nil {
		// The stored session survives a failed revocation so a retry
		// still has the token to revoke.
		fmt.Fprintf(errOut, "error: sign out failed: %v\n", err)
		return exitcode.AuthError
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
