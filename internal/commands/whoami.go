package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/exitcode"
	"taskdeck/internal/session"
)

func init() {
	Register(&WhoamiCmd{})
}

// WhoamiCmd implements the whoami command.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Name() string       { return "whoami" }
func (c *WhoamiCmd) Aliases() []string  { return nil }
func (c *WhoamiCmd) Synopsis() string   { return "Print the signed-in identity" }
func (c *WhoamiCmd) Usage() string      { return "taskdeck whoami [common flags]" }
func (c *WhoamiCmd) NeedsSession() bool { return true }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	id, ok := sess.Provider.CurrentIdentity()
	if !ok {
		fmt.Fprintln(errOut, "error: not signed in (run: taskdeck login)")
		return exitcode.AuthError
	}

	if err := sess.Directory.Refresh(ctx); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	if person, found := sess.Directory.ResolveCurrentPerson(sess.Provider); found {
		fmt.Fprintf(out, "%s <%s> (%s)\n", person.Name, person.Email, person.Role)
		return exitcode.Success
	}

	// Signed in but not yet in the directory.
	fmt.Fprintf(out, "%s (no directory entry)\n", id.Email)
	return exitcode.Success
}
