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
	Register(&PeopleCmd{})
}

// PeopleCmd implements the people command.
type PeopleCmd struct {
	role string
}

func (c *PeopleCmd) Name() string       { return "people" }
func (c *PeopleCmd) Aliases() []string  { return nil }
func (c *PeopleCmd) Synopsis() string   { return "List the directory" }
func (c *PeopleCmd) Usage() string      { return "taskdeck people [--role <role>]" }
func (c *PeopleCmd) NeedsSession() bool { return true }

func (c *PeopleCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.role, "role", "", "")
}

func (c *PeopleCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	if err := sess.Directory.Refresh(ctx); err != nil {
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}

	people := sess.Directory.People()
	if c.role != "" {
		people = sess.Directory.FindByRole(c.role)
	}

	if len(people) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no people")
		}
		return exitcode.Success
	}

	for _, person := range people {
		output.FormatPerson(out, person)
	}
	return exitcode.Success
}
