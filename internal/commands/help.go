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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string       { return "help" }
func (c *HelpCmd) Aliases() []string  { return nil }
func (c *HelpCmd) Synopsis() string   { return "Print usage" }
func (c *HelpCmd) Usage() string      { return "taskdeck help" }
func (c *HelpCmd) NeedsSession() bool { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  taskdeck                                           List your tasks across projects
  taskdeck tasks [common flags] [filter flags] [project-id]
  taskdeck add [common flags] --project <id> [--priority <name>] [--assign <email>] [--desc <text>] <title...>
  taskdeck done [common flags] --project <id> <n>
  taskdeck rm [common flags] --project <id> <n>
  taskdeck projects [common flags]
  taskdeck newproject [common flags] [--icon <icon>] <name...>
  taskdeck rmproject [common flags] [--force] <project-id>
  taskdeck project [common flags] <project-id>
  taskdeck project [common flags] <project-id> --invite <email> [--as <role>]
  taskdeck project [common flags] <project-id> --set-role <person-id> --as <role>
  taskdeck project [common flags] <project-id> --remove <person-id>
  taskdeck people [common flags] [--role <role>]
  taskdeck whoami [common flags]
  taskdeck signup [common flags] --name <name> --email <email> --password <password>
  taskdeck login [common flags] [--email <email> --password <password> | --provider <name>]
  taskdeck logout [common flags]
  taskdeck help
  taskdeck version

Filter flags (tasks):
  --search <text>      Match title or description
  --state <id>         Only tasks in the given workflow state
  --priority <id>      Only tasks with the given priority
  --assignee <id>      Only tasks assigned to the given person

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
