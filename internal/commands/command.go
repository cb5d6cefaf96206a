// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"flag"
	"io"

	"taskdeck/internal/config"
	"taskdeck/internal/session"
)

// Command is one CLI subcommand.
type Command interface {
	// Name is the primary command name; Aliases lists alternate names.
	Name() string
	Aliases() []string

	// Synopsis and Usage feed the help listing.
	Synopsis() string
	Usage() string

	// NeedsSession reports whether the dispatcher must build a backend
	// session before Run. The auth and informational commands run
	// without one.
	NeedsSession() bool

	// RegisterFlags adds the command's own flags to fs.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command and returns the exit code. sess is nil
	// when NeedsSession is false; args holds the positionals left after
	// flag parsing.
	Run(ctx context.Context, cfg *config.Config, sess *session.Session, args []string, out, errOut io.Writer) int
}
