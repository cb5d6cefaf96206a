// Package exitcode defines the CLI process exit codes.
package exitcode

const (
	// Success means the command completed.
	Success = 0

	// UserError covers bad arguments, unknown references, and invalid
	// input.
	UserError = 1

	// AuthError covers sign-in and session problems.
	AuthError = 2

	// BackendError covers remote store and network failures.
	BackendError = 3
)
