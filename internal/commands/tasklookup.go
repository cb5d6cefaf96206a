package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode"

	"taskdeck/internal/model"
	"taskdeck/internal/session"
)

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// ParseTaskNum parses a 1-based task number from args.
func ParseTaskNum(args []string) (int, error) {
	if len(args) == 0 {
		return 0, ErrTaskRefRequired
	}
	ref := args[0]
	if !isAllDigits(ref) {
		return 0, fmt.Errorf("invalid task reference: %s", ref)
	}
	num, err := strconv.Atoi(ref)
	if err != nil || num < 1 {
		return 0, fmt.Errorf("task number out of range: %s", ref)
	}
	return num, nil
}

// resolveTaskByNumber loads the project's task listing and returns the task
// at the given 1-based position, numbered the way the tasks command prints
// them (newest first, unfiltered).
func resolveTaskByNumber(ctx context.Context, sess *session.Session, projectID string, num int) (model.Task, error) {
	if err := sess.Board.LoadForProject(ctx, projectID); err != nil {
		return model.Task{}, err
	}
	tasks := sess.Board.Tasks()
	if num < 1 || num > len(tasks) {
		return model.Task{}, fmt.Errorf("task number out of range: %d", num)
	}
	return tasks[num-1], nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
