package shrink

import (
	"errors"
	"fmt"
	"os"
)

// Action is the filesystem change a resize commits to.
type Action int

const (
	// ActionKeepOriginal discards the output and leaves the original in place.
	ActionKeepOriginal Action = iota
	// ActionReplaceWith moves the output over the original.
	ActionReplaceWith
	// ActionDeleteAndFail removes the original (and any output) after a fatal error.
	ActionDeleteAndFail
)

// String returns a short name for the action.
func (a Action) String() string {
	switch a {
	case ActionKeepOriginal:
		return "keep-original"
	case ActionReplaceWith:
		return "replace-with"
	case ActionDeleteAndFail:
		return "delete-and-fail"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the outcome of a resize, expressed as a single filesystem action.
type Decision struct {
	Action   Action
	Original string
	// Output is the codec's temporary file. It may be empty for ActionDeleteAndFail.
	Output string
	// Cause is the error behind ActionDeleteAndFail.
	Cause error
}

// KeepOriginal builds a decision that discards output.
func KeepOriginal(original, output string) Decision {
	return Decision{Action: ActionKeepOriginal, Original: original, Output: output}
}

// ReplaceWith builds a decision that moves output over original.
func ReplaceWith(original, output string) Decision {
	return Decision{Action: ActionReplaceWith, Original: original, Output: output}
}

// DeleteAndFail builds a decision that removes original because of cause.
func DeleteAndFail(original, output string, cause error) Decision {
	return Decision{Action: ActionDeleteAndFail, Original: original, Output: output, Cause: cause}
}

// Commit applies d to fsys. After it returns, exactly one copy of the image
// remains (or none, for ActionDeleteAndFail).
func Commit(fsys FileSystem, d Decision) error {
	switch d.Action {
	case ActionKeepOriginal:
		return removeIfExists(fsys, d.Output)
	case ActionReplaceWith:
		if d.Output == "" {
			return errors.New("replace requested without an output file")
		}
		if err := fsys.Rename(d.Output, d.Original); err != nil {
			if rmErr := removeIfExists(fsys, d.Output); rmErr != nil {
				return errors.Join(fmt.Errorf("failed to replace original: %w", err), rmErr)
			}
			return fmt.Errorf("failed to replace original: %w", err)
		}
		return nil
	case ActionDeleteAndFail:
		return errors.Join(removeIfExists(fsys, d.Output), removeIfExists(fsys, d.Original))
	default:
		return fmt.Errorf("unknown commit action %d", d.Action)
	}
}

func removeIfExists(fsys FileSystem, path string) error {
	if path == "" {
		return nil
	}
	if err := fsys.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
