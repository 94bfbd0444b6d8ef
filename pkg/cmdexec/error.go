package cmdexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const detailLimit = 400

// retryableSignatures are stderr/stdout fragments that indicate a transient
// condition worth retrying, matched case-insensitively.
var retryableSignatures = []string{
	"timed out",
	"timeout",
	"temporarily unavailable",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"tls handshake timeout",
	"context deadline exceeded",
	"unable to connect",
	"too many requests",
	"rate limit",
}

// CommandError is raised whenever an external command exits non-zero. It
// carries the full captured result and a retryable/fatal classification.
type CommandError struct {
	Message   string
	Result    CommandResult
	Retryable bool
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Result.Stderr)
	if detail == "" {
		detail = strings.TrimSpace(e.Result.Stdout)
	}
	if len(detail) > detailLimit {
		detail = detail[:detailLimit-3] + "..."
	}
	return fmt.Sprintf("%s (exit=%d, command=%q, detail=%q)",
		e.Message, e.Result.ExitCode, strings.Join(e.Result.Argv, " "), detail)
}

// IsRetryable reports whether err carries a retryable command failure.
// Unknown errors are fatal.
func IsRetryable(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.Retryable
}

func classify(result CommandResult) bool {
	if result.ExitCode < 0 {
		return true
	}
	combined := strings.ToLower(result.Combined())
	for _, sig := range retryableSignatures {
		if strings.Contains(combined, sig) {
			return true
		}
	}
	return false
}

// Execute runs argv through the runner and converts any non-zero exit into
// a classified *CommandError carrying message.
func Execute(ctx context.Context, runner Runner, argv []string, message string) (CommandResult, error) {
	result, err := runner.Run(ctx, argv)
	if err != nil {
		return result, fmt.Errorf("%s: %w", message, err)
	}
	if result.ExitCode != 0 {
		return result, &CommandError{
			Message:   message,
			Result:    result,
			Retryable: classify(result),
		}
	}
	return result, nil
}
