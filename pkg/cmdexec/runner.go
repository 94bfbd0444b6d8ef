package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// CommandResult is the captured outcome of one external command invocation.
type CommandResult struct {
	Argv     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Combined returns stdout and stderr joined, for failure classification.
func (r CommandResult) Combined() string {
	return r.Stderr + "\n" + r.Stdout
}

// Runner executes an argument vector and captures its result. A non-zero
// exit code is reported through the result, not through the error; the
// error is reserved for failures to run the command at all.
type Runner interface {
	Run(ctx context.Context, argv []string) (CommandResult, error)
}

// ShellRunner runs commands through os/exec.
type ShellRunner struct {
	Dir    string
	Logger *zap.SugaredLogger
}

func (shell ShellRunner) Run(ctx context.Context, argv []string) (CommandResult, error) {
	id := newExecutionID()
	shell.Logger.Debugf("%s:%s> exec: %s", argv[0], id, strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = shell.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Argv:   argv,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return result, err
		}
		// ExitCode is negative when the process died from a signal.
		result.ExitCode = exitErr.ExitCode()
	}

	shell.Logger.Debugf("%s:%s> exit=%d", argv[0], id, result.ExitCode)
	return result, nil
}

var executionIDComponents = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func newExecutionID() string {
	b := make([]rune, 5)
	for i := range b {
		b[i] = executionIDComponents[rand.Intn(len(executionIDComponents))]
	}
	return string(b)
}
