package gitrunner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/gitrepo"
)

const (
	outputLineSeparatorConstant = "\n"
	neverPushMessageConstant    = "skipping push because git never_push is enabled"
	logFieldGitDirConstant      = "git_dir"
	logFieldCommandConstant     = "command"
	logFieldBranchConstant      = "branch"
	logFieldTagConstant         = "tag"
	logFieldRemoteConstant      = "remote"
	gitFailureTemplateConstant  = "git -C %q %s failed: %s"
)

// ErrExecutorNotConfigured indicates a Runner was created without a git executor.
var ErrExecutorNotConfigured = errors.New("git runner requires a git executor")

// GitExecutor runs a git subprocess.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// Options tunes how the Runner talks to remotes.
type Options struct {
	NeverPush           bool
	PullSSH             bool
	PushSSH             bool
	DisableUpstreamPush bool
}

// Runner performs git operations on local clones.
type Runner struct {
	logger   *zap.Logger
	executor GitExecutor
	options  Options
}

// NewRunner constructs a Runner.
func NewRunner(logger *zap.Logger, executor GitExecutor, options Options) (*Runner, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger, executor: executor, options: options}, nil
}

// Options returns the options the runner was built with.
func (runner *Runner) Options() Options {
	return runner.options
}

// Run executes git in gitDir and returns its trimmed standard output.
func (runner *Runner) Run(executionContext context.Context, gitDir string, arguments ...string) (string, error) {
	result, executeError := runner.executor.ExecuteGit(executionContext, execshell.CommandDetails{Arguments: arguments, WorkingDirectory: gitDir})
	if executeError != nil {
		return "", executeError
	}
	return strings.TrimSpace(result.StandardOutput), nil
}

// tryRun executes git and reports a non-zero exit through its exit code rather than an error.
// The returned output combines standard output and standard error.
func (runner *Runner) tryRun(executionContext context.Context, gitDir string, arguments ...string) (string, int, error) {
	result, executeError := runner.executor.ExecuteGit(executionContext, execshell.CommandDetails{Arguments: arguments, WorkingDirectory: gitDir})
	if executeError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executeError, &failedError) {
			return combineOutput(failedError.Result), failedError.Result.ExitCode, nil
		}
		return "", -1, executeError
	}
	return combineOutput(result), result.ExitCode, nil
}

// PullURL returns the URL to clone origin from.
func (runner *Runner) PullURL(origin string) string {
	return runner.rewriteHostedURL(origin, runner.options.PullSSH)
}

// PushURL returns the URL to push to origin through.
func (runner *Runner) PushURL(origin string) string {
	return runner.rewriteHostedURL(origin, runner.options.PushSSH)
}

func (runner *Runner) rewriteHostedURL(origin string, useSSH bool) string {
	parsed, parseError := gitrepo.ParseRemoteURL(origin)
	if parseError != nil {
		return origin
	}
	if useSSH {
		return gitrepo.MakeSSHURL(parsed.Host, parsed.Owner, parsed.Repository)
	}
	return gitrepo.MakeHTTPSURL(parsed.Host, parsed.Owner, parsed.Repository)
}

func (runner *Runner) skipPush(gitDir string, arguments ...string) bool {
	if !runner.options.NeverPush {
		return false
	}
	runner.logger.Warn(
		neverPushMessageConstant,
		zap.String(logFieldGitDirConstant, gitDir),
		zap.String(logFieldCommandConstant, strings.Join(append([]string{string(execshell.CommandGit)}, arguments...), " ")),
	)
	return true
}

func combineOutput(result execshell.ExecutionResult) string {
	parts := make([]string, 0, 2)
	for _, stream := range []string{result.StandardOutput, result.StandardError} {
		if trimmed := strings.TrimSpace(stream); len(trimmed) > 0 {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, outputLineSeparatorConstant)
}

func splitLines(output string) []string {
	if len(strings.TrimSpace(output)) == 0 {
		return nil
	}
	return strings.Split(output, outputLineSeparatorConstant)
}

func gitFailure(gitDir string, arguments []string, output string) error {
	return buildtoolerrors.NewExecutionError(fmt.Sprintf(gitFailureTemplateConstant, gitDir, strings.Join(arguments, " "), output), string(execshell.CommandGit), nil)
}
