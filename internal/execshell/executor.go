package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	commandFailedErrorTemplateConstant    = "%s failed with exit code %d"
	commandFailedOutputTemplateConstant   = "%s: %s"
	commandExecutionErrorTemplateConstant = "%s could not be executed: %v"
	commandLabelSeparatorConstant         = " "
	logFieldCommandConstant               = "command"
	logFieldArgumentsConstant             = "arguments"
	logFieldWorkingDirectoryConstant      = "working_directory"
	logFieldExitCodeConstant              = "exit_code"
	logFieldStandardErrorConstant         = "stderr"
	logFieldErrorConstant                 = "error"
)

// CommandName identifies an external executable.
type CommandName string

// Executables driven by the release tooling.
const (
	CommandGit    CommandName = CommandName("git")
	CommandGsutil CommandName = CommandName("gsutil")
	CommandGcloud CommandName = CommandName("gcloud")
	CommandRegctl CommandName = CommandName("regctl")
)

var (
	// ErrLoggerNotConfigured indicates a ShellExecutor was created without a logger.
	ErrLoggerNotConfigured = errors.New("shell executor requires a logger")
	// ErrCommandRunnerNotConfigured indicates a ShellExecutor was created without a runner.
	ErrCommandRunnerNotConfigured = errors.New("shell executor requires a command runner")
)

// CommandDetails describes arguments and environment for a single invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	StandardInput        []byte
}

// ShellCommand couples an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// Label renders the command line for logs and errors.
func (command ShellCommand) Label() string {
	parts := append([]string{string(command.Name)}, command.Details.Arguments...)
	return strings.Join(parts, commandLabelSeparatorConstant)
}

// ExecutionResult captures the observable outcome of a finished process.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandFailedError reports a process that ran but exited non-zero.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failedError CommandFailedError) Error() string {
	message := fmt.Sprintf(commandFailedErrorTemplateConstant, failedError.Command.Label(), failedError.Result.ExitCode)
	standardError := strings.TrimSpace(failedError.Result.StandardError)
	if len(standardError) == 0 {
		standardError = strings.TrimSpace(failedError.Result.StandardOutput)
	}
	if len(standardError) == 0 {
		return message
	}
	return fmt.Sprintf(commandFailedOutputTemplateConstant, message, standardError)
}

// CommandExecutionError reports a process that could not be started or waited on.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, executionError.Command.Label(), executionError.Cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ShellExecutor runs commands through a CommandRunner while logging their lifecycle.
type ShellExecutor struct {
	logger    *zap.Logger
	runner    CommandRunner
	observer  CommandEventObserver
	formatter CommandMessageFormatter
}

// NewShellExecutor constructs a ShellExecutor that logs through logger.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner) (*ShellExecutor, error) {
	return NewShellExecutorWithObserver(logger, runner, nil)
}

// NewShellExecutorWithObserver constructs a ShellExecutor that also notifies observer of command events.
func NewShellExecutorWithObserver(logger *zap.Logger, runner CommandRunner, observer CommandEventObserver) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	if observer == nil {
		observer = noopCommandEventObserver{}
	}
	return &ShellExecutor{logger: logger, runner: runner, observer: observer}, nil
}

// Execute runs the command and converts non-zero exits into CommandFailedError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandFields := []zap.Field{
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	}

	executor.logger.Debug(executor.formatter.BuildStartedMessage(command), commandFields...)
	executor.observer.CommandStarted(command)

	executionResult, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.logger.Error(executor.formatter.BuildExecutionFailureMessage(command, runError), append(commandFields, zap.Error(runError))...)
		executor.observer.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, executionResult)
	if executionResult.ExitCode != 0 {
		executor.logger.Warn(
			executor.formatter.BuildFailureMessage(command, executionResult),
			append(commandFields, zap.Int(logFieldExitCodeConstant, executionResult.ExitCode), zap.String(logFieldStandardErrorConstant, executionResult.StandardError))...,
		)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logger.Debug(executor.formatter.BuildSuccessMessage(command), commandFields...)
	return executionResult, nil
}

// ExecuteGit runs git with the provided details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// ExecuteGsutil runs gsutil with the provided details.
func (executor *ShellExecutor) ExecuteGsutil(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGsutil, Details: details})
}

// ExecuteGcloud runs gcloud with the provided details.
func (executor *ShellExecutor) ExecuteGcloud(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGcloud, Details: details})
}

// ExecuteRegctl runs regctl with the provided details.
func (executor *ShellExecutor) ExecuteRegctl(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandRegctl, Details: details})
}
