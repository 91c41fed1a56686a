package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/execshell"
)

const (
	startedTemplateConstant          = "%s%s"
	completedTemplateConstant        = "%s%s finished"
	exitCodeTemplateConstant         = "%s%s exited with code %d"
	executionFailureTemplateConstant = "%s%s could not run: %s"
	repositoryPrefixTemplateConstant = "[%s] "
	standardErrorTemplateConstant    = ": %s"
	argumentSeparatorConstant        = " "
	unknownFailureMessageConstant    = "unknown error"
	maximumArgumentWidthConstant     = 80
	truncationMarkerConstant         = "..."
)

// CommandEventFormatter renders subprocess events as one line, prefixed by the repository they run in.
type CommandEventFormatter struct{}

// BuildStartedMessage describes a command about to run.
func (formatter CommandEventFormatter) BuildStartedMessage(command execshell.ShellCommand) string {
	return fmt.Sprintf(startedTemplateConstant, formatter.repositoryPrefix(command), formatter.commandLine(command))
}

// BuildSuccessMessage describes a command that exited with code zero.
func (formatter CommandEventFormatter) BuildSuccessMessage(command execshell.ShellCommand) string {
	return fmt.Sprintf(completedTemplateConstant, formatter.repositoryPrefix(command), formatter.commandLine(command))
}

// BuildFailureMessage describes a command that exited with a non-zero code, with the first line of its standard error.
func (formatter CommandEventFormatter) BuildFailureMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	message := fmt.Sprintf(exitCodeTemplateConstant, formatter.repositoryPrefix(command), formatter.commandLine(command), result.ExitCode)
	if firstLine := firstLine(result.StandardError); len(firstLine) > 0 {
		message += fmt.Sprintf(standardErrorTemplateConstant, firstLine)
	}
	return message
}

// BuildExecutionFailureMessage describes a command that could not be started.
func (formatter CommandEventFormatter) BuildExecutionFailureMessage(command execshell.ShellCommand, failure error) string {
	reason := unknownFailureMessageConstant
	if failure != nil {
		reason = failure.Error()
	}
	return fmt.Sprintf(executionFailureTemplateConstant, formatter.repositoryPrefix(command), formatter.commandLine(command), reason)
}

// repositoryPrefix names the clone the command runs in. Commands outside a clone get no prefix.
func (formatter CommandEventFormatter) repositoryPrefix(command execshell.ShellCommand) string {
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return ""
	}
	return fmt.Sprintf(repositoryPrefixTemplateConstant, filepath.Base(filepath.Clean(workingDirectory)))
}

func (formatter CommandEventFormatter) commandLine(command execshell.ShellCommand) string {
	parts := append([]string{string(command.Name)}, command.Details.Arguments...)
	line := strings.Join(parts, argumentSeparatorConstant)
	if len(line) > maximumArgumentWidthConstant {
		return line[:maximumArgumentWidthConstant-len(truncationMarkerConstant)] + truncationMarkerConstant
	}
	return line
}

func firstLine(text string) string {
	trimmed := strings.TrimSpace(text)
	if index := strings.IndexByte(trimmed, '\n'); index >= 0 {
		return strings.TrimSpace(trimmed[:index])
	}
	return trimmed
}

// ConsoleCommandEventLogger writes subprocess events to a console logger.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter CommandEventFormatter
}

// NewConsoleCommandEventLogger constructs a ConsoleCommandEventLogger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger, formatter: CommandEventFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(command execshell.ShellCommand) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver. Successful commands are logged at debug level.
func (eventLogger *ConsoleCommandEventLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if eventLogger == nil {
		return
	}
	if result.ExitCode == 0 {
		eventLogger.logger.Debug(eventLogger.formatter.BuildSuccessMessage(command))
		return
	}
	eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(command, result))
}

// CommandExecutionFailed implements execshell.CommandEventObserver.
func (eventLogger *ConsoleCommandEventLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(command, failure))
}
