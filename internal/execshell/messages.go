package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s%s"
	genericSuccessTemplateConstant          = "Completed %s%s"
	genericFailureTemplateConstant          = "%s%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s%s failed: %s"
	workingDirectorySuffixTemplateConstant  = " in %s"
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	fallbackUnknownValueLabelConstant       = "unknown"
	allRemotesLabelConstant                 = "all remotes"

	gitCloneSubcommandNameConstant    = "clone"
	gitFetchSubcommandNameConstant    = "fetch"
	gitPushSubcommandNameConstant     = "push"
	gitTagSubcommandNameConstant      = "tag"
	gitCheckoutSubcommandNameConstant = "checkout"
	gitCommitSubcommandNameConstant   = "commit"
	gsutilCopySubcommandNameConstant  = "cp"
	gsutilCatSubcommandNameConstant   = "cat"
	regctlImageSubcommandNameConstant = "image"
	regctlCopySubcommandNameConstant  = "copy"

	gitCloneStartTemplateConstant     = "Cloning %s%s"
	gitFetchStartTemplateConstant     = "Fetching %s%s"
	gitFetchRefsStartTemplateConstant = "Fetching %s from %s%s"
	gitPushStartTemplateConstant      = "Pushing %s to %s%s"
	gitTagStartTemplateConstant       = "Tagging %s%s"
	gitCheckoutStartTemplateConstant  = "Checking out %s%s"
	gitCommitStartTemplateConstant    = "Committing changes%s"
	gsutilCopyStartTemplateConstant   = "Copying %s to %s"
	gsutilCatStartTemplateConstant    = "Reading %s"
	regctlCopyStartTemplateConstant   = "Copying image %s to %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	if message, described := formatter.describeStart(command); described {
		return message
	}
	return formatter.buildGenericMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildGenericMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildGenericMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildGenericMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) describeStart(command ShellCommand) (string, bool) {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return "", false
	}
	directorySuffix := formatter.formatWorkingDirectorySuffix(command)
	operands := formatter.nonFlagArguments(arguments[1:])

	switch command.Name {
	case CommandGit:
		switch arguments[0] {
		case gitCloneSubcommandNameConstant:
			return fmt.Sprintf(gitCloneStartTemplateConstant, formatter.argumentAt(operands, 0), directorySuffix), true
		case gitFetchSubcommandNameConstant:
			if len(operands) == 0 {
				return fmt.Sprintf(gitFetchStartTemplateConstant, "from "+allRemotesLabelConstant, directorySuffix), true
			}
			if len(operands) == 1 {
				return fmt.Sprintf(gitFetchStartTemplateConstant, "from "+operands[0], directorySuffix), true
			}
			return fmt.Sprintf(gitFetchRefsStartTemplateConstant, strings.Join(operands[1:], ", "), operands[0], directorySuffix), true
		case gitPushSubcommandNameConstant:
			return fmt.Sprintf(gitPushStartTemplateConstant, strings.Join(formatter.tailOrUnknown(operands), ", "), formatter.argumentAt(operands, 0), directorySuffix), true
		case gitTagSubcommandNameConstant:
			if len(operands) == 0 {
				return "", false
			}
			return fmt.Sprintf(gitTagStartTemplateConstant, operands[0], directorySuffix), true
		case gitCheckoutSubcommandNameConstant:
			return fmt.Sprintf(gitCheckoutStartTemplateConstant, formatter.argumentAt(operands, len(operands)-1), directorySuffix), true
		case gitCommitSubcommandNameConstant:
			return fmt.Sprintf(gitCommitStartTemplateConstant, directorySuffix), true
		}
	case CommandGsutil:
		switch arguments[0] {
		case gsutilCopySubcommandNameConstant:
			return fmt.Sprintf(gsutilCopyStartTemplateConstant, formatter.argumentAt(operands, 0), formatter.argumentAt(operands, 1)), true
		case gsutilCatSubcommandNameConstant:
			return fmt.Sprintf(gsutilCatStartTemplateConstant, formatter.argumentAt(operands, 0)), true
		}
	case CommandRegctl:
		if len(arguments) > 1 && arguments[0] == regctlImageSubcommandNameConstant && arguments[1] == regctlCopySubcommandNameConstant {
			imageOperands := formatter.nonFlagArguments(arguments[2:])
			return fmt.Sprintf(regctlCopyStartTemplateConstant, formatter.argumentAt(imageOperands, 0), formatter.argumentAt(imageOperands, 1)), true
		}
	}
	return "", false
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	label := command.Label()
	directorySuffix := formatter.formatWorkingDirectorySuffix(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, label, directorySuffix)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, label, directorySuffix)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, label, directorySuffix, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		failureMessage := unknownFailureMessageConstant
		if failure != nil {
			failureMessage = failure.Error()
		}
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, label, directorySuffix, failureMessage)
	}
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	workingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(workingDirectory) == 0 {
		return ""
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, workingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmed := strings.TrimSpace(standardError)
	if len(trimmed) == 0 {
		return ""
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmed)
}

func (formatter CommandMessageFormatter) nonFlagArguments(arguments []string) []string {
	operands := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if strings.HasPrefix(argument, "-") {
			continue
		}
		operands = append(operands, argument)
	}
	return operands
}

func (formatter CommandMessageFormatter) tailOrUnknown(operands []string) []string {
	if len(operands) < 2 {
		return []string{fallbackUnknownValueLabelConstant}
	}
	return operands[1:]
}

func (formatter CommandMessageFormatter) argumentAt(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return fallbackUnknownValueLabelConstant
	}
	return arguments[index]
}
