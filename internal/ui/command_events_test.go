package ui_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/ui"
)

const (
	testWorkingDirectoryConstant = "/work/build_source/orca/"
	testStandardErrorConstant    = "fatal: couldn't find remote ref\nhint: check the branch"
)

func TestConsoleCommandEventLoggerEmitsMessages(testInstance *testing.T) {
	command := execshell.ShellCommand{
		Name: execshell.CommandGit,
		Details: execshell.CommandDetails{
			Arguments:        []string{"fetch", "origin", "--tags"},
			WorkingDirectory: testWorkingDirectoryConstant,
		},
	}

	testCases := []struct {
		name            string
		invoke          func(logger *ui.ConsoleCommandEventLogger)
		expectedLevel   zapcore.Level
		expectedMessage string
	}{
		{
			name:            "started",
			invoke:          func(logger *ui.ConsoleCommandEventLogger) { logger.CommandStarted(command) },
			expectedLevel:   zapcore.InfoLevel,
			expectedMessage: "[orca] git fetch origin --tags",
		},
		{
			name: "completed",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandCompleted(command, execshell.ExecutionResult{ExitCode: 0})
			},
			expectedLevel:   zapcore.DebugLevel,
			expectedMessage: "[orca] git fetch origin --tags finished",
		},
		{
			name: "non_zero_exit",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandCompleted(command, execshell.ExecutionResult{ExitCode: 128, StandardError: testStandardErrorConstant})
			},
			expectedLevel:   zapcore.WarnLevel,
			expectedMessage: "[orca] git fetch origin --tags exited with code 128: fatal: couldn't find remote ref",
		},
		{
			name: "not_started",
			invoke: func(logger *ui.ConsoleCommandEventLogger) {
				logger.CommandExecutionFailed(command, errors.New("executable file not found"))
			},
			expectedLevel:   zapcore.ErrorLevel,
			expectedMessage: "[orca] git fetch origin --tags could not run: executable file not found",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observerCore, observedLogs := observer.New(zapcore.DebugLevel)
			eventLogger := ui.NewConsoleCommandEventLogger(zap.New(observerCore))

			testCase.invoke(eventLogger)

			entries := observedLogs.All()
			require.Len(testInstance, entries, 1)
			require.Equal(testInstance, testCase.expectedLevel, entries[0].Level)
			require.Equal(testInstance, testCase.expectedMessage, entries[0].Message)
		})
	}
}

func TestCommandEventFormatterOmitsPrefixOutsideClonesAndTruncates(testInstance *testing.T) {
	formatter := ui.CommandEventFormatter{}
	command := execshell.ShellCommand{
		Name:    execshell.CommandGsutil,
		Details: execshell.CommandDetails{Arguments: []string{"cp", strings.Repeat("x", 100)}},
	}

	message := formatter.BuildStartedMessage(command)

	require.True(testInstance, strings.HasPrefix(message, "gsutil cp xxx"))
	require.Len(testInstance, message, 80)
	require.True(testInstance, strings.HasSuffix(message, "..."))
}
