package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spinnaker/buildtool/internal/execshell"
)

type scriptedRunner struct {
	result   execshell.ExecutionResult
	failure  error
	commands []execshell.ShellCommand
}

func (runner *scriptedRunner) Run(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.commands = append(runner.commands, command)
	return runner.result, runner.failure
}

type eventLog struct {
	started   []execshell.CommandName
	completed []int
	failed    []error
}

func (events *eventLog) CommandStarted(command execshell.ShellCommand) {
	events.started = append(events.started, command.Name)
}

func (events *eventLog) CommandCompleted(_ execshell.ShellCommand, result execshell.ExecutionResult) {
	events.completed = append(events.completed, result.ExitCode)
}

func (events *eventLog) CommandExecutionFailed(_ execshell.ShellCommand, failure error) {
	events.failed = append(events.failed, failure)
}

func TestNewShellExecutorRequiresCollaborators(testInstance *testing.T) {
	_, missingLogger := execshell.NewShellExecutor(nil, &scriptedRunner{})
	require.ErrorIs(testInstance, missingLogger, execshell.ErrLoggerNotConfigured)

	_, missingRunner := execshell.NewShellExecutor(zap.NewNop(), nil)
	require.ErrorIs(testInstance, missingRunner, execshell.ErrCommandRunnerNotConfigured)

	executor, creationError := execshell.NewShellExecutor(zap.NewNop(), &scriptedRunner{})
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, executor)
}

func TestShellExecutorOutcomes(testInstance *testing.T) {
	testCases := []struct {
		name           string
		runner         *scriptedRunner
		expectFailed   bool
		expectUnrun    bool
		expectedLevel  zapcore.Level
		expectedEvents eventLog
	}{
		{
			name:          "ZeroExit",
			runner:        &scriptedRunner{result: execshell.ExecutionResult{StandardOutput: "a1b2c3\n"}},
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "NonZeroExit",
			runner:        &scriptedRunner{result: execshell.ExecutionResult{ExitCode: 128, StandardError: "fatal: not a git repository"}},
			expectFailed:  true,
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "NotStarted",
			runner:        &scriptedRunner{failure: errors.New("exec: \"git\": executable file not found in $PATH")},
			expectUnrun:   true,
			expectedLevel: zapcore.ErrorLevel,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			events := &eventLog{}
			executor, creationError := execshell.NewShellExecutorWithObserver(zap.New(core), testCase.runner, events)
			require.NoError(testInstance, creationError)

			result, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{
				Arguments:        []string{"rev-parse", "HEAD"},
				WorkingDirectory: "build_source/clouddriver",
			})

			entries := logs.AllUntimed()
			require.Len(testInstance, entries, 2)
			require.Equal(testInstance, testCase.expectedLevel, entries[1].Level)
			require.Equal(testInstance, []execshell.CommandName{execshell.CommandGit}, events.started)

			switch {
			case testCase.expectFailed:
				var failed execshell.CommandFailedError
				require.ErrorAs(testInstance, executionError, &failed)
				require.Equal(testInstance, "git rev-parse HEAD failed with exit code 128: fatal: not a git repository", failed.Error())
				require.Empty(testInstance, result.StandardOutput)
				require.Equal(testInstance, []int{128}, events.completed)
			case testCase.expectUnrun:
				var unrun execshell.CommandExecutionError
				require.ErrorAs(testInstance, executionError, &unrun)
				require.ErrorIs(testInstance, executionError, testCase.runner.failure)
				require.Len(testInstance, events.failed, 1)
				require.Empty(testInstance, events.completed)
			default:
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, "a1b2c3\n", result.StandardOutput)
				require.Equal(testInstance, []int{0}, events.completed)
			}
		})
	}
}

func TestShellExecutorToolWrappers(testInstance *testing.T) {
	testCases := []struct {
		name     string
		invoke   func(*execshell.ShellExecutor, context.Context, execshell.CommandDetails) (execshell.ExecutionResult, error)
		expected execshell.CommandName
	}{
		{name: "Git", invoke: (*execshell.ShellExecutor).ExecuteGit, expected: execshell.CommandGit},
		{name: "Gsutil", invoke: (*execshell.ShellExecutor).ExecuteGsutil, expected: execshell.CommandGsutil},
		{name: "Gcloud", invoke: (*execshell.ShellExecutor).ExecuteGcloud, expected: execshell.CommandGcloud},
		{name: "Regctl", invoke: (*execshell.ShellExecutor).ExecuteRegctl, expected: execshell.CommandRegctl},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			runner := &scriptedRunner{}
			executor, creationError := execshell.NewShellExecutor(zap.NewNop(), runner)
			require.NoError(testInstance, creationError)

			details := execshell.CommandDetails{Arguments: []string{"version"}}
			_, executionError := testCase.invoke(executor, context.Background(), details)

			require.NoError(testInstance, executionError)
			require.Equal(testInstance, []execshell.ShellCommand{{Name: testCase.expected, Details: details}}, runner.commands)
		})
	}
}

func TestCommandFailedErrorFallsBackToStandardOutput(testInstance *testing.T) {
	failed := execshell.CommandFailedError{
		Command: execshell.ShellCommand{Name: execshell.CommandGsutil, Details: execshell.CommandDetails{Arguments: []string{"cp", "bom.yml", "gs://halconfig/bom/"}}},
		Result:  execshell.ExecutionResult{ExitCode: 1, StandardOutput: "AccessDeniedException: 403\n"},
	}
	require.Equal(testInstance, "gsutil cp bom.yml gs://halconfig/bom/ failed with exit code 1: AccessDeniedException: 403", failed.Error())

	silent := execshell.CommandFailedError{Command: execshell.ShellCommand{Name: execshell.CommandRegctl}, Result: execshell.ExecutionResult{ExitCode: 2}}
	require.Equal(testInstance, "regctl failed with exit code 2", silent.Error())
}
