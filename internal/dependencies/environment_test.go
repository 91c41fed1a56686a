package dependencies_test

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/utils"
)

type recordingToolExecutor struct {
	invocations [][]string
}

func (executor *recordingToolExecutor) record(program execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.invocations = append(executor.invocations, append([]string{string(program)}, details.Arguments...))
	return execshell.ExecutionResult{}, nil
}

func (executor *recordingToolExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGit, details)
}

func (executor *recordingToolExecutor) ExecuteGsutil(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGsutil, details)
}

func (executor *recordingToolExecutor) ExecuteGcloud(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGcloud, details)
}

func (executor *recordingToolExecutor) ExecuteRegctl(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandRegctl, details)
}

func TestResolveAppliesFlagsOverConfiguration(testInstance *testing.T) {
	command := &cobra.Command{}
	buildconfig.BindFlags(command, buildconfig.FlagGitBranch, buildconfig.FlagGitNeverPush)
	require.NoError(testInstance, command.ParseFlags([]string{"--git_branch", "release-1.30.x", "--git_never_push"}))

	executor := &recordingToolExecutor{}
	providers := dependencies.Providers{
		LoggerProvider: func() *zap.Logger { return zap.NewNop() },
		ConfigurationProvider: func() buildconfig.Configuration {
			configuration := buildconfig.DefaultConfiguration()
			configuration.Git.Branch = "master"
			return configuration
		},
		ToolExecutor: executor,
	}

	environment, resolveError := providers.Resolve(command)
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, "release-1.30.x", environment.Configuration.Git.Branch)
	require.True(testInstance, environment.Git.Options().NeverPush)
	require.Same(testInstance, executor, environment.Tools)
	require.NotNil(testInstance, environment.Registry)
	require.NotNil(testInstance, environment.Clock)
	require.NotNil(testInstance, environment.HTTPClient)
}

func TestResolveUsesRegistryFromCommandContext(testInstance *testing.T) {
	registry := metrics.NewDisabledRegistry()
	command := &cobra.Command{}
	command.SetContext(utils.NewCommandContextAccessor().WithMetricsRegistry(context.Background(), registry))

	environment, resolveError := dependencies.Providers{ToolExecutor: &recordingToolExecutor{}}.Resolve(command)
	require.NoError(testInstance, resolveError)
	require.Same(testInstance, registry, environment.Registry)
}

func TestActivateGoogleCredentials(testInstance *testing.T) {
	testCases := []struct {
		name                string
		environment         map[string]string
		expectedInvocations [][]string
	}{
		{
			name:                "VariableUnset",
			environment:         map[string]string{},
			expectedInvocations: nil,
		},
		{
			name:        "VariableSet",
			environment: map[string]string{dependencies.GoogleCredentialsEnvironmentVariable: "/secrets/key.json"},
			expectedInvocations: [][]string{
				{"gcloud", "auth", "activate-service-account", "--key-file=/secrets/key.json"},
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &recordingToolExecutor{}
			environment := dependencies.Environment{
				Logger: zap.NewNop(),
				Tools:  executor,
				LookupEnvironment: func(name string) (string, bool) {
					value, present := testCase.environment[name]
					return value, present
				},
			}

			require.NoError(testInstance, environment.ActivateGoogleCredentials(context.Background()))
			require.Equal(testInstance, testCase.expectedInvocations, executor.invocations)
		})
	}
}
