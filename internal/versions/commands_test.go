package versions_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/versions"
)

const publishedVersionsContent = `latestHalyard: 1.50.0
latestSpinnaker: 1.29.1
versions:
  - alias: v1.29.1
    changelog: https://spinnaker.io/changelogs/1.29.1-changelog/
    lastUpdate: 1700000000000
    minimumHalyardVersion: "1.45"
    version: 1.29.1
  - alias: v1.28.4
    changelog: https://spinnaker.io/changelogs/1.28.4-changelog/
    lastUpdate: 1690000000000
    minimumHalyardVersion: "1.45"
    version: 1.28.4
`

type scriptedToolExecutor struct {
	outputs     map[string]string
	invocations []string
}

func (executor *scriptedToolExecutor) record(program execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	invocation := string(program) + " " + strings.Join(details.Arguments, " ")
	executor.invocations = append(executor.invocations, invocation)
	return execshell.ExecutionResult{StandardOutput: executor.outputs[invocation]}, nil
}

func (executor *scriptedToolExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGit, details)
}

func (executor *scriptedToolExecutor) ExecuteGsutil(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGsutil, details)
}

func (executor *scriptedToolExecutor) ExecuteGcloud(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandGcloud, details)
}

func (executor *scriptedToolExecutor) ExecuteRegctl(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.record(execshell.CommandRegctl, details)
}

func newEnvironment(testInstance *testing.T, executor *scriptedToolExecutor, configuration buildconfig.Configuration) dependencies.Environment {
	testInstance.Helper()
	environment := dependencies.Environment{
		Logger:            zap.NewNop(),
		Tools:             executor,
		Registry:          metrics.NewDisabledRegistry(),
		LookupEnvironment: func(string) (string, bool) { return "", false },
		Clock:             func() time.Time { return time.UnixMilli(1710000000000) },
	}
	configured, configureError := environment.WithConfiguration(configuration)
	require.NoError(testInstance, configureError)
	return configured
}

func TestFetchUpdateAndPublishVersions(testInstance *testing.T) {
	workspace := testInstance.TempDir()
	executor := &scriptedToolExecutor{outputs: map[string]string{"gsutil cat gs://halconfig/versions.yml": publishedVersionsContent}}

	configuration := buildconfig.DefaultConfiguration()
	configuration.OutputDir = workspace

	fetchedPath, fetchError := versions.FetchVersions(context.Background(), newEnvironment(testInstance, executor, configuration))
	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, filepath.Join(workspace, "fetch_versions", "versions.yml"), fetchedPath)

	configuration.Versions.VersionsYMLPath = fetchedPath
	configuration.SpinnakerVersion = "1.30.0"
	configuration.Versions.MinimumHalyardVersion = "1.45"
	updatedPath, updateError := versions.UpdateVersions(context.Background(), newEnvironment(testInstance, executor, configuration))
	require.NoError(testInstance, updateError)
	require.Equal(testInstance, filepath.Join(workspace, "update_versions", "versions.yml"), updatedPath)

	updated, loadError := versions.LoadDocument(updatedPath)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, "1.30.0", updated.LatestSpinnaker)
	require.Equal(testInstance, "1.50.0", updated.LatestHalyard)
	require.Equal(testInstance, []string{"1.30.0", "1.29.1", "1.28.4"}, releaseVersions(updated.Versions))
	require.Equal(testInstance, int64(1710000000000), updated.Versions[0].LastUpdate)

	configuration.Versions.VersionsYMLPath = updatedPath
	configuration.DryRun = false
	result, publishError := versions.PublishVersions(context.Background(), newEnvironment(testInstance, executor, configuration))
	require.NoError(testInstance, publishError)
	require.True(testInstance, result.Published)
	require.Equal(testInstance, []string{
		"gsutil cat gs://halconfig/versions.yml",
		"gsutil cp " + updatedPath + " gs://halconfig/versions.yml",
	}, executor.invocations)
}

func TestUpdateVersionsRequiresOptions(testInstance *testing.T) {
	configuration := buildconfig.DefaultConfiguration()
	configuration.OutputDir = testInstance.TempDir()

	_, updateError := versions.UpdateVersions(context.Background(), newEnvironment(testInstance, &scriptedToolExecutor{}, configuration))
	require.Error(testInstance, updateError)
	require.Contains(testInstance, updateError.Error(), "minimum_halyard_version, spinnaker_version, versions_yml_path")
}

func TestPublishVersionsDryRun(testInstance *testing.T) {
	path := filepath.Join(testInstance.TempDir(), "versions.yml")
	require.NoError(testInstance, os.WriteFile(path, []byte(publishedVersionsContent), 0o644))

	configuration := buildconfig.DefaultConfiguration()
	configuration.Versions.VersionsYMLPath = path

	executor := &scriptedToolExecutor{}
	result, publishError := versions.PublishVersions(context.Background(), newEnvironment(testInstance, executor, configuration))
	require.NoError(testInstance, publishError)
	require.False(testInstance, result.Published)
	require.Equal(testInstance, "gs://halconfig/versions.yml", result.Destination)
	require.Empty(testInstance, executor.invocations)
}
