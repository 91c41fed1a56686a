package source_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/source"
)

const (
	testBomContent = "artifactSources:\n  dockerRegistry: example\nservices:\n  clouddriver:\n    commit: c1\n    version: 5.80.1-20240101\n  monitoring-daemon:\n    commit: m1\n    version: 1.4.0-20240101\n  monitoring-third-party:\n    commit: m1\n    version: 1.4.0-20240101\n  defaultArtifact: {}\n  deck:\nversion: 1.30.1\ntimestamp: \"2024-01-01 00:00:00\"\n"
	testRegistry   = "registry.example.com/spinnaker"
)

type scriptedToolExecutor struct {
	mutex       sync.Mutex
	outputs     map[string]string
	failures    map[string]int
	invocations []string
}

func newScriptedToolExecutor() *scriptedToolExecutor {
	return &scriptedToolExecutor{outputs: map[string]string{}, failures: map[string]int{}}
}

func (executor *scriptedToolExecutor) execute(program execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()

	joined := strings.Join(details.Arguments, " ")
	executor.invocations = append(executor.invocations, string(program)+" "+joined)
	if exitCode, failing := executor.failures[joined]; failing {
		result := execshell.ExecutionResult{ExitCode: exitCode, StandardError: "fatal"}
		return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: execshell.ShellCommand{Name: program, Details: details}, Result: result}
	}
	return execshell.ExecutionResult{StandardOutput: executor.outputs[joined]}, nil
}

func (executor *scriptedToolExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandGit, details)
}

func (executor *scriptedToolExecutor) ExecuteGsutil(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandGsutil, details)
}

func (executor *scriptedToolExecutor) ExecuteGcloud(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandGcloud, details)
}

func (executor *scriptedToolExecutor) ExecuteRegctl(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandRegctl, details)
}

func (executor *scriptedToolExecutor) recorded() []string {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	return append([]string{}, executor.invocations...)
}

func (executor *scriptedToolExecutor) recordedWithPrefix(prefix string) []string {
	matching := make([]string, 0)
	for _, invocation := range executor.recorded() {
		if strings.HasPrefix(invocation, prefix) {
			matching = append(matching, invocation)
		}
	}
	return matching
}

func newEnvironment(testInstance *testing.T, executor *scriptedToolExecutor, configuration buildconfig.Configuration, credentials map[string]string) dependencies.Environment {
	testInstance.Helper()
	environment := dependencies.Environment{
		Logger:   zap.NewNop(),
		Tools:    executor,
		Registry: metrics.NewDisabledRegistry(),
		LookupEnvironment: func(name string) (string, bool) {
			value, present := credentials[name]
			return value, present
		},
		Clock: func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) },
	}
	configured, configureError := environment.WithConfiguration(configuration)
	require.NoError(testInstance, configureError)
	return configured
}

func sourceConfiguration(testInstance *testing.T, repositories ...string) buildconfig.Configuration {
	testInstance.Helper()
	configuration := buildconfig.DefaultConfiguration()
	configuration.RootPath = testInstance.TempDir()
	configuration.OutputDir = testInstance.TempDir()
	configuration.Git.Branch = "master"
	configuration.OnlyRepositories = repositories
	return configuration
}

func initRepository(testInstance *testing.T, gitDir string, origin string) string {
	testInstance.Helper()
	opened, initError := git.PlainInit(gitDir, false)
	require.NoError(testInstance, initError)
	require.NoError(testInstance, os.WriteFile(filepath.Join(gitDir, "README.md"), []byte("readme\n"), 0o644))
	worktree, worktreeError := opened.Worktree()
	require.NoError(testInstance, worktreeError)
	_, addError := worktree.Add("README.md")
	require.NoError(testInstance, addError)
	commitHash, commitError := worktree.Commit("chore: initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Release Bot", Email: "bot@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(testInstance, commitError)
	_, remoteError := opened.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{origin}})
	require.NoError(testInstance, remoteError)
	return commitHash.String()
}

func TestFetchRepositoryNames(testInstance *testing.T) {
	names := source.FetchRepositoryNames()

	require.Contains(testInstance, names, "orca")
	require.Contains(testInstance, names, "spinnaker-monitoring")
	require.Contains(testInstance, names, "halyard")
	require.Contains(testInstance, names, "buildtool")
	require.NotContains(testInstance, names, "kork")
}

func TestFetchSourceClonesMissingRepository(testInstance *testing.T) {
	executor := newScriptedToolExecutor()
	configuration := sourceConfiguration(testInstance, "orca")
	environment := newEnvironment(testInstance, executor, configuration, nil)

	result, fetchError := source.FetchSource(context.Background(), environment)

	require.NoError(testInstance, fetchError)
	require.Equal(testInstance, []string{"orca"}, result.Repositories)
	require.Contains(testInstance, executor.recorded(), "git clone https://github.com/spinnaker/orca orca -b master")
}

func TestFetchSourceExistingClone(testInstance *testing.T) {
	testCases := []struct {
		name           string
		deleteExisting bool
		skipExisting   bool
		expectClone    bool
		expectError    bool
	}{
		{name: "DeleteExisting", deleteExisting: true, expectClone: true},
		{name: "SkipExisting", skipExisting: true},
		{name: "NeitherOption", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newScriptedToolExecutor()
			configuration := sourceConfiguration(testInstance, "orca")
			configuration.Source.DeleteExisting = testCase.deleteExisting
			configuration.Source.SkipExisting = testCase.skipExisting
			gitDir := filepath.Join(configuration.RootPath, "orca")
			initRepository(testInstance, gitDir, "https://github.com/spinnaker/orca")
			environment := newEnvironment(testInstance, executor, configuration, nil)

			_, fetchError := source.FetchSource(context.Background(), environment)

			if testCase.expectError {
				require.Error(testInstance, fetchError)
				require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(fetchError))
				require.Contains(testInstance, fetchError.Error(), `Enable "skip_existing" or "delete_existing".`)
				require.DirExists(testInstance, gitDir)
				return
			}
			require.NoError(testInstance, fetchError)
			cloned := len(executor.recordedWithPrefix("git clone ")) > 0
			require.Equal(testInstance, testCase.expectClone, cloned)
			if testCase.deleteExisting {
				require.NoDirExists(testInstance, filepath.Join(gitDir, ".git"))
			}
		})
	}
}

func TestExtractSourceInfoCachesSummary(testInstance *testing.T) {
	executor := newScriptedToolExecutor()
	configuration := sourceConfiguration(testInstance, "orca")
	configuration.BuildNumber = "20240201"
	head := initRepository(testInstance, filepath.Join(configuration.RootPath, "orca"), "https://github.com/spinnaker/orca")
	executor.outputs["show-ref --tags"] = "aaaa refs/tags/version-1.2.0"
	executor.outputs["describe --abbrev=0 --tags --match version-* "+head] = "version-1.2.0"
	executor.outputs["rev-list -n 1 version-1.2.0"] = head
	environment := newEnvironment(testInstance, executor, configuration, nil)

	result, extractError := source.ExtractSourceInfo(context.Background(), environment)

	require.NoError(testInstance, extractError)
	require.Len(testInstance, result.SourceInfo, 1)
	info := result.SourceInfo["orca"]
	require.Equal(testInstance, "20240201", info.BuildNumber)
	require.Equal(testInstance, "1.2.0", info.Summary.Version)
	require.Equal(testInstance, head, info.Summary.CommitID)
	require.FileExists(testInstance, filepath.Join(configuration.OutputDir, "source_info", "orca-meta.yml"))
}

func TestNextTag(testInstance *testing.T) {
	testCases := []struct {
		name     string
		latest   string
		branch   string
		expected string
	}{
		{name: "MasterBumpsMinor", latest: "version-1.2.3", branch: "master", expected: "version-1.3.0"},
		{name: "ReleaseBranchBumpsPatch", latest: "version-1.2.3", branch: "release-1.2.x", expected: "version-1.2.4"},
		{name: "Baseline", latest: "version-0.0.0", branch: "master", expected: "version-0.1.0"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			next, nextError := source.NextTag(testCase.latest, testCase.branch)
			require.NoError(testInstance, nextError)
			require.Equal(testInstance, testCase.expected, next)
		})
	}
}

func TestNextTagRejectsMalformedTag(testInstance *testing.T) {
	_, nextError := source.NextTag("latest", "master")

	require.Error(testInstance, nextError)
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(nextError))
}

func TestTagBranch(testInstance *testing.T) {
	testCases := []struct {
		name         string
		tagAtHead    bool
		expectedTags map[string]string
	}{
		{name: "TagsNewCommits", expectedTags: map[string]string{"kork": "version-1.3.0"}},
		{name: "SkipsTaggedHead", tagAtHead: true, expectedTags: map[string]string{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newScriptedToolExecutor()
			configuration := sourceConfiguration(testInstance, "kork")
			configuration.Git.NeverPush = false
			head := initRepository(testInstance, filepath.Join(configuration.RootPath, "kork"), "https://github.com/spinnaker/kork")
			tagCommit := "1111111111111111111111111111111111111111"
			if testCase.tagAtHead {
				tagCommit = head
			}
			executor.outputs["show-ref --tags"] = tagCommit + " refs/tags/version-1.2.0"
			executor.outputs["describe --abbrev=0 --tags --match version-* "+head] = "version-1.2.0"
			executor.outputs["rev-list -n 1 version-1.2.0"] = tagCommit
			environment := newEnvironment(testInstance, executor, configuration, nil)

			result, tagError := source.TagBranch(context.Background(), environment)

			require.NoError(testInstance, tagError)
			require.Equal(testInstance, testCase.expectedTags, result.Tags)
			if testCase.tagAtHead {
				require.Empty(testInstance, executor.recordedWithPrefix("git tag "))
				return
			}
			require.Contains(testInstance, executor.recorded(), "git tag version-1.3.0 HEAD")
			require.Contains(testInstance, executor.recorded(), "git push origin version-1.3.0")
		})
	}
}

func TestNewReleaseBranchRequiresNewBranch(testInstance *testing.T) {
	environment := newEnvironment(testInstance, newScriptedToolExecutor(), sourceConfiguration(testInstance, "kork"), nil)

	_, branchError := source.NewReleaseBranch(context.Background(), environment)

	require.Error(testInstance, branchError)
	require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(branchError))
	require.Contains(testInstance, branchError.Error(), "new_branch")
}

func TestNewReleaseBranchCreatesBranch(testInstance *testing.T) {
	executor := newScriptedToolExecutor()
	configuration := sourceConfiguration(testInstance, "kork")
	configuration.Source.NewBranch = "release-1.31.x"
	configuration.Git.NeverPush = true
	initRepository(testInstance, filepath.Join(configuration.RootPath, "kork"), "https://github.com/spinnaker/kork")
	environment := newEnvironment(testInstance, executor, configuration, nil)

	result, branchError := source.NewReleaseBranch(context.Background(), environment)

	require.NoError(testInstance, branchError)
	require.Equal(testInstance, source.BranchResult{Branch: "release-1.31.x", Repositories: []string{"kork"}}, result)
	require.Contains(testInstance, executor.recorded(), "git checkout -b release-1.31.x")
	require.Empty(testInstance, executor.recordedWithPrefix("git push "))
}

func writeBom(testInstance *testing.T) string {
	testInstance.Helper()
	path := filepath.Join(testInstance.TempDir(), "bom.yml")
	require.NoError(testInstance, os.WriteFile(path, []byte(testBomContent), 0o644))
	return path
}

func TestTagContainersValidation(testInstance *testing.T) {
	testCases := []struct {
		name      string
		bomPath   string
		version   string
		fragments []string
	}{
		{name: "MissingOptions", fragments: []string{"bom_path", "spinnaker_version"}},
		{name: "MissingBom", bomPath: "/does/not/exist.yml", version: "1.30.1", fragments: []string{"/does/not/exist.yml"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := buildconfig.DefaultConfiguration()
			configuration.Bom.Path = testCase.bomPath
			configuration.SpinnakerVersion = testCase.version
			environment := newEnvironment(testInstance, newScriptedToolExecutor(), configuration, nil)

			_, tagError := source.TagContainers(context.Background(), environment)

			require.Error(testInstance, tagError)
			require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(tagError))
			for _, fragment := range testCase.fragments {
				require.Contains(testInstance, tagError.Error(), fragment)
			}
		})
	}
}

func TestTagContainers(testInstance *testing.T) {
	expectedCopies := []source.ImageCopy{
		{Source: testRegistry + "/clouddriver:5.80.1-20240101-unvalidated", Destination: testRegistry + "/clouddriver:5.80.1-20240101"},
		{Source: testRegistry + "/clouddriver:5.80.1-20240101-unvalidated-ubuntu", Destination: testRegistry + "/clouddriver:5.80.1-20240101-ubuntu"},
		{Source: testRegistry + "/clouddriver:5.80.1-20240101-unvalidated", Destination: testRegistry + "/clouddriver:spinnaker-1.30.1"},
		{Source: testRegistry + "/clouddriver:5.80.1-20240101-unvalidated-ubuntu", Destination: testRegistry + "/clouddriver:spinnaker-1.30.1-ubuntu"},
		{Source: testRegistry + "/monitoring-daemon:1.4.0-20240101-unvalidated", Destination: testRegistry + "/monitoring-daemon:1.4.0-20240101"},
		{Source: testRegistry + "/monitoring-daemon:1.4.0-20240101-unvalidated-ubuntu", Destination: testRegistry + "/monitoring-daemon:1.4.0-20240101-ubuntu"},
		{Source: testRegistry + "/monitoring-daemon:1.4.0-20240101-unvalidated", Destination: testRegistry + "/monitoring-daemon:spinnaker-1.30.1"},
		{Source: testRegistry + "/monitoring-daemon:1.4.0-20240101-unvalidated-ubuntu", Destination: testRegistry + "/monitoring-daemon:spinnaker-1.30.1-ubuntu"},
	}

	testCases := []struct {
		name           string
		dryRun         bool
		credentials    map[string]string
		expectedGcloud []string
	}{
		{name: "DryRun", dryRun: true},
		{name: "Copies", credentials: map[string]string{}},
		{
			name:           "ActivatesCredentials",
			credentials:    map[string]string{dependencies.GoogleCredentialsEnvironmentVariable: "/secrets/key.json"},
			expectedGcloud: []string{"gcloud auth activate-service-account --key-file=/secrets/key.json"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newScriptedToolExecutor()
			configuration := buildconfig.DefaultConfiguration()
			configuration.Bom.Path = writeBom(testInstance)
			configuration.SpinnakerVersion = "1.30.1"
			configuration.Containers.DockerRegistry = testRegistry
			configuration.DryRun = testCase.dryRun
			environment := newEnvironment(testInstance, executor, configuration, testCase.credentials)

			result, tagError := source.TagContainers(context.Background(), environment)

			require.NoError(testInstance, tagError)
			require.Equal(testInstance, expectedCopies, result.Copies)
			require.Equal(testInstance, !testCase.dryRun, result.Tagged)
			regctl := executor.recordedWithPrefix("regctl ")
			if testCase.dryRun {
				require.Empty(testInstance, regctl)
				return
			}
			require.Len(testInstance, regctl, len(expectedCopies))
			require.Equal(testInstance, "regctl --verbosity info image copy "+expectedCopies[0].Source+" "+expectedCopies[0].Destination, regctl[0])
			if len(testCase.expectedGcloud) > 0 {
				require.Equal(testInstance, testCase.expectedGcloud, executor.recordedWithPrefix("gcloud "))
			} else {
				require.Empty(testInstance, executor.recordedWithPrefix("gcloud "))
			}
		})
	}
}
