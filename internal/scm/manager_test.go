package scm_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
)

type recordingExecutor struct {
	mutex     sync.Mutex
	outputs   map[string]string
	failures  map[string]int
	arguments []string
	details   []execshell.CommandDetails
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{outputs: map[string]string{}, failures: map[string]int{}}
}

func (executor *recordingExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandGit, details)
}

func (executor *recordingExecutor) ExecuteGsutil(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	return executor.execute(execshell.CommandGsutil, details)
}

func (executor *recordingExecutor) execute(name execshell.CommandName, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()

	joined := strings.Join(details.Arguments, " ")
	executor.arguments = append(executor.arguments, joined)
	executor.details = append(executor.details, details)
	if exitCode, failing := executor.failures[joined]; failing {
		result := execshell.ExecutionResult{ExitCode: exitCode, StandardError: "fatal"}
		return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: execshell.ShellCommand{Name: name, Details: details}, Result: result}
	}
	return execshell.ExecutionResult{StandardOutput: executor.outputs[joined]}, nil
}

func (executor *recordingExecutor) recorded() []string {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	return append([]string{}, executor.arguments...)
}

func newGitRunner(testInstance *testing.T, executor *recordingExecutor, options gitrunner.Options) *gitrunner.Runner {
	testInstance.Helper()
	runner, runnerError := gitrunner.NewRunner(zap.NewNop(), executor, options)
	require.NoError(testInstance, runnerError)
	return runner
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

func newBranchManager(testInstance *testing.T, executor *recordingExecutor, gitOptions gitrunner.Options, options scm.Options, branchOptions scm.BranchOptions) *scm.BranchManager {
	testInstance.Helper()
	manager, managerError := scm.NewBranchManager(zap.NewNop(), newGitRunner(testInstance, executor, gitOptions), options, branchOptions)
	require.NoError(testInstance, managerError)
	return manager
}

func defaultBranchOptions() scm.BranchOptions {
	return scm.BranchOptions{Branch: "master", Owner: "myfork", Hostname: "github.com"}
}

func TestNewBranchManagerRequiresOptions(testInstance *testing.T) {
	_, managerError := scm.NewBranchManager(zap.NewNop(), newGitRunner(testInstance, newRecordingExecutor(), gitrunner.Options{}), scm.Options{}, scm.BranchOptions{Hostname: "github.com"})
	require.Error(testInstance, managerError)
	require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(managerError))
	require.Contains(testInstance, managerError.Error(), "git.branch, github.owner")
}

func TestDetermineOriginForOwner(testInstance *testing.T) {
	testCases := []struct {
		name           string
		owner          string
		pullSSH        bool
		repositoryRoot string
		expected       string
	}{
		{name: "https", owner: "myfork", expected: "https://github.com/myfork/orca"},
		{name: "ssh", owner: "myfork", pullSSH: true, expected: "git@github.com:myfork/orca"},
		{name: "upstream_alias", owner: "upstream", expected: "https://github.com/spinnaker/orca"},
		{name: "default_alias", owner: "default", expected: "https://github.com/spinnaker/orca"},
		{name: "repository_root", owner: "myfork", repositoryRoot: "/srv/git", expected: "/srv/git/myfork/orca"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			branchOptions := defaultBranchOptions()
			branchOptions.RepositoryRoot = testCase.repositoryRoot
			manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{PullSSH: testCase.pullSSH}, scm.Options{}, branchOptions)
			require.Equal(testInstance, testCase.expected, manager.DetermineOriginForOwner("orca", testCase.owner))
		})
	}
}

func TestRepositorySpecDefaultsAndCaching(testInstance *testing.T) {
	root := testInstance.TempDir()
	manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{RootPath: root}, defaultBranchOptions())

	spec, specError := manager.RepositorySpec("orca")
	require.NoError(testInstance, specError)
	require.Equal(testInstance, repository.Spec{
		Name:     "orca",
		GitDir:   filepath.Join(root, "orca"),
		Origin:   "https://github.com/myfork/orca",
		Upstream: "https://github.com/spinnaker/orca",
	}, spec)

	citest, citestError := manager.RepositorySpec("citest")
	require.NoError(testInstance, citestError)
	require.Equal(testInstance, "https://github.com/google/citest", citest.Upstream)

	again, againError := manager.RepositorySpec("orca")
	require.NoError(testInstance, againError)
	require.Equal(testInstance, spec, again)
}

func TestMakeRepositorySpecRejectsForeignClone(testInstance *testing.T) {
	root := testInstance.TempDir()
	initRepository(testInstance, filepath.Join(root, "orca"), "https://github.com/someone-else/orca")
	manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{RootPath: root}, defaultBranchOptions())

	_, specError := manager.MakeRepositorySpec("orca", scm.SpecOverrides{})
	require.Error(testInstance, specError)
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(specError))
}

func TestMakeRepositorySpecAcceptsPullURLClone(testInstance *testing.T) {
	root := testInstance.TempDir()
	initRepository(testInstance, filepath.Join(root, "orca"), "git@github.com:myfork/orca.git")
	manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{PullSSH: true}, scm.Options{RootPath: root}, defaultBranchOptions())

	spec, specError := manager.MakeRepositorySpec("orca", scm.SpecOverrides{})
	require.NoError(testInstance, specError)
	require.Equal(testInstance, "git@github.com:myfork/orca", spec.Origin)
}

func TestMakeRepositorySpecAcceptsCloneOverOtherProtocol(testInstance *testing.T) {
	testCases := []struct {
		name        string
		cloneOrigin string
		pullSSH     bool
	}{
		{name: "https_clone_ssh_config", cloneOrigin: "https://github.com/myfork/orca.git", pullSSH: true},
		{name: "ssh_clone_https_config", cloneOrigin: "git@github.com:myfork/orca.git"},
		{name: "https_clone_with_suffix", cloneOrigin: "https://github.com/myfork/orca.git"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			root := testInstance.TempDir()
			initRepository(testInstance, filepath.Join(root, "orca"), testCase.cloneOrigin)
			manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{PullSSH: testCase.pullSSH}, scm.Options{RootPath: root}, defaultBranchOptions())

			_, specError := manager.MakeRepositorySpec("orca", scm.SpecOverrides{})
			require.NoError(testInstance, specError)
		})
	}
}

func TestBranchEnsureLocalRepositoryClonesMissingDirectory(testInstance *testing.T) {
	root := testInstance.TempDir()
	executor := newRecordingExecutor()
	branchOptions := defaultBranchOptions()
	branchOptions.FallbackBranch = "release-1.27.x"
	manager := newBranchManager(testInstance, executor, gitrunner.Options{}, scm.Options{RootPath: root}, branchOptions)

	spec, specError := manager.RepositorySpec("orca")
	require.NoError(testInstance, specError)
	require.NoError(testInstance, manager.EnsureLocalRepository(context.Background(), spec))

	require.Contains(testInstance, executor.recorded(), "clone https://github.com/myfork/orca orca -b master")
	require.Contains(testInstance, executor.recorded(), "remote add upstream https://github.com/spinnaker/orca")
}

func TestBranchEnsureLocalRepositoryChecksBranch(testInstance *testing.T) {
	root := testInstance.TempDir()
	initRepository(testInstance, filepath.Join(root, "orca"), "https://github.com/myfork/orca")

	current := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{RootPath: root}, defaultBranchOptions())
	currentSpec, currentSpecError := current.RepositorySpec("orca")
	require.NoError(testInstance, currentSpecError)
	require.NoError(testInstance, current.EnsureLocalRepository(context.Background(), currentSpec))

	releaseOptions := defaultBranchOptions()
	releaseOptions.Branch = "release-1.27.x"
	stale := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{RootPath: root}, releaseOptions)
	staleSpec, staleSpecError := stale.RepositorySpec("orca")
	require.NoError(testInstance, staleSpecError)
	ensureError := stale.EnsureLocalRepository(context.Background(), staleSpec)
	require.Error(testInstance, ensureError)
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(ensureError))
}

func TestBranchBuildNumber(testInstance *testing.T) {
	configured := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{BuildNumber: "42"}, defaultBranchOptions())
	buildNumber, buildNumberError := configured.DetermineBuildNumber(repository.Spec{Name: "orca"})
	require.NoError(testInstance, buildNumberError)
	require.Equal(testInstance, "42", buildNumber)

	unconfigured := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{}, defaultBranchOptions())
	defaultNumber, defaultError := unconfigured.DetermineBuildNumber(repository.Spec{Name: "orca"})
	require.NoError(testInstance, defaultError)
	require.Equal(testInstance, repository.DefaultBuildNumber, defaultNumber)
}

func TestRefreshSourceInfoWritesCache(testInstance *testing.T) {
	root := testInstance.TempDir()
	outputDir := testInstance.TempDir()
	gitDir := filepath.Join(root, "orca")
	commitID := initRepository(testInstance, gitDir, "https://github.com/myfork/orca")

	executor := newRecordingExecutor()
	executor.failures["describe --abbrev=0 --tags --match version-* "+commitID] = 128
	executor.outputs["rev-list --max-parents=0 HEAD"] = commitID
	manager := newBranchManager(testInstance, executor, gitrunner.Options{}, scm.Options{RootPath: root, OutputDir: outputDir, BuildNumber: "77"}, defaultBranchOptions())

	spec, specError := manager.RepositorySpec("orca")
	require.NoError(testInstance, specError)
	info, infoError := manager.RefreshSourceInfo(context.Background(), spec, "ignored")
	require.NoError(testInstance, infoError)
	require.Equal(testInstance, "77", info.BuildNumber)
	require.Equal(testInstance, commitID, info.Summary.CommitID)
	require.Equal(testInstance, "0.0.0", info.Summary.Version)

	content, readError := os.ReadFile(filepath.Join(outputDir, "source_info", "orca-meta.yml"))
	require.NoError(testInstance, readError)
	cached, decodeError := repository.UnmarshalSourceInfo(content)
	require.NoError(testInstance, decodeError)
	require.Equal(testInstance, info.BuildNumber, cached.BuildNumber)
	require.Equal(testInstance, info.Summary.CommitID, cached.Summary.CommitID)
	require.Equal(testInstance, info.Summary.Version, cached.Summary.Version)
}

func TestForeachSourceRepositoryBoundsConcurrency(testInstance *testing.T) {
	manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{MaxThreads: 2}, defaultBranchOptions())
	specs := []repository.Spec{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}}

	var active atomic.Int32
	var peak atomic.Int32
	results, mapError := manager.ForeachSourceRepository(context.Background(), specs, func(executionContext context.Context, spec repository.Spec) (any, error) {
		current := active.Add(1)
		defer active.Add(-1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return strings.ToUpper(spec.Name), nil
	})
	require.NoError(testInstance, mapError)
	require.Equal(testInstance, map[string]any{"a": "A", "b": "B", "c": "C", "d": "D"}, results)
	require.LessOrEqual(testInstance, peak.Load(), int32(2))
}

func TestForeachSourceRepositoryReturnsFirstError(testInstance *testing.T) {
	manager := newBranchManager(testInstance, newRecordingExecutor(), gitrunner.Options{}, scm.Options{}, defaultBranchOptions())
	failure := errors.New("boom")

	results, mapError := manager.ForeachSourceRepository(context.Background(), []repository.Spec{{Name: "a"}, {Name: "b"}}, func(executionContext context.Context, spec repository.Spec) (any, error) {
		if spec.Name == "b" {
			return nil, failure
		}
		return spec.Name, nil
	})
	require.ErrorIs(testInstance, mapError, failure)
	require.Nil(testInstance, results)
}

func TestPushToOriginIfNotUpstream(testInstance *testing.T) {
	testCases := []struct {
		name         string
		spec         repository.Spec
		expectedPush bool
	}{
		{name: "no_upstream", spec: repository.Spec{Name: "orca", GitDir: "/src/orca", Origin: "https://github.com/myfork/orca"}},
		{name: "origin_is_upstream", spec: repository.Spec{Name: "orca", GitDir: "/src/orca", Origin: "https://github.com/spinnaker/orca", Upstream: "https://github.com/spinnaker/orca"}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := newRecordingExecutor()
			manager := newBranchManager(testInstance, executor, gitrunner.Options{}, scm.Options{}, defaultBranchOptions())
			require.NoError(testInstance, manager.PushToOriginIfNotUpstream(context.Background(), testCase.spec, "master"))
			require.Empty(testInstance, executor.recorded())
		})
	}
}

const testBomContentConstant = `artifactSources:
  gitPrefix: https://github.com/spinnaker
services:
  defaultArtifact: {}
  echo: null
  monitoring-daemon:
    commit: m1
    version: 1.0.0-7
  monitoring-third-party:
    commit: m1
    version: 1.0.0-7
  orca:
    commit: %s
    version: 8.0.0-20240101
    gitPrefix: https://github.com/myfork
version: 1.32.0
`

func newBomManager(testInstance *testing.T, executor *recordingExecutor, root string, orcaCommit string) *scm.BomManager {
	testInstance.Helper()
	document, parseError := bom.ParseDocument([]byte(strings.Replace(testBomContentConstant, "%s", orcaCommit, 1)), "test")
	require.NoError(testInstance, parseError)
	return scm.NewBomManager(zap.NewNop(), newGitRunner(testInstance, executor, gitrunner.Options{}), scm.Options{RootPath: root}, document)
}

func TestBomSourceRepositories(testInstance *testing.T) {
	root := testInstance.TempDir()
	manager := newBomManager(testInstance, newRecordingExecutor(), root, "o1")
	require.Equal(testInstance, []string{"spinnaker-monitoring", "orca"}, manager.RepositoryNames())

	specs, specsError := manager.SourceRepositories()
	require.NoError(testInstance, specsError)
	require.Equal(testInstance, []repository.Spec{
		{Name: "spinnaker-monitoring", GitDir: filepath.Join(root, "spinnaker-monitoring"), Origin: "https://github.com/spinnaker/spinnaker-monitoring", CommitID: "m1"},
		{Name: "orca", GitDir: filepath.Join(root, "orca"), Origin: "https://github.com/myfork/orca", CommitID: "o1"},
	}, specs)
}

func TestBomBuildNumberAndVersion(testInstance *testing.T) {
	manager := newBomManager(testInstance, newRecordingExecutor(), testInstance.TempDir(), "o1")
	spec := repository.Spec{Name: "orca"}

	buildNumber, buildNumberError := manager.DetermineBuildNumber(spec)
	require.NoError(testInstance, buildNumberError)
	require.Equal(testInstance, "20240101", buildNumber)

	version, versionError := manager.DetermineRepositoryVersion(spec)
	require.NoError(testInstance, versionError)
	require.Equal(testInstance, "8.0.0", version)

	_, missingError := manager.DetermineBuildNumber(repository.Spec{Name: "deck"})
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(missingError))

	_, originError := manager.RepositorySpec("deck")
	require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(originError))
}

func TestBomEnsureLocalRepository(testInstance *testing.T) {
	root := testInstance.TempDir()
	commitID := initRepository(testInstance, filepath.Join(root, "orca"), "https://github.com/myfork/orca")

	executor := newRecordingExecutor()
	manager := newBomManager(testInstance, executor, root, commitID)
	spec, specError := manager.RepositorySpec("orca")
	require.NoError(testInstance, specError)
	require.Empty(testInstance, spec.Upstream)

	require.NoError(testInstance, manager.EnsureLocalRepository(context.Background(), spec))
	require.Equal(testInstance, []string{"fetch origin --tags", "checkout -q " + commitID}, executor.recorded())

	stale := newBomManager(testInstance, newRecordingExecutor(), root, "0123456789abcdef0123456789abcdef01234567")
	staleSpec, staleSpecError := stale.RepositorySpec("orca")
	require.NoError(testInstance, staleSpecError)
	ensureError := stale.EnsureLocalRepository(context.Background(), staleSpec)
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(ensureError))
}

func TestBomEnsureLocalRepositoryClonesAtCommit(testInstance *testing.T) {
	root := testInstance.TempDir()
	executor := newRecordingExecutor()
	manager := newBomManager(testInstance, executor, root, "o1")
	spec, specError := manager.RepositorySpec("orca")
	require.NoError(testInstance, specError)

	require.NoError(testInstance, manager.EnsureLocalRepository(context.Background(), spec))
	recorded := executor.recorded()
	require.Equal(testInstance, "clone https://github.com/myfork/orca orca", recorded[0])
	require.Equal(testInstance, "checkout -q o1", recorded[1])
}

func TestLoadBom(testInstance *testing.T) {
	path := filepath.Join(testInstance.TempDir(), "bom.yml")
	require.NoError(testInstance, os.WriteFile(path, []byte("version: 1.2.3\nservices: {}\n"), 0o644))
	executor := newRecordingExecutor()
	executor.outputs["cat gs://halconfig/bom/1.2.4.yml"] = "version: 1.2.4\nservices: {}\n"

	testCases := []struct {
		name            string
		source          scm.BomSource
		expectedVersion string
		expectedKind    buildtoolerrors.Kind
	}{
		{name: "path", source: scm.BomSource{Path: path}, expectedVersion: "1.2.3"},
		{name: "version", source: scm.BomSource{Version: "1.2.4", Bucket: "halconfig"}, expectedVersion: "1.2.4"},
		{name: "neither", source: scm.BomSource{}, expectedKind: buildtoolerrors.KindConfig},
		{name: "both", source: scm.BomSource{Path: path, Version: "1.2.4"}, expectedKind: buildtoolerrors.KindConfig},
		{name: "missing_path", source: scm.BomSource{Path: path + ".missing"}, expectedKind: buildtoolerrors.KindConfig},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			document, loadError := scm.LoadBom(context.Background(), zap.NewNop(), executor, testCase.source)
			if len(testCase.expectedKind) > 0 {
				require.Equal(testInstance, testCase.expectedKind, buildtoolerrors.KindOf(loadError))
				return
			}
			require.NoError(testInstance, loadError)
			require.Equal(testInstance, testCase.expectedVersion, document.Version)
		})
	}
}
