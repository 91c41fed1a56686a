package gitrunner_test

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
	"go.uber.org/zap/zaptest/observer"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/execshell"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/repository"
)

type scriptedResponse struct {
	result   execshell.ExecutionResult
	exitCode int
}

type scriptedGitExecutor struct {
	mutex     sync.Mutex
	responses map[string]scriptedResponse
	calls     []execshell.CommandDetails
}

func newScriptedGitExecutor() *scriptedGitExecutor {
	return &scriptedGitExecutor{responses: map[string]scriptedResponse{}}
}

func (executor *scriptedGitExecutor) respond(arguments string, standardOutput string) {
	executor.responses[arguments] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: standardOutput}}
}

func (executor *scriptedGitExecutor) fail(arguments string, exitCode int, standardError string) {
	executor.responses[arguments] = scriptedResponse{result: execshell.ExecutionResult{StandardError: standardError, ExitCode: exitCode}, exitCode: exitCode}
}

func (executor *scriptedGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	executor.calls = append(executor.calls, details)

	response := executor.responses[strings.Join(details.Arguments, " ")]
	if response.exitCode != 0 {
		command := execshell.ShellCommand{Name: execshell.CommandGit, Details: details}
		return execshell.ExecutionResult{}, execshell.CommandFailedError{Command: command, Result: response.result}
	}
	return response.result, nil
}

func (executor *scriptedGitExecutor) commandLines() []string {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	lines := make([]string, 0, len(executor.calls))
	for _, call := range executor.calls {
		lines = append(lines, strings.Join(call.Arguments, " "))
	}
	return lines
}

func newRunner(testInstance *testing.T, executor gitrunner.GitExecutor, options gitrunner.Options) *gitrunner.Runner {
	runner, runnerError := gitrunner.NewRunner(zap.NewNop(), executor, options)
	require.NoError(testInstance, runnerError)
	return runner
}

// initRepository creates a clone on disk with one commit and the given remotes.
func initRepository(testInstance *testing.T, remotes map[string]string) (string, string) {
	gitDir := filepath.Join(testInstance.TempDir(), "orca")
	opened, initError := git.PlainInit(gitDir, false)
	require.NoError(testInstance, initError)

	require.NoError(testInstance, os.WriteFile(filepath.Join(gitDir, "README.md"), []byte("orca\n"), 0o644))
	worktree, worktreeError := opened.Worktree()
	require.NoError(testInstance, worktreeError)
	_, addError := worktree.Add("README.md")
	require.NoError(testInstance, addError)
	commitHash, commitError := worktree.Commit("chore: initial", &git.CommitOptions{
		Author: &object.Signature{Name: "Release Bot", Email: "bot@example.com", When: time.Unix(1700000000, 0)},
	})
	require.NoError(testInstance, commitError)

	for name, url := range remotes {
		_, remoteError := opened.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}})
		require.NoError(testInstance, remoteError)
	}
	return gitDir, commitHash.String()
}

func TestNewRunnerRequiresExecutor(testInstance *testing.T) {
	_, runnerError := gitrunner.NewRunner(zap.NewNop(), nil, gitrunner.Options{})
	require.ErrorIs(testInstance, runnerError, gitrunner.ErrExecutorNotConfigured)
}

func TestInspectionUsesLocalClone(testInstance *testing.T) {
	gitDir, commitID := initRepository(testInstance, map[string]string{
		"origin":   "https://github.com/myfork/orca",
		"upstream": "https://github.com/spinnaker/orca",
	})
	runner := newRunner(testInstance, newScriptedGitExecutor(), gitrunner.Options{})

	headID, headError := runner.QueryLocalRepositoryCommitID(gitDir)
	require.NoError(testInstance, headError)
	require.Equal(testInstance, commitID, headID)

	branch, branchError := runner.QueryLocalRepositoryBranch(gitDir)
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "master", branch)

	spec, specError := runner.DetermineGitRepositorySpec(gitDir)
	require.NoError(testInstance, specError)
	require.Equal(testInstance, repository.Spec{
		Name:     "orca",
		GitDir:   gitDir,
		Origin:   "https://github.com/myfork/orca",
		Upstream: "https://github.com/spinnaker/orca",
	}, spec)
}

func TestDetermineSpecRequiresOrigin(testInstance *testing.T) {
	gitDir, _ := initRepository(testInstance, nil)
	runner := newRunner(testInstance, newScriptedGitExecutor(), gitrunner.Options{})

	_, specError := runner.DetermineGitRepositorySpec(gitDir)
	require.Equal(testInstance, buildtoolerrors.KindUnexpected, buildtoolerrors.KindOf(specError))
}

func TestQueryCommitAtTag(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.respond("show-ref -- version-1.2.3", "abc123 refs/tags/version-1.2.3\n")
	executor.fail("show-ref -- version-9.9.9", 1, "")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	commitID, found, queryError := runner.QueryCommitAtTag(context.Background(), "/src/orca", "version-1.2.3")
	require.NoError(testInstance, queryError)
	require.True(testInstance, found)
	require.Equal(testInstance, "abc123", commitID)

	_, found, queryError = runner.QueryCommitAtTag(context.Background(), "/src/orca", "version-9.9.9")
	require.NoError(testInstance, queryError)
	require.False(testInstance, found)
}

func TestQueryTagCommitsSortsNewestFirst(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.respond("show-ref --tags", strings.Join([]string{
		"c1 refs/tags/version-1.9.0",
		"c2 refs/tags/version-1.10.0",
		"c3 refs/tags/not-a-release",
		"c4 refs/tags/version-1.2.0",
	}, "\n"))
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	tags, queryError := runner.QueryTagCommits(context.Background(), "/src/orca", gitrunner.ReleaseTagPattern)
	require.NoError(testInstance, queryError)
	require.Equal(testInstance, []gitrunner.CommitTag{
		{CommitID: "c2", Tag: "version-1.10.0"},
		{CommitID: "c1", Tag: "version-1.9.0"},
		{CommitID: "c4", Tag: "version-1.2.0"},
	}, tags)
}

func TestFindNewestTagShortCircuitsWhenHeadIsTagged(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.respond("describe --abbrev=0 --tags --match version-* head01", "version-1.4.0\n")
	executor.respond("rev-list -n 1 version-1.4.0", "head01\n")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	tag, commitID, findError := runner.FindNewestTagAndCommonCommitFromID(context.Background(), "/src/orca", "head01", nil)
	require.NoError(testInstance, findError)
	require.Equal(testInstance, "version-1.4.0", tag)
	require.Equal(testInstance, "head01", commitID)
	require.Len(testInstance, executor.commandLines(), 2)
}

func TestFindNewestTagPrefersNewerTagOnIntersectingBranch(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.respond("describe --abbrev=0 --tags --match version-* head01", "version-0.1.0")
	executor.respond("rev-list -n 1 version-0.1.0", "tagged01")
	executor.respond("show-ref origin/master", "master01 refs/remotes/origin/master")
	executor.respond("branch -r --contains head01", "  origin/release-0.3.x\n  origin/feature")
	executor.respond("merge-base origin/release-0.3.x master01", "diverge01")
	executor.respond("merge-base head01 version-0.3.0", "diverge01")
	executor.respond("merge-base head01 version-0.2.0", "common01")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	tags := []gitrunner.CommitTag{
		{CommitID: "t3", Tag: "version-0.3.0"},
		{CommitID: "t2", Tag: "version-0.2.0"},
		{CommitID: "t1", Tag: "version-0.1.0"},
	}
	tag, commitID, findError := runner.FindNewestTagAndCommonCommitFromID(context.Background(), "/src/orca", "head01", tags)
	require.NoError(testInstance, findError)
	require.Equal(testInstance, "version-0.2.0", tag)
	require.Equal(testInstance, "common01", commitID)
	require.NotContains(testInstance, executor.commandLines(), "merge-base origin/feature master01")
}

func TestFindNewestTagFallsBackToBaseline(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.fail("describe --abbrev=0 --tags --match version-* head01", 128, "fatal: No names found")
	executor.respond("rev-list --max-parents=0 HEAD", "root01")
	executor.respond("show-ref origin/master", "master01 refs/remotes/origin/master")
	executor.respond("branch -r --contains head01", "")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	tag, commitID, findError := runner.FindNewestTagAndCommonCommitFromID(context.Background(), "/src/orca", "head01", nil)
	require.NoError(testInstance, findError)
	require.Equal(testInstance, gitrunner.BaselineTag, tag)
	require.Equal(testInstance, "root01", commitID)
}

func TestCollectRepositorySummaryProposesNextVersion(testInstance *testing.T) {
	gitDir, headID := initRepository(testInstance, map[string]string{"origin": "https://github.com/spinnaker/orca"})

	executor := newScriptedGitExecutor()
	executor.respond("show-ref --tags", "tagged01 refs/tags/version-2.3.4")
	executor.respond("describe --abbrev=0 --tags --match version-* "+headID, "version-2.3.4")
	executor.respond("rev-list -n 1 version-2.3.4", "tagged01")
	executor.respond("show-ref origin/master", "master01 refs/remotes/origin/master")
	executor.respond("branch -r --contains "+headID, "  origin/master")
	executor.respond("log --pretty=medium tagged01.."+headID, strings.Join([]string{
		"commit " + headID,
		"Author: Dev <dev@example.com>",
		"Date:   Mon Jan 8 10:00:00 2024 +0000",
		"",
		"    feat(stages): new stage",
	}, "\n"))
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	summary, summaryError := runner.CollectRepositorySummary(context.Background(), gitDir, "")
	require.NoError(testInstance, summaryError)
	require.Equal(testInstance, headID, summary.CommitID)
	require.Equal(testInstance, "version-2.4.0", summary.Tag)
	require.Equal(testInstance, "2.4.0", summary.Version)
	require.Equal(testInstance, "2.3.4", summary.PriorVersion)
	require.Len(testInstance, summary.CommitMessages, 1)
}

func TestCloneFallsBackToDefaultBranch(testInstance *testing.T) {
	rootDirectory := testInstance.TempDir()
	gitDir := filepath.Join(rootDirectory, "gate")

	executor := newScriptedGitExecutor()
	executor.fail("clone https://github.com/spinnaker/gate gate -b release-1.2.x", 128, "warning: Could not find remote branch\nfatal: Remote branch release-1.2.x not found in upstream origin")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	spec := repository.Spec{Name: "gate", GitDir: gitDir, Origin: "https://github.com/spinnaker/gate.git"}
	cloneError := runner.CloneRepositoryToPath(context.Background(), spec, gitrunner.CloneOptions{Branch: "release-1.2.x", FallbackBranch: "master"})
	require.NoError(testInstance, cloneError)

	require.Equal(testInstance, []string{
		"clone https://github.com/spinnaker/gate gate -b release-1.2.x",
		"clone https://github.com/spinnaker/gate gate -b master",
		"remote set-url --push origin https://github.com/spinnaker/gate",
	}, executor.commandLines())
}

func TestCloneRejectsCommitAndBranch(testInstance *testing.T) {
	runner := newRunner(testInstance, newScriptedGitExecutor(), gitrunner.Options{})
	cloneError := runner.CloneRepositoryToPath(context.Background(), repository.Spec{Name: "x"}, gitrunner.CloneOptions{Commit: "c", Branch: "b"})
	require.Equal(testInstance, buildtoolerrors.KindConfig, buildtoolerrors.KindOf(cloneError))
}

func TestCloneAddsSeparateUpstreamAndCheckout(testInstance *testing.T) {
	gitDir := filepath.Join(testInstance.TempDir(), "deck")
	executor := newScriptedGitExecutor()
	runner := newRunner(testInstance, executor, gitrunner.Options{PushSSH: true, DisableUpstreamPush: true})

	spec := repository.Spec{Name: "deck", GitDir: gitDir, Origin: "https://github.com/myfork/deck", Upstream: "git@github.com:spinnaker/deck.git"}
	require.NoError(testInstance, runner.CloneRepositoryToPath(context.Background(), spec, gitrunner.CloneOptions{Commit: "abc123"}))

	require.Equal(testInstance, []string{
		"clone https://github.com/myfork/deck deck",
		"checkout -q abc123",
		"remote add upstream git@github.com:spinnaker/deck.git",
		"remote set-url --push upstream disabled",
		"remote set-url --push origin git@github.com:myfork/deck",
	}, executor.commandLines())
}

func TestPushHonorsNeverPush(testInstance *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	executor := newScriptedGitExecutor()
	runner, runnerError := gitrunner.NewRunner(zap.New(core), executor, gitrunner.Options{NeverPush: true})
	require.NoError(testInstance, runnerError)

	require.NoError(testInstance, runner.PushTagToOrigin(context.Background(), "/src/orca", "version-1.0.0"))
	require.NoError(testInstance, runner.PushBranchToOrigin(context.Background(), "/src/orca", "master", false))
	require.Empty(testInstance, executor.commandLines())
	require.Equal(testInstance, 2, logs.Len())
}

func TestPushBranchSkipsWhenOnAnotherBranch(testInstance *testing.T) {
	gitDir, _ := initRepository(testInstance, map[string]string{"origin": "https://github.com/spinnaker/orca"})
	executor := newScriptedGitExecutor()
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	require.NoError(testInstance, runner.PushBranchToOrigin(context.Background(), gitDir, "release-1.0.x", false))
	require.Empty(testInstance, executor.commandLines())

	require.NoError(testInstance, runner.PushBranchToOrigin(context.Background(), gitDir, "master", true))
	require.Equal(testInstance, []string{"push origin master -f"}, executor.commandLines())
}

func TestCheckCommitOrNoChanges(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.fail("commit -a -m nothing", 1, "On branch master\nnothing to commit, working tree clean")
	executor.fail("commit -a -m broken", 1, "fatal: unable to write")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	_, noChangesError := runner.CheckCommitOrNoChanges(context.Background(), "/src/site", "-a", "-m", "nothing")
	require.NoError(testInstance, noChangesError)

	_, failureError := runner.CheckCommitOrNoChanges(context.Background(), "/src/site", "-a", "-m", "broken")
	require.Equal(testInstance, buildtoolerrors.KindExecution, buildtoolerrors.KindOf(failureError))
}

func TestDeleteLocalBranchIfExists(testInstance *testing.T) {
	executor := newScriptedGitExecutor()
	executor.respond("branch -l", "* master\n  release-1.0.x\n")
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	require.NoError(testInstance, runner.DeleteLocalBranchIfExists(context.Background(), "/src/orca", "release-1.0.x"))
	require.NoError(testInstance, runner.DeleteLocalBranchIfExists(context.Background(), "/src/orca", "missing"))
	require.Equal(testInstance, []string{"branch -l", "branch -D release-1.0.x", "branch -l"}, executor.commandLines())
}

func TestRefreshSkipsMissingUpstream(testInstance *testing.T) {
	gitDir, _ := initRepository(testInstance, map[string]string{"origin": "https://github.com/spinnaker/orca"})
	executor := newScriptedGitExecutor()
	runner := newRunner(testInstance, executor, gitrunner.Options{})

	require.NoError(testInstance, runner.RefreshLocalRepository(context.Background(), gitDir, "upstream"))
	require.Empty(testInstance, executor.commandLines())

	require.NoError(testInstance, runner.RefreshLocalRepository(context.Background(), gitDir, "origin"))
	require.Equal(testInstance, []string{"fetch origin --tags"}, executor.commandLines())
}
