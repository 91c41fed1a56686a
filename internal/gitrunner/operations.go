package gitrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/gitrepo"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	remoteBranchNotFoundTemplateConstant = "Remote branch %s not found"
	branchesMissingTemplateConstant      = "branches %v do not exist in %s"
	commitAndBranchMessageConstant       = "at most one of commit or branch can be specified"
	nothingToCommitConstant              = "nothing to commit"
	disabledPushURLConstant              = "disabled"
	currentBranchMarkerConstant          = "*"
	cloneDirectoryMode                   = 0o755
	retryBranchMessageConstant           = "branch does not exist, retrying with fallback"
	clonedMessageConstant                = "cloned repository"
	pushWrongBranchMessageConstant       = "skipping push because the clone is on a different branch"
	missingUpstreamMessageConstant       = "skipping refresh because the remote does not exist"
	noChangesMessageConstant             = "no changes to commit"
	deletingBranchMessageConstant        = "deleting existing local branch"
	logFieldURLConstant                  = "url"
	logFieldCurrentBranchConstant        = "current_branch"
)

// CloneOptions selects what to check out after cloning. At most one of Commit and Branch may be set.
type CloneOptions struct {
	Commit         string
	Branch         string
	FallbackBranch string
}

// CloneRepositoryToPath clones spec.Origin into spec.GitDir.
// A missing Branch falls back to FallbackBranch when one is given.
func (runner *Runner) CloneRepositoryToPath(executionContext context.Context, spec repository.Spec, options CloneOptions) error {
	if len(options.Commit) > 0 && len(options.Branch) > 0 {
		return buildtoolerrors.NewConfigError(commitAndBranchMessageConstant, nil)
	}
	origin, originError := spec.RequireOrigin()
	if originError != nil {
		return originError
	}
	gitDir, gitDirError := spec.RequireGitDir()
	if gitDirError != nil {
		return gitDirError
	}

	pullURL := runner.PullURL(origin)
	parentDirectory := filepath.Dir(gitDir)
	if makeError := os.MkdirAll(parentDirectory, cloneDirectoryMode); makeError != nil {
		return makeError
	}

	cloneArguments := []string{"clone", pullURL, filepath.Base(gitDir)}
	if len(options.Branch) > 0 {
		branches := []string{options.Branch}
		if len(options.FallbackBranch) > 0 && options.FallbackBranch != options.Branch {
			branches = append(branches, options.FallbackBranch)
		}
		if cloneError := runner.cloneFirstExistingBranch(executionContext, pullURL, parentDirectory, cloneArguments, branches); cloneError != nil {
			return cloneError
		}
	} else if _, cloneError := runner.Run(executionContext, parentDirectory, cloneArguments...); cloneError != nil {
		return cloneError
	}
	runner.logger.Info(clonedMessageConstant, zap.String(logFieldURLConstant, pullURL), zap.String(logFieldGitDirConstant, gitDir))

	if len(options.Commit) > 0 {
		if checkoutError := runner.Checkout(executionContext, gitDir, options.Commit); checkoutError != nil {
			return checkoutError
		}
	}
	return runner.configureRemotes(executionContext, spec, gitDir, origin)
}

func (runner *Runner) cloneFirstExistingBranch(executionContext context.Context, pullURL string, parentDirectory string, cloneArguments []string, branches []string) error {
	for branchIndex, branch := range branches {
		arguments := append(append([]string{}, cloneArguments...), "-b", branch)
		output, exitCode, runError := runner.tryRun(executionContext, parentDirectory, arguments...)
		if runError != nil {
			return runError
		}
		if exitCode == 0 {
			return nil
		}
		if !strings.Contains(output, fmt.Sprintf(remoteBranchNotFoundTemplateConstant, branch)) {
			return gitFailure(parentDirectory, arguments, output)
		}
		if branchIndex+1 < len(branches) {
			runner.logger.Warn(retryBranchMessageConstant, zap.String(logFieldBranchConstant, branch), zap.String(logFieldURLConstant, pullURL))
		}
	}
	return buildtoolerrors.NewConfigError(fmt.Sprintf(branchesMissingTemplateConstant, branches, pullURL), nil)
}

func (runner *Runner) configureRemotes(executionContext context.Context, spec repository.Spec, gitDir string, origin string) error {
	separateUpstream := len(spec.Upstream) > 0 && !gitrepo.IsSameRepository(spec.Upstream, origin)
	if separateUpstream {
		if _, addError := runner.Run(executionContext, gitDir, "remote", "add", upstreamRemoteNameConstant, spec.Upstream); addError != nil {
			return addError
		}
	}

	which := originRemoteNameConstant
	if separateUpstream {
		which = upstreamRemoteNameConstant
	}
	if runner.options.DisableUpstreamPush {
		if _, disableError := runner.Run(executionContext, gitDir, "remote", "set-url", "--push", which, disabledPushURLConstant); disableError != nil {
			return disableError
		}
	}
	if which == originRemoteNameConstant && runner.options.DisableUpstreamPush {
		return nil
	}
	if _, parseError := gitrepo.ParseRemoteURL(origin); parseError != nil {
		return nil
	}
	_, setError := runner.Run(executionContext, gitDir, "remote", "set-url", "--push", originRemoteNameConstant, runner.PushURL(origin))
	return setError
}

// Checkout quietly checks out reference in gitDir.
func (runner *Runner) Checkout(executionContext context.Context, gitDir string, reference string) error {
	_, checkoutError := runner.Run(executionContext, gitDir, "checkout", "-q", reference)
	return checkoutError
}

// CreateBranch creates and checks out branch at HEAD.
func (runner *Runner) CreateBranch(executionContext context.Context, gitDir string, branch string) error {
	_, branchError := runner.Run(executionContext, gitDir, "checkout", "-b", branch)
	return branchError
}

// TagHead adds tag at HEAD.
func (runner *Runner) TagHead(executionContext context.Context, gitDir string, tag string) error {
	_, tagError := runner.Run(executionContext, gitDir, "tag", tag, "HEAD")
	return tagError
}

// PushBranchToOrigin pushes branch when the clone is currently on it.
func (runner *Runner) PushBranchToOrigin(executionContext context.Context, gitDir string, branch string, force bool) error {
	arguments := []string{"push", originRemoteNameConstant, branch}
	if force {
		arguments = append(arguments, "-f")
	}
	if runner.skipPush(gitDir, arguments...) {
		return nil
	}

	currentBranch, branchError := runner.QueryLocalRepositoryBranch(gitDir)
	if branchError != nil {
		return branchError
	}
	if currentBranch != branch {
		runner.logger.Warn(pushWrongBranchMessageConstant, zap.String(logFieldGitDirConstant, gitDir), zap.String(logFieldBranchConstant, branch), zap.String(logFieldCurrentBranchConstant, currentBranch))
		return nil
	}
	_, pushError := runner.Run(executionContext, gitDir, arguments...)
	return pushError
}

// PushTagToOrigin pushes tag to origin.
func (runner *Runner) PushTagToOrigin(executionContext context.Context, gitDir string, tag string) error {
	arguments := []string{"push", originRemoteNameConstant, tag}
	if runner.skipPush(gitDir, arguments...) {
		return nil
	}
	_, pushError := runner.Run(executionContext, gitDir, arguments...)
	return pushError
}

// FetchTags fetches tags from origin and returns every local tag.
func (runner *Runner) FetchTags(executionContext context.Context, gitDir string) ([]string, error) {
	if _, fetchError := runner.Run(executionContext, gitDir, "fetch", "--tags"); fetchError != nil {
		return nil, fetchError
	}
	output, tagError := runner.Run(executionContext, gitDir, "tag")
	if tagError != nil {
		return nil, tagError
	}
	tags := make([]string, 0)
	for _, line := range splitLines(output) {
		tags = append(tags, strings.TrimSpace(line))
	}
	return tags, nil
}

// RefreshLocalRepository fetches remoteName with tags. A missing upstream remote is skipped.
func (runner *Runner) RefreshLocalRepository(executionContext context.Context, gitDir string, remoteName string) error {
	spec, specError := runner.DetermineGitRepositorySpec(gitDir)
	if specError != nil {
		return specError
	}
	if remoteName == upstreamRemoteNameConstant && len(spec.Upstream) == 0 {
		runner.logger.Warn(missingUpstreamMessageConstant, zap.String(logFieldGitDirConstant, gitDir), zap.String(logFieldRemoteConstant, remoteName))
		return nil
	}
	_, fetchError := runner.Run(executionContext, gitDir, "fetch", remoteName, "--tags")
	return fetchError
}

// DeleteLocalBranchIfExists deletes branch when present. It fails if gitDir is on that branch.
func (runner *Runner) DeleteLocalBranchIfExists(executionContext context.Context, gitDir string, branch string) error {
	output, listError := runner.Run(executionContext, gitDir, "branch", "-l")
	if listError != nil {
		return listError
	}
	for _, line := range splitLines(output) {
		name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), currentBranchMarkerConstant))
		if name != branch {
			continue
		}
		runner.logger.Info(deletingBranchMessageConstant, zap.String(logFieldBranchConstant, branch), zap.String(logFieldGitDirConstant, gitDir))
		_, deleteError := runner.Run(executionContext, gitDir, "branch", "-D", branch)
		return deleteError
	}
	return nil
}

// CheckCommitOrNoChanges commits with arguments, tolerating an empty change set.
func (runner *Runner) CheckCommitOrNoChanges(executionContext context.Context, gitDir string, arguments ...string) (string, error) {
	commitArguments := append([]string{"commit"}, arguments...)
	output, exitCode, runError := runner.tryRun(executionContext, gitDir, commitArguments...)
	if runError != nil {
		return "", runError
	}
	if exitCode == 0 {
		return output, nil
	}
	lines := splitLines(output)
	if exitCode == 1 && len(lines) > 0 && strings.Contains(strings.ToLower(lines[len(lines)-1]), nothingToCommitConstant) {
		runner.logger.Debug(noChangesMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
		return output, nil
	}
	return "", gitFailure(gitDir, commitArguments, output)
}
