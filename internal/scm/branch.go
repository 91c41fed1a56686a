package scm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/gitrepo"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	branchManagerNameConstant         = "branch source code manager"
	gitBranchOptionConstant           = "git.branch"
	githubOwnerOptionConstant         = "github.owner"
	githubHostnameOptionConstant      = "github.hostname"
	upstreamOwnerAliasConstant        = "upstream"
	defaultOwnerAliasConstant         = "default"
	repositoryRootSeparatorConstant   = "/"
	wrongCommitTemplateConstant       = "%q is at the wrong commit %q vs %q"
	wrongBranchTemplateConstant       = "%q is at the wrong branch %q vs %q"
	defaultBuildNumberMessageConstant = "using default build number"
)

// BranchOptions select the branch and the owner sources are cloned from.
type BranchOptions struct {
	Branch         string
	FallbackBranch string
	Owner          string
	Hostname       string
	// RepositoryRoot replaces the hosted origin with RepositoryRoot/owner/name when set.
	RepositoryRoot string
}

// BranchManager manages sources cloned from a branch of an owner's repositories.
type BranchManager struct {
	*Manager
	branchOptions BranchOptions
}

// NewBranchManager constructs a BranchManager. Branch, Owner, and Hostname are required.
func NewBranchManager(logger *zap.Logger, git *gitrunner.Runner, options Options, branchOptions BranchOptions) (*BranchManager, error) {
	if checkError := buildtoolerrors.CheckOptionsSet(branchManagerNameConstant, map[string]string{
		gitBranchOptionConstant:      branchOptions.Branch,
		githubOwnerOptionConstant:    branchOptions.Owner,
		githubHostnameOptionConstant: branchOptions.Hostname,
	}); checkError != nil {
		return nil, checkError
	}
	manager := &BranchManager{branchOptions: branchOptions}
	manager.Manager = newManager(logger, git, options, manager)
	return manager, nil
}

// Branch returns the branch the manager operates on.
func (manager *BranchManager) Branch() string {
	return manager.branchOptions.Branch
}

// DetermineOriginForOwner returns the origin URL of name under owner.
// The owners "upstream" and "default" stand for the upstream owner.
func (manager *BranchManager) DetermineOriginForOwner(name string, owner string) string {
	if owner == upstreamOwnerAliasConstant || owner == defaultOwnerAliasConstant {
		owner = manager.options.UpstreamOwner
	}
	if len(manager.branchOptions.RepositoryRoot) > 0 {
		return strings.Join([]string{manager.branchOptions.RepositoryRoot, owner, name}, repositoryRootSeparatorConstant)
	}
	if manager.git.Options().PullSSH {
		return gitrepo.MakeSSHURL(manager.branchOptions.Hostname, owner, name)
	}
	return gitrepo.MakeHTTPSURL(manager.branchOptions.Hostname, owner, name)
}

func (manager *BranchManager) determineOrigin(name string) (string, error) {
	return manager.DetermineOriginForOwner(name, manager.branchOptions.Owner), nil
}

func (manager *BranchManager) determineUpstream(name string) string {
	return manager.defaultUpstream(name)
}

func (manager *BranchManager) determineCommitID(name string) string {
	return ""
}

func (manager *BranchManager) ensureGitPath(executionContext context.Context, spec repository.Spec) error {
	branch := spec.Branch
	if len(branch) == 0 {
		branch = manager.branchOptions.Branch
	}
	return manager.git.CloneRepositoryToPath(executionContext, spec, gitrunner.CloneOptions{
		Branch:         branch,
		FallbackBranch: manager.branchOptions.FallbackBranch,
	})
}

func (manager *BranchManager) ensureRepository(executionContext context.Context, spec repository.Spec) error {
	return nil
}

func (manager *BranchManager) checkRepositoryIsCurrent(spec repository.Spec) error {
	if len(spec.CommitID) > 0 {
		haveCommit, commitError := manager.git.QueryLocalRepositoryCommitID(spec.GitDir)
		if commitError != nil {
			return commitError
		}
		if haveCommit != spec.CommitID {
			return buildtoolerrors.NewUnexpectedError(fmt.Sprintf(wrongCommitTemplateConstant, spec.GitDir, haveCommit, spec.CommitID), nil)
		}
		return nil
	}

	branch := manager.branchOptions.Branch
	haveBranch, branchError := manager.git.QueryLocalRepositoryBranch(spec.GitDir)
	if branchError != nil {
		return branchError
	}
	if haveBranch == branch {
		return nil
	}
	if len(manager.branchOptions.FallbackBranch) > 0 && haveBranch == manager.branchOptions.FallbackBranch {
		return nil
	}
	return buildtoolerrors.NewUnexpectedError(fmt.Sprintf(wrongBranchTemplateConstant, spec.GitDir, haveBranch, branch), nil)
}

func (manager *BranchManager) determineBuildNumber(spec repository.Spec) (string, error) {
	if len(manager.options.BuildNumber) > 0 {
		return manager.options.BuildNumber, nil
	}
	manager.logger.Debug(defaultBuildNumberMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.String(logFieldBuildNumberConstant, repository.DefaultBuildNumber))
	return repository.DefaultBuildNumber, nil
}
