package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
	"github.com/spinnaker/buildtool/internal/semver"
)

const (
	// TagBranchCommandName names the tag_branch command.
	TagBranchCommandName = "tag_branch"
	// NewReleaseBranchCommandName names the new_release_branch command.
	NewReleaseBranchCommandName = "new_release_branch"

	masterBranchConstant            = "master"
	newBranchOptionConstant         = "new_branch"
	malformedTagTemplateConstant    = "latest tag %q is not a release tag"
	alreadyTaggedMessageConstant    = "HEAD is already tagged, skipping"
	taggingHeadMessageConstant      = "latest tag is not at HEAD, tagging"
	creatingBranchMessageConstant   = "creating release branch"
	logFieldBranchConstant          = "branch"
	logFieldHeadConstant            = "head"
	logFieldTagConstant             = "tag"
	logFieldNextTagConstant         = "next_tag"
	logFieldLatestTagCommitConstant = "latest_tag_commit"
)

// TagResult maps each newly tagged repository to its new tag.
type TagResult struct {
	Tags map[string]string
}

// BranchResult lists the repositories a release branch was created in.
type BranchResult struct {
	Branch       string
	Repositories []string
}

// TagRepositoryNames are the repositories that carry release tags and release branches.
func TagRepositoryNames() []string {
	names := append([]string{}, repository.RunnableRepositoryNames...)
	names = append(names, repository.NonCoreRepositoryNames...)
	return append(names, repository.LibraryRepositoryNames...)
}

type tagCommand struct {
	logger *zap.Logger
	git    *gitrunner.Runner
	branch string
}

func (command *tagCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	head, headError := command.git.QueryLocalRepositoryCommitID(spec.GitDir)
	if headError != nil {
		return nil, headError
	}
	tags, tagsError := command.git.QueryTagCommits(executionContext, spec.GitDir, gitrunner.ReleaseTagPattern)
	if tagsError != nil {
		return nil, tagsError
	}
	latestTag, latestCommit, findError := command.git.FindNewestTagAndCommonCommitFromID(executionContext, spec.GitDir, head, tags)
	if findError != nil {
		return nil, findError
	}
	if latestCommit == head {
		command.logger.Info(alreadyTaggedMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.String(logFieldHeadConstant, head), zap.String(logFieldTagConstant, latestTag))
		return "", nil
	}

	nextTag, nextError := NextTag(latestTag, command.branch)
	if nextError != nil {
		return nil, nextError
	}
	command.logger.Info(
		taggingHeadMessageConstant,
		zap.String(logFieldRepositoryConstant, spec.Name),
		zap.String(logFieldBranchConstant, command.branch),
		zap.String(logFieldTagConstant, latestTag),
		zap.String(logFieldLatestTagCommitConstant, latestCommit),
		zap.String(logFieldNextTagConstant, nextTag),
	)
	if tagError := command.git.TagHead(executionContext, spec.GitDir, nextTag); tagError != nil {
		return nil, tagError
	}
	if pushError := command.git.PushTagToOrigin(executionContext, spec.GitDir, nextTag); pushError != nil {
		return nil, pushError
	}
	return nextTag, nil
}

// NextTag returns the tag that follows latestTag on branch.
// Master releases bump the minor version; release branches bump the patch.
func NextTag(latestTag string, branch string) (string, error) {
	latest, parseError := semver.Make(latestTag)
	if parseError != nil {
		return "", buildtoolerrors.NewUnexpectedError(fmt.Sprintf(malformedTagTemplateConstant, latestTag), parseError)
	}
	index := semver.PatchIndex
	if branch == masterBranchConstant {
		index = semver.MinorIndex
	}
	next, nextError := latest.Next(index)
	if nextError != nil {
		return "", buildtoolerrors.NewUnexpectedError(fmt.Sprintf(malformedTagTemplateConstant, latestTag), nextError)
	}
	return next.ToTag(), nil
}

// TagBranch tags HEAD of git_branch in every tagged repository that has commits since its newest release tag.
func TagBranch(executionContext context.Context, environment dependencies.Environment) (TagResult, error) {
	configuration := environment.Configuration
	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), configuration.BranchOptions())
	if managerError != nil {
		return TagResult{}, managerError
	}

	command := &tagCommand{logger: environment.Logger, git: environment.Git, branch: configuration.Git.Branch}
	result, runError := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		TagBranchCommandName,
		manager,
		command,
		TagRepositoryNames(),
		configuration.ProcessorOptions(),
	).Run(executionContext)
	if runError != nil {
		return TagResult{}, runError
	}

	results, _ := result.(map[string]any)
	tags := make(map[string]string, len(results))
	for name, value := range results {
		if tag, isTag := value.(string); isTag && len(tag) > 0 {
			tags[name] = tag
		}
	}
	return TagResult{Tags: tags}, nil
}

type branchCommand struct {
	logger    *zap.Logger
	git       *gitrunner.Runner
	newBranch string
}

func (command *branchCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	command.logger.Info(creatingBranchMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.String(logFieldBranchConstant, command.newBranch))
	if branchError := command.git.CreateBranch(executionContext, spec.GitDir, command.newBranch); branchError != nil {
		return nil, branchError
	}
	if pushError := command.git.PushBranchToOrigin(executionContext, spec.GitDir, command.newBranch, false); pushError != nil {
		return nil, pushError
	}
	return command.newBranch, nil
}

// NewReleaseBranch creates new_branch from git_branch in every tagged repository and pushes it to origin.
func NewReleaseBranch(executionContext context.Context, environment dependencies.Environment) (BranchResult, error) {
	configuration := environment.Configuration
	if optionsError := buildtoolerrors.CheckOptionsSet(NewReleaseBranchCommandName, map[string]string{newBranchOptionConstant: configuration.Source.NewBranch}); optionsError != nil {
		return BranchResult{}, optionsError
	}
	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), configuration.BranchOptions())
	if managerError != nil {
		return BranchResult{}, managerError
	}

	command := &branchCommand{logger: environment.Logger, git: environment.Git, newBranch: configuration.Source.NewBranch}
	result, runError := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		NewReleaseBranchCommandName,
		manager,
		command,
		TagRepositoryNames(),
		configuration.ProcessorOptions(),
	).Run(executionContext)
	if runError != nil {
		return BranchResult{}, runError
	}
	results, _ := result.(map[string]any)
	return BranchResult{Branch: configuration.Source.NewBranch, Repositories: sortedNames(results)}, nil
}
