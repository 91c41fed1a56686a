package gitrunner

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	gitProgramName                 = "git"
	detachedHeadNameConstant       = "HEAD"
	originRemoteNameConstant       = "origin"
	upstreamRemoteNameConstant     = "upstream"
	openRepositoryTemplateConstant = "cannot open git repository %s"
	readHeadTemplateConstant       = "cannot resolve HEAD in %s"
	readRemotesTemplateConstant    = "cannot read remotes in %s"
	missingOriginTemplateConstant  = "%s has no remote \"origin\""
)

// QueryLocalRepositoryCommitID returns the commit id at HEAD of the clone in gitDir.
func (runner *Runner) QueryLocalRepositoryCommitID(gitDir string) (string, error) {
	opened, openError := openRepository(gitDir)
	if openError != nil {
		return "", openError
	}
	head, headError := opened.Head()
	if headError != nil {
		return "", buildtoolerrors.NewExecutionError(fmt.Sprintf(readHeadTemplateConstant, gitDir), gitProgramName, headError)
	}
	return head.Hash().String(), nil
}

// QueryLocalRepositoryBranch returns the checked out branch, or HEAD when detached.
func (runner *Runner) QueryLocalRepositoryBranch(gitDir string) (string, error) {
	opened, openError := openRepository(gitDir)
	if openError != nil {
		return "", openError
	}
	head, headError := opened.Head()
	if headError != nil {
		return "", buildtoolerrors.NewExecutionError(fmt.Sprintf(readHeadTemplateConstant, gitDir), gitProgramName, headError)
	}
	if !head.Name().IsBranch() {
		return detachedHeadNameConstant, nil
	}
	return head.Name().Short(), nil
}

// QueryRemoteURLs maps each configured remote name to its first fetch URL.
func (runner *Runner) QueryRemoteURLs(gitDir string) (map[string]string, error) {
	opened, openError := openRepository(gitDir)
	if openError != nil {
		return nil, openError
	}
	remotes, remotesError := opened.Remotes()
	if remotesError != nil {
		return nil, buildtoolerrors.NewExecutionError(fmt.Sprintf(readRemotesTemplateConstant, gitDir), gitProgramName, remotesError)
	}
	urls := make(map[string]string, len(remotes))
	for _, remote := range remotes {
		remoteConfig := remote.Config()
		if len(remoteConfig.URLs) == 0 {
			continue
		}
		urls[remoteConfig.Name] = remoteConfig.URLs[0]
	}
	return urls, nil
}

// DetermineGitRepositorySpec infers a Spec from an existing clone.
func (runner *Runner) DetermineGitRepositorySpec(gitDir string) (repository.Spec, error) {
	urls, urlsError := runner.QueryRemoteURLs(gitDir)
	if urlsError != nil {
		return repository.Spec{}, urlsError
	}
	origin, found := urls[originRemoteNameConstant]
	if !found {
		return repository.Spec{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(missingOriginTemplateConstant, gitDir), nil)
	}
	return repository.Spec{
		Name:     filepath.Base(gitDir),
		GitDir:   gitDir,
		Origin:   origin,
		Upstream: urls[upstreamRemoteNameConstant],
	}, nil
}

func openRepository(gitDir string) (*git.Repository, error) {
	opened, openError := git.PlainOpen(gitDir)
	if openError != nil {
		return nil, buildtoolerrors.NewExecutionError(fmt.Sprintf(openRepositoryTemplateConstant, gitDir), gitProgramName, openError)
	}
	return opened, nil
}
