package source

import (
	"context"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
)

const (
	// FetchSourceCommandName names the fetch_source command.
	FetchSourceCommandName = "fetch_source"
	// ExtractSourceInfoCommandName names the extract_source_info command.
	ExtractSourceInfoCommandName = "extract_source_info"

	existingDirectoryTemplateConstant = "%q already exists. Enable \"skip_existing\" or \"delete_existing\"."
	deleteDirectoryTemplateConstant   = "unable to delete %s"
	deletingExistingMessageConstant   = "deleting existing clone"
	keepingExistingMessageConstant    = "keeping existing clone"
	logFieldRepositoryConstant        = "repository"
	logFieldGitDirConstant            = "git_dir"
)

// FetchResult lists the repositories a fetch_source invocation made available.
type FetchResult struct {
	Repositories []string
}

// ExtractResult maps repository names to the source info extract_source_info cached for them.
type ExtractResult struct {
	SourceInfo map[string]repository.SourceInfo
}

// FetchRepositoryNames are the repositories fetch_source clones: every BOM repository,
// halyard, and the release tooling.
func FetchRepositoryNames() []string {
	names := repository.BomRepositoryNames()
	names = append(names, repository.HalyardRepositoryName)
	return append(names, repository.ProcessRepositoryNames...)
}

type fetchCommand struct {
	logger         *zap.Logger
	deleteExisting bool
	skipExisting   bool
}

func (command *fetchCommand) ShouldSkipRepository(executionContext context.Context, spec repository.Spec) (bool, error) {
	if _, statError := os.Stat(spec.GitDir); statError != nil {
		return false, nil
	}
	switch {
	case command.deleteExisting:
		command.logger.Warn(deletingExistingMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.String(logFieldGitDirConstant, spec.GitDir))
		if removeError := os.RemoveAll(spec.GitDir); removeError != nil {
			return false, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(deleteDirectoryTemplateConstant, spec.GitDir), removeError)
		}
	case command.skipExisting:
		command.logger.Debug(keepingExistingMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name), zap.String(logFieldGitDirConstant, spec.GitDir))
	default:
		return false, buildtoolerrors.NewConfigError(fmt.Sprintf(existingDirectoryTemplateConstant, spec.GitDir), nil)
	}
	return false, nil
}

func (command *fetchCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	return spec.GitDir, nil
}

// FetchSource clones the configured branch of every fetched repository under root_path.
// An existing clone is an error unless delete_existing replaces it or skip_existing keeps it.
func FetchSource(executionContext context.Context, environment dependencies.Environment) (FetchResult, error) {
	configuration := environment.Configuration
	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), configuration.BranchOptions())
	if managerError != nil {
		return FetchResult{}, managerError
	}

	command := &fetchCommand{
		logger:         environment.Logger,
		deleteExisting: configuration.Source.DeleteExisting,
		skipExisting:   configuration.Source.SkipExisting,
	}
	result, runError := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		FetchSourceCommandName,
		manager,
		command,
		FetchRepositoryNames(),
		configuration.ProcessorOptions(),
	).Run(executionContext)
	if runError != nil {
		return FetchResult{}, runError
	}
	results, _ := result.(map[string]any)
	return FetchResult{Repositories: sortedNames(results)}, nil
}

type extractCommand struct {
	manager *scm.BranchManager
}

func (command *extractCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	buildNumber, buildNumberError := command.manager.DetermineBuildNumber(spec)
	if buildNumberError != nil {
		return nil, buildNumberError
	}
	return command.manager.RefreshSourceInfo(executionContext, spec, buildNumber)
}

// ExtractSourceInfo summarizes every BOM repository and caches its source info with the build number.
func ExtractSourceInfo(executionContext context.Context, environment dependencies.Environment) (ExtractResult, error) {
	configuration := environment.Configuration
	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), configuration.BranchOptions())
	if managerError != nil {
		return ExtractResult{}, managerError
	}

	result, runError := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		ExtractSourceInfoCommandName,
		manager,
		&extractCommand{manager: manager},
		repository.BomRepositoryNames(),
		configuration.ProcessorOptions(),
	).Run(executionContext)
	if runError != nil {
		return ExtractResult{}, runError
	}

	results, _ := result.(map[string]any)
	infos := make(map[string]repository.SourceInfo, len(results))
	for name, value := range results {
		if info, isInfo := value.(repository.SourceInfo); isInfo {
			infos[name] = info
		}
	}
	return ExtractResult{SourceInfo: infos}, nil
}

func sortedNames(results map[string]any) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
