package changelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
)

const (
	// BuildChangelogCommandName names the build_changelog command.
	BuildChangelogCommandName = "build_changelog"
	// ChangelogFileName is the file build_changelog writes under its output directory.
	ChangelogFileName = "changelog.md"

	conflictingRelativeBomMessageConstant = "Cannot specify both --relative_to_bom_path and --relative_to_bom_version."
	missingSummaryTemplateConstant        = "no summary was collected for %q"
	writeChangelogTemplateConstant        = "unable to write changelog %s"
	relativeBomMessageConstant            = "building changelog relative to BOM"
	wroteChangelogMessageConstant         = "Wrote changelog"
	logFieldPathConstant                  = "path"
	logFieldSourceConstant                = "source"
	outputDirectoryPermissionsConstant    = 0o755
	outputFilePermissionsConstant         = 0o644
)

// BuildResult describes the changelog a build_changelog invocation wrote.
type BuildResult struct {
	Path    string
	Content string
}

// OutputPath is where build_changelog writes the changelog under outputDirectory.
func OutputPath(outputDirectory string) string {
	return filepath.Join(outputDirectory, BuildChangelogCommandName, ChangelogFileName)
}

type buildCommand struct {
	logger      *zap.Logger
	manager     *scm.BomManager
	git         *gitrunner.Runner
	relativeBom *bom.Document
	builder     *Builder
}

func (command *buildCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	baseCommitID := ""
	if command.relativeBom != nil {
		entry, entryError := command.relativeBom.Service(repository.RepositoryNameToServiceName(spec.Name))
		if entryError != nil {
			return nil, entryError
		}
		baseCommitID = entry.Commit
	}
	return command.git.CollectRepositorySummary(executionContext, spec.GitDir, baseCommitID)
}

func (command *buildCommand) Postprocess(executionContext context.Context, results map[string]any) (any, error) {
	for name, result := range results {
		summary, isSummary := result.(repository.RepositorySummary)
		if !isSummary {
			return nil, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(missingSummaryTemplateConstant, name), nil)
		}
		spec, specError := command.manager.RepositorySpec(name)
		if specError != nil {
			return nil, specError
		}
		command.builder.AddRepository(spec, summary)
	}
	return command.builder.Build(), nil
}

// BuildChangelog summarizes every repository of the configured BOM and writes the changelog
// of their changes. Changes are counted from the newest release tag of each repository, or
// from the commit a relative BOM pins when one is configured.
func BuildChangelog(executionContext context.Context, environment dependencies.Environment) (BuildResult, error) {
	configuration := environment.Configuration
	relativeBom, relativeError := loadRelativeBom(executionContext, environment)
	if relativeError != nil {
		return BuildResult{}, relativeError
	}

	document, loadError := scm.LoadBom(executionContext, environment.Logger, environment.Tools, configuration.BomSource())
	if loadError != nil {
		return BuildResult{}, loadError
	}

	gitOptions := configuration.GitOptions()
	gitOptions.DisableUpstreamPush = true
	git, gitError := dependencies.ResolveGitRunner(environment.Tools, environment.Logger, gitOptions)
	if gitError != nil {
		return BuildResult{}, gitError
	}

	manager := scm.NewBomManager(environment.Logger, git, configuration.ManagerOptions(), document)
	command := &buildCommand{
		logger:      environment.Logger,
		manager:     manager,
		git:         git,
		relativeBom: relativeBom,
		builder:     NewBuilder(environment.Logger, BuilderOptions{WithPartition: true, WithDetail: configuration.Changelog.IncludeDetails}),
	}
	repositoryProcessor := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		BuildChangelogCommandName,
		manager,
		command,
		manager.RepositoryNames(),
		configuration.ProcessorOptions(),
	)
	result, runError := repositoryProcessor.Run(executionContext)
	if runError != nil {
		return BuildResult{}, runError
	}
	content, _ := result.(string)

	path := OutputPath(configuration.OutputDir)
	if writeError := writeFile(path, []byte(content)); writeError != nil {
		return BuildResult{}, writeError
	}
	environment.Logger.Info(wroteChangelogMessageConstant, zap.String(logFieldPathConstant, path))
	return BuildResult{Path: path, Content: content}, nil
}

func loadRelativeBom(executionContext context.Context, environment dependencies.Environment) (*bom.Document, error) {
	relativePath := environment.Configuration.Changelog.RelativeToBomPath
	relativeVersion := environment.Configuration.Changelog.RelativeToBomVersion
	switch {
	case len(relativePath) > 0 && len(relativeVersion) > 0:
		return nil, buildtoolerrors.NewConfigError(conflictingRelativeBomMessageConstant, nil)
	case len(relativePath) > 0:
		environment.Logger.Info(relativeBomMessageConstant, zap.String(logFieldSourceConstant, relativePath))
		return bom.LoadDocument(relativePath)
	case len(relativeVersion) > 0:
		environment.Logger.Info(relativeBomMessageConstant, zap.String(logFieldSourceConstant, bom.StorageURL(environment.Configuration.Bom.Bucket, relativeVersion)))
		return bom.FetchDocument(executionContext, environment.Tools, environment.Configuration.Bom.Bucket, relativeVersion)
	}
	return nil, nil
}

func writeFile(path string, content []byte) error {
	if mkdirError := os.MkdirAll(filepath.Dir(path), outputDirectoryPermissionsConstant); mkdirError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeChangelogTemplateConstant, path), mkdirError)
	}
	if writeError := os.WriteFile(path, content, outputFilePermissionsConstant); writeError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeChangelogTemplateConstant, path), writeError)
	}
	return nil
}
