package bomcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
)

const (
	// BuildBomCommandName names the build_bom command.
	BuildBomCommandName = "build_bom"

	outputSubdirectoryConstant          = "build_bom"
	noBranchNameConstant                = "NOBRANCH"
	bomFileTemplateConstant             = "%s-%s.yml"
	conflictingRefreshTemplateConstant  = "Cannot specify both --refresh_from_bom_path=%q and --refresh_from_bom_version=%q"
	writeBomTemplateConstant            = "unable to write BOM %s"
	missingBomMessageConstant           = "repository processing produced no BOM"
	bomUnchangedMessageConstant         = "Bom has not changed"
	bomDiffMessageConstant              = "BOM differs from its base"
	bomDiffFailedMessageConstant        = "unable to render BOM diff"
	wroteBomMessageConstant             = "wrote BOM"
	refreshingFromMessageConstant       = "refreshing BOM"
	logFieldPathConstant                = "path"
	logFieldSourceConstant              = "source"
	logFieldDiffConstant                = "diff"
	logFieldRepositoryConstant          = "repository"
	addedRepositoryMessageConstant      = "added repository to BOM"
	outputDirectoryPermissionsConstant  = 0o755
	outputFilePermissionsConstant       = 0o644
	bucketRefreshSourceTemplateConstant = "version %s"
)

var renderBomDiff = bom.Diff

func logBomDiff(logger *zap.Logger, base *bom.Document, built *bom.Document) {
	diff, diffError := renderBomDiff(base, built)
	if diffError != nil {
		logger.Debug(bomDiffFailedMessageConstant, zap.Error(diffError))
		return
	}
	logger.Debug(bomDiffMessageConstant, zap.String(logFieldDiffConstant, diff))
}

// BuildResult describes the BOM a build_bom invocation produced.
type BuildResult struct {
	Path     string
	Document *bom.Document
	Changed  bool
}

type buildCommand struct {
	logger  *zap.Logger
	manager *scm.BranchManager
	builder *bom.Builder
}

func (command *buildCommand) ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	buildNumber, buildNumberError := command.manager.DetermineBuildNumber(spec)
	if buildNumberError != nil {
		return nil, buildNumberError
	}
	info, infoError := command.manager.RefreshSourceInfo(executionContext, spec, buildNumber)
	if infoError != nil {
		return nil, infoError
	}
	command.builder.AddRepository(spec, info)
	command.logger.Debug(addedRepositoryMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name))
	return info, nil
}

func (command *buildCommand) Postprocess(executionContext context.Context, results map[string]any) (any, error) {
	built, buildError := command.builder.Build()
	if buildError != nil {
		return nil, buildError
	}
	return built, nil
}

// BuildBom refreshes the BOM repositories on the configured branch and writes the resulting BOM.
func BuildBom(executionContext context.Context, environment dependencies.Environment) (BuildResult, error) {
	configuration := environment.Configuration
	base, baseError := loadRefreshBase(executionContext, environment)
	if baseError != nil {
		return BuildResult{}, baseError
	}

	manager, managerError := scm.NewBranchManager(environment.Logger, environment.Git, configuration.ManagerOptions(), configuration.BranchOptions())
	if managerError != nil {
		return BuildResult{}, managerError
	}

	builder, builderError := bom.NewBuilder(environment.Logger, environment.Registry, bom.BuilderOptions{
		Branch:           configuration.Git.Branch,
		BuildNumber:      configuration.BuildNumber,
		DependenciesPath: configuration.Bom.DependenciesPath,
		ArtifactSources: bom.ArtifactSources{
			DebianRepository:   configuration.Bom.DebianRepository,
			DockerRegistry:     configuration.Bom.DockerRegistry,
			GoogleImageProject: configuration.Bom.GoogleImageProject,
		},
		Clock: environment.Clock,
	}, base)
	if builderError != nil {
		return BuildResult{}, builderError
	}

	command := &buildCommand{logger: environment.Logger, manager: manager, builder: builder}
	repositoryProcessor := processor.NewRepositoryProcessor(
		environment.Logger,
		environment.Registry,
		BuildBomCommandName,
		manager,
		command,
		repository.BomRepositoryNames(),
		configuration.ProcessorOptions(),
	)
	result, runError := repositoryProcessor.Run(executionContext)
	if runError != nil {
		return BuildResult{}, runError
	}
	built, _ := result.(*bom.Document)
	if built == nil {
		return BuildResult{}, buildtoolerrors.NewUnexpectedError(missingBomMessageConstant, nil)
	}

	changed := built != base
	if !changed {
		environment.Logger.Info(bomUnchangedMessageConstant)
	} else if base != nil {
		logBomDiff(environment.Logger, base, built)
	}

	path := DetermineBomPath(configuration.Bom.Path, configuration.OutputDir, configuration.Git.Branch, configuration.BuildNumber)
	if writeError := WriteDocument(path, built); writeError != nil {
		return BuildResult{}, writeError
	}
	environment.Logger.Info(wroteBomMessageConstant, zap.String(logFieldPathConstant, path))
	return BuildResult{Path: path, Document: built, Changed: changed}, nil
}

// DetermineBomPath returns bomPath when set, otherwise the default location of a
// BOM built from branch with buildNumber under outputDirectory.
func DetermineBomPath(bomPath string, outputDirectory string, branch string, buildNumber string) string {
	if len(bomPath) > 0 {
		return bomPath
	}
	if len(branch) == 0 {
		branch = noBranchNameConstant
	}
	return filepath.Join(outputDirectory, outputSubdirectoryConstant, fmt.Sprintf(bomFileTemplateConstant, branch, buildNumber))
}

// WriteDocument renders document as block style YAML at path, creating parent directories.
func WriteDocument(path string, document *bom.Document) error {
	content, marshalError := bom.MarshalDocument(document)
	if marshalError != nil {
		return buildtoolerrors.NewUnexpectedError(fmt.Sprintf(writeBomTemplateConstant, path), marshalError)
	}
	if mkdirError := os.MkdirAll(filepath.Dir(path), outputDirectoryPermissionsConstant); mkdirError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeBomTemplateConstant, path), mkdirError)
	}
	if writeError := os.WriteFile(path, content, outputFilePermissionsConstant); writeError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeBomTemplateConstant, path), writeError)
	}
	return nil
}

func loadRefreshBase(executionContext context.Context, environment dependencies.Environment) (*bom.Document, error) {
	refreshPath := environment.Configuration.Bom.RefreshFromPath
	refreshVersion := environment.Configuration.Bom.RefreshFromVersion
	switch {
	case len(refreshPath) > 0 && len(refreshVersion) > 0:
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(conflictingRefreshTemplateConstant, refreshPath, refreshVersion), nil)
	case len(refreshPath) > 0:
		environment.Logger.Info(refreshingFromMessageConstant, zap.String(logFieldSourceConstant, refreshPath))
		return bom.LoadDocument(refreshPath)
	case len(refreshVersion) > 0:
		environment.Logger.Info(refreshingFromMessageConstant, zap.String(logFieldSourceConstant, fmt.Sprintf(bucketRefreshSourceTemplateConstant, refreshVersion)))
		return bom.FetchDocument(executionContext, environment.Tools, environment.Configuration.Bom.Bucket, refreshVersion)
	}
	return nil, nil
}
