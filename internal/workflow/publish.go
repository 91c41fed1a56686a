package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bomcmd"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/changelog"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/semver"
	"github.com/spinnaker/buildtool/internal/source"
	"github.com/spinnaker/buildtool/internal/versions"
)

const (
	// PublishSpinnakerCommandName names the publish_spinnaker command.
	PublishSpinnakerCommandName = "publish_spinnaker"
	// BomBasePath is the BOM every release BOM is refreshed from, relative to the buildtool checkout.
	BomBasePath = "dev/buildtool/bom_base.yml"

	releaseHostnameConstant           = "github.com"
	releaseOwnerConstant              = "spinnaker"
	masterBranchConstant              = "master"
	majorMinorTemplateConstant        = "%d.%d"
	malformedVersionTemplateConstant  = "Spinnaker version %q is not X.Y.Z"
	noPriorVersionTemplateConstant    = "Spinnaker version %q has no prior version"
	spinnakerVersionOptionConstant    = "spinnaker_version"
	minimumHalyardOptionConstant      = "minimum_halyard_version"
	dryRunDisablesPushMessageConstant = "dry run selected, disabling pushes to git and artifact repositories"
	publishingMessageConstant         = "publishing Spinnaker"
	logFieldVersionConstant           = "version"
	logFieldPriorVersionConstant      = "prior_version"
	logFieldBranchConstant            = "branch"
	releaseBranchTemplateConstant     = "release-%s.x"
	unknownOperationTemplateConstant  = "unknown workflow operation %q"
)

// PublishResult lists the operations a publish_spinnaker invocation completed.
type PublishResult struct {
	Version      string
	PriorVersion string
	Completed    []string
}

// ReleasePaths are the files the release steps hand to one another.
type ReleasePaths struct {
	Bom             string
	Changelog       string
	FetchedVersions string
	UpdatedVersions string
}

// ReleaseOperations maps every operation a release workflow may run to its command.
var ReleaseOperations = map[OperationType]RunFunc{
	OperationTypeBuildBom: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := bomcmd.BuildBom(executionContext, environment)
		return runError
	},
	OperationTypeBuildChangelog: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := changelog.BuildChangelog(executionContext, environment)
		return runError
	},
	OperationTypeFetchVersions: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := versions.FetchVersions(executionContext, environment)
		return runError
	},
	OperationTypeUpdateVersions: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := versions.UpdateVersions(executionContext, environment)
		return runError
	},
	OperationTypeTagContainers: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := source.TagContainers(executionContext, environment)
		return runError
	},
	OperationTypePublishChangelog: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := changelog.PublishChangelog(executionContext, environment)
		return runError
	},
	OperationTypePublishBom: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := bomcmd.PublishBom(executionContext, environment)
		return runError
	},
	OperationTypePublishVersions: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := versions.PublishVersions(executionContext, environment)
		return runError
	},
	OperationTypeTagBranch: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := source.TagBranch(executionContext, environment)
		return runError
	},
	OperationTypeNewReleaseBranch: func(executionContext context.Context, environment dependencies.Environment) error {
		_, runError := source.NewReleaseBranch(executionContext, environment)
		return runError
	},
}

// ParseReleaseVersion parses a Spinnaker release version of the form X.Y.Z.
func ParseReleaseVersion(version string) (semver.SemanticVersion, error) {
	parsed, parseError := semver.Make(version)
	if parseError != nil || len(parsed.Prefix) > 0 {
		return semver.SemanticVersion{}, buildtoolerrors.NewConfigError(fmt.Sprintf(malformedVersionTemplateConstant, version), parseError)
	}
	return parsed, nil
}

// PriorVersion returns the release a version is compared against: the previous patch,
// or the first patch of the previous minor line when version starts a new minor line.
func PriorVersion(version string) (string, error) {
	parsed, parseError := ParseReleaseVersion(version)
	if parseError != nil {
		return "", parseError
	}
	if parsed.Patch > 0 {
		parsed.Patch--
		return parsed.ToVersion(), nil
	}
	if parsed.Minor == 0 {
		return "", buildtoolerrors.NewConfigError(fmt.Sprintf(noPriorVersionTemplateConstant, version), nil)
	}
	parsed.Minor--
	return parsed.ToVersion(), nil
}

// MajorMinorVersion returns the "X.Y" release line of version.
func MajorMinorVersion(version string) (string, error) {
	parsed, parseError := ParseReleaseVersion(version)
	if parseError != nil {
		return "", parseError
	}
	return fmt.Sprintf(majorMinorTemplateConstant, parsed.Major, parsed.Minor), nil
}

// DetermineReleasePaths returns where the release steps write their files under outputDirectory.
func DetermineReleasePaths(outputDirectory string, releaseBranch string, version string) ReleasePaths {
	return ReleasePaths{
		Bom:             bomcmd.DetermineBomPath("", outputDirectory, releaseBranch, version),
		Changelog:       changelog.OutputPath(outputDirectory),
		FetchedVersions: versions.OutputPath(outputDirectory, versions.FetchVersionsCommandName),
		UpdatedVersions: versions.OutputPath(outputDirectory, versions.UpdateVersionsCommandName),
	}
}

// PublishSteps returns the steps that publish version from releaseBranch, comparing it against priorVersion.
func PublishSteps(version string, priorVersion string, releaseBranch string, paths ReleasePaths) []StepConfiguration {
	excludeMonitoring := []string{repository.MonitoringRepositoryName}
	return []StepConfiguration{
		{Operation: OperationTypeBuildBom, Options: map[string]any{
			"git.branch":               releaseBranch,
			"build_number":             version,
			"bom.path":                 "",
			"bom.refresh_from_path":    BomBasePath,
			"bom.refresh_from_version": "",
			"bom.dependencies_path":    "",
			"exclude_repositories":     excludeMonitoring,
		}},
		{Operation: OperationTypeBuildChangelog, Options: map[string]any{
			"bom.path":                          paths.Bom,
			"bom.version":                       "",
			"changelog.relative_to_bom_path":    "",
			"changelog.relative_to_bom_version": priorVersion,
			"changelog.include_details":         false,
			"exclude_repositories":              excludeMonitoring,
		}},
		{Operation: OperationTypeFetchVersions},
		{Operation: OperationTypeUpdateVersions, Options: map[string]any{
			"versions.versions_yml_path": paths.FetchedVersions,
			"spinnaker_version":          version,
		}},
		{Operation: OperationTypeTagContainers, Options: map[string]any{
			"bom.path":          paths.Bom,
			"spinnaker_version": version,
		}},
		{Operation: OperationTypePublishChangelog, Options: map[string]any{
			"changelog.path":                  paths.Changelog,
			"git.branch":                      masterBranchConstant,
			"git.allow_publish_master_branch": false,
			"spinnaker_version":               version,
		}},
		{Operation: OperationTypePublishBom, Options: map[string]any{
			"bom.path": paths.Bom,
		}},
		{Operation: OperationTypePublishVersions, Options: map[string]any{
			"versions.versions_yml_path": paths.UpdatedVersions,
		}},
	}
}

// BuildOperations binds each step to its command in operations.
func BuildOperations(steps []StepConfiguration, operations map[OperationType]RunFunc) ([]Operation, error) {
	bound := make([]Operation, 0, len(steps))
	for _, step := range steps {
		run, known := operations[step.Operation]
		if !known {
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(unknownOperationTemplateConstant, step.Operation), nil)
		}
		bound = append(bound, NewStepOperation(step, run))
	}
	return bound, nil
}

// PublishSpinnaker publishes spinnaker_version: it builds the BOM and changelog of the
// release branch, records the release in versions.yml, tags the container images, and
// publishes the changelog, BOM, and versions.yml. A dry run never pushes or uploads.
func PublishSpinnaker(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	return publishSpinnaker(executionContext, environment, ReleaseOperations)
}

func publishSpinnaker(executionContext context.Context, environment dependencies.Environment, operations map[OperationType]RunFunc) (PublishResult, error) {
	var result PublishResult
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, PublishSpinnakerCommandName).Run(executionContext, func(runContext context.Context) error {
		published, publishError := runPublish(runContext, environment, operations)
		result = published
		return publishError
	})
	if runError != nil {
		return result, runError
	}
	return result, nil
}

func runPublish(executionContext context.Context, environment dependencies.Environment, operations map[OperationType]RunFunc) (PublishResult, error) {
	configuration := environment.Configuration
	if optionsError := buildtoolerrors.CheckOptionsSet(PublishSpinnakerCommandName, map[string]string{
		spinnakerVersionOptionConstant: configuration.SpinnakerVersion,
		minimumHalyardOptionConstant:   configuration.Versions.MinimumHalyardVersion,
	}); optionsError != nil {
		return PublishResult{}, optionsError
	}
	version := configuration.SpinnakerVersion
	majorMinor, versionError := MajorMinorVersion(version)
	if versionError != nil {
		return PublishResult{}, versionError
	}
	priorVersion, priorError := PriorVersion(version)
	if priorError != nil {
		return PublishResult{}, priorError
	}
	releaseBranch := fmt.Sprintf(releaseBranchTemplateConstant, majorMinor)

	configuration.GitHub.Hostname = releaseHostnameConstant
	if len(configuration.GitHub.Owner) == 0 {
		configuration.GitHub.Owner = releaseOwnerConstant
	}
	if len(configuration.GitHub.UpstreamOwner) == 0 {
		configuration.GitHub.UpstreamOwner = releaseOwnerConstant
	}
	if configuration.DryRun {
		environment.Logger.Info(dryRunDisablesPushMessageConstant)
		configuration.Git.NeverPush = true
	}
	configuration.OnlyRepositories = nil
	configuration.ExcludeRepositories = nil
	releaseEnvironment, environmentError := environment.WithConfiguration(configuration)
	if environmentError != nil {
		return PublishResult{}, environmentError
	}

	environment.Logger.Info(
		publishingMessageConstant,
		zap.String(logFieldVersionConstant, version),
		zap.String(logFieldPriorVersionConstant, priorVersion),
		zap.String(logFieldBranchConstant, releaseBranch),
	)
	paths := DetermineReleasePaths(releaseEnvironment.Configuration.OutputDir, releaseBranch, version)
	bound, bindError := BuildOperations(PublishSteps(version, priorVersion, releaseBranch, paths), operations)
	if bindError != nil {
		return PublishResult{}, bindError
	}

	result := PublishResult{Version: version, PriorVersion: priorVersion}
	state, executeError := NewExecutor(bound).Execute(executionContext, releaseEnvironment)
	if state != nil {
		result.Completed = state.Completed
	}
	return result, executeError
}
