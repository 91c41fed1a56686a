package versions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
)

const (
	// FetchVersionsCommandName names the fetch_versions command.
	FetchVersionsCommandName = "fetch_versions"
	// UpdateVersionsCommandName names the update_versions command.
	UpdateVersionsCommandName = "update_versions"
	// PublishVersionsCommandName names the publish_versions command.
	PublishVersionsCommandName = "publish_versions"

	versionsFileNameConstant           = "versions.yml"
	storageURLTemplateConstant         = "gs://%s/versions.yml"
	gsutilCatCommandConstant           = "cat"
	gsutilCopyCommandConstant          = "cp"
	versionsPathOptionConstant         = "versions_yml_path"
	spinnakerVersionOptionConstant     = "spinnaker_version"
	minimumHalyardOptionConstant       = "minimum_halyard_version"
	writeDocumentTemplateConstant      = "unable to write versions.yml %s"
	fetchingMessageConstant            = "fetching versions.yml"
	wroteMessageConstant               = "wrote versions.yml"
	inheritedHalyardMessageConstant    = "latest_halyard_version not set, keeping the existing value"
	dryRunPublishMessageConstant       = "dry run: not publishing versions.yml"
	publishingMessageConstant          = "publishing versions.yml"
	logFieldSourceConstant             = "source"
	logFieldPathConstant               = "path"
	logFieldDestinationConstant        = "destination"
	outputDirectoryPermissionsConstant = 0o755
	outputFilePermissionsConstant      = 0o644
)

// StorageURL is where versions.yml is published in bucket.
func StorageURL(bucket string) string {
	return fmt.Sprintf(storageURLTemplateConstant, bucket)
}

// OutputPath is where command writes its versions.yml under outputDirectory.
func OutputPath(outputDirectory string, command string) string {
	return filepath.Join(outputDirectory, command, versionsFileNameConstant)
}

// FetchVersions copies the published versions.yml to the fetch_versions output directory and returns its path.
func FetchVersions(executionContext context.Context, environment dependencies.Environment) (string, error) {
	configuration := environment.Configuration
	path := OutputPath(configuration.OutputDir, FetchVersionsCommandName)
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, FetchVersionsCommandName).Run(executionContext, func(runContext context.Context) error {
		source := StorageURL(configuration.Versions.Bucket)
		environment.Logger.Info(fetchingMessageConstant, zap.String(logFieldSourceConstant, source))
		result, catError := environment.Tools.ExecuteGsutil(runContext, dependencies.CommandArguments(gsutilCatCommandConstant, source))
		if catError != nil {
			return catError
		}
		document, parseError := ParseDocument([]byte(result.StandardOutput), source)
		if parseError != nil {
			return parseError
		}
		return writeDocument(environment.Logger, path, document)
	})
	if runError != nil {
		return "", runError
	}
	return path, nil
}

// UpdateVersions adds spinnaker_version to the versions.yml at versions_yml_path and
// writes the result to the update_versions output directory. It returns the written path.
func UpdateVersions(executionContext context.Context, environment dependencies.Environment) (string, error) {
	configuration := environment.Configuration
	path := OutputPath(configuration.OutputDir, UpdateVersionsCommandName)
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, UpdateVersionsCommandName).Run(executionContext, func(runContext context.Context) error {
		if optionsError := buildtoolerrors.CheckOptionsSet(UpdateVersionsCommandName, map[string]string{
			versionsPathOptionConstant:     configuration.Versions.VersionsYMLPath,
			spinnakerVersionOptionConstant: configuration.SpinnakerVersion,
			minimumHalyardOptionConstant:   configuration.Versions.MinimumHalyardVersion,
		}); optionsError != nil {
			return optionsError
		}
		base, loadError := LoadDocument(configuration.Versions.VersionsYMLPath)
		if loadError != nil {
			return loadError
		}

		latestHalyard := configuration.Versions.LatestHalyardVersion
		if len(latestHalyard) == 0 {
			environment.Logger.Debug(inheritedHalyardMessageConstant, zap.String(logFieldVersionConstant, base.LatestHalyard))
		}

		builder := NewBuilder(environment.Logger, base, BuilderOptions{ChangelogBaseURL: configuration.Changelog.BaseURL, Clock: environment.Clock})
		document, buildError := builder.Build(configuration.SpinnakerVersion, configuration.Versions.MinimumHalyardVersion, latestHalyard)
		if buildError != nil {
			return buildError
		}
		return writeDocument(environment.Logger, path, document)
	})
	if runError != nil {
		return "", runError
	}
	return path, nil
}

// PublishResult describes where versions.yml was, or would have been, published.
type PublishResult struct {
	Destination string
	Published   bool
}

// PublishVersions uploads the versions.yml at versions_yml_path. A dry run only reports the destination.
func PublishVersions(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	configuration := environment.Configuration
	result := PublishResult{Destination: StorageURL(configuration.Versions.Bucket)}
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, PublishVersionsCommandName).Run(executionContext, func(runContext context.Context) error {
		if optionsError := buildtoolerrors.CheckOptionsSet(PublishVersionsCommandName, map[string]string{versionsPathOptionConstant: configuration.Versions.VersionsYMLPath}); optionsError != nil {
			return optionsError
		}
		if existsError := buildtoolerrors.CheckPathExists(configuration.Versions.VersionsYMLPath, versionsPathOptionConstant); existsError != nil {
			return existsError
		}
		if configuration.DryRun {
			environment.Logger.Warn(dryRunPublishMessageConstant, zap.String(logFieldPathConstant, configuration.Versions.VersionsYMLPath), zap.String(logFieldDestinationConstant, result.Destination))
			return nil
		}

		environment.Logger.Info(publishingMessageConstant, zap.String(logFieldPathConstant, configuration.Versions.VersionsYMLPath), zap.String(logFieldDestinationConstant, result.Destination))
		if activateError := environment.ActivateGoogleCredentials(runContext); activateError != nil {
			return activateError
		}
		if _, copyError := environment.Tools.ExecuteGsutil(runContext, dependencies.CommandArguments(gsutilCopyCommandConstant, configuration.Versions.VersionsYMLPath, result.Destination)); copyError != nil {
			return copyError
		}
		result.Published = true
		return nil
	})
	if runError != nil {
		return PublishResult{}, runError
	}
	return result, nil
}

func writeDocument(logger *zap.Logger, path string, document *Document) error {
	content, marshalError := MarshalDocument(document)
	if marshalError != nil {
		return buildtoolerrors.NewUnexpectedError(fmt.Sprintf(writeDocumentTemplateConstant, path), marshalError)
	}
	if mkdirError := os.MkdirAll(filepath.Dir(path), outputDirectoryPermissionsConstant); mkdirError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeDocumentTemplateConstant, path), mkdirError)
	}
	if writeError := os.WriteFile(path, content, outputFilePermissionsConstant); writeError != nil {
		return buildtoolerrors.NewConfigError(fmt.Sprintf(writeDocumentTemplateConstant, path), writeError)
	}
	logger.Info(wroteMessageConstant, zap.String(logFieldPathConstant, path))
	return nil
}
