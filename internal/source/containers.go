package source

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	// TagContainersCommandName names the tag_containers command.
	TagContainersCommandName = "tag_containers"

	bomPathOptionConstant           = "bom_path"
	spinnakerVersionOptionConstant  = "spinnaker_version"
	imageTemplateConstant           = "%s/%s:%s"
	unvalidatedSuffixConstant       = "-unvalidated"
	ubuntuSuffixConstant            = "-ubuntu"
	releaseTagPrefixConstant        = "spinnaker-"
	regctlVerbosityFlagConstant     = "--verbosity"
	regctlVerbosityLevelConstant    = "info"
	regctlImageCommandConstant      = "image"
	regctlCopyCommandConstant       = "copy"
	dryRunTaggingMessageConstant    = "dry run: not tagging containers"
	taggingContainerMessageConstant = "tagging container"
	unpinnedServiceMessageConstant  = "service is not pinned, skipping"
	logFieldServiceConstant         = "service"
	logFieldSourceConstant          = "source"
	logFieldDestinationConstant     = "destination"
	logFieldTagsConstant            = "tags"
	logFieldPathConstant            = "path"
)

// ImageCopy is one registry copy from a validated candidate image to a release tag.
type ImageCopy struct {
	Source      string
	Destination string
}

// ContainersResult lists the image copies of a tag_containers invocation.
// Tagged is false when the copies were only planned.
type ContainersResult struct {
	Copies []ImageCopy
	Tagged bool
}

// PlanImageCopies returns the copies that promote every service image pinned by document.
// Each service is tagged with its own version and with spinnaker-<spinnakerVersion>, for
// both the default and the ubuntu flavor of the image.
func PlanImageCopies(logger *zap.Logger, document *bom.Document, registry string, spinnakerVersion string) []ImageCopy {
	copies := make([]ImageCopy, 0)
	for _, service := range document.ServiceNames() {
		if service == repository.MonitoringThirdPartyServiceName || service == repository.DefaultArtifactServiceName {
			continue
		}
		entry, entryError := document.Service(service)
		if entryError != nil || len(entry.Version) == 0 {
			logger.Debug(unpinnedServiceMessageConstant, zap.String(logFieldServiceConstant, service))
			continue
		}
		source := fmt.Sprintf(imageTemplateConstant, registry, service, entry.Version+unvalidatedSuffixConstant)
		for _, tag := range []string{entry.Version, releaseTagPrefixConstant + spinnakerVersion} {
			destination := fmt.Sprintf(imageTemplateConstant, registry, service, tag)
			copies = append(copies,
				ImageCopy{Source: source, Destination: destination},
				ImageCopy{Source: source + ubuntuSuffixConstant, Destination: destination + ubuntuSuffixConstant},
			)
		}
	}
	return copies
}

// TagContainers promotes the images of every service in the BOM at bom_path to their release tags.
// Nothing is copied while dry_run is set.
func TagContainers(executionContext context.Context, environment dependencies.Environment) (ContainersResult, error) {
	var result ContainersResult
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, TagContainersCommandName).Run(executionContext, func(runContext context.Context) error {
		tagged, tagError := tagContainers(runContext, environment)
		result = tagged
		return tagError
	})
	if runError != nil {
		return ContainersResult{}, runError
	}
	return result, nil
}

func tagContainers(executionContext context.Context, environment dependencies.Environment) (ContainersResult, error) {
	configuration := environment.Configuration
	if optionsError := buildtoolerrors.CheckOptionsSet(TagContainersCommandName, map[string]string{
		bomPathOptionConstant:          configuration.Bom.Path,
		spinnakerVersionOptionConstant: configuration.SpinnakerVersion,
	}); optionsError != nil {
		return ContainersResult{}, optionsError
	}
	if existsError := buildtoolerrors.CheckPathExists(configuration.Bom.Path, bomPathOptionConstant); existsError != nil {
		return ContainersResult{}, existsError
	}
	document, loadError := bom.LoadDocument(configuration.Bom.Path)
	if loadError != nil {
		return ContainersResult{}, loadError
	}

	copies := PlanImageCopies(environment.Logger, document, configuration.Containers.DockerRegistry, configuration.SpinnakerVersion)
	result := ContainersResult{Copies: copies}
	if configuration.DryRun {
		destinations := make([]string, 0, len(copies))
		for _, imageCopy := range copies {
			destinations = append(destinations, imageCopy.Destination)
		}
		environment.Logger.Warn(dryRunTaggingMessageConstant, zap.String(logFieldPathConstant, configuration.Bom.Path), zap.Strings(logFieldTagsConstant, destinations))
		return result, nil
	}

	if activateError := environment.ActivateGoogleCredentials(executionContext); activateError != nil {
		return ContainersResult{}, activateError
	}
	for _, imageCopy := range copies {
		environment.Logger.Info(taggingContainerMessageConstant, zap.String(logFieldSourceConstant, imageCopy.Source), zap.String(logFieldDestinationConstant, imageCopy.Destination))
		if _, copyError := environment.Tools.ExecuteRegctl(executionContext, dependencies.CommandArguments(
			regctlVerbosityFlagConstant,
			regctlVerbosityLevelConstant,
			regctlImageCommandConstant,
			regctlCopyCommandConstant,
			imageCopy.Source,
			imageCopy.Destination,
		)); copyError != nil {
			return ContainersResult{}, copyError
		}
	}
	result.Tagged = true
	return result, nil
}
