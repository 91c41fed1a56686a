package bomcmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
)

const (
	// PublishBomCommandName names the publish_bom command.
	PublishBomCommandName = "publish_bom"

	bomPathOptionConstant        = "bom_path"
	bomPathPurposeConstant       = "bom_path"
	gsutilCopyCommandConstant    = "cp"
	dryRunPublishMessageConstant = "dry run: not publishing BOM"
	publishingBomMessageConstant = "publishing BOM"
	logFieldDestinationConstant  = "destination"
	logFieldBomVersionConstant   = "version"
)

// PublishResult describes where a BOM was, or would have been, published.
type PublishResult struct {
	Version     string
	Destination string
	Published   bool
}

// PublishBom uploads the BOM at bom.path to the BOM bucket. A dry run only reports the destination.
func PublishBom(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	configuration := environment.Configuration
	var result PublishResult
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, PublishBomCommandName).Run(executionContext, func(runContext context.Context) error {
		published, publishError := publishBom(runContext, environment)
		result = published
		return publishError
	})
	if runError != nil {
		return PublishResult{}, runError
	}
	if !result.Published {
		environment.Logger.Warn(dryRunPublishMessageConstant, zap.String(logFieldDestinationConstant, result.Destination), zap.String(logFieldPathConstant, configuration.Bom.Path))
	}
	return result, nil
}

func publishBom(executionContext context.Context, environment dependencies.Environment) (PublishResult, error) {
	configuration := environment.Configuration
	if optionsError := buildtoolerrors.CheckOptionsSet(PublishBomCommandName, map[string]string{bomPathOptionConstant: configuration.Bom.Path}); optionsError != nil {
		return PublishResult{}, optionsError
	}
	if existsError := buildtoolerrors.CheckPathExists(configuration.Bom.Path, bomPathPurposeConstant); existsError != nil {
		return PublishResult{}, existsError
	}

	document, loadError := bom.LoadDocument(configuration.Bom.Path)
	if loadError != nil {
		return PublishResult{}, loadError
	}
	version, versionError := document.RequireVersion()
	if versionError != nil {
		return PublishResult{}, versionError
	}

	result := PublishResult{Version: version, Destination: bom.StorageURL(configuration.Bom.Bucket, version)}
	if configuration.DryRun {
		return result, nil
	}

	environment.Logger.Info(publishingBomMessageConstant, zap.String(logFieldBomVersionConstant, version), zap.String(logFieldDestinationConstant, result.Destination))
	if activateError := environment.ActivateGoogleCredentials(executionContext); activateError != nil {
		return PublishResult{}, activateError
	}
	if _, copyError := environment.Tools.ExecuteGsutil(executionContext, dependencies.CommandArguments(gsutilCopyCommandConstant, configuration.Bom.Path, result.Destination)); copyError != nil {
		return PublishResult{}, copyError
	}
	result.Published = true
	return result, nil
}
