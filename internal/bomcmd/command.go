package bomcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	buildShortDescriptionConstant    = "Build a BOM from the heads of a branch"
	buildLongDescriptionConstant     = "build_bom refreshes every BOM repository on git_branch, records its commit and build version, and writes the merged bill of materials."
	publishShortDescriptionConstant  = "Publish a BOM to the release bucket"
	publishLongDescriptionConstant   = "publish_bom copies the BOM at bom_path to gs://<bom_bucket>/bom/<version>.yml. Nothing is uploaded while dry_run is set."
	builtMessageTemplateConstant     = "BUILT: %s\n"
	unchangedMessageTemplateConstant = "UNCHANGED: %s\n"
	publishedMessageTemplateConstant = "PUBLISHED: %s\n"
	dryRunMessageTemplateConstant    = "DRY RUN: %s\n"
)

// BuildCommandBuilder assembles the build_bom command.
type BuildCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the build_bom command.
func (builder *BuildCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   BuildBomCommandName,
		Short: buildShortDescriptionConstant,
		Long:  buildLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	buildconfig.BindFlags(command,
		buildconfig.FlagBomPath,
		buildconfig.FlagBomBucket,
		buildconfig.FlagBomDependenciesPath,
		buildconfig.FlagRefreshFromBomPath,
		buildconfig.FlagRefreshFromBomVersion,
	)
	return command, nil
}

func (builder *BuildCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, buildError := BuildBom(command.Context(), environment)
	if buildError != nil {
		return buildError
	}
	if result.Changed {
		fmt.Fprintf(command.OutOrStdout(), builtMessageTemplateConstant, result.Path)
	} else {
		fmt.Fprintf(command.OutOrStdout(), unchangedMessageTemplateConstant, result.Path)
	}
	return nil
}

// PublishCommandBuilder assembles the publish_bom command.
type PublishCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the publish_bom command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   PublishBomCommandName,
		Short: publishShortDescriptionConstant,
		Long:  publishLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.FlagBomPath, buildconfig.FlagBomBucket, buildconfig.FlagDryRun)
	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, publishError := PublishBom(command.Context(), environment)
	if publishError != nil {
		return publishError
	}
	if result.Published {
		fmt.Fprintf(command.OutOrStdout(), publishedMessageTemplateConstant, result.Destination)
	} else {
		fmt.Fprintf(command.OutOrStdout(), dryRunMessageTemplateConstant, result.Destination)
	}
	return nil
}
