package versions

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	fetchShortDescriptionConstant    = "Fetch the published versions.yml"
	updateShortDescriptionConstant   = "Add a release to versions.yml"
	updateLongDescriptionConstant    = "update_versions adds spinnaker_version to the versions.yml at versions_yml_path, keeping the newest release of each of the three most recent release lines."
	publishShortDescriptionConstant  = "Publish versions.yml to the release bucket"
	wroteMessageTemplateConstant     = "WROTE: %s\n"
	publishedMessageTemplateConstant = "PUBLISHED: %s\n"
	dryRunMessageTemplateConstant    = "DRY RUN: %s\n"
)

// FetchCommandBuilder assembles the fetch_versions command.
type FetchCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the fetch_versions command.
func (builder *FetchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   FetchVersionsCommandName,
		Short: fetchShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.FlagOutputDir, buildconfig.FlagVersionsBucket)
	return command, nil
}

func (builder *FetchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	path, fetchError := FetchVersions(command.Context(), environment)
	if fetchError != nil {
		return fetchError
	}
	fmt.Fprintf(command.OutOrStdout(), wroteMessageTemplateConstant, path)
	return nil
}

// UpdateCommandBuilder assembles the update_versions command.
type UpdateCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the update_versions command.
func (builder *UpdateCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   UpdateVersionsCommandName,
		Short: updateShortDescriptionConstant,
		Long:  updateLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command,
		buildconfig.FlagOutputDir,
		buildconfig.FlagVersionsYMLPath,
		buildconfig.FlagSpinnakerVersion,
		buildconfig.FlagMinimumHalyardVersion,
		buildconfig.FlagLatestHalyardVersion,
	)
	return command, nil
}

func (builder *UpdateCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	path, updateError := UpdateVersions(command.Context(), environment)
	if updateError != nil {
		return updateError
	}
	fmt.Fprintf(command.OutOrStdout(), wroteMessageTemplateConstant, path)
	return nil
}

// PublishCommandBuilder assembles the publish_versions command.
type PublishCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the publish_versions command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   PublishVersionsCommandName,
		Short: publishShortDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.FlagVersionsYMLPath, buildconfig.FlagVersionsBucket, buildconfig.FlagDryRun)
	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, publishError := PublishVersions(command.Context(), environment)
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
