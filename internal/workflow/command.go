package workflow

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	publishShortDescriptionConstant  = "Publish a Spinnaker release"
	publishLongDescriptionConstant   = "publish_spinnaker builds the BOM and changelog of release-X.Y.x for spinnaker_version, adds the release to versions.yml, tags the container images, and publishes the changelog, BOM, and versions.yml. A dry run disables every push and upload."
	completedMessageTemplateConstant = "COMPLETED: %s\n"
	publishedMessageTemplateConstant = "PUBLISHED: %s (prior %s)\n"
)

// PublishCommandBuilder assembles the publish_spinnaker command.
type PublishCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the publish_spinnaker command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   PublishSpinnakerCommandName,
		Short: publishShortDescriptionConstant,
		Long:  publishLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command,
		buildconfig.FlagSpinnakerVersion,
		buildconfig.FlagMinimumHalyardVersion,
		buildconfig.FlagLatestHalyardVersion,
		buildconfig.FlagDryRun,
		buildconfig.FlagBomBucket,
		buildconfig.FlagVersionsBucket,
		buildconfig.FlagChangelogGistURL,
		buildconfig.FlagDockerRegistry,
	)
	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, publishError := PublishSpinnaker(command.Context(), environment)
	for _, name := range result.Completed {
		fmt.Fprintf(command.OutOrStdout(), completedMessageTemplateConstant, name)
	}
	if publishError != nil {
		return publishError
	}
	fmt.Fprintf(command.OutOrStdout(), publishedMessageTemplateConstant, result.Version, result.PriorVersion)
	return nil
}
