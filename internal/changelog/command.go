package changelog

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	buildShortDescriptionConstant    = "Build the changelog of the repositories in a BOM"
	buildLongDescriptionConstant     = "build_changelog summarizes the commits of every repository the BOM pins since its newest release tag, or since the commit pinned by relative_to_bom_path or relative_to_bom_version, and writes them as markdown."
	pushShortDescriptionConstant     = "Push a raw changelog to a gist"
	pushLongDescriptionConstant      = "push_changelog_to_gist adds or overwrites \"<git_branch>-raw-changelog.md\" in the gist at changelog_gist_url. Raw changelogs are curated before they are published with publish_changelog."
	publishShortDescriptionConstant  = "Publish a curated changelog to the documentation site"
	publishLongDescriptionConstant   = "publish_changelog adds the changelog page of spinnaker_version to the documentation site, deprecates the page of the prior patch, and pushes a branch with the change."
	wroteMessageTemplateConstant     = "WROTE: %s\n"
	pushedMessageTemplateConstant    = "PUSHED: %s\n"
	publishedMessageTemplateConstant = "PUBLISHED: %s\n"
)

// BuildCommandBuilder assembles the build_changelog command.
type BuildCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the build_changelog command.
func (builder *BuildCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   BuildChangelogCommandName,
		Short: buildShortDescriptionConstant,
		Long:  buildLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	buildconfig.BindFlags(command, buildconfig.BomSourceFlags...)
	buildconfig.BindFlags(command,
		buildconfig.FlagChangelogIncludeDetails,
		buildconfig.FlagRelativeToBomPath,
		buildconfig.FlagRelativeToBomVersion,
	)
	return command, nil
}

func (builder *BuildCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, buildError := BuildChangelog(command.Context(), environment)
	if buildError != nil {
		return buildError
	}
	fmt.Fprintf(command.OutOrStdout(), wroteMessageTemplateConstant, result.Path)
	return nil
}

// PushCommandBuilder assembles the push_changelog_to_gist command.
type PushCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the push_changelog_to_gist command.
func (builder *PushCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   PushChangelogCommandName,
		Short: pushShortDescriptionConstant,
		Long:  pushLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command,
		buildconfig.FlagOutputDir,
		buildconfig.FlagInputDir,
		buildconfig.FlagGitBranch,
		buildconfig.FlagGitNeverPush,
		buildconfig.FlagChangelogPath,
		buildconfig.FlagChangelogGistURL,
	)
	return command, nil
}

func (builder *PushCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, pushError := PushChangelogToGist(command.Context(), environment)
	if pushError != nil {
		return pushError
	}
	fmt.Fprintf(command.OutOrStdout(), pushedMessageTemplateConstant, filepath.Join(result.GistDir, result.FileName))
	return nil
}

// PublishCommandBuilder assembles the publish_changelog command.
type PublishCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the publish_changelog command.
func (builder *PublishCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   PublishChangelogCommandName,
		Short: publishShortDescriptionConstant,
		Long:  publishLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command,
		buildconfig.FlagSpinnakerVersion,
		buildconfig.FlagChangelogGistURL,
		buildconfig.FlagGitAllowPublishMaster,
	)
	return command, nil
}

func (builder *PublishCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, publishError := PublishChangelog(command.Context(), environment)
	if publishError != nil {
		return publishError
	}
	fmt.Fprintf(command.OutOrStdout(), publishedMessageTemplateConstant, result.Branch)
	return nil
}
