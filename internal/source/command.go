package source

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	fetchShortDescriptionConstant      = "Clone the release repositories"
	fetchLongDescriptionConstant       = "fetch_source clones git_branch of every BOM repository, halyard, and the release tooling under root_path. Existing clones require delete_existing or skip_existing."
	extractShortDescriptionConstant    = "Record source info for the BOM repositories"
	extractLongDescriptionConstant     = "extract_source_info summarizes every BOM repository since its newest release tag and caches the summary with the build number under output_dir/source_info."
	tagShortDescriptionConstant        = "Tag the heads of a branch"
	tagLongDescriptionConstant         = "tag_branch tags HEAD of git_branch in every repository with commits since its newest release tag. Master bumps the minor version and release branches bump the patch."
	branchShortDescriptionConstant     = "Create a release branch"
	branchLongDescriptionConstant      = "new_release_branch creates new_branch from git_branch in every tagged repository and pushes it to origin."
	containersShortDescriptionConstant = "Tag the container images of a release"
	containersLongDescriptionConstant  = "tag_containers copies the -unvalidated image of every service in the BOM at bom_path to its version tag and to spinnaker-<spinnaker_version>, including the -ubuntu images. Nothing is copied while dry_run is set."
	fetchedMessageTemplateConstant     = "FETCHED: %s\n"
	extractedMessageTemplateConstant   = "EXTRACTED: %s %s\n"
	taggedMessageTemplateConstant      = "TAGGED: %s %s\n"
	branchedMessageTemplateConstant    = "BRANCHED: %s %s\n"
	copiedMessageTemplateConstant      = "COPIED: %s -> %s\n"
	dryRunMessageTemplateConstant      = "DRY RUN: %s -> %s\n"
)

// FetchCommandBuilder assembles the fetch_source command.
type FetchCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the fetch_source command.
func (builder *FetchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   FetchSourceCommandName,
		Short: fetchShortDescriptionConstant,
		Long:  fetchLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	buildconfig.BindFlags(command, buildconfig.FlagDeleteExisting, buildconfig.FlagSkipExisting)
	return command, nil
}

func (builder *FetchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, fetchError := FetchSource(command.Context(), environment)
	if fetchError != nil {
		return fetchError
	}
	for _, name := range result.Repositories {
		fmt.Fprintf(command.OutOrStdout(), fetchedMessageTemplateConstant, name)
	}
	return nil
}

// ExtractCommandBuilder assembles the extract_source_info command.
type ExtractCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the extract_source_info command.
func (builder *ExtractCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   ExtractSourceInfoCommandName,
		Short: extractShortDescriptionConstant,
		Long:  extractLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	return command, nil
}

func (builder *ExtractCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, extractError := ExtractSourceInfo(command.Context(), environment)
	if extractError != nil {
		return extractError
	}
	names := make([]string, 0, len(result.SourceInfo))
	for name := range result.SourceInfo {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(command.OutOrStdout(), extractedMessageTemplateConstant, name, result.SourceInfo[name].BuildVersion())
	}
	return nil
}

// TagCommandBuilder assembles the tag_branch command.
type TagCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the tag_branch command.
func (builder *TagCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   TagBranchCommandName,
		Short: tagShortDescriptionConstant,
		Long:  tagLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	return command, nil
}

func (builder *TagCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, tagError := TagBranch(command.Context(), environment)
	if tagError != nil {
		return tagError
	}
	names := make([]string, 0, len(result.Tags))
	for name := range result.Tags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(command.OutOrStdout(), taggedMessageTemplateConstant, name, result.Tags[name])
	}
	return nil
}

// BranchCommandBuilder assembles the new_release_branch command.
type BranchCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the new_release_branch command.
func (builder *BranchCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   NewReleaseBranchCommandName,
		Short: branchShortDescriptionConstant,
		Long:  branchLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command, buildconfig.SourceFlags...)
	buildconfig.BindFlags(command, buildconfig.RepositorySelectionFlags...)
	buildconfig.BindFlags(command, buildconfig.FlagNewBranch)
	return command, nil
}

func (builder *BranchCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, branchError := NewReleaseBranch(command.Context(), environment)
	if branchError != nil {
		return branchError
	}
	for _, name := range result.Repositories {
		fmt.Fprintf(command.OutOrStdout(), branchedMessageTemplateConstant, name, result.Branch)
	}
	return nil
}

// ContainersCommandBuilder assembles the tag_containers command.
type ContainersCommandBuilder struct {
	dependencies.Providers
}

// Build constructs the tag_containers command.
func (builder *ContainersCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   TagContainersCommandName,
		Short: containersShortDescriptionConstant,
		Long:  containersLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}
	buildconfig.BindFlags(command,
		buildconfig.FlagBomPath,
		buildconfig.FlagSpinnakerVersion,
		buildconfig.FlagDockerRegistry,
		buildconfig.FlagDryRun,
	)
	return command, nil
}

func (builder *ContainersCommandBuilder) run(command *cobra.Command, arguments []string) error {
	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}
	result, tagError := TagContainers(command.Context(), environment)
	if tagError != nil {
		return tagError
	}
	template := copiedMessageTemplateConstant
	if !result.Tagged {
		template = dryRunMessageTemplateConstant
	}
	for _, imageCopy := range result.Copies {
		fmt.Fprintf(command.OutOrStdout(), template, imageCopy.Source, imageCopy.Destination)
	}
	return nil
}
