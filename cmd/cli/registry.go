package cli

import (
	"sort"

	"github.com/spf13/cobra"

	workflowcmd "github.com/spinnaker/buildtool/cmd/cli/workflow"
	"github.com/spinnaker/buildtool/internal/bomcmd"
	"github.com/spinnaker/buildtool/internal/changelog"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/source"
	"github.com/spinnaker/buildtool/internal/versions"
	"github.com/spinnaker/buildtool/internal/workflow"
)

// CommandFactory builds one release command bound to the application's collaborators.
type CommandFactory func(providers dependencies.Providers) (*cobra.Command, error)

// CommandRegistry maps each command name to the factory constructing it.
type CommandRegistry map[string]CommandFactory

// Names returns the registered command names in sorted order.
func (registry CommandRegistry) Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCommandRegistry returns every release command the CLI offers.
func DefaultCommandRegistry() CommandRegistry {
	return CommandRegistry{
		bomcmd.BuildBomCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := bomcmd.BuildCommandBuilder{Providers: providers}
			return builder.Build()
		},
		bomcmd.PublishBomCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := bomcmd.PublishCommandBuilder{Providers: providers}
			return builder.Build()
		},
		changelog.BuildChangelogCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := changelog.BuildCommandBuilder{Providers: providers}
			return builder.Build()
		},
		changelog.PushChangelogCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := changelog.PushCommandBuilder{Providers: providers}
			return builder.Build()
		},
		changelog.PublishChangelogCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := changelog.PublishCommandBuilder{Providers: providers}
			return builder.Build()
		},
		source.FetchSourceCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := source.FetchCommandBuilder{Providers: providers}
			return builder.Build()
		},
		source.ExtractSourceInfoCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := source.ExtractCommandBuilder{Providers: providers}
			return builder.Build()
		},
		source.TagBranchCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := source.TagCommandBuilder{Providers: providers}
			return builder.Build()
		},
		source.NewReleaseBranchCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := source.BranchCommandBuilder{Providers: providers}
			return builder.Build()
		},
		source.TagContainersCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := source.ContainersCommandBuilder{Providers: providers}
			return builder.Build()
		},
		versions.FetchVersionsCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := versions.FetchCommandBuilder{Providers: providers}
			return builder.Build()
		},
		versions.UpdateVersionsCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := versions.UpdateCommandBuilder{Providers: providers}
			return builder.Build()
		},
		versions.PublishVersionsCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := versions.PublishCommandBuilder{Providers: providers}
			return builder.Build()
		},
		workflow.PublishSpinnakerCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := workflow.PublishCommandBuilder{Providers: providers}
			return builder.Build()
		},
		workflow.RunWorkflowCommandName: func(providers dependencies.Providers) (*cobra.Command, error) {
			builder := workflowcmd.CommandBuilder{Providers: providers}
			return builder.Build()
		},
	}
}
