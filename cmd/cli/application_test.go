package cli_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spinnaker/buildtool/cmd/cli"
	"github.com/spinnaker/buildtool/internal/dependencies"
)

var requiredCommandNames = []string{
	"build_bom",
	"build_changelog",
	"extract_source_info",
	"fetch_source",
	"fetch_versions",
	"new_release_branch",
	"publish_bom",
	"publish_changelog",
	"publish_spinnaker",
	"publish_versions",
	"push_changelog_to_gist",
	"run_workflow",
	"tag_branch",
	"tag_containers",
	"update_versions",
}

func TestDefaultCommandRegistryNames(t *testing.T) {
	require.Equal(t, requiredCommandNames, cli.DefaultCommandRegistry().Names())
}

func TestDefaultCommandRegistryBuildsNamedCommands(t *testing.T) {
	registry := cli.DefaultCommandRegistry()

	for _, name := range registry.Names() {
		t.Run(name, func(t *testing.T) {
			command, buildError := registry[name](dependencies.Providers{})

			require.NoError(t, buildError)
			require.Equal(t, name, command.Name())
		})
	}
}

func TestRepositoryCommandsExposeSelectionFlags(t *testing.T) {
	registry := cli.DefaultCommandRegistry()

	for _, name := range []string{"build_bom", "build_changelog", "fetch_source", "tag_branch"} {
		t.Run(name, func(t *testing.T) {
			command, buildError := registry[name](dependencies.Providers{})
			require.NoError(t, buildError)

			for _, flagName := range []string{"only_repositories", "exclude_repositories", "one_at_a_time"} {
				require.NotNil(t, command.Flags().Lookup(flagName), flagName)
			}
		})
	}
}
