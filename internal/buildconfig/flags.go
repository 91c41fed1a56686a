package buildconfig

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/processor"
	flagutils "github.com/spinnaker/buildtool/internal/utils/flags"
)

// Option flag names. They mirror the configuration keys with "." replaced by "_".
const (
	FlagRootPath                     = "root_path"
	FlagOutputDir                    = "output_dir"
	FlagInputDir                     = "input_dir"
	FlagMaxThreads                   = "max_threads"
	FlagOneAtATime                   = "one_at_a_time"
	FlagOnlyRepositories             = "only_repositories"
	FlagExcludeRepositories          = "exclude_repositories"
	FlagDryRun                       = "dry_run"
	FlagBuildNumber                  = "build_number"
	FlagSpinnakerVersion             = "spinnaker_version"
	FlagGitHubOwner                  = "github_owner"
	FlagGitHubHostname               = "github_hostname"
	FlagGitHubRepositoryRoot         = "github_repository_root"
	FlagGitHubUpstreamOwner          = "github_upstream_owner"
	FlagGitBranch                    = "git_branch"
	FlagGitFallbackBranch            = "git_fallback_branch"
	FlagGitNeverPush                 = "git_never_push"
	FlagGitPullSSH                   = "git_pull_ssh"
	FlagGitPushSSH                   = "git_push_ssh"
	FlagGitAllowPublishMaster        = "git_allow_publish_master_branch"
	FlagBomPath                      = "bom_path"
	FlagBomVersion                   = "bom_version"
	FlagBomBucket                    = "bom_bucket"
	FlagBomDependenciesPath          = "bom_dependencies_path"
	FlagRefreshFromBomPath           = "refresh_from_bom_path"
	FlagRefreshFromBomVersion        = "refresh_from_bom_version"
	FlagChangelogGistURL             = "changelog_gist_url"
	FlagChangelogIncludeDetails      = "include_changelog_details"
	FlagRelativeToBomPath            = "relative_to_bom_path"
	FlagRelativeToBomVersion         = "relative_to_bom_version"
	FlagChangelogPath                = "changelog_path"
	FlagVersionsBucket               = "versions_bucket"
	FlagVersionsYMLPath              = "versions_yml_path"
	FlagMinimumHalyardVersion        = "minimum_halyard_version"
	FlagLatestHalyardVersion         = "latest_halyard_version"
	FlagDockerRegistry               = "docker_registry"
	FlagDeleteExisting               = "delete_existing"
	FlagSkipExisting                 = "skip_existing"
	FlagNewBranch                    = "new_branch"
	invalidFlagValueTemplateConstant = "invalid value %q for --%s"
)

// RepositorySelectionFlags choose which repositories a repository command processes and how many at once.
var RepositorySelectionFlags = []string{FlagOnlyRepositories, FlagExcludeRepositories, FlagOneAtATime, FlagMaxThreads}

// SourceFlags locate local clones and the hosted repositories they come from.
var SourceFlags = []string{
	FlagRootPath,
	FlagOutputDir,
	FlagBuildNumber,
	FlagGitHubOwner,
	FlagGitHubHostname,
	FlagGitHubRepositoryRoot,
	FlagGitHubUpstreamOwner,
	FlagGitBranch,
	FlagGitFallbackBranch,
	FlagGitNeverPush,
	FlagGitPullSSH,
	FlagGitPushSSH,
}

// BomSourceFlags select the BOM a command is bound to.
var BomSourceFlags = []string{FlagBomPath, FlagBomVersion, FlagBomBucket}

type optionFlag struct {
	usage  string
	target func(configuration *Configuration) any
}

var optionFlags = map[string]optionFlag{
	FlagRootPath:                {"Directory holding the local clones.", func(c *Configuration) any { return &c.RootPath }},
	FlagOutputDir:               {"Directory receiving generated artifacts.", func(c *Configuration) any { return &c.OutputDir }},
	FlagInputDir:                {"Directory holding inputs such as gist clones.", func(c *Configuration) any { return &c.InputDir }},
	FlagMaxThreads:              {"Maximum number of repositories processed at once.", func(c *Configuration) any { return &c.MaxThreads }},
	FlagOneAtATime:              {"Process one repository at a time.", func(c *Configuration) any { return &c.OneAtATime }},
	FlagOnlyRepositories:        {"Comma separated repositories to process.", func(c *Configuration) any { return &c.OnlyRepositories }},
	FlagExcludeRepositories:     {"Comma separated repositories to skip.", func(c *Configuration) any { return &c.ExcludeRepositories }},
	FlagDryRun:                  {"Show proposed publishing actions without performing them.", func(c *Configuration) any { return &c.DryRun }},
	FlagBuildNumber:             {"Build number artifacts are published under.", func(c *Configuration) any { return &c.BuildNumber }},
	FlagSpinnakerVersion:        {"Spinnaker release version.", func(c *Configuration) any { return &c.SpinnakerVersion }},
	FlagGitHubOwner:             {"Owner of the repositories to clone, or \"upstream\".", func(c *Configuration) any { return &c.GitHub.Owner }},
	FlagGitHubHostname:          {"Hostname of the git service.", func(c *Configuration) any { return &c.GitHub.Hostname }},
	FlagGitHubRepositoryRoot:    {"Local directory or URL prefix replacing the hosted origin.", func(c *Configuration) any { return &c.GitHub.RepositoryRoot }},
	FlagGitHubUpstreamOwner:     {"Owner of the authoritative repositories.", func(c *Configuration) any { return &c.GitHub.UpstreamOwner }},
	FlagGitBranch:               {"Branch to operate on.", func(c *Configuration) any { return &c.Git.Branch }},
	FlagGitFallbackBranch:       {"Branch used when git_branch does not exist.", func(c *Configuration) any { return &c.Git.FallbackBranch }},
	FlagGitNeverPush:            {"Never push to any remote.", func(c *Configuration) any { return &c.Git.NeverPush }},
	FlagGitPullSSH:              {"Pull over ssh instead of https.", func(c *Configuration) any { return &c.Git.PullSSH }},
	FlagGitPushSSH:              {"Push over ssh instead of https.", func(c *Configuration) any { return &c.Git.PushSSH }},
	FlagGitAllowPublishMaster:   {"Commit published changes directly to master.", func(c *Configuration) any { return &c.Git.AllowPublishMasterBranch }},
	FlagBomPath:                 {"Path to a BOM file.", func(c *Configuration) any { return &c.Bom.Path }},
	FlagBomVersion:              {"Version of a published BOM.", func(c *Configuration) any { return &c.Bom.Version }},
	FlagBomBucket:               {"Bucket holding published BOMs.", func(c *Configuration) any { return &c.Bom.Bucket }},
	FlagBomDependenciesPath:     {"Path to the dependencies a new BOM declares.", func(c *Configuration) any { return &c.Bom.DependenciesPath }},
	FlagRefreshFromBomPath:      {"Path to the BOM a new BOM refreshes.", func(c *Configuration) any { return &c.Bom.RefreshFromPath }},
	FlagRefreshFromBomVersion:   {"Published BOM version a new BOM refreshes.", func(c *Configuration) any { return &c.Bom.RefreshFromVersion }},
	FlagChangelogGistURL:        {"Gist holding the raw changelogs.", func(c *Configuration) any { return &c.Changelog.GistURL }},
	FlagChangelogIncludeDetails: {"Include the per commit detail sections.", func(c *Configuration) any { return &c.Changelog.IncludeDetails }},
	FlagRelativeToBomPath:       {"BOM file the changelog starts from.", func(c *Configuration) any { return &c.Changelog.RelativeToBomPath }},
	FlagRelativeToBomVersion:    {"Published BOM version the changelog starts from.", func(c *Configuration) any { return &c.Changelog.RelativeToBomVersion }},
	FlagChangelogPath:           {"Path to a built changelog.", func(c *Configuration) any { return &c.Changelog.Path }},
	FlagVersionsBucket:          {"Bucket holding versions.yml.", func(c *Configuration) any { return &c.Versions.Bucket }},
	FlagVersionsYMLPath:         {"Path to a versions.yml file.", func(c *Configuration) any { return &c.Versions.VersionsYMLPath }},
	FlagMinimumHalyardVersion:   {"Minimum halyard version the release requires.", func(c *Configuration) any { return &c.Versions.MinimumHalyardVersion }},
	FlagLatestHalyardVersion:    {"Latest halyard version, when it changed.", func(c *Configuration) any { return &c.Versions.LatestHalyardVersion }},
	FlagDockerRegistry:          {"Registry holding the release container images.", func(c *Configuration) any { return &c.Containers.DockerRegistry }},
	FlagDeleteExisting:          {"Delete existing clones before fetching.", func(c *Configuration) any { return &c.Source.DeleteExisting }},
	FlagSkipExisting:            {"Keep existing clones without refreshing them.", func(c *Configuration) any { return &c.Source.SkipExisting }},
	FlagNewBranch:               {"Branch created by new_release_branch.", func(c *Configuration) any { return &c.Source.NewBranch }},
}

// OptionDefinitions returns the flag definitions for the named options. Unknown names are ignored.
func OptionDefinitions(names ...string) []flagutils.OptionDefinition {
	defaults := DefaultConfiguration()
	definitions := make([]flagutils.OptionDefinition, 0, len(names))
	for _, name := range names {
		option, known := optionFlags[name]
		if !known {
			continue
		}
		definition := flagutils.OptionDefinition{Name: name, Usage: option.usage}
		switch typed := option.target(&defaults).(type) {
		case *bool:
			definition.Kind = flagutils.OptionKindToggle
			definition.ToggleDefault = *typed
		case *int:
			definition.Kind = flagutils.OptionKindInteger
		}
		definitions = append(definitions, definition)
	}
	return definitions
}

// BindFlags adds the named option flags to command.
func BindFlags(command *cobra.Command, names ...string) {
	flagutils.BindOptionFlags(command, OptionDefinitions(names...))
}

// ApplyFlags returns configuration with every option flag set on command applied over it.
func ApplyFlags(command *cobra.Command, configuration Configuration) (Configuration, error) {
	return ApplyOptionValues(configuration, flagutils.ChangedOptionValues(command))
}

// ApplyOptionValues sets the options named in values, in name order, on a copy of configuration.
func ApplyOptionValues(configuration Configuration, values map[string]string) (Configuration, error) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	updated := configuration
	for _, name := range names {
		option, known := optionFlags[name]
		if !known {
			continue
		}
		if setError := setOptionValue(option.target(&updated), values[name]); setError != nil {
			return configuration, buildtoolerrors.NewConfigError(fmt.Sprintf(invalidFlagValueTemplateConstant, values[name], name), setError)
		}
	}
	return updated.Sanitize(), nil
}

func setOptionValue(target any, value string) error {
	switch typed := target.(type) {
	case *string:
		*typed = value
	case *bool:
		parsed, parseError := strconv.ParseBool(value)
		if parseError != nil {
			return parseError
		}
		*typed = parsed
	case *int:
		parsed, parseError := strconv.Atoi(value)
		if parseError != nil {
			return parseError
		}
		*typed = parsed
	case *[]string:
		*typed = processor.SplitRepositoryList(value)
	}
	return nil
}
