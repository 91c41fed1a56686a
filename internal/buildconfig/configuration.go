package buildconfig

import (
	"strings"
	"time"

	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/processor"
	"github.com/spinnaker/buildtool/internal/repository"
	"github.com/spinnaker/buildtool/internal/scm"
	pathutils "github.com/spinnaker/buildtool/internal/utils/path"
)

const (
	// MetricsSystemFile writes metric snapshots as JSON files.
	MetricsSystemFile = "file"
	// MetricsSystemPrometheus mirrors metrics into Prometheus.
	MetricsSystemPrometheus = "prometheus"

	defaultRootPathConstant              = "build_source"
	defaultOutputDirConstant             = "output"
	defaultInputDirConstant              = "source_code"
	defaultGitHubOwnerConstant           = "spinnaker"
	defaultGitHubHostnameConstant        = "github.com"
	defaultUpstreamOwnerConstant         = "spinnaker"
	defaultFallbackBranchConstant        = "master"
	defaultBomBucketConstant             = "halconfig"
	defaultVersionsBucketConstant        = "halconfig"
	defaultChangelogBaseURLConstant      = "https://spinnaker.io/changelogs"
	defaultDockerRegistryConstant        = "us-docker.pkg.dev/spinnaker-community/docker"
	defaultMetricsFlushFrequencyConstant = 5 * time.Second
	rootPathKeyConstant                  = "root_path"
	outputDirKeyConstant                 = "output_dir"
	inputDirKeyConstant                  = "input_dir"
	maxThreadsKeyConstant                = "max_threads"
	oneAtATimeKeyConstant                = "one_at_a_time"
	onlyRepositoriesKeyConstant          = "only_repositories"
	excludeRepositoriesKeyConstant       = "exclude_repositories"
	dryRunKeyConstant                    = "dry_run"
	buildNumberKeyConstant               = "build_number"
	spinnakerVersionKeyConstant          = "spinnaker_version"
	githubOwnerKeyConstant               = "github.owner"
	githubHostnameKeyConstant            = "github.hostname"
	githubRepositoryRootKeyConstant      = "github.repository_root"
	githubUpstreamOwnerKeyConstant       = "github.upstream_owner"
	gitBranchKeyConstant                 = "git.branch"
	gitFallbackBranchKeyConstant         = "git.fallback_branch"
	gitNeverPushKeyConstant              = "git.never_push"
	gitPullSSHKeyConstant                = "git.pull_ssh"
	gitPushSSHKeyConstant                = "git.push_ssh"
	gitAllowPublishMasterKeyConstant     = "git.allow_publish_master_branch"
	bomPathKeyConstant                   = "bom.path"
	bomVersionKeyConstant                = "bom.version"
	bomBucketKeyConstant                 = "bom.bucket"
	bomDependenciesPathKeyConstant       = "bom.dependencies_path"
	bomRefreshFromPathKeyConstant        = "bom.refresh_from_path"
	bomRefreshFromVersionKeyConstant     = "bom.refresh_from_version"
	bomDebianRepositoryKeyConstant       = "bom.debian_repository"
	bomDockerRegistryKeyConstant         = "bom.docker_registry"
	bomGoogleImageProjectKeyConstant     = "bom.google_image_project"
	changelogGistURLKeyConstant          = "changelog.gist_url"
	changelogIncludeDetailsKeyConstant   = "changelog.include_details"
	changelogRelativeBomPathKeyConstant  = "changelog.relative_to_bom_path"
	changelogRelativeBomVerKeyConstant   = "changelog.relative_to_bom_version"
	changelogPathKeyConstant             = "changelog.path"
	changelogBaseURLKeyConstant          = "changelog.base_url"
	versionsBucketKeyConstant            = "versions.bucket"
	versionsYMLPathKeyConstant           = "versions.versions_yml_path"
	versionsMinimumHalyardKeyConstant    = "versions.minimum_halyard_version"
	versionsLatestHalyardKeyConstant     = "versions.latest_halyard_version"
	containersDockerRegistryKeyConstant  = "containers.docker_registry"
	sourceDeleteExistingKeyConstant      = "source.delete_existing"
	sourceSkipExistingKeyConstant        = "source.skip_existing"
	sourceNewBranchKeyConstant           = "source.new_branch"
	metricsEnabledKeyConstant            = "metrics.enabled"
	metricsSystemKeyConstant             = "metrics.system"
	metricsFlushFrequencyKeyConstant     = "metrics.flush_frequency"
	metricsContextLabelsKeyConstant      = "metrics.context_labels"
	metricsOutputPathKeyConstant         = "metrics.output_path"
	metricsPushgatewayURLKeyConstant     = "metrics.pushgateway_url"
	keySeparatorConstant                 = "."
)

// Configuration holds every option shared by the release commands.
type Configuration struct {
	RootPath            string                  `mapstructure:"root_path"`
	OutputDir           string                  `mapstructure:"output_dir"`
	InputDir            string                  `mapstructure:"input_dir"`
	MaxThreads          int                     `mapstructure:"max_threads"`
	OneAtATime          bool                    `mapstructure:"one_at_a_time"`
	OnlyRepositories    []string                `mapstructure:"only_repositories"`
	ExcludeRepositories []string                `mapstructure:"exclude_repositories"`
	DryRun              bool                    `mapstructure:"dry_run"`
	BuildNumber         string                  `mapstructure:"build_number"`
	SpinnakerVersion    string                  `mapstructure:"spinnaker_version"`
	GitHub              GitHubConfiguration     `mapstructure:"github"`
	Git                 GitConfiguration        `mapstructure:"git"`
	Bom                 BomConfiguration        `mapstructure:"bom"`
	Changelog           ChangelogConfiguration  `mapstructure:"changelog"`
	Versions            VersionsConfiguration   `mapstructure:"versions"`
	Containers          ContainersConfiguration `mapstructure:"containers"`
	Source              SourceConfiguration     `mapstructure:"source"`
	Metrics             MetricsConfiguration    `mapstructure:"metrics"`
}

// GitHubConfiguration locates the hosted repositories.
type GitHubConfiguration struct {
	Owner          string `mapstructure:"owner"`
	Hostname       string `mapstructure:"hostname"`
	RepositoryRoot string `mapstructure:"repository_root"`
	UpstreamOwner  string `mapstructure:"upstream_owner"`
}

// GitConfiguration controls branches and pushes.
type GitConfiguration struct {
	Branch                   string `mapstructure:"branch"`
	FallbackBranch           string `mapstructure:"fallback_branch"`
	NeverPush                bool   `mapstructure:"never_push"`
	PullSSH                  bool   `mapstructure:"pull_ssh"`
	PushSSH                  bool   `mapstructure:"push_ssh"`
	AllowPublishMasterBranch bool   `mapstructure:"allow_publish_master_branch"`
}

// BomConfiguration locates BOMs and the artifact sources new BOMs declare.
type BomConfiguration struct {
	Path               string `mapstructure:"path"`
	Version            string `mapstructure:"version"`
	Bucket             string `mapstructure:"bucket"`
	DependenciesPath   string `mapstructure:"dependencies_path"`
	RefreshFromPath    string `mapstructure:"refresh_from_path"`
	RefreshFromVersion string `mapstructure:"refresh_from_version"`
	DebianRepository   string `mapstructure:"debian_repository"`
	DockerRegistry     string `mapstructure:"docker_registry"`
	GoogleImageProject string `mapstructure:"google_image_project"`
}

// ChangelogConfiguration controls how changelogs are built and published.
type ChangelogConfiguration struct {
	GistURL              string `mapstructure:"gist_url"`
	IncludeDetails       bool   `mapstructure:"include_details"`
	RelativeToBomPath    string `mapstructure:"relative_to_bom_path"`
	RelativeToBomVersion string `mapstructure:"relative_to_bom_version"`
	Path                 string `mapstructure:"path"`
	BaseURL              string `mapstructure:"base_url"`
}

// VersionsConfiguration locates versions.yml and the halyard versions a release requires.
type VersionsConfiguration struct {
	Bucket                string `mapstructure:"bucket"`
	VersionsYMLPath       string `mapstructure:"versions_yml_path"`
	MinimumHalyardVersion string `mapstructure:"minimum_halyard_version"`
	LatestHalyardVersion  string `mapstructure:"latest_halyard_version"`
}

// ContainersConfiguration locates the container images of a release.
type ContainersConfiguration struct {
	DockerRegistry string `mapstructure:"docker_registry"`
}

// SourceConfiguration controls how source trees are fetched and branched.
type SourceConfiguration struct {
	DeleteExisting bool   `mapstructure:"delete_existing"`
	SkipExisting   bool   `mapstructure:"skip_existing"`
	NewBranch      string `mapstructure:"new_branch"`
}

// MetricsConfiguration selects where metrics are delivered.
type MetricsConfiguration struct {
	Enabled        bool          `mapstructure:"enabled"`
	System         string        `mapstructure:"system"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
	ContextLabels  string        `mapstructure:"context_labels"`
	OutputPath     string        `mapstructure:"output_path"`
	PushgatewayURL string        `mapstructure:"pushgateway_url"`
}

// DefaultConfiguration returns the baseline option values.
func DefaultConfiguration() Configuration {
	return Configuration{
		RootPath:    defaultRootPathConstant,
		OutputDir:   defaultOutputDirConstant,
		InputDir:    defaultInputDirConstant,
		MaxThreads:  processor.MaxConcurrencyCap,
		DryRun:      true,
		BuildNumber: repository.DefaultBuildNumber,
		GitHub: GitHubConfiguration{
			Owner:         defaultGitHubOwnerConstant,
			Hostname:      defaultGitHubHostnameConstant,
			UpstreamOwner: defaultUpstreamOwnerConstant,
		},
		Git: GitConfiguration{
			FallbackBranch: defaultFallbackBranchConstant,
		},
		Bom: BomConfiguration{
			Bucket:         defaultBomBucketConstant,
			DockerRegistry: defaultDockerRegistryConstant,
		},
		Changelog: ChangelogConfiguration{
			BaseURL: defaultChangelogBaseURLConstant,
		},
		Versions: VersionsConfiguration{
			Bucket: defaultVersionsBucketConstant,
		},
		Containers: ContainersConfiguration{
			DockerRegistry: defaultDockerRegistryConstant,
		},
		Metrics: MetricsConfiguration{
			System:         MetricsSystemFile,
			FlushFrequency: defaultMetricsFlushFrequencyConstant,
		},
	}
}

// DefaultConfigurationValues exposes the defaults as configuration keys under rootKey.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	values := map[string]any{
		rootPathKeyConstant:                 defaults.RootPath,
		outputDirKeyConstant:                defaults.OutputDir,
		inputDirKeyConstant:                 defaults.InputDir,
		maxThreadsKeyConstant:               defaults.MaxThreads,
		oneAtATimeKeyConstant:               defaults.OneAtATime,
		onlyRepositoriesKeyConstant:         []string{},
		excludeRepositoriesKeyConstant:      []string{},
		dryRunKeyConstant:                   defaults.DryRun,
		buildNumberKeyConstant:              defaults.BuildNumber,
		spinnakerVersionKeyConstant:         defaults.SpinnakerVersion,
		githubOwnerKeyConstant:              defaults.GitHub.Owner,
		githubHostnameKeyConstant:           defaults.GitHub.Hostname,
		githubRepositoryRootKeyConstant:     defaults.GitHub.RepositoryRoot,
		githubUpstreamOwnerKeyConstant:      defaults.GitHub.UpstreamOwner,
		gitBranchKeyConstant:                defaults.Git.Branch,
		gitFallbackBranchKeyConstant:        defaults.Git.FallbackBranch,
		gitNeverPushKeyConstant:             defaults.Git.NeverPush,
		gitPullSSHKeyConstant:               defaults.Git.PullSSH,
		gitPushSSHKeyConstant:               defaults.Git.PushSSH,
		gitAllowPublishMasterKeyConstant:    defaults.Git.AllowPublishMasterBranch,
		bomPathKeyConstant:                  defaults.Bom.Path,
		bomVersionKeyConstant:               defaults.Bom.Version,
		bomBucketKeyConstant:                defaults.Bom.Bucket,
		bomDependenciesPathKeyConstant:      defaults.Bom.DependenciesPath,
		bomRefreshFromPathKeyConstant:       defaults.Bom.RefreshFromPath,
		bomRefreshFromVersionKeyConstant:    defaults.Bom.RefreshFromVersion,
		bomDebianRepositoryKeyConstant:      defaults.Bom.DebianRepository,
		bomDockerRegistryKeyConstant:        defaults.Bom.DockerRegistry,
		bomGoogleImageProjectKeyConstant:    defaults.Bom.GoogleImageProject,
		changelogGistURLKeyConstant:         defaults.Changelog.GistURL,
		changelogIncludeDetailsKeyConstant:  defaults.Changelog.IncludeDetails,
		changelogRelativeBomPathKeyConstant: defaults.Changelog.RelativeToBomPath,
		changelogRelativeBomVerKeyConstant:  defaults.Changelog.RelativeToBomVersion,
		changelogPathKeyConstant:            defaults.Changelog.Path,
		changelogBaseURLKeyConstant:         defaults.Changelog.BaseURL,
		versionsBucketKeyConstant:           defaults.Versions.Bucket,
		versionsYMLPathKeyConstant:          defaults.Versions.VersionsYMLPath,
		versionsMinimumHalyardKeyConstant:   defaults.Versions.MinimumHalyardVersion,
		versionsLatestHalyardKeyConstant:    defaults.Versions.LatestHalyardVersion,
		containersDockerRegistryKeyConstant: defaults.Containers.DockerRegistry,
		sourceDeleteExistingKeyConstant:     defaults.Source.DeleteExisting,
		sourceSkipExistingKeyConstant:       defaults.Source.SkipExisting,
		sourceNewBranchKeyConstant:          defaults.Source.NewBranch,
		metricsEnabledKeyConstant:           defaults.Metrics.Enabled,
		metricsSystemKeyConstant:            defaults.Metrics.System,
		metricsFlushFrequencyKeyConstant:    defaults.Metrics.FlushFrequency,
		metricsContextLabelsKeyConstant:     defaults.Metrics.ContextLabels,
		metricsOutputPathKeyConstant:        defaults.Metrics.OutputPath,
		metricsPushgatewayURLKeyConstant:    defaults.Metrics.PushgatewayURL,
	}

	prefixed := make(map[string]any, len(values))
	for key, value := range values {
		if len(rootKey) == 0 {
			prefixed[key] = value
			continue
		}
		prefixed[rootKey+keySeparatorConstant+key] = value
	}
	return prefixed
}

// Sanitize trims values and drops blank repository names without applying defaults.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.RootPath = strings.TrimSpace(configuration.RootPath)
	sanitized.OutputDir = strings.TrimSpace(configuration.OutputDir)
	sanitized.InputDir = strings.TrimSpace(configuration.InputDir)
	sanitized.BuildNumber = strings.TrimSpace(configuration.BuildNumber)
	sanitized.SpinnakerVersion = strings.TrimSpace(configuration.SpinnakerVersion)
	sanitized.OnlyRepositories = sanitizeRepositoryNames(configuration.OnlyRepositories)
	sanitized.ExcludeRepositories = sanitizeRepositoryNames(configuration.ExcludeRepositories)
	sanitized.GitHub.Owner = strings.TrimSpace(configuration.GitHub.Owner)
	sanitized.GitHub.Hostname = strings.TrimSpace(configuration.GitHub.Hostname)
	sanitized.GitHub.RepositoryRoot = strings.TrimSpace(configuration.GitHub.RepositoryRoot)
	sanitized.GitHub.UpstreamOwner = strings.TrimSpace(configuration.GitHub.UpstreamOwner)
	sanitized.Git.Branch = strings.TrimSpace(configuration.Git.Branch)
	sanitized.Git.FallbackBranch = strings.TrimSpace(configuration.Git.FallbackBranch)
	sanitized.Bom.Path = strings.TrimSpace(configuration.Bom.Path)
	sanitized.Bom.Version = strings.TrimSpace(configuration.Bom.Version)
	sanitized.Bom.Bucket = strings.TrimSpace(configuration.Bom.Bucket)
	sanitized.Bom.DependenciesPath = strings.TrimSpace(configuration.Bom.DependenciesPath)
	sanitized.Bom.RefreshFromPath = strings.TrimSpace(configuration.Bom.RefreshFromPath)
	sanitized.Bom.RefreshFromVersion = strings.TrimSpace(configuration.Bom.RefreshFromVersion)
	sanitized.Changelog.GistURL = strings.TrimSpace(configuration.Changelog.GistURL)
	sanitized.Changelog.RelativeToBomPath = strings.TrimSpace(configuration.Changelog.RelativeToBomPath)
	sanitized.Changelog.RelativeToBomVersion = strings.TrimSpace(configuration.Changelog.RelativeToBomVersion)
	sanitized.Changelog.Path = strings.TrimSpace(configuration.Changelog.Path)
	sanitized.Changelog.BaseURL = strings.TrimRight(strings.TrimSpace(configuration.Changelog.BaseURL), "/")
	sanitized.Versions.Bucket = strings.TrimSpace(configuration.Versions.Bucket)
	sanitized.Versions.VersionsYMLPath = strings.TrimSpace(configuration.Versions.VersionsYMLPath)
	sanitized.Versions.MinimumHalyardVersion = strings.TrimSpace(configuration.Versions.MinimumHalyardVersion)
	sanitized.Versions.LatestHalyardVersion = strings.TrimSpace(configuration.Versions.LatestHalyardVersion)
	sanitized.Containers.DockerRegistry = strings.TrimSpace(configuration.Containers.DockerRegistry)
	sanitized.Source.NewBranch = strings.TrimSpace(configuration.Source.NewBranch)
	sanitized.Metrics.System = strings.ToLower(strings.TrimSpace(configuration.Metrics.System))
	return sanitized
}

// ExpandPaths resolves a leading "~" in every filesystem path option.
func (configuration Configuration) ExpandPaths(expander *pathutils.HomeExpander) Configuration {
	expanded := configuration
	for _, path := range []*string{
		&expanded.RootPath,
		&expanded.OutputDir,
		&expanded.InputDir,
		&expanded.Bom.Path,
		&expanded.Bom.DependenciesPath,
		&expanded.Bom.RefreshFromPath,
		&expanded.Changelog.RelativeToBomPath,
		&expanded.Changelog.Path,
		&expanded.Versions.VersionsYMLPath,
		&expanded.Metrics.OutputPath,
	} {
		*path = expander.Expand(*path)
	}
	return expanded
}

// ManagerOptions returns the options shared by every source code manager.
func (configuration Configuration) ManagerOptions() scm.Options {
	return scm.Options{
		RootPath:      configuration.RootPath,
		OutputDir:     configuration.OutputDir,
		UpstreamOwner: configuration.GitHub.UpstreamOwner,
		BuildNumber:   configuration.BuildNumber,
		MaxThreads:    configuration.MaxThreads,
	}
}

// BranchOptions returns the options of a branch source code manager.
func (configuration Configuration) BranchOptions() scm.BranchOptions {
	return scm.BranchOptions{
		Branch:         configuration.Git.Branch,
		FallbackBranch: configuration.Git.FallbackBranch,
		Owner:          configuration.GitHub.Owner,
		Hostname:       configuration.GitHub.Hostname,
		RepositoryRoot: configuration.GitHub.RepositoryRoot,
	}
}

// BomSource names the BOM a BOM source code manager is bound to.
func (configuration Configuration) BomSource() scm.BomSource {
	return scm.BomSource{
		Path:    configuration.Bom.Path,
		Version: configuration.Bom.Version,
		Bucket:  configuration.Bom.Bucket,
	}
}

// GitOptions returns the options of the git runner.
func (configuration Configuration) GitOptions() gitrunner.Options {
	return gitrunner.Options{
		NeverPush: configuration.Git.NeverPush,
		PullSSH:   configuration.Git.PullSSH,
		PushSSH:   configuration.Git.PushSSH,
	}
}

// ProcessorOptions returns the repository selection and concurrency options.
func (configuration Configuration) ProcessorOptions() processor.Options {
	return processor.Options{
		OnlyRepositories:    append([]string{}, configuration.OnlyRepositories...),
		ExcludeRepositories: append([]string{}, configuration.ExcludeRepositories...),
		OneAtATime:          configuration.OneAtATime,
		MaxThreads:          configuration.MaxThreads,
	}
}

func sanitizeRepositoryNames(names []string) []string {
	sanitized := make([]string, 0, len(names))
	for _, name := range names {
		sanitized = append(sanitized, processor.SplitRepositoryList(name)...)
	}
	return sanitized
}
