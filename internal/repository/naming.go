package repository

const (
	// MonitoringServiceName is the BOM service built from the monitoring repository.
	MonitoringServiceName = "monitoring-daemon"
	// MonitoringRepositoryName is the repository that builds the monitoring daemon.
	MonitoringRepositoryName = "spinnaker-monitoring"
	// MonitoringThirdPartyServiceName is the BOM entry mirrored from the monitoring daemon.
	MonitoringThirdPartyServiceName = "monitoring-third-party"
	// DefaultArtifactServiceName is a BOM entry that does not correspond to a repository.
	DefaultArtifactServiceName = "defaultArtifact"
	// HalyardRepositoryName is released independently of the services.
	HalyardRepositoryName = "halyard"
	// GitHubIORepositoryName hosts the documentation site and its changelogs.
	GitHubIORepositoryName = "spinnaker.github.io"
	// DefaultBuildNumber is used when no build number is configured.
	DefaultBuildNumber = "0"
)

// RunnableRepositoryNames are the repositories that run as services.
var RunnableRepositoryNames = []string{
	"clouddriver",
	"deck",
	"echo",
	"fiat",
	"front50",
	"gate",
	"igor",
	"kayenta",
	"orca",
	"rosco",
	"keel",
}

// ProcessRepositoryNames hold the tooling used to build and validate a release.
var ProcessRepositoryNames = []string{"buildtool", "spinrel"}

// NonCoreRepositoryNames accompany a release without being part of the BOM.
var NonCoreRepositoryNames = []string{"spin"}

// LibraryRepositoryNames are shared libraries tagged alongside the services.
var LibraryRepositoryNames = []string{"kork"}

// BomRepositoryNames lists every repository that contributes a BOM service.
func BomRepositoryNames() []string {
	names := append([]string{}, RunnableRepositoryNames...)
	return append(names, MonitoringRepositoryName)
}

// ServiceNameToRepositoryName maps a BOM service name to the repository that builds it.
func ServiceNameToRepositoryName(serviceName string) string {
	if serviceName == MonitoringServiceName {
		return MonitoringRepositoryName
	}
	return serviceName
}

// RepositoryNameToServiceName maps a repository name to the BOM service it produces.
func RepositoryNameToServiceName(repositoryName string) string {
	if repositoryName == MonitoringRepositoryName {
		return MonitoringServiceName
	}
	return repositoryName
}
