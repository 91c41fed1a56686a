package scm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/bom"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	originRemoteNameConstant           = "origin"
	gitPrefixSeparatorConstant         = "/"
	exactlyOneBomMessageConstant       = `Expected exactly one of: "bom_path", or "bom_version"`
	missingBomBucketMessageConstant    = "bom.bucket is required to fetch a BOM version"
	notBomRepositoryTemplateConstant   = "%q is not a BOM repo"
	bomWrongCommitTemplateConstant     = "%q is at the wrong commit %q vs %q"
	loadingBomMessageConstant          = "loading BOM"
	skippingNullServiceMessageConstant = "skipping service because its BOM entry is null"
	logFieldServiceConstant            = "service"
	logFieldBomSourceConstant          = "source"
)

// BomSource names where the BOM comes from. Exactly one of Path and Version is set.
type BomSource struct {
	Path    string
	Version string
	Bucket  string
}

// LoadBom reads the BOM named by source, from a file or from the published bucket.
func LoadBom(executionContext context.Context, logger *zap.Logger, storage bom.StorageExecutor, source BomSource) (*bom.Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	havePath := len(source.Path) > 0
	haveVersion := len(source.Version) > 0
	if havePath == haveVersion {
		return nil, buildtoolerrors.NewConfigError(exactlyOneBomMessageConstant, nil)
	}
	if havePath {
		logger.Debug(loadingBomMessageConstant, zap.String(logFieldBomSourceConstant, source.Path))
		return bom.LoadDocument(source.Path)
	}
	if len(source.Bucket) == 0 {
		return nil, buildtoolerrors.NewConfigError(missingBomBucketMessageConstant, nil)
	}
	logger.Debug(loadingBomMessageConstant, zap.String(logFieldBomSourceConstant, bom.StorageURL(source.Bucket, source.Version)))
	return bom.FetchDocument(executionContext, storage, source.Bucket, source.Version)
}

// BomManager manages sources pinned by a BOM.
type BomManager struct {
	*Manager
	document *bom.Document
}

// NewBomManager constructs a BomManager around an already loaded BOM.
func NewBomManager(logger *zap.Logger, git *gitrunner.Runner, options Options, document *bom.Document) *BomManager {
	manager := &BomManager{document: document}
	manager.Manager = newManager(logger, git, options, manager)
	return manager
}

// Bom returns the BOM the manager is bound to.
func (manager *BomManager) Bom() *bom.Document {
	return manager.document
}

// ServiceBuildVersion returns the version the BOM pins for the service built by spec.
func (manager *BomManager) ServiceBuildVersion(spec repository.Spec) (string, error) {
	entry, entryError := manager.document.Service(repository.RepositoryNameToServiceName(spec.Name))
	if entryError != nil {
		return "", entryError
	}
	return entry.Version, nil
}

// DetermineRepositoryVersion returns the version the BOM pins for spec without its build number.
func (manager *BomManager) DetermineRepositoryVersion(spec repository.Spec) (string, error) {
	entry, entryError := manager.bomEntry(spec)
	if entryError != nil {
		return "", entryError
	}
	return entry.SemverPart(), nil
}

// RepositoryNames returns the repositories the BOM pins, in service name order.
// Null entries and services without a repository of their own are left out.
func (manager *BomManager) RepositoryNames() []string {
	names := make([]string, 0, len(manager.document.Services))
	for _, serviceName := range manager.document.ServiceNames() {
		if manager.document.Services[serviceName] == nil {
			manager.logger.Warn(skippingNullServiceMessageConstant, zap.String(logFieldServiceConstant, serviceName))
			continue
		}
		if serviceName == repository.MonitoringThirdPartyServiceName || serviceName == repository.DefaultArtifactServiceName {
			continue
		}
		names = append(names, repository.ServiceNameToRepositoryName(serviceName))
	}
	return names
}

// SourceRepositories returns a spec for every repository the BOM pins, in service name order.
func (manager *BomManager) SourceRepositories() ([]repository.Spec, error) {
	names := manager.RepositoryNames()
	specs := make([]repository.Spec, 0, len(names))
	for _, name := range names {
		spec, specError := manager.RepositorySpec(name)
		if specError != nil {
			return nil, specError
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (manager *BomManager) bomEntry(spec repository.Spec) (bom.ServiceEntry, error) {
	serviceName := repository.RepositoryNameToServiceName(spec.Name)
	if !manager.document.HasService(serviceName) {
		return bom.ServiceEntry{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(notBomRepositoryTemplateConstant, serviceName), nil)
	}
	return manager.document.Service(serviceName)
}

func (manager *BomManager) determineOrigin(name string) (string, error) {
	entry, entryError := manager.document.Service(repository.RepositoryNameToServiceName(name))
	if entryError != nil {
		return "", entryError
	}
	prefix := entry.GitPrefix
	if len(prefix) == 0 {
		prefix = manager.document.ArtifactSources.GitPrefix
	}
	return prefix + gitPrefixSeparatorConstant + name, nil
}

func (manager *BomManager) determineUpstream(name string) string {
	return ""
}

func (manager *BomManager) determineCommitID(name string) string {
	entry, entryError := manager.document.Service(repository.RepositoryNameToServiceName(name))
	if entryError != nil {
		return ""
	}
	return entry.Commit
}

func (manager *BomManager) ensureGitPath(executionContext context.Context, spec repository.Spec) error {
	entry, entryError := manager.bomEntry(spec)
	if entryError != nil {
		return entryError
	}
	return manager.git.CloneRepositoryToPath(executionContext, spec, gitrunner.CloneOptions{Commit: entry.Commit})
}

func (manager *BomManager) ensureRepository(executionContext context.Context, spec repository.Spec) error {
	entry, entryError := manager.bomEntry(spec)
	if entryError != nil {
		return entryError
	}
	if refreshError := manager.git.RefreshLocalRepository(executionContext, spec.GitDir, originRemoteNameConstant); refreshError != nil {
		return refreshError
	}
	return manager.git.Checkout(executionContext, spec.GitDir, entry.Commit)
}

func (manager *BomManager) checkRepositoryIsCurrent(spec repository.Spec) error {
	entry, entryError := manager.bomEntry(spec)
	if entryError != nil {
		return entryError
	}
	haveCommit, commitError := manager.git.QueryLocalRepositoryCommitID(spec.GitDir)
	if commitError != nil {
		return commitError
	}
	if haveCommit != entry.Commit {
		return buildtoolerrors.NewUnexpectedError(fmt.Sprintf(bomWrongCommitTemplateConstant, spec.GitDir, haveCommit, entry.Commit), nil)
	}
	return nil
}

func (manager *BomManager) determineBuildNumber(spec repository.Spec) (string, error) {
	entry, entryError := manager.bomEntry(spec)
	if entryError != nil {
		return "", entryError
	}
	return entry.BuildNumber(), nil
}
