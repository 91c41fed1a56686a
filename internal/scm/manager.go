package scm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/gitrepo"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	// DefaultMaxThreads bounds ForeachSourceRepository when no limit is configured.
	DefaultMaxThreads = 100

	defaultUpstreamOwnerConstant        = "spinnaker"
	citestRepositoryNameConstant        = "citest"
	citestUpstreamOwnerConstant         = "google"
	upstreamURLTemplateConstant         = "https://github.com/%s/%s"
	sourceInfoDirectoryConstant         = "source_info"
	sourceInfoFileSuffixConstant        = "-meta.yml"
	sourceInfoFilePermissionsConstant   = 0o644
	sourceInfoDirPermissionsConstant    = 0o755
	originMismatchTemplateConstant      = "Repository %q origin=%q expected=%q"
	writeSourceInfoTemplateConstant     = "unable to write source info %s"
	confirmingExistingMessageConstant   = "confirming existing repository matches expectations"
	refreshingSourceInfoMessageConstant = "refreshing source info"
	mappingRepositoriesMessageConstant  = "mapping repositories"
	finishedMappingMessageConstant      = "finished mapping repositories"
	skipPushNoUpstreamMessageConstant   = "skipping push to origin because upstream is not set"
	skipPushIsUpstreamMessageConstant   = "skipping push to origin because origin is upstream"
	logFieldRepositoryConstant          = "repository"
	logFieldGitDirConstant              = "git_dir"
	logFieldPathConstant                = "path"
	logFieldBuildNumberConstant         = "build_number"
	logFieldCountConstant               = "count"
)

// Options are shared by every source code manager.
type Options struct {
	RootPath      string
	OutputDir     string
	UpstreamOwner string
	BuildNumber   string
	MaxThreads    int
}

// SpecOverrides replace the defaults MakeRepositorySpec would otherwise compute.
// A nil Origin or Upstream is computed; a non-nil one is used as is, even when empty.
type SpecOverrides struct {
	GitDir   string
	Origin   *string
	Upstream *string
	CommitID string
	Branch   string
}

// layout is implemented by each kind of manager to decide where sources come from.
type layout interface {
	determineOrigin(name string) (string, error)
	determineUpstream(name string) string
	determineCommitID(name string) string
	ensureGitPath(executionContext context.Context, spec repository.Spec) error
	ensureRepository(executionContext context.Context, spec repository.Spec) error
	checkRepositoryIsCurrent(spec repository.Spec) error
	determineBuildNumber(spec repository.Spec) (string, error)
}

// Manager holds the behavior shared by every source code manager.
type Manager struct {
	logger  *zap.Logger
	git     *gitrunner.Runner
	options Options
	layout  layout

	specMutex sync.Mutex
	specs     map[string]repository.Spec
}

func newManager(logger *zap.Logger, git *gitrunner.Runner, options Options, sourceLayout layout) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(options.UpstreamOwner) == 0 {
		options.UpstreamOwner = defaultUpstreamOwnerConstant
	}
	if options.MaxThreads <= 0 {
		options.MaxThreads = DefaultMaxThreads
	}
	return &Manager{logger: logger, git: git, options: options, layout: sourceLayout, specs: map[string]repository.Spec{}}
}

// Git returns the runner used for every git operation.
func (manager *Manager) Git() *gitrunner.Runner {
	return manager.git
}

// Options returns the manager options.
func (manager *Manager) Options() Options {
	return manager.options
}

// RepositorySpec returns the spec for name, making it on first use.
func (manager *Manager) RepositorySpec(name string) (repository.Spec, error) {
	manager.specMutex.Lock()
	defer manager.specMutex.Unlock()

	if spec, cached := manager.specs[name]; cached {
		return spec, nil
	}
	spec, specError := manager.MakeRepositorySpec(name, SpecOverrides{})
	if specError != nil {
		return repository.Spec{}, specError
	}
	manager.specs[name] = spec
	return spec, nil
}

// MakeRepositorySpec builds a spec for name. An existing clone must already point at the expected origin.
func (manager *Manager) MakeRepositorySpec(name string, overrides SpecOverrides) (repository.Spec, error) {
	gitDir := overrides.GitDir
	if len(gitDir) == 0 {
		gitDir = filepath.Join(manager.options.RootPath, name)
	}

	var origin string
	if overrides.Origin != nil {
		origin = *overrides.Origin
	} else {
		determined, originError := manager.layout.determineOrigin(name)
		if originError != nil {
			return repository.Spec{}, originError
		}
		origin = determined
	}

	if directoryExists(gitDir) {
		manager.logger.Info(confirmingExistingMessageConstant, zap.String(logFieldGitDirConstant, gitDir))
		existing, existingError := manager.git.DetermineGitRepositorySpec(gitDir)
		if existingError != nil {
			return repository.Spec{}, existingError
		}
		if !gitrepo.IsSameRepository(existing.Origin, origin) {
			return repository.Spec{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(originMismatchTemplateConstant, gitDir, existing.Origin, origin), nil)
		}
	}

	upstream := ""
	if overrides.Upstream != nil {
		upstream = *overrides.Upstream
	} else {
		upstream = manager.layout.determineUpstream(name)
	}

	commitID := overrides.CommitID
	if len(commitID) == 0 {
		commitID = manager.layout.determineCommitID(name)
	}

	return repository.Spec{
		Name:     name,
		GitDir:   gitDir,
		Origin:   origin,
		Upstream: upstream,
		CommitID: commitID,
		Branch:   overrides.Branch,
	}, nil
}

// DetermineBuildNumber returns the build number artifacts of spec are published under.
func (manager *Manager) DetermineBuildNumber(spec repository.Spec) (string, error) {
	return manager.layout.determineBuildNumber(spec)
}

// EnsureLocalRepository clones spec when it is missing, or refreshes and verifies an existing clone.
func (manager *Manager) EnsureLocalRepository(executionContext context.Context, spec repository.Spec) error {
	if directoryExists(spec.GitDir) {
		if ensureError := manager.layout.ensureRepository(executionContext, spec); ensureError != nil {
			return ensureError
		}
		return manager.layout.checkRepositoryIsCurrent(spec)
	}
	return manager.layout.ensureGitPath(executionContext, spec)
}

// RefreshSourceInfo summarizes spec and caches the result with its build number under the output directory.
// A configured build number takes precedence over buildNumber.
func (manager *Manager) RefreshSourceInfo(executionContext context.Context, spec repository.Spec, buildNumber string) (repository.SourceInfo, error) {
	summary, summaryError := manager.git.CollectRepositorySummary(executionContext, spec.GitDir, "")
	if summaryError != nil {
		return repository.SourceInfo{}, summaryError
	}
	if len(manager.options.BuildNumber) > 0 {
		buildNumber = manager.options.BuildNumber
	}
	info := repository.SourceInfo{BuildNumber: buildNumber, Summary: summary}

	cachePath := manager.SourceInfoPath(spec.Name)
	manager.logger.Debug(
		refreshingSourceInfoMessageConstant,
		zap.String(logFieldRepositoryConstant, spec.Name),
		zap.String(logFieldPathConstant, cachePath),
		zap.String(logFieldBuildNumberConstant, buildNumber),
	)
	content, marshalError := repository.MarshalSourceInfo(info)
	if marshalError != nil {
		return repository.SourceInfo{}, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(writeSourceInfoTemplateConstant, cachePath), marshalError)
	}
	if writeError := writeFile(cachePath, content); writeError != nil {
		return repository.SourceInfo{}, buildtoolerrors.NewConfigError(fmt.Sprintf(writeSourceInfoTemplateConstant, cachePath), writeError)
	}
	return info, nil
}

// SourceInfoPath is where RefreshSourceInfo caches the source info of the named repository.
func (manager *Manager) SourceInfoPath(name string) string {
	return filepath.Join(manager.options.OutputDir, sourceInfoDirectoryConstant, name+sourceInfoFileSuffixConstant)
}

// ForeachSourceRepository calls work for every spec on up to MaxThreads goroutines and maps names to results.
// The first failure is returned and the partial results are discarded.
func (manager *Manager) ForeachSourceRepository(executionContext context.Context, specs []repository.Spec, work func(context.Context, repository.Spec) (any, error)) (map[string]any, error) {
	results := make(map[string]any, len(specs))
	if len(specs) == 0 {
		return results, nil
	}

	limit := manager.options.MaxThreads
	if limit > len(specs) {
		limit = len(specs)
	}
	manager.logger.Info(mappingRepositoriesMessageConstant, zap.Int(logFieldCountConstant, len(specs)))

	var resultsMutex sync.Mutex
	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(limit)
	for _, spec := range specs {
		group.Go(func() error {
			result, workError := work(groupContext, spec)
			if workError != nil {
				return workError
			}
			resultsMutex.Lock()
			results[spec.Name] = result
			resultsMutex.Unlock()
			return nil
		})
	}
	if waitError := group.Wait(); waitError != nil {
		return nil, waitError
	}
	manager.logger.Info(finishedMappingMessageConstant)
	return results, nil
}

// PushToOriginIfNotUpstream pushes branch to origin unless origin is the upstream or there is no upstream.
func (manager *Manager) PushToOriginIfNotUpstream(executionContext context.Context, spec repository.Spec, branch string) error {
	if len(spec.Upstream) == 0 {
		manager.logger.Warn(skipPushNoUpstreamMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name))
		return nil
	}
	if spec.Origin == spec.Upstream {
		manager.logger.Warn(skipPushIsUpstreamMessageConstant, zap.String(logFieldRepositoryConstant, spec.Name))
		return nil
	}
	return manager.git.PushBranchToOrigin(executionContext, spec.GitDir, branch, false)
}

func (manager *Manager) defaultUpstream(name string) string {
	owner := manager.options.UpstreamOwner
	if name == citestRepositoryNameConstant {
		owner = citestUpstreamOwnerConstant
	}
	return fmt.Sprintf(upstreamURLTemplateConstant, owner, name)
}

func directoryExists(path string) bool {
	info, statError := os.Stat(path)
	return statError == nil && info.IsDir()
}

func writeFile(path string, content []byte) error {
	if mkdirError := os.MkdirAll(filepath.Dir(path), sourceInfoDirPermissionsConstant); mkdirError != nil {
		return mkdirError
	}
	return os.WriteFile(path, content, sourceInfoFilePermissionsConstant)
}
