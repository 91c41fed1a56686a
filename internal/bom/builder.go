package bom

import (
	_ "embed"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/gitrepo"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	// UpdateBomEntryCounterName counts every service considered for a new BOM.
	UpdateBomEntryCounterName = "UpdateBomEntry"

	timestampLayoutConstant            = "2006-01-02 15:04:05"
	dependenciesPathPurposeConstant    = "bom_dependencies_path"
	missingDependenciesMessageConstant = "No BOM dependencies found"
	readDependenciesTemplateConstant   = "unable to read BOM dependencies %s"
	parseDependenciesTemplateConstant  = "unable to parse BOM dependencies %s"
	reasonSameCommitConstant           = "same commit"
	reasonDifferentVersionConstant     = "different version"
	reasonDifferentCommitConstant      = "different commit"
	labelRepositoryConstant            = "repository"
	labelBranchConstant                = "branch"
	labelUpdatedConstant               = "updated"
	labelReasonConstant                = "reason"
	keptEntryMessageConstant           = "commit has not changed, keeping existing entry"
	versionChangedMessageConstant      = "version changed even though commit has not"
	loadingDependenciesMessageConstant = "loading BOM dependencies"
	diffBaseNameConstant               = "base"
	diffBuiltNameConstant              = "built"
	diffContextLinesConstant           = 3
	logFieldServiceConstant            = "service"
	logFieldVersionConstant            = "version"
	logFieldPathConstant               = "path"
)

//go:embed default_dependencies.yml
var defaultDependenciesContent []byte

// CounterRecorder is the subset of the metrics registry the builder reports to.
type CounterRecorder interface {
	IncrementCounter(name string, labels map[string]string)
}

// BuilderOptions configure a Builder.
type BuilderOptions struct {
	Branch           string
	BuildNumber      string
	DependenciesPath string
	// ArtifactSources supplies every artifact source except GitPrefix, which is derived.
	ArtifactSources ArtifactSources
	Clock           func() time.Time
}

// Builder collects one entry per service and produces a BOM. AddRepository is safe for concurrent use.
type Builder struct {
	logger   *zap.Logger
	recorder CounterRecorder
	options  BuilderOptions
	base     *Document

	mutex    sync.Mutex
	services map[string]ServiceEntry
	origins  map[string]string
	order    []string
}

// NewBuilder constructs a Builder. A nil base starts from an empty BOM.
func NewBuilder(logger *zap.Logger, recorder CounterRecorder, options BuilderOptions, base *Document) (*Builder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(options.DependenciesPath) > 0 {
		if existsError := buildtoolerrors.CheckPathExists(options.DependenciesPath, dependenciesPathPurposeConstant); existsError != nil {
			return nil, existsError
		}
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	return &Builder{
		logger:   logger,
		recorder: recorder,
		options:  options,
		base:     base,
		services: map[string]ServiceEntry{},
		origins:  map[string]string{},
	}, nil
}

// Base returns the document the builder refreshes, which may be nil.
func (builder *Builder) Base() *Document {
	return builder.base
}

// AddRepository records the BOM entry for a repository from its source info.
func (builder *Builder) AddRepository(spec repository.Spec, info repository.SourceInfo) {
	entry := ServiceEntry{Commit: info.Summary.CommitID, Version: info.BuildVersion()}
	serviceName := repository.RepositoryNameToServiceName(spec.Name)

	builder.mutex.Lock()
	defer builder.mutex.Unlock()

	builder.record(serviceName, entry, spec.Origin)
	if serviceName == repository.MonitoringServiceName {
		builder.record(repository.MonitoringThirdPartyServiceName, entry, spec.Origin)
	}
}

func (builder *Builder) record(serviceName string, entry ServiceEntry, origin string) {
	if _, seen := builder.services[serviceName]; !seen {
		builder.order = append(builder.order, serviceName)
	}
	builder.services[serviceName] = entry
	builder.origins[serviceName] = origin
}

// Build produces the new BOM. It returns the base document itself when nothing changed.
func (builder *Builder) Build() (*Document, error) {
	dependencies, dependenciesError := builder.resolveDependencies()
	if dependenciesError != nil {
		return nil, dependenciesError
	}

	base := builder.base
	if base == nil {
		base = &Document{}
	}

	builder.mutex.Lock()
	defer builder.mutex.Unlock()

	defaultPrefix := base.ArtifactSources.GitPrefix
	if len(defaultPrefix) == 0 {
		defaultPrefix = builder.mostCommonPrefix()
	}

	artifactSources := builder.options.ArtifactSources
	artifactSources.GitPrefix = defaultPrefix

	services := base.Clone().Services
	if services == nil {
		services = map[string]*ServiceEntry{}
	}

	changed := false
	for _, serviceName := range builder.sortedServiceNames() {
		entry := builder.services[serviceName]
		if sourcePrefix := gitrepo.GitPrefix(builder.origins[serviceName]); sourcePrefix != defaultPrefix {
			entry.GitPrefix = sourcePrefix
		}

		labels := map[string]string{
			labelRepositoryConstant: serviceName,
			labelBranchConstant:     builder.options.Branch,
			labelUpdatedConstant:    strconv.FormatBool(true),
		}
		existing := services[serviceName]
		if existing != nil && existing.Commit == entry.Commit {
			if existing.SemverPart() == entry.SemverPart() {
				builder.logger.Debug(keptEntryMessageConstant, zap.String(logFieldServiceConstant, serviceName), zap.String(logFieldVersionConstant, existing.Version))
				labels[labelUpdatedConstant] = strconv.FormatBool(false)
				labels[labelReasonConstant] = reasonSameCommitConstant
				builder.count(labels)
				continue
			}
			labels[labelReasonConstant] = reasonDifferentVersionConstant
			builder.logger.Debug(versionChangedMessageConstant, zap.String(logFieldServiceConstant, serviceName), zap.String(logFieldVersionConstant, entry.Version))
		} else {
			labels[labelReasonConstant] = reasonDifferentCommitConstant
		}
		builder.count(labels)

		changed = true
		entryCopy := entry
		services[serviceName] = &entryCopy
	}

	if base.ArtifactSources != artifactSources || !reflect.DeepEqual(base.Dependencies, dependencies) {
		changed = true
	}
	if !changed && builder.base != nil {
		return builder.base, nil
	}

	return &Document{
		ArtifactSources: artifactSources,
		Dependencies:    dependencies,
		Services:        services,
		Version:         builder.options.BuildNumber,
		Timestamp:       builder.options.Clock().UTC().Format(timestampLayoutConstant),
	}, nil
}

func (builder *Builder) resolveDependencies() (map[string]any, error) {
	var dependencies map[string]any
	switch {
	case len(builder.options.DependenciesPath) > 0:
		builder.logger.Debug(loadingDependenciesMessageConstant, zap.String(logFieldPathConstant, builder.options.DependenciesPath))
		content, readError := os.ReadFile(builder.options.DependenciesPath)
		if readError != nil {
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(readDependenciesTemplateConstant, builder.options.DependenciesPath), readError)
		}
		if decodeError := yaml.Unmarshal(content, &dependencies); decodeError != nil {
			return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(parseDependenciesTemplateConstant, builder.options.DependenciesPath), decodeError)
		}
	case builder.base == nil:
		if decodeError := yaml.Unmarshal(defaultDependenciesContent, &dependencies); decodeError != nil {
			return nil, buildtoolerrors.NewUnexpectedError(fmt.Sprintf(parseDependenciesTemplateConstant, dependenciesPathPurposeConstant), decodeError)
		}
	}
	if len(dependencies) == 0 && builder.base != nil {
		dependencies = builder.base.Clone().Dependencies
	}
	if len(dependencies) == 0 {
		return nil, buildtoolerrors.NewConfigError(missingDependenciesMessageConstant, nil)
	}
	return dependencies, nil
}

// mostCommonPrefix picks the git prefix shared by the most recorded origins.
// Ties go to the prefix that was recorded first.
func (builder *Builder) mostCommonPrefix() string {
	counts := map[string]int{}
	prefixOrder := make([]string, 0)
	for _, serviceName := range builder.order {
		prefix := gitrepo.GitPrefix(builder.origins[serviceName])
		if _, seen := counts[prefix]; !seen {
			prefixOrder = append(prefixOrder, prefix)
		}
		counts[prefix]++
	}

	mostCommon := ""
	maximum := 0
	for _, prefix := range prefixOrder {
		if counts[prefix] > maximum {
			mostCommon = prefix
			maximum = counts[prefix]
		}
	}
	return mostCommon
}

func (builder *Builder) sortedServiceNames() []string {
	names := append([]string{}, builder.order...)
	sort.Strings(names)
	return names
}

func (builder *Builder) count(labels map[string]string) {
	if builder.recorder == nil {
		return
	}
	builder.recorder.IncrementCounter(UpdateBomEntryCounterName, labels)
}

// Diff renders a unified diff between two BOMs for diagnostics.
func Diff(base *Document, built *Document) (string, error) {
	baseText := []byte{}
	if base != nil {
		rendered, renderError := MarshalDocument(base)
		if renderError != nil {
			return "", renderError
		}
		baseText = rendered
	}
	builtText, renderError := MarshalDocument(built)
	if renderError != nil {
		return "", renderError
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(baseText)),
		B:        difflib.SplitLines(string(builtText)),
		FromFile: diffBaseNameConstant,
		ToFile:   diffBuiltNameConstant,
		Context:  diffContextLinesConstant,
	})
}
