package processor

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/repository"
)

const (
	// MaxConcurrencyCap bounds the worker pool regardless of the configured thread count.
	MaxConcurrencyCap = 64

	repositoryListSeparatorConstant     = ","
	skippingRepositoryMessageConstant   = "skipping repository"
	selectedRepositoriesMessageConstant = "selected repositories"
	logFieldRepositoryConstant          = "repository"
	logFieldRepositoriesConstant        = "repositories"
	logFieldWorkersConstant             = "workers"
)

// SourceManager resolves repository names and makes sure their clones exist.
type SourceManager interface {
	RepositorySpec(name string) (repository.Spec, error)
	EnsureLocalRepository(executionContext context.Context, spec repository.Spec) error
}

// RepositoryCommand is the work a command performs for one repository.
type RepositoryCommand interface {
	ProcessRepository(executionContext context.Context, spec repository.Spec) (any, error)
}

// RepositorySkipper is implemented by commands that can skip a repository before its clone is touched.
type RepositorySkipper interface {
	ShouldSkipRepository(executionContext context.Context, spec repository.Spec) (bool, error)
}

// Preprocessor is implemented by commands that prepare once before any repository is processed.
type Preprocessor interface {
	Preprocess(executionContext context.Context) error
}

// Postprocessor is implemented by commands that combine the per-repository results.
// Its return value becomes the result of the command.
type Postprocessor interface {
	Postprocess(executionContext context.Context, results map[string]any) (any, error)
}

// Options select which repositories are processed and how many at once.
type Options struct {
	OnlyRepositories    []string
	ExcludeRepositories []string
	OneAtATime          bool
	MaxThreads          int
}

// RepositoryProcessor runs a RepositoryCommand over a set of repositories.
type RepositoryProcessor struct {
	*CommandProcessor
	source     SourceManager
	command    RepositoryCommand
	candidates []string
	options    Options
}

// NewRepositoryProcessor constructs a RepositoryProcessor over the candidate repository names.
func NewRepositoryProcessor(logger *zap.Logger, recorder Recorder, name string, source SourceManager, command RepositoryCommand, candidates []string, options Options) *RepositoryProcessor {
	return &RepositoryProcessor{
		CommandProcessor: NewCommandProcessor(logger, recorder, name),
		source:           source,
		command:          command,
		candidates:       append([]string{}, candidates...),
		options:          options,
	}
}

// SplitRepositoryList splits a comma separated list of repository names, dropping blanks.
func SplitRepositoryList(list string) []string {
	names := make([]string, 0)
	for _, name := range strings.Split(list, repositoryListSeparatorConstant) {
		if trimmed := strings.TrimSpace(name); len(trimmed) > 0 {
			names = append(names, trimmed)
		}
	}
	return names
}

// FilterRepositoryNames keeps the candidates named by only, when only is not empty,
// then removes every name in exclude. Candidate order is preserved and duplicates are dropped.
func FilterRepositoryNames(candidates []string, only []string, exclude []string) []string {
	allowed := toSet(only)
	denied := toSet(exclude)
	seen := map[string]struct{}{}
	selected := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if _, duplicate := seen[name]; duplicate {
			continue
		}
		seen[name] = struct{}{}
		if len(allowed) > 0 {
			if _, keep := allowed[name]; !keep {
				continue
			}
		}
		if _, drop := denied[name]; drop {
			continue
		}
		selected = append(selected, name)
	}
	return selected
}

// Workers returns the size of the worker pool used for count repositories.
func (processor *RepositoryProcessor) Workers(count int) int {
	if processor.options.OneAtATime {
		return 1
	}
	workers := processor.options.MaxThreads
	if workers <= 0 || workers > MaxConcurrencyCap {
		workers = MaxConcurrencyCap
	}
	if count > 0 && workers > count {
		workers = count
	}
	return workers
}

// SelectedRepositoryNames returns the candidates that survive the allow and deny lists.
func (processor *RepositoryProcessor) SelectedRepositoryNames() []string {
	return FilterRepositoryNames(processor.candidates, processor.options.OnlyRepositories, processor.options.ExcludeRepositories)
}

// Run processes every selected repository and returns the postprocessed result,
// or the name to result mapping when the command does not postprocess.
func (processor *RepositoryProcessor) Run(executionContext context.Context) (any, error) {
	var result any
	runError := processor.CommandProcessor.Run(executionContext, func(runContext context.Context) error {
		commandResult, commandError := processor.run(runContext)
		result = commandResult
		return commandError
	})
	if runError != nil {
		return nil, runError
	}
	return result, nil
}

func (processor *RepositoryProcessor) run(executionContext context.Context) (any, error) {
	if preprocessor, implemented := processor.command.(Preprocessor); implemented {
		if preprocessError := preprocessor.Preprocess(executionContext); preprocessError != nil {
			return nil, preprocessError
		}
	}

	names := processor.SelectedRepositoryNames()
	specs := make([]repository.Spec, 0, len(names))
	for _, name := range names {
		spec, specError := processor.source.RepositorySpec(name)
		if specError != nil {
			return nil, specError
		}
		specs = append(specs, spec)
	}

	results, mapError := processor.processRepositories(executionContext, specs)
	if mapError != nil {
		return nil, mapError
	}

	if postprocessor, implemented := processor.command.(Postprocessor); implemented {
		return postprocessor.Postprocess(executionContext, results)
	}
	return results, nil
}

func (processor *RepositoryProcessor) processRepositories(executionContext context.Context, specs []repository.Spec) (map[string]any, error) {
	results := make(map[string]any, len(specs))
	if len(specs) == 0 {
		return results, nil
	}

	workers := processor.Workers(len(specs))
	processor.logger.Info(
		selectedRepositoriesMessageConstant,
		zap.String(logFieldCommandConstant, processor.name),
		zap.Int(logFieldRepositoriesConstant, len(specs)),
		zap.Int(logFieldWorkersConstant, workers),
	)

	var resultsMutex sync.Mutex
	group, groupContext := errgroup.WithContext(executionContext)
	group.SetLimit(workers)
	for _, spec := range specs {
		group.Go(func() error {
			result, processError := processor.processRepository(groupContext, spec)
			if processError != nil {
				return processError
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
	return results, nil
}

func (processor *RepositoryProcessor) processRepository(executionContext context.Context, spec repository.Spec) (any, error) {
	labels := map[string]string{CommandLabel: processor.name, RepositoryLabel: spec.Name}

	var result any
	timedError := processor.recorder.TimeCall(RunRepositoryCommandTimerName, labels, func() error {
		if skipper, implemented := processor.command.(RepositorySkipper); implemented {
			skip, skipError := skipper.ShouldSkipRepository(executionContext, spec)
			if skipError != nil {
				return skipError
			}
			if skip {
				processor.logger.Info(skippingRepositoryMessageConstant, zap.String(logFieldCommandConstant, processor.name), zap.String(logFieldRepositoryConstant, spec.Name))
				processor.recorder.IncrementCounter(SkipRepositoryCommandCounterName, labels)
				return nil
			}
		}
		if ensureError := processor.source.EnsureLocalRepository(executionContext, spec); ensureError != nil {
			return ensureError
		}
		repositoryResult, processError := processor.command.ProcessRepository(executionContext, spec)
		result = repositoryResult
		return processError
	})
	if timedError != nil {
		return nil, buildtoolerrors.Report(processor.logger, processor.recorder, processor.name+"/"+spec.Name, timedError)
	}
	return result, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
