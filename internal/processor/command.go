package processor

import (
	"context"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	// RunCommandTimerName times every command invocation.
	RunCommandTimerName = "RunCommand"
	// RunRepositoryCommandTimerName times the work done for one repository.
	RunRepositoryCommandTimerName = "RunRepositoryCommand"
	// SkipRepositoryCommandCounterName counts repositories a command chose to skip.
	SkipRepositoryCommandCounterName = "SkipRepositoryCommand"

	// CommandLabel names the command in metric labels.
	CommandLabel = "command"
	// RepositoryLabel names the repository in metric labels.
	RepositoryLabel = "repository"

	startingCommandMessageConstant = "starting command"
	finishedCommandMessageConstant = "finished command"
	logFieldCommandConstant        = "command"
)

// Recorder is the subset of the metrics registry a processor reports through.
type Recorder interface {
	IncrementCounter(name string, labels map[string]string)
	TimeCall(name string, labels map[string]string, call func() error) error
}

type discardingRecorder struct{}

func (discardingRecorder) IncrementCounter(name string, labels map[string]string) {}

func (discardingRecorder) TimeCall(name string, labels map[string]string, call func() error) error {
	return call()
}

// CommandProcessor runs a command that is not tied to individual repositories.
type CommandProcessor struct {
	logger   *zap.Logger
	recorder Recorder
	name     string
}

// NewCommandProcessor constructs a CommandProcessor for the named command.
func NewCommandProcessor(logger *zap.Logger, recorder Recorder, name string) *CommandProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = discardingRecorder{}
	}
	return &CommandProcessor{logger: logger, recorder: recorder, name: name}
}

// Name returns the command name used in logs and metric labels.
func (processor *CommandProcessor) Name() string {
	return processor.name
}

// Run times work as RunCommand and reports its failure once.
func (processor *CommandProcessor) Run(executionContext context.Context, work func(context.Context) error) error {
	processor.logger.Debug(startingCommandMessageConstant, zap.String(logFieldCommandConstant, processor.name))
	runError := processor.recorder.TimeCall(RunCommandTimerName, map[string]string{CommandLabel: processor.name}, func() error {
		return work(executionContext)
	})
	if runError != nil {
		return buildtoolerrors.Report(processor.logger, processor.recorder, processor.name, runError)
	}
	processor.logger.Debug(finishedCommandMessageConstant, zap.String(logFieldCommandConstant, processor.name))
	return nil
}
