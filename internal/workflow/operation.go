package workflow

import (
	"context"

	"github.com/spinnaker/buildtool/internal/dependencies"
)

// Operation coordinates a single workflow step.
type Operation interface {
	Name() string
	Execute(executionContext context.Context, environment dependencies.Environment, state *State) error
}

// RunFunc runs one release command against an environment.
type RunFunc func(executionContext context.Context, environment dependencies.Environment) error

// State records the progress of a workflow.
type State struct {
	Completed []string
}

type stepOperation struct {
	step StepConfiguration
	run  RunFunc
}

// NewStepOperation binds step to the release command run.
func NewStepOperation(step StepConfiguration, run RunFunc) Operation {
	return &stepOperation{step: step, run: run}
}

func (operation *stepOperation) Name() string {
	return string(operation.step.Operation)
}

func (operation *stepOperation) Execute(executionContext context.Context, environment dependencies.Environment, state *State) error {
	configuration, applyError := ApplyStepOptions(environment.Configuration, operation.step.Options)
	if applyError != nil {
		return applyError
	}
	stepEnvironment, environmentError := environment.WithConfiguration(configuration)
	if environmentError != nil {
		return environmentError
	}
	return operation.run(executionContext, stepEnvironment)
}
