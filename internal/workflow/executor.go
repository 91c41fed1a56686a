package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/dependencies"
)

const (
	workflowExecutionErrorTemplateConstant = "workflow operation %s failed: %w"
	runningOperationMessageConstant        = "running workflow operation"
	finishedOperationMessageConstant       = "finished workflow operation"
	logFieldOperationConstant              = "operation"
	logFieldStepConstant                   = "step"
)

// Executor runs workflow operations in order, stopping at the first failure.
type Executor struct {
	operations []Operation
}

// NewExecutor constructs an Executor instance.
func NewExecutor(operations []Operation) *Executor {
	return &Executor{operations: append([]Operation{}, operations...)}
}

// Execute runs every operation against environment and returns the state they left.
// The error of a failed operation is wrapped with its name.
func (executor *Executor) Execute(executionContext context.Context, environment dependencies.Environment) (*State, error) {
	logger := environment.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	state := &State{}
	for operationIndex, operation := range executor.operations {
		if operation == nil {
			continue
		}
		logger.Info(runningOperationMessageConstant, zap.String(logFieldOperationConstant, operation.Name()), zap.Int(logFieldStepConstant, operationIndex+1))
		if executeError := operation.Execute(executionContext, environment, state); executeError != nil {
			return state, fmt.Errorf(workflowExecutionErrorTemplateConstant, operation.Name(), executeError)
		}
		state.Completed = append(state.Completed, operation.Name())
		logger.Debug(finishedOperationMessageConstant, zap.String(logFieldOperationConstant, operation.Name()))
	}
	return state, nil
}
