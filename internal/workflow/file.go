package workflow

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/processor"
)

const (
	// RunWorkflowCommandName names the run_workflow command.
	RunWorkflowCommandName = "run_workflow"

	definitionPathRequiredMessageConstant = "workflow definition path required"
	definitionReadTemplateConstant        = "unable to read workflow definition %s"
	definitionParseTemplateConstant       = "unable to parse workflow definition %s"
	definitionEmptyTemplateConstant       = "workflow definition %s declares no steps"
	missingOperationTemplateConstant      = "workflow definition %s step %d has no operation"
)

// Definition is a workflow file: release commands run in order, each with its own option overrides.
type Definition struct {
	Steps []StepConfiguration `yaml:"steps"`
}

// LoadDefinition reads a workflow definition. The steps may be listed at the top level
// or nested under a "workflow" key.
func LoadDefinition(filePath string) (Definition, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Definition{}, buildtoolerrors.NewConfigError(definitionPathRequiredMessageConstant, nil)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Definition{}, buildtoolerrors.NewConfigError(fmt.Sprintf(definitionReadTemplateConstant, trimmedPath), readError)
	}

	var definition Definition
	if unmarshalError := yaml.Unmarshal(contentBytes, &definition); unmarshalError != nil {
		return Definition{}, buildtoolerrors.NewConfigError(fmt.Sprintf(definitionParseTemplateConstant, trimmedPath), unmarshalError)
	}
	if len(definition.Steps) == 0 {
		var wrapper struct {
			Workflow Definition `yaml:"workflow"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError == nil {
			definition = wrapper.Workflow
		}
	}

	if len(definition.Steps) == 0 {
		return Definition{}, buildtoolerrors.NewConfigError(fmt.Sprintf(definitionEmptyTemplateConstant, trimmedPath), nil)
	}
	for stepIndex, step := range definition.Steps {
		if len(strings.TrimSpace(string(step.Operation))) == 0 {
			return Definition{}, buildtoolerrors.NewConfigError(fmt.Sprintf(missingOperationTemplateConstant, trimmedPath, stepIndex+1), nil)
		}
	}
	return definition, nil
}

// RunDefinition runs every step of definition against environment and returns the completed step names.
func RunDefinition(executionContext context.Context, environment dependencies.Environment, definition Definition) ([]string, error) {
	return runDefinition(executionContext, environment, definition, ReleaseOperations)
}

func runDefinition(executionContext context.Context, environment dependencies.Environment, definition Definition, operations map[OperationType]RunFunc) ([]string, error) {
	bound, bindError := BuildOperations(definition.Steps, operations)
	if bindError != nil {
		return nil, bindError
	}

	var completed []string
	runError := processor.NewCommandProcessor(environment.Logger, environment.Registry, RunWorkflowCommandName).Run(executionContext, func(runContext context.Context) error {
		state, executeError := NewExecutor(bound).Execute(runContext, environment)
		if state != nil {
			completed = state.Completed
		}
		return executeError
	})
	return completed, runError
}
