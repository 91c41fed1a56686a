package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/workflow"
)

const (
	commandUseConstant                      = workflow.RunWorkflowCommandName + " [definition]"
	commandShortDescriptionConstant         = "Run a workflow definition file"
	commandLongDescriptionConstant          = "run_workflow executes the release commands listed in a YAML definition in order. Each step names an operation and the configuration options it overrides."
	definitionFlagNameConstant              = "definition"
	definitionFlagDescriptionConstant       = "Path to the workflow definition"
	definitionPathRequiredMessageConstant   = "workflow definition path required; provide a positional argument or --definition flag"
	completedStepMessageTemplateConstant    = "COMPLETED: %s\n"
	loadDefinitionErrorTemplateConstant     = "unable to load workflow definition: %w"
	definitionArgumentCountTemplateConstant = "accepts at most 1 definition, received %d"
	conflictingDefinitionsTemplateConstant  = "definition given both as argument %q and flag %q"
	maximumDefinitionArgumentCountConstant  = 1
	definitionArgumentIndexConstant         = 0
)

// CommandBuilder assembles the run_workflow command.
type CommandBuilder struct {
	dependencies.Providers
}

// Build constructs the run_workflow command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args: func(command *cobra.Command, arguments []string) error {
			if len(arguments) > maximumDefinitionArgumentCountConstant {
				return fmt.Errorf(definitionArgumentCountTemplateConstant, len(arguments))
			}
			return nil
		},
		RunE: builder.run,
	}

	command.Flags().String(definitionFlagNameConstant, "", definitionFlagDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	definitionPath, pathError := DetermineDefinitionPath(command, arguments)
	if pathError != nil {
		if helpError := displayCommandHelp(command); helpError != nil {
			return helpError
		}
		return pathError
	}

	definition, loadError := workflow.LoadDefinition(definitionPath)
	if loadError != nil {
		return fmt.Errorf(loadDefinitionErrorTemplateConstant, loadError)
	}

	environment, resolveError := builder.Resolve(command)
	if resolveError != nil {
		return resolveError
	}

	completed, runError := workflow.RunDefinition(command.Context(), environment, definition)
	for _, name := range completed {
		fmt.Fprintf(command.OutOrStdout(), completedStepMessageTemplateConstant, name)
	}
	return runError
}

// DetermineDefinitionPath selects the definition from the positional argument or the --definition flag.
func DetermineDefinitionPath(command *cobra.Command, arguments []string) (string, error) {
	argumentPath := ""
	if len(arguments) > definitionArgumentIndexConstant {
		argumentPath = strings.TrimSpace(arguments[definitionArgumentIndexConstant])
	}

	flagPath := ""
	if command != nil && command.Flags().Lookup(definitionFlagNameConstant) != nil {
		flagValue, _ := command.Flags().GetString(definitionFlagNameConstant)
		flagPath = strings.TrimSpace(flagValue)
	}

	switch {
	case len(argumentPath) > 0 && len(flagPath) > 0 && argumentPath != flagPath:
		return "", fmt.Errorf(conflictingDefinitionsTemplateConstant, argumentPath, flagPath)
	case len(argumentPath) > 0:
		return argumentPath, nil
	case len(flagPath) > 0:
		return flagPath, nil
	default:
		return "", errors.New(definitionPathRequiredMessageConstant)
	}
}

func displayCommandHelp(command *cobra.Command) error {
	if command == nil {
		return nil
	}
	return command.Help()
}
