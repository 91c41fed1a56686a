// Package flags binds command options to Cobra flags that override configured values only when set.
package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// OptionKind selects how an option flag parses its value.
type OptionKind int

// Supported option kinds.
const (
	OptionKindString OptionKind = iota
	OptionKindInteger
	OptionKindToggle
)

// OptionDefinition describes one option flag.
type OptionDefinition struct {
	Name  string
	Usage string
	Kind  OptionKind
	// ToggleDefault is only displayed in usage; the configured value applies until the flag is set.
	ToggleDefault bool
}

// BindOptionFlags registers every definition on the command's local flags, skipping names already bound.
func BindOptionFlags(command *cobra.Command, definitions []OptionDefinition) {
	if command == nil {
		return
	}
	flagSet := command.Flags()
	for _, definition := range definitions {
		if len(definition.Name) == 0 || flagSet.Lookup(definition.Name) != nil {
			continue
		}
		switch definition.Kind {
		case OptionKindToggle:
			AddToggleFlag(flagSet, nil, definition.Name, definition.ToggleDefault, definition.Usage)
		case OptionKindInteger:
			flagSet.Int(definition.Name, 0, definition.Usage)
		default:
			flagSet.String(definition.Name, "", definition.Usage)
		}
	}
}

// ChangedOptionValues returns the textual value of every flag set on the command line, keyed by flag name.
func ChangedOptionValues(command *cobra.Command) map[string]string {
	values := map[string]string{}
	if command == nil {
		return values
	}
	command.Flags().Visit(func(flag *pflag.Flag) {
		values[flag.Name] = flag.Value.String()
	})
	return values
}
