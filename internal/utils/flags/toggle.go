package flags

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

const (
	toggleTrueValueConstant          = "true"
	toggleFalseValueConstant         = "false"
	toggleTypeConstant               = "bool"
	toggleParseErrorTemplateConstant = "invalid toggle value %q"
	toggleTruePlaceholderConstant    = "<YES|no>"
	toggleFalsePlaceholderConstant   = "<yes|NO>"
	longFlagPrefixConstant           = "--"
	flagValueSeparatorConstant       = "="
)

var (
	toggleLiterals = map[string]bool{
		"true": true, "yes": true, "on": true, "1": true, "t": true, "y": true,
		"false": false, "no": false, "off": false, "0": false, "f": false, "n": false,
	}

	toggleNamesMutex sync.RWMutex
	toggleNames      = map[string]struct{}{}
)

// AddToggleFlag registers a boolean flag accepting yes/no style values. A bare flag means true.
func AddToggleFlag(flagSet *pflag.FlagSet, target *bool, name string, defaultValue bool, usage string) {
	if flagSet == nil || len(name) == 0 {
		return
	}

	if target != nil {
		*target = defaultValue
	}
	flagSet.Var(&toggleValue{current: defaultValue, target: target}, name, usage)

	flag := flagSet.Lookup(name)
	flag.NoOptDefVal = toggleTrueValueConstant
	placeholder := toggleFalsePlaceholderConstant
	if defaultValue {
		placeholder = toggleTruePlaceholderConstant
	}
	flag.Usage = strings.TrimSpace(fmt.Sprintf("`%s` %s", placeholder, strings.TrimSpace(usage)))

	toggleNamesMutex.Lock()
	toggleNames[name] = struct{}{}
	toggleNamesMutex.Unlock()
}

// NormalizeToggleArguments joins "--toggle value" into "--toggle=value" so a bare toggle
// followed by its value parses as one flag.
func NormalizeToggleArguments(arguments []string) []string {
	normalized := make([]string, 0, len(arguments))
	for index := 0; index < len(arguments); index++ {
		current := arguments[index]
		if current == longFlagPrefixConstant {
			return append(normalized, arguments[index:]...)
		}
		if isBareToggle(current) && index+1 < len(arguments) {
			if _, isLiteral := toggleLiterals[strings.ToLower(arguments[index+1])]; isLiteral {
				normalized = append(normalized, current+flagValueSeparatorConstant+arguments[index+1])
				index++
				continue
			}
		}
		normalized = append(normalized, current)
	}
	return normalized
}

func isBareToggle(argument string) bool {
	if !strings.HasPrefix(argument, longFlagPrefixConstant) || strings.Contains(argument, flagValueSeparatorConstant) {
		return false
	}
	toggleNamesMutex.RLock()
	defer toggleNamesMutex.RUnlock()
	_, registered := toggleNames[strings.TrimPrefix(argument, longFlagPrefixConstant)]
	return registered
}

type toggleValue struct {
	current bool
	target  *bool
}

func (value *toggleValue) Set(rawValue string) error {
	normalized := strings.ToLower(strings.TrimSpace(rawValue))
	if len(normalized) == 0 {
		normalized = toggleTrueValueConstant
	}
	parsed, known := toggleLiterals[normalized]
	if !known {
		return fmt.Errorf(toggleParseErrorTemplateConstant, rawValue)
	}
	value.current = parsed
	if value.target != nil {
		*value.target = parsed
	}
	return nil
}

func (value *toggleValue) String() string {
	if value != nil && value.current {
		return toggleTrueValueConstant
	}
	return toggleFalseValueConstant
}

func (value *toggleValue) Type() string {
	return toggleTypeConstant
}
