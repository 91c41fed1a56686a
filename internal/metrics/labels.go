package metrics

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	contextLabelSeparatorConstant       = ","
	labelKeyValueSeparatorConstant      = "="
	labelPairSeparatorConstant          = ","
	invalidContextLabelTemplateConstant = "invalid metrics context label binding %q"
)

var contextLabelPattern = regexp.MustCompile(`^(\w+)=(.*)$`)

// ParseContextLabels converts "name=value,name=value" into a label map.
func ParseContextLabels(bindings string) (map[string]string, error) {
	labels := map[string]string{}
	for _, binding := range strings.Split(bindings, contextLabelSeparatorConstant) {
		trimmedBinding := strings.TrimSpace(binding)
		if len(trimmedBinding) == 0 {
			continue
		}
		matches := contextLabelPattern.FindStringSubmatch(trimmedBinding)
		if matches == nil {
			return nil, fmt.Errorf(invalidContextLabelTemplateConstant, trimmedBinding)
		}
		labels[matches[1]] = matches[2]
	}
	return labels, nil
}

func mergeLabels(base map[string]string, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for name, value := range base {
		merged[name] = value
	}
	for name, value := range overrides {
		merged[name] = value
	}
	return merged
}

func sortedLabelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// labelKey renders labels in a stable order so equal label sets share one instance.
func labelKey(labels map[string]string) string {
	names := sortedLabelNames(labels)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+labelKeyValueSeparatorConstant+labels[name])
	}
	return strings.Join(pairs, labelPairSeparatorConstant)
}
