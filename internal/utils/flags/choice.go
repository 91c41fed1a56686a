package flags

import "strings"

// FormatChoiceUsage prefixes description with a `<a|B|c>` placeholder listing choices, the
// default upper-cased. Blank and case-insensitively repeated choices are dropped.
func FormatChoiceUsage(defaultChoice string, choices []string, description string) string {
	defaultKey := strings.ToLower(strings.TrimSpace(defaultChoice))
	listed := make([]string, 0, len(choices))
	seen := map[string]bool{}
	for _, choice := range choices {
		choice = strings.TrimSpace(choice)
		key := strings.ToLower(choice)
		if len(key) == 0 || seen[key] {
			continue
		}
		seen[key] = true
		if key == defaultKey {
			choice = strings.ToUpper(choice)
		}
		listed = append(listed, choice)
	}

	usage := "`<" + strings.Join(listed, "|") + ">`"
	if trimmed := strings.TrimSpace(description); len(trimmed) > 0 {
		usage += " " + trimmed
	}
	return usage
}
