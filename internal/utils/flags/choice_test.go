package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatChoiceUsage(t *testing.T) {
	testCases := []struct {
		name          string
		defaultChoice string
		choices       []string
		description   string
		expected      string
	}{
		{
			name:          "DefaultHighlighted",
			defaultChoice: "info",
			choices:       []string{"debug", "info", "warn", "error"},
			description:   "Logging level.",
			expected:      "`<debug|INFO|warn|error>` Logging level.",
		},
		{
			name:          "NoDescription",
			defaultChoice: "structured",
			choices:       []string{"structured", "console"},
			expected:      "`<STRUCTURED|console>`",
		},
		{
			name:          "RepeatsAndBlanksDropped",
			defaultChoice: "File",
			choices:       []string{" file ", "FILE", "", "prometheus"},
			description:   " Metrics backend. ",
			expected:      "`<FILE|prometheus>` Metrics backend.",
		},
		{
			name:          "UnknownDefault",
			defaultChoice: "influxdb",
			choices:       []string{"file", "prometheus"},
			description:   "Metrics backend.",
			expected:      "`<file|prometheus>` Metrics backend.",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expected, FormatChoiceUsage(testCase.defaultChoice, testCase.choices, testCase.description))
		})
	}
}
