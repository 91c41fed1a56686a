package cli

import _ "embed"

// defaultConfigurationContent is the lowest precedence configuration layer.
//
//go:embed default_config.yaml
var defaultConfigurationContent []byte

// EmbeddedDefaultConfiguration returns a copy of the built-in configuration and its format.
func EmbeddedDefaultConfiguration() ([]byte, string) {
	return append([]byte(nil), defaultConfigurationContent...), configurationTypeConstant
}
