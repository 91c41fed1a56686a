package utils

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	configurationKeySeparatorConstant          = "."
	environmentKeySeparatorConstant            = "_"
	configurationListSeparatorConstant         = ","
	embeddedConfigurationErrorTemplateConstant = "failed to merge embedded configuration: %w"
	configurationFileErrorTemplateConstant     = "failed to read configuration %s: %w"
	configurationDecodeErrorTemplateConstant   = "failed to parse configuration: %w"
	searchedConfigurationDescriptionConstant   = "from search paths"
)

// ConfigurationLoader layers configuration sources with Viper. Later sources win:
// embedded defaults, explicit default values, the configuration file, then environment variables
// named PREFIX_SECTION_KEY.
type ConfigurationLoader struct {
	configurationName string
	configurationType string
	environmentPrefix string
	searchPaths       []string
	embeddedData      []byte
	embeddedFormat    string
}

// LoadedConfiguration reports where the configuration came from.
type LoadedConfiguration struct {
	ConfigFileUsed string
}

// NewConfigurationLoader creates a loader looking for configurationName in searchPaths when no
// explicit file is given.
func NewConfigurationLoader(configurationName string, configurationType string, environmentPrefix string, searchPaths []string) *ConfigurationLoader {
	return &ConfigurationLoader{
		configurationName: configurationName,
		configurationType: configurationType,
		environmentPrefix: environmentPrefix,
		searchPaths:       append([]string(nil), searchPaths...),
	}
}

// SetEmbeddedConfiguration installs the lowest precedence configuration layer. An empty format
// falls back to the loader's configuration type.
func (loader *ConfigurationLoader) SetEmbeddedConfiguration(configurationData []byte, configurationType string) {
	if loader == nil {
		return
	}
	loader.embeddedData = append([]byte(nil), configurationData...)
	loader.embeddedFormat = strings.TrimSpace(configurationType)
}

// LoadConfiguration decodes every configuration layer into targetConfiguration. A missing file in
// the search paths is not an error; a missing explicit configurationFilePath is.
func (loader *ConfigurationLoader) LoadConfiguration(configurationFilePath string, defaultValues map[string]any, targetConfiguration any) (LoadedConfiguration, error) {
	viperInstance := viper.New()

	if embeddedError := loader.applyEmbedded(viperInstance); embeddedError != nil {
		return LoadedConfiguration{}, embeddedError
	}

	for defaultKey, defaultValue := range defaultValues {
		viperInstance.SetDefault(defaultKey, defaultValue)
	}

	viperInstance.SetConfigType(loader.configurationType)
	if len(configurationFilePath) > 0 {
		viperInstance.SetConfigFile(configurationFilePath)
	} else {
		viperInstance.SetConfigName(loader.configurationName)
		for _, searchPath := range loader.searchPaths {
			viperInstance.AddConfigPath(searchPath)
		}
	}
	if readError := viperInstance.MergeInConfig(); readError != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readError, &notFound) {
			source := configurationFilePath
			if len(source) == 0 {
				source = searchedConfigurationDescriptionConstant
			}
			return LoadedConfiguration{}, fmt.Errorf(configurationFileErrorTemplateConstant, source, readError)
		}
	}

	viperInstance.SetEnvPrefix(loader.environmentPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(configurationKeySeparatorConstant, environmentKeySeparatorConstant))
	viperInstance.AutomaticEnv()

	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(configurationListSeparatorConstant),
	))
	if decodeError := viperInstance.Unmarshal(targetConfiguration, decodeHook); decodeError != nil {
		return LoadedConfiguration{}, fmt.Errorf(configurationDecodeErrorTemplateConstant, decodeError)
	}

	return LoadedConfiguration{ConfigFileUsed: viperInstance.ConfigFileUsed()}, nil
}

// applyEmbedded registers every embedded key as a viper default so that explicit default values,
// set afterwards on the same keys, replace them.
func (loader *ConfigurationLoader) applyEmbedded(viperInstance *viper.Viper) error {
	if len(loader.embeddedData) == 0 {
		return nil
	}
	embeddedFormat := loader.embeddedFormat
	if len(embeddedFormat) == 0 {
		embeddedFormat = loader.configurationType
	}
	embedded := viper.New()
	embedded.SetConfigType(embeddedFormat)
	if readError := embedded.ReadConfig(bytes.NewReader(loader.embeddedData)); readError != nil {
		return fmt.Errorf(embeddedConfigurationErrorTemplateConstant, readError)
	}
	for _, key := range embedded.AllKeys() {
		viperInstance.SetDefault(key, embedded.Get(key))
	}
	return nil
}
