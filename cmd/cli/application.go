package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/dependencies"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/utils"
	flagutils "github.com/spinnaker/buildtool/internal/utils/flags"
	pathutils "github.com/spinnaker/buildtool/internal/utils/path"
)

const (
	applicationNameConstant                 = "buildtool"
	applicationShortDescriptionConstant     = "Release tooling for the Spinnaker repositories"
	applicationLongDescriptionConstant      = "buildtool fetches the Spinnaker repositories, builds bills of materials and changelogs from their history, and publishes release metadata."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format."
	logFileFlagNameConstant                 = "log-file"
	logFileFlagUsageConstant                = "Also write log entries to this file."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	commonLogFileConfigKeyConstant          = commonConfigurationKeyConstant + ".log_file"
	buildtoolConfigurationKeyConstant       = "buildtool"
	buildNumberConfigKeyConstant            = buildtoolConfigurationKeyConstant + ".build_number"
	buildNumberEnvironmentVariableConstant  = "BUILD_NUMBER"
	environmentPrefixConstant               = "BUILDTOOL"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	metricsCloseErrorTemplateConstant       = "unable to flush metrics: %w"
	rootCommandInfoMessageConstant          = "buildtool CLI executed"
	rootCommandDebugMessageConstant         = "buildtool CLI diagnostics"
	commandFailedMessageConstant            = "command failed"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	logFieldArgumentsConstant               = "arguments"
	logFieldStackConstant                   = "stacktrace"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	developmentVersionConstant              = "(devel)"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common    ApplicationCommonConfiguration `mapstructure:"common"`
	Buildtool buildconfig.Configuration      `mapstructure:"buildtool"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// Application wires the Cobra root command, configuration loader, metrics registry, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	registry               *metrics.Registry
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	logFileFlagValue       string
	commandContextAccessor utils.CommandContextAccessor
	homeExpander           *pathutils.HomeExpander
	lookupEnvironment      dependencies.EnvironmentLookup
	runIDGenerator         RunIDGenerator
}

// NewApplication assembles a fully wired CLI application instance offering every release command.
func NewApplication() *Application {
	return NewApplicationWithCommands(DefaultCommandRegistry())
}

// NewApplicationWithCommands assembles a CLI application offering the commands in registry.
func NewApplicationWithCommands(registry CommandRegistry) *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		homeExpander:           pathutils.NewHomeExpander(nil),
		lookupEnvironment:      os.LookupEnv,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       resolveVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(
		&application.logLevelFlagValue,
		logLevelFlagNameConstant,
		"",
		flagutils.FormatChoiceUsage(string(utils.LogLevelInfo), choiceNames(utils.LogLevels()), logLevelFlagUsageConstant),
	)
	cobraCommand.PersistentFlags().StringVar(
		&application.logFormatFlagValue,
		logFormatFlagNameConstant,
		"",
		flagutils.FormatChoiceUsage(string(utils.LogFormatStructured), choiceNames(utils.LogFormats()), logFormatFlagUsageConstant),
	)
	cobraCommand.PersistentFlags().StringVar(&application.logFileFlagValue, logFileFlagNameConstant, "", logFileFlagUsageConstant)

	providers := dependencies.Providers{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider: func() buildconfig.Configuration {
			return application.configuration.Buildtool
		},
		RegistryProvider: func() *metrics.Registry {
			return application.registry
		},
	}
	for _, commandName := range registry.Names() {
		releaseCommand, buildError := registry[commandName](providers)
		if buildError == nil {
			cobraCommand.AddCommand(releaseCommand)
		}
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy, then flushes metrics and the logger.
// A failed command is logged with its stack at debug level before it is returned.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if executionError != nil {
		application.logger.Debug(commandFailedMessageConstant, zap.Error(executionError), zap.StackSkip(logFieldStackConstant, 1))
	}

	var teardownError error
	if application.registry != nil {
		if closeError := application.registry.Close(context.Background()); closeError != nil {
			teardownError = multierr.Append(teardownError, fmt.Errorf(metricsCloseErrorTemplateConstant, closeError))
		}
	}
	if syncError := application.flushLogger(); syncError != nil {
		teardownError = multierr.Append(teardownError, fmt.Errorf(loggerSyncErrorTemplateConstant, syncError))
	}

	if executionError != nil {
		return executionError
	}
	return teardownError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	application := NewApplication()
	application.rootCommand.SetArgs(flagutils.NormalizeToggleArguments(os.Args[1:]))
	return application.Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
		commonLogFileConfigKeyConstant:   "",
	}
	for configurationKey, configurationValue := range buildconfig.DefaultConfigurationValues(buildtoolConfigurationKeyConstant) {
		defaultValues[configurationKey] = configurationValue
	}
	if buildNumber, present := application.lookupEnvironment(buildNumberEnvironmentVariableConstant); present && len(strings.TrimSpace(buildNumber)) > 0 {
		defaultValues[buildNumberConfigKeyConstant] = strings.TrimSpace(buildNumber)
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	if application.persistentFlagChanged(command, logFileFlagNameConstant) {
		application.configuration.Common.LogFile = application.logFileFlagValue
	}
	application.configuration.Common.LogFile = application.homeExpander.Expand(strings.TrimSpace(application.configuration.Common.LogFile))
	application.configuration.Buildtool = application.configuration.Buildtool.Sanitize().ExpandPaths(application.homeExpander)

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
		application.configuration.Common.LogFile,
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	commandName := applicationNameConstant
	if command != nil {
		commandName = command.Name()
	}
	registry, registryError := NewMetricsRegistry(application.logger, application.configuration.Buildtool, commandName, application.runIDGenerator)
	if registryError != nil {
		return registryError
	}
	application.registry = registry

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithMetricsRegistry(updatedContext, registry)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	application.logger.Debug(
		rootCommandDebugMessageConstant,
		zap.Strings(logFieldArgumentsConstant, arguments),
	)

	return command.Help()
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func resolveVersion() string {
	buildInfo, available := debug.ReadBuildInfo()
	if !available || len(buildInfo.Main.Version) == 0 {
		return developmentVersionConstant
	}
	return buildInfo.Main.Version
}

func choiceNames[Choice ~string](choices []Choice) []string {
	names := make([]string, len(choices))
	for index, choice := range choices {
		names[index] = string(choice)
	}
	return names
}
