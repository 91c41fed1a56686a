package dependencies

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/gitrunner"
	"github.com/spinnaker/buildtool/internal/metrics"
	"github.com/spinnaker/buildtool/internal/utils"
)

const (
	// GoogleCredentialsEnvironmentVariable names the service account key used to authenticate gcloud.
	GoogleCredentialsEnvironmentVariable = "GOOGLE_GHA_CREDS_PATH"

	activatingCredentialsMessageConstant = "activating google service account"
	logFieldKeyFileConstant              = "key_file"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// Environment carries the collaborators a release command runs with.
type Environment struct {
	Logger            *zap.Logger
	Configuration     buildconfig.Configuration
	Tools             ToolExecutor
	Git               *gitrunner.Runner
	Registry          *metrics.Registry
	HTTPClient        HTTPClient
	LookupEnvironment EnvironmentLookup
	Clock             func() time.Time
}

// WithConfiguration returns a copy of the environment bound to configuration.
// The git runner is rebuilt so push options follow the new configuration.
func (environment Environment) WithConfiguration(configuration buildconfig.Configuration) (Environment, error) {
	updated := environment
	updated.Configuration = configuration.Sanitize()
	gitRunner, runnerError := ResolveGitRunner(environment.Tools, environment.Logger, updated.Configuration.GitOptions())
	if runnerError != nil {
		return Environment{}, runnerError
	}
	updated.Git = gitRunner
	return updated, nil
}

// ActivateGoogleCredentials authenticates gcloud with the key file named by
// GOOGLE_GHA_CREDS_PATH. Nothing happens when the variable is unset.
func (environment Environment) ActivateGoogleCredentials(executionContext context.Context) error {
	keyFile, present := environment.LookupEnvironment(GoogleCredentialsEnvironmentVariable)
	if !present || len(keyFile) == 0 {
		return nil
	}
	environment.Logger.Debug(activatingCredentialsMessageConstant, zap.String(logFieldKeyFileConstant, keyFile))
	_, executionError := environment.Tools.ExecuteGcloud(executionContext, CommandArguments("auth", "activate-service-account", "--key-file="+keyFile))
	return executionError
}

// Providers resolves an Environment for a cobra command.
// Every field is optional; missing collaborators fall back to process defaults.
type Providers struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() buildconfig.Configuration
	RegistryProvider             func() *metrics.Registry
	ToolExecutor                 ToolExecutor
	HTTPClient                   HTTPClient
	EnvironmentLookup            EnvironmentLookup
	Clock                        func() time.Time
}

// Resolve applies the flags set on command over the provided configuration and
// assembles the collaborators the command runs with.
func (providers Providers) Resolve(command *cobra.Command) (Environment, error) {
	configuration, flagError := buildconfig.ApplyFlags(command, providers.resolveConfiguration())
	if flagError != nil {
		return Environment{}, flagError
	}

	logger := providers.resolveLogger()
	humanReadableLogging := false
	if providers.HumanReadableLoggingProvider != nil {
		humanReadableLogging = providers.HumanReadableLoggingProvider()
	}
	toolExecutor, executorError := ResolveToolExecutor(providers.ToolExecutor, logger, humanReadableLogging)
	if executorError != nil {
		return Environment{}, executorError
	}

	environment := Environment{
		Logger:            logger,
		Tools:             toolExecutor,
		Registry:          providers.resolveRegistry(command),
		HTTPClient:        ResolveHTTPClient(providers.HTTPClient),
		LookupEnvironment: ResolveEnvironmentLookup(providers.EnvironmentLookup),
		Clock:             ResolveClock(providers.Clock),
	}
	return environment.WithConfiguration(configuration)
}

func (providers Providers) resolveConfiguration() buildconfig.Configuration {
	if providers.ConfigurationProvider == nil {
		return buildconfig.DefaultConfiguration()
	}
	return providers.ConfigurationProvider().Sanitize()
}

func (providers Providers) resolveLogger() *zap.Logger {
	if providers.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := providers.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

func (providers Providers) resolveRegistry(command *cobra.Command) *metrics.Registry {
	if providers.RegistryProvider != nil {
		if registry := providers.RegistryProvider(); registry != nil {
			return registry
		}
	}
	if command != nil {
		if registry, available := utils.NewCommandContextAccessor().MetricsRegistry(command.Context()); available {
			return registry
		}
	}
	return ResolveRegistry(nil)
}
