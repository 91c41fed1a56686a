package utils

import (
	"context"

	"github.com/spinnaker/buildtool/internal/metrics"
)

const (
	configurationFilePathContextKeyConstant = commandContextKey("configurationFilePath")
	metricsRegistryContextKeyConstant       = commandContextKey("metricsRegistry")
)

type commandContextKey string

// CommandContextAccessor manages values stored in command execution contexts.
type CommandContextAccessor struct{}

// NewCommandContextAccessor constructs a CommandContextAccessor instance.
func NewCommandContextAccessor() CommandContextAccessor {
	return CommandContextAccessor{}
}

// WithConfigurationFilePath attaches the configuration file path to the provided context.
func (accessor CommandContextAccessor) WithConfigurationFilePath(parentContext context.Context, configurationFilePath string) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, configurationFilePathContextKeyConstant, configurationFilePath)
}

// ConfigurationFilePath extracts the configuration file path from the provided context.
func (accessor CommandContextAccessor) ConfigurationFilePath(executionContext context.Context) (string, bool) {
	if executionContext == nil {
		return "", false
	}
	configurationFilePath, configurationFilePathAvailable := executionContext.Value(configurationFilePathContextKeyConstant).(string)
	if !configurationFilePathAvailable {
		return "", false
	}
	return configurationFilePath, true
}

// WithMetricsRegistry attaches the metrics registry of the current invocation to the provided context.
func (accessor CommandContextAccessor) WithMetricsRegistry(parentContext context.Context, registry *metrics.Registry) context.Context {
	if parentContext == nil {
		parentContext = context.Background()
	}
	return context.WithValue(parentContext, metricsRegistryContextKeyConstant, registry)
}

// MetricsRegistry extracts the metrics registry from the provided context.
func (accessor CommandContextAccessor) MetricsRegistry(executionContext context.Context) (*metrics.Registry, bool) {
	if executionContext == nil {
		return nil, false
	}
	registry, registryAvailable := executionContext.Value(metricsRegistryContextKeyConstant).(*metrics.Registry)
	if !registryAvailable || registry == nil {
		return nil, false
	}
	return registry, true
}
