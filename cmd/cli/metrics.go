package cli

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildconfig"
	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
	"github.com/spinnaker/buildtool/internal/metrics"
)

const (
	unknownMetricsSystemTemplateConstant = "unknown metrics system %q, expected %s or %s"
	invalidContextLabelsTemplateConstant = "invalid metrics context labels %q"
	metricsStartedMessageConstant        = "metrics enabled"
	logFieldMetricsSystemConstant        = "system"
	logFieldRunIDConstant                = "run_id"
)

// RunIDGenerator yields the identifier labelling every metric of one invocation.
type RunIDGenerator func() string

// NewMetricsRegistry builds the process metrics registry for commandName and starts its
// background flush loop. A disabled configuration yields a registry that never flushes.
func NewMetricsRegistry(logger *zap.Logger, configuration buildconfig.Configuration, commandName string, runID RunIDGenerator) (*metrics.Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runID == nil {
		runID = uuid.NewString
	}
	metricsConfiguration := configuration.Metrics
	if !metricsConfiguration.Enabled {
		return metrics.NewRegistry(logger, metrics.Options{RunID: runID()}), nil
	}

	contextLabels, labelsError := metrics.ParseContextLabels(metricsConfiguration.ContextLabels)
	if labelsError != nil {
		return nil, buildtoolerrors.NewConfigError(fmt.Sprintf(invalidContextLabelsTemplateConstant, metricsConfiguration.ContextLabels), labelsError)
	}

	var backend metrics.Backend
	switch metricsConfiguration.System {
	case buildconfig.MetricsSystemFile:
		outputPath := metricsConfiguration.OutputPath
		if len(outputPath) == 0 {
			outputPath = metrics.DefaultFileBackendPath(configuration.OutputDir, commandName)
		}
		backend = metrics.NewFileBackend(outputPath, commandName, nil)
	case buildconfig.MetricsSystemPrometheus:
		backend = metrics.NewPrometheusBackend(logger, metrics.PrometheusOptions{
			Job:            commandName,
			PushgatewayURL: metricsConfiguration.PushgatewayURL,
			TextfilePath:   metricsConfiguration.OutputPath,
		})
	default:
		return nil, buildtoolerrors.NewConfigError(
			fmt.Sprintf(unknownMetricsSystemTemplateConstant, metricsConfiguration.System, buildconfig.MetricsSystemFile, buildconfig.MetricsSystemPrometheus),
			nil,
		)
	}

	registry := metrics.NewRegistry(logger, metrics.Options{
		Enabled:        true,
		FlushFrequency: metricsConfiguration.FlushFrequency,
		ContextLabels:  contextLabels,
		RunID:          runID(),
	}, backend)
	registry.StartPusher()
	logger.Debug(metricsStartedMessageConstant, zap.String(logFieldMetricsSystemConstant, metricsConfiguration.System), zap.String(logFieldRunIDConstant, registry.RunID()))
	return registry, nil
}
