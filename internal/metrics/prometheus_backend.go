package metrics

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const (
	prometheusNamespaceConstant        = "buildtool"
	prometheusRunIDGroupingConstant    = "run_id"
	prometheusTimerCountSuffixConstant = "_count"
	prometheusTimerTotalSuffixConstant = "_seconds_total"
	prometheusHelpTemplateConstant     = "buildtool %s %s"
	labelMismatchTemplateConstant      = "metric %q labels %v do not match registered labels %v"
	labelMismatchMessageConstant       = "skipping metric with inconsistent labels"
)

var invalidPrometheusNameCharacters = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// PrometheusOptions configures where the Prometheus backend delivers metrics.
type PrometheusOptions struct {
	Job            string
	PushgatewayURL string
	TextfilePath   string
}

// PrometheusBackend mirrors registry metrics into a private Prometheus registry.
type PrometheusBackend struct {
	mutex      sync.Mutex
	logger     *zap.Logger
	options    PrometheusOptions
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	labelNames map[string][]string
	published  map[string]float64
}

// NewPrometheusBackend builds a PrometheusBackend.
func NewPrometheusBackend(logger *zap.Logger, options PrometheusOptions) *PrometheusBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(options.Job) == 0 {
		options.Job = prometheusNamespaceConstant
	}
	return &PrometheusBackend{
		logger:     logger,
		options:    options,
		registry:   prometheus.NewRegistry(),
		counters:   map[string]*prometheus.CounterVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
		labelNames: map[string][]string{},
		published:  map[string]float64{},
	}
}

// Gatherer exposes the collected metrics.
func (backend *PrometheusBackend) Gatherer() prometheus.Gatherer {
	return backend.registry
}

// Flush applies updated metrics and delivers them to the pushgateway or textfile.
func (backend *PrometheusBackend) Flush(executionContext context.Context, batch Batch) error {
	backend.mutex.Lock()
	defer backend.mutex.Unlock()

	for _, snapshot := range batch.Updated {
		if applyError := backend.apply(snapshot); applyError != nil {
			backend.logger.Warn(labelMismatchMessageConstant, zap.Error(applyError))
		}
	}

	switch {
	case len(backend.options.PushgatewayURL) > 0:
		return push.New(backend.options.PushgatewayURL, backend.options.Job).
			Gatherer(backend.registry).
			Grouping(prometheusRunIDGroupingConstant, batch.RunID).
			PushContext(executionContext)
	case len(backend.options.TextfilePath) > 0:
		return prometheus.WriteToTextfile(backend.options.TextfilePath, backend.registry)
	default:
		return nil
	}
}

func (backend *PrometheusBackend) apply(snapshot Snapshot) error {
	names := sortedLabelNames(snapshot.Labels)
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, snapshot.Labels[name])
	}
	sanitizedNames := make([]string, 0, len(names))
	for _, name := range names {
		sanitizedNames = append(sanitizedNames, sanitizePrometheusName(name))
	}

	metricName := sanitizePrometheusName(snapshot.Name)
	switch snapshot.Kind {
	case KindCounter:
		return backend.addCounter(metricName, snapshot, sanitizedNames, values, float64(snapshot.Count))
	case KindGauge:
		gauge, gaugeError := backend.gaugeVec(metricName, snapshot.Kind, sanitizedNames)
		if gaugeError != nil {
			return gaugeError
		}
		gauge.WithLabelValues(values...).Set(snapshot.Value)
		return nil
	default:
		if countError := backend.addCounter(metricName+prometheusTimerCountSuffixConstant, snapshot, sanitizedNames, values, float64(snapshot.Count)); countError != nil {
			return countError
		}
		return backend.addCounter(metricName+prometheusTimerTotalSuffixConstant, snapshot, sanitizedNames, values, snapshot.TotalSeconds)
	}
}

// addCounter converts the absolute registry value into a delta for the Prometheus counter.
func (backend *PrometheusBackend) addCounter(metricName string, snapshot Snapshot, labelNames []string, labelValues []string, total float64) error {
	counter, counterError := backend.counterVec(metricName, snapshot.Kind, labelNames)
	if counterError != nil {
		return counterError
	}
	seriesKey := metricName + "{" + strings.Join(labelValues, ",") + "}"
	delta := total - backend.published[seriesKey]
	if delta > 0 {
		counter.WithLabelValues(labelValues...).Add(delta)
		backend.published[seriesKey] = total
	}
	return nil
}

func (backend *PrometheusBackend) counterVec(metricName string, kind Kind, labelNames []string) (*prometheus.CounterVec, error) {
	if existing, found := backend.counters[metricName]; found {
		return existing, backend.checkLabelNames(metricName, labelNames)
	}
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: prometheusNamespaceConstant,
		Name:      metricName,
		Help:      fmt.Sprintf(prometheusHelpTemplateConstant, strings.ToLower(string(kind)), metricName),
	}, labelNames)
	if registerError := backend.registry.Register(counter); registerError != nil {
		return nil, registerError
	}
	backend.counters[metricName] = counter
	backend.labelNames[metricName] = labelNames
	return counter, nil
}

func (backend *PrometheusBackend) gaugeVec(metricName string, kind Kind, labelNames []string) (*prometheus.GaugeVec, error) {
	if existing, found := backend.gauges[metricName]; found {
		return existing, backend.checkLabelNames(metricName, labelNames)
	}
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: prometheusNamespaceConstant,
		Name:      metricName,
		Help:      fmt.Sprintf(prometheusHelpTemplateConstant, strings.ToLower(string(kind)), metricName),
	}, labelNames)
	if registerError := backend.registry.Register(gauge); registerError != nil {
		return nil, registerError
	}
	backend.gauges[metricName] = gauge
	backend.labelNames[metricName] = labelNames
	return gauge, nil
}

// Prometheus vectors have a fixed label set, taken from the first snapshot of each family.
func (backend *PrometheusBackend) checkLabelNames(metricName string, labelNames []string) error {
	registered := backend.labelNames[metricName]
	if strings.Join(registered, ",") != strings.Join(labelNames, ",") {
		return fmt.Errorf(labelMismatchTemplateConstant, metricName, labelNames, registered)
	}
	return nil
}

func sanitizePrometheusName(name string) string {
	sanitized := invalidPrometheusNameCharacters.ReplaceAllString(name, "_")
	if len(sanitized) > 0 && sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	return sanitized
}
