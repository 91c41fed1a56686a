package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spinnaker/buildtool/internal/buildtoolerrors"
)

const (
	// SuccessLabel records whether a timed call returned without error.
	SuccessLabel = "success"
	// ExceptionTypeLabel records the kind of error returned by a timed call.
	ExceptionTypeLabel = "exception_type"

	inProgressSuffixConstant = "_InProgress"
	outcomeSuffixConstant    = "_Outcome"

	successTrueValueConstant  = "true"
	successFalseValueConstant = "false"

	pusherStopTimeoutConstant = 2 * time.Second

	familyKindMismatchTemplateConstant = "metric %q is a %s, not a %s"

	logFieldMetricConstant        = "metric"
	logFieldUpdatedCountConstant  = "updated"
	familyMismatchMessageConstant = "metric family type mismatch"
	flushFailedMessageConstant    = "metrics flush failed"
	pusherStuckMessageConstant    = "metrics pusher did not stop in time"
	pusherStartedMessageConstant  = "metrics pusher started"
)

// Batch is the set of metrics handed to a Backend on each flush.
type Batch struct {
	RunID   string
	Updated []Snapshot
	All     []Snapshot
	Final   bool
}

// Backend receives flushed metrics.
type Backend interface {
	Flush(executionContext context.Context, batch Batch) error
}

// Options configures a Registry.
type Options struct {
	Enabled        bool
	FlushFrequency time.Duration
	ContextLabels  map[string]string
	RunID          string
	Clock          func() time.Time
}

// Registry owns every metric family for one process run.
type Registry struct {
	logger   *zap.Logger
	backends []Backend
	options  Options

	familiesMutex sync.Mutex
	families      map[string]*Family
	familyOrder   []string

	pendingMutex sync.Mutex
	pending      map[Metric]struct{}

	pusherMutex sync.Mutex
	pusherStop  chan struct{}
	pusherDone  chan struct{}
}

// NewRegistry builds a Registry flushing into every backend. Without backends flushes are discarded.
func NewRegistry(logger *zap.Logger, options Options, backends ...Backend) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.Clock == nil {
		options.Clock = time.Now
	}
	return &Registry{
		logger:   logger,
		backends: backends,
		options:  options,
		families: map[string]*Family{},
		pending:  map[Metric]struct{}{},
	}
}

// NewDisabledRegistry builds a Registry that tracks values but never flushes.
func NewDisabledRegistry() *Registry {
	return NewRegistry(nil, Options{})
}

// RunID identifies this process run in flushed output.
func (registry *Registry) RunID() string {
	return registry.options.RunID
}

// Counter returns the counter instance for name and labels.
func (registry *Registry) Counter(name string, labels map[string]string) (*Counter, error) {
	metric, lookupError := registry.lookup(name, KindCounter, labels)
	if lookupError != nil {
		return nil, lookupError
	}
	return metric.(*Counter), nil
}

// Gauge returns the gauge instance for name and labels.
func (registry *Registry) Gauge(name string, labels map[string]string) (*Gauge, error) {
	metric, lookupError := registry.lookup(name, KindGauge, labels)
	if lookupError != nil {
		return nil, lookupError
	}
	return metric.(*Gauge), nil
}

// Timer returns the timer instance for name and labels.
func (registry *Registry) Timer(name string, labels map[string]string) (*Timer, error) {
	metric, lookupError := registry.lookup(name, KindTimer, labels)
	if lookupError != nil {
		return nil, lookupError
	}
	return metric.(*Timer), nil
}

// GetMetric returns an existing metric instance without creating it.
func (registry *Registry) GetMetric(name string, labels map[string]string) (Metric, bool) {
	registry.familiesMutex.Lock()
	family, found := registry.families[name]
	registry.familiesMutex.Unlock()
	if !found {
		return nil, false
	}
	family.mutex.Lock()
	defer family.mutex.Unlock()
	metric, found := family.instances[labelKey(registry.withContextLabels(labels))]
	return metric, found
}

// Families returns every family in creation order.
func (registry *Registry) Families() []*Family {
	registry.familiesMutex.Lock()
	defer registry.familiesMutex.Unlock()
	families := make([]*Family, 0, len(registry.familyOrder))
	for _, name := range registry.familyOrder {
		families = append(families, registry.families[name])
	}
	return families
}

// IncrementCounter adds one to a counter.
func (registry *Registry) IncrementCounter(name string, labels map[string]string) {
	registry.IncrementCounterBy(name, labels, 1)
}

// IncrementCounterBy adds amount to a counter.
func (registry *Registry) IncrementCounterBy(name string, labels map[string]string, amount int64) {
	counter, lookupError := registry.Counter(name, labels)
	if lookupError != nil {
		registry.logMismatch(name, lookupError)
		return
	}
	counter.Increment(amount)
}

// CountCall runs call and counts it with outcome labels.
func (registry *Registry) CountCall(name string, labels map[string]string, call func() error) error {
	callError := call()
	registry.IncrementCounter(name, OutcomeLabels(labels, callError))
	return callError
}

// SetGauge replaces a gauge value.
func (registry *Registry) SetGauge(name string, labels map[string]string, value float64) {
	gauge, lookupError := registry.Gauge(name, labels)
	if lookupError != nil {
		registry.logMismatch(name, lookupError)
		return
	}
	gauge.Set(value)
}

// TrackCall raises a gauge while call runs.
func (registry *Registry) TrackCall(name string, labels map[string]string, call func() error) error {
	gauge, lookupError := registry.Gauge(name, labels)
	if lookupError != nil {
		registry.logMismatch(name, lookupError)
		return call()
	}
	return gauge.Track(call)
}

// ObserveTimer records one duration.
func (registry *Registry) ObserveTimer(name string, labels map[string]string, duration time.Duration) {
	timer, lookupError := registry.Timer(name, labels)
	if lookupError != nil {
		registry.logMismatch(name, lookupError)
		return
	}
	timer.Observe(duration)
}

// TimeCall times call and records it with outcome labels.
func (registry *Registry) TimeCall(name string, labels map[string]string, call func() error) error {
	startTime := registry.now()
	callError := call()
	registry.ObserveTimer(name, OutcomeLabels(labels, callError), registry.now().Sub(startTime))
	return callError
}

// TrackAndTimeCall tracks call in name_InProgress and times it in name_Outcome.
func (registry *Registry) TrackAndTimeCall(name string, labels map[string]string, call func() error) error {
	return registry.TrackCall(name+inProgressSuffixConstant, labels, func() error {
		return registry.TimeCall(name+outcomeSuffixConstant, labels, call)
	})
}

// OutcomeLabels extends labels with success and exception type for callError.
func OutcomeLabels(labels map[string]string, callError error) map[string]string {
	outcome := map[string]string{SuccessLabel: successTrueValueConstant, ExceptionTypeLabel: ""}
	if callError != nil {
		outcome[SuccessLabel] = successFalseValueConstant
		outcome[ExceptionTypeLabel] = ExceptionType(callError)
	}
	return mergeLabels(labels, outcome)
}

// ExceptionType names the kind of err for outcome labels.
func ExceptionType(err error) string {
	if err == nil {
		return ""
	}
	return string(buildtoolerrors.KindOf(err))
}

// Flush publishes the metrics updated since the previous flush.
func (registry *Registry) Flush(executionContext context.Context) error {
	return registry.flush(executionContext, false)
}

// StartPusher begins flushing every FlushFrequency until StopPusher is called.
func (registry *Registry) StartPusher() bool {
	if !registry.options.Enabled || registry.options.FlushFrequency <= 0 {
		return false
	}

	registry.pusherMutex.Lock()
	defer registry.pusherMutex.Unlock()
	if registry.pusherStop != nil {
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	registry.pusherStop = stop
	registry.pusherDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(registry.options.FlushFrequency)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if flushError := registry.Flush(context.Background()); flushError != nil {
					registry.logger.Warn(flushFailedMessageConstant, zap.Error(flushError))
				}
			}
		}
	}()

	registry.logger.Debug(pusherStartedMessageConstant, zap.Duration("frequency", registry.options.FlushFrequency))
	return true
}

// StopPusher signals the pusher and waits a bounded time for it to exit.
func (registry *Registry) StopPusher() {
	registry.pusherMutex.Lock()
	stop := registry.pusherStop
	done := registry.pusherDone
	registry.pusherStop = nil
	registry.pusherDone = nil
	registry.pusherMutex.Unlock()

	if stop == nil {
		return
	}
	close(stop)

	select {
	case <-done:
	case <-time.After(pusherStopTimeoutConstant):
		registry.logger.Warn(pusherStuckMessageConstant)
	}
}

// Close stops the pusher and publishes a final batch containing every metric.
func (registry *Registry) Close(executionContext context.Context) error {
	registry.StopPusher()
	return registry.flush(executionContext, true)
}

func (registry *Registry) flush(executionContext context.Context, final bool) error {
	if !registry.options.Enabled || len(registry.backends) == 0 {
		return nil
	}

	registry.pendingMutex.Lock()
	drained := registry.pending
	registry.pending = map[Metric]struct{}{}
	registry.pendingMutex.Unlock()

	if len(drained) == 0 && !final {
		return nil
	}

	updated := make([]Snapshot, 0, len(drained))
	for metric := range drained {
		updated = append(updated, metric.Snapshot())
	}

	batch := Batch{RunID: registry.options.RunID, Updated: updated, All: registry.snapshotAll(), Final: final}
	registry.logger.Debug("flushing metrics", zap.Int(logFieldUpdatedCountConstant, len(updated)), zap.Bool("final", final))

	var flushError error
	for _, backend := range registry.backends {
		flushError = multierr.Append(flushError, backend.Flush(executionContext, batch))
	}
	return flushError
}

func (registry *Registry) snapshotAll() []Snapshot {
	snapshots := make([]Snapshot, 0)
	for _, family := range registry.Families() {
		for _, metric := range family.Instances() {
			snapshots = append(snapshots, metric.Snapshot())
		}
	}
	return snapshots
}

func (registry *Registry) queueUpdate(metric Metric) {
	if !registry.options.Enabled {
		return
	}
	registry.pendingMutex.Lock()
	registry.pending[metric] = struct{}{}
	registry.pendingMutex.Unlock()
}

func (registry *Registry) lookup(name string, kind Kind, labels map[string]string) (Metric, error) {
	registry.familiesMutex.Lock()
	family, found := registry.families[name]
	if !found {
		family = newFamily(registry, name, kind)
		registry.families[name] = family
		registry.familyOrder = append(registry.familyOrder, name)
	}
	registry.familiesMutex.Unlock()

	if family.kind != kind {
		return nil, buildtoolerrors.NewUnexpectedError(
			fmt.Sprintf(familyKindMismatchTemplateConstant, name, strings.ToLower(string(family.kind)), strings.ToLower(string(kind))),
			nil,
		)
	}
	return family.get(registry.withContextLabels(labels)), nil
}

func (registry *Registry) withContextLabels(labels map[string]string) map[string]string {
	if len(registry.options.ContextLabels) == 0 {
		return mergeLabels(labels, nil)
	}
	return mergeLabels(registry.options.ContextLabels, labels)
}

func (registry *Registry) logMismatch(name string, lookupError error) {
	registry.logger.Error(familyMismatchMessageConstant, zap.String(logFieldMetricConstant, name), zap.Error(lookupError))
}

func (registry *Registry) now() time.Time {
	return registry.options.Clock()
}
