package metrics

import (
	"sync"
	"time"
)

// Kind identifies the family type of a metric.
type Kind string

// Supported metric kinds.
const (
	KindCounter Kind = Kind("COUNTER")
	KindGauge   Kind = Kind("GAUGE")
	KindTimer   Kind = Kind("TIMER")
)

// Snapshot is a point-in-time copy of a single metric instance.
type Snapshot struct {
	Name         string            `json:"name"`
	Kind         Kind              `json:"type"`
	Labels       map[string]string `json:"labels"`
	Count        int64             `json:"count,omitempty"`
	Value        float64           `json:"value,omitempty"`
	TotalSeconds float64           `json:"total_seconds,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Metric is a labeled instance belonging to a family.
type Metric interface {
	Name() string
	Kind() Kind
	Labels() map[string]string
	Snapshot() Snapshot
}

type metricBase struct {
	mutex        sync.Mutex
	family       *Family
	labels       map[string]string
	lastModified time.Time
}

func (base *metricBase) Name() string {
	return base.family.name
}

func (base *metricBase) Kind() Kind {
	return base.family.kind
}

func (base *metricBase) Labels() map[string]string {
	return mergeLabels(base.labels, nil)
}

// touch must be called with the metric mutex held.
func (base *metricBase) touch() {
	base.lastModified = base.family.registry.now()
}

func (base *metricBase) snapshotLocked() Snapshot {
	return Snapshot{
		Name:         base.family.name,
		Kind:         base.family.kind,
		Labels:       mergeLabels(base.labels, nil),
		LastModified: base.lastModified,
	}
}

// Counter counts completed events.
type Counter struct {
	metricBase
	count int64
}

// Increment adds amount to the counter.
func (counter *Counter) Increment(amount int64) {
	counter.mutex.Lock()
	counter.count += amount
	counter.touch()
	counter.mutex.Unlock()
	counter.family.registry.queueUpdate(counter)
}

// Count returns the current value.
func (counter *Counter) Count() int64 {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	return counter.count
}

// Snapshot implements Metric.
func (counter *Counter) Snapshot() Snapshot {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	snapshot := counter.snapshotLocked()
	snapshot.Count = counter.count
	return snapshot
}

// Gauge holds a value that can move in either direction.
type Gauge struct {
	metricBase
	value float64
}

// Set replaces the gauge value.
func (gauge *Gauge) Set(value float64) {
	gauge.update(func() { gauge.value = value })
}

// Increment raises the gauge by amount.
func (gauge *Gauge) Increment(amount float64) {
	gauge.update(func() { gauge.value += amount })
}

// Decrement lowers the gauge by amount.
func (gauge *Gauge) Decrement(amount float64) {
	gauge.update(func() { gauge.value -= amount })
}

// Track raises the gauge while call runs.
func (gauge *Gauge) Track(call func() error) error {
	gauge.Increment(1)
	defer gauge.Decrement(1)
	return call()
}

// Value returns the current value.
func (gauge *Gauge) Value() float64 {
	gauge.mutex.Lock()
	defer gauge.mutex.Unlock()
	return gauge.value
}

// Snapshot implements Metric.
func (gauge *Gauge) Snapshot() Snapshot {
	gauge.mutex.Lock()
	defer gauge.mutex.Unlock()
	snapshot := gauge.snapshotLocked()
	snapshot.Value = gauge.value
	return snapshot
}

func (gauge *Gauge) update(mutation func()) {
	gauge.mutex.Lock()
	mutation()
	gauge.touch()
	gauge.mutex.Unlock()
	gauge.family.registry.queueUpdate(gauge)
}

// Timer accumulates the number and total duration of observations.
type Timer struct {
	metricBase
	count int64
	total time.Duration
}

// Observe records one timing.
func (timer *Timer) Observe(duration time.Duration) {
	timer.mutex.Lock()
	timer.count++
	timer.total += duration
	timer.touch()
	timer.mutex.Unlock()
	timer.family.registry.queueUpdate(timer)
}

// Count returns the number of observations.
func (timer *Timer) Count() int64 {
	timer.mutex.Lock()
	defer timer.mutex.Unlock()
	return timer.count
}

// Total returns the accumulated duration.
func (timer *Timer) Total() time.Duration {
	timer.mutex.Lock()
	defer timer.mutex.Unlock()
	return timer.total
}

// Snapshot implements Metric.
func (timer *Timer) Snapshot() Snapshot {
	timer.mutex.Lock()
	defer timer.mutex.Unlock()
	snapshot := timer.snapshotLocked()
	snapshot.Count = timer.count
	snapshot.TotalSeconds = timer.total.Seconds()
	return snapshot
}
