package metrics

import "sync"

// Family groups the instances of one metric name, one per distinct label set.
type Family struct {
	mutex     sync.Mutex
	registry  *Registry
	name      string
	kind      Kind
	instances map[string]Metric
	order     []string
}

func newFamily(registry *Registry, name string, kind Kind) *Family {
	return &Family{registry: registry, name: name, kind: kind, instances: map[string]Metric{}}
}

// Name returns the metric name shared by the family.
func (family *Family) Name() string {
	return family.name
}

// Kind returns the family type.
func (family *Family) Kind() Kind {
	return family.kind
}

// Instances returns the family members in creation order.
func (family *Family) Instances() []Metric {
	family.mutex.Lock()
	defer family.mutex.Unlock()
	instances := make([]Metric, 0, len(family.order))
	for _, key := range family.order {
		instances = append(instances, family.instances[key])
	}
	return instances
}

func (family *Family) get(labels map[string]string) Metric {
	key := labelKey(labels)

	family.mutex.Lock()
	defer family.mutex.Unlock()

	if existing, found := family.instances[key]; found {
		return existing
	}

	instanceLabels := mergeLabels(labels, nil)
	var created Metric
	switch family.kind {
	case KindCounter:
		created = &Counter{metricBase: metricBase{family: family, labels: instanceLabels}}
	case KindGauge:
		created = &Gauge{metricBase: metricBase{family: family, labels: instanceLabels}}
	default:
		created = &Timer{metricBase: metricBase{family: family, labels: instanceLabels}}
	}
	family.instances[key] = created
	family.order = append(family.order, key)
	return created
}
