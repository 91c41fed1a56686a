package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	fileBackendNameTemplateConstant = "metrics__%s__%d.json"
	fileBackendDirectoryConstant    = "metrics"
	fileBackendTempSuffixConstant   = ".tmp"
	fileBackendDirectoryMode        = 0o755
	fileBackendFileMode             = 0o644
	fileBackendIndentConstant       = "  "
)

// FileBackend writes a complete JSON snapshot on every flush.
type FileBackend struct {
	mutex     sync.Mutex
	path      string
	job       string
	startTime time.Time
	clock     func() time.Time
}

// DefaultFileBackendPath returns outputDirectory/metrics/metrics__command__pid.json.
func DefaultFileBackendPath(outputDirectory string, command string) string {
	return filepath.Join(outputDirectory, fileBackendDirectoryConstant, fmt.Sprintf(fileBackendNameTemplateConstant, command, os.Getpid()))
}

// NewFileBackend builds a FileBackend writing to path.
func NewFileBackend(path string, job string, clock func() time.Time) *FileBackend {
	if clock == nil {
		clock = time.Now
	}
	return &FileBackend{path: path, job: job, startTime: clock(), clock: clock}
}

// Path returns the snapshot location.
func (backend *FileBackend) Path() string {
	return backend.path
}

type fileSnapshotFamily struct {
	Name      string     `json:"name"`
	Type      Kind       `json:"type"`
	Instances []Snapshot `json:"instances"`
}

type fileSnapshotDocument struct {
	Job       string                        `json:"job"`
	RunID     string                        `json:"run_id"`
	StartTime time.Time                     `json:"start_time"`
	EndTime   *time.Time                    `json:"end_time,omitempty"`
	Counters  map[string]fileSnapshotFamily `json:"counters"`
	Gauges    map[string]fileSnapshotFamily `json:"gauges"`
	Timers    map[string]fileSnapshotFamily `json:"timers"`
}

// Flush replaces the snapshot file with the full metric set.
func (backend *FileBackend) Flush(executionContext context.Context, batch Batch) error {
	document := fileSnapshotDocument{
		Job:       backend.job,
		RunID:     batch.RunID,
		StartTime: backend.startTime,
		Counters:  map[string]fileSnapshotFamily{},
		Gauges:    map[string]fileSnapshotFamily{},
		Timers:    map[string]fileSnapshotFamily{},
	}
	if batch.Final {
		endTime := backend.clock()
		document.EndTime = &endTime
	}

	for _, snapshot := range batch.All {
		category := document.Timers
		switch snapshot.Kind {
		case KindCounter:
			category = document.Counters
		case KindGauge:
			category = document.Gauges
		}
		family := category[snapshot.Name]
		family.Name = snapshot.Name
		family.Type = snapshot.Kind
		family.Instances = append(family.Instances, snapshot)
		category[snapshot.Name] = family
	}
	for _, category := range []map[string]fileSnapshotFamily{document.Counters, document.Gauges, document.Timers} {
		for name, family := range category {
			sort.SliceStable(family.Instances, func(left int, right int) bool {
				return labelKey(family.Instances[left].Labels) < labelKey(family.Instances[right].Labels)
			})
			category[name] = family
		}
	}

	encoded, encodeError := json.MarshalIndent(document, "", fileBackendIndentConstant)
	if encodeError != nil {
		return encodeError
	}

	backend.mutex.Lock()
	defer backend.mutex.Unlock()

	if makeError := os.MkdirAll(filepath.Dir(backend.path), fileBackendDirectoryMode); makeError != nil {
		return makeError
	}
	temporaryPath := backend.path + fileBackendTempSuffixConstant
	if writeError := os.WriteFile(temporaryPath, encoded, fileBackendFileMode); writeError != nil {
		return writeError
	}
	return os.Rename(temporaryPath, backend.path)
}
