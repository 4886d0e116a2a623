package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics summarizes the work done by a session
type Metrics struct {
	StartTime      time.Time                `json:"start_time"`
	EndTime        *time.Time               `json:"end_time,omitempty"`
	Duration       time.Duration            `json:"duration"`
	LayersComposed int                      `json:"layers_composed"`
	StageMetrics   map[string]*StageMetrics `json:"stage_metrics"`
}

// StageMetrics aggregates the runs of one stage (acquire, unpack, compose)
type StageMetrics struct {
	Name     string        `json:"name"`
	Runs     int           `json:"runs"`
	Failures int           `json:"failures"`
	Duration time.Duration `json:"duration"`
}

// Summary renders the stage timings on one line for logging
func (m *Metrics) Summary() string {
	names := make([]string, 0, len(m.StageMetrics))
	for name := range m.StageMetrics {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		stage := m.StageMetrics[name]
		parts = append(parts, fmt.Sprintf("%s=%s", name, stage.Duration.Round(time.Millisecond)))
	}
	return strings.Join(parts, " ")
}

// MetricsCollector records stage timings; safe for concurrent use
type MetricsCollector struct {
	mutex     sync.Mutex
	startTime time.Time
	endTime   *time.Time
	layers    int
	stages    map[string]*StageMetrics
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime: time.Now(),
		stages:    make(map[string]*StageMetrics),
	}
}

// StartStage starts timing a stage. The returned function ends it.
func (m *MetricsCollector) StartStage(name string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		elapsed := time.Since(start)

		m.mutex.Lock()
		defer m.mutex.Unlock()

		stage, ok := m.stages[name]
		if !ok {
			stage = &StageMetrics{Name: name}
			m.stages[name] = stage
		}
		stage.Runs++
		stage.Duration += elapsed
		if !success {
			stage.Failures++
		}
	}
}

// AddLayers counts composed layers
func (m *MetricsCollector) AddLayers(n int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.layers += n
}

// GetMetrics returns a snapshot
func (m *MetricsCollector) GetMetrics() *Metrics {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	metrics := &Metrics{
		StartTime:      m.startTime,
		EndTime:        m.endTime,
		LayersComposed: m.layers,
		StageMetrics:   make(map[string]*StageMetrics, len(m.stages)),
	}
	if m.endTime != nil {
		metrics.Duration = m.endTime.Sub(m.startTime)
	} else {
		metrics.Duration = time.Since(m.startTime)
	}
	for name, stage := range m.stages {
		copied := *stage
		metrics.StageMetrics[name] = &copied
	}
	return metrics
}

// Finish marks the end of the session
func (m *MetricsCollector) Finish() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.endTime == nil {
		now := time.Now()
		m.endTime = &now
	}
}
