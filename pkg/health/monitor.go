package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rendis/streamflow/pkg/schema"
)

const defaultHistoryLimit = 50

// Monitor is an injectable health-check runner with bounded snapshot
// history.
type Monitor struct {
	mu           sync.RWMutex
	checks       map[string]Check
	history      []SystemHealth
	historyLimit int
	logger       *slog.Logger
}

// NewMonitor creates a Monitor. A non-positive historyLimit falls back
// to the default.
func NewMonitor(historyLimit int, logger *slog.Logger) *Monitor {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		checks:       make(map[string]Check),
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// WithDefaultChecks registers the built-in runtime probes.
func (m *Monitor) WithDefaultChecks() *Monitor {
	for _, c := range DefaultChecks() {
		if err := m.Register(c); err != nil {
			m.logger.Warn("default check not registered", "check", c.Name, "error", err)
		}
	}
	return m
}

// Register adds a check. Returns error on duplicate or invalid check.
func (m *Monitor) Register(c Check) error {
	if c.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "health check name is empty")
	}
	if c.Probe == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "health check %q has no probe", c.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checks[c.Name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "health check %q already registered", c.Name)
	}
	m.checks[c.Name] = c
	return nil
}

// Unregister removes a check by name.
func (m *Monitor) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checks, name)
}

// Checks returns registered check names sorted alphabetically.
func (m *Monitor) Checks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunChecks executes every enabled check concurrently with its timeout,
// aggregates the results, and appends the snapshot to history.
func (m *Monitor) RunChecks(ctx context.Context) SystemHealth {
	m.mu.RLock()
	var enabled []Check
	for _, c := range m.checks {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].Name < enabled[j].Name })

	results := make([]Result, len(enabled))
	var wg sync.WaitGroup
	for i, c := range enabled {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = m.runCheck(ctx, c)
		}(i, c)
	}
	wg.Wait()

	snapshot := SystemHealth{
		Status:    aggregate(results),
		Results:   results,
		Timestamp: time.Now().UTC(),
	}

	m.mu.Lock()
	m.history = append(m.history, snapshot)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	m.mu.Unlock()

	if snapshot.Status != schema.HealthStatusHealthy {
		m.logger.Warn("health degraded", "status", snapshot.Status, "checks", len(results))
	}
	return snapshot
}

func (m *Monitor) runCheck(ctx context.Context, c Check) Result {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := c.Probe(ctx)
		done <- outcome{ok, err}
	}()

	res := Result{
		Name:      c.Name,
		Critical:  c.Critical,
		Timestamp: start.UTC(),
	}
	select {
	case o := <-done:
		res.Duration = time.Since(start)
		switch {
		case o.err != nil:
			res.Status = failureStatus(c)
			res.Message = "check errored"
			res.Error = o.err.Error()
		case !o.ok:
			res.Status = failureStatus(c)
			res.Message = "check failed"
		default:
			res.Status = schema.HealthStatusHealthy
			res.Message = "ok"
		}
	case <-ctx.Done():
		res.Duration = time.Since(start)
		res.Status = failureStatus(c)
		res.Message = "check timed out"
		res.Error = ctx.Err().Error()
	}
	return res
}

func failureStatus(c Check) schema.HealthStatus {
	if c.Critical {
		return schema.HealthStatusCritical
	}
	return schema.HealthStatusWarning
}

// Current returns the most recent snapshot, if any.
func (m *Monitor) Current() (SystemHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return SystemHealth{}, false
	}
	return m.history[len(m.history)-1], true
}

// History returns a copy of the retained snapshots, oldest first.
func (m *Monitor) History() []SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SystemHealth, len(m.history))
	copy(out, m.history)
	return out
}

// ClearHistory discards all retained snapshots.
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// report is the JSON layout of ExportReport.
type report struct {
	ReportGenerated  time.Time      `json:"report_generated"`
	CurrentHealth    *SystemHealth  `json:"current_health"`
	RecentHistory    []SystemHealth `json:"recent_history"`
	RegisteredChecks []string       `json:"registered_checks"`
}

// ExportReport renders the current health, recent history, and
// registered check names as JSON.
func (m *Monitor) ExportReport() ([]byte, error) {
	r := report{
		ReportGenerated:  time.Now().UTC(),
		RecentHistory:    m.History(),
		RegisteredChecks: m.Checks(),
	}
	if current, ok := m.Current(); ok {
		r.CurrentHealth = &current
	}
	return json.MarshalIndent(r, "", "  ")
}
