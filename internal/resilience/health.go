package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Name      string                 `json:"name"`
	Status    HealthStatus           `json:"status"`
	Message   string                 `json:"message"`
	LastCheck time.Time              `json:"last_check"`
	Latency   time.Duration          `json:"latency"`
	Critical  bool                   `json:"critical"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// HealthCheck represents a health check function.
type HealthCheck func(ctx context.Context) ComponentHealth

type registeredCheck struct {
	check    HealthCheck
	critical bool
}

// HealthMonitor runs registered checks on an interval and serves the
// latest results over HTTP.
type HealthMonitor struct {
	mu sync.RWMutex

	checkInterval      time.Duration
	goroutineThreshold int
	logger             zerolog.Logger

	startTime       time.Time
	components      map[string]registeredCheck
	componentHealth map[string]ComponentHealth
	overallStatus   HealthStatus
	totalChecks     int64
	failedChecks    int64
}

// HealthMonitorConfig holds health monitor configuration.
type HealthMonitorConfig struct {
	CheckInterval      time.Duration
	GoroutineThreshold int
}

// DefaultHealthMonitorConfig returns default configuration.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval:      30 * time.Second,
		GoroutineThreshold: 1000,
	}
}

// NewHealthMonitor creates a new health monitor.
func NewHealthMonitor(config HealthMonitorConfig, logger zerolog.Logger) *HealthMonitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultHealthMonitorConfig().CheckInterval
	}
	return &HealthMonitor{
		checkInterval:      config.CheckInterval,
		goroutineThreshold: config.GoroutineThreshold,
		logger:             logger.With().Str("component", "health").Logger(),
		startTime:          time.Now(),
		components:         make(map[string]registeredCheck),
		componentHealth:    make(map[string]ComponentHealth),
		overallStatus:      HealthStatusUnknown,
	}
}

// RegisterComponent registers a health check. Critical components gate
// readiness; others can only degrade the overall status.
func (m *HealthMonitor) RegisterComponent(name string, critical bool, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = registeredCheck{check: check, critical: critical}
}

// Run checks on the configured interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	m.RunChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunChecks(ctx)
		}
	}
}

// RunChecks executes all checks once and updates the overall status.
func (m *HealthMonitor) RunChecks(ctx context.Context) SystemHealth {
	m.mu.RLock()
	components := make(map[string]registeredCheck, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	results := make(chan ComponentHealth, len(components)+1)

	for name, rc := range components {
		wg.Add(1)
		go func(n string, rc registeredCheck) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- ComponentHealth{
						Name:      n,
						Status:    HealthStatusUnhealthy,
						Message:   fmt.Sprintf("Panic recovered: %v", r),
						LastCheck: time.Now(),
						Critical:  rc.critical,
					}
				}
			}()

			start := time.Now()
			health := rc.check(ctx)
			health.Name = n
			health.Critical = rc.critical
			health.LastCheck = time.Now()
			if health.Latency == 0 {
				health.Latency = time.Since(start)
			}
			results <- health
		}(name, rc)
	}
	results <- m.checkGoroutines()

	wg.Wait()
	close(results)

	m.mu.Lock()
	m.totalChecks++
	status := HealthStatusHealthy
	for health := range results {
		m.componentHealth[health.Name] = health
		switch health.Status {
		case HealthStatusUnhealthy:
			m.failedChecks++
			m.logger.Warn().Str("check", health.Name).Str("status", string(health.Status)).Msg(health.Message)
			if health.Critical {
				status = HealthStatusUnhealthy
			} else if status == HealthStatusHealthy {
				status = HealthStatusDegraded
			}
		case HealthStatusDegraded:
			if status == HealthStatusHealthy {
				status = HealthStatusDegraded
			}
		}
	}
	m.overallStatus = status
	m.mu.Unlock()

	return m.GetHealth()
}

func (m *HealthMonitor) checkGoroutines() ComponentHealth {
	n := runtime.NumGoroutine()
	health := ComponentHealth{
		Name:      "goroutines",
		LastCheck: time.Now(),
		Details:   map[string]interface{}{"count": n},
		Status:    HealthStatusHealthy,
		Message:   fmt.Sprintf("Goroutine count: %d", n),
	}
	if m.goroutineThreshold > 0 && n > m.goroutineThreshold {
		health.Status = HealthStatusDegraded
		health.Message = fmt.Sprintf("High goroutine count: %d", n)
	}
	return health
}

// GetHealth returns the current health status.
func (m *HealthMonitor) GetHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	components := make([]ComponentHealth, 0, len(m.componentHealth))
	for _, h := range m.componentHealth {
		components = append(components, h)
	}
	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })

	return SystemHealth{
		Status:       m.overallStatus,
		Uptime:       time.Since(m.startTime).Round(time.Second).String(),
		StartTime:    m.startTime,
		Components:   components,
		TotalChecks:  m.totalChecks,
		FailedChecks: m.failedChecks,
	}
}

// IsReady reports whether no critical component is unhealthy.
func (m *HealthMonitor) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.overallStatus == HealthStatusHealthy || m.overallStatus == HealthStatusDegraded
}

// SystemHealth represents overall system health.
type SystemHealth struct {
	Status       HealthStatus      `json:"status"`
	Uptime       string            `json:"uptime"`
	StartTime    time.Time         `json:"start_time"`
	Components   []ComponentHealth `json:"components"`
	TotalChecks  int64             `json:"total_checks"`
	FailedChecks int64             `json:"failed_checks"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// HealthHTTPHandler returns an HTTP handler for health checks.
func (m *HealthMonitor) HealthHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := m.GetHealth()
		code := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, health)
	}
}

// LivenessHTTPHandler returns an HTTP handler for liveness checks.
func (m *HealthMonitor) LivenessHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHTTPHandler returns an HTTP handler for readiness checks.
func (m *HealthMonitor) ReadinessHTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.IsReady() {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

// ConnectionHealthCheck reports a broker-style connection.
func ConnectionHealthCheck(isConnected func() bool) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if isConnected() {
			return ComponentHealth{Status: HealthStatusHealthy, Message: "Connected"}
		}
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: "Disconnected"}
	}
}

// DatabaseHealthCheck creates a health check for database connections.
func DatabaseHealthCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		start := time.Now()
		err := ping(ctx)
		health := ComponentHealth{Latency: time.Since(start)}

		switch {
		case err != nil:
			health.Status = HealthStatusUnhealthy
			health.Message = fmt.Sprintf("Database ping failed: %v", err)
		case health.Latency > 100*time.Millisecond:
			health.Status = HealthStatusDegraded
			health.Message = fmt.Sprintf("Database slow: %v", health.Latency)
		default:
			health.Status = HealthStatusHealthy
			health.Message = fmt.Sprintf("Database healthy: %v", health.Latency)
		}
		return health
	}
}

// BreakerHealthCheck degrades when any breaker of the policy is open.
func BreakerHealthCheck(p *Policy) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		health := ComponentHealth{Status: HealthStatusHealthy, Message: "All circuits closed", Details: map[string]interface{}{}}
		for _, s := range p.Stats() {
			health.Details[s.Name] = s.State
			if s.State != CircuitClosed {
				health.Status = HealthStatusDegraded
				health.Message = fmt.Sprintf("Circuit %s is %s", s.Name, s.State)
			}
		}
		return health
	}
}
