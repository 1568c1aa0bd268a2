package health

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/voice-interpreter/internal/voicesession"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type SessionStats struct {
	Listen        int  `json:"listen"`
	Conversations int  `json:"conversations"`
	RealtimeLive  bool `json:"realtime_live"`
	Subscriptions int  `json:"subscriptions"`
}

type RequestStats struct {
	TotalRequests  uint64 `json:"total_requests"`
	ActiveRequests int64  `json:"active_requests"`
}

type Stats struct {
	Sessions SessionStats `json:"sessions"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// Check probes one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Component is a named readiness probe. Optional components only degrade
// the overall status when they fail.
type Component struct {
	Name     string
	Check    Check
	Optional bool
}

type SubscriptionCounter interface {
	SubscriptionCount() int
}

type Handler struct {
	manager    *voicesession.Manager
	subs       SubscriptionCounter
	components []Component
	gatherer   prometheus.Gatherer
	version    string
	startTime  time.Time
	timeout    time.Duration

	totalRequests  uint64
	activeRequests int64
}

func NewHandler(
	manager *voicesession.Manager,
	subs SubscriptionCounter,
	gatherer prometheus.Gatherer,
	version string,
	components ...Component,
) *Handler {
	return &Handler{
		manager:    manager,
		subs:       subs,
		components: components,
		gatherer:   gatherer,
		version:    version,
		startTime:  time.Now(),
		timeout:    10 * time.Second,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
}

// CountRequests tracks request totals for the readiness report.
func (h *Handler) CountRequests() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddUint64(&h.totalRequests, 1)
			atomic.AddInt64(&h.activeRequests, 1)
			defer atomic.AddInt64(&h.activeRequests, -1)
			return next(c)
		}
	}
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	components := h.runChecks(ctx)
	overallStatus := h.computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Sessions: h.sessionStats(),
			Requests: RequestStats{
				TotalRequests:  atomic.LoadUint64(&h.totalRequests),
				ActiveRequests: atomic.LoadInt64(&h.activeRequests),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

func (h *Handler) runChecks(ctx context.Context) map[string]ComponentStatus {
	components := make(map[string]ComponentStatus, len(h.components))
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(h.components))
	for _, comp := range h.components {
		go func(comp Component) {
			defer wg.Done()
			status := probe(ctx, comp)
			mu.Lock()
			components[comp.Name] = status
			mu.Unlock()
		}(comp)
	}
	wg.Wait()
	return components
}

func probe(ctx context.Context, comp Component) ComponentStatus {
	start := time.Now()
	if comp.Check == nil {
		return ComponentStatus{Status: StatusUnhealthy, Error: comp.Name + " not configured"}
	}
	if err := comp.Check(ctx); err != nil {
		status := StatusUnhealthy
		if comp.Optional {
			status = StatusDegraded
		}
		return ComponentStatus{
			Status:    status,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     err.Error(),
		}
	}
	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) sessionStats() SessionStats {
	var stats SessionStats
	if h.manager != nil {
		counts := h.manager.Counts()
		stats.Listen = counts.Listen
		stats.Conversations = counts.Conversations
		stats.RealtimeLive = counts.RealtimeLive
	}
	if h.subs != nil {
		stats.Subscriptions = h.subs.SubscriptionCount()
	}
	return stats
}

func (h *Handler) computeOverallStatus(components map[string]ComponentStatus) Status {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := StatusHealthy
	for _, name := range names {
		switch components[name].Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
