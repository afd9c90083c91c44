package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var defaultRegistry = newRegistry()

var durationBuckets = []float64{0.5, 1, 5, 15, 30, 60, 120, 300}

type registry struct {
	mu                  sync.Mutex
	toolCalls           map[string]map[string]int64
	toolDurationBuckets map[string][]int64
	upstreamErrors      map[string]map[int]int64
}

func newRegistry() *registry {
	return &registry{
		toolCalls:           make(map[string]map[string]int64),
		toolDurationBuckets: make(map[string][]int64),
		upstreamErrors:      make(map[string]map[int]int64),
	}
}

// Reset clears all counters.
func Reset() {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	fresh := newRegistry()
	defaultRegistry.toolCalls = fresh.toolCalls
	defaultRegistry.toolDurationBuckets = fresh.toolDurationBuckets
	defaultRegistry.upstreamErrors = fresh.upstreamErrors
}

func IncToolCall(toolName, status string) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolCalls[toolName]; !ok {
		defaultRegistry.toolCalls[toolName] = make(map[string]int64)
	}
	defaultRegistry.toolCalls[toolName][status]++
}

// ObserveToolDuration buckets generation latency. Upstream CAD generation
// routinely takes tens of seconds, hence the wide buckets.
func ObserveToolDuration(toolName string, d time.Duration) {
	sec := d.Seconds()

	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.toolDurationBuckets[toolName]; !ok {
		defaultRegistry.toolDurationBuckets[toolName] = make([]int64, len(durationBuckets)+1)
	}
	idx := len(durationBuckets)
	for i, b := range durationBuckets {
		if sec <= b {
			idx = i
			break
		}
	}
	defaultRegistry.toolDurationBuckets[toolName][idx]++
}

// IncUpstreamError counts failed upstream calls. statusCode is 0 when no
// HTTP response was received.
func IncUpstreamError(endpoint string, statusCode int) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.upstreamErrors[endpoint]; !ok {
		defaultRegistry.upstreamErrors[endpoint] = make(map[int]int64)
	}
	defaultRegistry.upstreamErrors[endpoint][statusCode]++
}

func RenderPrometheus() string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	var sb strings.Builder

	sb.WriteString("# TYPE gnucleus_tool_calls_total counter\n")
	for _, tool := range sortedKeys(defaultRegistry.toolCalls) {
		for _, status := range sortedKeys(defaultRegistry.toolCalls[tool]) {
			sb.WriteString(fmt.Sprintf("gnucleus_tool_calls_total{tool=\"%s\",status=\"%s\"} %d\n", tool, status, defaultRegistry.toolCalls[tool][status]))
		}
	}

	sb.WriteString("# TYPE gnucleus_tool_duration_seconds_bucket counter\n")
	for _, tool := range sortedKeys(defaultRegistry.toolDurationBuckets) {
		counts := defaultRegistry.toolDurationBuckets[tool]
		for i, v := range counts {
			sb.WriteString(fmt.Sprintf("gnucleus_tool_duration_seconds_bucket{tool=\"%s\",le=\"%s\"} %d\n", tool, bucketLabel(i), v))
		}
	}

	sb.WriteString("# TYPE gnucleus_upstream_errors_total counter\n")
	for _, endpoint := range sortedKeys(defaultRegistry.upstreamErrors) {
		statusCodes := make([]int, 0, len(defaultRegistry.upstreamErrors[endpoint]))
		for sc := range defaultRegistry.upstreamErrors[endpoint] {
			statusCodes = append(statusCodes, sc)
		}
		sort.Ints(statusCodes)
		for _, sc := range statusCodes {
			sb.WriteString(fmt.Sprintf("gnucleus_upstream_errors_total{endpoint=\"%s\",status_code=\"%d\"} %d\n", endpoint, sc, defaultRegistry.upstreamErrors[endpoint][sc]))
		}
	}

	return sb.String()
}

func bucketLabel(i int) string {
	if i >= len(durationBuckets) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", durationBuckets[i])
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
