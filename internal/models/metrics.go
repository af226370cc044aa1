package models

import "time"

// SystemMetrics is the JSON snapshot served next to the Prometheus endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64           `json:"cache_hit_ratio"`
	CacheHits                uint64            `json:"cache_hits"`
	CacheMisses              uint64            `json:"cache_misses"`
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	EnrollmentOutcomes       map[string]uint64 `json:"enrollment_outcomes"`
	LifecycleTransitions     uint64            `json:"lifecycle_transitions"`
	CounterDrifts            uint64            `json:"counter_drifts"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
