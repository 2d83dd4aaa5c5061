package models

import "time"

// SystemMetrics is a lightweight snapshot of process level counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	Derivations              uint64    `json:"derivations"`
	CandidateSearches        uint64    `json:"candidateSearches"`
	LedgerWrites             uint64    `json:"ledgerWrites"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
