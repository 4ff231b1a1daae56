// Package health aggregates the operational snapshot spec.md §9 calls
// "operational monitoring": ingress buffer stats, fusion batch stats,
// predictor staleness, loop-coordinator queue depth, and the
// correction generation. Grounded on the teacher's HealthStatus/
// LivenessHandler/ReadinessHandler/StartHealthServer
// (References/orion-prototipe/internal/core/health.go) — kept on
// net/http since this is a single read-only JSON dump with no
// third-party surface to exercise (see DESIGN.md).
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kaben/fusion-core/internal/fusion"
	"github.com/kaben/fusion-core/internal/ingress"
)

// Status mirrors the teacher's HealthStatus shape, generalized to this
// domain's components.
type Status struct {
	Status         string              `json:"status"`
	UptimeSeconds  int64               `json:"uptime_seconds"`
	Ingress        ingress.BufferStats `json:"ingress"`
	LastBatch      fusion.BatchStats   `json:"last_batch"`
	PredictorT     float64             `json:"predictor_t_latest"`
	LoopQueueDepth int                 `json:"loop_queue_depth"`
	CorrectionGen  uint64              `json:"correction_generation"`
}

// Monitor accumulates the values Status reports, updated by the
// components it observes.
type Monitor struct {
	started time.Time

	mu             sync.Mutex
	buffers        *ingress.Buffers
	lastBatch      fusion.BatchStats
	predictorT     func() float64
	loopQueueDepth func() int
	correctionGen  func() uint64
}

// New creates a monitor. The accessor funcs may be nil; a nil accessor
// reports its zero value.
func New(buffers *ingress.Buffers, predictorT func() float64, loopQueueDepth func() int, correctionGen func() uint64) *Monitor {
	return &Monitor{
		started:        time.Now(),
		buffers:        buffers,
		predictorT:     predictorT,
		loopQueueDepth: loopQueueDepth,
		correctionGen:  correctionGen,
	}
}

// ObserveBatch records the latest fusion batch stats; wire it as
// fusion.Config.OnBatch.
func (m *Monitor) ObserveBatch(s fusion.BatchStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBatch = s
}

// Snapshot returns the current point-in-time status.
func (m *Monitor) Snapshot() Status {
	m.mu.Lock()
	lastBatch := m.lastBatch
	m.mu.Unlock()

	s := Status{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(m.started).Seconds()),
		LastBatch:     lastBatch,
	}
	if m.buffers != nil {
		s.Ingress = m.buffers.Stats()
	}
	if m.predictorT != nil {
		s.PredictorT = m.predictorT()
	}
	if m.loopQueueDepth != nil {
		s.LoopQueueDepth = m.loopQueueDepth()
	}
	if m.correctionGen != nil {
		s.CorrectionGen = m.correctionGen()
	}
	return s
}

// LivenessHandler answers 200 if the process can run this code at all.
func (m *Monitor) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(m.started).Seconds()),
	})
}

// ReadinessHandler reports the full aggregated snapshot.
func (m *Monitor) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(m.Snapshot())
}

// StartServer starts the health HTTP server on addr in a background
// goroutine; it does not block.
func (m *Monitor) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", m.LivenessHandler)
	mux.HandleFunc("/readiness", m.ReadinessHandler)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "error", err)
		}
	}()

	return server
}
