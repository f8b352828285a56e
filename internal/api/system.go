package api

import (
	"context"
	"net/http"
	"time"
)

// healthProbeTimeout bounds each dependency check so a stalled backend
// cannot hang the health endpoint.
const healthProbeTimeout = 2 * time.Second

// handleHealth reports overall service health and the state of each
// optional backend. The endpoint returns 200 as long as the service is
// up; degraded backends are reported in the checks map.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if s.db != nil {
		checks["database"] = probeResult(r.Context(), s.db.HealthCheck)
	}
	if s.influx != nil {
		checks["influxdb"] = probeResult(r.Context(), s.influx.HealthCheck)
	}

	status := "ok"
	for _, result := range checks {
		if result != "ok" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"checks":         checks,
	})
}

// handleMetrics reports directory and per-coordinator counters for
// basic monitoring.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	coordinators := make(map[string]any, len(s.coordinators))
	for _, c := range s.coordinators {
		stats := c.Mesh.Topology().Stats()
		coordinators[c.Config.Name] = map[string]any{
			"id":          c.Config.ID,
			"queue_depth": c.Mesh.QueueDepth(),
			"mesh":        stats,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":      s.registry.Stats(),
		"coordinators": coordinators,
	})
}

func probeResult(ctx context.Context, probe func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	if err := probe(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
