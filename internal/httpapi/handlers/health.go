package handlers

import (
	"context"
	"net/http"
	"time"

	"renderworker/internal/httpkit"
	"renderworker/internal/worker"
)

// Health reports whether the worker is up. With ?deep=true it also pings the
// database, the dispatch service and the archive storage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": "render-worker",
		"slots":   h.slotSummary(),
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] == "error" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

// slotSummary counts slots per state.
func (h *Handler) slotSummary() map[worker.State]int {
	out := map[worker.State]int{}
	if h.slots == nil {
		return out
	}
	for _, s := range h.slots.Slots() {
		out[s.Status().State]++
	}
	return out
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := make(map[string]map[string]any)

	if h.db != nil {
		checks["postgres"] = check(ctx, h.db.Ping)
	}
	if h.dispatch != nil {
		checks["dispatch"] = check(ctx, h.dispatch.Ping)
	}
	if h.sp != nil {
		c := check(ctx, h.sp.Ping)
		c["provider"] = h.sp.Provider()
		checks["storage"] = c
	}
	return checks
}

func check(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{
		"status": "ok",
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}

	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
