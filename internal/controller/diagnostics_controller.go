package controller

import (
	"net/http"

	"github.com/cassiomorais/checkout/internal/application/diagnostics"
)

type DiagnosticsController struct {
	outboxStats *diagnostics.OutboxStatsUseCase
}

func NewDiagnosticsController(outboxStats *diagnostics.OutboxStatsUseCase) *DiagnosticsController {
	return &DiagnosticsController{outboxStats: outboxStats}
}

// Outbox handles GET /api/v1/diagnostics/outbox
func (h *DiagnosticsController) Outbox(w http.ResponseWriter, r *http.Request) {
	stats, err := h.outboxStats.Execute(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FromOutboxStats(stats))
}
