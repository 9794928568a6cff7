package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/coachdesk/campaign-gateway/internal/services"
	xhttp "github.com/coachdesk/campaign-gateway/pkg/http"
)

type DispatcherService interface {
	ProcessDue(ctx context.Context, now time.Time) (*services.DispatchSummary, error)
}

// DispatchHandler exposes a manual trigger for one dispatch cycle, mostly for
// operators and tests. The dispatcher binary runs the same cycle on a ticker.
type DispatchHandler struct {
	svc DispatcherService
}

func RegisterDispatchRoutes(e *router.Group, h *DispatchHandler) {
	e.POST("/dispatch/run", h.RunCycle)
}

func NewDispatchHandler(dispatcherService DispatcherService) *DispatchHandler {
	return &DispatchHandler{
		svc: dispatcherService,
	}
}

func (h *DispatchHandler) RunCycle(ctx *xhttp.RequestCtx) {
	summary, err := h.svc.ProcessDue(ctx, time.Now())
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, summary)
}
