package handlers

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/fasthttp/router"
	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/internal/services"
	xhttp "github.com/coachdesk/campaign-gateway/pkg/http"
	"github.com/coachdesk/campaign-gateway/pkg/logger"
)

type ReconcilerService interface {
	Apply(ctx context.Context, event model.Event) (services.Outcome, error)
}

// WebhookHandler receives the gateway's asynchronous events. Every endpoint
// accepts the same tagged payload; the split paths exist so the gateway can
// be pointed at them independently.
type WebhookHandler struct {
	svc    ReconcilerService
	secret string
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/send-result", h.HandleEvent)
	e.POST("/webhooks/receipts", h.HandleEvent)
	e.POST("/webhooks/reactions", h.HandleEvent)
	e.POST("/webhooks/errors", h.HandleEvent)
	e.POST("/webhooks/events", h.HandleEvent)
}

func NewWebhookHandler(reconciler ReconcilerService, secret string) *WebhookHandler {
	return &WebhookHandler{
		svc:    reconciler,
		secret: secret,
	}
}

type webhookResponse struct {
	Status string `json:"status"`
}

func (h *WebhookHandler) HandleEvent(ctx *xhttp.RequestCtx) {
	if !h.authorized(ctx) {
		writeError(ctx, 401, "unauthorized")
		return
	}

	event, err := model.ParseEvent(ctx.PostBody())
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	outcome, err := h.svc.Apply(ctx, event)
	if err != nil {
		logger.Error("Webhook event failed", "event", string(event.Kind()), "error", err)
		writeError(ctx, 500, "internal error")
		return
	}

	writeJSON(ctx, 200, webhookResponse{Status: string(outcome)})
}

// authorized checks the shared secret. Fail closed: a handler configured
// without a secret rejects everything rather than accepting everything.
func (h *WebhookHandler) authorized(ctx *xhttp.RequestCtx) bool {
	if h.secret == "" {
		return false
	}

	presented := string(ctx.Request.Header.Peek("X-Webhook-Secret"))
	if presented == "" {
		auth := string(ctx.Request.Header.Peek("Authorization"))
		if strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.secret)) == 1
}
