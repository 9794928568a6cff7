package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/internal/repository"
	"github.com/coachdesk/campaign-gateway/internal/services"
	xhttp "github.com/coachdesk/campaign-gateway/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, id int64) (*services.CampaignDetail, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Delete(ctx context.Context, id int64) error
}

type CampaignHandler struct {
	svc CampaignService
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	e.POST("/campaigns", h.CreateCampaign)
	e.GET("/campaigns", h.ListCampaigns)
	e.GET("/campaigns/{id}", h.GetCampaign)
	e.DELETE("/campaigns/{id}", h.DeleteCampaign)
}

func NewCampaignHandler(campaignService CampaignService) *CampaignHandler {
	return &CampaignHandler{
		svc: campaignService,
	}
}

type createCampaignGroup struct {
	GroupJID    string `json:"group_jid"`
	MemberCount int    `json:"member_count"`
}

type createCampaignRequest struct {
	OrgID        int64                 `json:"org_id"`
	Name         string                `json:"name"`
	Message      string                `json:"message"`
	MediaURL     string                `json:"media_url"`
	MediaType    string                `json:"media_type"`
	ScheduledFor *time.Time            `json:"scheduled_for"`
	DelaySeconds int                   `json:"delay_seconds"`
	Groups       []createCampaignGroup `json:"groups"`
}

type campaignListResponse struct {
	Items []*model.Campaign `json:"items"`
	Total int64             `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *CampaignHandler) CreateCampaign(ctx *xhttp.RequestCtx) {
	var req createCampaignRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	p := model.CampaignCreateRequest{
		OrgID:        req.OrgID,
		Name:         req.Name,
		Message:      req.Message,
		MediaURL:     req.MediaURL,
		MediaType:    model.MediaType(req.MediaType),
		ScheduledFor: req.ScheduledFor,
		DelaySeconds: req.DelaySeconds,
	}
	for _, g := range req.Groups {
		p.Groups = append(p.Groups, model.GroupTarget{
			GroupJID:    g.GroupJID,
			MemberCount: g.MemberCount,
		})
	}

	c, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, c)
}

func (h *CampaignHandler) GetCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}

	detail, err := h.svc.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(ctx, 404, "campaign not found")
		return
	}
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, detail)
}

func (h *CampaignHandler) ListCampaigns(ctx *xhttp.RequestCtx) {
	var f model.CampaignFilter

	if v := query(ctx, "org_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.OrgID = &id
		}
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.CampaignStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, campaignListResponse{Items: items, Total: total})
}

func (h *CampaignHandler) DeleteCampaign(ctx *xhttp.RequestCtx) {
	id, err := pathID(ctx)
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}

	err = h.svc.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(ctx, 404, "campaign not found")
		return
	}
	if errors.Is(err, repository.ErrNotDeletable) {
		writeError(ctx, 409, "campaign has already started sending")
		return
	}
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	ctx.Response.SetStatusCode(204)
}

/* --------------------------------- Helpers ----------------------------------- */

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func pathID(ctx *xhttp.RequestCtx) (int64, error) {
	v, _ := ctx.UserValue("id").(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
