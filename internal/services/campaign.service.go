package services

import (
	"context"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
)

type CampaignStoreRepository interface {
	Create(ctx context.Context, c *model.Campaign, targets []model.GroupTarget) (*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Delete(ctx context.Context, id int64) error
}

type GroupListRepository interface {
	ListByCampaign(ctx context.Context, campaignID int64) ([]*model.CampaignGroup, error)
}

// CampaignDetail is a campaign together with its per-group rows.
type CampaignDetail struct {
	Campaign *model.Campaign        `json:"campaign"`
	Groups   []*model.CampaignGroup `json:"groups"`
}

// CampaignService owns campaign lifecycle outside of dispatch: creation,
// lookup and deletion.
type CampaignService struct {
	campaignRepo CampaignStoreRepository
	groupRepo    GroupListRepository
}

func NewCampaignService(campaignRepo CampaignStoreRepository, groupRepo GroupListRepository) *CampaignService {
	return &CampaignService{
		campaignRepo: campaignRepo,
		groupRepo:    groupRepo,
	}
}

// Create validates and stores a new campaign with its recipient groups.
// A scheduled_for in the request makes it scheduled, otherwise it stays a
// draft until scheduled explicitly.
func (s *CampaignService) Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	status := model.CampaignStatusDraft
	var scheduledFor *time.Time
	if req.ScheduledFor != nil {
		status = model.CampaignStatusScheduled
		t := req.ScheduledFor.UTC()
		scheduledFor = &t
	}

	c := &model.Campaign{
		OrgID:        req.OrgID,
		Name:         req.Name,
		Message:      req.Message,
		MediaURL:     req.MediaURL,
		MediaType:    req.MediaType,
		Status:       status,
		ScheduledFor: scheduledFor,
		DelaySeconds: req.DelaySeconds,
	}

	return s.campaignRepo.Create(ctx, c, req.Groups)
}

func (s *CampaignService) Get(ctx context.Context, id int64) (*CampaignDetail, error) {
	c, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	groups, err := s.groupRepo.ListByCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetail{Campaign: c, Groups: groups}, nil
}

func (s *CampaignService) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	return s.campaignRepo.List(ctx, f)
}

// Delete removes a campaign that has not started sending. In-flight or
// settled campaigns return repository.ErrNotDeletable.
func (s *CampaignService) Delete(ctx context.Context, id int64) error {
	return s.campaignRepo.Delete(ctx, id)
}
