package repository

import (
	"context"
	"errors"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a campaign does not exist.
	ErrNotFound = errors.New("campaign not found")
	// ErrNotDeletable is returned when a campaign has already started sending.
	ErrNotDeletable = errors.New("campaign is not in a deletable status")
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

// Create stores a campaign and its recipient group rows in one transaction.
// total_groups and total_audience are denormalized from the group targets.
func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign, targets []model.GroupTarget) (*model.Campaign, error) {
	entity := toCampaignEntity(c)
	entity.TotalGroups = len(targets)
	entity.TotalAudience = 0
	for _, t := range targets {
		entity.TotalAudience += t.MemberCount
	}

	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
			return err
		}
		for _, t := range targets {
			g := &CampaignGroupEntity{
				CampaignID:  entity.ID,
				GroupJID:    t.GroupJID,
				MemberCount: t.MemberCount,
				Status:      string(model.GroupStatusPending),
			}
			if err := r.Write(ctx).WithContext(ctx).Create(g).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toCampaignModel(entity), nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignModel(&entity), nil
}

func (r *CampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&CampaignEntity{})

	if f.OrgID != nil {
		q = q.Where("org_id = ?", *f.OrgID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*CampaignEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toCampaignModels(entities), total, nil
}

// SelectDue returns the campaigns one dispatcher cycle should advance:
// those mid-send, plus scheduled ones whose time has come. Bounded so a
// single invocation stays within its time budget.
func (r *CampaignRepository) SelectDue(ctx context.Context, now time.Time, limit int) ([]*model.Campaign, error) {
	if limit <= 0 {
		limit = 5
	}
	var entities []*CampaignEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status = ?", model.CampaignStatusSending).
		Or("status = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", model.CampaignStatusScheduled, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignModels(entities), nil
}

// MarkSending transitions a due campaign into sending and stamps started_at.
// The conditional update makes concurrent cycles race-safe: only one wins.
func (r *CampaignRepository) MarkSending(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignEntity{}).
		Where("id = ? AND status IN ?", id, []string{string(model.CampaignStatusDraft), string(model.CampaignStatusScheduled)}).
		Updates(map[string]interface{}{
			"status":     model.CampaignStatusSending,
			"started_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecomputeAggregates recounts sent/failed from the child group rows and
// re-derives the campaign status. Counters are never incremented in place, so
// duplicate or out-of-order writes cannot skew them. Campaigns still in
// draft/scheduled keep their status; only counters move.
func (r *CampaignRepository) RecomputeAggregates(ctx context.Context, id int64) (*model.Campaign, error) {
	var result *model.Campaign
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var entity CampaignEntity
		err := r.Write(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		counts, err := r.groupStatusCounts(ctx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"sent_count":   counts.Sent,
			"failed_count": counts.Failed,
		}

		status := model.CampaignStatus(entity.Status)
		if status != model.CampaignStatusDraft && status != model.CampaignStatusScheduled {
			if counts.Settled() {
				status = model.DeriveFinalStatus(counts.Sent, counts.Failed)
				updates["status"] = status
				if entity.CompletedAt == nil {
					updates["completed_at"] = time.Now()
				}
			} else {
				status = model.CampaignStatusSending
				updates["status"] = status
				updates["completed_at"] = gorm.Expr("NULL")
			}
		}

		if err := r.Write(ctx).WithContext(ctx).Model(&CampaignEntity{}).
			Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}

		err = r.Write(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
		if err != nil {
			return err
		}
		result = toCampaignModel(&entity)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *CampaignRepository) groupStatusCounts(ctx context.Context, campaignID int64) (model.GroupStatusCounts, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return model.GroupStatusCounts{}, err
	}

	var counts model.GroupStatusCounts
	for _, r := range rows {
		switch model.GroupStatus(r.Status) {
		case model.GroupStatusPending:
			counts.Pending = r.N
		case model.GroupStatusProcessing:
			counts.Processing = r.N
		case model.GroupStatusSent:
			counts.Sent = r.N
		case model.GroupStatusFailed:
			counts.Failed = r.N
		}
	}
	return counts, nil
}

// Delete removes a campaign and its group rows. Only draft and scheduled
// campaigns may be deleted; an in-flight campaign must settle first.
func (r *CampaignRepository) Delete(ctx context.Context, id int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		var entity CampaignEntity
		err := r.Write(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		status := model.CampaignStatus(entity.Status)
		if status != model.CampaignStatusDraft && status != model.CampaignStatusScheduled {
			return ErrNotDeletable
		}

		if err := r.Write(ctx).WithContext(ctx).
			Where("campaign_id = ?", id).Delete(&CampaignGroupEntity{}).Error; err != nil {
			return err
		}
		return r.Write(ctx).WithContext(ctx).Delete(&CampaignEntity{}, "id = ?", id).Error
	})
}
