package repository

import (
	"context"
	"errors"
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
)

// ErrGroupNotFound is returned when no group row matches a lookup.
var ErrGroupNotFound = errors.New("campaign group not found")

type CampaignGroupRepository struct {
	*pg.DB
}

func NewCampaignGroupRepository(db *pg.DB) *CampaignGroupRepository {
	return &CampaignGroupRepository{
		db,
	}
}

func (r *CampaignGroupRepository) GetByID(ctx context.Context, id int64) (*model.CampaignGroup, error) {
	var entity CampaignGroupEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignGroupModel(&entity), nil
}

func (r *CampaignGroupRepository) ListByCampaign(ctx context.Context, campaignID int64) ([]*model.CampaignGroup, error) {
	var entities []*CampaignGroupEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC, id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toCampaignGroupModels(entities), nil
}

// ListPending returns up to limit pending rows for one campaign, oldest
// first, so a bounded batch always drains in creation order.
func (r *CampaignGroupRepository) ListPending(ctx context.Context, campaignID int64, limit int) ([]*model.CampaignGroup, error) {
	var entities []*CampaignGroupEntity
	q := r.Read(ctx).WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, model.GroupStatusPending).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entities).Error; err != nil {
		return nil, err
	}
	return toCampaignGroupModels(entities), nil
}

// MarkProcessing claims a pending row. The WHERE status guard is the
// compare-and-swap that keeps concurrent writers off the same row.
func (r *CampaignGroupRepository) MarkProcessing(ctx context.Context, id int64, now time.Time) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("id = ? AND status = ?", id, model.GroupStatusPending).
		Updates(map[string]interface{}{
			"status":                model.GroupStatusProcessing,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkSent settles a claimed row as sent and records the provider
// correlation key. message_id is set exactly once; a row that already
// carries one is left untouched.
func (r *CampaignGroupRepository) MarkSent(ctx context.Context, id int64, messageID string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":  model.GroupStatusSent,
		"sent_at": now,
	}
	if messageID != "" {
		updates["message_id"] = messageID
	}
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("id = ? AND status = ? AND message_id IS NULL", id, model.GroupStatusProcessing).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed settles a claimed row as failed with a human-readable reason.
func (r *CampaignGroupRepository) MarkFailed(ctx context.Context, id int64, errMsg string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("id = ? AND status IN ?", id, []string{string(model.GroupStatusPending), string(model.GroupStatusProcessing)}).
		Updates(map[string]interface{}{
			"status":        model.GroupStatusFailed,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailedByMessageID settles an already-sent row as failed after an
// asynchronous provider error arrives for its correlation key.
func (r *CampaignGroupRepository) MarkFailedByMessageID(ctx context.Context, messageID string, errMsg string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("message_id = ?", messageID).
		Updates(map[string]interface{}{
			"status":        model.GroupStatusFailed,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FailAllPending short-circuits every remaining pending row of a campaign,
// e.g. when the messaging session is disconnected.
func (r *CampaignGroupRepository) FailAllPending(ctx context.Context, campaignID int64, reason string) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("campaign_id = ? AND status = ?", campaignID, model.GroupStatusPending).
		Updates(map[string]interface{}{
			"status":        model.GroupStatusFailed,
			"error_message": reason,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *CampaignGroupRepository) FindByMessageID(ctx context.Context, messageID string) (*model.CampaignGroup, error) {
	var entity CampaignGroupEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignGroupModel(&entity), nil
}

// FindLatestProcessingByJID locates the most recent in-flight row for a
// conversation target. Used by the send-result callback path, which has no
// message_id to correlate on yet.
func (r *CampaignGroupRepository) FindLatestProcessingByJID(ctx context.Context, groupJID string) (*model.CampaignGroup, error) {
	var entity CampaignGroupEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("group_jid = ? AND status = ?", groupJID, model.GroupStatusProcessing).
		Order("processing_started_at DESC, id DESC").
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return toCampaignGroupModel(&entity), nil
}

// ResetStaleProcessing returns rows stuck in processing to pending. Rows
// that already carry a message_id are excluded: those were accepted by the
// provider and must wait for their callback instead of being re-sent.
func (r *CampaignGroupRepository) ResetStaleProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("status = ? AND processing_started_at < ? AND message_id IS NULL", model.GroupStatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":                model.GroupStatusPending,
			"processing_started_at": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// StatusCounts recounts the row status distribution for a campaign.
func (r *CampaignGroupRepository) StatusCounts(ctx context.Context, campaignID int64) (model.GroupStatusCounts, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	err := r.Read(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
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

// RecomputeReceiptCounts recounts delivered/read/reaction totals from the
// child receipt and reaction rows and writes them onto the group row.
// Counting instead of incrementing keeps duplicate webhooks harmless.
func (r *CampaignGroupRepository) RecomputeReceiptCounts(ctx context.Context, groupID int64) (*model.CampaignGroup, error) {
	var delivered, read, reactions int64

	err := r.Read(ctx).WithContext(ctx).Model(&ReceiptEntity{}).
		Where("group_id = ? AND kind = ?", groupID, model.ReceiptKindDelivered).
		Count(&delivered).Error
	if err != nil {
		return nil, err
	}
	err = r.Read(ctx).WithContext(ctx).Model(&ReceiptEntity{}).
		Where("group_id = ? AND kind = ?", groupID, model.ReceiptKindRead).
		Count(&read).Error
	if err != nil {
		return nil, err
	}
	err = r.Read(ctx).WithContext(ctx).Model(&ReactionEntity{}).
		Where("group_id = ?", groupID).
		Count(&reactions).Error
	if err != nil {
		return nil, err
	}

	err = r.Write(ctx).WithContext(ctx).Model(&CampaignGroupEntity{}).
		Where("id = ?", groupID).
		Updates(map[string]interface{}{
			"delivered_count": delivered,
			"read_count":      read,
			"reaction_count":  reactions,
		}).Error
	if err != nil {
		return nil, err
	}

	return r.GetByID(ctx, groupID)
}
