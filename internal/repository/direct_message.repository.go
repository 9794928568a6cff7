package repository

import (
	"context"
	"errors"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDirectMessageNotFound is returned when no direct message matches a
// correlation key.
var ErrDirectMessageNotFound = errors.New("direct message not found")

type DirectMessageRepository struct {
	*pg.DB
}

func NewDirectMessageRepository(db *pg.DB) *DirectMessageRepository {
	return &DirectMessageRepository{
		db,
	}
}

func (r *DirectMessageRepository) Create(ctx context.Context, dm *model.DirectMessage) (*model.DirectMessage, error) {
	entity := toDirectMessageEntity(dm)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDirectMessageModel(entity), nil
}

func (r *DirectMessageRepository) FindByMessageID(ctx context.Context, messageID string) (*model.DirectMessage, error) {
	var entity DirectMessageEntity
	err := r.Read(ctx).WithContext(ctx).First(&entity, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDirectMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDirectMessageModel(&entity), nil
}

func (r *DirectMessageRepository) UpsertReceipt(ctx context.Context, directMessageID int64, phone string, kind model.ReceiptKind) error {
	entity := &DirectReceiptEntity{
		DirectMessageID: directMessageID,
		Phone:           phone,
		Kind:            string(kind),
	}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "direct_message_id"}, {Name: "phone"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(entity).Error
}

// MarkFailed settles a direct message as failed after an asynchronous
// provider error arrives for its correlation key.
func (r *DirectMessageRepository) MarkFailed(ctx context.Context, messageID string) (bool, error) {
	res := r.Write(ctx).WithContext(ctx).Model(&DirectMessageEntity{}).
		Where("message_id = ?", messageID).
		Update("status", "failed")
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RecomputeReceiptCounts recounts delivered/read from the child receipt rows,
// same rule as campaign groups: count, never increment.
func (r *DirectMessageRepository) RecomputeReceiptCounts(ctx context.Context, directMessageID int64) (*model.DirectMessage, error) {
	var delivered, read int64

	err := r.Read(ctx).WithContext(ctx).Model(&DirectReceiptEntity{}).
		Where("direct_message_id = ? AND kind = ?", directMessageID, model.ReceiptKindDelivered).
		Count(&delivered).Error
	if err != nil {
		return nil, err
	}
	err = r.Read(ctx).WithContext(ctx).Model(&DirectReceiptEntity{}).
		Where("direct_message_id = ? AND kind = ?", directMessageID, model.ReceiptKindRead).
		Count(&read).Error
	if err != nil {
		return nil, err
	}

	err = r.Write(ctx).WithContext(ctx).Model(&DirectMessageEntity{}).
		Where("id = ?", directMessageID).
		Updates(map[string]interface{}{
			"delivered_count": delivered,
			"read_count":      read,
		}).Error
	if err != nil {
		return nil, err
	}

	var entity DirectMessageEntity
	if err := r.Read(ctx).WithContext(ctx).First(&entity, "id = ?", directMessageID).Error; err != nil {
		return nil, err
	}
	return toDirectMessageModel(&entity), nil
}
