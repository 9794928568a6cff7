package repository

import (
	"context"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"gorm.io/gorm/clause"
)

type ReceiptRepository struct {
	*pg.DB
}

func NewReceiptRepository(db *pg.DB) *ReceiptRepository {
	return &ReceiptRepository{
		db,
	}
}

// Upsert records a receipt if none exists for (group, phone, kind). The
// conflict target is the natural uniqueness constraint, so replayed webhooks
// are absorbed without a second row.
func (r *ReceiptRepository) Upsert(ctx context.Context, groupID int64, phone string, kind model.ReceiptKind) error {
	entity := &ReceiptEntity{
		GroupID: groupID,
		Phone:   phone,
		Kind:    string(kind),
	}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "phone"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(entity).Error
}

func (r *ReceiptRepository) CountByKind(ctx context.Context, groupID int64, kind model.ReceiptKind) (int64, error) {
	var n int64
	err := r.Read(ctx).WithContext(ctx).Model(&ReceiptEntity{}).
		Where("group_id = ? AND kind = ?", groupID, kind).
		Count(&n).Error
	return n, err
}

func (r *ReceiptRepository) ListByGroup(ctx context.Context, groupID int64) ([]*model.Receipt, error) {
	var entities []*ReceiptEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Receipt, len(entities))
	for i, e := range entities {
		out[i] = toReceiptModel(e)
	}
	return out, nil
}
