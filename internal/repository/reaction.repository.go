package repository

import (
	"context"

	"github.com/coachdesk/campaign-gateway/internal/model"
	"github.com/coachdesk/campaign-gateway/pkg/pg"
	"gorm.io/gorm/clause"
)

type ReactionRepository struct {
	*pg.DB
}

func NewReactionRepository(db *pg.DB) *ReactionRepository {
	return &ReactionRepository{
		db,
	}
}

// Upsert stores one reaction per (group, phone). A newer emoji from the same
// person replaces the previous row instead of adding to it.
func (r *ReactionRepository) Upsert(ctx context.Context, groupID int64, phone string, emoji string) error {
	entity := &ReactionEntity{
		GroupID: groupID,
		Phone:   phone,
		Emoji:   emoji,
	}
	return r.Write(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "phone"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji"}),
		}).
		Create(entity).Error
}

// Delete removes a person's reaction. Deleting a reaction that never existed
// is a no-op, which keeps reaction_remove webhooks idempotent.
func (r *ReactionRepository) Delete(ctx context.Context, groupID int64, phone string) error {
	return r.Write(ctx).WithContext(ctx).
		Where("group_id = ? AND phone = ?", groupID, phone).
		Delete(&ReactionEntity{}).Error
}

func (r *ReactionRepository) Count(ctx context.Context, groupID int64) (int64, error) {
	var n int64
	err := r.Read(ctx).WithContext(ctx).Model(&ReactionEntity{}).
		Where("group_id = ?", groupID).
		Count(&n).Error
	return n, err
}

func (r *ReactionRepository) ListByGroup(ctx context.Context, groupID int64) ([]*model.Reaction, error) {
	var entities []*ReactionEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC, id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.Reaction, len(entities))
	for i, e := range entities {
		out[i] = toReactionModel(e)
	}
	return out, nil
}
