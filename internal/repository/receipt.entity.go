package repository

import (
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
)

type ReceiptEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	GroupID   int64     `db:"group_id"   gorm:"column:group_id;not null;index;uniqueIndex:ux_receipt_group_phone_kind"`
	Phone     string    `db:"phone"      gorm:"column:phone;not null;uniqueIndex:ux_receipt_group_phone_kind"`
	Kind      string    `db:"kind"       gorm:"column:kind;not null;uniqueIndex:ux_receipt_group_phone_kind"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ReceiptEntity) TableName() string {
	return "campaign_receipts"
}

func toReceiptModel(e *ReceiptEntity) *model.Receipt {
	if e == nil {
		return nil
	}
	return &model.Receipt{
		ID:        e.ID,
		GroupID:   e.GroupID,
		Phone:     e.Phone,
		Kind:      model.ReceiptKind(e.Kind),
		CreatedAt: e.CreatedAt,
	}
}

type ReactionEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	GroupID   int64     `db:"group_id"   gorm:"column:group_id;not null;index;uniqueIndex:ux_reaction_group_phone"`
	Phone     string    `db:"phone"      gorm:"column:phone;not null;uniqueIndex:ux_reaction_group_phone"`
	Emoji     string    `db:"emoji"      gorm:"column:emoji;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (ReactionEntity) TableName() string {
	return "campaign_reactions"
}

func toReactionModel(e *ReactionEntity) *model.Reaction {
	if e == nil {
		return nil
	}
	return &model.Reaction{
		ID:        e.ID,
		GroupID:   e.GroupID,
		Phone:     e.Phone,
		Emoji:     e.Emoji,
		CreatedAt: e.CreatedAt,
	}
}
