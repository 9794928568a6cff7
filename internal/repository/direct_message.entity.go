package repository

import (
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
)

type DirectMessageEntity struct {
	ID             int64      `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	OrgID          int64      `db:"org_id"          gorm:"column:org_id;not null;index"`
	ChatJID        string     `db:"chat_jid"        gorm:"column:chat_jid;not null"`
	Content        string     `db:"content"         gorm:"column:content;not null"`
	MessageID      *string    `db:"message_id"      gorm:"column:message_id;uniqueIndex"`
	Status         string     `db:"status"          gorm:"column:status;not null"`
	DeliveredCount int        `db:"delivered_count" gorm:"column:delivered_count;not null;default:0"`
	ReadCount      int        `db:"read_count"      gorm:"column:read_count;not null;default:0"`
	SentAt         *time.Time `db:"sent_at"         gorm:"column:sent_at"`
	CreatedAt      time.Time  `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (DirectMessageEntity) TableName() string {
	return "direct_messages"
}

type DirectReceiptEntity struct {
	ID              int64     `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	DirectMessageID int64     `db:"direct_message_id" gorm:"column:direct_message_id;not null;index;uniqueIndex:ux_direct_receipt"`
	Phone           string    `db:"phone"             gorm:"column:phone;not null;uniqueIndex:ux_direct_receipt"`
	Kind            string    `db:"kind"              gorm:"column:kind;not null;uniqueIndex:ux_direct_receipt"`
	CreatedAt       time.Time `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
}

func (DirectReceiptEntity) TableName() string {
	return "direct_receipts"
}

func toDirectMessageEntity(m *model.DirectMessage) *DirectMessageEntity {
	if m == nil {
		return nil
	}
	return &DirectMessageEntity{
		ID:             m.ID,
		OrgID:          m.OrgID,
		ChatJID:        m.ChatJID,
		Content:        m.Content,
		MessageID:      m.MessageID,
		Status:         m.Status,
		DeliveredCount: m.DeliveredCount,
		ReadCount:      m.ReadCount,
		SentAt:         m.SentAt,
		CreatedAt:      m.CreatedAt,
	}
}

func toDirectMessageModel(e *DirectMessageEntity) *model.DirectMessage {
	if e == nil {
		return nil
	}
	return &model.DirectMessage{
		ID:             e.ID,
		OrgID:          e.OrgID,
		ChatJID:        e.ChatJID,
		Content:        e.Content,
		MessageID:      e.MessageID,
		Status:         e.Status,
		DeliveredCount: e.DeliveredCount,
		ReadCount:      e.ReadCount,
		SentAt:         e.SentAt,
		CreatedAt:      e.CreatedAt,
	}
}
