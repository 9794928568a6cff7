package model

import "time"

// DirectMessage is a one-off send outside any campaign. Receipt webhooks that
// do not match a campaign group row fall back to this table before being
// treated as a benign no-op.
type DirectMessage struct {
	ID             int64      `json:"id"              db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	OrgID          int64      `json:"org_id"          db:"org_id"          gorm:"column:org_id;not null;index"`
	ChatJID        string     `json:"chat_jid"        db:"chat_jid"        gorm:"column:chat_jid;not null"`
	Content        string     `json:"content"         db:"content"         gorm:"column:content;not null"`
	MessageID      *string    `json:"message_id"      db:"message_id"      gorm:"column:message_id;uniqueIndex"`
	Status         string     `json:"status"          db:"status"          gorm:"column:status;not null"`
	DeliveredCount int        `json:"delivered_count" db:"delivered_count" gorm:"column:delivered_count;not null;default:0"`
	ReadCount      int        `json:"read_count"      db:"read_count"      gorm:"column:read_count;not null;default:0"`
	SentAt         *time.Time `json:"sent_at"         db:"sent_at"         gorm:"column:sent_at"`
	CreatedAt      time.Time  `json:"created_at"      db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (DirectMessage) TableName() string { return "direct_messages" }

// DirectReceipt mirrors Receipt for direct messages.
type DirectReceipt struct {
	ID              int64          `json:"id"                db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	DirectMessageID int64          `json:"direct_message_id" db:"direct_message_id" gorm:"column:direct_message_id;not null;index;uniqueIndex:ux_direct_receipt"`
	DirectMessage   *DirectMessage `json:"-"                                          gorm:"foreignKey:DirectMessageID;references:ID;constraint:OnDelete:CASCADE"`
	Phone           string         `json:"phone"             db:"phone"             gorm:"column:phone;not null;uniqueIndex:ux_direct_receipt"`
	Kind            ReceiptKind    `json:"kind"              db:"kind"              gorm:"column:kind;not null;uniqueIndex:ux_direct_receipt"`
	CreatedAt       time.Time      `json:"created_at"        db:"created_at"        gorm:"column:created_at;autoCreateTime"`
}

func (DirectReceipt) TableName() string { return "direct_receipts" }
