package model

import "time"

// ReceiptKind distinguishes delivery confirmations from read confirmations.
type ReceiptKind string

const (
	ReceiptKindDelivered ReceiptKind = "delivered"
	ReceiptKindRead      ReceiptKind = "read"
)

// Receipt is one reader's delivered/read confirmation for a group row.
// At most one row exists per (group, phone, kind); duplicate webhooks upsert.
type Receipt struct {
	ID        int64       `json:"id"         db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	GroupID   int64       `json:"group_id"   db:"group_id"   gorm:"column:group_id;not null;index;uniqueIndex:ux_receipt_group_phone_kind"`
	Group     *CampaignGroup `json:"-"                         gorm:"foreignKey:GroupID;references:ID;constraint:OnDelete:CASCADE"`
	Phone     string      `json:"phone"      db:"phone"      gorm:"column:phone;not null;uniqueIndex:ux_receipt_group_phone_kind"`
	Kind      ReceiptKind `json:"kind"       db:"kind"       gorm:"column:kind;not null;uniqueIndex:ux_receipt_group_phone_kind"`
	CreatedAt time.Time   `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Receipt) TableName() string { return "campaign_receipts" }
