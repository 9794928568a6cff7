package model

import "time"

// GroupStatus is the delivery state of one recipient group row. Rows only
// move pending -> processing -> sent|failed; stale-recovery is the single
// path back to pending.
type GroupStatus string

const (
	GroupStatusPending    GroupStatus = "pending"
	GroupStatusProcessing GroupStatus = "processing"
	GroupStatusSent       GroupStatus = "sent"
	GroupStatusFailed     GroupStatus = "failed"
)

type CampaignGroup struct {
	ID                  int64       `json:"id"             db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID          int64       `json:"campaign_id"    db:"campaign_id"    gorm:"column:campaign_id;not null;index"`
	Campaign            *Campaign   `json:"-"                                    gorm:"foreignKey:CampaignID;references:ID;constraint:OnDelete:CASCADE"`
	GroupJID            string      `json:"group_jid"      db:"group_jid"      gorm:"column:group_jid;not null;index"`
	MemberCount         int         `json:"member_count"   db:"member_count"   gorm:"column:member_count;not null;default:0"`
	Status              GroupStatus `json:"status"         db:"status"         gorm:"column:status;not null;index"`
	MessageID           *string     `json:"message_id"     db:"message_id"     gorm:"column:message_id;uniqueIndex"` // provider correlation key, set once
	ErrorMessage        string      `json:"error_message"  db:"error_message"  gorm:"column:error_message"`
	DeliveredCount      int         `json:"delivered_count" db:"delivered_count" gorm:"column:delivered_count;not null;default:0"`
	ReadCount           int         `json:"read_count"     db:"read_count"     gorm:"column:read_count;not null;default:0"`
	ReactionCount       int         `json:"reaction_count" db:"reaction_count" gorm:"column:reaction_count;not null;default:0"`
	SentAt              *time.Time  `json:"sent_at"        db:"sent_at"        gorm:"column:sent_at"`
	ProcessingStartedAt *time.Time  `json:"processing_started_at" db:"processing_started_at" gorm:"column:processing_started_at"`
	CreatedAt           time.Time   `json:"created_at"     db:"created_at"     gorm:"column:created_at;autoCreateTime"`
}

func (CampaignGroup) TableName() string { return "campaign_groups" }

// GroupStatusCounts is the recounted distribution of a campaign's group rows.
type GroupStatusCounts struct {
	Pending    int
	Processing int
	Sent       int
	Failed     int
}

func (c GroupStatusCounts) Total() int {
	return c.Pending + c.Processing + c.Sent + c.Failed
}

// Settled reports whether every row reached a terminal status.
func (c GroupStatusCounts) Settled() bool {
	return c.Pending == 0 && c.Processing == 0
}
