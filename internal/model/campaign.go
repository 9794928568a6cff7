package model

import (
	"errors"
	"strings"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignStatusDraft          CampaignStatus = "draft"
	CampaignStatusScheduled      CampaignStatus = "scheduled"
	CampaignStatusSending        CampaignStatus = "sending"
	CampaignStatusCompleted      CampaignStatus = "completed"
	CampaignStatusPartialFailure CampaignStatus = "partial_failure"
	CampaignStatusFailed         CampaignStatus = "failed"
)

// MediaType is the declared kind of an attached media reference.
type MediaType string

const (
	MediaTypeImage    MediaType = "image"
	MediaTypeVideo    MediaType = "video"
	MediaTypeDocument MediaType = "document"
	MediaTypeAudio    MediaType = "audio"
)

type Campaign struct {
	ID            int64          `json:"id"             db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	OrgID         int64          `json:"org_id"         db:"org_id"         gorm:"column:org_id;not null;index"`
	Name          string         `json:"name"           db:"name"           gorm:"column:name;not null"`
	Message       string         `json:"message"        db:"message"        gorm:"column:message;not null"`
	MediaURL      string         `json:"media_url"      db:"media_url"      gorm:"column:media_url"`
	MediaType     MediaType      `json:"media_type"     db:"media_type"     gorm:"column:media_type"`
	Status        CampaignStatus `json:"status"         db:"status"         gorm:"column:status;not null;index"`
	ScheduledFor  *time.Time     `json:"scheduled_for"  db:"scheduled_for"  gorm:"column:scheduled_for"`
	DelaySeconds  int            `json:"delay_seconds"  db:"delay_seconds"  gorm:"column:delay_seconds;not null;default:0"`
	SentCount     int            `json:"sent_count"     db:"sent_count"     gorm:"column:sent_count;not null;default:0"`
	FailedCount   int            `json:"failed_count"   db:"failed_count"   gorm:"column:failed_count;not null;default:0"`
	TotalGroups   int            `json:"total_groups"   db:"total_groups"   gorm:"column:total_groups;not null;default:0"`
	TotalAudience int            `json:"total_audience" db:"total_audience" gorm:"column:total_audience;not null;default:0"`
	CreatedAt     time.Time      `json:"created_at"     db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	StartedAt     *time.Time     `json:"started_at"     db:"started_at"     gorm:"column:started_at"`
	CompletedAt   *time.Time     `json:"completed_at"   db:"completed_at"   gorm:"column:completed_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// Settled reports whether the campaign reached a terminal status.
func (c *Campaign) Settled() bool {
	switch c.Status {
	case CampaignStatusCompleted, CampaignStatusPartialFailure, CampaignStatusFailed:
		return true
	}
	return false
}

// DeriveFinalStatus applies the three-way settle rule over recounted child rows.
func DeriveFinalStatus(sent, failed int) CampaignStatus {
	switch {
	case failed == 0:
		return CampaignStatusCompleted
	case sent > 0:
		return CampaignStatusPartialFailure
	default:
		return CampaignStatusFailed
	}
}

// CampaignCreateRequest is the input for creating a campaign with its
// recipient groups.
type CampaignCreateRequest struct {
	OrgID        int64
	Name         string
	Message      string
	MediaURL     string
	MediaType    MediaType
	ScheduledFor *time.Time
	DelaySeconds int
	Groups       []GroupTarget
}

// GroupTarget identifies one recipient conversation.
type GroupTarget struct {
	GroupJID    string
	MemberCount int
}

func (p CampaignCreateRequest) Validate() error {
	if p.OrgID == 0 {
		return errors.New("org_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(p.Message) == "" && p.MediaURL == "" {
		return errors.New("message or media is required")
	}
	if p.DelaySeconds < 0 {
		return errors.New("delay_seconds must not be negative")
	}
	for _, g := range p.Groups {
		if strings.TrimSpace(g.GroupJID) == "" {
			return errors.New("group_jid is required for every group")
		}
	}
	return nil
}

// CampaignFilter controls List queries.
type CampaignFilter struct {
	OrgID    *int64
	Statuses []CampaignStatus
	From     *time.Time
	To       *time.Time
	Limit    int // default 50
	Offset   int
	Desc     bool
}

// DispatchTally is the per-campaign outcome of one dispatcher cycle.
type DispatchTally struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
