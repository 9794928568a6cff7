package repository

import (
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
)

type CampaignEntity struct {
	ID            int64      `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	OrgID         int64      `db:"org_id"         gorm:"column:org_id;not null;index"`
	Name          string     `db:"name"           gorm:"column:name;not null"`
	Message       string     `db:"message"        gorm:"column:message;not null"`
	MediaURL      string     `db:"media_url"      gorm:"column:media_url"`
	MediaType     string     `db:"media_type"     gorm:"column:media_type"`
	Status        string     `db:"status"         gorm:"column:status;not null;index"`
	ScheduledFor  *time.Time `db:"scheduled_for"  gorm:"column:scheduled_for"`
	DelaySeconds  int        `db:"delay_seconds"  gorm:"column:delay_seconds;not null;default:0"`
	SentCount     int        `db:"sent_count"     gorm:"column:sent_count;not null;default:0"`
	FailedCount   int        `db:"failed_count"   gorm:"column:failed_count;not null;default:0"`
	TotalGroups   int        `db:"total_groups"   gorm:"column:total_groups;not null;default:0"`
	TotalAudience int        `db:"total_audience" gorm:"column:total_audience;not null;default:0"`
	CreatedAt     time.Time  `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	StartedAt     *time.Time `db:"started_at"     gorm:"column:started_at"`
	CompletedAt   *time.Time `db:"completed_at"   gorm:"column:completed_at"`

	Groups []*CampaignGroupEntity `gorm:"foreignKey:CampaignID"`
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(m *model.Campaign) *CampaignEntity {
	if m == nil {
		return nil
	}
	return &CampaignEntity{
		ID:            m.ID,
		OrgID:         m.OrgID,
		Name:          m.Name,
		Message:       m.Message,
		MediaURL:      m.MediaURL,
		MediaType:     string(m.MediaType),
		Status:        string(m.Status),
		ScheduledFor:  m.ScheduledFor,
		DelaySeconds:  m.DelaySeconds,
		SentCount:     m.SentCount,
		FailedCount:   m.FailedCount,
		TotalGroups:   m.TotalGroups,
		TotalAudience: m.TotalAudience,
		CreatedAt:     m.CreatedAt,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
}

func toCampaignModel(e *CampaignEntity) *model.Campaign {
	if e == nil {
		return nil
	}
	return &model.Campaign{
		ID:            e.ID,
		OrgID:         e.OrgID,
		Name:          e.Name,
		Message:       e.Message,
		MediaURL:      e.MediaURL,
		MediaType:     model.MediaType(e.MediaType),
		Status:        model.CampaignStatus(e.Status),
		ScheduledFor:  e.ScheduledFor,
		DelaySeconds:  e.DelaySeconds,
		SentCount:     e.SentCount,
		FailedCount:   e.FailedCount,
		TotalGroups:   e.TotalGroups,
		TotalAudience: e.TotalAudience,
		CreatedAt:     e.CreatedAt,
		StartedAt:     e.StartedAt,
		CompletedAt:   e.CompletedAt,
	}
}

func toCampaignModels(entities []*CampaignEntity) []*model.Campaign {
	if entities == nil {
		return nil
	}
	models := make([]*model.Campaign, len(entities))
	for i, e := range entities {
		models[i] = toCampaignModel(e)
	}
	return models
}
