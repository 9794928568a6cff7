package repository

import (
	"time"

	"github.com/coachdesk/campaign-gateway/internal/model"
)

type CampaignGroupEntity struct {
	ID                  int64      `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID          int64      `db:"campaign_id"           gorm:"column:campaign_id;not null;index"`
	GroupJID            string     `db:"group_jid"             gorm:"column:group_jid;not null;index"`
	MemberCount         int        `db:"member_count"          gorm:"column:member_count;not null;default:0"`
	Status              string     `db:"status"                gorm:"column:status;not null;index"`
	MessageID           *string    `db:"message_id"            gorm:"column:message_id;uniqueIndex"`
	ErrorMessage        string     `db:"error_message"         gorm:"column:error_message"`
	DeliveredCount      int        `db:"delivered_count"       gorm:"column:delivered_count;not null;default:0"`
	ReadCount           int        `db:"read_count"            gorm:"column:read_count;not null;default:0"`
	ReactionCount       int        `db:"reaction_count"        gorm:"column:reaction_count;not null;default:0"`
	SentAt              *time.Time `db:"sent_at"               gorm:"column:sent_at"`
	ProcessingStartedAt *time.Time `db:"processing_started_at" gorm:"column:processing_started_at"`
	CreatedAt           time.Time  `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
}

func (CampaignGroupEntity) TableName() string {
	return "campaign_groups"
}

func toCampaignGroupEntity(m *model.CampaignGroup) *CampaignGroupEntity {
	if m == nil {
		return nil
	}
	return &CampaignGroupEntity{
		ID:                  m.ID,
		CampaignID:          m.CampaignID,
		GroupJID:            m.GroupJID,
		MemberCount:         m.MemberCount,
		Status:              string(m.Status),
		MessageID:           m.MessageID,
		ErrorMessage:        m.ErrorMessage,
		DeliveredCount:      m.DeliveredCount,
		ReadCount:           m.ReadCount,
		ReactionCount:       m.ReactionCount,
		SentAt:              m.SentAt,
		ProcessingStartedAt: m.ProcessingStartedAt,
		CreatedAt:           m.CreatedAt,
	}
}

func toCampaignGroupModel(e *CampaignGroupEntity) *model.CampaignGroup {
	if e == nil {
		return nil
	}
	return &model.CampaignGroup{
		ID:                  e.ID,
		CampaignID:          e.CampaignID,
		GroupJID:            e.GroupJID,
		MemberCount:         e.MemberCount,
		Status:              model.GroupStatus(e.Status),
		MessageID:           e.MessageID,
		ErrorMessage:        e.ErrorMessage,
		DeliveredCount:      e.DeliveredCount,
		ReadCount:           e.ReadCount,
		ReactionCount:       e.ReactionCount,
		SentAt:              e.SentAt,
		ProcessingStartedAt: e.ProcessingStartedAt,
		CreatedAt:           e.CreatedAt,
	}
}

func toCampaignGroupModels(entities []*CampaignGroupEntity) []*model.CampaignGroup {
	if entities == nil {
		return nil
	}
	models := make([]*model.CampaignGroup, len(entities))
	for i, e := range entities {
		models[i] = toCampaignGroupModel(e)
	}
	return models
}
