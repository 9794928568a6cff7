package model

import "time"

// Reaction is one reactor's emoji on a group row. A person has at most one
// reaction per group; a newer emoji replaces the old one, removal deletes it.
type Reaction struct {
	ID        int64          `json:"id"         db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	GroupID   int64          `json:"group_id"   db:"group_id"   gorm:"column:group_id;not null;index;uniqueIndex:ux_reaction_group_phone"`
	Group     *CampaignGroup `json:"-"                            gorm:"foreignKey:GroupID;references:ID;constraint:OnDelete:CASCADE"`
	Phone     string         `json:"phone"      db:"phone"      gorm:"column:phone;not null;uniqueIndex:ux_reaction_group_phone"`
	Emoji     string         `json:"emoji"      db:"emoji"      gorm:"column:emoji;not null"`
	CreatedAt time.Time      `json:"created_at" db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Reaction) TableName() string { return "campaign_reactions" }
