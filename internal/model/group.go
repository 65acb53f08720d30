package model

import (
	"time"

	"gorm.io/gorm"
)

type GroupType string

const (
	GroupTypePrivate      GroupType = "private"
	GroupTypePublic       GroupType = "public"
	GroupTypeAnnouncement GroupType = "announcement"
)

func (t GroupType) Valid() bool {
	switch t {
	case GroupTypePrivate, GroupTypePublic, GroupTypeAnnouncement:
		return true
	}
	return false
}

type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryWork      Category = "work"
	CategoryFamily    Category = "family"
	CategoryFriends   Category = "friends"
	CategoryCommunity Category = "community"
	CategoryEducation Category = "education"
	CategoryOther     Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryGeneral, CategoryWork, CategoryFamily, CategoryFriends,
		CategoryCommunity, CategoryEducation, CategoryOther:
		return true
	}
	return false
}

// Group 群组模型
type Group struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string `gorm:"not null;type:varchar(255)" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	AvatarURL   string `gorm:"type:text" json:"avatar_url"`
	CreatorID   string `gorm:"not null;type:varchar(64)" json:"creator_id"`

	Type            GroupType     `gorm:"not null;type:varchar(16)" json:"type"`
	Category        Category      `gorm:"not null;type:varchar(16)" json:"category"`
	MaxParticipants int           `gorm:"not null" json:"max_participants"`
	Settings        GroupSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	Archived        bool          `gorm:"not null" json:"archived"`

	PinnedMessageIDs []string `gorm:"type:text;serializer:json" json:"pinned_message_ids"`

	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	LastActivity time.Time      `gorm:"not null;index" json:"last_activity"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Participants is hydrated by the service layer and never persisted with the row.
	Participants []Participant `gorm:"-" json:"participants,omitempty"`
}

func (Group) TableName() string {
	return "chat_groups"
}

// ActiveParticipant returns the active membership row of userID, if any.
func (g *Group) ActiveParticipant(userID string) (*Participant, bool) {
	for i := range g.Participants {
		p := &g.Participants[i]
		if p.UserID == userID && p.Active {
			return p, true
		}
	}
	return nil, false
}

// ActiveCount counts active participants among the hydrated rows.
func (g *Group) ActiveCount() int {
	n := 0
	for _, p := range g.Participants {
		if p.Active {
			n++
		}
	}
	return n
}

// AdminCount counts active admins among the hydrated rows.
func (g *Group) AdminCount() int {
	n := 0
	for _, p := range g.Participants {
		if p.Active && p.Role == RoleAdmin {
			n++
		}
	}
	return n
}

// IsPinned reports whether messageID is in the pinned list.
func (g *Group) IsPinned(messageID string) bool {
	for _, id := range g.PinnedMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// GroupPatch carries the columns an UpdateGroup call should touch.
// Nil fields are left unchanged.
type GroupPatch struct {
	Name             *string
	Description      *string
	AvatarURL        *string
	Settings         *GroupSettings
	Archived         *bool
	PinnedMessageIDs *[]string
	LastActivity     *time.Time
}

// Apply writes the non-nil fields of the patch onto g.
func (p GroupPatch) Apply(g *Group) {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.Description != nil {
		g.Description = *p.Description
	}
	if p.AvatarURL != nil {
		g.AvatarURL = *p.AvatarURL
	}
	if p.Settings != nil {
		g.Settings = *p.Settings
	}
	if p.Archived != nil {
		g.Archived = *p.Archived
	}
	if p.PinnedMessageIDs != nil {
		g.PinnedMessageIDs = append([]string(nil), (*p.PinnedMessageIDs)...)
	}
	if p.LastActivity != nil {
		g.LastActivity = *p.LastActivity
	}
}
