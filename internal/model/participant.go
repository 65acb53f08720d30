package model

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Participant 群组成员关系
type Participant struct {
	GroupID string `gorm:"primaryKey;type:varchar(64)" json:"group_id"`
	UserID  string `gorm:"primaryKey;type:varchar(64);index" json:"user_id"`

	Role     Role      `gorm:"not null;type:varchar(16)" json:"role"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
	AddedBy  string    `gorm:"type:varchar(64)" json:"added_by"`
	Active   bool      `gorm:"not null;index" json:"active"`

	LeftAt      *time.Time `json:"left_at,omitempty"`
	RemovedBy   *string    `gorm:"type:varchar(64)" json:"removed_by,omitempty"`
	RemovedAt   *time.Time `json:"removed_at,omitempty"`
	CustomTitle string     `gorm:"type:varchar(64)" json:"custom_title,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`

	// Permissions is derived from role and group settings on read.
	Permissions []string `gorm:"-" json:"permissions,omitempty"`
}

func (Participant) TableName() string {
	return "group_participants"
}

// ParticipantPatch carries the columns an UpsertParticipant call should touch.
type ParticipantPatch struct {
	Role        *Role
	Active      *bool
	LeftAt      *time.Time
	RemovedBy   *string
	RemovedAt   *time.Time
	CustomTitle *string
	LastSeenAt  *time.Time
}

// Apply writes the non-nil fields of the patch onto p.
func (pp ParticipantPatch) Apply(p *Participant) {
	if pp.Role != nil {
		p.Role = *pp.Role
	}
	if pp.Active != nil {
		p.Active = *pp.Active
	}
	if pp.LeftAt != nil {
		t := *pp.LeftAt
		p.LeftAt = &t
	}
	if pp.RemovedBy != nil {
		s := *pp.RemovedBy
		p.RemovedBy = &s
	}
	if pp.RemovedAt != nil {
		t := *pp.RemovedAt
		p.RemovedAt = &t
	}
	if pp.CustomTitle != nil {
		p.CustomTitle = *pp.CustomTitle
	}
	if pp.LastSeenAt != nil {
		t := *pp.LastSeenAt
		p.LastSeenAt = &t
	}
}
