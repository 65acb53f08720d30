package model

import "time"

type InviteState int

const (
	InviteUsable InviteState = iota
	InviteRevoked
	InviteExpired
	InviteExhausted
)

func (s InviteState) String() string {
	switch s {
	case InviteUsable:
		return "usable"
	case InviteRevoked:
		return "revoked"
	case InviteExpired:
		return "expired"
	case InviteExhausted:
		return "exhausted"
	}
	return "unknown"
}

// InviteLink 邀请链接模型
type InviteLink struct {
	ID         string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GroupID    string     `gorm:"not null;index;type:varchar(64)" json:"group_id"`
	Code       string     `gorm:"uniqueIndex;not null;type:varchar(64)" json:"code"`
	CreatorID  string     `gorm:"not null;type:varchar(64)" json:"creator_id"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty"`
	UsageCount int        `gorm:"not null" json:"usage_count"`
	Active     bool       `gorm:"not null" json:"active"`

	URL string `gorm:"-" json:"url,omitempty"`
}

func (InviteLink) TableName() string {
	return "invite_links"
}

// State resolves the effective state of the link at now. A link past its
// expiry or use limit is not usable whatever its stored Active flag says.
func (l *InviteLink) State(now time.Time) InviteState {
	switch {
	case !l.Active:
		return InviteRevoked
	case l.ExpiresAt != nil && !now.Before(*l.ExpiresAt):
		return InviteExpired
	case l.MaxUses != nil && l.UsageCount >= *l.MaxUses:
		return InviteExhausted
	}
	return InviteUsable
}
