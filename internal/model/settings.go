package model

import (
	"errors"
	"fmt"
)

// Audience says who a policy toggle applies to.
type Audience string

const (
	AudienceEveryone   Audience = "everyone"
	AudienceAdminsOnly Audience = "admins_only"
)

func (a Audience) Valid() bool {
	return a == AudienceEveryone || a == AudienceAdminsOnly
}

var ErrInvalidSettings = errors.New("invalid group settings")

// GroupSettings 群组设置，始终完整存储
type GroupSettings struct {
	WhoCanSendMessages  Audience `gorm:"column:who_can_send;type:varchar(16)" json:"who_can_send_messages"`
	WhoCanAddMembers    Audience `gorm:"column:who_can_add;type:varchar(16)" json:"who_can_add_members"`
	WhoCanEditInfo      Audience `gorm:"column:who_can_edit;type:varchar(16)" json:"who_can_edit_info"`
	WhoCanRemoveMembers Audience `gorm:"column:who_can_remove;type:varchar(16)" json:"who_can_remove_members"`

	DisappearingMessages bool  `gorm:"column:disappearing" json:"disappearing_messages"`
	DisappearingSeconds  int64 `gorm:"column:disappearing_seconds" json:"disappearing_seconds,omitempty"`

	AllowMemberInvites bool `gorm:"column:allow_member_invites" json:"allow_member_invites"`
	NotifyOnJoin       bool `gorm:"column:notify_join" json:"notify_on_join"`
	NotifyOnLeave      bool `gorm:"column:notify_leave" json:"notify_on_leave"`
	MuteNonAdmins      bool `gorm:"column:mute_non_admins" json:"mute_non_admins"`
}

// DefaultSettings is the baseline every group starts from.
func DefaultSettings() GroupSettings {
	return GroupSettings{
		WhoCanSendMessages:  AudienceEveryone,
		WhoCanAddMembers:    AudienceAdminsOnly,
		WhoCanEditInfo:      AudienceAdminsOnly,
		WhoCanRemoveMembers: AudienceAdminsOnly,
		AllowMemberInvites:  true,
		NotifyOnJoin:        true,
		NotifyOnLeave:       true,
	}
}

// Validate checks that every toggle holds a legal value.
func (s GroupSettings) Validate() error {
	if !s.WhoCanSendMessages.Valid() {
		return fmt.Errorf("%w: who_can_send_messages=%q", ErrInvalidSettings, s.WhoCanSendMessages)
	}
	if !s.WhoCanAddMembers.Valid() {
		return fmt.Errorf("%w: who_can_add_members=%q", ErrInvalidSettings, s.WhoCanAddMembers)
	}
	if !s.WhoCanEditInfo.Valid() {
		return fmt.Errorf("%w: who_can_edit_info=%q", ErrInvalidSettings, s.WhoCanEditInfo)
	}
	// removal stays with admins no matter what the client asks for
	if s.WhoCanRemoveMembers != AudienceAdminsOnly {
		return fmt.Errorf("%w: who_can_remove_members must be %q", ErrInvalidSettings, AudienceAdminsOnly)
	}
	if s.DisappearingSeconds < 0 {
		return fmt.Errorf("%w: disappearing_seconds must not be negative", ErrInvalidSettings)
	}
	return nil
}

// SettingsPatch is a partial settings update. Nil fields keep their current value.
type SettingsPatch struct {
	WhoCanSendMessages   *Audience `json:"who_can_send_messages,omitempty"`
	WhoCanAddMembers     *Audience `json:"who_can_add_members,omitempty"`
	WhoCanEditInfo       *Audience `json:"who_can_edit_info,omitempty"`
	WhoCanRemoveMembers  *Audience `json:"who_can_remove_members,omitempty"`
	DisappearingMessages *bool     `json:"disappearing_messages,omitempty"`
	DisappearingSeconds  *int64    `json:"disappearing_seconds,omitempty"`
	AllowMemberInvites   *bool     `json:"allow_member_invites,omitempty"`
	NotifyOnJoin         *bool     `json:"notify_on_join,omitempty"`
	NotifyOnLeave        *bool     `json:"notify_on_leave,omitempty"`
	MuteNonAdmins        *bool     `json:"mute_non_admins,omitempty"`
}

// Merge returns base with every non-nil field of the patch applied.
func (s GroupSettings) Merge(p *SettingsPatch) GroupSettings {
	if p == nil {
		return s
	}
	if p.WhoCanSendMessages != nil {
		s.WhoCanSendMessages = *p.WhoCanSendMessages
	}
	if p.WhoCanAddMembers != nil {
		s.WhoCanAddMembers = *p.WhoCanAddMembers
	}
	if p.WhoCanEditInfo != nil {
		s.WhoCanEditInfo = *p.WhoCanEditInfo
	}
	if p.WhoCanRemoveMembers != nil {
		s.WhoCanRemoveMembers = *p.WhoCanRemoveMembers
	}
	if p.DisappearingMessages != nil {
		s.DisappearingMessages = *p.DisappearingMessages
	}
	if p.DisappearingSeconds != nil {
		s.DisappearingSeconds = *p.DisappearingSeconds
	}
	if p.AllowMemberInvites != nil {
		s.AllowMemberInvites = *p.AllowMemberInvites
	}
	if p.NotifyOnJoin != nil {
		s.NotifyOnJoin = *p.NotifyOnJoin
	}
	if p.NotifyOnLeave != nil {
		s.NotifyOnLeave = *p.NotifyOnLeave
	}
	if p.MuteNonAdmins != nil {
		s.MuteNonAdmins = *p.MuteNonAdmins
	}
	return s
}

// Changed lists the json names of the fields the patch sets.
func (p *SettingsPatch) Changed() []string {
	if p == nil {
		return nil
	}
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.WhoCanSendMessages != nil, "who_can_send_messages")
	add(p.WhoCanAddMembers != nil, "who_can_add_members")
	add(p.WhoCanEditInfo != nil, "who_can_edit_info")
	add(p.WhoCanRemoveMembers != nil, "who_can_remove_members")
	add(p.DisappearingMessages != nil, "disappearing_messages")
	add(p.DisappearingSeconds != nil, "disappearing_seconds")
	add(p.AllowMemberInvites != nil, "allow_member_invites")
	add(p.NotifyOnJoin != nil, "notify_on_join")
	add(p.NotifyOnLeave != nil, "notify_on_leave")
	add(p.MuteNonAdmins != nil, "mute_non_admins")
	return out
}
