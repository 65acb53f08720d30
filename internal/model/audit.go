package model

import "time"

type AuditKind string

const (
	AuditGroupCreated         AuditKind = "group_created"
	AuditGroupInfoUpdated     AuditKind = "group_info_updated"
	AuditGroupSettingsUpdated AuditKind = "group_settings_updated"
	AuditGroupArchived        AuditKind = "group_archived"
	AuditGroupDeleted         AuditKind = "group_deleted"
	AuditMemberAdded          AuditKind = "member_added"
	AuditMemberRemoved        AuditKind = "member_removed"
	AuditMemberLeft           AuditKind = "member_left"
	AuditMemberJoined         AuditKind = "member_joined"
	AuditMemberPromoted       AuditKind = "member_promoted"
	AuditMemberDemoted        AuditKind = "member_demoted"
	AuditMemberTitleChanged   AuditKind = "member_title_changed"
	AuditInviteCreated        AuditKind = "invite_created"
	AuditInviteRevoked        AuditKind = "invite_revoked"
	AuditMessagePinned        AuditKind = "message_pinned"
	AuditMessageUnpinned      AuditKind = "message_unpinned"
)

// AuditEntry 系统消息/审计记录，只追加不修改
type AuditEntry struct {
	ID        int64          `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	GroupID   string         `gorm:"index;not null;type:varchar(64)" json:"group_id"`
	Kind      AuditKind      `gorm:"not null;type:varchar(32)" json:"kind"`
	ActorID   string         `gorm:"not null;type:varchar(64)" json:"actor_id"`
	TargetIDs []string       `gorm:"type:text;serializer:json" json:"target_ids,omitempty"`
	Details   map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
