package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupHub/internal/model"
)

// GormRepository implements IGroupRepository on top of gorm (PostgreSQL in production).
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new IGroupRepository backed by db
func NewGormRepository(db *gorm.DB) IGroupRepository {
	return &GormRepository{db: db}
}

var _ IGroupRepository = (*GormRepository)(nil)

// Models lists every table the repository needs, in migration order.
func Models() []any {
	return []any{
		&model.Group{},
		&model.Participant{},
		&model.InviteLink{},
		&model.AuditEntry{},
		&model.Message{},
	}
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// untranslated postgres (23505) and sqlite unique violations
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// Transaction runs fn inside a database transaction
func (r *GormRepository) Transaction(ctx context.Context, fn func(tx IGroupRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepository{db: tx})
	})
}

// InsertGroup creates the group row without its participants
func (r *GormRepository) InsertGroup(ctx context.Context, group *model.Group) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(group).Error
	return translate(err)
}

// InsertParticipants creates the initial membership rows of a group
func (r *GormRepository) InsertParticipants(ctx context.Context, groupID string, rows []model.Participant) error {
	if len(rows) == 0 {
		return nil
	}
	batch := make([]model.Participant, len(rows))
	for i, p := range rows {
		p.GroupID = groupID
		batch[i] = p
	}
	return translate(r.db.WithContext(ctx).Create(&batch).Error)
}

// GetGroup finds a live group by ID
func (r *GormRepository) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// GetGroupForUpdate finds a live group and locks its row
func (r *GormRepository) GetGroupForUpdate(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, translate(err)
	}
	return &group, nil
}

// ListGroupsForUser retrieves all live groups the user is an active member of
func (r *GormRepository) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	var groups []model.Group
	err := r.db.WithContext(ctx).
		Model(&model.Group{}).
		Select("chat_groups.*").
		Joins("JOIN group_participants ON group_participants.group_id = chat_groups.id").
		Where("group_participants.user_id = ? AND group_participants.active = ?", userID, true).
		Order("chat_groups.last_activity DESC").
		Order("chat_groups.id").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// UpdateGroup applies the non-nil fields of patch
func (r *GormRepository) UpdateGroup(ctx context.Context, id string, patch model.GroupPatch) error {
	db := r.db.WithContext(ctx)
	updates := groupColumns(patch)
	if len(updates) == 0 && patch.PinnedMessageIDs == nil {
		_, err := r.GetGroup(ctx, id)
		return err
	}

	var affected int64
	if len(updates) > 0 {
		res := db.Model(&model.Group{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return translate(res.Error)
		}
		affected += res.RowsAffected
	}
	if patch.PinnedMessageIDs != nil {
		// struct updates run the json serializer, map updates do not
		pinned := append([]string{}, (*patch.PinnedMessageIDs)...)
		res := db.Model(&model.Group{}).
			Where("id = ?", id).
			Select("PinnedMessageIDs").
			Updates(&model.Group{PinnedMessageIDs: pinned})
		if res.Error != nil {
			return translate(res.Error)
		}
		affected += res.RowsAffected
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func groupColumns(patch model.GroupPatch) map[string]any {
	updates := make(map[string]any)
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.AvatarURL != nil {
		updates["avatar_url"] = *patch.AvatarURL
	}
	if patch.Archived != nil {
		updates["archived"] = *patch.Archived
	}
	if patch.LastActivity != nil {
		updates["last_activity"] = *patch.LastActivity
	}
	if s := patch.Settings; s != nil {
		updates["settings_who_can_send"] = string(s.WhoCanSendMessages)
		updates["settings_who_can_add"] = string(s.WhoCanAddMembers)
		updates["settings_who_can_edit"] = string(s.WhoCanEditInfo)
		updates["settings_who_can_remove"] = string(s.WhoCanRemoveMembers)
		updates["settings_disappearing"] = s.DisappearingMessages
		updates["settings_disappearing_seconds"] = s.DisappearingSeconds
		updates["settings_allow_member_invites"] = s.AllowMemberInvites
		updates["settings_notify_join"] = s.NotifyOnJoin
		updates["settings_notify_leave"] = s.NotifyOnLeave
		updates["settings_mute_non_admins"] = s.MuteNonAdmins
	}
	return updates
}

// DeleteGroup soft-deletes the group; it disappears from every read
func (r *GormRepository) DeleteGroup(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Group{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetParticipants retrieves all membership rows of a group
func (r *GormRepository) GetParticipants(ctx context.Context, groupID string) ([]model.Participant, error) {
	var rows []model.Participant
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at").
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// AddParticipant inserts or reactivates a membership row. Callers run it in a
// transaction that holds the group lock so the capacity count stays valid.
func (r *GormRepository) AddParticipant(ctx context.Context, p *model.Participant, limit int) error {
	db := r.db.WithContext(ctx)

	var existing model.Participant
	err := db.Where("group_id = ? AND user_id = ?", p.GroupID, p.UserID).Take(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if found && existing.Active {
		return ErrDuplicate
	}

	var active int64
	if err := db.Model(&model.Participant{}).
		Where("group_id = ? AND active = ?", p.GroupID, true).
		Count(&active).Error; err != nil {
		return err
	}
	if active >= int64(limit) {
		return ErrCapacity
	}

	if !found {
		row := *p
		return translate(db.Create(&row).Error)
	}

	// conditional on the row still being closed; a concurrent reactivation
	// leaves zero rows affected
	res := db.Model(&model.Participant{}).
		Where("group_id = ? AND user_id = ? AND active = ?", p.GroupID, p.UserID, false).
		Updates(map[string]any{
			"role":         string(p.Role),
			"joined_at":    p.JoinedAt,
			"added_by":     p.AddedBy,
			"active":       true,
			"left_at":      nil,
			"removed_by":   nil,
			"removed_at":   nil,
			"custom_title": p.CustomTitle,
			"last_seen_at": p.LastSeenAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// UpsertParticipant applies patch to an existing membership row
func (r *GormRepository) UpsertParticipant(ctx context.Context, groupID, userID string, patch model.ParticipantPatch) error {
	updates := make(map[string]any)
	if patch.Role != nil {
		updates["role"] = string(*patch.Role)
	}
	if patch.Active != nil {
		updates["active"] = *patch.Active
	}
	if patch.LeftAt != nil {
		updates["left_at"] = *patch.LeftAt
	}
	if patch.RemovedBy != nil {
		updates["removed_by"] = *patch.RemovedBy
	}
	if patch.RemovedAt != nil {
		updates["removed_at"] = *patch.RemovedAt
	}
	if patch.CustomTitle != nil {
		updates["custom_title"] = *patch.CustomTitle
	}
	if patch.LastSeenAt != nil {
		updates["last_seen_at"] = *patch.LastSeenAt
	}

	db := r.db.WithContext(ctx).Model(&model.Participant{}).Where("group_id = ? AND user_id = ?", groupID, userID)
	if len(updates) == 0 {
		var n int64
		if err := db.Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}

	res := db.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertInviteLink creates an invite link; a code collision yields ErrDuplicate
func (r *GormRepository) InsertInviteLink(ctx context.Context, link *model.InviteLink) error {
	return translate(r.db.WithContext(ctx).Create(link).Error)
}

// GetInviteLink finds an invite link by ID
func (r *GormRepository) GetInviteLink(ctx context.Context, id string) (*model.InviteLink, error) {
	var link model.InviteLink
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// GetInviteLinkByCode finds an invite link by code
func (r *GormRepository) GetInviteLinkByCode(ctx context.Context, code string) (*model.InviteLink, error) {
	var link model.InviteLink
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// IncrementInviteUsage consumes one use of a link. The update is a
// compare-and-swap on the count that was read, so two redemptions racing for
// the last use cannot both succeed.
func (r *GormRepository) IncrementInviteUsage(ctx context.Context, linkID string, now time.Time) error {
	db := r.db.WithContext(ctx)

	var link model.InviteLink
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", linkID).First(&link).Error
	if err != nil {
		return translate(err)
	}
	if link.State(now) != model.InviteUsable {
		return ErrInviteUnavailable
	}

	res := db.Model(&model.InviteLink{}).
		Where("id = ? AND usage_count = ? AND active = ?", linkID, link.UsageCount, true).
		Update("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInviteUnavailable
	}
	return nil
}

// DeactivateInviteLink revokes a link
func (r *GormRepository) DeactivateInviteLink(ctx context.Context, linkID string) error {
	res := r.db.WithContext(ctx).Model(&model.InviteLink{}).Where("id = ?", linkID).Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAuditEntry inserts one audit entry
func (r *GormRepository) AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error)
}

// ListAuditEntries retrieves a group's audit trail, oldest first
func (r *GormRepository) ListAuditEntries(ctx context.Context, groupID string) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at").
		Order("id").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// InsertMessage stores a message row
func (r *GormRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	return translate(r.db.WithContext(ctx).Create(msg).Error)
}

// CountMessages counts a group's messages, optionally since a point in time
func (r *GormRepository) CountMessages(ctx context.Context, groupID string, since *time.Time) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&model.Message{}).Where("group_id = ?", groupID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
