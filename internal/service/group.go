package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/permission"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/internal/utils"
)

// CreateGroupInput represents a request to create a new group
type CreateGroupInput struct {
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	AvatarURL       string               `json:"avatar_url"`
	ParticipantIDs  []string             `json:"participant_ids"`
	Settings        *model.SettingsPatch `json:"settings"`
	Type            model.GroupType      `json:"type"`
	Category        model.Category       `json:"category"`
	MaxParticipants int                  `json:"max_participants"`
}

// GroupInfoPatch holds the descriptive fields UpdateGroupInfo may change.
type GroupInfoPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	AvatarURL   *string `json:"avatar_url"`
}

// GroupService manages the group lifecycle: creation, reads, info and
// settings updates, pins, archive and delete.
type GroupService struct {
	*core
}

// CreateGroup creates a group with the creator as its sole admin and the
// remaining participants as members, all in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput, creatorID string) (*model.Group, error) {
	if !utils.ValidateID(creatorID) {
		return nil, invalid("malformed creator id %q", creatorID)
	}
	name, ok := utils.NormalizeGroupName(in.Name)
	if !ok {
		return nil, invalid("group name must be 1-%d characters", utils.MaxGroupNameLen)
	}
	if !utils.ValidateDescription(in.Description) {
		return nil, invalid("description must be at most %d characters", utils.MaxDescriptionLen)
	}

	groupType := in.Type
	if groupType == "" {
		groupType = model.GroupTypePrivate
	}
	if !groupType.Valid() {
		return nil, invalid("unknown group type %q", groupType)
	}
	category := in.Category
	if category == "" {
		category = model.CategoryGeneral
	}
	if !category.Valid() {
		return nil, invalid("unknown category %q", category)
	}

	limit := in.MaxParticipants
	if limit == 0 {
		limit = s.maxParticipants
	}
	if limit < 1 {
		return nil, invalid("max participants must be positive")
	}

	settings := model.DefaultSettings().Merge(in.Settings)
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	members := make([]string, 0, len(in.ParticipantIDs))
	seen := map[string]bool{creatorID: true}
	for _, id := range in.ParticipantIDs {
		if !utils.ValidateID(id) {
			return nil, invalid("malformed participant id %q", id)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}
	if len(members)+1 > limit {
		return nil, fmt.Errorf("%w: %d participants exceed the limit of %d", ErrCapacityExceeded, len(members)+1, limit)
	}

	now := s.clock()
	group := &model.Group{
		ID:               uuid.New().String(),
		Name:             name,
		Description:      in.Description,
		AvatarURL:        in.AvatarURL,
		CreatorID:        creatorID,
		Type:             groupType,
		Category:         category,
		MaxParticipants:  limit,
		Settings:         settings,
		PinnedMessageIDs: []string{},
		CreatedAt:        now,
		LastActivity:     now,
	}

	rows := make([]model.Participant, 0, len(members)+1)
	rows = append(rows, model.Participant{
		GroupID:  group.ID,
		UserID:   creatorID,
		Role:     model.RoleAdmin,
		JoinedAt: now,
		AddedBy:  creatorID,
		Active:   true,
	})
	for _, id := range members {
		rows = append(rows, model.Participant{
			GroupID:  group.ID,
			UserID:   id,
			Role:     model.RoleMember,
			JoinedAt: now,
			AddedBy:  creatorID,
			Active:   true,
		})
	}

	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		if err := tx.InsertGroup(ctx, group); err != nil {
			return err
		}
		return tx.InsertParticipants(ctx, group.ID, rows)
	})
	if err != nil {
		return nil, storeErr("create group", err)
	}

	s.log.Info("group created",
		zap.String("group_id", group.ID),
		zap.String("creator_id", creatorID),
		zap.Int("participants", len(rows)),
	)

	targets := make([]string, 0, len(rows))
	for _, p := range rows {
		targets = append(targets, p.UserID)
	}
	s.audit.Record(ctx, group.ID, model.AuditGroupCreated, creatorID, targets, map[string]any{
		"name":     group.Name,
		"type":     string(group.Type),
		"category": string(group.Category),
	})

	hydrate(group, rows)
	return group, nil
}

// GetGroupByID returns a live group with its active participants
func (s *GroupService) GetGroupByID(ctx context.Context, groupID string) (*model.Group, error) {
	return load(ctx, s.repo, groupID, false)
}

// GetUserGroups returns every group the user actively belongs to, most
// recently active first
func (s *GroupService) GetUserGroups(ctx context.Context, userID string) ([]model.Group, error) {
	groups, err := s.repo.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, storeErr("list user groups", err)
	}
	for i := range groups {
		rows, err := s.repo.GetParticipants(ctx, groups[i].ID)
		if err != nil {
			return nil, storeErr("load participants", err)
		}
		hydrate(&groups[i], rows)
	}
	return groups, nil
}

// UpdateGroupInfo applies the provided descriptive fields and bumps the
// group's last activity.
func (s *GroupService) UpdateGroupInfo(ctx context.Context, groupID string, patch GroupInfoPatch, actingUserID string) (*model.Group, error) {
	gp := model.GroupPatch{
		Description: patch.Description,
		AvatarURL:   patch.AvatarURL,
	}
	details := make(map[string]any)
	if patch.Name != nil {
		name, ok := utils.NormalizeGroupName(*patch.Name)
		if !ok {
			return nil, invalid("group name must be 1-%d characters", utils.MaxGroupNameLen)
		}
		gp.Name = &name
		details["name"] = name
	}
	if patch.Description != nil {
		if !utils.ValidateDescription(*patch.Description) {
			return nil, invalid("description must be at most %d characters", utils.MaxDescriptionLen)
		}
		details["description"] = *patch.Description
	}
	if patch.AvatarURL != nil {
		details["avatar_url"] = *patch.AvatarURL
	}

	g, err := s.mutate(ctx, groupID, actingUserID, permission.EditGroupInfo, func(tx repository.IGroupRepository, g *model.Group) error {
		now := s.clock()
		gp.LastActivity = &now
		return tx.UpdateGroup(ctx, groupID, gp)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, groupID, model.AuditGroupInfoUpdated, actingUserID, nil, details)
	return g, nil
}

// UpdateGroupSettings merges patch into the stored settings
func (s *GroupService) UpdateGroupSettings(ctx context.Context, groupID string, patch model.SettingsPatch, actingUserID string) (*model.Group, error) {
	g, err := s.mutate(ctx, groupID, actingUserID, permission.EditSettings, func(tx repository.IGroupRepository, g *model.Group) error {
		merged := g.Settings.Merge(&patch)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{Settings: &merged})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, groupID, model.AuditGroupSettingsUpdated, actingUserID, nil, map[string]any{
		"changed": patch.Changed(),
	})
	return g, nil
}

// PinMessage adds messageID to the pinned list. Pinning an already pinned
// message changes nothing and records nothing.
func (s *GroupService) PinMessage(ctx context.Context, groupID, messageID, actingUserID string) error {
	if !utils.ValidateID(messageID) {
		return invalid("malformed message id %q", messageID)
	}

	changed := false
	_, err := s.mutate(ctx, groupID, actingUserID, permission.PinMessages, func(tx repository.IGroupRepository, g *model.Group) error {
		if g.IsPinned(messageID) {
			return nil
		}
		pinned := append(append([]string{}, g.PinnedMessageIDs...), messageID)
		changed = true
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{PinnedMessageIDs: &pinned})
	})
	if err != nil {
		return err
	}

	if changed {
		s.audit.Record(ctx, groupID, model.AuditMessagePinned, actingUserID, nil, map[string]any{"message_id": messageID})
	}
	return nil
}

// UnpinMessage removes messageID from the pinned list
func (s *GroupService) UnpinMessage(ctx context.Context, groupID, messageID, actingUserID string) error {
	_, err := s.mutate(ctx, groupID, actingUserID, permission.PinMessages, func(tx repository.IGroupRepository, g *model.Group) error {
		if !g.IsPinned(messageID) {
			return fmt.Errorf("%w: message %s is not pinned", ErrNotFound, messageID)
		}
		pinned := make([]string, 0, len(g.PinnedMessageIDs))
		for _, id := range g.PinnedMessageIDs {
			if id != messageID {
				pinned = append(pinned, id)
			}
		}
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{PinnedMessageIDs: &pinned})
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, groupID, model.AuditMessageUnpinned, actingUserID, nil, map[string]any{"message_id": messageID})
	return nil
}

// ArchiveGroup makes the group read-only
func (s *GroupService) ArchiveGroup(ctx context.Context, groupID, actingUserID string) (*model.Group, error) {
	archived := true
	g, err := s.mutate(ctx, groupID, actingUserID, permission.EditSettings, func(tx repository.IGroupRepository, g *model.Group) error {
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{Archived: &archived})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, groupID, model.AuditGroupArchived, actingUserID, nil, nil)
	return g, nil
}

// DeleteGroup soft-deletes the group; afterwards every read reports NotFound.
// Archived groups may still be deleted.
func (s *GroupService) DeleteGroup(ctx context.Context, groupID, actingUserID string) error {
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if err := authorize(g, actingUserID, permission.EditSettings); err != nil {
			return err
		}
		return tx.DeleteGroup(ctx, groupID)
	})
	if err != nil {
		return storeErr("delete group", err)
	}

	s.log.Info("group deleted", zap.String("group_id", groupID), zap.String("actor_id", actingUserID))
	s.audit.Record(ctx, groupID, model.AuditGroupDeleted, actingUserID, nil, nil)
	return nil
}
