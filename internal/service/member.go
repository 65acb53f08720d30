package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/permission"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/internal/utils"
)

// MemberService manages membership rows and roles.
type MemberService struct {
	*core
}

// addParticipant inserts or reactivates a member row, translating the
// repository's race outcomes into business errors.
func addParticipant(ctx context.Context, tx repository.IGroupRepository, g *model.Group, p *model.Participant) error {
	if _, ok := g.ActiveParticipant(p.UserID); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyMember, p.UserID)
	}
	err := tx.AddParticipant(ctx, p, g.MaxParticipants)
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrAlreadyMember, p.UserID)
	case errors.Is(err, repository.ErrCapacity):
		return fmt.Errorf("%w: limit is %d", ErrCapacityExceeded, g.MaxParticipants)
	}
	return err
}

// AddMember adds userID to the group as a member
func (s *MemberService) AddMember(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error) {
	if !utils.ValidateID(userID) {
		return nil, invalid("malformed user id %q", userID)
	}

	g, err := s.mutate(ctx, groupID, actingUserID, permission.AddMembers, func(tx repository.IGroupRepository, g *model.Group) error {
		now := s.clock()
		if err := addParticipant(ctx, tx, g, &model.Participant{
			GroupID:  groupID,
			UserID:   userID,
			Role:     model.RoleMember,
			JoinedAt: now,
			AddedBy:  actingUserID,
			Active:   true,
		}); err != nil {
			return err
		}
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{LastActivity: &now})
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, groupID, model.AuditMemberAdded, actingUserID, []string{userID}, map[string]any{
		"notify": g.Settings.NotifyOnJoin,
	})
	return participantOf(g, userID)
}

// RemoveMember closes userID's membership row. The last active admin cannot
// be removed.
func (s *MemberService) RemoveMember(ctx context.Context, groupID, userID, actingUserID string) error {
	_, err := s.mutate(ctx, groupID, actingUserID, permission.RemoveMembers, func(tx repository.IGroupRepository, g *model.Group) error {
		target, err := participantOf(g, userID)
		if err != nil {
			return err
		}
		if target.Role == model.RoleAdmin && g.AdminCount() == 1 {
			return fmt.Errorf("%w: cannot remove %s", ErrLastAdmin, userID)
		}

		now := s.clock()
		inactive := false
		return tx.UpsertParticipant(ctx, groupID, userID, model.ParticipantPatch{
			Active:    &inactive,
			RemovedBy: &actingUserID,
			RemovedAt: &now,
		})
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, groupID, model.AuditMemberRemoved, actingUserID, []string{userID}, nil)
	return nil
}

// LeaveGroup closes the caller's own membership row. Leaving is allowed in
// archived groups; the last admin has to hand over first.
func (s *MemberService) LeaveGroup(ctx context.Context, groupID, userID string) error {
	notify := false
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		p, err := participantOf(g, userID)
		if err != nil {
			return err
		}
		if p.Role == model.RoleAdmin && g.AdminCount() == 1 {
			return fmt.Errorf("%w: promote another admin before leaving", ErrLastAdmin)
		}
		notify = g.Settings.NotifyOnLeave

		now := s.clock()
		inactive := false
		return tx.UpsertParticipant(ctx, groupID, userID, model.ParticipantPatch{
			Active: &inactive,
			LeftAt: &now,
		})
	})
	if err != nil {
		return storeErr("leave group", err)
	}

	s.audit.Record(ctx, groupID, model.AuditMemberLeft, userID, []string{userID}, map[string]any{
		"notify": notify,
	})
	return nil
}

// PromoteToAdmin gives an active member the admin role
func (s *MemberService) PromoteToAdmin(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error) {
	return s.setRole(ctx, groupID, userID, actingUserID, model.RoleAdmin)
}

// DemoteFromAdmin turns an admin back into a member. The last active admin
// cannot be demoted.
func (s *MemberService) DemoteFromAdmin(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error) {
	return s.setRole(ctx, groupID, userID, actingUserID, model.RoleMember)
}

func (s *MemberService) setRole(ctx context.Context, groupID, userID, actingUserID string, role model.Role) (*model.Participant, error) {
	g, err := s.mutate(ctx, groupID, actingUserID, permission.ManageAdmins, func(tx repository.IGroupRepository, g *model.Group) error {
		target, err := participantOf(g, userID)
		if err != nil {
			return err
		}
		if target.Role == role {
			return invalid("%s is already %s", userID, role)
		}
		if role == model.RoleMember && g.AdminCount() == 1 {
			return fmt.Errorf("%w: cannot demote %s", ErrLastAdmin, userID)
		}
		return tx.UpsertParticipant(ctx, groupID, userID, model.ParticipantPatch{Role: &role})
	})
	if err != nil {
		return nil, err
	}

	kind := model.AuditMemberPromoted
	if role == model.RoleMember {
		kind = model.AuditMemberDemoted
	}
	s.audit.Record(ctx, groupID, kind, actingUserID, []string{userID}, nil)
	return participantOf(g, userID)
}

// SetCustomTitle sets a participant's display title. Participants may set
// their own; changing someone else's needs manageAdmins.
func (s *MemberService) SetCustomTitle(ctx context.Context, groupID, userID, title, actingUserID string) (*model.Participant, error) {
	title = strings.TrimSpace(title)
	if !utils.ValidateCustomTitle(title) {
		return nil, invalid("custom title must be at most %d characters", utils.MaxCustomTitleLen)
	}

	var out *model.Group
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if actingUserID != userID {
			if err := authorize(g, actingUserID, permission.ManageAdmins); err != nil {
				return err
			}
		} else if _, ok := g.ActiveParticipant(actingUserID); !ok {
			return denied(actingUserID, "set a custom title")
		}
		if err := writable(g); err != nil {
			return err
		}
		if _, err := participantOf(g, userID); err != nil {
			return err
		}

		if err := tx.UpsertParticipant(ctx, groupID, userID, model.ParticipantPatch{CustomTitle: &title}); err != nil {
			return err
		}
		out, err = load(ctx, tx, groupID, false)
		return err
	})
	if err != nil {
		return nil, storeErr("set custom title", err)
	}

	s.audit.Record(ctx, groupID, model.AuditMemberTitleChanged, actingUserID, []string{userID}, map[string]any{
		"title": title,
	})
	return participantOf(out, userID)
}

// RecordActivity marks the participant as seen now and bumps the group's last
// activity. It feeds analytics and is not audited.
func (s *MemberService) RecordActivity(ctx context.Context, groupID, userID string) error {
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if _, ok := g.ActiveParticipant(userID); !ok {
			return denied(userID, "record activity")
		}
		if err := writable(g); err != nil {
			return err
		}

		now := s.clock()
		if err := tx.UpsertParticipant(ctx, groupID, userID, model.ParticipantPatch{LastSeenAt: &now}); err != nil {
			return err
		}
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{LastActivity: &now})
	})
	if err != nil {
		return storeErr("record activity", err)
	}

	s.log.Debug("activity recorded", zap.String("group_id", groupID), zap.String("user_id", userID))
	return nil
}
