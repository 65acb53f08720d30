package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/permission"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/internal/utils"
)

const maxCodeAttempts = 10

// CreateInviteInput holds the optional limits of a new invite link
type CreateInviteInput struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
}

// InviteService issues, revokes and redeems invite links.
type InviteService struct {
	*core
	baseURL string
}

func (s *InviteService) url(code string) string {
	return strings.TrimRight(s.baseURL, "/") + "/" + code
}

// CreateInviteLink issues a new link for the group
func (s *InviteService) CreateInviteLink(ctx context.Context, groupID, actingUserID string, in CreateInviteInput) (*model.InviteLink, error) {
	now := s.clock()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, invalid("expiry must be in the future")
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return nil, invalid("max uses must be at least 1")
	}

	var link *model.InviteLink
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if err := authorize(g, actingUserID, permission.CreateInvites); err != nil {
			return err
		}
		if err := writable(g); err != nil {
			return err
		}

		code, err := s.uniqueCode(ctx, tx)
		if err != nil {
			return err
		}
		link = &model.InviteLink{
			ID:        uuid.New().String(),
			GroupID:   groupID,
			Code:      code,
			CreatorID: actingUserID,
			CreatedAt: now,
			ExpiresAt: in.ExpiresAt,
			MaxUses:   in.MaxUses,
			Active:    true,
		}
		return tx.InsertInviteLink(ctx, link)
	})
	if err != nil {
		return nil, storeErr("create invite link", err)
	}

	link.URL = s.url(link.Code)
	details := map[string]any{"link_id": link.ID}
	if link.ExpiresAt != nil {
		details["expires_at"] = link.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if link.MaxUses != nil {
		details["max_uses"] = *link.MaxUses
	}
	s.audit.Record(ctx, groupID, model.AuditInviteCreated, actingUserID, nil, details)
	return link, nil
}

// uniqueCode draws codes until one is unused. A failed insert would abort a
// PostgreSQL transaction, so collisions are checked before inserting.
func (s *InviteService) uniqueCode(ctx context.Context, tx repository.IGroupRepository) (string, error) {
	for range maxCodeAttempts {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return "", fmt.Errorf("%w: generate invite code: %v", ErrRepository, err)
		}
		_, err = tx.GetInviteLinkByCode(ctx, code)
		if errors.Is(err, repository.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
		s.log.Warn("invite code collision", zap.String("code", code))
	}
	return "", fmt.Errorf("%w: no unique invite code after %d attempts", ErrRepository, maxCodeAttempts)
}

// RevokeInviteLink deactivates a link for good. Only admins of the link's
// group may revoke; revoking an already revoked link succeeds quietly.
func (s *InviteService) RevokeInviteLink(ctx context.Context, linkID, actingUserID string) error {
	var (
		groupID string
		changed bool
	)
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		link, err := tx.GetInviteLink(ctx, linkID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: invite link %s", ErrNotFound, linkID)
			}
			return err
		}
		groupID = link.GroupID

		g, err := load(ctx, tx, link.GroupID, true)
		if err != nil {
			return err
		}
		p, ok := g.ActiveParticipant(actingUserID)
		if !ok || p.Role != model.RoleAdmin {
			return denied(actingUserID, "revoke invite links")
		}
		if !link.Active {
			return nil
		}
		changed = true
		return tx.DeactivateInviteLink(ctx, linkID)
	})
	if err != nil {
		return storeErr("revoke invite link", err)
	}

	if changed {
		s.audit.Record(ctx, groupID, model.AuditInviteRevoked, actingUserID, nil, map[string]any{"link_id": linkID})
	}
	return nil
}

// JoinViaInvite redeems code for userID. The usage increment and the new
// member row commit together or not at all.
func (s *InviteService) JoinViaInvite(ctx context.Context, code, userID string) (*model.Group, error) {
	if !utils.ValidateID(userID) {
		return nil, invalid("malformed user id %q", userID)
	}

	var (
		out    *model.Group
		link   *model.InviteLink
		notify bool
	)
	err := s.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		var err error
		link, err = tx.GetInviteLinkByCode(ctx, code)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInviteInvalid
			}
			return err
		}

		now := s.clock()
		switch link.State(now) {
		case model.InviteRevoked:
			return fmt.Errorf("%w: link revoked", ErrInviteInvalid)
		case model.InviteExpired, model.InviteExhausted:
			return fmt.Errorf("%w: link %s", ErrInviteExpired, link.State(now))
		}

		g, err := load(ctx, tx, link.GroupID, true)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: group no longer exists", ErrInviteInvalid)
			}
			return err
		}
		if err := writable(g); err != nil {
			return err
		}
		if _, ok := g.ActiveParticipant(userID); ok {
			return fmt.Errorf("%w: %s", ErrAlreadyMember, userID)
		}

		if err := tx.IncrementInviteUsage(ctx, link.ID, now); err != nil {
			if errors.Is(err, repository.ErrInviteUnavailable) {
				return fmt.Errorf("%w: link used up", ErrInviteExpired)
			}
			return err
		}
		if err := addParticipant(ctx, tx, g, &model.Participant{
			GroupID:  g.ID,
			UserID:   userID,
			Role:     model.RoleMember,
			JoinedAt: now,
			AddedBy:  link.CreatorID,
			Active:   true,
		}); err != nil {
			return err
		}
		if err := tx.UpdateGroup(ctx, g.ID, model.GroupPatch{LastActivity: &now}); err != nil {
			return err
		}
		notify = g.Settings.NotifyOnJoin

		out, err = load(ctx, tx, g.ID, false)
		return err
	})
	if err != nil {
		return nil, storeErr("join via invite", err)
	}

	s.log.Info("joined via invite",
		zap.String("group_id", out.ID),
		zap.String("user_id", userID),
		zap.String("link_id", link.ID),
	)
	s.audit.Record(ctx, out.ID, model.AuditMemberJoined, userID, []string{userID}, map[string]any{
		"link_id":    link.ID,
		"invited_by": link.CreatorID,
		"notify":     notify,
	})
	return out, nil
}
