package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Gopher0727/GroupHub/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrCapacity          = errors.New("participant limit reached")
	ErrInviteUnavailable = errors.New("invite link not usable")
)

// IGroupRepository is the persistence boundary of the group service. It owns no
// business rules beyond the uniqueness and compare-and-swap guarantees the
// service relies on to settle races.
type IGroupRepository interface {
	// Transaction runs fn against a transactional view of the store. fn's
	// writes become visible together when it returns nil and are discarded
	// otherwise.
	Transaction(ctx context.Context, fn func(tx IGroupRepository) error) error

	InsertGroup(ctx context.Context, group *model.Group) error
	InsertParticipants(ctx context.Context, groupID string, rows []model.Participant) error
	// GetGroup returns ErrNotFound for missing and deleted groups.
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	// GetGroupForUpdate is GetGroup plus a row lock held until the enclosing
	// transaction ends.
	GetGroupForUpdate(ctx context.Context, id string) (*model.Group, error)
	// ListGroupsForUser returns live groups where userID has an active row,
	// most recently active first.
	ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error)
	UpdateGroup(ctx context.Context, id string, patch model.GroupPatch) error
	DeleteGroup(ctx context.Context, id string) error

	// GetParticipants returns every membership row, active or closed, in join order.
	GetParticipants(ctx context.Context, groupID string) ([]model.Participant, error)
	// AddParticipant inserts p, or reactivates a closed row for the same
	// user. It fails with ErrDuplicate when the user already has an active
	// row and with ErrCapacity when limit active rows already exist.
	AddParticipant(ctx context.Context, p *model.Participant, limit int) error
	// UpsertParticipant patches an existing row; ErrNotFound if none exists.
	UpsertParticipant(ctx context.Context, groupID, userID string, patch model.ParticipantPatch) error

	InsertInviteLink(ctx context.Context, link *model.InviteLink) error
	GetInviteLink(ctx context.Context, id string) (*model.InviteLink, error)
	GetInviteLinkByCode(ctx context.Context, code string) (*model.InviteLink, error)
	// IncrementInviteUsage bumps UsageCount by one if the link is usable at
	// now, ErrInviteUnavailable otherwise.
	IncrementInviteUsage(ctx context.Context, linkID string, now time.Time) error
	DeactivateInviteLink(ctx context.Context, linkID string) error

	AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error
	ListAuditEntries(ctx context.Context, groupID string) ([]model.AuditEntry, error)

	InsertMessage(ctx context.Context, msg *model.Message) error
	// CountMessages counts messages of the group, optionally only those
	// created at or after since.
	CountMessages(ctx context.Context, groupID string, since *time.Time) (int64, error)
}
