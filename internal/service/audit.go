package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/permission"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/internal/utils"
)

const (
	EventAudit        = "audit"
	EventAnnouncement = "announcement"
)

// Event is the envelope handed to the EventPublisher.
type Event struct {
	Type    string            `json:"type"`
	GroupID string            `json:"group_id"`
	Audit   *model.AuditEntry `json:"audit,omitempty"`
	Message *model.Message    `json:"message,omitempty"`
}

// AuditRecorder appends audit entries after the primary write has committed.
// The trail is best effort: a failed append is logged and counted, and the
// operation that triggered it still succeeds. Stored entries and
// announcements are published in the background.
type AuditRecorder struct {
	repo   repository.IGroupRepository
	ids    IDGenerator
	events *dispatcher
	log    *zap.Logger
	now    func() time.Time

	failures atomic.Int64
}

// NewAuditRecorder creates a recorder. publisher may be nil; otherwise events
// are queued, up to bufferSize of them, and the recorder must be closed.
func NewAuditRecorder(repo repository.IGroupRepository, ids IDGenerator, publisher EventPublisher, bufferSize int, logger *zap.Logger, now func() time.Time) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	r := &AuditRecorder{
		repo: repo,
		ids:  ids,
		log:  logger,
		now:  now,
	}
	if publisher != nil {
		r.events = newDispatcher(publisher, bufferSize, logger)
	}
	return r
}

// Record appends one entry and publishes it.
func (r *AuditRecorder) Record(ctx context.Context, groupID string, kind model.AuditKind, actorID string, targets []string, details map[string]any) {
	id, err := r.ids.NextID()
	if err != nil {
		r.fail(groupID, kind, err)
		return
	}

	entry := &model.AuditEntry{
		ID:        id,
		GroupID:   groupID,
		Kind:      kind,
		ActorID:   actorID,
		TargetIDs: targets,
		Details:   details,
		CreatedAt: r.now().UTC(),
	}
	if err := r.repo.AppendAuditEntry(ctx, entry); err != nil {
		r.fail(groupID, kind, err)
		return
	}

	r.publish(ctx, groupID, Event{Type: EventAudit, GroupID: groupID, Audit: entry})
}

// Failures reports how many entries could not be appended.
func (r *AuditRecorder) Failures() int64 {
	return r.failures.Load()
}

func (r *AuditRecorder) fail(groupID string, kind model.AuditKind, err error) {
	r.failures.Add(1)
	r.log.Error("failed to append audit entry",
		zap.String("group_id", groupID),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
}

// Dropped reports how many events were never handed to the publisher.
func (r *AuditRecorder) Dropped() int64 {
	if r.events == nil {
		return 0
	}
	return r.events.dropped.Load()
}

// Close waits, at most until ctx ends, for queued events to be published.
func (r *AuditRecorder) Close(ctx context.Context) error {
	if r.events == nil {
		return nil
	}
	return r.events.close(ctx)
}

func (r *AuditRecorder) publish(ctx context.Context, groupID string, ev Event) {
	if r.events == nil {
		return
	}
	r.events.submit(ctx, groupID, ev)
}

// CreateAnnouncement stores an announcement message. Unlike audit entries the
// message is the primary write, so its failure is returned.
func (r *AuditRecorder) CreateAnnouncement(ctx context.Context, groupID, content, actingUserID string) (*model.Message, error) {
	if !utils.ValidateAnnouncement(content) {
		return nil, invalid("announcement must be 1-%d characters", utils.MaxAnnouncementLen)
	}

	var msg *model.Message
	err := r.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if err := authorize(g, actingUserID, permission.SendAnnouncements); err != nil {
			return err
		}
		if err := writable(g); err != nil {
			return err
		}

		now := r.now().UTC()
		msg = &model.Message{
			ID:        uuid.New().String(),
			GroupID:   groupID,
			SenderID:  actingUserID,
			Kind:      model.MessageKindAnnouncement,
			Content:   content,
			CreatedAt: now,
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		return tx.UpdateGroup(ctx, groupID, model.GroupPatch{LastActivity: &now})
	})
	if err != nil {
		return nil, storeErr("create announcement", err)
	}

	r.publish(ctx, groupID, Event{Type: EventAnnouncement, GroupID: groupID, Message: msg})
	return msg, nil
}

// GetAuditTrail lists a group's entries, oldest first. Only active
// participants may read it.
func (r *AuditRecorder) GetAuditTrail(ctx context.Context, groupID, actingUserID string) ([]model.AuditEntry, error) {
	g, err := load(ctx, r.repo, groupID, false)
	if err != nil {
		return nil, err
	}
	if _, ok := g.ActiveParticipant(actingUserID); !ok {
		return nil, denied(actingUserID, "read the audit trail")
	}

	entries, err := r.repo.ListAuditEntries(ctx, groupID)
	if err != nil {
		return nil, storeErr("list audit entries", err)
	}
	return entries, nil
}
