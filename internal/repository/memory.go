package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gopher0727/GroupHub/internal/model"
)

// MemoryRepository is an in-process IGroupRepository. Transactions are serialized
// by a single mutex and run against a copy of the state that replaces the
// live state on success.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: newMemState()}
}

var _ IGroupRepository = (*MemoryRepository)(nil)

type memState struct {
	groups       map[string]model.Group
	participants map[string][]model.Participant
	invites      map[string]model.InviteLink
	audit        []model.AuditEntry
	messages     []model.Message
}

func newMemState() *memState {
	return &memState{
		groups:       make(map[string]model.Group),
		participants: make(map[string][]model.Participant),
		invites:      make(map[string]model.InviteLink),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.participants {
		c.participants[k] = append([]model.Participant(nil), v...)
	}
	for k, v := range s.invites {
		c.invites[k] = v
	}
	c.audit = append([]model.AuditEntry(nil), s.audit...)
	c.messages = append([]model.Message(nil), s.messages...)
	return c
}

func (r *MemoryRepository) Transaction(ctx context.Context, fn func(tx IGroupRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: r.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

// locked runs fn on the live state as its own single-statement transaction.
func (r *MemoryRepository) locked(ctx context.Context, fn func(tx *memTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&memTx{state: r.state})
}

func (r *MemoryRepository) InsertGroup(ctx context.Context, group *model.Group) error {
	return r.Transaction(ctx, func(tx IGroupRepository) error { return tx.InsertGroup(ctx, group) })
}

func (r *MemoryRepository) InsertParticipants(ctx context.Context, groupID string, rows []model.Participant) error {
	return r.Transaction(ctx, func(tx IGroupRepository) error { return tx.InsertParticipants(ctx, groupID, rows) })
}

func (r *MemoryRepository) GetGroup(ctx context.Context, id string) (g *model.Group, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		g, err = tx.GetGroup(ctx, id)
		return err
	})
	return g, err
}

func (r *MemoryRepository) GetGroupForUpdate(ctx context.Context, id string) (*model.Group, error) {
	return r.GetGroup(ctx, id)
}

func (r *MemoryRepository) ListGroupsForUser(ctx context.Context, userID string) (groups []model.Group, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		groups, err = tx.ListGroupsForUser(ctx, userID)
		return err
	})
	return groups, err
}

func (r *MemoryRepository) UpdateGroup(ctx context.Context, id string, patch model.GroupPatch) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.UpdateGroup(ctx, id, patch) })
}

func (r *MemoryRepository) DeleteGroup(ctx context.Context, id string) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.DeleteGroup(ctx, id) })
}

func (r *MemoryRepository) GetParticipants(ctx context.Context, groupID string) (rows []model.Participant, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		rows, err = tx.GetParticipants(ctx, groupID)
		return err
	})
	return rows, err
}

func (r *MemoryRepository) AddParticipant(ctx context.Context, p *model.Participant, limit int) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.AddParticipant(ctx, p, limit) })
}

func (r *MemoryRepository) UpsertParticipant(ctx context.Context, groupID, userID string, patch model.ParticipantPatch) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.UpsertParticipant(ctx, groupID, userID, patch) })
}

func (r *MemoryRepository) InsertInviteLink(ctx context.Context, link *model.InviteLink) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.InsertInviteLink(ctx, link) })
}

func (r *MemoryRepository) GetInviteLink(ctx context.Context, id string) (link *model.InviteLink, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		link, err = tx.GetInviteLink(ctx, id)
		return err
	})
	return link, err
}

func (r *MemoryRepository) GetInviteLinkByCode(ctx context.Context, code string) (link *model.InviteLink, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		link, err = tx.GetInviteLinkByCode(ctx, code)
		return err
	})
	return link, err
}

func (r *MemoryRepository) IncrementInviteUsage(ctx context.Context, linkID string, now time.Time) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.IncrementInviteUsage(ctx, linkID, now) })
}

func (r *MemoryRepository) DeactivateInviteLink(ctx context.Context, linkID string) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.DeactivateInviteLink(ctx, linkID) })
}

func (r *MemoryRepository) AppendAuditEntry(ctx context.Context, entry *model.AuditEntry) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.AppendAuditEntry(ctx, entry) })
}

func (r *MemoryRepository) ListAuditEntries(ctx context.Context, groupID string) (entries []model.AuditEntry, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		entries, err = tx.ListAuditEntries(ctx, groupID)
		return err
	})
	return entries, err
}

func (r *MemoryRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	return r.locked(ctx, func(tx *memTx) error { return tx.InsertMessage(ctx, msg) })
}

func (r *MemoryRepository) CountMessages(ctx context.Context, groupID string, since *time.Time) (n int64, err error) {
	err = r.locked(ctx, func(tx *memTx) error {
		n, err = tx.CountMessages(ctx, groupID, since)
		return err
	})
	return n, err
}

// memTx operates on a state it owns exclusively; callers hold the repository mutex.
type memTx struct {
	state *memState
}

var _ IGroupRepository = (*memTx)(nil)

func (t *memTx) Transaction(ctx context.Context, fn func(tx IGroupRepository) error) error {
	nested := &memTx{state: t.state.clone()}
	if err := fn(nested); err != nil {
		return err
	}
	t.state = nested.state
	return nil
}

func (t *memTx) InsertGroup(_ context.Context, group *model.Group) error {
	if _, ok := t.state.groups[group.ID]; ok {
		return ErrDuplicate
	}
	g := *group
	g.Participants = nil
	g.PinnedMessageIDs = append([]string(nil), group.PinnedMessageIDs...)
	t.state.groups[g.ID] = g
	return nil
}

func (t *memTx) InsertParticipants(_ context.Context, groupID string, rows []model.Participant) error {
	existing := t.state.participants[groupID]
	seen := make(map[string]bool, len(existing)+len(rows))
	for _, p := range existing {
		seen[p.UserID] = true
	}
	for _, p := range rows {
		if seen[p.UserID] {
			return ErrDuplicate
		}
		seen[p.UserID] = true
	}
	for _, p := range rows {
		p.GroupID = groupID
		p.Permissions = nil
		existing = append(existing, p)
	}
	t.state.participants[groupID] = existing
	return nil
}

func (t *memTx) GetGroup(_ context.Context, id string) (*model.Group, error) {
	g, ok := t.state.groups[id]
	if !ok || g.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	g.PinnedMessageIDs = append([]string(nil), g.PinnedMessageIDs...)
	return &g, nil
}

func (t *memTx) GetGroupForUpdate(ctx context.Context, id string) (*model.Group, error) {
	return t.GetGroup(ctx, id)
}

func (t *memTx) ListGroupsForUser(ctx context.Context, userID string) ([]model.Group, error) {
	var groups []model.Group
	for groupID, rows := range t.state.participants {
		for _, p := range rows {
			if p.UserID != userID || !p.Active {
				continue
			}
			g, err := t.GetGroup(ctx, groupID)
			if err != nil {
				break
			}
			groups = append(groups, *g)
			break
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].LastActivity.Equal(groups[j].LastActivity) {
			return groups[i].ID < groups[j].ID
		}
		return groups[i].LastActivity.After(groups[j].LastActivity)
	})
	return groups, nil
}

func (t *memTx) UpdateGroup(_ context.Context, id string, patch model.GroupPatch) error {
	g, ok := t.state.groups[id]
	if !ok || g.DeletedAt.Valid {
		return ErrNotFound
	}
	patch.Apply(&g)
	t.state.groups[id] = g
	return nil
}

func (t *memTx) DeleteGroup(_ context.Context, id string) error {
	g, ok := t.state.groups[id]
	if !ok || g.DeletedAt.Valid {
		return ErrNotFound
	}
	g.DeletedAt.Time = time.Now()
	g.DeletedAt.Valid = true
	t.state.groups[id] = g
	return nil
}

func (t *memTx) GetParticipants(_ context.Context, groupID string) ([]model.Participant, error) {
	return append([]model.Participant(nil), t.state.participants[groupID]...), nil
}

func (t *memTx) AddParticipant(_ context.Context, p *model.Participant, limit int) error {
	rows := t.state.participants[p.GroupID]
	idx, active := -1, 0
	for i, row := range rows {
		if row.Active {
			active++
		}
		if row.UserID == p.UserID {
			idx = i
		}
	}
	if idx >= 0 && rows[idx].Active {
		return ErrDuplicate
	}
	if active >= limit {
		return ErrCapacity
	}

	row := *p
	row.Permissions = nil
	if idx >= 0 {
		rows[idx] = row
	} else {
		rows = append(rows, row)
	}
	t.state.participants[p.GroupID] = rows
	return nil
}

func (t *memTx) UpsertParticipant(_ context.Context, groupID, userID string, patch model.ParticipantPatch) error {
	rows := t.state.participants[groupID]
	for i := range rows {
		if rows[i].UserID == userID {
			patch.Apply(&rows[i])
			return nil
		}
	}
	return ErrNotFound
}

func (t *memTx) InsertInviteLink(_ context.Context, link *model.InviteLink) error {
	if _, ok := t.state.invites[link.ID]; ok {
		return ErrDuplicate
	}
	for _, l := range t.state.invites {
		if l.Code == link.Code {
			return ErrDuplicate
		}
	}
	l := *link
	l.URL = ""
	t.state.invites[l.ID] = l
	return nil
}

func (t *memTx) GetInviteLink(_ context.Context, id string) (*model.InviteLink, error) {
	l, ok := t.state.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &l, nil
}

func (t *memTx) GetInviteLinkByCode(_ context.Context, code string) (*model.InviteLink, error) {
	for _, l := range t.state.invites {
		if l.Code == code {
			return &l, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) IncrementInviteUsage(_ context.Context, linkID string, now time.Time) error {
	l, ok := t.state.invites[linkID]
	if !ok {
		return ErrNotFound
	}
	if l.State(now) != model.InviteUsable {
		return ErrInviteUnavailable
	}
	l.UsageCount++
	t.state.invites[linkID] = l
	return nil
}

func (t *memTx) DeactivateInviteLink(_ context.Context, linkID string) error {
	l, ok := t.state.invites[linkID]
	if !ok {
		return ErrNotFound
	}
	l.Active = false
	t.state.invites[linkID] = l
	return nil
}

func (t *memTx) AppendAuditEntry(_ context.Context, entry *model.AuditEntry) error {
	for _, e := range t.state.audit {
		if e.ID == entry.ID {
			return ErrDuplicate
		}
	}
	t.state.audit = append(t.state.audit, *entry)
	return nil
}

func (t *memTx) ListAuditEntries(_ context.Context, groupID string) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for _, e := range t.state.audit {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *memTx) InsertMessage(_ context.Context, msg *model.Message) error {
	for _, m := range t.state.messages {
		if m.ID == msg.ID {
			return ErrDuplicate
		}
	}
	t.state.messages = append(t.state.messages, *msg)
	return nil
}

func (t *memTx) CountMessages(_ context.Context, groupID string, since *time.Time) (int64, error) {
	var n int64
	for _, m := range t.state.messages {
		if m.GroupID != groupID {
			continue
		}
		if since != nil && m.CreatedAt.Before(*since) {
			continue
		}
		n++
	}
	return n, nil
}
