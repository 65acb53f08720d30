package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GroupHub/internal/model"
	"github.com/Gopher0727/GroupHub/internal/permission"
	"github.com/Gopher0727/GroupHub/internal/repository"
	"github.com/Gopher0727/GroupHub/utils/snowflake"
)

const (
	DefaultMaxParticipants = 256
	DefaultInviteBaseURL   = "https://grouphub.local/invite"
)

// IDGenerator issues audit entry ids. *snowflake.Generator satisfies it.
type IDGenerator interface {
	NextID() (int64, error)
}

// EventPublisher receives audit entries and announcements after they are stored.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type options struct {
	logger          *zap.Logger
	now             func() time.Time
	ids             IDGenerator
	publisher       EventPublisher
	eventBuffer     int
	maxParticipants int
	inviteBaseURL   string
}

// Option configures a Service.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(o *options) { o.ids = ids }
}

func WithPublisher(p EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithEventBuffer bounds how many events may wait for the publisher.
func WithEventBuffer(n int) Option {
	return func(o *options) { o.eventBuffer = n }
}

// WithDefaultMaxParticipants sets the limit used when CreateGroup is given none.
func WithDefaultMaxParticipants(n int) Option {
	return func(o *options) { o.maxParticipants = n }
}

func WithInviteBaseURL(url string) Option {
	return func(o *options) { o.inviteBaseURL = url }
}

// IGroupService covers the group lifecycle, announcements, the audit trail
// and analytics.
type IGroupService interface {
	CreateGroup(ctx context.Context, in CreateGroupInput, creatorID string) (*model.Group, error)
	GetGroupByID(ctx context.Context, groupID string) (*model.Group, error)
	GetUserGroups(ctx context.Context, userID string) ([]model.Group, error)
	UpdateGroupInfo(ctx context.Context, groupID string, patch GroupInfoPatch, actingUserID string) (*model.Group, error)
	UpdateGroupSettings(ctx context.Context, groupID string, patch model.SettingsPatch, actingUserID string) (*model.Group, error)
	PinMessage(ctx context.Context, groupID, messageID, actingUserID string) error
	UnpinMessage(ctx context.Context, groupID, messageID, actingUserID string) error
	ArchiveGroup(ctx context.Context, groupID, actingUserID string) (*model.Group, error)
	DeleteGroup(ctx context.Context, groupID, actingUserID string) error
	CreateAnnouncement(ctx context.Context, groupID, content, actingUserID string) (*model.Message, error)
	GetAuditTrail(ctx context.Context, groupID, actingUserID string) ([]model.AuditEntry, error)
	GetGroupAnalytics(ctx context.Context, groupID, actingUserID string) (*GroupAnalytics, error)
}

type IMemberService interface {
	AddMember(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error)
	RemoveMember(ctx context.Context, groupID, userID, actingUserID string) error
	LeaveGroup(ctx context.Context, groupID, userID string) error
	PromoteToAdmin(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error)
	DemoteFromAdmin(ctx context.Context, groupID, userID, actingUserID string) (*model.Participant, error)
	SetCustomTitle(ctx context.Context, groupID, userID, title, actingUserID string) (*model.Participant, error)
	RecordActivity(ctx context.Context, groupID, userID string) error
}

type IInviteService interface {
	CreateInviteLink(ctx context.Context, groupID, actingUserID string, in CreateInviteInput) (*model.InviteLink, error)
	RevokeInviteLink(ctx context.Context, linkID, actingUserID string) error
	JoinViaInvite(ctx context.Context, code, userID string) (*model.Group, error)
}

var (
	_ IGroupService  = (*Service)(nil)
	_ IMemberService = (*Service)(nil)
	_ IInviteService = (*Service)(nil)
)

// Service bundles the group managers behind one value. Every operation takes
// the acting user's id explicitly.
type Service struct {
	*GroupService
	*MemberService
	*InviteService
	*AnalyticsService

	Recorder *AuditRecorder
}

// New creates a Service backed by repo
func New(repo repository.IGroupRepository, opts ...Option) *Service {
	o := options{
		logger:          zap.NewNop(),
		now:             time.Now,
		maxParticipants: DefaultMaxParticipants,
		inviteBaseURL:   DefaultInviteBaseURL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ids == nil {
		// the zero config always validates
		gen, err := snowflake.NewGenerator(snowflake.Config{})
		if err != nil {
			panic(err)
		}
		o.ids = gen
	}
	if o.maxParticipants <= 0 {
		o.maxParticipants = DefaultMaxParticipants
	}

	recorder := NewAuditRecorder(repo, o.ids, o.publisher, o.eventBuffer, o.logger, o.now)
	c := &core{
		repo:            repo,
		log:             o.logger,
		now:             o.now,
		audit:           recorder,
		maxParticipants: o.maxParticipants,
	}
	return &Service{
		GroupService:     &GroupService{core: c},
		MemberService:    &MemberService{core: c},
		InviteService:    &InviteService{core: c, baseURL: o.inviteBaseURL},
		AnalyticsService: &AnalyticsService{core: c},
		Recorder:         recorder,
	}
}

// CreateAnnouncement posts an announcement message to the group.
func (s *Service) CreateAnnouncement(ctx context.Context, groupID, content, actingUserID string) (*model.Message, error) {
	return s.Recorder.CreateAnnouncement(ctx, groupID, content, actingUserID)
}

// Close flushes queued events, giving up when ctx ends. Operations after
// Close still succeed but their events are dropped.
func (s *Service) Close(ctx context.Context) error {
	return s.Recorder.Close(ctx)
}

// GetAuditTrail lists the group's audit entries, oldest first.
func (s *Service) GetAuditTrail(ctx context.Context, groupID, actingUserID string) ([]model.AuditEntry, error) {
	return s.Recorder.GetAuditTrail(ctx, groupID, actingUserID)
}

// core holds what every manager shares.
type core struct {
	repo            repository.IGroupRepository
	log             *zap.Logger
	now             func() time.Time
	audit           *AuditRecorder
	maxParticipants int
}

func (c *core) clock() time.Time {
	return c.now().UTC()
}

// load reads a live group with its active participants. With forUpdate the
// group row stays locked until r's transaction ends.
func load(ctx context.Context, r repository.IGroupRepository, groupID string, forUpdate bool) (*model.Group, error) {
	var (
		g   *model.Group
		err error
	)
	if forUpdate {
		g, err = r.GetGroupForUpdate(ctx, groupID)
	} else {
		g, err = r.GetGroup(ctx, groupID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, storeErr("load group", err)
	}

	rows, err := r.GetParticipants(ctx, groupID)
	if err != nil {
		return nil, storeErr("load participants", err)
	}
	hydrate(g, rows)
	return g, nil
}

// hydrate keeps the active rows and derives each one's permission names.
func hydrate(g *model.Group, rows []model.Participant) {
	active := make([]model.Participant, 0, len(rows))
	for _, p := range rows {
		if p.Active {
			active = append(active, p)
		}
	}
	g.Participants = active
	for i := range g.Participants {
		p := &g.Participants[i]
		p.Permissions = permission.For(p.Role, g).Names()
	}
}

func authorize(g *model.Group, userID string, c permission.Capability) error {
	if !permission.HasPermission(g, userID, c) {
		return denied(userID, c.String())
	}
	return nil
}

// writable rejects mutations of archived groups.
func writable(g *model.Group) error {
	if g.Archived {
		return invalid("group %s is archived", g.ID)
	}
	return nil
}

func participantOf(g *model.Group, userID string) (*model.Participant, error) {
	p, ok := g.ActiveParticipant(userID)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an active participant of %s", ErrNotFound, userID, g.ID)
	}
	cp := *p
	return &cp, nil
}

// mutate runs fn inside a transaction holding the group lock, after the
// capability and archive checks pass, and returns the group as committed.
func (c *core) mutate(ctx context.Context, groupID, actingUserID string, capability permission.Capability, fn func(tx repository.IGroupRepository, g *model.Group) error) (*model.Group, error) {
	var out *model.Group
	err := c.repo.Transaction(ctx, func(tx repository.IGroupRepository) error {
		g, err := load(ctx, tx, groupID, true)
		if err != nil {
			return err
		}
		if err := authorize(g, actingUserID, capability); err != nil {
			return err
		}
		if err := writable(g); err != nil {
			return err
		}
		if err := fn(tx, g); err != nil {
			return err
		}
		out, err = load(ctx, tx, groupID, false)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, storeErr(capability.String(), err)
	}
	return out, nil
}
