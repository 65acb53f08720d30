package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/GroupHub/internal/model"
)

var base = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func newSQLiteRepository(t *testing.T) IGroupRepository {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection serializes transactions the way row locks would
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...))
	return NewGormRepository(db)
}

func backends() map[string]func(t *testing.T) IGroupRepository {
	return map[string]func(t *testing.T) IGroupRepository{
		"memory": func(t *testing.T) IGroupRepository { return NewMemoryRepository() },
		"gorm":   newSQLiteRepository,
	}
}

func seedGroup(t *testing.T, repo IGroupRepository, id string, lastActivity time.Time, members ...string) {
	t.Helper()
	ctx := context.Background()

	g := &model.Group{
		ID:              id,
		Name:            "group " + id,
		CreatorID:       members[0],
		Type:            model.GroupTypePrivate,
		Category:        model.CategoryGeneral,
		MaxParticipants: 256,
		Settings:        model.DefaultSettings(),
		CreatedAt:       base,
		LastActivity:    lastActivity,
	}
	rows := make([]model.Participant, 0, len(members))
	for i, uid := range members {
		role := model.RoleMember
		if i == 0 {
			role = model.RoleAdmin
		}
		rows = append(rows, model.Participant{
			UserID:   uid,
			Role:     role,
			JoinedAt: base.Add(time.Duration(i) * time.Second),
			AddedBy:  members[0],
			Active:   true,
		})
	}

	require.NoError(t, repo.Transaction(ctx, func(tx IGroupRepository) error {
		if err := tx.InsertGroup(ctx, g); err != nil {
			return err
		}
		return tx.InsertParticipants(ctx, id, rows)
	}))
}

func TestRepository_Groups(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "g1", base, "u1", "u2")

			t.Run("get returns the stored row", func(t *testing.T) {
				g, err := repo.GetGroup(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, "group g1", g.Name)
				assert.Equal(t, model.DefaultSettings(), g.Settings)
				assert.True(t, g.LastActivity.Equal(base))
			})

			t.Run("missing group", func(t *testing.T) {
				_, err := repo.GetGroup(ctx, "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("update applies only provided fields", func(t *testing.T) {
				name := "renamed"
				settings := model.DefaultSettings()
				settings.WhoCanSendMessages = model.AudienceAdminsOnly
				pinned := []string{"m1", "m2"}
				require.NoError(t, repo.UpdateGroup(ctx, "g1", model.GroupPatch{
					Name:             &name,
					Settings:         &settings,
					PinnedMessageIDs: &pinned,
				}))

				g, err := repo.GetGroup(ctx, "g1")
				require.NoError(t, err)
				assert.Equal(t, "renamed", g.Name)
				assert.Equal(t, "", g.Description)
				assert.Equal(t, model.AudienceAdminsOnly, g.Settings.WhoCanSendMessages)
				assert.Equal(t, model.AudienceAdminsOnly, g.Settings.WhoCanRemoveMembers)
				assert.Equal(t, []string{"m1", "m2"}, g.PinnedMessageIDs)
			})

			t.Run("update of missing group", func(t *testing.T) {
				name := "x"
				err := repo.UpdateGroup(ctx, "nope", model.GroupPatch{Name: &name})
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("deleted group is invisible", func(t *testing.T) {
				seedGroup(t, repo, "g-del", base, "u1")
				require.NoError(t, repo.DeleteGroup(ctx, "g-del"))

				_, err := repo.GetGroup(ctx, "g-del")
				assert.ErrorIs(t, err, ErrNotFound)
				assert.ErrorIs(t, repo.DeleteGroup(ctx, "g-del"), ErrNotFound)
			})
		})
	}
}

func TestRepository_ListGroupsForUser(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "old", base, "u1", "u2")
			seedGroup(t, repo, "new", base.Add(time.Hour), "u2")
			seedGroup(t, repo, "left", base.Add(2*time.Hour), "u3", "u2")

			inactive := false
			require.NoError(t, repo.UpsertParticipant(ctx, "left", "u2", model.ParticipantPatch{Active: &inactive}))

			groups, err := repo.ListGroupsForUser(ctx, "u2")
			require.NoError(t, err)
			require.Len(t, groups, 2)
			assert.Equal(t, "new", groups[0].ID)
			assert.Equal(t, "old", groups[1].ID)
		})
	}
}

func TestRepository_Participants(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "g1", base, "u1", "u2")

			t.Run("rows come back in join order", func(t *testing.T) {
				rows, err := repo.GetParticipants(ctx, "g1")
				require.NoError(t, err)
				require.Len(t, rows, 2)
				assert.Equal(t, "u1", rows[0].UserID)
				assert.Equal(t, model.RoleAdmin, rows[0].Role)
				assert.Equal(t, "u2", rows[1].UserID)
			})

			t.Run("duplicate initial rows are rejected", func(t *testing.T) {
				err := repo.InsertParticipants(ctx, "g1", []model.Participant{{UserID: "u2", Role: model.RoleMember, JoinedAt: base, Active: true}})
				assert.ErrorIs(t, err, ErrDuplicate)
			})

			t.Run("active member cannot be added twice", func(t *testing.T) {
				err := repo.AddParticipant(ctx, &model.Participant{GroupID: "g1", UserID: "u2", Role: model.RoleMember, JoinedAt: base, Active: true}, 10)
				assert.ErrorIs(t, err, ErrDuplicate)
			})

			t.Run("capacity is enforced", func(t *testing.T) {
				err := repo.AddParticipant(ctx, &model.Participant{GroupID: "g1", UserID: "u3", Role: model.RoleMember, JoinedAt: base, Active: true}, 2)
				assert.ErrorIs(t, err, ErrCapacity)

				rows, err := repo.GetParticipants(ctx, "g1")
				require.NoError(t, err)
				assert.Len(t, rows, 2)
			})

			t.Run("closed row is reactivated", func(t *testing.T) {
				inactive := false
				removedAt := base.Add(time.Minute)
				by := "u1"
				require.NoError(t, repo.UpsertParticipant(ctx, "g1", "u2", model.ParticipantPatch{
					Active:    &inactive,
					RemovedAt: &removedAt,
					RemovedBy: &by,
				}))

				joined := base.Add(time.Hour)
				require.NoError(t, repo.AddParticipant(ctx, &model.Participant{
					GroupID: "g1", UserID: "u2", Role: model.RoleMember, JoinedAt: joined, AddedBy: "u1", Active: true,
				}, 2))

				rows, err := repo.GetParticipants(ctx, "g1")
				require.NoError(t, err)
				require.Len(t, rows, 2)
				var u2 model.Participant
				for _, p := range rows {
					if p.UserID == "u2" {
						u2 = p
					}
				}
				assert.True(t, u2.Active)
				assert.Nil(t, u2.RemovedAt)
				assert.Nil(t, u2.RemovedBy)
				assert.True(t, u2.JoinedAt.Equal(joined))
			})

			t.Run("upsert of unknown row", func(t *testing.T) {
				role := model.RoleAdmin
				err := repo.UpsertParticipant(ctx, "g1", "ghost", model.ParticipantPatch{Role: &role})
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestRepository_InviteLinks(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "g1", base, "u1")

			two := 2
			link := &model.InviteLink{
				ID: "l1", GroupID: "g1", Code: "code-1", CreatorID: "u1",
				CreatedAt: base, MaxUses: &two, Active: true,
			}
			require.NoError(t, repo.InsertInviteLink(ctx, link))

			t.Run("code collision", func(t *testing.T) {
				err := repo.InsertInviteLink(ctx, &model.InviteLink{ID: "l2", GroupID: "g1", Code: "code-1", CreatorID: "u1", CreatedAt: base, Active: true})
				assert.ErrorIs(t, err, ErrDuplicate)
			})

			t.Run("lookup by code", func(t *testing.T) {
				got, err := repo.GetInviteLinkByCode(ctx, "code-1")
				require.NoError(t, err)
				assert.Equal(t, "l1", got.ID)
				require.NotNil(t, got.MaxUses)
				assert.Equal(t, 2, *got.MaxUses)

				_, err = repo.GetInviteLinkByCode(ctx, "unknown")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("usage stops at max uses", func(t *testing.T) {
				now := base.Add(time.Minute)
				require.NoError(t, repo.IncrementInviteUsage(ctx, "l1", now))
				require.NoError(t, repo.IncrementInviteUsage(ctx, "l1", now))
				assert.ErrorIs(t, repo.IncrementInviteUsage(ctx, "l1", now), ErrInviteUnavailable)

				got, err := repo.GetInviteLink(ctx, "l1")
				require.NoError(t, err)
				assert.Equal(t, 2, got.UsageCount)
			})

			t.Run("revoked link is unusable", func(t *testing.T) {
				require.NoError(t, repo.InsertInviteLink(ctx, &model.InviteLink{ID: "l3", GroupID: "g1", Code: "code-3", CreatorID: "u1", CreatedAt: base, Active: true}))
				require.NoError(t, repo.DeactivateInviteLink(ctx, "l3"))
				assert.ErrorIs(t, repo.IncrementInviteUsage(ctx, "l3", base), ErrInviteUnavailable)
				assert.ErrorIs(t, repo.DeactivateInviteLink(ctx, "missing"), ErrNotFound)
			})
		})
	}
}

func TestRepository_InviteUsageRace(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "g1", base, "u1")

			one := 1
			require.NoError(t, repo.InsertInviteLink(ctx, &model.InviteLink{
				ID: "l1", GroupID: "g1", Code: "race", CreatorID: "u1", CreatedAt: base, MaxUses: &one, Active: true,
			}))

			const workers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				succeeded int
			)
			for range workers {
				wg.Go(func() {
					err := repo.Transaction(ctx, func(tx IGroupRepository) error {
						return tx.IncrementInviteUsage(ctx, "l1", base)
					})
					if err == nil {
						mu.Lock()
						succeeded++
						mu.Unlock()
					} else if !errors.Is(err, ErrInviteUnavailable) {
						t.Errorf("unexpected error: %v", err)
					}
				})
			}
			wg.Wait()

			assert.Equal(t, 1, succeeded)
			got, err := repo.GetInviteLink(ctx, "l1")
			require.NoError(t, err)
			assert.Equal(t, 1, got.UsageCount)
		})
	}
}

func TestRepository_TransactionRollback(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			boom := errors.New("boom")

			err := repo.Transaction(ctx, func(tx IGroupRepository) error {
				g := &model.Group{ID: "g1", Name: "x", CreatorID: "u1", Type: model.GroupTypePrivate,
					Category: model.CategoryGeneral, MaxParticipants: 5, Settings: model.DefaultSettings(),
					CreatedAt: base, LastActivity: base}
				if err := tx.InsertGroup(ctx, g); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			_, err = repo.GetGroup(ctx, "g1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRepository_AuditAndMessages(t *testing.T) {
	for name, newRepo := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			seedGroup(t, repo, "g1", base, "u1")

			require.NoError(t, repo.AppendAuditEntry(ctx, &model.AuditEntry{
				ID: 1, GroupID: "g1", Kind: model.AuditGroupCreated, ActorID: "u1",
				TargetIDs: []string{"u1"}, Details: map[string]any{"name": "group g1"}, CreatedAt: base,
			}))
			require.NoError(t, repo.AppendAuditEntry(ctx, &model.AuditEntry{
				ID: 2, GroupID: "g1", Kind: model.AuditMemberAdded, ActorID: "u1",
				TargetIDs: []string{"u2"}, CreatedAt: base.Add(time.Second),
			}))
			assert.ErrorIs(t, repo.AppendAuditEntry(ctx, &model.AuditEntry{ID: 2, GroupID: "g1", Kind: model.AuditMemberAdded, ActorID: "u1", CreatedAt: base}), ErrDuplicate)

			entries, err := repo.ListAuditEntries(ctx, "g1")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, model.AuditGroupCreated, entries[0].Kind)
			assert.Equal(t, "group g1", entries[0].Details["name"])
			assert.Equal(t, []string{"u2"}, entries[1].TargetIDs)

			for i, at := range []time.Time{base.Add(-48 * time.Hour), base, base.Add(time.Hour)} {
				require.NoError(t, repo.InsertMessage(ctx, &model.Message{
					ID: uuid.NewString(), GroupID: "g1", SenderID: "u1",
					Kind: model.MessageKindText, Content: "hi", CreatedAt: at,
				}), "message %d", i)
			}

			total, err := repo.CountMessages(ctx, "g1", nil)
			require.NoError(t, err)
			assert.Equal(t, int64(3), total)

			since := base.Add(-time.Hour)
			recent, err := repo.CountMessages(ctx, "g1", &since)
			require.NoError(t, err)
			assert.Equal(t, int64(2), recent)

			other, err := repo.CountMessages(ctx, "g2", nil)
			require.NoError(t, err)
			assert.Zero(t, other)
		})
	}
}
