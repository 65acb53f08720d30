package service

import (
	"context"
	"time"

	"github.com/Gopher0727/GroupHub/internal/model"
)

const (
	activeWindow    = 7 * 24 * time.Hour
	frequencyWindow = 30
)

// GroupAnalytics is a read-only rollup computed on demand
type GroupAnalytics struct {
	TotalMessages    int64   `json:"total_messages"`
	TotalMembers     int     `json:"total_members"`
	ActiveMembers    int     `json:"active_members"`
	MessageFrequency float64 `json:"message_frequency"`
	EngagementRate   float64 `json:"engagement_rate"`
}

// AnalyticsService computes group rollups.
type AnalyticsService struct {
	*core
}

// GetGroupAnalytics computes the rollup for a group the caller belongs to
func (s *AnalyticsService) GetGroupAnalytics(ctx context.Context, groupID, actingUserID string) (*GroupAnalytics, error) {
	g, err := load(ctx, s.repo, groupID, false)
	if err != nil {
		return nil, err
	}
	if _, ok := g.ActiveParticipant(actingUserID); !ok {
		return nil, denied(actingUserID, "read analytics")
	}

	now := s.clock()
	total, err := s.repo.CountMessages(ctx, groupID, nil)
	if err != nil {
		return nil, storeErr("count messages", err)
	}
	since := now.AddDate(0, 0, -frequencyWindow)
	recent, err := s.repo.CountMessages(ctx, groupID, &since)
	if err != nil {
		return nil, storeErr("count recent messages", err)
	}

	return summarize(g.Participants, total, recent, now), nil
}

func summarize(participants []model.Participant, total, recent int64, now time.Time) *GroupAnalytics {
	a := &GroupAnalytics{
		TotalMessages:    total,
		MessageFrequency: float64(recent) / frequencyWindow,
	}

	cutoff := now.Add(-activeWindow)
	for _, p := range participants {
		if !p.Active {
			continue
		}
		a.TotalMembers++
		seen := p.JoinedAt
		if p.LastSeenAt != nil {
			seen = *p.LastSeenAt
		}
		if !seen.Before(cutoff) {
			a.ActiveMembers++
		}
	}
	if a.TotalMembers > 0 {
		a.EngagementRate = float64(a.ActiveMembers) / float64(a.TotalMembers) * 100
	}
	return a
}
