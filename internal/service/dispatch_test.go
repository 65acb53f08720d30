package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// blockingPublisher holds every Publish call until release is closed.
type blockingPublisher struct {
	capturePublisher
	started chan struct{}
	release chan struct{}
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{
		started: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
}

func (p *blockingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.started <- struct{}{}
	<-p.release
	return p.capturePublisher.Publish(ctx, key, event)
}

func TestSlowPublisherDoesNotDelayMutations(t *testing.T) {
	pub := newBlockingPublisher()
	f := newFixture(t, WithPublisher(pub))
	defer close(pub.release)

	done := make(chan error, 1)
	go func() {
		g, err := f.svc.CreateGroup(context.Background(), CreateGroupInput{Name: "Team"}, "u1")
		if err == nil {
			_, err = f.svc.AddMember(context.Background(), g.ID, "u2", "u1")
		}
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("mutations waited on the event publisher")
	}

	select {
	case <-pub.started:
	case <-time.After(time.Second):
		t.Fatal("event never reached the publisher")
	}
	assert.Empty(t, pub.types(), "publisher is still blocked")
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	pub := newBlockingPublisher()
	f := newFixture(t, WithPublisher(pub))
	g := f.group(t, "u1", "u2")

	_, err := f.svc.PromoteToAdmin(context.Background(), g.ID, "u2", "u1")
	require.NoError(t, err)

	close(pub.release)
	f.flush(t)
	assert.Equal(t, []string{EventAudit, EventAudit}, pub.types())
	assert.Zero(t, f.svc.Recorder.Dropped())

	// closed recorders drop instead of blocking
	_, err = f.svc.DemoteFromAdmin(context.Background(), g.ID, "u2", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.svc.Recorder.Dropped())
	assert.Len(t, pub.types(), 2)
}

func TestDispatcherCloseIsBounded(t *testing.T) {
	pub := newBlockingPublisher()
	defer close(pub.release)
	f := newFixture(t, WithPublisher(pub))
	f.group(t, "u1")
	<-pub.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := f.svc.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	pub := newBlockingPublisher()
	d := newDispatcher(pub, 1, zap.NewNop())

	d.submit(context.Background(), "g1", Event{Type: EventAudit, GroupID: "g1"})
	<-pub.started
	d.submit(context.Background(), "g1", Event{Type: EventAudit, GroupID: "g1"})
	d.submit(context.Background(), "g1", Event{Type: EventAudit, GroupID: "g1"})
	assert.Equal(t, int64(1), d.dropped.Load())

	close(pub.release)
	require.NoError(t, d.close(context.Background()))
	assert.Len(t, pub.types(), 2)
	require.NoError(t, d.close(context.Background()), "second close")
}

type panickyPublisher struct{ calls int }

func (p *panickyPublisher) Publish(context.Context, string, any) error {
	p.calls++
	if p.calls == 1 {
		panic("encoder bug")
	}
	return nil
}

func TestDispatcherSurvivesPanic(t *testing.T) {
	pub := &panickyPublisher{}
	d := newDispatcher(pub, 4, zap.NewNop())
	d.submit(context.Background(), "g1", Event{Type: EventAudit})
	d.submit(context.Background(), "g1", Event{Type: EventAnnouncement})
	require.NoError(t, d.close(context.Background()))
	assert.Equal(t, 2, pub.calls)
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	var got context.Context
	pub := publisherFunc(func(ctx context.Context, _ string, _ any) error {
		got = ctx
		return nil
	})
	d := newDispatcher(pub, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "trace-1"))
	d.submit(ctx, "g1", Event{Type: EventAudit})
	cancel()
	require.NoError(t, d.close(context.Background()))

	require.NotNil(t, got)
	assert.NoError(t, got.Err())
	assert.Equal(t, "trace-1", got.Value(ctxKey{}))
}

type ctxKey struct{}

type publisherFunc func(ctx context.Context, key string, event any) error

func (f publisherFunc) Publish(ctx context.Context, key string, event any) error {
	return f(ctx, key, event)
}
