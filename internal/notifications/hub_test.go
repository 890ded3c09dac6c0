package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
)

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(testEventuallyTimeout):
		t.Fatal("no message delivered")
		return Event{}
	}
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	anon, err := hub.Register(0, nil)
	require.NoError(t, err)
	user, err := hub.Register(7, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.Len())

	hub.BroadcastAll([]byte(`{"type":"post_created","payload":{}}`))
	assert.Equal(t, EventPostCreated, receive(t, anon).Type)
	assert.Equal(t, EventPostCreated, receive(t, user).Type)

	hub.UnregisterClient(user)
	hub.UnregisterClient(user)
	assert.Equal(t, 1, hub.Len())

	_, ok := <-user.Send
	assert.False(t, ok, "send channel closed on unregister")
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(3, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(3, nil)
	assert.ErrorIs(t, err, ErrUserConnsMax)

	// Anonymous and other users are unaffected.
	_, err = hub.Register(0, nil)
	assert.NoError(t, err)
	_, err = hub.Register(4, nil)
	assert.NoError(t, err)
}

func TestHub_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()

	c, err := hub.Register(1, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < sendBuffer*3; i++ {
			hub.BroadcastAll([]byte(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testEventuallyTimeout):
		t.Fatal("broadcast blocked on a full client")
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(1, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Equal(t, 0, hub.Len())

	_, err = hub.Register(1, nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestNotifier_WithoutRedisDeliversLocally(t *testing.T) {
	hub := NewHub()
	defer func() { _ = hub.Shutdown(context.Background()) }()
	c, err := hub.Register(0, nil)
	require.NoError(t, err)

	n := NewNotifier(nil, hub)
	require.NoError(t, n.Start(context.Background()))
	require.NoError(t, n.Publish(context.Background(), Event{
		Type:    EventPostReactionUpdated,
		Payload: PostReactionPayload{PostID: 5, Likes: 2},
	}))

	ev := receive(t, c)
	assert.Equal(t, EventPostReactionUpdated, ev.Type)
	payload, ok := ev.Payload.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, payload["post_id"])
	assert.EqualValues(t, 2, payload["likes"])
}

func TestNotifier_FansOutThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	// Two hubs stand in for two server instances sharing one Redis.
	hubA, hubB := NewHub(), NewHub()
	defer func() { _ = hubA.Shutdown(context.Background()) }()
	defer func() { _ = hubB.Shutdown(context.Background()) }()
	a, err := hubA.Register(0, nil)
	require.NoError(t, err)
	b, err := hubB.Register(0, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifierA := NewNotifier(rdb, hubA)
	require.NoError(t, notifierA.Start(ctx))
	require.NoError(t, NewNotifier(rdb, hubB).Start(ctx))

	require.NoError(t, notifierA.Publish(ctx, Event{
		Type:    EventCommentCreated,
		Payload: CommentPayload{PostID: 1, CommentID: 2, CommentsCount: 1},
	}))

	assert.Equal(t, EventCommentCreated, receive(t, a).Type)
	assert.Equal(t, EventCommentCreated, receive(t, b).Type)
}

func TestEventChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "events:post_created", EventChannel(EventPostCreated))
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Publish(context.Background(), Event{Type: EventPostCreated}))
}
