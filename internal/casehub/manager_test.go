package casehub_test

import (
	"arbiter/backend/internal/casehub"
	"arbiter/backend/internal/models"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*casehub.Manager, context.CancelFunc) {
	t.Helper()
	hub := casehub.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestManager_RegisterAndUnregister(t *testing.T) {
	hub, _ := startHub(t)
	client := newMockClient("alice", "case-1", 4)

	hub.RegisterCh <- client
	require.Eventually(t, func() bool { return hub.ClientCount("case-1") == 1 }, time.Second, 5*time.Millisecond)

	hub.UnregisterCh <- client
	require.Eventually(t, func() bool { return hub.ClientCount("case-1") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, client.Closed())

	// A second unregister is a no-op.
	hub.UnregisterCh <- client
	hub.UnregisterCh <- newMockClient("ghost", "case-9", 1)
	assert.Equal(t, 1, client.Closed())
}

func TestManager_DeliversOnlyToWatchersOfTheCase(t *testing.T) {
	hub, _ := startHub(t)
	alice := newMockClient("alice", "case-1", 4)
	bob := newMockClient("bob", "case-1", 4)
	other := newMockClient("carol", "case-2", 4)
	for _, c := range []*MockClient{alice, bob, other} {
		hub.RegisterCh <- c
	}

	evt := models.CaseEvent{CaseID: "case-1", Type: models.EventHearingSubmitted, HearingID: "h1", Status: models.CaseStatusPendingJudgement}
	require.NoError(t, hub.Publish(context.Background(), evt))

	for _, c := range []*MockClient{alice, bob} {
		select {
		case got := <-c.RecvChannel:
			assert.Equal(t, evt, got)
		case <-time.After(time.Second):
			t.Fatalf("%s did not receive the event", c.GetUserID())
		}
	}
	select {
	case got := <-other.RecvChannel:
		t.Fatalf("unexpected event for another case: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_DropsSlowClient(t *testing.T) {
	hub, _ := startHub(t)
	slow := newMockClient("alice", "case-1", 1)
	hub.RegisterCh <- slow

	evt := models.CaseEvent{CaseID: "case-1", Type: models.EventVerdictRecorded}
	require.NoError(t, hub.Publish(context.Background(), evt))
	require.NoError(t, hub.Publish(context.Background(), evt))

	require.Eventually(t, func() bool { return hub.ClientCount("case-1") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, slow.Closed())
}

func TestManager_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	client := newMockClient("alice", "case-1", 1)
	hub.RegisterCh <- client

	cancel()
	require.Eventually(t, func() bool { return client.Closed() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount("case-1"))
}

func TestManager_RegisterAfterShutdown(t *testing.T) {
	hub, cancel := startHub(t)
	first := newMockClient("alice", "case-1", 1)
	require.NoError(t, hub.Register(context.Background(), first))
	cancel()
	require.Eventually(t, func() bool { return first.Closed() == 1 }, time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Register(context.Background(), newMockClient("bob", "case-1", 1)) }()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Register blocked after the manager stopped")
	}
}

func TestManager_PublishHonoursContext(t *testing.T) {
	hub := casehub.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nothing drains EventsCh, so fill the buffer first.
	for i := 0; i < cap(hub.EventsCh); i++ {
		hub.EventsCh <- models.CaseEvent{}
	}
	assert.ErrorIs(t, hub.Publish(ctx, models.CaseEvent{CaseID: "x"}), context.Canceled)
}

func TestWebSocketClient_StreamsEvents(t *testing.T) {
	hub, _ := startHub(t)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		client := casehub.NewWebSocketClient(hub, conn, "alice", "case-1")
		hub.RegisterCh <- client
		client.Run()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return hub.ClientCount("case-1") == 1 }, time.Second, 5*time.Millisecond)

	evt := models.CaseEvent{CaseID: "case-1", Type: models.EventCaseAccepted, Status: models.CaseStatusDraft}
	require.NoError(t, hub.Publish(context.Background(), evt))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.CaseEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, evt.Type, got.Type)
	assert.Equal(t, evt.Status, got.Status)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount("case-1") == 0 }, time.Second, 5*time.Millisecond)
}
