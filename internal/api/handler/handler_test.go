package handler

import (
	"arbiter/backend/internal/adjudication"
	"arbiter/backend/internal/appeal"
	"arbiter/backend/internal/casehub"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"arbiter/backend/internal/verdict"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testServer struct {
	router *gin.Engine
	auth   *Authenticator
	hub    *casehub.Manager
	clock  *testClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := &testClock{now: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStore()
	hub := casehub.NewManager()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cases := lifecycle.NewService(store, lifecycle.WithClock(clock.Now), lifecycle.WithPublisher(hub))
	hearings := hearing.NewService(store, hearing.WithClock(clock.Now), hearing.WithPublisher(hub))
	appeals := appeal.NewController(store, appeal.WithClock(clock.Now), appeal.WithPublisher(hub))
	verdicts := verdict.NewService(store, adjudication.NewHeuristicAdjudicator(nil),
		verdict.WithClock(clock.Now), verdict.WithPublisher(hub))

	auth := NewAuthenticator(testSecret)
	h := NewHandler(cases, hearings, appeals, verdicts, hub, auth)
	return &testServer{router: NewRouter(h), auth: auth, hub: hub, clock: clock}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.auth.GenerateToken(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var twoStatements = gin.H{
	"statements": []gin.H{
		{"side": "A", "narrative": "I did dishes"},
		{"side": "B", "narrative": "I cooked"},
	},
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/cases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, header := range []string{"Basic abc", "Bearer not-a-jwt", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
	}

	other := NewAuthenticator("other-secret")
	forged, err := other.GenerateToken("alice", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/cases", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQueryTokenOnlyOnEventsRoute(t *testing.T) {
	var logs bytes.Buffer
	prev := gin.DefaultWriter
	gin.DefaultWriter = &logs
	t.Cleanup(func() { gin.DefaultWriter = prev })

	s := newTestServer(t)
	tok := s.token(t, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/cases?token="+tok, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	created := decode[map[string]any](t, s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "chores"}))
	caseID, _ := created["id"].(string)
	require.NotEmpty(t, caseID)

	// Not a websocket handshake, so the upgrade fails after auth passes.
	req = httptest.NewRequest(http.MethodGet, "/api/cases/"+caseID+"/events?token="+tok, nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)

	assert.Contains(t, logs.String(), "/api/cases")
	assert.NotContains(t, logs.String(), tok)
	assert.NotContains(t, logs.String(), "token=")
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	a := NewAuthenticator(testSecret)
	issued := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return issued }
	tok, err := a.GenerateToken("alice", time.Minute)
	require.NoError(t, err)

	userID, err := a.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	a.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = a.VerifyToken(tok)
	assert.Error(t, err)

	_, err = a.GenerateToken(" ", 0)
	assert.Error(t, err)
}

func TestCaseHearingVerdictFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "chores"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.Case](t, w)
	assert.Equal(t, models.CaseStatusDraft, created.Status)
	assert.Equal(t, "alice", created.OwnerID)

	w = s.do(t, http.MethodPost, "/api/cases/"+created.ID+"/hearings", "alice", twoStatements)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.Hearing](t, w)
	assert.Equal(t, 1, first.Round)

	w = s.do(t, http.MethodGet, "/api/hearings/"+first.ID+"/verdict", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/hearings/"+first.ID+"/judge", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var judged map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &judged))
	assert.Equal(t, first.ID, judged["hearing_id"])
	score := judged["score"].(map[string]any)
	assert.InDelta(t, 60, score["partyA_pct"], 1e-9)
	assert.InDelta(t, 40, score["partyB_pct"], 1e-9)
	assert.Contains(t, judged, "raw_agent_payload")

	w = s.do(t, http.MethodPut, "/api/hearings/"+first.ID+"/submissions", "alice", twoStatements)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/cases/"+created.ID+"/appeals", "alice", gin.H{"hearing_id": first.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	second := decode[models.Hearing](t, w)
	assert.Equal(t, 2, second.Round)
	require.NotNil(t, second.AppealOf)
	assert.Equal(t, first.ID, *second.AppealOf)

	w = s.do(t, http.MethodGet, "/api/cases/"+created.ID+"/hearings", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[struct {
		Hearings []models.Hearing `json:"hearings"`
	}](t, w)
	require.Len(t, listed.Hearings, 2)
	assert.Equal(t, models.HearingStatusJudged, listed.Hearings[0].Status)
	assert.Equal(t, models.HearingStatusSubmitted, listed.Hearings[1].Status)

	w = s.do(t, http.MethodGet, "/api/hearings/"+first.ID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bundle := decode[hearing.Bundle](t, w)
	assert.Len(t, bundle.Statements, 2)
	require.NotNil(t, bundle.Verdict)

	w = s.do(t, http.MethodGet, "/api/cases/"+created.ID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CaseStatusAppealed, decode[models.Case](t, w).Status)
}

func TestInvitationFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "rent", "invited_user_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode[models.Case](t, w)
	assert.Equal(t, models.AcceptancePending, c.Acceptance)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/hearings", "alice", twoStatements)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/accept", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/cases", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[struct {
		Cases []models.Case `json:"cases"`
	}](t, w).Cases, 1)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/accept", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	accepted := decode[models.Case](t, w)
	assert.Equal(t, models.AcceptanceAccepted, accepted.Acceptance)
	assert.Contains(t, []string(accepted.Participants), "bob")

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/hearings", "bob", twoStatements)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestExpiredInvitation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "rent", "invited_user_id": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode[models.Case](t, w)

	s.clock.Advance(25 * time.Hour)
	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/accept", "bob", nil)
		assert.Equal(t, http.StatusGone, w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/cases/"+c.ID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.Case](t, w)
	assert.Equal(t, models.CaseStatusExpired, got.Status)
	assert.Equal(t, models.AcceptanceExpired, got.Acceptance)
}

func TestErrorBodies(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorResponse](t, w)
	assert.Equal(t, "topic", body.Field)
	assert.NotEmpty(t, body.Error)

	w = s.do(t, http.MethodPost, "/api/cases", "alice", `{"topic":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/cases/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "chores"})
	c := decode[models.Case](t, w)

	w = s.do(t, http.MethodGet, "/api/cases/"+c.ID, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/hearings", "alice", gin.H{
		"statements": []gin.H{{"side": "C", "narrative": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "statements[0].side", decode[errorResponse](t, w).Field)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/appeals", "alice", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "hearing_id", decode[errorResponse](t, w).Field)
}

func TestCaseEventsWebSocket(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	w := s.do(t, http.MethodPost, "/api/cases", "alice", gin.H{"topic": "chores"})
	require.Equal(t, http.StatusCreated, w.Code)
	c := decode[models.Case](t, w)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/cases/" + c.ID + "/events?token=" + s.token(t, "mallory")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token(t, "alice"))
	wsURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/api/cases/" + c.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.hub.ClientCount(c.ID) == 1 }, time.Second, 5*time.Millisecond)

	w = s.do(t, http.MethodPost, "/api/cases/"+c.ID+"/hearings", "alice", twoStatements)
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt models.CaseEvent
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, models.EventHearingSubmitted, evt.Type)
	assert.Equal(t, c.ID, evt.CaseID)
	assert.Equal(t, models.CaseStatusPendingJudgement, evt.Status)
}
