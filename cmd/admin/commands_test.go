package main

import (
	"arbiter/backend/internal/adjudication"
	"arbiter/backend/internal/api/handler"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"arbiter/backend/internal/verdict"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintToken(t *testing.T) {
	auth := handler.NewAuthenticator("secret")
	var out bytes.Buffer
	require.NoError(t, mintToken(&out, auth, "alice", time.Hour))

	userID, err := auth.VerifyToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)

	assert.Error(t, mintToken(&out, auth, "", time.Hour))
}

func TestShowSweepAndRejudge(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := storage.NewMemoryStore()
	cases := lifecycle.NewService(store, lifecycle.WithClock(clock))
	hearings := hearing.NewService(store, hearing.WithClock(clock))
	verdicts := verdict.NewService(store, adjudication.NewHeuristicAdjudicator(nil), verdict.WithClock(clock))

	c, err := cases.CreateCase(ctx, lifecycle.CreateCaseParams{OwnerID: "alice", Topic: "chores"})
	require.NoError(t, err)
	h, err := hearings.SubmitHearing(ctx, hearing.SubmitParams{
		CaseID:       c.ID,
		ActingUserID: "alice",
		Statements: []hearing.StatementInput{
			{Side: models.SideA, Narrative: "I did dishes"},
			{Side: models.SideB, Narrative: "I cooked"},
		},
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, rejudge(ctx, &out, store, verdicts, h.ID))
	assert.Contains(t, out.String(), "A 60.0% / B 40.0%")

	out.Reset()
	require.NoError(t, showCase(ctx, &out, store, c.ID))
	assert.Contains(t, out.String(), "Topic:        chores")
	assert.Contains(t, out.String(), "Status:       decided")
	assert.Contains(t, out.String(), "round 1")
	assert.Contains(t, out.String(), "confidence 0.30")

	bob := "bob"
	_, err = cases.CreateCase(ctx, lifecycle.CreateCaseParams{OwnerID: "alice", Topic: "rent", InvitedUserID: &bob})
	require.NoError(t, err)
	now = now.Add(48 * time.Hour)

	out.Reset()
	require.NoError(t, sweepExpired(ctx, &out, cases))
	assert.Equal(t, "Expired 1 invitation(s).\n", out.String())

	assert.Error(t, showCase(ctx, &out, store, "missing"))
	assert.Error(t, rejudge(ctx, &out, store, verdicts, "missing"))
}
