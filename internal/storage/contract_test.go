package storage

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/models"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runStorageContract exercises behavior every Storage implementation shares.
func runStorageContract(t *testing.T, s Storage) {
	ctx := context.Background()

	newCase := func(t *testing.T, owner string, invitee *string, created time.Time) *models.Case {
		t.Helper()
		c := &models.Case{
			Topic:        "dishes",
			Parties:      []models.Party{{Side: models.SideA}, {Side: models.SideB}},
			Status:       models.CaseStatusDraft,
			OwnerID:      owner,
			Participants: []string{owner},
			Acceptance:   models.AcceptanceAccepted,
			Language:     "en",
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		if invitee != nil {
			c.InvitedUserID = invitee
			c.Status = models.CaseStatusPendingAcceptance
			c.Acceptance = models.AcceptancePending
		}
		require.NoError(t, s.CreateCase(ctx, c))
		require.NotEmpty(t, c.ID)
		return c
	}

	t.Run("case round trip", func(t *testing.T) {
		bob := "bob"
		c := newCase(t, "alice", &bob, time.Now().UTC().Truncate(time.Millisecond))

		got, err := s.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "dishes", got.Topic)
		assert.Equal(t, []models.Party{{Side: models.SideA}, {Side: models.SideB}}, got.Parties)
		require.NotNil(t, got.InvitedUserID)
		assert.Equal(t, "bob", *got.InvitedUserID)

		got.Acceptance = models.AcceptanceAccepted
		got.Participants = append(got.Participants, "bob")
		require.NoError(t, s.UpdateCase(ctx, got))

		again, err := s.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AcceptanceAccepted, again.Acceptance)
		assert.ElementsMatch(t, []string{"alice", "bob"}, again.Participants)
	})

	t.Run("missing case is not found", func(t *testing.T) {
		_, err := s.GetCase(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		err = s.InCaseTx(ctx, "00000000-0000-0000-0000-000000000000", func(Storage) error { return nil })
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("list cases newest first", func(t *testing.T) {
		base := time.Now().UTC().Truncate(time.Millisecond)
		carol := "carol"
		older := newCase(t, "dave", nil, base.Add(-time.Hour))
		newer := newCase(t, "dave", &carol, base)
		_ = newCase(t, "erin", nil, base)

		cases, err := s.ListCasesForUser(ctx, "dave")
		require.NoError(t, err)
		require.Len(t, cases, 2)
		assert.Equal(t, newer.ID, cases[0].ID)
		assert.Equal(t, older.ID, cases[1].ID)

		invited, err := s.ListCasesForUser(ctx, "carol")
		require.NoError(t, err)
		require.Len(t, invited, 1)
		assert.Equal(t, newer.ID, invited[0].ID)

		pending, err := s.ListPendingCases(ctx)
		require.NoError(t, err)
		var ids []string
		for _, c := range pending {
			ids = append(ids, c.ID)
		}
		assert.Contains(t, ids, newer.ID)
		assert.NotContains(t, ids, older.ID)
	})

	t.Run("hearings and submissions", func(t *testing.T) {
		c := newCase(t, "frank", nil, time.Now().UTC())

		maxRound, err := s.MaxRound(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, maxRound)

		h2 := &models.Hearing{CaseID: c.ID, Round: 2, Status: models.HearingStatusSubmitted}
		h1 := &models.Hearing{CaseID: c.ID, Round: 1, Status: models.HearingStatusSubmitted}
		require.NoError(t, s.CreateHearing(ctx, h2))
		require.NoError(t, s.CreateHearing(ctx, h1))

		maxRound, err = s.MaxRound(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, maxRound)

		hearings, err := s.ListHearings(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, hearings, 2)
		assert.Equal(t, 1, hearings[0].Round)
		assert.Equal(t, 2, hearings[1].Round)

		require.NoError(t, s.ReplaceStatements(ctx, h1.ID, []models.Statement{
			{Side: models.SideA, Narrative: "first"},
			{Side: models.SideB, Narrative: "second", Requests: []string{"sorry"}},
		}))
		require.NoError(t, s.ReplaceStatements(ctx, h1.ID, []models.Statement{
			{Side: models.SideB, Narrative: "replaced"},
		}))
		statements, err := s.ListStatements(ctx, h1.ID)
		require.NoError(t, err)
		require.Len(t, statements, 1)
		assert.Equal(t, "replaced", statements[0].Narrative)
		assert.Equal(t, h1.ID, statements[0].HearingID)

		require.NoError(t, s.ReplaceEvidence(ctx, h1.ID, []models.Evidence{
			{Side: models.SideA, Type: models.EvidenceLink, Content: "https://example.com"},
		}))
		evidence, err := s.ListEvidence(ctx, h1.ID)
		require.NoError(t, err)
		require.Len(t, evidence, 1)
		assert.Equal(t, models.EvidenceLink, evidence[0].Type)

		require.NoError(t, s.UpdateHearingStatus(ctx, h1.ID, models.HearingStatusJudged))
		got, err := s.GetHearing(ctx, h1.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HearingStatusJudged, got.Status)
	})

	t.Run("verdict upsert replaces", func(t *testing.T) {
		c := newCase(t, "gina", nil, time.Now().UTC())
		h := &models.Hearing{CaseID: c.ID, Round: 1, Status: models.HearingStatusSubmitted}
		require.NoError(t, s.CreateHearing(ctx, h))

		_, err := s.GetVerdict(ctx, h.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		first := &models.Verdict{
			HearingID:       h.ID,
			Score:           models.Score{PartyAPct: 60, PartyBPct: 40, Confidence: 0.5},
			Summary:         "first",
			Reasoning:       models.Reasoning{FairnessChecks: []string{}, Assumptions: []string{}, MissingInfo: []string{}},
			Advice:          models.Advice{Together: []string{"talk"}, ForA: []string{}, ForB: []string{}},
			RawAgentPayload: json.RawMessage(`{"summary":"first"}`),
			CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
		}
		require.NoError(t, s.UpsertVerdict(ctx, first))

		second := *first
		second.Summary = "second"
		second.Score = models.Score{PartyAPct: 10, PartyBPct: 90, Confidence: 0.9}
		require.NoError(t, s.UpsertVerdict(ctx, &second))

		got, err := s.GetVerdict(ctx, h.ID)
		require.NoError(t, err)
		want := second
		if diff := cmp.Diff(want, *got,
			cmpopts.IgnoreFields(models.Verdict{}, "CreatedAt", "RawAgentPayload"),
			cmpopts.EquateEmpty(),
		); diff != "" {
			t.Errorf("verdict mismatch (-want +got):\n%s", diff)
		}
		assert.JSONEq(t, `{"summary":"first"}`, string(got.RawAgentPayload))
	})

	t.Run("case tx serializes read-modify-write", func(t *testing.T) {
		c := newCase(t, "hank", nil, time.Now().UTC())

		const workers = 8
		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				return s.InCaseTx(ctx, c.ID, func(tx Storage) error {
					maxRound, err := tx.MaxRound(ctx, c.ID)
					if err != nil {
						return err
					}
					return tx.CreateHearing(ctx, &models.Hearing{
						CaseID: c.ID,
						Round:  maxRound + 1,
						Status: models.HearingStatusSubmitted,
					})
				})
			})
		}
		require.NoError(t, g.Wait())

		hearings, err := s.ListHearings(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, hearings, workers)
		for i, h := range hearings {
			assert.Equal(t, i+1, h.Round, "rounds must be distinct and consecutive")
		}
	})

	t.Run("case tx propagates fn error", func(t *testing.T) {
		c := newCase(t, "ivy", nil, time.Now().UTC())
		boom := errors.New("boom")
		err := s.InCaseTx(ctx, c.ID, func(Storage) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}
