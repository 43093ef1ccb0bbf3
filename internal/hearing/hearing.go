// Package hearing runs the per-round submission flow: it numbers rounds,
// stores statements and evidence, and moves the case to pending_judgement.
package hearing

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/lifecycle"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	store     storage.Storage
	publisher storage.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithPublisher(p storage.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: storage.NopPublisher{},
		logger:    logging.New("hearing"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitParams is the input of SubmitHearing. Round is optional; when nil
// the next round after the highest existing one is used.
type SubmitParams struct {
	CaseID       string
	ActingUserID string
	Round        *int
	Statements   []StatementInput
	Evidence     []EvidenceInput
}

// Bundle is a hearing with everything submitted for it.
type Bundle struct {
	Hearing    models.Hearing     `json:"hearing"`
	Statements []models.Statement `json:"statements"`
	Evidence   []models.Evidence  `json:"evidence"`
	Verdict    *models.Verdict    `json:"verdict,omitempty"`
}

// SubmitHearing opens a new round on an accepted case.
func (s *Service) SubmitHearing(ctx context.Context, p SubmitParams) (models.Hearing, error) {
	statements, evidence, err := ValidateSubmissions(p.Statements, p.Evidence, true)
	if err != nil {
		return models.Hearing{}, err
	}
	if p.Round != nil && *p.Round < 1 {
		return models.Hearing{}, apperr.Invalid("round", "must be at least 1, got %d", *p.Round)
	}

	var (
		created   models.Hearing
		caseState models.Case
		expired   bool
		outcome   error
	)
	err = s.store.InCaseTx(ctx, p.CaseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, p.CaseID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if expired, err = lifecycle.ExpireIfDue(ctx, tx, c, now); err != nil {
			return err
		}
		caseState = *c
		if c.Acceptance != models.AcceptanceAccepted {
			outcome = apperr.ErrCaseNotAccepted
			return nil
		}
		if !c.HasParticipant(p.ActingUserID) {
			outcome = apperr.ErrForbidden
			return nil
		}

		round := 0
		if p.Round != nil {
			round = *p.Round
		} else {
			maxRound, err := tx.MaxRound(ctx, c.ID)
			if err != nil {
				return err
			}
			round = maxRound + 1
		}

		created = models.Hearing{
			ID:        s.newID(),
			CaseID:    c.ID,
			Round:     round,
			Status:    models.HearingStatusSubmitted,
			CreatedAt: now,
		}
		if err := tx.CreateHearing(ctx, &created); err != nil {
			return err
		}
		if err := s.replace(ctx, tx, created.ID, statements, evidence, now); err != nil {
			return err
		}

		c.Status = models.CaseStatusPendingJudgement
		c.UpdatedAt = now
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		caseState = *c
		return nil
	})
	if err != nil {
		return models.Hearing{}, s.fail("submit hearing", p.CaseID, err)
	}
	if expired {
		s.logger.Info("invitation expired", "case_id", caseState.ID)
		s.publish(ctx, caseState, "", models.EventCaseExpired)
	}
	if outcome != nil {
		return models.Hearing{}, fmt.Errorf("hearing: submit hearing for case %s: %w", p.CaseID, outcome)
	}

	s.logger.Info("hearing submitted", "case_id", created.CaseID, "hearing_id", created.ID, "round", created.Round)
	s.publish(ctx, caseState, created.ID, models.EventHearingSubmitted)
	return created, nil
}

// ResubmitParams is the input of ResubmitStatements.
type ResubmitParams struct {
	HearingID    string
	ActingUserID string
	Statements   []StatementInput
	Evidence     []EvidenceInput
}

// ResubmitStatements overwrites the statement and evidence sets of a
// hearing that has not been judged yet. Repeating the same call yields the
// same stored state.
func (s *Service) ResubmitStatements(ctx context.Context, p ResubmitParams) (Bundle, error) {
	statements, evidence, err := ValidateSubmissions(p.Statements, p.Evidence, true)
	if err != nil {
		return Bundle{}, err
	}

	h, err := s.store.GetHearing(ctx, p.HearingID)
	if err != nil {
		return Bundle{}, s.fail("resubmit", p.HearingID, err)
	}

	var (
		bundle    Bundle
		caseState models.Case
		outcome   error
	)
	err = s.store.InCaseTx(ctx, h.CaseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, h.CaseID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(p.ActingUserID) {
			outcome = apperr.ErrForbidden
			return nil
		}
		current, err := tx.GetHearing(ctx, h.ID)
		if err != nil {
			return err
		}
		if current.Status != models.HearingStatusSubmitted {
			outcome = apperr.ErrHearingJudged
			return nil
		}
		if err := s.replace(ctx, tx, current.ID, statements, evidence, s.now().UTC()); err != nil {
			return err
		}
		bundle = Bundle{Hearing: *current, Statements: statements, Evidence: evidence}
		caseState = *c
		return nil
	})
	if err != nil {
		return Bundle{}, s.fail("resubmit", p.HearingID, err)
	}
	if outcome != nil {
		return Bundle{}, fmt.Errorf("hearing: resubmit %s: %w", p.HearingID, outcome)
	}

	s.logger.Info("hearing submissions replaced", "hearing_id", p.HearingID, "statements", len(statements), "evidence", len(evidence))
	s.publish(ctx, caseState, p.HearingID, models.EventHearingUpdated)
	return bundle, nil
}

// replace assigns ids and timestamps, then swaps both submission sets.
func (s *Service) replace(ctx context.Context, tx storage.Storage, hearingID string, statements []models.Statement, evidence []models.Evidence, now time.Time) error {
	for i := range statements {
		statements[i].ID = s.newID()
		statements[i].HearingID = hearingID
		statements[i].CreatedAt = now
	}
	for i := range evidence {
		evidence[i].ID = s.newID()
		evidence[i].HearingID = hearingID
		evidence[i].CreatedAt = now
	}
	if err := tx.ReplaceStatements(ctx, hearingID, statements); err != nil {
		return err
	}
	return tx.ReplaceEvidence(ctx, hearingID, evidence)
}

// GetHearing returns the hearing with its submissions and verdict, if any.
func (s *Service) GetHearing(ctx context.Context, hearingID, actingUserID string) (Bundle, error) {
	h, err := s.store.GetHearing(ctx, hearingID)
	if err != nil {
		return Bundle{}, s.fail("get hearing", hearingID, err)
	}
	if err := s.authorize(ctx, h.CaseID, actingUserID); err != nil {
		return Bundle{}, fmt.Errorf("hearing: get hearing %s: %w", hearingID, err)
	}

	bundle, err := LoadBundle(ctx, s.store, *h)
	if err != nil {
		return Bundle{}, s.fail("get hearing", hearingID, err)
	}
	return bundle, nil
}

// LoadBundle reads statements, evidence and verdict of h concurrently.
func LoadBundle(ctx context.Context, store storage.Storage, h models.Hearing) (Bundle, error) {
	bundle := Bundle{Hearing: h}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		statements, err := store.ListStatements(gctx, h.ID)
		bundle.Statements = statements
		return err
	})
	g.Go(func() error {
		evidence, err := store.ListEvidence(gctx, h.ID)
		bundle.Evidence = evidence
		return err
	})
	g.Go(func() error {
		v, err := store.GetVerdict(gctx, h.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		bundle.Verdict = v
		return err
	})
	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}
	if bundle.Statements == nil {
		bundle.Statements = []models.Statement{}
	}
	if bundle.Evidence == nil {
		bundle.Evidence = []models.Evidence{}
	}
	return bundle, nil
}

// ListHearings returns the hearings of a case ordered by round.
func (s *Service) ListHearings(ctx context.Context, caseID, actingUserID string) ([]models.Hearing, error) {
	if err := s.authorize(ctx, caseID, actingUserID); err != nil {
		return nil, s.fail("list hearings", caseID, err)
	}
	hearings, err := s.store.ListHearings(ctx, caseID)
	if err != nil {
		return nil, s.fail("list hearings", caseID, err)
	}
	if hearings == nil {
		hearings = []models.Hearing{}
	}
	return hearings, nil
}

func (s *Service) authorize(ctx context.Context, caseID, actingUserID string) error {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return err
	}
	if !c.HasParticipant(actingUserID) {
		return apperr.ErrForbidden
	}
	return nil
}

func (s *Service) fail(op, id string, err error) error {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrForbidden) {
		s.logger.Error(op+" failed", "id", id, "error", err)
	}
	return fmt.Errorf("hearing: %s %s: %w", op, id, err)
}

func (s *Service) publish(ctx context.Context, c models.Case, hearingID, eventType string) {
	evt := models.CaseEvent{
		CaseID:    c.ID,
		Type:      eventType,
		HearingID: hearingID,
		Status:    c.Status,
		At:        s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish case event failed", "case_id", c.ID, "type", eventType, "error", err)
	}
}
