// Package verdict judges hearings through an Adjudicator, normalizes what
// comes back and records the result.
package verdict

import (
	"arbiter/backend/internal/adjudication"
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

type Service struct {
	store       storage.Storage
	adjudicator adjudication.Adjudicator
	locker      storage.Locker
	publisher   storage.Publisher
	logger      *slog.Logger
	now         func() time.Time
	timeout     time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker sets the lock used to keep one judge call per hearing.
func WithLocker(l storage.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithPublisher(p storage.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithTimeout bounds each adjudicator call.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store storage.Storage, adj adjudication.Adjudicator, opts ...Option) *Service {
	s := &Service{
		store:       store,
		adjudicator: adj,
		locker:      storage.NewMemoryLocker(),
		publisher:   storage.NopPublisher{},
		logger:      logging.New("verdict"),
		now:         time.Now,
		timeout:     config.DefaultAdjudicatorTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lockTTL outlives the adjudicator timeout so the lock cannot lapse while
// a call is still running.
func (s *Service) lockTTL() time.Duration {
	if ttl := s.timeout + config.JudgeLockMargin; ttl > config.JudgeLockTTL {
		return ttl
	}
	return config.JudgeLockTTL
}

// Judge asks the adjudicator for a verdict on a hearing and records it.
// Judging an already judged hearing replaces its verdict. When the
// adjudicator fails the hearing stays submitted and the call can be
// repeated.
func (s *Service) Judge(ctx context.Context, hearingID, actingUserID string) (models.Verdict, error) {
	h, c, err := s.load(ctx, hearingID, actingUserID)
	if err != nil {
		return models.Verdict{}, s.fail("judge", hearingID, err)
	}

	release, ok, err := s.locker.TryLock(ctx, "judge:"+h.ID, s.lockTTL())
	if err != nil {
		return models.Verdict{}, s.fail("judge", hearingID, err)
	}
	if !ok {
		return models.Verdict{}, fmt.Errorf("verdict: judge %s: %w", hearingID, apperr.ErrJudgeInProgress)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release judge lock failed", "hearing_id", hearingID, "error", err)
		}
	}()

	bundle, err := hearing.LoadBundle(ctx, s.store, *h)
	if err != nil {
		return models.Verdict{}, s.fail("judge", hearingID, err)
	}

	raw, err := s.adjudicate(ctx, adjudication.NewSubmission(*c, *h, bundle.Statements, bundle.Evidence))
	if err != nil {
		s.logger.Warn("adjudication failed", "hearing_id", hearingID, "adjudicator", s.adjudicator.Name(), "error", err)
		return models.Verdict{}, fmt.Errorf("verdict: judge %s: %w", hearingID, err)
	}

	v, err := Normalize(h.ID, raw, s.now().UTC())
	if err != nil {
		s.logger.Warn("adjudication response needs review", "hearing_id", hearingID, "adjudicator", s.adjudicator.Name(), "error", err)
		return models.Verdict{}, err
	}
	return s.RecordVerdict(ctx, v)
}

func (s *Service) adjudicate(ctx context.Context, sub adjudication.Submission) (json.RawMessage, error) {
	jctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	raw, err := s.adjudicator.Judge(jctx, sub)
	if err != nil {
		if errors.Is(err, apperr.ErrAdjudicationUnavailable) || errors.Is(err, apperr.ErrAdjudicationMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperr.ErrAdjudicationUnavailable, err)
	}
	s.logger.Info("hearing adjudicated", "hearing_id", sub.HearingID, "adjudicator", s.adjudicator.Name(), "took", s.now().Sub(start))
	return raw, nil
}

// RecordVerdict stores v as the verdict of its hearing, replacing any
// earlier one, marks the hearing judged and the case decided.
func (s *Service) RecordVerdict(ctx context.Context, v models.Verdict) (models.Verdict, error) {
	if v.HearingID == "" {
		return models.Verdict{}, apperr.Invalid("hearing_id", "is required")
	}
	h, err := s.store.GetHearing(ctx, v.HearingID)
	if err != nil {
		return models.Verdict{}, s.fail("record", v.HearingID, err)
	}

	now := s.now().UTC()
	v.Score = ClampScore(v.Score)
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}

	var caseState models.Case
	err = s.store.InCaseTx(ctx, h.CaseID, func(tx storage.Storage) error {
		if err := tx.UpsertVerdict(ctx, &v); err != nil {
			return err
		}
		if err := tx.UpdateHearingStatus(ctx, h.ID, models.HearingStatusJudged); err != nil {
			return err
		}
		c, err := tx.GetCase(ctx, h.CaseID)
		if err != nil {
			return err
		}
		c.Status = models.CaseStatusDecided
		c.UpdatedAt = now
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		caseState = *c
		return nil
	})
	if err != nil {
		return models.Verdict{}, s.fail("record", v.HearingID, err)
	}

	s.logger.Info("verdict recorded", "case_id", caseState.ID, "hearing_id", v.HearingID,
		"party_a_pct", v.Score.PartyAPct, "party_b_pct", v.Score.PartyBPct, "confidence", v.Score.Confidence)
	evt := models.CaseEvent{
		CaseID:    caseState.ID,
		Type:      models.EventVerdictRecorded,
		HearingID: v.HearingID,
		Status:    caseState.Status,
		At:        now,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish case event failed", "case_id", caseState.ID, "type", evt.Type, "error", err)
	}
	return v, nil
}

// GetVerdict returns the verdict of a hearing to one of its participants.
func (s *Service) GetVerdict(ctx context.Context, hearingID, actingUserID string) (models.Verdict, error) {
	if _, _, err := s.load(ctx, hearingID, actingUserID); err != nil {
		return models.Verdict{}, s.fail("get", hearingID, err)
	}
	v, err := s.store.GetVerdict(ctx, hearingID)
	if err != nil {
		return models.Verdict{}, s.fail("get", hearingID, err)
	}
	return *v, nil
}

func (s *Service) load(ctx context.Context, hearingID, actingUserID string) (*models.Hearing, *models.Case, error) {
	h, err := s.store.GetHearing(ctx, hearingID)
	if err != nil {
		return nil, nil, err
	}
	c, err := s.store.GetCase(ctx, h.CaseID)
	if err != nil {
		return nil, nil, err
	}
	if !c.HasParticipant(actingUserID) {
		return nil, nil, apperr.ErrForbidden
	}
	return h, c, nil
}

func (s *Service) fail(op, id string, err error) error {
	if !errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrForbidden) {
		s.logger.Error(op+" verdict failed", "hearing_id", id, "error", err)
	}
	return fmt.Errorf("verdict: %s %s: %w", op, id, err)
}
