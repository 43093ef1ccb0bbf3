// Package appeal reopens a decided case by adding a new hearing round.
//
// Rounds follow a single timeline per case: the new round is always the
// case's highest round plus one, whichever hearing was appealed. The
// appealed hearing is recorded on the new one as AppealOf.
package appeal

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/hearing"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Controller struct {
	store     storage.Storage
	publisher storage.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

func WithPublisher(p storage.Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func NewController(store storage.Storage, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		publisher: storage.NopPublisher{},
		logger:    logging.New("appeal"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Params is the input of Appeal. Statements and Evidence are optional;
// nothing is carried over from the appealed round.
type Params struct {
	CaseID       string
	HearingID    string
	ActingUserID string
	Statements   []hearing.StatementInput
	Evidence     []hearing.EvidenceInput
}

// Appeal creates the next round of a case and marks the case appealed.
// Earlier hearings and their verdicts are left untouched.
func (a *Controller) Appeal(ctx context.Context, p Params) (models.Hearing, error) {
	statements, evidence, err := hearing.ValidateSubmissions(p.Statements, p.Evidence, false)
	if err != nil {
		return models.Hearing{}, err
	}
	if p.HearingID == "" {
		return models.Hearing{}, apperr.Invalid("hearing_id", "is required")
	}

	var (
		created   models.Hearing
		caseState models.Case
		outcome   error
	)
	err = a.store.InCaseTx(ctx, p.CaseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, p.CaseID)
		if err != nil {
			return err
		}
		if !c.HasParticipant(p.ActingUserID) {
			outcome = apperr.ErrForbidden
			return nil
		}

		appealed, err := tx.GetHearing(ctx, p.HearingID)
		if err != nil {
			return err
		}
		if appealed.CaseID != c.ID {
			return fmt.Errorf("hearing %s is not part of case %s: %w", p.HearingID, c.ID, apperr.ErrNotFound)
		}

		maxRound, err := tx.MaxRound(ctx, c.ID)
		if err != nil {
			return err
		}

		now := a.now().UTC()
		appealOf := appealed.ID
		created = models.Hearing{
			ID:        a.newID(),
			CaseID:    c.ID,
			Round:     maxRound + 1,
			Status:    models.HearingStatusSubmitted,
			AppealOf:  &appealOf,
			CreatedAt: now,
		}
		if err := tx.CreateHearing(ctx, &created); err != nil {
			return err
		}

		if len(statements) > 0 {
			for i := range statements {
				statements[i].ID = a.newID()
				statements[i].CreatedAt = now
			}
			if err := tx.ReplaceStatements(ctx, created.ID, statements); err != nil {
				return err
			}
		}
		if len(evidence) > 0 {
			for i := range evidence {
				evidence[i].ID = a.newID()
				evidence[i].CreatedAt = now
			}
			if err := tx.ReplaceEvidence(ctx, created.ID, evidence); err != nil {
				return err
			}
		}

		c.Status = models.CaseStatusAppealed
		c.UpdatedAt = now
		if err := tx.UpdateCase(ctx, c); err != nil {
			return err
		}
		caseState = *c
		return nil
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			a.logger.Error("appeal failed", "case_id", p.CaseID, "hearing_id", p.HearingID, "error", err)
		}
		return models.Hearing{}, fmt.Errorf("appeal: case %s: %w", p.CaseID, err)
	}
	if outcome != nil {
		return models.Hearing{}, fmt.Errorf("appeal: case %s: %w", p.CaseID, outcome)
	}

	a.logger.Info("appeal opened", "case_id", created.CaseID, "appeal_of", p.HearingID, "round", created.Round)
	evt := models.CaseEvent{
		CaseID:    caseState.ID,
		Type:      models.EventHearingAppealed,
		HearingID: created.ID,
		Status:    caseState.Status,
		At:        a.now().UTC(),
	}
	if err := a.publisher.Publish(ctx, evt); err != nil {
		a.logger.Warn("publish case event failed", "case_id", caseState.ID, "error", err)
	}
	return created, nil
}
