// Package lifecycle owns case creation and the invitation handshake:
// accept, reject and lazy expiry of pending invitations.
package lifecycle

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/models"
	"arbiter/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	store     storage.Storage
	publisher storage.Publisher
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	ttl       time.Duration
}

type Option func(*Service)

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func WithPublisher(p storage.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store storage.Storage, opts ...Option) *Service {
	s := &Service{
		store:     store,
		publisher: storage.NopPublisher{},
		logger:    logging.New("lifecycle"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		ttl:       config.InvitationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCaseParams is the input of CreateCase.
type CreateCaseParams struct {
	OwnerID             string
	Topic               string
	RelationshipContext string
	Parties             []models.Party
	InvitedUserID       *string
	Language            string
}

// CreateCase opens a case. With an invitee the case waits for acceptance;
// without one it is a draft the owner can submit to directly.
func (s *Service) CreateCase(ctx context.Context, p CreateCaseParams) (models.Case, error) {
	if strings.TrimSpace(p.OwnerID) == "" {
		return models.Case{}, apperr.Invalid("owner_id", "is required")
	}
	topic := strings.TrimSpace(p.Topic)
	if topic == "" {
		return models.Case{}, apperr.Invalid("topic", "must not be empty")
	}
	parties, err := normalizeParties(p.Parties)
	if err != nil {
		return models.Case{}, err
	}

	now := s.now().UTC()
	c := models.Case{
		ID:                  s.newID(),
		Topic:               topic,
		RelationshipContext: strings.TrimSpace(p.RelationshipContext),
		Parties:             parties,
		OwnerID:             p.OwnerID,
		Participants:        []string{p.OwnerID},
		Language:            p.Language,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if c.Language == "" {
		c.Language = "en"
	}

	if p.InvitedUserID != nil && strings.TrimSpace(*p.InvitedUserID) != "" {
		invitee := strings.TrimSpace(*p.InvitedUserID)
		if invitee == p.OwnerID {
			return models.Case{}, apperr.Invalid("invited_user_id", "cannot invite yourself")
		}
		expires := now.Add(s.ttl)
		c.InvitedUserID = &invitee
		c.InviteExpiresAt = &expires
		c.Status = models.CaseStatusPendingAcceptance
		c.Acceptance = models.AcceptancePending
	} else {
		c.Status = models.CaseStatusDraft
		c.Acceptance = models.AcceptanceAccepted
	}

	if err := s.store.CreateCase(ctx, &c); err != nil {
		s.logger.Error("create case failed", "error", err)
		return models.Case{}, fmt.Errorf("lifecycle: create case: %w", err)
	}

	s.logger.Info("case created", "case_id", c.ID, "status", c.Status)
	s.publish(ctx, c, models.EventCaseCreated)
	return c, nil
}

func normalizeParties(parties []models.Party) ([]models.Party, error) {
	if len(parties) == 0 {
		return []models.Party{{Side: models.SideA}, {Side: models.SideB}}, nil
	}
	if len(parties) != 2 {
		return nil, apperr.Invalid("parties", "exactly two parties are required, got %d", len(parties))
	}
	var out [2]models.Party
	seen := map[models.Side]bool{}
	for _, p := range parties {
		if !p.Side.Valid() {
			return nil, apperr.Invalid("parties", "side must be A or B, got %q", p.Side)
		}
		if seen[p.Side] {
			return nil, apperr.Invalid("parties", "duplicate side %s", p.Side)
		}
		seen[p.Side] = true
		p.Name = strings.TrimSpace(p.Name)
		p.BaselineState = strings.TrimSpace(p.BaselineState)
		if p.Side == models.SideA {
			out[0] = p
		} else {
			out[1] = p
		}
	}
	return out[:], nil
}

// ExpiryTransition returns c moved to expired when its invitation is still
// pending and its deadline lies strictly before now. The second result reports
// whether anything changed. It has no side effects.
func ExpiryTransition(c models.Case, now time.Time) (models.Case, bool) {
	if c.Acceptance != models.AcceptancePending || c.InviteExpiresAt == nil {
		return c, false
	}
	if !now.After(*c.InviteExpiresAt) {
		return c, false
	}
	c.Acceptance = models.AcceptanceExpired
	c.Status = models.CaseStatusExpired
	c.UpdatedAt = now
	return c, true
}

// ExpireIfDue applies ExpiryTransition to c and persists it through tx.
// Callers must hold the case lock. c is updated in place.
func ExpireIfDue(ctx context.Context, tx storage.Storage, c *models.Case, now time.Time) (bool, error) {
	next, changed := ExpiryTransition(*c, now)
	if !changed {
		return false, nil
	}
	if err := tx.UpdateCase(ctx, &next); err != nil {
		return false, fmt.Errorf("lifecycle: expire case %s: %w", c.ID, err)
	}
	*c = next
	return true, nil
}

// AcceptCase lets the invitee join the case. An elapsed invitation is
// expired and committed before ErrExpired is returned, so repeated calls
// keep failing the same way.
func (s *Service) AcceptCase(ctx context.Context, caseID, actingUserID string) (models.Case, error) {
	var (
		result   models.Case
		outcome  error
		expired  bool
		accepted bool
	)

	err := s.store.InCaseTx(ctx, caseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if expired, err = ExpireIfDue(ctx, tx, c, now); err != nil {
			return err
		}
		result = *c

		switch {
		case c.Acceptance == models.AcceptanceExpired:
			outcome = apperr.ErrExpired
			return nil
		case !c.IsInvitee(actingUserID):
			outcome = apperr.ErrForbidden
			return nil
		case c.Acceptance == models.AcceptanceRejected:
			outcome = apperr.ErrAlreadyRejected
			return nil
		case c.Acceptance == models.AcceptanceAccepted:
			return nil
		}

		c.Acceptance = models.AcceptanceAccepted
		c.Status = models.CaseStatusDraft
		if !c.HasParticipant(actingUserID) {
			c.Participants = append(c.Participants, actingUserID)
		}
		c.UpdatedAt = now
		if err := tx.UpdateCase(ctx, c); err != nil {
			return fmt.Errorf("lifecycle: accept case %s: %w", caseID, err)
		}
		result = *c
		accepted = true
		return nil
	})
	if err != nil {
		return models.Case{}, s.storageErr("accept case", caseID, err)
	}

	if expired {
		s.logger.Info("invitation expired", "case_id", caseID)
		s.publish(ctx, result, models.EventCaseExpired)
	}
	if outcome != nil {
		return models.Case{}, fmt.Errorf("lifecycle: accept case %s: %w", caseID, outcome)
	}
	if accepted {
		s.logger.Info("case accepted", "case_id", caseID, "user_id", actingUserID)
		s.publish(ctx, result, models.EventCaseAccepted)
	}
	return result, nil
}

// RejectCase declines the invitation and closes the case. Rejecting an
// already rejected case is a no-op; rejecting an accepted one is refused.
func (s *Service) RejectCase(ctx context.Context, caseID, actingUserID string) (models.Case, error) {
	var (
		result   models.Case
		outcome  error
		expired  bool
		rejected bool
	)

	err := s.store.InCaseTx(ctx, caseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if expired, err = ExpireIfDue(ctx, tx, c, now); err != nil {
			return err
		}
		result = *c

		switch {
		case c.Acceptance == models.AcceptanceExpired:
			outcome = apperr.ErrExpired
			return nil
		case !c.IsInvitee(actingUserID):
			outcome = apperr.ErrForbidden
			return nil
		case c.Acceptance == models.AcceptanceRejected:
			return nil
		case c.Acceptance == models.AcceptanceAccepted:
			outcome = apperr.ErrAlreadyAccepted
			return nil
		}

		c.Acceptance = models.AcceptanceRejected
		c.Status = models.CaseStatusClosed
		c.UpdatedAt = now
		if err := tx.UpdateCase(ctx, c); err != nil {
			return fmt.Errorf("lifecycle: reject case %s: %w", caseID, err)
		}
		result = *c
		rejected = true
		return nil
	})
	if err != nil {
		return models.Case{}, s.storageErr("reject case", caseID, err)
	}

	if expired {
		s.logger.Info("invitation expired", "case_id", caseID)
		s.publish(ctx, result, models.EventCaseExpired)
	}
	if outcome != nil {
		return models.Case{}, fmt.Errorf("lifecycle: reject case %s: %w", caseID, outcome)
	}
	if rejected {
		s.logger.Info("case rejected", "case_id", caseID, "user_id", actingUserID)
		s.publish(ctx, result, models.EventCaseRejected)
	}
	return result, nil
}

// GetCase returns the case to a participant or the invitee, expiring a
// lapsed invitation first.
func (s *Service) GetCase(ctx context.Context, caseID, actingUserID string) (models.Case, error) {
	var (
		result    models.Case
		forbidden bool
		expired   bool
	)

	err := s.store.InCaseTx(ctx, caseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if !c.CanView(actingUserID) {
			forbidden = true
			return nil
		}
		if expired, err = ExpireIfDue(ctx, tx, c, s.now().UTC()); err != nil {
			return err
		}
		result = *c
		return nil
	})
	if err != nil {
		return models.Case{}, s.storageErr("get case", caseID, err)
	}
	if forbidden {
		return models.Case{}, fmt.Errorf("lifecycle: get case %s: %w", caseID, apperr.ErrForbidden)
	}
	if expired {
		s.publish(ctx, result, models.EventCaseExpired)
	}
	return result, nil
}

// ListCases returns every case the user participates in or is invited to,
// newest first, with lapsed invitations expired.
func (s *Service) ListCases(ctx context.Context, userID string) ([]models.Case, error) {
	if userID == "" {
		return nil, fmt.Errorf("lifecycle: list cases: %w", apperr.ErrUnauthorized)
	}
	cases, err := s.store.ListCasesForUser(ctx, userID)
	if err != nil {
		return nil, s.storageErr("list cases", userID, err)
	}

	now := s.now().UTC()
	for i := range cases {
		if _, due := ExpiryTransition(cases[i], now); !due {
			continue
		}
		swept, err := s.sweepOne(ctx, cases[i].ID)
		if err != nil {
			return nil, err
		}
		cases[i] = swept
	}
	return cases, nil
}

// SweepExpired expires every pending invitation whose deadline passed and
// returns how many cases changed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingCases(ctx)
	if err != nil {
		return 0, s.storageErr("sweep", "", err)
	}

	now := s.now().UTC()
	count := 0
	for _, c := range pending {
		if _, due := ExpiryTransition(c, now); !due {
			continue
		}
		swept, err := s.sweepOne(ctx, c.ID)
		if err != nil {
			return count, err
		}
		if swept.Acceptance == models.AcceptanceExpired {
			count++
		}
	}
	s.logger.Info("sweep finished", "expired", count, "pending", len(pending))
	return count, nil
}

// sweepOne re-reads the case under its lock before expiring it, since the
// invitation may have been answered in the meantime.
func (s *Service) sweepOne(ctx context.Context, caseID string) (models.Case, error) {
	var (
		result  models.Case
		expired bool
	)
	err := s.store.InCaseTx(ctx, caseID, func(tx storage.Storage) error {
		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if expired, err = ExpireIfDue(ctx, tx, c, s.now().UTC()); err != nil {
			return err
		}
		result = *c
		return nil
	})
	if err != nil {
		return models.Case{}, s.storageErr("expire case", caseID, err)
	}
	if expired {
		s.logger.Info("invitation expired", "case_id", caseID)
		s.publish(ctx, result, models.EventCaseExpired)
	}
	return result, nil
}

func (s *Service) storageErr(op, id string, err error) error {
	if !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error(op+" failed", "id", id, "error", err)
	}
	return fmt.Errorf("lifecycle: %s: %w", op, err)
}

func (s *Service) publish(ctx context.Context, c models.Case, eventType string) {
	evt := models.CaseEvent{
		CaseID: c.ID,
		Type:   eventType,
		Status: c.Status,
		At:     s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish case event failed", "case_id", c.ID, "type", eventType, "error", err)
	}
}
