// Package storage persists cases, hearings, submissions and verdicts.
//
// Every read-modify-write on a case runs inside InCaseTx, which serializes
// work per case id: a row lock in Postgres, a mutex per case in memory.
package storage

import (
	"arbiter/backend/internal/models"
	"context"
)

type Storage interface {
	CreateCase(ctx context.Context, c *models.Case) error
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	UpdateCase(ctx context.Context, c *models.Case) error
	// ListCasesForUser returns cases where userID is a participant or the
	// invitee, newest first.
	ListCasesForUser(ctx context.Context, userID string) ([]models.Case, error)
	// ListPendingCases returns cases whose invitation is still pending.
	ListPendingCases(ctx context.Context) ([]models.Case, error)

	CreateHearing(ctx context.Context, h *models.Hearing) error
	GetHearing(ctx context.Context, hearingID string) (*models.Hearing, error)
	// ListHearings returns the hearings of a case ordered by round.
	ListHearings(ctx context.Context, caseID string) ([]models.Hearing, error)
	// MaxRound returns the highest round of a case, or 0 when it has none.
	MaxRound(ctx context.Context, caseID string) (int, error)
	UpdateHearingStatus(ctx context.Context, hearingID string, status models.HearingStatus) error

	// ReplaceStatements swaps the whole statement set of a hearing.
	ReplaceStatements(ctx context.Context, hearingID string, statements []models.Statement) error
	ListStatements(ctx context.Context, hearingID string) ([]models.Statement, error)
	// ReplaceEvidence swaps the whole evidence set of a hearing.
	ReplaceEvidence(ctx context.Context, hearingID string, evidence []models.Evidence) error
	ListEvidence(ctx context.Context, hearingID string) ([]models.Evidence, error)

	// UpsertVerdict stores v, replacing any verdict of the same hearing.
	UpsertVerdict(ctx context.Context, v *models.Verdict) error
	GetVerdict(ctx context.Context, hearingID string) (*models.Verdict, error)

	// InCaseTx runs fn with exclusive access to caseID. fn must use the
	// Storage it receives. Returns ErrNotFound when the case does not exist.
	// Not reentrant: fn must not open another InCaseTx on the same case.
	InCaseTx(ctx context.Context, caseID string, fn func(tx Storage) error) error
}
