// Package adjudication defines the boundary to whatever turns a hearing's
// statements and evidence into a scored verdict, and ships two variants:
// a deterministic heuristic and an HTTP client for an OpenAI-compatible
// chat-completions endpoint.
package adjudication

import (
	"arbiter/backend/internal/models"
	"context"
	"encoding/json"
)

// Adjudicator judges one hearing. Judge returns the raw JSON object the
// backend produced; interpreting it is the verdict validator's job.
//
// Errors wrap apperr.ErrAdjudicationUnavailable when the backend could not
// be reached and apperr.ErrAdjudicationMalformed when it answered without a
// JSON object.
type Adjudicator interface {
	Name() string
	Judge(ctx context.Context, sub Submission) (json.RawMessage, error)
}

// Submission is everything an adjudicator may look at for one hearing.
type Submission struct {
	CaseID              string
	HearingID           string
	Round               int
	Topic               string
	RelationshipContext string
	Parties             []models.Party
	Statements          []models.Statement
	Evidence            []models.Evidence
	Language            string
}

// NewSubmission assembles a Submission from stored records.
func NewSubmission(c models.Case, h models.Hearing, statements []models.Statement, evidence []models.Evidence) Submission {
	return Submission{
		CaseID:              c.ID,
		HearingID:           h.ID,
		Round:               h.Round,
		Topic:               c.Topic,
		RelationshipContext: c.RelationshipContext,
		Parties:             c.Parties,
		Statements:          statements,
		Evidence:            evidence,
		Language:            c.Language,
	}
}

// Statement returns the statement of side, if one was submitted.
func (s Submission) Statement(side models.Side) (models.Statement, bool) {
	for _, st := range s.Statements {
		if st.Side == side {
			return st, true
		}
	}
	return models.Statement{}, false
}

// Party returns the descriptor of side, falling back to a bare one.
func (s Submission) Party(side models.Side) models.Party {
	for _, p := range s.Parties {
		if p.Side == side {
			return p
		}
	}
	return models.Party{Side: side}
}

// EvidenceFor returns the evidence submitted by side.
func (s Submission) EvidenceFor(side models.Side) []models.Evidence {
	var out []models.Evidence
	for _, e := range s.Evidence {
		if e.Side == side {
			out = append(out, e)
		}
	}
	return out
}
