package hearing

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/models"
	"fmt"
	"strings"
)

// StatementInput is one party's account as received from a caller.
type StatementInput struct {
	Side      models.Side `json:"side"`
	Narrative string      `json:"narrative"`
	Feelings  string      `json:"feelings,omitempty"`
	Context   string      `json:"context,omitempty"`
	Requests  []string    `json:"requests,omitempty"`
}

// EvidenceInput is a supporting artifact as received from a caller.
type EvidenceInput struct {
	Side    models.Side         `json:"side"`
	Type    models.EvidenceType `json:"type,omitempty"`
	Title   string              `json:"title,omitempty"`
	Content string              `json:"content"`
	Notes   string              `json:"notes,omitempty"`
}

// ValidateSubmissions checks statements and evidence and returns the
// normalized records ready to store. With requireStatements set, at least
// one statement must be present.
func ValidateSubmissions(statements []StatementInput, evidence []EvidenceInput, requireStatements bool) ([]models.Statement, []models.Evidence, error) {
	if requireStatements && len(statements) == 0 {
		return nil, nil, apperr.Invalid("statements", "at least one statement is required")
	}
	if len(statements) > 2 {
		return nil, nil, apperr.Invalid("statements", "at most one statement per side, got %d", len(statements))
	}

	outStatements := make([]models.Statement, 0, len(statements))
	seen := map[models.Side]bool{}
	for i, st := range statements {
		field := fmt.Sprintf("statements[%d]", i)
		if !st.Side.Valid() {
			return nil, nil, apperr.Invalid(field+".side", "must be A or B, got %q", st.Side)
		}
		if seen[st.Side] {
			return nil, nil, apperr.Invalid(field+".side", "duplicate statement for side %s", st.Side)
		}
		seen[st.Side] = true

		narrative := strings.TrimSpace(st.Narrative)
		if narrative == "" {
			return nil, nil, apperr.Invalid(field+".narrative", "must not be empty")
		}

		requests := make([]string, 0, len(st.Requests))
		for _, r := range st.Requests {
			if r = strings.TrimSpace(r); r != "" {
				requests = append(requests, r)
			}
		}

		outStatements = append(outStatements, models.Statement{
			Side:      st.Side,
			Narrative: narrative,
			Feelings:  strings.TrimSpace(st.Feelings),
			Context:   strings.TrimSpace(st.Context),
			Requests:  requests,
		})
	}

	outEvidence := make([]models.Evidence, 0, len(evidence))
	for i, ev := range evidence {
		field := fmt.Sprintf("evidence[%d]", i)
		if !ev.Side.Valid() {
			return nil, nil, apperr.Invalid(field+".side", "must be A or B, got %q", ev.Side)
		}
		content := strings.TrimSpace(ev.Content)
		if content == "" {
			return nil, nil, apperr.Invalid(field+".content", "must not be empty")
		}
		typ := ev.Type
		if typ == "" {
			typ = models.EvidenceText
		}
		if !typ.Valid() {
			return nil, nil, apperr.Invalid(field+".type", "must be one of text, link, image, other, got %q", ev.Type)
		}

		outEvidence = append(outEvidence, models.Evidence{
			Side:    ev.Side,
			Type:    typ,
			Title:   strings.TrimSpace(ev.Title),
			Content: content,
			Notes:   strings.TrimSpace(ev.Notes),
		})
	}

	return outStatements, outEvidence, nil
}
