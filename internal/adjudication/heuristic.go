package adjudication

import (
	"arbiter/backend/internal/analysis"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/localization"
	"arbiter/backend/internal/models"
	"context"
	"encoding/json"
)

// HeuristicName is reported by HeuristicAdjudicator.Name and recorded in
// its payloads.
const HeuristicName = "heuristic"

// HeuristicAdjudicator produces a provisional verdict without any external
// call. The split follows narrative length, confidence is fixed low, and
// the texts come from the localizer in the case language. Same input, same
// output.
type HeuristicAdjudicator struct {
	loc *localization.Localizer
}

func NewHeuristicAdjudicator(loc *localization.Localizer) *HeuristicAdjudicator {
	if loc == nil {
		loc = localization.Bundled()
	}
	return &HeuristicAdjudicator{loc: loc}
}

func (h *HeuristicAdjudicator) Name() string { return HeuristicName }

type heuristicPayload struct {
	Agent     string           `json:"agent"`
	Score     models.Score     `json:"score"`
	Summary   string           `json:"summary"`
	Reasoning models.Reasoning `json:"reasoning"`
	Advice    models.Advice    `json:"advice"`
}

func (h *HeuristicAdjudicator) Judge(ctx context.Context, sub Submission) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := sub.Language
	if lang == "" {
		lang = localization.DefaultLanguage
	}

	stA, hasA := sub.Statement(models.SideA)
	stB, hasB := sub.Statement(models.SideB)
	pctA, pctB := analysis.NarrativeShare(stA.Narrative, stB.Narrative)

	missing := []string{}
	if !hasA {
		missing = append(missing, h.loc.Format(lang, "verdict.missing.statement", models.SideA))
	}
	if !hasB {
		missing = append(missing, h.loc.Format(lang, "verdict.missing.statement", models.SideB))
	}
	missing = append(missing, h.loc.GetString(lang, "verdict.missing.review"))

	payload := heuristicPayload{
		Agent: HeuristicName,
		Score: models.Score{
			PartyAPct:  pctA,
			PartyBPct:  pctB,
			Confidence: config.FallbackConfidence,
		},
		Summary: h.loc.Format(lang, "verdict.summary", pctA, pctB),
		Reasoning: models.Reasoning{
			Facts: h.loc.GetString(lang, "verdict.facts"),
			FairnessChecks: []string{
				h.loc.GetString(lang, "verdict.fairness.length"),
				h.loc.GetString(lang, "verdict.fairness.symmetry"),
			},
			EmotionConsiderations: h.loc.GetString(lang, "verdict.emotions"),
			Assumptions:           []string{h.loc.GetString(lang, "verdict.assumption.good_faith")},
			MissingInfo:           missing,
		},
		Advice: models.Advice{
			Together: []string{
				h.loc.GetString(lang, "verdict.advice.together"),
				h.loc.GetString(lang, "verdict.advice.together.pause"),
			},
			ForA: []string{h.loc.GetString(lang, "verdict.advice.for_side")},
			ForB: []string{h.loc.GetString(lang, "verdict.advice.for_side")},
		},
	}

	return json.Marshal(payload)
}
