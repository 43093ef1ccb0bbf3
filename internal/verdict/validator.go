package verdict

import (
	"arbiter/backend/internal/apperr"
	"arbiter/backend/internal/config"
	"arbiter/backend/internal/models"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize turns a raw adjudicator response into a well-formed Verdict.
//
// It only fails when raw is not a JSON object. Party percentages are
// clamped to [0,100] each on their own, so a verdict may not sum to 100.
// Confidence is clamped to [0,1]. Numbers sent as strings are accepted.
// Missing texts become "" and missing lists become empty. raw is kept
// verbatim as the audit payload.
func Normalize(hearingID string, raw json.RawMessage, now time.Time) (models.Verdict, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("verdict: normalize %s: %w: %w", hearingID, apperr.ErrAdjudicationMalformed, err)
	}

	score, _ := decodeObject(obj["score"])
	reasoning, _ := decodeObject(obj["reasoning"])
	advice, _ := decodeObject(obj["advice"])

	v := models.Verdict{
		HearingID: hearingID,
		Score: ClampScore(models.Score{
			PartyAPct:  toFloat(score["partyA_pct"]),
			PartyBPct:  toFloat(score["partyB_pct"]),
			Confidence: toFloat(score["confidence"]),
		}),
		Summary: toText(obj["summary"]),
		Reasoning: models.Reasoning{
			Facts:                 toText(reasoning["facts"]),
			FairnessChecks:        toList(reasoning["fairness_checks"]),
			EmotionConsiderations: toText(reasoning["emotion_considerations"]),
			Assumptions:           toList(reasoning["assumptions"]),
			MissingInfo:           toList(reasoning["missing_info"]),
		},
		Advice: models.Advice{
			Together: toList(advice["together"]),
			ForA:     toList(advice["forA"]),
			ForB:     toList(advice["forB"]),
		},
		RawAgentPayload: append(json.RawMessage(nil), raw...),
		CreatedAt:       now,
	}
	return v, nil
}

// ClampScore bounds every field of s without renormalizing the split.
func ClampScore(s models.Score) models.Score {
	return models.Score{
		PartyAPct:  clamp(s.PartyAPct, config.MinPartyPct, config.MaxPartyPct),
		PartyBPct:  clamp(s.PartyBPct, config.MinPartyPct, config.MaxPartyPct),
		Confidence: clamp(s.Confidence, config.MinConfidence, config.MaxConfidence),
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// toFloat reads a number or numeric string. Values beyond the float64
// range become ±Inf so clamping sends them to the nearer bound.
func toFloat(raw json.RawMessage) float64 {
	var text string
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		text = n.String()
	} else if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%"))
	} else {
		return 0
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return f
}

// toText reads a string field. Other JSON values are kept as their
// compact JSON text; null and missing become "".
func toText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return ""
	}
	return buf.String()
}

// toList reads a list of strings. Entries that are not strings are
// stringified and a lone string becomes a one-element list.
func toList(raw json.RawMessage) []string {
	out := []string{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		if s := toText(trimmed); s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range items {
		if s := toText(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
