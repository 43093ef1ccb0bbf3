package models

import (
	"encoding/json"
	"time"
)

// Score is the percentage allocation between the parties.
// PartyAPct and PartyBPct lie in [0,100]; Confidence lies in [0,1].
type Score struct {
	PartyAPct  float64 `json:"partyA_pct"`
	PartyBPct  float64 `json:"partyB_pct"`
	Confidence float64 `json:"confidence"`
}

// Reasoning explains how the adjudicator reached the score.
type Reasoning struct {
	Facts                 string   `json:"facts"`
	FairnessChecks        []string `json:"fairness_checks"`
	EmotionConsiderations string   `json:"emotion_considerations"`
	Assumptions           []string `json:"assumptions"`
	MissingInfo           []string `json:"missing_info"`
}

// Advice holds suggestions for both parties together and for each side.
type Advice struct {
	Together []string `json:"together"`
	ForA     []string `json:"forA"`
	ForB     []string `json:"forB"`
}

// Verdict is the adjudication result of a hearing, at most one per hearing.
// Recording a new verdict for the same hearing replaces the old one.
type Verdict struct {
	HearingID string    `gorm:"primaryKey;type:text" json:"hearing_id"`
	Score     Score     `gorm:"embedded;embeddedPrefix:score_" json:"score"`
	Summary   string    `gorm:"type:text" json:"summary"`
	Reasoning Reasoning `gorm:"serializer:json" json:"reasoning"`
	Advice    Advice    `gorm:"serializer:json" json:"advice"`
	// RawAgentPayload keeps the adjudicator response verbatim for audit.
	RawAgentPayload json.RawMessage `gorm:"type:jsonb" json:"raw_agent_payload"`
	CreatedAt       time.Time       `json:"created_at"`
}
