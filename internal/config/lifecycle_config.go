package config

import "time"

const (
	// Invitation
	InvitationTTL = 24 * time.Hour

	// Adjudication
	DefaultAdjudicatorTimeout = 60 * time.Second
	FallbackConfidence        = 0.3
	JudgeLockTTL              = 2 * time.Minute
	JudgeLockMargin           = 30 * time.Second

	// Verdict bounds
	MaxPartyPct   = 100.0
	MinPartyPct   = 0.0
	MaxConfidence = 1.0
	MinConfidence = 0.0
)
