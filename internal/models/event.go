package models

import "time"

// Case event types published to live subscribers.
const (
	EventCaseCreated      = "case.created"
	EventCaseAccepted     = "case.accepted"
	EventCaseRejected     = "case.rejected"
	EventCaseExpired      = "case.expired"
	EventHearingSubmitted = "hearing.submitted"
	EventHearingUpdated   = "hearing.updated"
	EventHearingAppealed  = "hearing.appealed"
	EventVerdictRecorded  = "verdict.recorded"
)

// CaseEvent notifies subscribers of a case about a state change.
type CaseEvent struct {
	CaseID    string     `json:"case_id"`
	Type      string     `json:"type"`
	HearingID string     `json:"hearing_id,omitempty"`
	Status    CaseStatus `json:"status"`
	At        time.Time  `json:"at"`
}
