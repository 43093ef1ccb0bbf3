package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// HearingStatus is either submitted or judged.
type HearingStatus string

const (
	HearingStatusSubmitted HearingStatus = "submitted"
	HearingStatusJudged    HearingStatus = "judged"
)

// Hearing is one adjudication round of a case.
// It is immutable after creation except for the submitted -> judged transition.
type Hearing struct {
	ID     string        `gorm:"primaryKey;type:text" json:"id"`
	CaseID string        `gorm:"type:text;not null;index:idx_case_round" json:"case_id"`
	Round  int           `gorm:"not null;index:idx_case_round" json:"round"`
	Status HearingStatus `gorm:"type:text;not null" json:"status"`
	// AppealOf is the hearing this round was opened against, set by appeals.
	AppealOf  *string   `gorm:"type:text" json:"appeal_of,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Hearing) BeforeCreate(tx *gorm.DB) (err error) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return
}

// Statement is one party's submission for a hearing. The set of statements
// of a hearing is replaced wholesale on resubmission.
type Statement struct {
	ID        string         `gorm:"primaryKey;type:text" json:"id"`
	HearingID string         `gorm:"type:text;not null;index" json:"hearing_id"`
	Side      Side           `gorm:"type:text;not null" json:"side"`
	Narrative string         `gorm:"type:text;not null" json:"narrative"`
	Feelings  string         `gorm:"type:text" json:"feelings,omitempty"`
	Context   string         `gorm:"type:text" json:"context,omitempty"`
	Requests  pq.StringArray `gorm:"type:text[]" json:"requests"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *Statement) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// EvidenceType classifies a supporting artifact.
type EvidenceType string

const (
	EvidenceText  EvidenceType = "text"
	EvidenceLink  EvidenceType = "link"
	EvidenceImage EvidenceType = "image"
	EvidenceOther EvidenceType = "other"
)

// Valid reports whether t is one of the known evidence types.
func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceText, EvidenceLink, EvidenceImage, EvidenceOther:
		return true
	}
	return false
}

// Evidence is a supporting artifact attached to a hearing by one side.
type Evidence struct {
	ID        string       `gorm:"primaryKey;type:text" json:"id"`
	HearingID string       `gorm:"type:text;not null;index" json:"hearing_id"`
	Side      Side         `gorm:"type:text;not null" json:"side"`
	Type      EvidenceType `gorm:"type:text;not null" json:"type"`
	Title     string       `gorm:"type:text" json:"title,omitempty"`
	// Content holds the text itself or the URL of the artifact.
	Content   string    `gorm:"type:text;not null" json:"content"`
	Notes     string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e *Evidence) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return
}
