package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CaseStatus is the lifecycle position of a Case.
type CaseStatus string

const (
	CaseStatusPendingAcceptance CaseStatus = "pending_acceptance"
	CaseStatusDraft             CaseStatus = "draft"
	CaseStatusPendingJudgement  CaseStatus = "pending_judgement"
	CaseStatusDecided           CaseStatus = "decided"
	CaseStatusAppealed          CaseStatus = "appealed"
	CaseStatusExpired           CaseStatus = "expired"
	CaseStatusClosed            CaseStatus = "closed"
)

// AcceptanceState tracks the invitation handshake of a Case.
type AcceptanceState string

const (
	AcceptancePending  AcceptanceState = "pending"
	AcceptanceAccepted AcceptanceState = "accepted"
	AcceptanceRejected AcceptanceState = "rejected"
	AcceptanceExpired  AcceptanceState = "expired"
)

// Side identifies one of the two fixed parties of a dispute.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

// Valid reports whether s is A or B.
func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

// Party describes one side of the dispute.
type Party struct {
	Side Side `json:"side"`
	// Name is an optional display name for the side.
	Name string `json:"name,omitempty"`
	// BaselineState is the optional emotional or stress baseline the party
	// reported when the case was opened.
	BaselineState string `json:"baseline_state,omitempty"`
}

// Case is a dispute container spanning one or more hearings.
// Cases are never deleted; closure is modelled by status.
type Case struct {
	ID                  string          `gorm:"primaryKey;type:text" json:"id"`
	Topic               string          `gorm:"type:text;not null" json:"topic"`
	RelationshipContext string          `gorm:"type:text" json:"relationship_context,omitempty"`
	Parties             []Party         `gorm:"serializer:json" json:"parties"`
	Status              CaseStatus      `gorm:"type:text;not null;index" json:"status"`
	OwnerID             string          `gorm:"type:text;not null;index" json:"owner_id"`
	Participants        pq.StringArray  `gorm:"type:text[]" json:"participants"`
	InvitedUserID       *string         `gorm:"type:text;index" json:"invited_user_id,omitempty"`
	InviteExpiresAt     *time.Time      `json:"invite_expires_at,omitempty"`
	Acceptance          AcceptanceState `gorm:"type:text;not null" json:"acceptance"`
	// Language selects the locale of generated fallback texts ("en" by default).
	Language  string    `gorm:"type:text;default:en" json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the case if none was assigned.
func (c *Case) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// HasParticipant reports whether userID is an accepted participant.
func (c *Case) HasParticipant(userID string) bool {
	return userID != "" && slices.Contains(c.Participants, userID)
}

// IsInvitee reports whether userID is the invited party.
func (c *Case) IsInvitee(userID string) bool {
	return c.InvitedUserID != nil && userID != "" && *c.InvitedUserID == userID
}

// CanView reports whether userID may read the case: participants always,
// the invitee while the invitation exists.
func (c *Case) CanView(userID string) bool {
	return c.HasParticipant(userID) || c.IsInvitee(userID)
}

// IsTerminal reports whether the case reached expired or closed.
func (c *Case) IsTerminal() bool {
	return c.Status == CaseStatusExpired || c.Status == CaseStatusClosed
}
