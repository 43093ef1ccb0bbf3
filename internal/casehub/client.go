package casehub

import "arbiter/backend/internal/models"

// Client is one live subscriber to the events of a single case.
type Client interface {
	GetUserID() string
	// GetCaseID returns the case whose events the client receives.
	GetCaseID() string

	// GetSendChannel returns the channel the Manager delivers events on.
	GetSendChannel() chan<- models.CaseEvent

	// Run starts the client's read and write pumps.
	Run()
	// Close stops delivery to the client. It must be safe to call twice.
	Close()
}
