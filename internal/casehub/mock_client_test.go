package casehub_test

import (
	"arbiter/backend/internal/models"
	"sync"
)

type MockClient struct {
	userID      string
	caseID      string
	RecvChannel chan models.CaseEvent

	mu     sync.Mutex
	closed int
}

func newMockClient(userID, caseID string, buffer int) *MockClient {
	return &MockClient{
		userID:      userID,
		caseID:      caseID,
		RecvChannel: make(chan models.CaseEvent, buffer),
	}
}

func (c *MockClient) GetUserID() string {
	return c.userID
}

func (c *MockClient) GetCaseID() string {
	return c.caseID
}

func (c *MockClient) GetSendChannel() chan<- models.CaseEvent {
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
}

func (c *MockClient) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
