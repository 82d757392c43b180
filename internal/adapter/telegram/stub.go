// Package telegram provides the stub webhook-source and notification client.
// The real transport lives outside this repo; the core depends only on the
// narrow TelegramClient port.
package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/fairyhunter13/ai-assignment-evaluator/internal/domain"
)

// StubClient serves file payloads from memory and records notifications
// idempotently by submission id.
type StubClient struct {
	mu            sync.Mutex
	files         map[string][]byte
	notifications map[string]string
}

// NewStubClient returns an empty stub client.
func NewStubClient() *StubClient {
	return &StubClient{
		files:         make(map[string][]byte),
		notifications: make(map[string]string),
	}
}

// AddFile seeds a downloadable file payload.
func (c *StubClient) AddFile(fileID string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[fileID] = payload
}

// GetFileBytes returns the payload for fileID.
func (c *StubClient) GetFileBytes(_ context.Context, fileID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("op=telegram.GetFileBytes: file %q: %w", fileID, domain.ErrNotFound)
	}
	return payload, nil
}

// SendResultNotification records the message once per submission id and
// returns a stable external message id. Repeat sends are no-ops returning
// the same id.
func (c *StubClient) SendResultNotification(_ context.Context, submissionID, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.notifications[submissionID]; !ok {
		c.notifications[submissionID] = message
	}
	return "msg:" + submissionID, nil
}

// NotificationCount reports how many distinct submissions were notified.
func (c *StubClient) NotificationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notifications)
}
