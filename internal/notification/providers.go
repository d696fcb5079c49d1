package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// MockSMSProvider records sent reminders for tests
type MockSMSProvider struct {
	mu       sync.Mutex
	sent     []*Reminder
	failures int
}

func NewMockSMSProvider() *MockSMSProvider {
	return &MockSMSProvider{}
}

func (p *MockSMSProvider) Send(ctx context.Context, reminder *Reminder) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("mock sms failure")
	}
	if reminder.Phone == "" {
		return fmt.Errorf("no phone number on reminder")
	}

	p.sent = append(p.sent, reminder)
	return nil
}

// FailTimes makes the next n sends fail
func (p *MockSMSProvider) FailTimes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

func (p *MockSMSProvider) Sent() []*Reminder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Reminder(nil), p.sent...)
}

// MockEmailProvider records sent reminders for tests
type MockEmailProvider struct {
	mu       sync.Mutex
	sent     []*Reminder
	failures int
}

func NewMockEmailProvider() *MockEmailProvider {
	return &MockEmailProvider{}
}

func (p *MockEmailProvider) Send(ctx context.Context, reminder *Reminder) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("mock email failure")
	}
	if reminder.Email == "" {
		return fmt.Errorf("no email address on reminder")
	}

	p.sent = append(p.sent, reminder)
	return nil
}

// FailTimes makes the next n sends fail
func (p *MockEmailProvider) FailTimes(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

func (p *MockEmailProvider) Sent() []*Reminder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Reminder(nil), p.sent...)
}

// LogProvider writes reminders to the process log. It stands in for a
// real SMS or email gateway in development deployments.
type LogProvider struct {
	channel string
}

func NewLogProvider(channel string) *LogProvider {
	return &LogProvider{channel: channel}
}

func (p *LogProvider) Send(ctx context.Context, reminder *Reminder) error {
	log.Printf("[%s reminder] %s | %s", p.channel, reminder.Subject, reminder.Body)
	return nil
}
