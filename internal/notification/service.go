package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/config"
	"github.com/drmas001/imd-v2.8/internal/shared/metrics"
	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// SMSProvider delivers a reminder by text message
type SMSProvider interface {
	Send(ctx context.Context, reminder *Reminder) error
}

// EmailProvider delivers a reminder by email
type EmailProvider interface {
	Send(ctx context.Context, reminder *Reminder) error
}

// Service queues follow-up reminders and delivers them through the
// configured providers with a worker pool. Reminders live in memory;
// a restart drops the queue, and the next discharge event rebuilds
// demand.
type Service struct {
	sms   SMSProvider
	email EmailProvider
	cfg   config.NotifierConfig

	retryDelay time.Duration
	expiry     time.Duration

	mu        sync.RWMutex
	reminders map[types.ID]*Reminder
	stats     Stats

	queue chan *Reminder

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewService(sms SMSProvider, email EmailProvider, cfg config.NotifierConfig) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	return &Service{
		sms:        sms,
		email:      email,
		cfg:        cfg,
		retryDelay: time.Duration(cfg.RetryDelaySeconds) * time.Second,
		expiry:     time.Duration(cfg.ExpirationMinutes) * time.Minute,
		reminders:  make(map[types.ID]*Reminder),
		queue:      make(chan *Reminder, cfg.BufferSize),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the delivery workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("notifier already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	log.Printf("Notifier started: %d workers, sms=%t, email=%t",
		s.cfg.Workers, s.cfg.SMSEnabled, s.cfg.EmailEnabled)
	return nil
}

// Stop halts the workers. Queued reminders are dropped.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// Health reports whether the service can accept reminders
func (s *Service) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return fmt.Errorf("notifier not running")
	}
	if len(s.queue) == cap(s.queue) {
		return fmt.Errorf("notifier queue full (%d)", cap(s.queue))
	}
	return nil
}

// Enqueue creates reminders for a follow-up on every enabled channel
// and submits them for delivery
func (s *Service) Enqueue(f FollowUp, eventID, correlationID string) error {
	subject, body := composeReminder(f)
	now := time.Now()

	var queued []*Reminder
	if s.cfg.SMSEnabled && s.sms != nil {
		queued = append(queued, &Reminder{Channel: ChannelSMS, Phone: s.cfg.DeskPhone})
	}
	if s.cfg.EmailEnabled && s.email != nil {
		queued = append(queued, &Reminder{Channel: ChannelEmail, Email: s.cfg.DeskEmail})
	}
	if len(queued) == 0 {
		return nil
	}

	for _, r := range queued {
		r.ID = types.NewID()
		r.Status = StatusPending
		r.PatientName = f.PatientName
		r.PatientMRN = f.PatientMRN
		r.Department = f.Department
		r.FollowUpDate = f.FollowUpDate
		r.Subject = subject
		r.Body = body
		r.EventID = eventID
		r.CorrelationID = correlationID
		r.CreatedAt = now
		r.ExpiresAt = now.Add(s.expiry)

		if err := s.submit(r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) submit(r *Reminder) error {
	s.mu.Lock()
	s.reminders[r.ID] = r
	s.stats.Queued++
	s.mu.Unlock()

	select {
	case s.queue <- r:
		return nil
	default:
		s.finalize(r, StatusFailed, "reminder queue full")
		return fmt.Errorf("reminder queue full")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case r := <-s.queue:
			s.deliver(ctx, r)
		}
	}
}

// deliver sends one reminder, retrying failed sends until the attempt
// budget or the expiry window runs out
func (s *Service) deliver(ctx context.Context, r *Reminder) {
	if r.Expired(time.Now()) {
		s.finalize(r, StatusExpired, "expired before delivery")
		return
	}

	var err error
	switch r.Channel {
	case ChannelSMS:
		err = s.sms.Send(ctx, r)
	case ChannelEmail:
		err = s.email.Send(ctx, r)
	default:
		err = fmt.Errorf("unknown channel %q", r.Channel)
	}

	if err == nil {
		now := time.Now()
		s.mu.Lock()
		r.SentAt = &now
		s.mu.Unlock()
		s.finalize(r, StatusSent, "")
		return
	}

	s.mu.Lock()
	r.RetryCount++
	r.LastError = err.Error()
	retries := r.RetryCount
	s.mu.Unlock()

	if retries >= s.cfg.RetryAttempts {
		log.Printf("Warning: reminder %s failed after %d attempts: %v", r.ID, retries, err)
		s.finalize(r, StatusFailed, err.Error())
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-time.After(s.retryDelay):
		case <-s.stopCh:
			return
		}
		select {
		case s.queue <- r:
		default:
			s.finalize(r, StatusFailed, "reminder queue full on retry")
		}
	}()
}

// finalize records a terminal state and its metrics
func (s *Service) finalize(r *Reminder, status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Status = status
	if errMsg != "" {
		r.LastError = errMsg
	}

	if s.stats.ByChannel == nil {
		s.stats.ByChannel = make(map[Channel]int64)
	}
	switch status {
	case StatusSent:
		s.stats.Sent++
		s.stats.ByChannel[r.Channel]++
	case StatusFailed:
		s.stats.Failed++
	case StatusExpired:
		s.stats.Expired++
	}

	metrics.RecordNotificationSent(string(r.Channel), string(status))
}

// Reminder returns a queued or delivered reminder by id
func (s *Service) Reminder(id types.ID) (*Reminder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	return r, ok
}

// Reminders returns all reminders the service has seen since start
func (s *Service) Reminders() []*Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		result = append(result, r)
	}
	return result
}

// GetStats returns a copy of the delivery counters
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	stats.ByChannel = make(map[Channel]int64, len(s.stats.ByChannel))
	for k, v := range s.stats.ByChannel {
		stats.ByChannel[k] = v
	}
	return stats
}
