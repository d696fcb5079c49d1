package notification

import (
	"fmt"
	"time"

	"github.com/drmas001/imd-v2.8/internal/shared/types"
)

// Channel is the delivery channel of a reminder
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Status is the delivery state of a reminder
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// Reminder is one follow-up reminder queued for delivery to the
// ward's follow-up desk after a discharge with follow-up required.
type Reminder struct {
	ID      types.ID `json:"id"`
	Channel Channel  `json:"channel"`
	Status  Status   `json:"status"`

	// Recipient contact, resolved from configuration
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`

	PatientName  string     `json:"patient_name"`
	PatientMRN   string     `json:"patient_mrn"`
	Department   string     `json:"department,omitempty"`
	FollowUpDate *time.Time `json:"follow_up_date,omitempty"`

	Subject string `json:"subject"`
	Body    string `json:"body"`

	// EventID ties the reminder back to the discharge event
	EventID       string `json:"event_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`

	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// Expired reports whether the reminder is past its delivery window
func (r *Reminder) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// FollowUp describes a discharge that needs a follow-up arranged
type FollowUp struct {
	PatientName  string
	PatientMRN   string
	Department   string
	DischargedAt *time.Time
	FollowUpDate *time.Time
}

// composeReminder renders the reminder text for a follow-up
func composeReminder(f FollowUp) (subject, body string) {
	subject = fmt.Sprintf("Follow-up required: %s (%s)", f.PatientName, f.PatientMRN)

	when := "a date to be arranged"
	if f.FollowUpDate != nil {
		when = f.FollowUpDate.Format("2006-01-02")
	}
	discharged := ""
	if f.DischargedAt != nil {
		discharged = fmt.Sprintf(" on %s", f.DischargedAt.Format("2006-01-02"))
	}

	body = fmt.Sprintf(
		"Patient %s (MRN %s) was discharged from %s%s with follow-up required. Please arrange the follow-up appointment for %s.",
		f.PatientName, f.PatientMRN, f.Department, discharged, when,
	)
	return subject, body
}

// Stats are the running delivery counters of the service
type Stats struct {
	Queued    int64             `json:"queued"`
	Sent      int64             `json:"sent"`
	Failed    int64             `json:"failed"`
	Expired   int64             `json:"expired"`
	ByChannel map[Channel]int64 `json:"by_channel"`
}
