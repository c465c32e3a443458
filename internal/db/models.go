package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an outbox job.
type JobStatus string

const (
	JobPending    JobStatus = "PENDING"
	JobProcessing JobStatus = "PROCESSING"
	JobDone       JobStatus = "DONE"
	JobFailed     JobStatus = "FAILED"
)

// jobTransitions is the single source of truth for legal status moves.
// DONE and FAILED are terminal.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobProcessing},
	JobProcessing: {JobDone, JobFailed, JobPending},
	JobDone:       {},
	JobFailed:     {},
}

// CanTransitionTo reports whether moving from s to next is a legal
// lifecycle transition.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// JobType identifies what kind of notification a job produces.
type JobType string

const (
	JobOrderCreatedEmail          JobType = "SEND_ORDER_CREATED_EMAIL"
	JobStatusUpdateEmail          JobType = "SEND_STATUS_UPDATE_EMAIL"
	JobProofReviewEmail           JobType = "SEND_PROOF_REVIEW_EMAIL"
	JobProofCustomerResponseEmail JobType = "SEND_PROOF_CUSTOMER_RESPONSE_EMAIL"
	JobCommunicationEmail         JobType = "SEND_COMMUNICATION_EMAIL"
)

// Job is one durable unit of deferred notification work. Rows are never
// deleted; DONE and FAILED rows remain as an audit trail.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	RunAfter    time.Time       `json:"run_after"`
	LastError   *string         `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
}

// CommunicationStatus is the delivery state shown to staff in the portal.
type CommunicationStatus string

const (
	CommunicationQueued CommunicationStatus = "QUEUED"
	CommunicationSent   CommunicationStatus = "SENT"
	CommunicationFailed CommunicationStatus = "FAILED"
)

// OrderContext is the read-only join of an order and its customer used to
// address and render an order-driven notification.
type OrderContext struct {
	OrderID       uuid.UUID
	CustomerEmail string
	CustomerName  string
	Title         string
	Quantity      int
	DueDate       *time.Time
	Status        string
	CompanyID     *uuid.UUID
	CompanyName   *string
}

// CompanySettings holds a tenant's delivery configuration. Owned by the
// admin settings UI; read-only here.
type CompanySettings struct {
	CompanyID               uuid.UUID `json:"company_id"`
	EmailFromName           *string   `json:"email_from_name,omitempty"`
	EmailFromAddress        *string   `json:"email_from_address,omitempty"`
	EmailReplyTo            *string   `json:"email_reply_to,omitempty"`
	UseCustomEmailProvider  bool      `json:"use_custom_email_provider"`
	CustomPostmarkToken     *string   `json:"custom_postmark_token,omitempty"`
	CustomMailgunDomain     *string   `json:"custom_mailgun_domain,omitempty"`
	CustomMailgunAPIKey     *string   `json:"custom_mailgun_api_key,omitempty"`
	CustomEmailFooter       *string   `json:"custom_email_footer,omitempty"`
	EnableAutoNotifications bool      `json:"enable_auto_notifications"`
	NotifyOnOrderCreated    bool      `json:"notify_on_order_created"`
	NotifyOnStatusUpdate    bool      `json:"notify_on_status_update"`
	NotifyOnProofReview     bool      `json:"notify_on_proof_review"`
	NotifyOnProofResponse   bool      `json:"notify_on_proof_response"`
}

// EmailTemplate is a named subject/body pair, optionally scoped to a
// company. A company-scoped active template overrides the system default
// of the same name.
type EmailTemplate struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	Subject   string     `json:"subject"`
	TextBody  string     `json:"text_body"`
	HTMLBody  *string    `json:"html_body,omitempty"`
	IsActive  bool       `json:"is_active"`
}
