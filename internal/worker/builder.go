package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/printpress/notifications/internal/db"
	"github.com/printpress/notifications/internal/mailer"
	"github.com/printpress/notifications/internal/templates"
)

// Resolver supplies the read-only lookups the builder needs. Implemented
// by db.Repository, optionally wrapped by the redis cache.
type Resolver interface {
	GetOrderContext(ctx context.Context, orderID uuid.UUID) (*db.OrderContext, error)
	GetCompanySettings(ctx context.Context, companyID uuid.UUID) (*db.CompanySettings, error)
	GetTemplate(ctx context.Context, name string, companyID *uuid.UUID) (*db.EmailTemplate, error)
}

// CommunicationPayload is the payload of a staff-composed direct-send job.
type CommunicationPayload struct {
	ToEmail         string  `json:"toEmail"`
	Subject         string  `json:"subject"`
	Body            string  `json:"body"`
	HTMLBody        *string `json:"htmlBody,omitempty"`
	CommunicationID *string `json:"communicationId,omitempty"`
}

// OrderEventPayload is the payload shared by all order-driven job types.
type OrderEventPayload struct {
	OrderID string  `json:"orderId"`
	Status  string  `json:"status,omitempty"`
	Note    *string `json:"note,omitempty"`
}

// BuildResult is a resolved outbound message, or nothing to send when
// Message is nil (stale order reference, notifications disabled, empty
// payload). Settings ride along for provider selection and from/reply-to
// policy.
type BuildResult struct {
	Message         *mailer.Message
	Settings        *db.CompanySettings
	CommunicationID *uuid.UUID
}

// Builder maps a job's type and payload to a fully resolved message using
// the order store, tenant settings, and template resolution.
type Builder struct {
	resolver Resolver
	appURL   string
	logger   *zap.Logger
}

func NewBuilder(resolver Resolver, appURL string, logger *zap.Logger) *Builder {
	return &Builder{
		resolver: resolver,
		appURL:   appURL,
		logger:   logger,
	}
}

// Build produces the message for a job. Errors from the underlying stores
// propagate so the dispatch loop's failure boundary can schedule a retry;
// "nothing to send" conditions return a nil Message without error.
func (b *Builder) Build(ctx context.Context, job *db.Job) (*BuildResult, error) {
	switch job.Type {
	case db.JobCommunicationEmail:
		return b.buildCommunication(job)
	case db.JobOrderCreatedEmail, db.JobStatusUpdateEmail, db.JobProofReviewEmail, db.JobProofCustomerResponseEmail:
		return b.buildOrderEvent(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// buildCommunication passes the staff-composed payload through unchanged.
func (b *Builder) buildCommunication(job *db.Job) (*BuildResult, error) {
	var payload CommunicationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid communication payload: %w", err)
	}

	if payload.ToEmail == "" || payload.Body == "" {
		b.logger.Warn("communication job missing recipient or body, nothing to send",
			zap.String("job_id", job.ID.String()),
		)
		return &BuildResult{}, nil
	}

	subject := payload.Subject
	if subject == "" {
		subject = "PrintPress Update"
	}

	result := &BuildResult{
		Message: &mailer.Message{
			To:      payload.ToEmail,
			Subject: subject,
			Text:    payload.Body,
			HTML:    payload.HTMLBody,
		},
	}

	if payload.CommunicationID != nil {
		commID, err := uuid.Parse(*payload.CommunicationID)
		if err != nil {
			return nil, fmt.Errorf("invalid communication id %q: %w", *payload.CommunicationID, err)
		}
		result.CommunicationID = &commID
	}

	return result, nil
}

func (b *Builder) buildOrderEvent(ctx context.Context, job *db.Job) (*BuildResult, error) {
	var payload OrderEventPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid order event payload: %w", err)
	}

	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		// A malformed reference will never resolve; completing the job
		// beats retrying it forever.
		b.logger.Warn("order event payload carries unusable order id",
			zap.String("job_id", job.ID.String()),
			zap.String("order_id", payload.OrderID),
		)
		return &BuildResult{}, nil
	}

	octx, err := b.resolver.GetOrderContext(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if octx == nil {
		b.logger.Warn("order not found, nothing to send",
			zap.String("job_id", job.ID.String()),
			zap.String("order_id", orderID.String()),
		)
		return &BuildResult{}, nil
	}

	var settings *db.CompanySettings
	if octx.CompanyID != nil {
		settings, err = b.resolver.GetCompanySettings(ctx, *octx.CompanyID)
		if err != nil {
			return nil, err
		}
	}

	if settings != nil && !notificationEnabled(settings, job.Type) {
		b.logger.Info("auto notifications disabled for tenant, nothing to send",
			zap.String("job_id", job.ID.String()),
			zap.String("company_id", settings.CompanyID.String()),
			zap.String("type", string(job.Type)),
		)
		return &BuildResult{Settings: settings}, nil
	}

	vars := b.variables(octx, &payload, job.Type)

	subject, text, html, err := b.renderBody(ctx, job.Type, octx.CompanyID, vars, orderID, payload.Status)
	if err != nil {
		return nil, err
	}

	if settings != nil && settings.CustomEmailFooter != nil && *settings.CustomEmailFooter != "" {
		text = templates.AppendFooter(text, *settings.CustomEmailFooter)
		if html != nil {
			withFooter := templates.AppendHTMLFooter(*html, *settings.CustomEmailFooter)
			html = &withFooter
		}
	}

	return &BuildResult{
		Message: &mailer.Message{
			To:      octx.CustomerEmail,
			Subject: subject,
			Text:    text,
			HTML:    html,
		},
		Settings: settings,
	}, nil
}

// renderBody resolves the template for the job type and renders it, or
// falls back to a minimal hard-coded message so a missing template never
// swallows a notification.
func (b *Builder) renderBody(ctx context.Context, jobType db.JobType, companyID *uuid.UUID, vars map[string]string, orderID uuid.UUID, status string) (string, string, *string, error) {
	name := templates.Name(jobType)

	tmpl, err := b.resolver.GetTemplate(ctx, name, companyID)
	if err != nil {
		return "", "", nil, err
	}

	if tmpl == nil {
		subject, text := fallbackBody(jobType, orderID, status)
		return subject, text, nil, nil
	}

	subject := templates.Render(tmpl.Subject, vars)
	text := templates.Render(tmpl.TextBody, vars)
	var html *string
	if tmpl.HTMLBody != nil {
		rendered := templates.Render(*tmpl.HTMLBody, vars)
		html = &rendered
	}
	return subject, text, html, nil
}

func fallbackBody(jobType db.JobType, orderID uuid.UUID, status string) (string, string) {
	if status == "" {
		status = "UPDATED"
	}
	switch jobType {
	case db.JobOrderCreatedEmail:
		return "Order received",
			fmt.Sprintf("Your order %s has been received and entered into production planning.", orderID)
	case db.JobStatusUpdateEmail:
		return "Order status updated",
			fmt.Sprintf("Order %s status is now: %s.", orderID, status)
	case db.JobProofReviewEmail:
		return "Proof review update",
			fmt.Sprintf("Proof for order %s was reviewed with status: %s.", orderID, status)
	case db.JobProofCustomerResponseEmail:
		return "Customer proof response",
			fmt.Sprintf("Customer responded to proof for order %s with: %s.", orderID, status)
	default:
		return "PrintPress Update", fmt.Sprintf("Update for order %s.", orderID)
	}
}

// variables assembles the substitution map from order fields plus any
// status/notes carried by the payload.
func (b *Builder) variables(octx *db.OrderContext, payload *OrderEventPayload, jobType db.JobType) map[string]string {
	status := payload.Status
	if status == "" {
		status = octx.Status
	}

	vars := map[string]string{
		"orderId":       octx.OrderID.String(),
		"status":        status,
		"customerName":  octx.CustomerName,
		"customerEmail": octx.CustomerEmail,
		"orderTitle":    octx.Title,
		"quantity":      strconv.Itoa(octx.Quantity),
		"appUrl":        b.appURL,
	}
	if octx.DueDate != nil {
		vars["dueDate"] = octx.DueDate.Format("2006-01-02")
	}
	if octx.CompanyName != nil {
		vars["companyName"] = *octx.CompanyName
	}
	if payload.Note != nil {
		vars["note"] = *payload.Note
	}
	if jobType == db.JobProofReviewEmail || jobType == db.JobProofCustomerResponseEmail {
		vars["proofStatus"] = status
		if payload.Note != nil {
			vars["proofNotes"] = *payload.Note
		}
	}
	return vars
}

// notificationEnabled applies the tenant's master switch and the per-event
// notify flag for the job type.
func notificationEnabled(settings *db.CompanySettings, jobType db.JobType) bool {
	if !settings.EnableAutoNotifications {
		return false
	}
	switch jobType {
	case db.JobOrderCreatedEmail:
		return settings.NotifyOnOrderCreated
	case db.JobStatusUpdateEmail:
		return settings.NotifyOnStatusUpdate
	case db.JobProofReviewEmail:
		return settings.NotifyOnProofReview
	case db.JobProofCustomerResponseEmail:
		return settings.NotifyOnProofResponse
	default:
		return true
	}
}
