package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for outbox jobs, communication
// log entries, and the read-only lookups the job builder needs.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new outbox repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `id, type, payload, status, attempts, run_after, last_error, created_at, updated_at, processed_at`

// ClaimDueJobs atomically claims up to limit due jobs. The claim and the
// attempt increment happen in a single statement with SKIP LOCKED, so two
// workers polling the same table can never claim the same job. Claimed rows
// come back ordered oldest-first.
func (r *Repository) ClaimDueJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := fmt.Sprintf(`
		UPDATE outbox_jobs
		SET status = 'PROCESSING', attempts = attempts + 1, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM outbox_jobs
			WHERE status = 'PENDING' AND run_after <= NOW()
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, jobColumns)

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })

	return jobs, nil
}

func scanJobs(rows pgx.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Payload,
			&job.Status,
			&job.Attempts,
			&job.RunAfter,
			&job.LastError,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// ErrIllegalTransition is returned when a status update would violate the
// job lifecycle (e.g. re-opening a DONE job).
var ErrIllegalTransition = errors.New("illegal job status transition")

func (r *Repository) transitionJob(ctx context.Context, id uuid.UUID, from, to JobStatus, set string, args ...any) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	query := fmt.Sprintf(`UPDATE outbox_jobs SET %s, updated_at = NOW() WHERE id = $1 AND status = $2`, set)
	args = append([]any{id, from}, args...)

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job %s not in status %s", id, from)
	}
	return nil
}

// CompleteJob marks a claimed job DONE and clears its last error.
func (r *Repository) CompleteJob(ctx context.Context, id uuid.UUID) error {
	return r.transitionJob(ctx, id, JobProcessing, JobDone,
		`status = 'DONE', last_error = NULL, processed_at = NOW()`)
}

// RetryJob puts a claimed job back in PENDING with the given error text,
// eligible again after the retry delay.
func (r *Repository) RetryJob(ctx context.Context, id uuid.UUID, errMsg string, delay time.Duration) error {
	return r.transitionJob(ctx, id, JobProcessing, JobPending,
		`status = 'PENDING', last_error = $3, run_after = NOW() + $4`, errMsg, delay)
}

// FailJob marks a claimed job terminally FAILED.
func (r *Repository) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.transitionJob(ctx, id, JobProcessing, JobFailed,
		`status = 'FAILED', last_error = $3, processed_at = NOW()`, errMsg)
}

// ReclaimStuckJobs returns PROCESSING jobs older than the cutoff to
// PENDING so work abandoned by a crashed worker becomes eligible again.
func (r *Repository) ReclaimStuckJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE outbox_jobs
		SET status = 'PENDING', updated_at = NOW()
		WHERE status = 'PROCESSING' AND updated_at < NOW() - $1
	`

	result, err := r.db.Pool().Exec(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck jobs: %w", err)
	}

	if n := result.RowsAffected(); n > 0 {
		r.logger.Warn("reclaimed stuck jobs", zap.Int64("count", n))
		return n, nil
	}
	return 0, nil
}

// MarkCommunication updates the portal-visible delivery status of a
// composed message, recording the provider message id when one exists.
func (r *Repository) MarkCommunication(ctx context.Context, id uuid.UUID, status CommunicationStatus, providerRef *string) error {
	query := `
		UPDATE communication_logs
		SET status = $2, provider_ref = $3, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, id, status, providerRef)
	if err != nil {
		return fmt.Errorf("update communication %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("communication not found: %s", id)
	}

	return nil
}

// GetOrderContext loads the order/customer join used to address a
// notification. A missing order returns (nil, nil): stale references are
// the caller's signal to complete the job without sending.
func (r *Repository) GetOrderContext(ctx context.Context, orderID uuid.UUID) (*OrderContext, error) {
	query := `
		SELECT o.id, c.email, c.name, o.title, o.quantity, o.due_date, o.status, c.company_id, co.name
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		LEFT JOIN companies co ON co.id = c.company_id
		WHERE o.id = $1
	`

	var octx OrderContext
	err := r.db.Pool().QueryRow(ctx, query, orderID).Scan(
		&octx.OrderID,
		&octx.CustomerEmail,
		&octx.CustomerName,
		&octx.Title,
		&octx.Quantity,
		&octx.DueDate,
		&octx.Status,
		&octx.CompanyID,
		&octx.CompanyName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order context %s: %w", orderID, err)
	}

	return &octx, nil
}

// GetCompanySettings loads a tenant's delivery settings, or nil when the
// company has none configured.
func (r *Repository) GetCompanySettings(ctx context.Context, companyID uuid.UUID) (*CompanySettings, error) {
	query := `
		SELECT company_id, email_from_name, email_from_address, email_reply_to,
			use_custom_email_provider, custom_postmark_token, custom_mailgun_domain,
			custom_mailgun_api_key, custom_email_footer, enable_auto_notifications,
			notify_on_order_created, notify_on_status_update, notify_on_proof_review,
			notify_on_proof_response
		FROM company_settings
		WHERE company_id = $1
	`

	var s CompanySettings
	err := r.db.Pool().QueryRow(ctx, query, companyID).Scan(
		&s.CompanyID,
		&s.EmailFromName,
		&s.EmailFromAddress,
		&s.EmailReplyTo,
		&s.UseCustomEmailProvider,
		&s.CustomPostmarkToken,
		&s.CustomMailgunDomain,
		&s.CustomMailgunAPIKey,
		&s.CustomEmailFooter,
		&s.EnableAutoNotifications,
		&s.NotifyOnOrderCreated,
		&s.NotifyOnStatusUpdate,
		&s.NotifyOnProofReview,
		&s.NotifyOnProofResponse,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query company settings %s: %w", companyID, err)
	}

	return &s, nil
}

// GetTemplate resolves the active template for a logical name. A
// company-scoped override wins; otherwise the system default (NULL
// company) is used; nil when neither exists. Fields are never merged
// across the two scopes.
func (r *Repository) GetTemplate(ctx context.Context, name string, companyID *uuid.UUID) (*EmailTemplate, error) {
	if companyID != nil {
		tmpl, err := r.getTemplateScoped(ctx, name, companyID)
		if err != nil {
			return nil, err
		}
		if tmpl != nil {
			return tmpl, nil
		}
	}
	return r.getTemplateScoped(ctx, name, nil)
}

func (r *Repository) getTemplateScoped(ctx context.Context, name string, companyID *uuid.UUID) (*EmailTemplate, error) {
	query := `
		SELECT id, name, company_id, subject, text_body, html_body, is_active
		FROM email_templates
		WHERE name = $1 AND is_active AND company_id IS NOT DISTINCT FROM $2
		LIMIT 1
	`

	var tmpl EmailTemplate
	err := r.db.Pool().QueryRow(ctx, query, name, companyID).Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.CompanyID,
		&tmpl.Subject,
		&tmpl.TextBody,
		&tmpl.HTMLBody,
		&tmpl.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template %s: %w", name, err)
	}

	return &tmpl, nil
}
