// Package mailer sends rendered messages through one of two
// interchangeable transactional-email providers. Provider choice is
// policy-driven: tenant-owned credentials win over the global default.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/printpress/notifications/internal/db"
)

const (
	ProviderPostmark = "postmark"
	ProviderMailgun  = "mailgun"
)

// Message is a fully resolved outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    *string
	ReplyTo *string
}

// Provider sends one message and returns the provider-assigned message
// reference, or nil when the provider returned none.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) (*string, error)
}

// ErrNotConfigured means the selected provider has no usable credentials.
var ErrNotConfigured = errors.New("email provider not configured")

// Defaults is the globally configured provider and identity, used when a
// tenant has no override.
type Defaults struct {
	Provider              string
	FromName              string
	FromAddress           string
	ReplyTo               string
	PostmarkServerToken   string
	PostmarkMessageStream string
	MailgunDomain         string
	MailgunAPIKey         string
}

// Selector resolves tenant settings to a concrete Provider. A single HTTP
// client with a bounded timeout is shared across all providers so one slow
// provider call cannot stall the dispatch loop indefinitely.
type Selector struct {
	defaults Defaults
	client   *http.Client
	logger   *zap.Logger
}

func NewSelector(defaults Defaults, logger *zap.Logger) *Selector {
	return &Selector{
		defaults: defaults,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// ForSettings picks the provider for a tenant. Tenant Postmark credentials
// win, then tenant Mailgun credentials, then the global default. Tenant
// credentials only count when the tenant opted into a custom provider.
func (s *Selector) ForSettings(settings *db.CompanySettings) (Provider, error) {
	if settings != nil && settings.UseCustomEmailProvider {
		if token := deref(settings.CustomPostmarkToken); token != "" {
			return newPostmark(token, s.defaults.PostmarkMessageStream, s.client, s.logger), nil
		}
		if domain, key := deref(settings.CustomMailgunDomain), deref(settings.CustomMailgunAPIKey); domain != "" && key != "" {
			return newMailgun(domain, key, s.client, s.logger), nil
		}
		s.logger.Warn("tenant opted into custom provider without credentials, using global default",
			zap.String("company_id", settings.CompanyID.String()),
		)
	}

	switch s.defaults.Provider {
	case "log":
		// Development mode: messages are logged, never sent.
		return NewLogProvider(s.logger), nil
	case ProviderPostmark:
		if s.defaults.PostmarkServerToken == "" {
			return nil, fmt.Errorf("%w: postmark server token missing", ErrNotConfigured)
		}
		return newPostmark(s.defaults.PostmarkServerToken, s.defaults.PostmarkMessageStream, s.client, s.logger), nil
	case ProviderMailgun:
		if s.defaults.MailgunDomain == "" || s.defaults.MailgunAPIKey == "" {
			return nil, fmt.Errorf("%w: mailgun domain or api key missing", ErrNotConfigured)
		}
		return newMailgun(s.defaults.MailgunDomain, s.defaults.MailgunAPIKey, s.client, s.logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown default provider %q", ErrNotConfigured, s.defaults.Provider)
	}
}

// FromLine builds the From header for a tenant: a tenant from-address
// yields "{fromName or default} <{address}>", otherwise the global
// identity is used.
func (s *Selector) FromLine(settings *db.CompanySettings) string {
	name := s.defaults.FromName
	address := s.defaults.FromAddress
	if settings != nil {
		if settings.EmailFromAddress != nil && *settings.EmailFromAddress != "" {
			address = *settings.EmailFromAddress
			if settings.EmailFromName != nil && *settings.EmailFromName != "" {
				name = *settings.EmailFromName
			}
		}
	}
	if name == "" {
		return address
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

// ReplyTo resolves the reply-to policy: message-level reply-to if set,
// else tenant reply-to, else the global one, else none.
func (s *Selector) ReplyTo(settings *db.CompanySettings, msg *Message) *string {
	if msg.ReplyTo != nil && *msg.ReplyTo != "" {
		return msg.ReplyTo
	}
	if settings != nil && settings.EmailReplyTo != nil && *settings.EmailReplyTo != "" {
		return settings.EmailReplyTo
	}
	if s.defaults.ReplyTo != "" {
		return &s.defaults.ReplyTo
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
