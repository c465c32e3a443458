package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const mailgunBaseURL = "https://api.mailgun.net"

// Mailgun sends via the Mailgun messages API (form-encoded, basic auth).
type Mailgun struct {
	// BaseURL exists so tests can point at a local server.
	BaseURL string

	domain string
	apiKey string
	client *http.Client
	logger *zap.Logger
}

func newMailgun(domain, apiKey string, client *http.Client, logger *zap.Logger) *Mailgun {
	return &Mailgun{
		BaseURL: mailgunBaseURL,
		domain:  domain,
		apiKey:  apiKey,
		client:  client,
		logger:  logger,
	}
}

func (m *Mailgun) Name() string { return ProviderMailgun }

type mailgunResponse struct {
	ID string `json:"id"`
}

func (m *Mailgun) Send(ctx context.Context, msg *Message) (*string, error) {
	form := url.Values{}
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	if msg.HTML != nil {
		form.Set("html", *msg.HTML)
	}
	if msg.ReplyTo != nil {
		form.Set("h:Reply-To", *msg.ReplyTo)
	}

	endpoint := fmt.Sprintf("%s/v3/%s/messages", m.BaseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create mailgun request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mailgun request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mailgun send failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result mailgunResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		m.logger.Warn("mailgun returned unparseable body", zap.Error(err))
		return nil, nil
	}

	m.logger.Debug("email sent via mailgun",
		zap.String("to", msg.To),
		zap.String("message_id", result.ID),
	)

	if result.ID == "" {
		return nil, nil
	}
	return &result.ID, nil
}
