package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const postmarkBaseURL = "https://api.postmarkapp.com"

// Postmark sends via the Postmark transactional email API.
type Postmark struct {
	// BaseURL exists so tests can point at a local server.
	BaseURL string

	token  string
	stream string
	client *http.Client
	logger *zap.Logger
}

func newPostmark(token, stream string, client *http.Client, logger *zap.Logger) *Postmark {
	return &Postmark{
		BaseURL: postmarkBaseURL,
		token:   token,
		stream:  stream,
		client:  client,
		logger:  logger,
	}
}

func (p *Postmark) Name() string { return ProviderPostmark }

type postmarkRequest struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody"`
	HTMLBody      string `json:"HtmlBody,omitempty"`
	ReplyTo       string `json:"ReplyTo,omitempty"`
	MessageStream string `json:"MessageStream,omitempty"`
}

type postmarkResponse struct {
	MessageID string `json:"MessageID"`
}

func (p *Postmark) Send(ctx context.Context, msg *Message) (*string, error) {
	payload := postmarkRequest{
		From:          msg.From,
		To:            msg.To,
		Subject:       msg.Subject,
		TextBody:      msg.Text,
		MessageStream: p.stream,
	}
	if msg.HTML != nil {
		payload.HTMLBody = *msg.HTML
	}
	if msg.ReplyTo != nil {
		payload.ReplyTo = *msg.ReplyTo
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal postmark payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/email", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create postmark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("postmark send failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var result postmarkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		p.logger.Warn("postmark returned unparseable body", zap.Error(err))
		return nil, nil
	}

	p.logger.Debug("email sent via postmark",
		zap.String("to", msg.To),
		zap.String("message_id", result.MessageID),
	)

	if result.MessageID == "" {
		return nil, nil
	}
	return &result.MessageID, nil
}
