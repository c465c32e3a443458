package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogProvider logs messages instead of sending them, for development.
type LogProvider struct {
	logger *zap.Logger
}

func NewLogProvider(logger *zap.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (l *LogProvider) Name() string { return "log" }

func (l *LogProvider) Send(ctx context.Context, msg *Message) (*string, error) {
	l.logger.Info("logging email (development mode)",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil, nil
}
