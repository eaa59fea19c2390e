package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/gosgconsulting/cms-identity/internal/core/port"
	"github.com/gosgconsulting/cms-identity/internal/infra/logger"
)

// LogDelivery is the placeholder reset-token channel used until a mailer is
// wired in. It records that a token was issued but never logs the token
// itself, so deployments without a mailer stay safe by default.
//
// TODO: replace with the platform mail service once its API is published.
type LogDelivery struct {
	logger *zap.Logger
}

// NewLogDelivery constructs a LogDelivery.
func NewLogDelivery(log *zap.Logger) *LogDelivery {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDelivery{logger: log}
}

func (d *LogDelivery) DeliverResetToken(_ context.Context, email, _ string) error {
	d.logger.Info("password reset token issued, no delivery channel configured",
		zap.String("email", logger.MaskEmail(email)),
	)
	return nil
}

var _ port.ResetTokenDelivery = (*LogDelivery)(nil)
