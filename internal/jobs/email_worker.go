package jobs

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/internal/mail"
)

// EmailWorker delivers transactional email jobs.
type EmailWorker struct {
	sender mail.Sender
	logger *zap.Logger
}

func NewEmailWorker(sender mail.Sender, logger *zap.Logger) *EmailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailWorker{sender: sender, logger: logger}
}

// Run consumes email jobs until ctx is done. Delivery failures are
// nacked for redelivery; malformed payloads are dropped.
func (w *EmailWorker) Run(ctx context.Context, queue Queue) error {
	return queue.Subscribe(ctx, ChannelEmails, func(ctx context.Context, msg Message) error {
		var job EmailJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.logger.Error("invalid email job payload", zap.Error(err))
			return nil
		}

		if err := w.sender.Send(job.To, job.Subject, job.Body); err != nil {
			w.logger.Error("email delivery failed",
				zap.String("to", job.To),
				zap.Error(err))
			return err
		}
		return nil
	})
}
