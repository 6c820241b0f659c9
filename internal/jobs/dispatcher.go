package jobs

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// Dispatcher submits side jobs without awaiting their completion. A
// publish failure is logged and swallowed: the triggering write has
// already committed and must not be rolled back by a broker outage.
type Dispatcher struct {
	queue  Queue
	logger *zap.Logger
}

// NewDispatcher constructs a Dispatcher. queue may be nil, in which
// case submitted jobs are dropped (useful in tests and minimal deploys).
func NewDispatcher(queue Queue, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{queue: queue, logger: logger}
}

// SubmitThumbnail enqueues thumbnail generation for a profile image.
func (d *Dispatcher) SubmitThumbnail(ctx context.Context, job ThumbnailJob) {
	d.submit(ctx, ChannelThumbnails, job)
}

// SubmitEmail enqueues a transactional email.
func (d *Dispatcher) SubmitEmail(ctx context.Context, job EmailJob) {
	d.submit(ctx, ChannelEmails, job)
}

func (d *Dispatcher) submit(ctx context.Context, channel string, job any) {
	if d.queue == nil {
		return
	}

	data, err := json.Marshal(job)
	if err != nil {
		d.logger.Error("failed to encode job",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}

	if _, err := d.queue.Publish(ctx, channel, data, nil); err != nil {
		d.logger.Error("failed to publish job",
			zap.String("channel", channel),
			zap.Error(err))
	}
}
