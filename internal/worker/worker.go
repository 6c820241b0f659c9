// Package worker runs the side-job consumers: thumbnail generation
// and transactional email delivery. It is started as a separate
// process so slow jobs never compete with request handling.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/jobs"
	"github.com/vitapersonal/authserver/internal/mail"
	"github.com/vitapersonal/authserver/internal/storage"
)

// Worker owns the queue subscriptions for all side-job channels.
type Worker struct {
	queue      jobs.Queue
	thumbnails *jobs.ThumbnailWorker
	emails     *jobs.EmailWorker
	logger     *zap.Logger
}

// New builds a Worker from configuration: broker, object storage, and
// SMTP sender.
func New(ctx context.Context, cfg config.Config) (*Worker, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	var queue jobs.Queue
	switch cfg.Queue.Backend {
	case "pubsub":
		queue, err = jobs.NewPubSubQueue(ctx, cfg.PubSub)
	case "rabbitmq":
		queue, err = jobs.NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		err = fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
	if err != nil {
		return nil, err
	}

	var images *storage.ImageStore
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		images = storage.NewImageStore(client)
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		images = storage.NewImageStore(client)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	sender := mail.NewSMTPSender(cfg.SMTP)

	return &Worker{
		queue:      queue,
		thumbnails: jobs.NewThumbnailWorker(images, logger),
		emails:     jobs.NewEmailWorker(sender, logger),
		logger:     logger,
	}, nil
}

// Run subscribes both consumers and blocks until the context is
// cancelled or a subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		_ = w.queue.Close()
		_ = w.logger.Sync()
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.thumbnails.Run(ctx, w.queue)
	}()
	go func() {
		errCh <- w.emails.Run(ctx, w.queue)
	}()

	w.logger.Info("worker started",
		zap.String("channels", jobs.ChannelThumbnails+","+jobs.ChannelEmails))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}
