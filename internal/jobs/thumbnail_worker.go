package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/internal/storage"
)

// Thumbnail aliases and their square pixel sizes.
var thumbnailAliases = map[string]int{
	"mini": 50,
	"100":  100,
}

// ThumbnailWorker renders square thumbnail crops for uploaded profile
// images and stores them next to the originals.
type ThumbnailWorker struct {
	images *storage.ImageStore
	logger *zap.Logger
}

func NewThumbnailWorker(images *storage.ImageStore, logger *zap.Logger) *ThumbnailWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThumbnailWorker{images: images, logger: logger}
}

// Run consumes thumbnail jobs until ctx is done. A failed job is
// logged and acked; thumbnails are best-effort and a later upload
// regenerates them.
func (w *ThumbnailWorker) Run(ctx context.Context, queue Queue) error {
	return queue.Subscribe(ctx, ChannelThumbnails, func(ctx context.Context, msg Message) error {
		var job ThumbnailJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			w.logger.Error("invalid thumbnail job payload", zap.Error(err))
			return nil
		}

		if err := w.generate(ctx, job); err != nil {
			w.logger.Error("thumbnail generation failed",
				zap.Int("user_id", job.UserID),
				zap.String("image_key", job.ImageKey),
				zap.Error(err))
		}
		return nil
	})
}

func (w *ThumbnailWorker) generate(ctx context.Context, job ThumbnailJob) error {
	reader, err := w.images.Get(ctx, job.ImageKey)
	if err != nil {
		return fmt.Errorf("fetch original: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	for alias, size := range thumbnailAliases {
		thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
			return fmt.Errorf("encode %s thumbnail: %w", alias, err)
		}

		key := storage.ThumbnailKey(job.ImageKey, alias)
		if err := w.images.Put(ctx, key, &buf, int64(buf.Len()), "image/jpeg"); err != nil {
			return fmt.Errorf("store %s thumbnail: %w", alias, err)
		}
	}
	return nil
}
