// Package jobs carries the fire-and-forget side jobs the API hands
// off after a write commits: thumbnail generation and transactional
// email. Submitting a job never fails the triggering request; consumption
// happens in the worker process.
package jobs

import "context"

// Queue channels.
const (
	ChannelThumbnails = "thumbnails"
	ChannelEmails     = "emails"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Queue defines the broker-agnostic operations used by the app.
type Queue interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// ThumbnailJob asks the worker to render thumbnails for a user's
// profile image.
type ThumbnailJob struct {
	UserID   int    `json:"user_id"`
	ImageKey string `json:"image_key"`
}

// EmailJob asks the worker to deliver a transactional email.
type EmailJob struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
