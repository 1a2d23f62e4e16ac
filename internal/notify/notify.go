// Package notify contains delivery sinks for price drop messages: Telegram
// chats, a Google Pub/Sub topic, the process log, and a fan-out combining
// several of them. Every sink satisfies checker.Sink.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Sink delivers one message to one chat.
type Sink interface {
	Deliver(ctx context.Context, chatID int64, msg string) error
}

// LogSink writes messages to a zerolog logger. It is the fallback sink when
// no chat transport is configured.
type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Deliver(_ context.Context, chatID int64, msg string) error {
	s.Log.Info().Int64("chat_id", chatID).Str("message", msg).Msg("notification")
	return nil
}

// Fanout delivers to every sink and joins their errors. A failing sink does
// not prevent delivery to the others.
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, chatID int64, msg string) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, chatID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
