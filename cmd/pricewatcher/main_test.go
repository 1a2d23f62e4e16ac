package main

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tbourn/go-price-watcher/internal/config"
	"github.com/tbourn/go-price-watcher/internal/notify"
)

type nopSender struct{}

func (nopSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) { return tgbotapi.Message{}, nil }

func TestBuildSink(t *testing.T) {
	sink, closeFn, err := buildSink(context.Background(), config.Config{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(notify.LogSink); !ok {
		t.Fatalf("expected log sink, got %T", sink)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sink, _, err = buildSink(context.Background(), config.Config{}, nopSender{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(*notify.Telegram); !ok {
		t.Fatalf("expected telegram sink, got %T", sink)
	}
}
