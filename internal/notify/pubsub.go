package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub/v2"
	pubsubpb "cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Event is the JSON payload published for every delivered message.
type Event struct {
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// Publisher is the subset of *pubsub.Publisher used by PubSub.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// PubSub publishes notifications to a Google Cloud Pub/Sub topic so other
// services (mail, push, webhooks) can fan them out further.
type PubSub struct {
	client    *pubsub.Client
	publisher Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewPubSub connects to projectID and verifies that topicID exists.
func NewPubSub(ctx context.Context, projectID, topicID string, log zerolog.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	topicPath := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	if _, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topicPath}); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to get topic %s", topicID)
	}

	log.Info().Str("project_id", projectID).Str("topic_id", topicID).Msg("pubsub sink initialized")
	return &PubSub{
		client:    client,
		publisher: client.Publisher(topicID),
		log:       log,
		now:       time.Now,
	}, nil
}

// NewPubSubWithPublisher builds a sink around an existing publisher.
func NewPubSubWithPublisher(p Publisher, log zerolog.Logger) *PubSub {
	return &PubSub{publisher: p, log: log, now: time.Now}
}

// Deliver publishes the message and waits for the server acknowledgement.
func (p *PubSub) Deliver(ctx context.Context, chatID int64, msg string) error {
	data, err := json.Marshal(Event{ChatID: chatID, Text: msg, SentAt: p.now().UTC()})
	if err != nil {
		return errors.WithStack(err)
	}
	res := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"chat_id": strconv.FormatInt(chatID, 10), "kind": "price_drop"},
	})
	serverID, err := res.Get(ctx)
	if err != nil {
		return errors.Wrapf(err, "publish notification for chat %d", chatID)
	}
	p.log.Debug().Int64("chat_id", chatID).Str("server_id", serverID).Msg("notification published")
	return nil
}

// Close flushes pending messages and releases client resources.
func (p *PubSub) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		return errors.WithStack(p.client.Close())
	}
	return nil
}
