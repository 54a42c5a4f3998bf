// Package pubsub implements a Google Cloud Pub/Sub publisher for article events.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/article-harvester/internal/crawler"
)

type sendFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher wraps a Pub/Sub topic publisher.
type Publisher struct {
	send sendFunc
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{send: func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return publisher.Publish(ctx, msg).Get(ctx)
	}}
}

// Publish marshals the payload to JSON and publishes it. The topic is fixed
// by the underlying publisher; article events also carry url, category and
// event attributes for subscription filters.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.send == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	msg, err := buildMessage(payload)
	if err != nil {
		return "", err
	}
	id, err := p.send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

func buildMessage(payload any) (*pubsub.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	if event, ok := payload.(crawler.ArticleEvent); ok {
		msg.Attributes["url"] = event.URL
		msg.Attributes["event"] = event.Kind()
		if category := crawler.StringValue(event.Category); category != "" {
			msg.Attributes["category"] = category
		}
	}
	return msg, nil
}
