package announce

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/zap"

	"github.com/cinewatch/showtime-alerts/internal/logging"
)

// PubSubProvider broadcasts notification ids on a Google Cloud Pub/Sub topic.
type PubSubProvider struct {
	Client *pubsub.Client
	Topic  *pubsubpb.Topic
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// NewPubSubProvider creates a new Pub/Sub client and gets a handle to the
// specified topic. It authenticates using Google Cloud's Application
// Default Credentials and fails fast when the topic is missing or inactive.
func NewPubSubProvider(ctx context.Context, projectID, topicID string) (*PubSubProvider, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	request := &pubsubpb.GetTopicRequest{
		Topic: fullTopicName(projectID, topicID),
	}
	topic, err := client.TopicAdminClient.GetTopic(ctx, request)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic retrieval failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("failed to get pubsub topic '%s': %w", topicID, err)
	}
	if topic.State != pubsubpb.Topic_ACTIVE {
		if closeErr := client.Close(); closeErr != nil {
			logging.L.Warn("Failed to close pubsub client after topic state check", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic '%s' is not active in project '%s'", topicID, projectID)
	}

	return &PubSubProvider{
		Client: client,
		Topic:  topic,
	}, nil
}

// Announce publishes the notification id to the topic. The actual send is
// asynchronous; the Pub/Sub client handles batching, retries, and
// concurrency in the background.
func (p *PubSubProvider) Announce(ctx context.Context, notificationID, runID string) error {
	if p == nil || p.Client == nil {
		return fmt.Errorf("pubsub announcer is not configured")
	}
	msg := &pubsub.Message{
		Data: []byte(notificationID),
	}
	if runID != "" {
		msg.Attributes = map[string]string{"run_id": runID}
	}

	publisher := p.Client.Publisher(p.Topic.Name)
	publisher.Publish(ctx, msg)
	return nil
}

// Close stops the topic's publisher and closes the underlying client connection.
func (p *PubSubProvider) Close() error {
	if err := p.Client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
