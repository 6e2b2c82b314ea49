package sbus

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
)

func (s *azureSession) ListQueues(ctx context.Context) ([]QueueProperties, error) {
	// The broker pages entity listings; the pager is exhausted here so the
	// caller always sees the complete collection, in broker enumeration
	// order.
	out := []QueueProperties{}
	pager := s.admin.NewListQueuesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("failed to list queues", err)
		}
		for _, item := range page.Queues {
			out = append(out, queueFromAdmin(item.QueueName, item.QueueProperties))
		}
	}
	return out, nil
}

func (s *azureSession) GetQueue(ctx context.Context, name string) (QueueProperties, error) {
	if strings.TrimSpace(name) == "" {
		return QueueProperties{}, Errorf(KindValidation, "queueName is required")
	}
	resp, err := s.admin.GetQueue(ctx, name, nil)
	if err != nil {
		return QueueProperties{}, classify("failed to get queue", err)
	}
	if resp == nil {
		return QueueProperties{}, Errorf(KindNotFound, "queue %q does not exist", name)
	}
	props := queueFromAdmin(name, resp.QueueProperties)

	rt, err := s.admin.GetQueueRuntimeProperties(ctx, name, nil)
	if err != nil {
		return QueueProperties{}, classify("failed to get queue counters", err)
	}
	if rt != nil {
		props.MessageCount = int64Ptr(rt.TotalMessageCount)
		props.ActiveMessageCount = int64Ptr(int64(rt.ActiveMessageCount))
		props.DeadLetterMessageCount = int64Ptr(int64(rt.DeadLetterMessageCount))
		props.ScheduledMessageCount = int64Ptr(int64(rt.ScheduledMessageCount))
		props.TransferMessageCount = int64Ptr(int64(rt.TransferMessageCount))
		props.TransferDeadLetterMessageCount = int64Ptr(int64(rt.TransferDeadLetterMessageCount))
		props.SizeInBytes = int64Ptr(rt.SizeInBytes)
	}
	return props, nil
}

func (s *azureSession) CreateQueue(ctx context.Context, name string, overlay *QueueProperties) (QueueProperties, error) {
	if strings.TrimSpace(name) == "" {
		return QueueProperties{}, Errorf(KindValidation, "queueName is required")
	}
	resp, err := s.admin.CreateQueue(ctx, name, &admin.CreateQueueOptions{
		Properties: adminQueueProps(overlay),
	})
	if err != nil {
		return QueueProperties{}, classify("failed to create queue", err)
	}
	return queueFromAdmin(name, resp.QueueProperties), nil
}

// UpdateQueue applies overlay on top of the queue's current configuration;
// nil overlay fields keep their existing values.
func (s *azureSession) UpdateQueue(ctx context.Context, name string, overlay QueueProperties) (QueueProperties, error) {
	if strings.TrimSpace(name) == "" {
		return QueueProperties{}, Errorf(KindValidation, "queueName is required")
	}
	existing, err := s.admin.GetQueue(ctx, name, nil)
	if err != nil {
		return QueueProperties{}, classify("failed to get queue", err)
	}
	if existing == nil {
		return QueueProperties{}, Errorf(KindNotFound, "queue %q does not exist", name)
	}

	merged := existing.QueueProperties
	if p := adminQueueProps(&overlay); p != nil {
		if p.MaxSizeInMegabytes != nil {
			merged.MaxSizeInMegabytes = p.MaxSizeInMegabytes
		}
		if p.LockDuration != nil {
			merged.LockDuration = p.LockDuration
		}
		if p.MaxDeliveryCount != nil {
			merged.MaxDeliveryCount = p.MaxDeliveryCount
		}
		if p.DefaultMessageTimeToLive != nil {
			merged.DefaultMessageTimeToLive = p.DefaultMessageTimeToLive
		}
		if p.DeadLetteringOnMessageExpiration != nil {
			merged.DeadLetteringOnMessageExpiration = p.DeadLetteringOnMessageExpiration
		}
		if p.DuplicateDetectionHistoryTimeWindow != nil {
			merged.DuplicateDetectionHistoryTimeWindow = p.DuplicateDetectionHistoryTimeWindow
		}
		if p.EnableBatchedOperations != nil {
			merged.EnableBatchedOperations = p.EnableBatchedOperations
		}
	}

	resp, err := s.admin.UpdateQueue(ctx, name, merged, nil)
	if err != nil {
		return QueueProperties{}, classify("failed to update queue", err)
	}
	return queueFromAdmin(name, resp.QueueProperties), nil
}

func (s *azureSession) DeleteQueue(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(KindValidation, "queueName is required")
	}
	if _, err := s.admin.DeleteQueue(ctx, name, nil); err != nil {
		return classify("failed to delete queue", err)
	}
	return nil
}

func (s *azureSession) ListTopics(ctx context.Context) ([]TopicProperties, error) {
	out := []TopicProperties{}
	pager := s.admin.NewListTopicsPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("failed to list topics", err)
		}
		for _, item := range page.Topics {
			out = append(out, topicFromAdmin(item.TopicName, item.TopicProperties))
		}
	}
	return out, nil
}

func (s *azureSession) GetTopic(ctx context.Context, name string) (TopicProperties, error) {
	if strings.TrimSpace(name) == "" {
		return TopicProperties{}, Errorf(KindValidation, "topicName is required")
	}
	resp, err := s.admin.GetTopic(ctx, name, nil)
	if err != nil {
		return TopicProperties{}, classify("failed to get topic", err)
	}
	if resp == nil {
		return TopicProperties{}, Errorf(KindNotFound, "topic %q does not exist", name)
	}
	props := topicFromAdmin(name, resp.TopicProperties)

	rt, err := s.admin.GetTopicRuntimeProperties(ctx, name, nil)
	if err != nil {
		return TopicProperties{}, classify("failed to get topic counters", err)
	}
	if rt != nil {
		props.SizeInBytes = int64Ptr(rt.SizeInBytes)
		props.SubscriptionCount = int64Ptr(int64(rt.SubscriptionCount))
		props.ScheduledMessageCount = int64Ptr(int64(rt.ScheduledMessageCount))
	}
	return props, nil
}

func (s *azureSession) CreateTopic(ctx context.Context, name string, overlay *TopicProperties) (TopicProperties, error) {
	if strings.TrimSpace(name) == "" {
		return TopicProperties{}, Errorf(KindValidation, "topicName is required")
	}
	resp, err := s.admin.CreateTopic(ctx, name, &admin.CreateTopicOptions{
		Properties: adminTopicProps(overlay),
	})
	if err != nil {
		return TopicProperties{}, classify("failed to create topic", err)
	}
	return topicFromAdmin(name, resp.TopicProperties), nil
}

// UpdateTopic applies overlay on top of the topic's current configuration;
// nil overlay fields keep their existing values.
func (s *azureSession) UpdateTopic(ctx context.Context, name string, overlay TopicProperties) (TopicProperties, error) {
	if strings.TrimSpace(name) == "" {
		return TopicProperties{}, Errorf(KindValidation, "topicName is required")
	}
	existing, err := s.admin.GetTopic(ctx, name, nil)
	if err != nil {
		return TopicProperties{}, classify("failed to get topic", err)
	}
	if existing == nil {
		return TopicProperties{}, Errorf(KindNotFound, "topic %q does not exist", name)
	}

	merged := existing.TopicProperties
	if p := adminTopicProps(&overlay); p != nil {
		if p.MaxSizeInMegabytes != nil {
			merged.MaxSizeInMegabytes = p.MaxSizeInMegabytes
		}
		if p.DefaultMessageTimeToLive != nil {
			merged.DefaultMessageTimeToLive = p.DefaultMessageTimeToLive
		}
		if p.DuplicateDetectionHistoryTimeWindow != nil {
			merged.DuplicateDetectionHistoryTimeWindow = p.DuplicateDetectionHistoryTimeWindow
		}
		if p.EnableBatchedOperations != nil {
			merged.EnableBatchedOperations = p.EnableBatchedOperations
		}
	}

	resp, err := s.admin.UpdateTopic(ctx, name, merged, nil)
	if err != nil {
		return TopicProperties{}, classify("failed to update topic", err)
	}
	return topicFromAdmin(name, resp.TopicProperties), nil
}

func (s *azureSession) DeleteTopic(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(KindValidation, "topicName is required")
	}
	if _, err := s.admin.DeleteTopic(ctx, name, nil); err != nil {
		return classify("failed to delete topic", err)
	}
	return nil
}

func (s *azureSession) ListSubscriptions(ctx context.Context, topic string) ([]SubscriptionProperties, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, Errorf(KindValidation, "topicName is required")
	}
	// The broker answers an empty feed for a missing topic; resolve the
	// topic first so the caller gets not_found instead of an empty list.
	t, err := s.admin.GetTopic(ctx, topic, nil)
	if err != nil {
		return nil, classify("failed to get topic", err)
	}
	if t == nil {
		return nil, Errorf(KindNotFound, "topic %q does not exist", topic)
	}

	out := []SubscriptionProperties{}
	pager := s.admin.NewListSubscriptionsPager(topic, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("failed to list subscriptions", err)
		}
		for _, item := range page.Subscriptions {
			out = append(out, subscriptionFromAdmin(topic, item.SubscriptionName, item.SubscriptionProperties))
		}
	}
	return out, nil
}

func (s *azureSession) CreateSubscription(ctx context.Context, topic, subscription string, overlay *SubscriptionProperties) (SubscriptionProperties, error) {
	if strings.TrimSpace(topic) == "" || strings.TrimSpace(subscription) == "" {
		return SubscriptionProperties{}, Errorf(KindValidation, "topicName and subscriptionName are required")
	}
	resp, err := s.admin.CreateSubscription(ctx, topic, subscription, &admin.CreateSubscriptionOptions{
		Properties: adminSubscriptionProps(overlay),
	})
	if err != nil {
		return SubscriptionProperties{}, classify("failed to create subscription", err)
	}
	return subscriptionFromAdmin(topic, subscription, resp.SubscriptionProperties), nil
}

func queueFromAdmin(name string, p admin.QueueProperties) QueueProperties {
	return QueueProperties{
		Name:                                         name,
		MaxSizeInMegabytes:                           int32To64(p.MaxSizeInMegabytes),
		LockDurationInSeconds:                        isoDurationSeconds(p.LockDuration),
		MaxDeliveryCount:                             p.MaxDeliveryCount,
		DefaultMessageTimeToLiveInSeconds:            isoDurationSeconds(p.DefaultMessageTimeToLive),
		DeadLetteringOnMessageExpiration:             p.DeadLetteringOnMessageExpiration,
		DuplicateDetectionHistoryTimeWindowInSeconds: isoDurationSeconds(p.DuplicateDetectionHistoryTimeWindow),
		EnableBatchedOperations:                      p.EnableBatchedOperations,
		EnablePartitioning:                           p.EnablePartitioning,
		RequiresSession:                              p.RequiresSession,
		RequiresDuplicateDetection:                   p.RequiresDuplicateDetection,
	}
}

func adminQueueProps(overlay *QueueProperties) *admin.QueueProperties {
	if overlay == nil {
		return nil
	}
	return &admin.QueueProperties{
		MaxSizeInMegabytes:                  int64To32(overlay.MaxSizeInMegabytes),
		LockDuration:                        isoDurationFromSeconds(overlay.LockDurationInSeconds),
		MaxDeliveryCount:                    overlay.MaxDeliveryCount,
		DefaultMessageTimeToLive:            isoDurationFromSeconds(overlay.DefaultMessageTimeToLiveInSeconds),
		DeadLetteringOnMessageExpiration:    overlay.DeadLetteringOnMessageExpiration,
		DuplicateDetectionHistoryTimeWindow: isoDurationFromSeconds(overlay.DuplicateDetectionHistoryTimeWindowInSeconds),
		EnableBatchedOperations:             overlay.EnableBatchedOperations,
		EnablePartitioning:                  overlay.EnablePartitioning,
		RequiresSession:                     overlay.RequiresSession,
		RequiresDuplicateDetection:          overlay.RequiresDuplicateDetection,
	}
}

func topicFromAdmin(name string, p admin.TopicProperties) TopicProperties {
	return TopicProperties{
		Name:                              name,
		MaxSizeInMegabytes:                int32To64(p.MaxSizeInMegabytes),
		DefaultMessageTimeToLiveInSeconds: isoDurationSeconds(p.DefaultMessageTimeToLive),
		DuplicateDetectionHistoryTimeWindowInSeconds: isoDurationSeconds(p.DuplicateDetectionHistoryTimeWindow),
		EnableBatchedOperations:                      p.EnableBatchedOperations,
		EnablePartitioning:                           p.EnablePartitioning,
		RequiresDuplicateDetection:                   p.RequiresDuplicateDetection,
	}
}

func adminTopicProps(overlay *TopicProperties) *admin.TopicProperties {
	if overlay == nil {
		return nil
	}
	return &admin.TopicProperties{
		MaxSizeInMegabytes:                  int64To32(overlay.MaxSizeInMegabytes),
		DefaultMessageTimeToLive:            isoDurationFromSeconds(overlay.DefaultMessageTimeToLiveInSeconds),
		DuplicateDetectionHistoryTimeWindow: isoDurationFromSeconds(overlay.DuplicateDetectionHistoryTimeWindowInSeconds),
		EnableBatchedOperations:             overlay.EnableBatchedOperations,
		EnablePartitioning:                  overlay.EnablePartitioning,
		RequiresDuplicateDetection:          overlay.RequiresDuplicateDetection,
	}
}

func subscriptionFromAdmin(topic, name string, p admin.SubscriptionProperties) SubscriptionProperties {
	return SubscriptionProperties{
		TopicName:                         topic,
		SubscriptionName:                  name,
		MaxDeliveryCount:                  p.MaxDeliveryCount,
		LockDurationInSeconds:             isoDurationSeconds(p.LockDuration),
		DefaultMessageTimeToLiveInSeconds: isoDurationSeconds(p.DefaultMessageTimeToLive),
		DeadLetteringOnMessageExpiration:  p.DeadLetteringOnMessageExpiration,
		EnableBatchedOperations:           p.EnableBatchedOperations,
		RequiresSession:                   p.RequiresSession,
	}
}

func adminSubscriptionProps(overlay *SubscriptionProperties) *admin.SubscriptionProperties {
	if overlay == nil {
		return nil
	}
	return &admin.SubscriptionProperties{
		MaxDeliveryCount:                 overlay.MaxDeliveryCount,
		LockDuration:                     isoDurationFromSeconds(overlay.LockDurationInSeconds),
		DefaultMessageTimeToLive:         isoDurationFromSeconds(overlay.DefaultMessageTimeToLiveInSeconds),
		DeadLetteringOnMessageExpiration: overlay.DeadLetteringOnMessageExpiration,
		EnableBatchedOperations:          overlay.EnableBatchedOperations,
		RequiresSession:                  overlay.RequiresSession,
	}
}
