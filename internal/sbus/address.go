package sbus

import "strings"

// EntityAddress identifies the entity a message operation targets. It has
// exactly two shapes: a queue, or a topic+subscription pair. Construct one
// through ResolveAddress so the precedence and completeness rules live in a
// single place.
type EntityAddress struct {
	queue        string
	topic        string
	subscription string
}

// QueueAddress addresses a queue's sub-queues.
func QueueAddress(queue string) EntityAddress {
	return EntityAddress{queue: queue}
}

// SubscriptionAddress addresses a subscription's sub-queues.
func SubscriptionAddress(topic, subscription string) EntityAddress {
	return EntityAddress{topic: topic, subscription: subscription}
}

// IsQueue reports whether the address targets a queue; otherwise it targets
// a topic+subscription pair.
func (a EntityAddress) IsQueue() bool { return a.queue != "" }

func (a EntityAddress) Queue() string        { return a.queue }
func (a EntityAddress) Topic() string        { return a.topic }
func (a EntityAddress) Subscription() string { return a.subscription }

// Path renders the broker entity path ("orders" or
// "orders-events/Subscriptions/audit").
func (a EntityAddress) Path() string {
	if a.IsQueue() {
		return a.queue
	}
	return a.topic + "/Subscriptions/" + a.subscription
}

// ResolveAddress applies the shared addressing rule: a queue name, when
// present, takes precedence as the operation target; otherwise topic and
// subscription are required together. Supplying neither form, or half of
// the pair, is a validation failure detected before any network call.
func ResolveAddress(queue, topic, subscription string) (EntityAddress, error) {
	queue = strings.TrimSpace(queue)
	topic = strings.TrimSpace(topic)
	subscription = strings.TrimSpace(subscription)

	if queue != "" {
		return QueueAddress(queue), nil
	}
	if topic != "" && subscription != "" {
		return SubscriptionAddress(topic, subscription), nil
	}
	if topic != "" || subscription != "" {
		return EntityAddress{}, Errorf(KindValidation, "topicName and subscriptionName are required together")
	}
	return EntityAddress{}, Errorf(KindValidation, "either queueName or topicName and subscriptionName must be provided")
}

// Destination identifies where a message is sent: a queue or a topic.
type Destination struct {
	queue string
	topic string
}

func QueueDestination(queue string) Destination { return Destination{queue: queue} }
func TopicDestination(topic string) Destination { return Destination{topic: topic} }

func (d Destination) IsQueue() bool { return d.queue != "" }

// Entity returns the queue or topic name the sender attaches to.
func (d Destination) Entity() string {
	if d.queue != "" {
		return d.queue
	}
	return d.topic
}

// ResolveDestination mirrors ResolveAddress for send operations, where the
// second addressing form is a bare topic.
func ResolveDestination(queue, topic string) (Destination, error) {
	queue = strings.TrimSpace(queue)
	topic = strings.TrimSpace(topic)

	if queue != "" {
		return QueueDestination(queue), nil
	}
	if topic != "" {
		return TopicDestination(topic), nil
	}
	return Destination{}, Errorf(KindValidation, "either queueName or topicName must be provided")
}
