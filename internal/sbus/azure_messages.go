package sbus

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/go-amqp"
)

const (
	// peekPageSize is the broker's per-request peek limit; larger requests
	// are paged by following the last sequence number.
	peekPageSize = 32

	purgeBatchSize = 100
	purgeBatchWait = 5 * time.Second
)

// Peek reads up to count messages without side effects. It uses the
// broker's peek API explicitly: delivery counts, locks, and queue positions
// are untouched, unlike a receive-and-abandon pattern.
func (s *azureSession) Peek(ctx context.Context, addr EntityAddress, deadLetter bool, count int) ([]Message, error) {
	receiver, err := s.receiver(addr, deadLetter, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = receiver.Close(context.WithoutCancel(ctx)) }()

	out := []Message{}
	var from *int64
	for len(out) < count {
		n := count - len(out)
		if n > peekPageSize {
			n = peekPageSize
		}
		opts := &azservicebus.PeekMessagesOptions{}
		if from != nil {
			opts.FromSequenceNumber = from
		}
		msgs, err := receiver.PeekMessages(ctx, n, opts)
		if err != nil {
			return nil, classify("failed to peek messages", err)
		}
		if len(msgs) == 0 {
			break
		}
		for _, m := range msgs {
			out = append(out, messageFromReceived(m))
		}
		last := msgs[len(msgs)-1].SequenceNumber
		if last == nil {
			break
		}
		next := *last + 1
		from = &next
		if len(msgs) < n {
			break
		}
	}
	return out, nil
}

func (s *azureSession) Send(ctx context.Context, dest Destination, msg Message) error {
	sender, err := s.client.NewSender(dest.Entity(), nil)
	if err != nil {
		return classify("failed to create sender", err)
	}
	defer func() { _ = sender.Close(context.WithoutCancel(ctx)) }()

	if err := sender.SendMessage(ctx, messageToAzure(msg), nil); err != nil {
		// The broker signals oversized messages as a plain AMQP error; the
		// caller sent something invalid, so it belongs in the validation
		// class with the broker's text kept verbatim.
		if isMessageSizeError(err) {
			return WrapError(KindValidation, "failed to send message", err)
		}
		return classify("failed to send message", err)
	}
	return nil
}

// Purge drains the queue's main sub-queue, or its dead-letter sub-queue when
// deadLetter is set, using receive-and-delete batches. It returns the count
// of messages actually removed; purging an already-empty sub-queue is a
// successful no-op returning 0.
func (s *azureSession) Purge(ctx context.Context, queue string, deadLetter bool) (int, error) {
	if strings.TrimSpace(queue) == "" {
		return 0, Errorf(KindValidation, "queueName is required")
	}
	mode := azservicebus.ReceiveModeReceiveAndDelete
	receiver, err := s.receiver(QueueAddress(queue), deadLetter, &mode)
	if err != nil {
		return 0, err
	}
	defer func() { _ = receiver.Close(context.WithoutCancel(ctx)) }()

	purged := 0
	for {
		batchCtx, cancel := context.WithTimeout(ctx, purgeBatchWait)
		msgs, err := receiver.ReceiveMessages(batchCtx, purgeBatchSize, nil)
		cancel()
		if err != nil {
			// A timed-out batch with nothing received means the sub-queue
			// is drained; a cancelled parent context is the caller's abort.
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break
			}
			if ctx.Err() != nil {
				return purged, classify("purge interrupted", ctx.Err())
			}
			return purged, classify("failed to purge queue", err)
		}
		if len(msgs) == 0 {
			break
		}
		purged += len(msgs)
	}
	return purged, nil
}

// receiver builds the receiver for an entity address, optionally targeting
// the dead-letter sub-queue or overriding the receive mode.
func (s *azureSession) receiver(addr EntityAddress, deadLetter bool, mode *azservicebus.ReceiveMode) (*azservicebus.Receiver, error) {
	opts := &azservicebus.ReceiverOptions{}
	if deadLetter {
		opts.SubQueue = azservicebus.SubQueueDeadLetter
	}
	if mode != nil {
		opts.ReceiveMode = *mode
	}

	var (
		receiver *azservicebus.Receiver
		err      error
	)
	if addr.IsQueue() {
		receiver, err = s.client.NewReceiverForQueue(addr.Queue(), opts)
	} else {
		receiver, err = s.client.NewReceiverForSubscription(addr.Topic(), addr.Subscription(), opts)
	}
	if err != nil {
		return nil, classify("failed to open receiver for "+addr.Path(), err)
	}
	return receiver, nil
}

// messageToAzure converts a caller-constructed message for sending. The
// body is passed through as opaque bytes.
func messageToAzure(msg Message) *azservicebus.Message {
	out := &azservicebus.Message{
		Body: []byte(msg.Body),
	}
	if msg.MessageID != "" {
		out.MessageID = &msg.MessageID
	}
	if msg.ContentType != "" {
		out.ContentType = &msg.ContentType
	}
	if msg.CorrelationID != "" {
		out.CorrelationID = &msg.CorrelationID
	}
	if msg.SessionID != "" {
		out.SessionID = &msg.SessionID
	}
	if msg.ReplyTo != "" {
		out.ReplyTo = &msg.ReplyTo
	}
	if msg.ReplyToSessionID != "" {
		out.ReplyToSessionID = &msg.ReplyToSessionID
	}
	if msg.Subject != "" {
		out.Subject = &msg.Subject
	}
	if msg.To != "" {
		out.To = &msg.To
	}
	if msg.TimeToLiveSeconds != nil && *msg.TimeToLiveSeconds > 0 {
		ttl := time.Duration(*msg.TimeToLiveSeconds) * time.Second
		out.TimeToLive = &ttl
	}
	if len(msg.ApplicationProperties) > 0 {
		out.ApplicationProperties = make(map[string]any, len(msg.ApplicationProperties))
		for k, v := range msg.ApplicationProperties {
			out.ApplicationProperties[k] = v.Native()
		}
	}
	return out
}

// messageFromReceived snapshots a peeked message. Bodies that are valid
// JSON pass through untouched; anything else is wrapped as a JSON string.
func messageFromReceived(m *azservicebus.ReceivedMessage) Message {
	out := Message{
		MessageID:                  m.MessageID,
		EnqueuedTimeUTC:            m.EnqueuedTime,
		LockedUntilUTC:             m.LockedUntil,
		SequenceNumber:             m.SequenceNumber,
		DeadLetterReason:           m.DeadLetterReason,
		DeadLetterErrorDescription: m.DeadLetterErrorDescription,
	}

	dc := m.DeliveryCount
	out.DeliveryCount = &dc

	if len(m.Body) > 0 {
		if json.Valid(m.Body) {
			out.Body = json.RawMessage(m.Body)
		} else if encoded, err := json.Marshal(string(m.Body)); err == nil {
			out.Body = encoded
		}
	}

	if m.ContentType != nil {
		out.ContentType = *m.ContentType
	}
	if m.CorrelationID != nil {
		out.CorrelationID = *m.CorrelationID
	}
	if m.SessionID != nil {
		out.SessionID = *m.SessionID
	}
	if m.ReplyTo != nil {
		out.ReplyTo = *m.ReplyTo
	}
	if m.ReplyToSessionID != nil {
		out.ReplyToSessionID = *m.ReplyToSessionID
	}
	if m.Subject != nil {
		out.Subject = *m.Subject
	}
	if m.To != nil {
		out.To = *m.To
	}
	if m.TimeToLive != nil {
		secs := int64(m.TimeToLive.Seconds())
		out.TimeToLiveSeconds = &secs
	}

	if len(m.ApplicationProperties) > 0 {
		props := make(map[string]Scalar, len(m.ApplicationProperties))
		for k, v := range m.ApplicationProperties {
			if scalar, ok := ScalarFromNative(v); ok {
				props[k] = scalar
			}
		}
		if len(props) > 0 {
			out.ApplicationProperties = props
		}
	}
	return out
}

// isMessageSizeError detects the broker rejecting an oversized message. The
// AMQP condition is authoritative; the text match covers SDK paths that
// flatten the condition into a plain error string.
func isMessageSizeError(err error) bool {
	if err == nil {
		return false
	}
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) && amqpErr.Condition == amqp.ErrCondMessageSizeExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "size") && (strings.Contains(msg, "exceed") || strings.Contains(msg, "larger than"))
}
