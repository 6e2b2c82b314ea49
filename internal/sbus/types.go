// Package sbus wraps the Azure Service Bus data and admin planes behind a
// request-scoped Session. A session is dialed from a caller-supplied
// connection descriptor, serves exactly one logical operation, and is closed
// unconditionally afterwards; no state is shared across requests.
package sbus

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Connection is the descriptor identifying a Service Bus namespace and how
// to authenticate against it. Exactly one auth variant must be resolvable:
// an opaque connection string, or an AAD triple (namespace, tenantId,
// clientId). The gateway treats a descriptor as immutable and never
// persists it.
type Connection struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ConnectionString string `json:"connectionString,omitempty"`
	Namespace        string `json:"namespace,omitempty"`
	UseAzureAD       bool   `json:"useAzureAD,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	ClientID         string `json:"clientId,omitempty"`
	CreatedAt        int64  `json:"createdAt,omitempty"`
	UpdatedAt        int64  `json:"updatedAt,omitempty"`
}

// QueueProperties is a point-in-time snapshot of a queue's broker-reported
// configuration and counters. Nil fields were not reported (or, when used as
// a creation/update overlay, take broker defaults).
type QueueProperties struct {
	Name                                          string `json:"name"`
	MaxSizeInMegabytes                            *int64 `json:"maxSizeInMegabytes,omitempty"`
	LockDurationInSeconds                         *int64 `json:"lockDurationInSeconds,omitempty"`
	MaxDeliveryCount                              *int32 `json:"maxDeliveryCount,omitempty"`
	DefaultMessageTimeToLiveInSeconds             *int64 `json:"defaultMessageTimeToLiveInSeconds,omitempty"`
	DeadLetteringOnMessageExpiration              *bool  `json:"deadLetteringOnMessageExpiration,omitempty"`
	DuplicateDetectionHistoryTimeWindowInSeconds  *int64 `json:"duplicateDetectionHistoryTimeWindowInSeconds,omitempty"`
	EnableBatchedOperations                       *bool  `json:"enableBatchedOperations,omitempty"`
	EnablePartitioning                            *bool  `json:"enablePartitioning,omitempty"`
	RequiresSession                               *bool  `json:"requiresSession,omitempty"`
	RequiresDuplicateDetection                    *bool  `json:"requiresDuplicateDetection,omitempty"`
	MessageCount                                  *int64 `json:"messageCount,omitempty"`
	ActiveMessageCount                            *int64 `json:"activeMessageCount,omitempty"`
	DeadLetterMessageCount                        *int64 `json:"deadLetterMessageCount,omitempty"`
	ScheduledMessageCount                         *int64 `json:"scheduledMessageCount,omitempty"`
	TransferMessageCount                          *int64 `json:"transferMessageCount,omitempty"`
	TransferDeadLetterMessageCount                *int64 `json:"transferDeadLetterMessageCount,omitempty"`
	SizeInBytes                                   *int64 `json:"sizeInBytes,omitempty"`
}

// TopicProperties mirrors QueueProperties for topics.
type TopicProperties struct {
	Name                                         string `json:"name"`
	MaxSizeInMegabytes                           *int64 `json:"maxSizeInMegabytes,omitempty"`
	DefaultMessageTimeToLiveInSeconds            *int64 `json:"defaultMessageTimeToLiveInSeconds,omitempty"`
	DuplicateDetectionHistoryTimeWindowInSeconds *int64 `json:"duplicateDetectionHistoryTimeWindowInSeconds,omitempty"`
	EnableBatchedOperations                      *bool  `json:"enableBatchedOperations,omitempty"`
	EnablePartitioning                           *bool  `json:"enablePartitioning,omitempty"`
	RequiresDuplicateDetection                   *bool  `json:"requiresDuplicateDetection,omitempty"`
	SizeInBytes                                  *int64 `json:"sizeInBytes,omitempty"`
	SubscriptionCount                            *int64 `json:"subscriptionCount,omitempty"`
	ScheduledMessageCount                        *int64 `json:"scheduledMessageCount,omitempty"`
}

// SubscriptionProperties carries its owning topic name alongside the
// subscription's own name.
type SubscriptionProperties struct {
	TopicName                         string `json:"topicName"`
	SubscriptionName                  string `json:"subscriptionName"`
	MaxDeliveryCount                  *int32 `json:"maxDeliveryCount,omitempty"`
	LockDurationInSeconds             *int64 `json:"lockDurationInSeconds,omitempty"`
	DefaultMessageTimeToLiveInSeconds *int64 `json:"defaultMessageTimeToLiveInSeconds,omitempty"`
	DeadLetteringOnMessageExpiration  *bool  `json:"deadLetteringOnMessageExpiration,omitempty"`
	EnableBatchedOperations           *bool  `json:"enableBatchedOperations,omitempty"`
	RequiresSession                   *bool  `json:"requiresSession,omitempty"`
	MessageCount                      *int64 `json:"messageCount,omitempty"`
	ActiveMessageCount                *int64 `json:"activeMessageCount,omitempty"`
	DeadLetterMessageCount            *int64 `json:"deadLetterMessageCount,omitempty"`
	TransferMessageCount              *int64 `json:"transferMessageCount,omitempty"`
	TransferDeadLetterMessageCount    *int64 `json:"transferDeadLetterMessageCount,omitempty"`
}

// Message is one broker message. Body is an opaque payload: the gateway
// round-trips it without interpretation. Broker-assigned fields
// (deliveryCount, enqueuedTimeUtc, lockedUntilUtc, sequenceNumber, the
// dead-letter pair) are only present on retrieved messages.
type Message struct {
	Body                  json.RawMessage   `json:"body"`
	MessageID             string            `json:"messageId,omitempty"`
	ContentType           string            `json:"contentType,omitempty"`
	CorrelationID         string            `json:"correlationId,omitempty"`
	SessionID             string            `json:"sessionId,omitempty"`
	ReplyTo               string            `json:"replyTo,omitempty"`
	ReplyToSessionID      string            `json:"replyToSessionId,omitempty"`
	Subject               string            `json:"subject,omitempty"`
	TimeToLiveSeconds     *int64            `json:"timeToLive,omitempty"`
	To                    string            `json:"to,omitempty"`
	ApplicationProperties map[string]Scalar `json:"applicationProperties,omitempty"`

	DeliveryCount              *uint32    `json:"deliveryCount,omitempty"`
	EnqueuedTimeUTC            *time.Time `json:"enqueuedTimeUtc,omitempty"`
	LockedUntilUTC             *time.Time `json:"lockedUntilUtc,omitempty"`
	SequenceNumber             *int64     `json:"sequenceNumber,omitempty"`
	DeadLetterReason           *string    `json:"deadLetterReason,omitempty"`
	DeadLetterErrorDescription *string    `json:"deadLetterErrorDescription,omitempty"`
}

// ScalarKind enumerates the closed set of application-property value types.
type ScalarKind string

const (
	ScalarString ScalarKind = "string"
	ScalarNumber ScalarKind = "number"
	ScalarBool   ScalarKind = "bool"
	ScalarBinary ScalarKind = "binary"
)

// Scalar is a tagged variant over {string, number, boolean, binary}.
// Application properties are passed through the gateway untouched, but their
// value space is closed: anything outside these four kinds is rejected at
// the boundary instead of being smuggled through as a dynamic value.
type Scalar struct {
	kind ScalarKind
	str  string
	num  float64
	b    bool
	bin  []byte
}

func StringScalar(v string) Scalar  { return Scalar{kind: ScalarString, str: v} }
func NumberScalar(v float64) Scalar { return Scalar{kind: ScalarNumber, num: v} }
func BoolScalar(v bool) Scalar      { return Scalar{kind: ScalarBool, b: v} }
func BinaryScalar(v []byte) Scalar  { return Scalar{kind: ScalarBinary, bin: v} }

func (s Scalar) Kind() ScalarKind { return s.kind }

// Native returns the scalar as the value type the broker SDK accepts.
func (s Scalar) Native() any {
	switch s.kind {
	case ScalarString:
		return s.str
	case ScalarNumber:
		return s.num
	case ScalarBool:
		return s.b
	case ScalarBinary:
		return s.bin
	default:
		return nil
	}
}

// ScalarFromNative converts a broker-reported property value into the closed
// variant. Integer widths collapse onto number; unsupported types report
// false.
func ScalarFromNative(v any) (Scalar, bool) {
	switch t := v.(type) {
	case string:
		return StringScalar(t), true
	case bool:
		return BoolScalar(t), true
	case float64:
		return NumberScalar(t), true
	case float32:
		return NumberScalar(float64(t)), true
	case int:
		return NumberScalar(float64(t)), true
	case int32:
		return NumberScalar(float64(t)), true
	case int64:
		return NumberScalar(float64(t)), true
	case uint32:
		return NumberScalar(float64(t)), true
	case uint64:
		return NumberScalar(float64(t)), true
	case []byte:
		return BinaryScalar(t), true
	default:
		return Scalar{}, false
	}
}

type binaryScalarJSON struct {
	Binary string `json:"binary"`
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case ScalarString:
		return json.Marshal(s.str)
	case ScalarNumber:
		return json.Marshal(s.num)
	case ScalarBool:
		return json.Marshal(s.b)
	case ScalarBinary:
		return json.Marshal(binaryScalarJSON{Binary: base64.StdEncoding.EncodeToString(s.bin)})
	default:
		return nil, fmt.Errorf("scalar has no kind")
	}
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*s = StringScalar(t)
		return nil
	case float64:
		*s = NumberScalar(t)
		return nil
	case bool:
		*s = BoolScalar(t)
		return nil
	case map[string]any:
		var bin binaryScalarJSON
		if err := json.Unmarshal(data, &bin); err != nil || bin.Binary == "" {
			return fmt.Errorf("application property objects must be {\"binary\": \"<base64>\"}")
		}
		raw, err := base64.StdEncoding.DecodeString(bin.Binary)
		if err != nil {
			return fmt.Errorf("invalid base64 in binary application property: %w", err)
		}
		*s = BinaryScalar(raw)
		return nil
	default:
		return fmt.Errorf("application property values must be string, number, boolean, or binary")
	}
}
