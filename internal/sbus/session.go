package sbus

import (
	"context"
	"log/slog"
)

// Session is a live, request-scoped handle onto one namespace. Every method
// is a single broker round-trip (or one internally-paginated read); a
// session serves exactly one logical operation and is then closed. There is
// no pooling: a wedged connection can only hurt the request that opened it.
type Session interface {
	// Admin plane.
	ListQueues(ctx context.Context) ([]QueueProperties, error)
	GetQueue(ctx context.Context, name string) (QueueProperties, error)
	CreateQueue(ctx context.Context, name string, overlay *QueueProperties) (QueueProperties, error)
	UpdateQueue(ctx context.Context, name string, overlay QueueProperties) (QueueProperties, error)
	DeleteQueue(ctx context.Context, name string) error
	ListTopics(ctx context.Context) ([]TopicProperties, error)
	GetTopic(ctx context.Context, name string) (TopicProperties, error)
	CreateTopic(ctx context.Context, name string, overlay *TopicProperties) (TopicProperties, error)
	UpdateTopic(ctx context.Context, name string, overlay TopicProperties) (TopicProperties, error)
	DeleteTopic(ctx context.Context, name string) error
	ListSubscriptions(ctx context.Context, topic string) ([]SubscriptionProperties, error)
	CreateSubscription(ctx context.Context, topic, subscription string, overlay *SubscriptionProperties) (SubscriptionProperties, error)

	// Data plane. Peek is strictly non-destructive: it never advances
	// delivery counts, acquires locks, or moves messages.
	Peek(ctx context.Context, addr EntityAddress, deadLetter bool, count int) ([]Message, error)
	Send(ctx context.Context, dest Destination, msg Message) error
	Purge(ctx context.Context, queue string, deadLetter bool) (int, error)

	// Close releases the underlying connection. Idempotent; failures are
	// logged by the caller, never surfaced, because the triggering
	// operation's result is already decided.
	Close(ctx context.Context) error
}

// Dialer opens a session from a validated descriptor.
type Dialer interface {
	Dial(ctx context.Context, conn Connection) (Session, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, conn Connection) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, conn Connection) (Session, error) {
	return f(ctx, conn)
}

// TestConnection reports whether a descriptor can open a session. It opens
// and immediately discards one; the contract is "report validity, not
// diagnostics", so every failure mode collapses to false and no error ever
// escapes.
func TestConnection(ctx context.Context, logger *slog.Logger, dialer Dialer, conn Connection) bool {
	if err := conn.Validate(); err != nil {
		return false
	}
	sess, err := dialer.Dial(ctx, conn)
	if err != nil {
		if logger != nil {
			logger.Debug("test_connection_failed", slog.Any("err", err))
		}
		return false
	}
	CloseSession(ctx, logger, sess)
	return true
}

// CloseSession releases sess, demoting any close failure to a log line. The
// primary operation's outcome is already fixed by the time close runs.
func CloseSession(ctx context.Context, logger *slog.Logger, sess Session) {
	if sess == nil {
		return
	}
	if err := sess.Close(ctx); err != nil && logger != nil {
		logger.Warn("session_close_failed", slog.Any("err", err))
	}
}

// PeekLimits bounds the effective peek count. The values are policy, not
// broker constraints, and are configurable; the clamp behavior itself
// (silently correcting out-of-range input, never rejecting it) is fixed.
type PeekLimits struct {
	Default int
	Min     int
	Max     int
}

// DefaultPeekLimits matches the observed defaults: 10 when unspecified,
// clamped into [1, 1000].
func DefaultPeekLimits() PeekLimits {
	return PeekLimits{Default: 10, Min: 1, Max: 1000}
}

// Clamp resolves a caller-supplied count against the limits. Zero and
// negative counts are treated as unspecified.
func (l PeekLimits) Clamp(count int) int {
	if count <= 0 {
		count = l.Default
	}
	if count < l.Min {
		return l.Min
	}
	if count > l.Max {
		return l.Max
	}
	return count
}
