package sbus

import (
	"context"
	"errors"
	"testing"
)

func TestPeekLimitsClamp(t *testing.T) {
	limits := DefaultPeekLimits()

	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: 10},
		{in: -3, want: 10},
		{in: 37, want: 37},
		{in: 1, want: 1},
		{in: 1000, want: 1000},
		{in: 5000, want: 1000},
	}
	for _, tc := range tests {
		if got := limits.Clamp(tc.in); got != tc.want {
			t.Fatalf("Clamp(%d): expected %d, got %d", tc.in, tc.want, got)
		}
	}
}

func TestPeekLimitsClampCustomBounds(t *testing.T) {
	limits := PeekLimits{Default: 25, Min: 5, Max: 50}

	if got := limits.Clamp(0); got != 25 {
		t.Fatalf("expected default 25, got %d", got)
	}
	if got := limits.Clamp(2); got != 5 {
		t.Fatalf("expected min 5, got %d", got)
	}
	if got := limits.Clamp(500); got != 50 {
		t.Fatalf("expected max 50, got %d", got)
	}
}

type closeTrackingSession struct {
	Session
	closed   int
	closeErr error
}

func (s *closeTrackingSession) Close(context.Context) error {
	s.closed++
	return s.closeErr
}

func TestTestConnection(t *testing.T) {
	valid := Connection{ID: "c1", Name: "p", ConnectionString: testConnString}

	t.Run("dial succeeds", func(t *testing.T) {
		sess := &closeTrackingSession{}
		dialer := DialerFunc(func(ctx context.Context, conn Connection) (Session, error) {
			return sess, nil
		})
		if !TestConnection(context.Background(), nil, dialer, valid) {
			t.Fatal("expected true")
		}
		if sess.closed != 1 {
			t.Fatalf("expected session closed once, got %d", sess.closed)
		}
	})

	t.Run("dial fails", func(t *testing.T) {
		dialer := DialerFunc(func(ctx context.Context, conn Connection) (Session, error) {
			return nil, WrapError(KindConnectivity, "unreachable", errors.New("dial tcp: refused"))
		})
		if TestConnection(context.Background(), nil, dialer, valid) {
			t.Fatal("expected false")
		}
	})

	t.Run("close failure still reports valid", func(t *testing.T) {
		sess := &closeTrackingSession{closeErr: errors.New("link detach")}
		dialer := DialerFunc(func(ctx context.Context, conn Connection) (Session, error) {
			return sess, nil
		})
		if !TestConnection(context.Background(), nil, dialer, valid) {
			t.Fatal("expected true despite close failure")
		}
	})

	t.Run("invalid descriptor never dials", func(t *testing.T) {
		dialed := 0
		dialer := DialerFunc(func(ctx context.Context, conn Connection) (Session, error) {
			dialed++
			return &closeTrackingSession{}, nil
		})
		if TestConnection(context.Background(), nil, dialer, Connection{ID: "x", Name: "x"}) {
			t.Fatal("expected false")
		}
		if dialed != 0 {
			t.Fatalf("expected zero dials, got %d", dialed)
		}
	})
}

func TestKindOf(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindBroker {
		t.Fatalf("unclassified errors count as broker, got %q", got)
	}
	err := Errorf(KindNotFound, "queue %q does not exist", "orders")
	if got := KindOf(err); got != KindNotFound {
		t.Fatalf("expected not_found, got %q", got)
	}

	// Wrapping keeps the classification visible through the chain.
	wrapped := WrapError(KindConflict, "failed to create topic", errors.New("409: entity already exists"))
	var typed *Error
	if !errors.As(wrapped, &typed) || typed.Kind != KindConflict {
		t.Fatalf("expected conflict through errors.As, got %v", wrapped)
	}
	if got := wrapped.Error(); got != "failed to create topic: 409: entity already exists" {
		t.Fatalf("unexpected message: %q", got)
	}
}
