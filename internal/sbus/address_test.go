package sbus

import "testing"

func TestResolveAddress(t *testing.T) {
	tests := []struct {
		name         string
		queue        string
		topic        string
		subscription string
		wantQueue    bool
		wantPath     string
		wantErr      bool
	}{
		{
			name:      "queue only",
			queue:     "orders",
			wantQueue: true,
			wantPath:  "orders",
		},
		{
			name:         "topic and subscription",
			topic:        "orders-events",
			subscription: "audit",
			wantPath:     "orders-events/Subscriptions/audit",
		},
		{
			name:         "queue takes precedence over a complete pair",
			queue:        "orders",
			topic:        "orders-events",
			subscription: "audit",
			wantQueue:    true,
			wantPath:     "orders",
		},
		{
			name:    "topic without subscription",
			topic:   "orders-events",
			wantErr: true,
		},
		{
			name:         "subscription without topic",
			subscription: "audit",
			wantErr:      true,
		},
		{
			name:    "nothing supplied",
			wantErr: true,
		},
		{
			name:      "whitespace is not an address",
			queue:     "   ",
			topic:     "t",
			wantQueue: false,
			wantErr:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ResolveAddress(tc.queue, tc.topic, tc.subscription)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", addr)
				}
				if !IsKind(err, KindValidation) {
					t.Fatalf("expected validation kind, got %q", KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if addr.IsQueue() != tc.wantQueue {
				t.Fatalf("IsQueue: expected %v, got %v", tc.wantQueue, addr.IsQueue())
			}
			if addr.Path() != tc.wantPath {
				t.Fatalf("Path: expected %q, got %q", tc.wantPath, addr.Path())
			}
		})
	}
}

func TestResolveDestination(t *testing.T) {
	dest, err := ResolveDestination("orders", "")
	if err != nil || !dest.IsQueue() || dest.Entity() != "orders" {
		t.Fatalf("queue destination: %+v err=%v", dest, err)
	}

	dest, err = ResolveDestination("", "orders-events")
	if err != nil || dest.IsQueue() || dest.Entity() != "orders-events" {
		t.Fatalf("topic destination: %+v err=%v", dest, err)
	}

	// Queue precedence mirrors ResolveAddress.
	dest, err = ResolveDestination("orders", "orders-events")
	if err != nil || !dest.IsQueue() || dest.Entity() != "orders" {
		t.Fatalf("precedence: %+v err=%v", dest, err)
	}

	if _, err := ResolveDestination("", ""); !IsKind(err, KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
