// Copyright (C) 2024 CoreDB Authors.
// See LICENSE for copying information.

// Package notify implements the live query channel (C10): fan-out of
// post-commit notifications to per-session subscribers, per spec.md
// §4.10. Dispatch happens strictly after commit; a cancelled
// transaction's buffered notifications are dropped (spec.md §8
// property 7).
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Action is the kind of change a Notification reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Notification is one post-commit change delivered to a live query
// subscriber.
type Notification struct {
	SubscriptionID string
	Action         Action
	RecordID       string
	Value          []byte
}

// Sender is a per-session notification channel. The only back-pressure
// is the channel's own bound: if the send would block, the commit path
// must not wait on the subscriber (spec.md §4.10), so Dispatch never
// blocks on a Sender — it is a best-effort, non-blocking delivery.
type Sender chan<- Notification

// Hub is the process-wide registry mapping subscription-id to
// notification sender, matching spec.md §5's "Live-query registry:
// per-process map subscription-id -> notification sender; removed on
// KILL or session close."
type Hub struct {
	log *zap.Logger

	mu       sync.RWMutex
	senders  map[string]Sender
}

// NewHub creates an empty notification hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{log: log, senders: make(map[string]Sender)}
}

// Register associates a subscription id with a sender. Callers own the
// channel and are responsible for draining it; Register does not create
// the channel so that session code controls its buffering.
func (h *Hub) Register(subscriptionID string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[subscriptionID] = sender
}

// Unregister removes a subscription, e.g. on KILL or session close.
func (h *Hub) Unregister(subscriptionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.senders, subscriptionID)
}

// Dispatch delivers a batch of notifications produced by one commit.
// Each notification is routed to its subscriber's sender without
// blocking; if the sender's channel is full the notification for that
// subscriber is dropped and logged at Debug (the subscriber is expected
// to reconcile via a follow-up query, per spec.md §4.10).
func (h *Hub) Dispatch(ctx context.Context, notifications []Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, n := range notifications {
		sender, ok := h.senders[n.SubscriptionID]
		if !ok {
			continue
		}
		select {
		case sender <- n:
		default:
			h.log.Debug("dropped notification, subscriber channel full",
				zap.String("subscription", n.SubscriptionID))
		}
	}
}

// Count returns the number of currently registered subscriptions
// (diagnostic use only).
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.senders)
}
