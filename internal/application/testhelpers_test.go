package application

import (
	"context"
	"sync"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
)

type nopLogger struct{}

func (l nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (l nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (l nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                     { return l }

type notifierEvent struct {
	Level   domain.NotificationLevel
	Message string
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifierEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, level domain.NotificationLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifierEvent{Level: level, Message: message})
}

func (n *recordingNotifier) count(level domain.NotificationLevel) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Level == level {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) last() (notifierEvent, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) == 0 {
		return notifierEvent{}, false
	}
	return n.events[len(n.events)-1], true
}

type broadcastEvent struct {
	Event   string
	Payload any
}

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastEvent{Event: event, Payload: payload})
}

func (b *recordingBroadcaster) all() []broadcastEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastEvent(nil), b.events...)
}

// recordingInvalidator counts invalidation fan-outs.
type recordingInvalidator struct {
	mu    sync.Mutex
	calls []domain.InvalidateOptions
}

func (i *recordingInvalidator) Invalidate(ctx context.Context, opts domain.InvalidateOptions) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, opts)
}

func (i *recordingInvalidator) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.calls)
}
