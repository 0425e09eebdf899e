package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/sahel-market/api/internal/domain"
)

type stubNotificationRepository struct {
	insertFn    func(ctx context.Context, notification domain.Notification) error
	findByKeyFn func(ctx context.Context, key string) (domain.Notification, error)
	listFn      func(ctx context.Context, channel domain.NotificationChannel, pager domain.Pagination) (domain.CursorPage[domain.Notification], error)
	markReadFn  func(ctx context.Context, notificationID string, readAt time.Time) error
	inserted    []domain.Notification
}

func (s *stubNotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	s.inserted = append(s.inserted, notification)
	if s.insertFn == nil {
		return nil
	}
	return s.insertFn(ctx, notification)
}

func (s *stubNotificationRepository) FindByIdempotencyKey(ctx context.Context, key string) (domain.Notification, error) {
	if s.findByKeyFn == nil {
		return domain.Notification{}, &stubRepoError{msg: "no entry", notFound: true}
	}
	return s.findByKeyFn(ctx, key)
}

func (s *stubNotificationRepository) ListByChannel(ctx context.Context, channel domain.NotificationChannel, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Notification]{}, nil
	}
	return s.listFn(ctx, channel, pager)
}

func (s *stubNotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) error {
	if s.markReadFn == nil {
		return nil
	}
	return s.markReadFn(ctx, notificationID, readAt)
}

func newTestDispatcher(t *testing.T, deps NotificationDispatcherDeps) NotificationDispatcher {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = testClock
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "01NTF" }
	}
	dispatcher, err := NewNotificationDispatcher(deps)
	if err != nil {
		t.Fatalf("NewNotificationDispatcher: %v", err)
	}
	return dispatcher
}

func TestNotificationDispatchPersistsAndPublishes(t *testing.T) {
	repo := &stubNotificationRepository{}
	events := &stubEventPublisher{}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{
		Notifications: repo,
		Events:        events,
	})

	notification, err := dispatcher.Dispatch(context.Background(), NotificationCommand{
		Channel:        "user-1",
		Type:           "order_status",
		Message:        "Your order 06052025-KS-001AA has been placed.",
		Link:           "/orders/ord_1",
		IdempotencyKey: "order:ord_1:>pending:buyer",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if notification.ID != "ntf_01NTF" {
		t.Fatalf("unexpected id %q", notification.ID)
	}
	if !notification.CreatedAt.Equal(testClock()) {
		t.Fatalf("expected fixed clock timestamp, got %v", notification.CreatedAt)
	}
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(repo.inserted))
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one realtime mirror, got %d", len(events.events))
	}
	event := events.events[0]
	if event.Event != RealtimeEventNotification || event.Channel != "user-1" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Payload["notificationRef"] != "ntf_01NTF" {
		t.Fatalf("unexpected payload %+v", event.Payload)
	}
}

func TestNotificationDispatchDeduplicatesByKey(t *testing.T) {
	existing := domain.Notification{
		ID:             "ntf_existing",
		Channel:        "user-1",
		Message:        "Your order has been placed.",
		IdempotencyKey: "order:ord_1:>pending:buyer",
		CreatedAt:      testClock().Add(-time.Minute),
	}
	repo := &stubNotificationRepository{
		findByKeyFn: func(_ context.Context, key string) (domain.Notification, error) {
			if key == existing.IdempotencyKey {
				return existing, nil
			}
			return domain.Notification{}, &stubRepoError{msg: "no entry", notFound: true}
		},
	}
	events := &stubEventPublisher{}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{
		Notifications: repo,
		Events:        events,
	})

	notification, err := dispatcher.Dispatch(context.Background(), NotificationCommand{
		Channel:        "user-1",
		Message:        "Your order has been placed.",
		IdempotencyKey: existing.IdempotencyKey,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if notification.ID != "ntf_existing" {
		t.Fatalf("expected stored entry, got %q", notification.ID)
	}
	if len(repo.inserted) != 0 {
		t.Fatal("redelivery must not insert a second entry")
	}
	if len(events.events) != 0 {
		t.Fatal("redelivery must not publish")
	}
}

func TestNotificationDispatchHandlesInsertRace(t *testing.T) {
	winner := domain.Notification{
		ID:             "ntf_winner",
		Channel:        "admin",
		Message:        "New order placed.",
		IdempotencyKey: "order:ord_1:>pending:admin",
	}
	probes := 0
	repo := &stubNotificationRepository{
		findByKeyFn: func(context.Context, string) (domain.Notification, error) {
			probes++
			if probes == 1 {
				return domain.Notification{}, &stubRepoError{msg: "no entry", notFound: true}
			}
			return winner, nil
		},
		insertFn: func(context.Context, domain.Notification) error {
			return &stubRepoError{msg: "duplicate key", conflict: true}
		},
	}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{Notifications: repo})

	notification, err := dispatcher.Dispatch(context.Background(), NotificationCommand{
		Channel:        "admin",
		Message:        "New order placed.",
		IdempotencyKey: winner.IdempotencyKey,
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if notification.ID != "ntf_winner" {
		t.Fatalf("expected the concurrent winner entry, got %q", notification.ID)
	}
}

func TestNotificationDispatchSanitizesMessage(t *testing.T) {
	repo := &stubNotificationRepository{}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{Notifications: repo})

	notification, err := dispatcher.Dispatch(context.Background(), NotificationCommand{
		Channel:        "user-1",
		Message:        `Order placed <script>alert("x")</script>`,
		IdempotencyKey: "order:ord_1:>pending:buyer",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if strings.Contains(notification.Message, "<script>") || strings.Contains(notification.Message, "alert") {
		t.Fatalf("expected script tag stripped, got %q", notification.Message)
	}
	if !strings.HasPrefix(notification.Message, "Order placed") {
		t.Fatalf("plain text must survive sanitization, got %q", notification.Message)
	}
}

func TestNotificationDispatchValidatesInput(t *testing.T) {
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{Notifications: &stubNotificationRepository{}})

	cases := []struct {
		name string
		cmd  NotificationCommand
	}{
		{"missing channel", NotificationCommand{Message: "hello", IdempotencyKey: "k"}},
		{"missing message", NotificationCommand{Channel: "user-1", IdempotencyKey: "k"}},
		{"missing key", NotificationCommand{Channel: "user-1", Message: "hello"}},
	}

	for _, tc := range cases {
		if _, err := dispatcher.Dispatch(context.Background(), tc.cmd); !errors.Is(err, ErrNotificationInvalidInput) {
			t.Fatalf("%s: expected ErrNotificationInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestNotificationMarkReadStampsClock(t *testing.T) {
	var gotID string
	var gotAt time.Time
	repo := &stubNotificationRepository{
		markReadFn: func(_ context.Context, id string, at time.Time) error {
			gotID = id
			gotAt = at
			return nil
		},
	}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{Notifications: repo})

	if err := dispatcher.MarkRead(context.Background(), "ntf_1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if gotID != "ntf_1" || !gotAt.Equal(testClock()) {
		t.Fatalf("unexpected mark read call %q %v", gotID, gotAt)
	}
}

func TestNotificationMarkReadMapsNotFound(t *testing.T) {
	repo := &stubNotificationRepository{
		markReadFn: func(context.Context, string, time.Time) error {
			return &stubRepoError{msg: "no doc", notFound: true}
		},
	}
	dispatcher := newTestDispatcher(t, NotificationDispatcherDeps{Notifications: repo})

	if err := dispatcher.MarkRead(context.Background(), "ntf_missing"); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound, got %v", err)
	}
}
