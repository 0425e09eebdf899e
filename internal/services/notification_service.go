package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/repositories"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
	// ErrNotificationUnavailable indicates the inbox backend is unreachable.
	ErrNotificationUnavailable = errors.New("notification: store unavailable")
)

// NotificationDispatcherDeps bundles collaborators for the dispatcher.
type NotificationDispatcherDeps struct {
	Notifications repositories.NotificationRepository
	Events        RealtimeEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type notificationDispatcher struct {
	notifications repositories.NotificationRepository
	events        RealtimeEventPublisher
	sanitizer     *bluemonday.Policy
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewNotificationDispatcher wires dependencies into a concrete dispatcher.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification dispatcher: notification repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationDispatcher{
		notifications: deps.Notifications,
		events:        deps.Events,
		sanitizer:     bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Dispatch persists one inbox entry and mirrors it to the realtime topic.
// Deliveries reusing an idempotency key return the stored entry unchanged and
// publish nothing, so retried triggers cannot duplicate alerts.
func (d *notificationDispatcher) Dispatch(ctx context.Context, cmd NotificationCommand) (Notification, error) {
	channel := strings.TrimSpace(string(cmd.Channel))
	if channel == "" {
		return Notification{}, fmt.Errorf("%w: channel is required", ErrNotificationInvalidInput)
	}
	message := d.sanitizer.Sanitize(strings.TrimSpace(cmd.Message))
	if message == "" {
		return Notification{}, fmt.Errorf("%w: message is required", ErrNotificationInvalidInput)
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		return Notification{}, fmt.Errorf("%w: idempotency key is required", ErrNotificationInvalidInput)
	}

	if existing, err := d.notifications.FindByIdempotencyKey(ctx, key); err == nil {
		return existing, nil
	} else if mapped := d.mapRepositoryError(err); !errors.Is(mapped, ErrNotificationNotFound) {
		return Notification{}, mapped
	}

	notification := Notification{
		ID:             notificationIDPrefix + d.newID(),
		Channel:        domain.NotificationChannel(channel),
		Type:           strings.TrimSpace(cmd.Type),
		Message:        message,
		Link:           d.sanitizer.Sanitize(strings.TrimSpace(cmd.Link)),
		IdempotencyKey: key,
		CreatedAt:      d.clock(),
	}

	if err := d.notifications.Insert(ctx, notification); err != nil {
		mapped := d.mapRepositoryError(err)
		// A concurrent delivery may have won the race between probe and insert.
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			if existing, findErr := d.notifications.FindByIdempotencyKey(ctx, key); findErr == nil {
				return existing, nil
			}
		}
		return Notification{}, mapped
	}

	d.publish(ctx, notification, cmd)
	return notification, nil
}

func (d *notificationDispatcher) List(ctx context.Context, channel NotificationChannel, pager Pagination) (domain.CursorPage[Notification], error) {
	if strings.TrimSpace(string(channel)) == "" {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: channel is required", ErrNotificationInvalidInput)
	}
	page, err := d.notifications.ListByChannel(ctx, channel, pager)
	if err != nil {
		return domain.CursorPage[Notification]{}, d.mapRepositoryError(err)
	}
	return page, nil
}

func (d *notificationDispatcher) MarkRead(ctx context.Context, notificationID string) error {
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}
	if err := d.notifications.MarkRead(ctx, notificationID, d.clock()); err != nil {
		return d.mapRepositoryError(err)
	}
	return nil
}

func (d *notificationDispatcher) publish(ctx context.Context, notification Notification, cmd NotificationCommand) {
	if d.events == nil {
		return
	}
	eventName := cmd.RealtimeEvent
	if eventName == "" {
		eventName = RealtimeEventNotification
	}
	payload := map[string]any{
		"notificationRef": notification.ID,
		"type":            notification.Type,
		"message":         notification.Message,
		"link":            notification.Link,
	}
	for k, v := range cmd.Payload {
		payload[k] = v
	}
	err := d.events.PublishRealtimeEvent(ctx, RealtimeEvent{
		Event:      eventName,
		Channel:    string(notification.Channel),
		OccurredAt: notification.CreatedAt,
		Payload:    payload,
	})
	if err != nil {
		d.logger(ctx, "notification.event.publish.failed", map[string]any{
			"notification": notification.ID,
			"channel":      string(notification.Channel),
			"error":        err.Error(),
		})
	}
}

func (d *notificationDispatcher) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrNotificationUnavailable, err)
		}
	}

	return err
}
