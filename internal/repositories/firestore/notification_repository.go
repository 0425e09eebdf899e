package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/sahel-market/api/internal/domain"
	pfirestore "github.com/sahel-market/api/internal/platform/firestore"
	"github.com/sahel-market/api/internal/platform/pagination"
)

const notificationsCollection = "notifications"

// NotificationRepository stores inbox entries keyed by notification id. The
// idempotency key is indexed so redelivered triggers can be detected cheaply.
type NotificationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[notificationDocument]
}

func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{provider: provider, base: base}, nil
}

func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification insert: id is required")
	}

	docRef, err := r.base.DocumentRef(ctx, notification.ID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, newNotificationDocument(notification)); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}

func (r *NotificationRepository) FindByIdempotencyKey(ctx context.Context, key string) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Notification{}, errors.New("notification lookup: idempotency key is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("idempotencyKey", "==", key).Limit(1)
	})
	if err != nil {
		return domain.Notification{}, err
	}
	if len(docs) == 0 {
		return domain.Notification{}, pfirestore.WrapError("notifications.findByKey", notFoundError("notification for key "+key))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

func (r *NotificationRepository) ListByChannel(ctx context.Context, channel domain.NotificationChannel, pager domain.Pagination) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(string(channel)) == "" {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification list: channel is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
	}

	query := client.Collection(notificationsCollection).Query.
		Where("channel", "==", string(channel)).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(pager.PageToken); token != "" {
		var cursor orderPageToken
		if err := pagination.DecodeToken(token, &cursor); err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.Notification
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		var doc notificationDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Notification]{}, fmt.Errorf("decode notification %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	var nextToken string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		encoded, err := pagination.EncodeToken(orderPageToken{ID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Notification]{}, pfirestore.WrapError("notifications.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Notification]{Items: items, NextPageToken: nextToken}, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, readAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	_, err := r.base.Update(ctx, notificationID, []firestore.Update{
		{Path: "read", Value: true},
		{Path: "readAt", Value: readAt.UTC()},
	})
	return err
}

type notificationDocument struct {
	Channel        string     `firestore:"channel"`
	Type           string     `firestore:"type"`
	Message        string     `firestore:"message"`
	Link           string     `firestore:"link,omitempty"`
	Read           bool       `firestore:"read"`
	ReadAt         *time.Time `firestore:"readAt,omitempty"`
	IdempotencyKey string     `firestore:"idempotencyKey,omitempty"`
	CreatedAt      time.Time  `firestore:"createdAt"`
}

func newNotificationDocument(n domain.Notification) notificationDocument {
	return notificationDocument{
		Channel:        string(n.Channel),
		Type:           strings.TrimSpace(n.Type),
		Message:        n.Message,
		Link:           strings.TrimSpace(n.Link),
		Read:           n.Read,
		IdempotencyKey: strings.TrimSpace(n.IdempotencyKey),
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toDomain(id string) domain.Notification {
	return domain.Notification{
		ID:             id,
		Channel:        domain.NotificationChannel(d.Channel),
		Type:           d.Type,
		Message:        d.Message,
		Link:           d.Link,
		Read:           d.Read,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      d.CreatedAt,
	}
}
