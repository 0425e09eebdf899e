package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sahel-market/api/internal/domain"
	"github.com/sahel-market/api/internal/services"
)

type stubNotificationDispatcher struct {
	dispatchFn func(ctx context.Context, cmd services.NotificationCommand) (services.Notification, error)
	listFn     func(ctx context.Context, channel services.NotificationChannel, pager services.Pagination) (domain.CursorPage[services.Notification], error)
	markReadFn func(ctx context.Context, notificationID string) error
}

func (s *stubNotificationDispatcher) Dispatch(ctx context.Context, cmd services.NotificationCommand) (services.Notification, error) {
	if s.dispatchFn == nil {
		return services.Notification{}, nil
	}
	return s.dispatchFn(ctx, cmd)
}

func (s *stubNotificationDispatcher) List(ctx context.Context, channel services.NotificationChannel, pager services.Pagination) (domain.CursorPage[services.Notification], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Notification]{}, nil
	}
	return s.listFn(ctx, channel, pager)
}

func (s *stubNotificationDispatcher) MarkRead(ctx context.Context, notificationID string) error {
	if s.markReadFn == nil {
		return nil
	}
	return s.markReadFn(ctx, notificationID)
}

func newNotificationTestRouter(dispatcher services.NotificationDispatcher) chi.Router {
	h := NewNotificationHandlers(nil, dispatcher)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestNotificationsListOwnInbox(t *testing.T) {
	var gotChannel services.NotificationChannel
	dispatcher := &stubNotificationDispatcher{
		listFn: func(_ context.Context, channel services.NotificationChannel, _ services.Pagination) (domain.CursorPage[services.Notification], error) {
			gotChannel = channel
			return domain.CursorPage[services.Notification]{
				Items: []services.Notification{{
					ID:        "ntf_1",
					Type:      "order_update",
					Message:   "Order confirmed",
					Link:      "/orders/ord_1",
					CreatedAt: time.Date(2025, 5, 6, 9, 30, 0, 0, time.UTC),
				}},
			}, nil
		},
	}
	router := newNotificationTestRouter(dispatcher)

	req := authenticatedRequest(http.MethodGet, "/", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotChannel != services.NotificationChannel("user-1") {
		t.Fatalf("expected own inbox channel, got %q", gotChannel)
	}

	var resp notificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Message != "Order confirmed" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestNotificationsAdminChannelRequiresBackOfficeRole(t *testing.T) {
	var gotChannel services.NotificationChannel
	dispatcher := &stubNotificationDispatcher{
		listFn: func(_ context.Context, channel services.NotificationChannel, _ services.Pagination) (domain.CursorPage[services.Notification], error) {
			gotChannel = channel
			return domain.CursorPage[services.Notification]{}, nil
		},
	}
	router := newNotificationTestRouter(dispatcher)

	// A buyer asking for the admin channel stays pinned to their own inbox.
	req := authenticatedRequest(http.MethodGet, "/?channel=admin", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if gotChannel != services.NotificationChannel("user-1") {
		t.Fatalf("buyer must not read the admin channel, got %q", gotChannel)
	}

	req = authenticatedRequest(http.MethodGet, "/?channel=admin", nil, staffIdentity("staff-1"))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if gotChannel != domain.NotificationChannelAdmin {
		t.Fatalf("staff should read the admin channel, got %q", gotChannel)
	}
}

func TestNotificationsMarkRead(t *testing.T) {
	var markedID string
	dispatcher := &stubNotificationDispatcher{
		markReadFn: func(_ context.Context, notificationID string) error {
			markedID = notificationID
			return nil
		},
	}
	router := newNotificationTestRouter(dispatcher)

	req := authenticatedRequest(http.MethodPost, "/ntf_1:read", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if markedID != "ntf_1" {
		t.Fatalf("unexpected id %q", markedID)
	}
}

func TestNotificationsMarkReadMapsNotFound(t *testing.T) {
	dispatcher := &stubNotificationDispatcher{
		markReadFn: func(context.Context, string) error {
			return services.ErrNotificationNotFound
		},
	}
	router := newNotificationTestRouter(dispatcher)

	req := authenticatedRequest(http.MethodPost, "/ntf_missing:read", nil, buyerIdentity("user-1"))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestNotificationsRequireAuth(t *testing.T) {
	router := newNotificationTestRouter(&stubNotificationDispatcher{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
