package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// sessionsByID は固定のセッション一覧から検索するモックを返す。
func sessionsByID(sessions ...*model.Session) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(_ context.Context, id string) (*model.Session, error) {
			for _, s := range sessions {
				if s.ID == id {
					return s, nil
				}
			}
			return nil, nil
		},
	}
}

var (
	adminSession = &model.Session{
		ID:        "admin-session",
		Scope:     model.SessionScopeAdmin,
		UserID:    "user-123",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	deviceSession = &model.Session{
		ID:        "device-session",
		Scope:     model.SessionScopeDevice,
		DeviceID:  "device-456",
		ExpiresAt: time.Now().Add(time.Hour),
	}
)

func requestWithSession(method, path, sessionID string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	}
	return req
}

// --- テスト ---

func TestSessionMiddleware_AdminScope_InjectsUserID(t *testing.T) {
	mw := NewSessionMiddleware(sessionsByID(adminSession), model.SessionScopeAdmin)

	var capturedUserID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		if _, err := DeviceIDFromContext(r.Context()); err == nil {
			t.Error("admin request should not carry a device ID")
		}
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/admin/user", "admin-session"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
}

func TestSessionMiddleware_DeviceScope_InjectsDeviceID(t *testing.T) {
	mw := NewSessionMiddleware(sessionsByID(deviceSession), model.SessionScopeDevice)

	var capturedDeviceID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID, err := DeviceIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedDeviceID = deviceID
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/device", "device-session"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedDeviceID != "device-456" {
		t.Errorf("deviceID = %q, want %q", capturedDeviceID, "device-456")
	}
}

func TestSessionMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		repo       *mockSessionRepository
		scope      model.SessionScope
		sessionID  string
		wantStatus int
	}{
		{
			name:       "Cookieなし",
			repo:       sessionsByID(adminSession),
			scope:      model.SessionScopeAdmin,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "存在しない（期限切れ）セッション",
			repo:       sessionsByID(adminSession),
			scope:      model.SessionScopeAdmin,
			sessionID:  "expired-session",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "リポジトリエラー",
			repo: &mockSessionRepository{
				findByIDFn: func(context.Context, string) (*model.Session, error) {
					return nil, errors.New("db down")
				},
			},
			scope:      model.SessionScopeAdmin,
			sessionID:  "admin-session",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "デバイスセッションで管理者APIにアクセス",
			repo:       sessionsByID(deviceSession),
			scope:      model.SessionScopeAdmin,
			sessionID:  "device-session",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "管理者セッションでデバイスAPIにアクセス",
			repo:       sessionsByID(adminSession),
			scope:      model.SessionScopeDevice,
			sessionID:  "admin-session",
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.repo, tt.scope)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, requestWithSession(http.MethodGet, "/api/test", tt.sessionID))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	if _, err := UserIDFromContext(ctx); err == nil {
		t.Error("expected error for empty context")
	}
	if _, err := DeviceIDFromContext(ctx); err == nil {
		t.Error("expected error for empty context")
	}
	if _, ok := subjectFromContext(ctx); ok {
		t.Error("empty context should have no subject")
	}

	userCtx := ContextWithUserID(ctx, "user-1")
	if got, _ := UserIDFromContext(userCtx); got != "user-1" {
		t.Errorf("UserIDFromContext = %q, want %q", got, "user-1")
	}
	if got, _ := subjectFromContext(userCtx); got != "user:user-1" {
		t.Errorf("subject = %q, want %q", got, "user:user-1")
	}

	deviceCtx := ContextWithDeviceID(ctx, "device-1")
	if got, _ := DeviceIDFromContext(deviceCtx); got != "device-1" {
		t.Errorf("DeviceIDFromContext = %q, want %q", got, "device-1")
	}
	if got, _ := subjectFromContext(deviceCtx); got != "device:device-1" {
		t.Errorf("subject = %q, want %q", got, "device:device-1")
	}
}
