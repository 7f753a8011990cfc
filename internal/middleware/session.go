// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/roomcal/internal/model"
)

// SessionCookieName はセッションIDを保持するCookie名。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey   = contextKey("user_id")
	deviceIDContextKey = contextKey("device_id")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性と利用範囲を検証するミドルウェアを返す。
// 管理者セッションはユーザーIDを、デバイスセッションはデバイスIDをコンテキストに注入する。
// 未認証リクエストには401、利用範囲が異なるセッションには403を返す。
func NewSessionMiddleware(sessionFinder SessionFinder, scope model.SessionScope) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 2. セッションの有効性を検証
			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 3. 利用範囲を検証
			if session.Scope != scope {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			// 4. セッションの主体をコンテキストに注入
			ctx := r.Context()
			switch scope {
			case model.SessionScopeAdmin:
				ctx = ContextWithUserID(ctx, session.UserID)
			case model.SessionScopeDevice:
				ctx = ContextWithDeviceID(ctx, session.DeviceID)
			}
			if subject, ok := subjectFromContext(ctx); ok {
				setRequestSubject(ctx, subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストから管理者のユーザーIDを取得する。
// 管理者スコープのセッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// DeviceIDFromContext はリクエストコンテキストからデバイスIDを取得する。
// デバイススコープのセッションミドルウェアを通過したリクエストでのみ有効。
func DeviceIDFromContext(ctx context.Context) (string, error) {
	deviceID, ok := ctx.Value(deviceIDContextKey).(string)
	if !ok || deviceID == "" {
		return "", fmt.Errorf("device ID not found in context")
	}
	return deviceID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithDeviceID はコンテキストにデバイスIDを注入する。
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey, deviceID)
}

// subjectFromContext はレート制限とログに使う主体（"user:<id>" または "device:<id>"）を返す。
func subjectFromContext(ctx context.Context) (string, bool) {
	if userID, err := UserIDFromContext(ctx); err == nil {
		return "user:" + userID, true
	}
	if deviceID, err := DeviceIDFromContext(ctx); err == nil {
		return "device:" + deviceID, true
	}
	return "", false
}
