package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/roomcal/internal/device"
	"github.com/hitoshi/roomcal/internal/meeting"
	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/model"
)

// --- ルーター用モック ---

// mockSessionFinderForRouter はセッションIDをキーにしたインメモリのSessionFinder。
type mockSessionFinderForRouter struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinderForRouter) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

type countingStatusRecorder struct {
	statuses []int
}

func (r *countingStatusRecorder) RecordHTTPStatus(code int) {
	r.statuses = append(r.statuses, code)
}

const (
	adminSessionID  = "admin-session"
	deviceSessionID = "device-session"
)

// routerFixture は統合テスト用のルーターと共有状態を保持する。
type routerFixture struct {
	handler  http.Handler
	sessions map[string]*model.Session
	devices  map[string]*model.Device
	recorder *countingStatusRecorder
}

func newRouterFixture(t *testing.T, health HealthChecker) *routerFixture {
	t.Helper()

	f := &routerFixture{
		sessions: map[string]*model.Session{
			adminSessionID: {
				ID: adminSessionID, Scope: model.SessionScopeAdmin, UserID: testUserID,
				ExpiresAt: time.Now().Add(time.Hour),
			},
			deviceSessionID: {
				ID: deviceSessionID, Scope: model.SessionScopeDevice, DeviceID: testDeviceID,
				ExpiresAt: time.Now().Add(time.Hour),
			},
		},
		devices:  map[string]*model.Device{},
		recorder: &countingStatusRecorder{},
	}

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deviceSvc := &mockDeviceService{
		registerFn: func(ctx context.Context) (*model.Device, *model.Session, error) {
			d := &model.Device{ID: "device-new", ConnectionCode: "01234", DeviceType: model.DeviceTypeCalendar}
			s := &model.Session{ID: "device-new-session", Scope: model.SessionScopeDevice, DeviceID: d.ID}
			f.devices[d.ID] = d
			f.sessions[s.ID] = s
			return d, s, nil
		},
		getStateFn: func(ctx context.Context, deviceID string, includeAll bool) (*device.State, error) {
			d, ok := f.devices[deviceID]
			if !ok {
				return nil, model.NewDeviceNotFoundError()
			}
			return &device.State{Device: d}, nil
		},
	}
	adminDeviceSvc := &mockAdminDeviceService{
		listDevicesFn: func(ctx context.Context, userID string) ([]*device.Status, error) {
			var statuses []*device.Status
			for _, d := range f.devices {
				if d.UserID == userID {
					statuses = append(statuses, &device.Status{Device: d})
				}
			}
			return statuses, nil
		},
		connectDeviceFn: func(ctx context.Context, userID, code string) (*device.Status, error) {
			for _, d := range f.devices {
				if d.ConnectionCode == code && !d.IsConnected() {
					d.UserID = userID
					d.ConnectionCode = ""
					return &device.Status{Device: d, IsOnline: true}, nil
				}
			}
			return nil, model.NewConnectionCodeNotFoundError()
		},
	}
	meetingSvc := &mockMeetingService{
		createMeetingFn: func(ctx context.Context, deviceID string, req meeting.CreateRequest) (*meeting.Booking, error) {
			d, ok := f.devices[deviceID]
			if !ok || !d.IsConnected() {
				return nil, model.NewNoCalendarSelectedError()
			}
			return &meeting.Booking{MeetingID: "evt-1", CalendarID: d.CalendarID}, nil
		},
	}

	f.handler = NewRouter(&RouterDeps{
		SessionFinder:     &mockSessionFinderForRouter{sessions: f.sessions},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       limiter,
		StatusRecorder:    f.recorder,
		HealthChecker:     health,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics\n"))
		}),
		AuthService:        &mockAuthService{getLoginURLFn: googleLoginURL},
		AuthConfig:         testAuthConfig,
		DeviceService:      deviceSvc,
		MeetingService:     meetingSvc,
		UserService:        &mockUserService{},
		AdminDeviceService: adminDeviceSvc,
	})
	return f
}

func (f *routerFixture) do(method, path, sessionID, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// --- テスト ---

func TestNewRouter_RouteAccess(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.devices[testDeviceID] = &model.Device{ID: testDeviceID, ConnectionCode: "11111"}

	tests := []struct {
		name       string
		method     string
		path       string
		sessionID  string
		wantStatus int
	}{
		{"ヘルスチェック", http.MethodGet, "/health", "", http.StatusOK},
		{"メトリクス", http.MethodGet, "/metrics", "", http.StatusOK},
		{"ログイン", http.MethodGet, "/auth/google/login", "", http.StatusTemporaryRedirect},
		{"ログアウト", http.MethodPost, "/auth/logout", adminSessionID, http.StatusSeeOther},
		{"デバイス登録はセッション不要", http.MethodPost, "/api/device/register", "", http.StatusCreated},
		{"デバイス状態", http.MethodGet, "/api/device", deviceSessionID, http.StatusOK},
		{"デバイス状態_セッションなし", http.MethodGet, "/api/device", "", http.StatusUnauthorized},
		{"デバイス状態_管理者セッション", http.MethodGet, "/api/device", adminSessionID, http.StatusForbidden},
		{"会議作成_未接続", http.MethodPost, "/api/device/meeting", deviceSessionID, http.StatusBadRequest},
		{"会議削除", http.MethodDelete, "/api/device/meeting/evt-1", deviceSessionID, http.StatusNoContent},
		{"管理_ユーザー", http.MethodGet, "/api/admin/user", adminSessionID, http.StatusOK},
		{"管理_トークン", http.MethodGet, "/api/admin/token", adminSessionID, http.StatusOK},
		{"管理_カレンダー", http.MethodGet, "/api/admin/calendar", adminSessionID, http.StatusOK},
		{"管理_デバイス一覧", http.MethodGet, "/api/admin/device", adminSessionID, http.StatusOK},
		{"管理_デバイスセッション", http.MethodGet, "/api/admin/device", deviceSessionID, http.StatusForbidden},
		{"管理_セッションなし", http.MethodGet, "/api/admin/user", "", http.StatusUnauthorized},
		{"管理_不明なセッション", http.MethodGet, "/api/admin/user", "unknown", http.StatusUnauthorized},
		{"管理_デバイス削除", http.MethodDelete, "/api/admin/device/dev-9", adminSessionID, http.StatusNoContent},
		{"存在しないルート", http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.sessionID, "")
			if w.Code != tt.wantStatus {
				t.Errorf("%s %s status = %d, want %d (body=%s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestNewRouter_DeviceConnectFlow(t *testing.T) {
	f := newRouterFixture(t, nil)

	// 1. デバイスを登録してセッションCookieを受け取る
	w := f.do(http.MethodPost, "/api/device/register", "", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, want %d", w.Code, http.StatusCreated)
	}
	cookie := findCookie(w.Result(), middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("expected device session cookie")
	}
	var registered deviceResponse
	if err := json.NewDecoder(w.Body).Decode(&registered); err != nil {
		t.Fatalf("failed to decode register response: %v", err)
	}

	// 2. 未接続の間は会議を作成できない
	w = f.do(http.MethodPost, "/api/device/meeting", cookie.Value, `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("create before connect status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	// 3. 管理者が接続コードで接続する
	w = f.do(http.MethodPost, "/api/admin/device", adminSessionID, `{"connection_code":"`+registered.ConnectionCode+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("connect status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}

	// 同じコードは再利用できない
	w = f.do(http.MethodPost, "/api/admin/device", adminSessionID, `{"connection_code":"`+registered.ConnectionCode+`"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("reconnect status = %d, want %d", w.Code, http.StatusNotFound)
	}

	// 4. 接続済みの状態が返り、接続コードは含まれない
	w = f.do(http.MethodGet, "/api/device", cookie.Value, "")
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d, want %d", w.Code, http.StatusOK)
	}
	var state struct {
		Device map[string]any `json:"device"`
	}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if state.Device["is_connected"] != true {
		t.Errorf("is_connected = %v, want true", state.Device["is_connected"])
	}
	if _, ok := state.Device["connection_code"]; ok {
		t.Error("connection_code should be omitted once connected")
	}

	// 5. 会議を作成できる
	w = f.do(http.MethodPost, "/api/device/meeting", cookie.Value, `{"time_in_minutes":15}`)
	if w.Code != http.StatusCreated {
		t.Errorf("create status = %d, want %d", w.Code, http.StatusCreated)
	}

	// 6. 管理画面の一覧に表示される
	w = f.do(http.MethodGet, "/api/admin/device", adminSessionID, "")
	var statuses []deviceStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&statuses); err != nil {
		t.Fatalf("failed to decode device list: %v", err)
	}
	if len(statuses) != 1 || statuses[0].ID != registered.ID {
		t.Errorf("device list = %+v, want [%s]", statuses, registered.ID)
	}
}

func TestNewRouter_HealthCheckFailure(t *testing.T) {
	f := newRouterFixture(t, &mockHealthChecker{err: errors.New("connection refused")})

	w := f.do(http.MethodGet, "/health", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestNewRouter_AppliesCommonMiddleware(t *testing.T) {
	f := newRouterFixture(t, &mockHealthChecker{})

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/user", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}

	f.do(http.MethodGet, "/health", "", "")
	f.do(http.MethodGet, "/api/admin/user", "", "")
	if len(f.recorder.statuses) < 2 {
		t.Fatalf("recorded %d statuses, want at least 2", len(f.recorder.statuses))
	}
	last := f.recorder.statuses[len(f.recorder.statuses)-2:]
	if last[0] != http.StatusOK || last[1] != http.StatusUnauthorized {
		t.Errorf("recorded statuses = %v, want [200 401]", last)
	}
}
