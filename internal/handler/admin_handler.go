package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomcal/internal/device"
	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/model"
)

// UserServiceInterface は管理者アカウントの操作に必要なサービスインターフェース。
type UserServiceInterface interface {
	GetDetails(ctx context.Context, userID string) (*model.UserDetails, error)
	ListCalendars(ctx context.Context, userID string) ([]*model.Calendar, error)
	IsAccessTokenValid(ctx context.Context, userID string) bool
	// Withdraw は認証情報と、それに紐づくデバイス・セッションを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// AdminDeviceServiceInterface は管理画面のデバイス操作に必要なサービスインターフェース。
type AdminDeviceServiceInterface interface {
	ListDevices(ctx context.Context, userID string) ([]*device.Status, error)
	ConnectDevice(ctx context.Context, userID, connectionCode string) (*device.Status, error)
	UpdateDevice(ctx context.Context, userID, deviceID string, req device.UpdateRequest) (*model.Device, error)
	RemoveDevice(ctx context.Context, userID, deviceID string) error
}

type userDetailsResponse struct {
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

type tokenStatusResponse struct {
	Valid bool `json:"valid"`
}

type connectDeviceRequest struct {
	ConnectionCode string `json:"connection_code"`
}

// updateDeviceRequest はデバイス設定の更新リクエスト。省略したフィールドは変更しない。
type updateDeviceRequest struct {
	CalendarID        *string `json:"calendar_id"`
	DeviceType        *string `json:"device_type"`
	Language          *string `json:"language"`
	ClockType         *int    `json:"clock_type"`
	MinutesForCheckIn *int    `json:"minutes_for_check_in"`
}

// AdminHandler は管理画面からのHTTPリクエストを処理する。
type AdminHandler struct {
	users   UserServiceInterface
	devices AdminDeviceServiceInterface
	cookies AuthHandlerConfig
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(users UserServiceInterface, devices AdminDeviceServiceInterface, cookies AuthHandlerConfig) *AdminHandler {
	return &AdminHandler{
		users:   users,
		devices: devices,
		cookies: cookies,
	}
}

// GetUser はカレンダーアカウントのプロフィールを返す。
// GET /api/admin/user
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	details, err := h.users.GetDetails(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userDetailsResponse{
		DisplayName: details.DisplayName,
		PhotoURL:    details.PhotoURL,
	})
}

// Withdraw は管理者アカウントを削除し、セッションCookieをクリアする。
// DELETE /api/admin/user
func (h *AdminHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.users.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// GetTokenStatus は保存済みの認証情報が有効かどうかを返す。
// GET /api/admin/token
func (h *AdminHandler) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, tokenStatusResponse{
		Valid: h.users.IsAccessTokenValid(r.Context(), userID),
	})
}

// ListCalendars はアカウントのカレンダー一覧を返す。
// GET /api/admin/calendar
func (h *AdminHandler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	calendars, err := h.users.ListCalendars(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]calendarResponse, 0, len(calendars))
	for _, c := range calendars {
		resp = append(resp, toCalendarResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListDevices は接続済みデバイスの一覧と稼働状況を返す。
// GET /api/admin/device
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	statuses, err := h.devices.ListDevices(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]deviceStatusResponse, 0, len(statuses))
	for _, s := range statuses {
		resp = append(resp, toDeviceStatusResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConnectDevice は接続コードでデバイスを管理者のアカウントに接続する。
// POST /api/admin/device
func (h *AdminHandler) ConnectDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req connectDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadBody(w)
		return
	}

	status, err := h.devices.ConnectDevice(r.Context(), userID, req.ConnectionCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceStatusResponse(status))
}

// UpdateDevice はデバイス設定を更新する。
// PUT /api/admin/device/{deviceID}
func (h *AdminHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateDeviceRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadBody(w)
		return
	}

	update := device.UpdateRequest{
		CalendarID:        req.CalendarID,
		Language:          req.Language,
		ClockType:         req.ClockType,
		MinutesForCheckIn: req.MinutesForCheckIn,
	}
	if req.DeviceType != nil {
		deviceType := model.DeviceType(*req.DeviceType)
		update.DeviceType = &deviceType
	}

	d, err := h.devices.UpdateDevice(r.Context(), userID, chi.URLParam(r, "deviceID"), update)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceResponse(d))
}

// RemoveDevice はデバイスを削除する。所有していないデバイスの場合も204を返す。
// DELETE /api/admin/device/{deviceID}
func (h *AdminHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.devices.RemoveDevice(r.Context(), userID, chi.URLParam(r, "deviceID")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
