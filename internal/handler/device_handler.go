package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/roomcal/internal/device"
	"github.com/hitoshi/roomcal/internal/meeting"
	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/model"
)

// DeviceServiceInterface はデバイスハンドラーが必要とするデバイス管理サービスのインターフェース。
type DeviceServiceInterface interface {
	Register(ctx context.Context) (*model.Device, *model.Session, error)
	GetState(ctx context.Context, deviceID string, includeAll bool) (*device.State, error)
}

// MeetingServiceInterface はデバイスハンドラーが必要とする会議サービスのインターフェース。
type MeetingServiceInterface interface {
	CreateMeeting(ctx context.Context, deviceID string, req meeting.CreateRequest) (*meeting.Booking, error)
	ModifyMeeting(ctx context.Context, deviceID, meetingID string, req meeting.ModifyRequest) (*meeting.Change, error)
	DeleteMeeting(ctx context.Context, deviceID, meetingID string) error
}

// createMeetingRequest は会議作成のリクエストボディ。
type createMeetingRequest struct {
	CalendarID    string `json:"calendar_id"`
	TimeInMinutes int    `json:"time_in_minutes"`
	Summary       string `json:"summary"`
}

// modifyMeetingRequest は会議変更のリクエストボディ。extension_time は分単位。
type modifyMeetingRequest struct {
	StartNow      bool `json:"start_now"`
	EndNow        bool `json:"end_now"`
	CheckIn       bool `json:"check_in"`
	ExtensionTime int  `json:"extension_time"`
}

// bookingResponse は作成した会議のレスポンス。
type bookingResponse struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	Summary    string    `json:"summary"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// changeResponse は会議に適用した変更のレスポンス。
type changeResponse struct {
	ID          string     `json:"id"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	IsCheckedIn bool       `json:"is_checked_in"`
}

// DeviceHandler は会議室デバイスからのHTTPリクエストを処理する。
type DeviceHandler struct {
	devices  DeviceServiceInterface
	meetings MeetingServiceInterface
	cookies  AuthHandlerConfig
}

// NewDeviceHandler はDeviceHandlerを生成する。
func NewDeviceHandler(devices DeviceServiceInterface, meetings MeetingServiceInterface, cookies AuthHandlerConfig) *DeviceHandler {
	return &DeviceHandler{
		devices:  devices,
		meetings: meetings,
		cookies:  cookies,
	}
}

// Register は未接続のデバイスを登録し、デバイスセッションCookieを発行する。
// POST /api/device/register
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	d, session, err := h.devices.Register(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.setSessionCookie(w, session.ID, h.cookies.DeviceSessionMaxAge)
	writeJSON(w, http.StatusCreated, toDeviceResponse(d))
}

// GetState はデバイスの表示状態を返す。
// GET /api/device?all-calendars=true
func (h *DeviceHandler) GetState(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	includeAll, _ := strconv.ParseBool(r.URL.Query().Get("all-calendars"))

	state, err := h.devices.GetState(r.Context(), deviceID, includeAll)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceStateResponse(state))
}

// CreateMeeting は現在時刻から始まる会議を作成する。
// POST /api/device/meeting
func (h *DeviceHandler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createMeetingRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadBody(w)
		return
	}

	booking, err := h.meetings.CreateMeeting(r.Context(), deviceID, meeting.CreateRequest{
		CalendarID:      req.CalendarID,
		DurationMinutes: req.TimeInMinutes,
		Summary:         req.Summary,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookingResponse{
		ID:         booking.MeetingID,
		CalendarID: booking.CalendarID,
		Summary:    booking.Summary,
		Start:      booking.Start,
		End:        booking.End,
	})
}

// ModifyMeeting は会議の開始・終了・延長・チェックインを行う。
// PUT /api/device/meeting/{meetingID}
func (h *DeviceHandler) ModifyMeeting(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req modifyMeetingRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadBody(w)
		return
	}

	change, err := h.meetings.ModifyMeeting(r.Context(), deviceID, chi.URLParam(r, "meetingID"), meeting.ModifyRequest{
		StartNow:         req.StartNow,
		EndNow:           req.EndNow,
		CheckIn:          req.CheckIn,
		ExtensionMinutes: req.ExtensionTime,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, changeResponse{
		ID:          change.MeetingID,
		Start:       change.Start,
		End:         change.End,
		IsCheckedIn: change.CheckedIn,
	})
}

// DeleteMeeting は会議を削除する。
// DELETE /api/device/meeting/{meetingID}
func (h *DeviceHandler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.meetings.DeleteMeeting(r.Context(), deviceID, chi.URLParam(r, "meetingID")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
