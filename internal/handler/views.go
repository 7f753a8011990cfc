package handler

import (
	"fmt"
	"time"

	"github.com/hitoshi/roomcal/internal/device"
	"github.com/hitoshi/roomcal/internal/meeting"
	"github.com/hitoshi/roomcal/internal/model"
)

// deviceResponse はデバイス設定のレスポンス。接続コードは未接続の間のみ含める。
type deviceResponse struct {
	ID                string    `json:"id"`
	ConnectionCode    string    `json:"connection_code,omitempty"`
	IsConnected       bool      `json:"is_connected"`
	DeviceType        string    `json:"device_type"`
	CalendarID        string    `json:"calendar_id"`
	Language          string    `json:"language"`
	ClockType         int       `json:"clock_type"`
	MinutesForCheckIn int       `json:"minutes_for_check_in"`
	CreatedAt         time.Time `json:"created_at"`
}

// deviceStatusResponse は管理画面のデバイス一覧の要素。
type deviceStatusResponse struct {
	ID                  string    `json:"id"`
	CreatedAt           time.Time `json:"created_at"`
	CalendarID          string    `json:"calendar_id"`
	DeviceType          string    `json:"device_type"`
	Language            string    `json:"language"`
	ClockType           int       `json:"clock_type"`
	MinutesForCheckIn   int       `json:"minutes_for_check_in"`
	IsOnline            bool      `json:"is_online"`
	MsSinceLastActivity int64     `json:"ms_since_last_activity"`
}

// calendarResponse はカレンダーのメタデータ。
type calendarResponse struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	CanModifyEvents bool   `json:"can_modify_events"`
}

// calendarViewResponse はカレンダーと表示対象のイベント。
type calendarViewResponse struct {
	calendarResponse
	Events []eventResponse `json:"events"`
}

type organizerResponse struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type attendeeResponse struct {
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	ResponseStatus string `json:"response_status"`
	Optional       bool   `json:"optional"`
	Resource       bool   `json:"resource"`
}

// eventResponse はイベントのレスポンス。
// start/end は時刻指定の場合RFC3339（UTC）、終日の場合 YYYY-MM-DD。
type eventResponse struct {
	ID            string             `json:"id"`
	Summary       string             `json:"summary"`
	Organizer     *organizerResponse `json:"organizer,omitempty"`
	IsAllDayEvent bool               `json:"is_all_day_event"`
	Start         *string            `json:"start"`
	End           *string            `json:"end"`
	Attendees     []attendeeResponse `json:"attendees"`
	IsCheckedIn   bool               `json:"is_checked_in"`
}

// deviceStateResponse はデバイスに返す表示状態。
type deviceStateResponse struct {
	Device       deviceResponse         `json:"device"`
	Calendar     *calendarViewResponse  `json:"calendar"`
	AllCalendars []calendarViewResponse `json:"all_calendars"`
}

func toDeviceResponse(d *model.Device) deviceResponse {
	return deviceResponse{
		ID:                d.ID,
		ConnectionCode:    d.ConnectionCode,
		IsConnected:       d.IsConnected(),
		DeviceType:        string(d.DeviceType),
		CalendarID:        d.CalendarID,
		Language:          d.Language,
		ClockType:         d.ClockType,
		MinutesForCheckIn: d.MinutesForCheckIn,
		CreatedAt:         d.CreatedAt,
	}
}

func toDeviceStatusResponse(s *device.Status) deviceStatusResponse {
	d := s.Device
	return deviceStatusResponse{
		ID:                  d.ID,
		CreatedAt:           d.CreatedAt,
		CalendarID:          d.CalendarID,
		DeviceType:          string(d.DeviceType),
		Language:            d.Language,
		ClockType:           d.ClockType,
		MinutesForCheckIn:   d.MinutesForCheckIn,
		IsOnline:            s.IsOnline,
		MsSinceLastActivity: s.SinceLastActivity.Milliseconds(),
	}
}

func toCalendarResponse(c *model.Calendar) calendarResponse {
	return calendarResponse{
		ID:              c.ID,
		Summary:         c.Summary,
		Description:     c.Description,
		Location:        c.Location,
		CanModifyEvents: c.CanModifyEvents(),
	}
}

func toCalendarViewResponse(v *meeting.CalendarView) calendarViewResponse {
	resp := calendarViewResponse{
		calendarResponse: toCalendarResponse(v.Calendar),
		Events:           make([]eventResponse, 0, len(v.Events)),
	}
	resp.CanModifyEvents = v.CanModifyEvents
	for _, e := range v.Events {
		resp.Events = append(resp.Events, toEventResponse(e))
	}
	return resp
}

func toEventResponse(e *model.Event) eventResponse {
	resp := eventResponse{
		ID:            e.ID,
		Summary:       e.Summary,
		IsAllDayEvent: e.IsAllDayEvent,
		Start:         formatCalendarTime(e.Start),
		End:           formatCalendarTime(e.End),
		Attendees:     make([]attendeeResponse, 0, len(e.Attendees)),
		IsCheckedIn:   e.IsCheckedIn,
	}
	if e.Organizer != nil {
		resp.Organizer = &organizerResponse{
			Email:       e.Organizer.Email,
			DisplayName: e.Organizer.DisplayName,
		}
	}
	for _, a := range e.Attendees {
		resp.Attendees = append(resp.Attendees, attendeeResponse{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			Optional:       a.Optional,
			Resource:       a.Resource,
		})
	}
	return resp
}

func toDeviceStateResponse(s *device.State) deviceStateResponse {
	resp := deviceStateResponse{Device: toDeviceResponse(s.Device)}
	if s.Calendar != nil {
		view := toCalendarViewResponse(s.Calendar)
		resp.Calendar = &view
	}
	if s.AllCalendars != nil {
		resp.AllCalendars = make([]calendarViewResponse, 0, len(s.AllCalendars))
		for _, v := range s.AllCalendars {
			resp.AllCalendars = append(resp.AllCalendars, toCalendarViewResponse(v))
		}
	}
	return resp
}

// formatCalendarTime はCalendarTimeを文字列に変換する。終日の値は日付のみを返す。
func formatCalendarTime(c *model.CalendarTime) *string {
	if c == nil {
		return nil
	}
	var s string
	if t, ok := c.Instant(); ok {
		s = t.Format(time.RFC3339)
	} else {
		s = fmt.Sprintf("%04d-%02d-%02d", c.Year, int(c.Month), c.Day)
	}
	return &s
}
