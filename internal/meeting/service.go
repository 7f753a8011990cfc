// Package meeting は会議室の即時予約・延長・チェックイン・削除と
// デバイス表示用のカレンダービュー組み立てを提供する。
package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/roomcal/internal/calendar"
	"github.com/hitoshi/roomcal/internal/model"
	"github.com/hitoshi/roomcal/internal/security"
)

// 既定値
const (
	DefaultMeetingDuration   = 15 * time.Minute
	DefaultViewLimit         = 10
	DefaultMaxConcurrentView = 5

	// MaxMeetingMinutes は time_in_minutes と extension_time の上限（24時間）。
	MaxMeetingMinutes = 24 * 60
)

// 会議操作のメトリクスラベル
const (
	ActionCreate = "create"
	ActionModify = "modify"
	ActionDelete = "delete"
)

// ProviderSource はユーザーIDから認証済みのカレンダープロバイダを取得するインターフェース。
type ProviderSource interface {
	ForUser(ctx context.Context, userID string) (calendar.Provider, error)
}

// DeviceStore はデバイスの参照インターフェース。
type DeviceStore interface {
	FindByID(ctx context.Context, id string) (*model.Device, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.Device, error)
}

// ActionRecorder は会議操作の件数を記録するインターフェース。
type ActionRecorder interface {
	RecordMeetingAction(action string)
}

type noopActionRecorder struct{}

func (noopActionRecorder) RecordMeetingAction(string) {}

// CreateRequest は即時予約のリクエスト。
// CalendarID が空の場合はデバイスに設定されたカレンダーを使う。
// DurationMinutes が0の場合は既定の長さを使う。
type CreateRequest struct {
	CalendarID      string
	DurationMinutes int
	Summary         string
}

// ModifyRequest は既存の会議の変更リクエスト。
// EndNow は ExtensionMinutes より優先される。CheckIn=false はチェックイン状態を解除しない。
type ModifyRequest struct {
	StartNow         bool
	EndNow           bool
	CheckIn          bool
	ExtensionMinutes int
}

// Booking は作成された会議を表す。
type Booking struct {
	MeetingID  string
	CalendarID string
	Summary    string
	Start      time.Time
	End        time.Time
}

// Change は会議に適用した変更を表す。送信しなかったフィールドはnil。
type Change struct {
	MeetingID string
	Start     *time.Time
	End       *time.Time
	CheckedIn bool
}

// CalendarView はデバイスに表示するカレンダーの状態。
type CalendarView struct {
	Calendar        *model.Calendar
	CanModifyEvents bool
	Events          []*model.Event
}

// Service は会議のスケジューリングロジックを提供する。
type Service struct {
	providers       ProviderSource
	devices         DeviceStore
	sanitizer       security.SummarySanitizer
	metrics         ActionRecorder
	now             func() time.Time
	defaultDuration time.Duration
	viewLimit       int
	maxConcurrent   int
}

// Option はServiceの設定を変更する関数。
type Option func(*Service)

// WithDefaultDuration は即時予約の既定の長さを設定する。
func WithDefaultDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultDuration = d
		}
	}
}

// WithViewLimit はカレンダービューに含めるイベントの最大件数を設定する。
func WithViewLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.viewLimit = n
		}
	}
}

// WithMaxConcurrentViews は全カレンダー取得時の最大並列数を設定する。
func WithMaxConcurrentViews(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithActionRecorder は会議操作のメトリクス記録先を設定する。
func WithActionRecorder(r ActionRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は新しいServiceを生成する。
func NewService(
	providers ProviderSource,
	devices DeviceStore,
	sanitizer security.SummarySanitizer,
	opts ...Option,
) *Service {
	s := &Service{
		providers:       providers,
		devices:         devices,
		sanitizer:       sanitizer,
		metrics:         noopActionRecorder{},
		now:             time.Now,
		defaultDuration: DefaultMeetingDuration,
		viewLimit:       DefaultViewLimit,
		maxConcurrent:   DefaultMaxConcurrentView,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMeeting は現在時刻から始まる会議を作成する。
// 終了時刻は次のイベントの開始時刻を超えない。
func (s *Service) CreateMeeting(ctx context.Context, deviceID string, req CreateRequest) (*Booking, error) {
	// 1. リクエストを検証
	if req.DurationMinutes < 0 {
		return nil, model.NewInvalidRequestError("time_in_minutes must not be negative")
	}
	if req.DurationMinutes > MaxMeetingMinutes {
		return nil, model.NewInvalidRequestError("time_in_minutes must not exceed 1440")
	}
	duration := s.defaultDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	// 2. デバイスから対象カレンダーとプロバイダを解決
	provider, calendarID, err := s.resolve(ctx, deviceID, req.CalendarID)
	if err != nil {
		return nil, err
	}

	// 3. カレンダーとイベントを取得（いずれかが失敗した場合は作成しない）
	cal, err := provider.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	events, err := provider.GetEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}

	// 4. 次のイベントに重ならない終了時刻を決定
	now := s.now()
	end := BookingEnd(now, duration, events)
	if !end.After(now) {
		return nil, model.NewInvalidMeetingWindowError()
	}

	summary := s.sanitizer.Sanitize(req.Summary)
	if summary == "" {
		summary = "Meeting in " + cal.Summary
	}

	// 5. チェックイン済みのイベントとして作成
	meetingID, err := provider.CreateEvent(ctx, calendarID, model.NewEvent{
		Start:       now,
		End:         end,
		IsCheckedIn: true,
		Summary:     summary,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMeetingAction(ActionCreate)

	slog.Info("meeting created",
		slog.String("device_id", deviceID),
		slog.String("calendar_id", calendarID),
		slog.String("meeting_id", meetingID),
		slog.Time("end", end),
	)

	return &Booking{
		MeetingID:  meetingID,
		CalendarID: calendarID,
		Summary:    summary,
		Start:      now,
		End:        end,
	}, nil
}

// ModifyMeeting は既存の会議の開始・終了・チェックイン状態を変更する。
// 要求されたフィールドのみをプロバイダに送信する。
func (s *Service) ModifyMeeting(ctx context.Context, deviceID, meetingID string, req ModifyRequest) (*Change, error) {
	if req.ExtensionMinutes < 0 {
		return nil, model.NewInvalidRequestError("extension_time must not be negative")
	}
	if req.ExtensionMinutes > MaxMeetingMinutes {
		return nil, model.NewInvalidRequestError("extension_time must not exceed 1440")
	}

	provider, calendarID, err := s.resolve(ctx, deviceID, "")
	if err != nil {
		return nil, err
	}

	events, err := provider.GetEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	event := findEvent(events, meetingID)
	if event == nil {
		return nil, model.NewMeetingNotFoundError(meetingID)
	}

	now := s.now()
	patch := model.EventPatch{IsCheckedIn: req.CheckIn}
	if req.StartNow {
		patch.Start = &now
	}

	switch {
	case req.EndNow:
		patch.End = &now
	case req.ExtensionMinutes > 0:
		current, ok := event.EndInstant()
		if !ok {
			return nil, model.NewInvalidMeetingWindowError()
		}
		next, hasNext := NextEventStart(events, now, meetingID)
		end := ExtendedEnd(current, time.Duration(req.ExtensionMinutes)*time.Minute, next, hasNext)
		patch.End = &end
	}

	// 開始時刻より前に終了する会議は作らない
	if patch.End != nil {
		start, ok := event.StartInstant()
		if patch.Start != nil {
			start, ok = *patch.Start, true
		}
		if ok && patch.End.Before(start) {
			return nil, model.NewInvalidMeetingWindowError()
		}
	}

	change := &Change{
		MeetingID: meetingID,
		Start:     patch.Start,
		End:       patch.End,
		CheckedIn: event.IsCheckedIn || patch.IsCheckedIn,
	}
	if patch.IsEmpty() {
		return change, nil
	}

	if err := provider.PatchEvent(ctx, calendarID, meetingID, patch); err != nil {
		return nil, err
	}
	s.metrics.RecordMeetingAction(ActionModify)

	slog.Info("meeting modified",
		slog.String("device_id", deviceID),
		slog.String("calendar_id", calendarID),
		slog.String("meeting_id", meetingID),
		slog.Bool("start_now", req.StartNow),
		slog.Bool("end_now", req.EndNow),
		slog.Int("extension_minutes", req.ExtensionMinutes),
		slog.Bool("check_in", req.CheckIn),
	)
	return change, nil
}

// DeleteMeeting は会議を削除する。プロバイダの失敗はそのまま返す。
func (s *Service) DeleteMeeting(ctx context.Context, deviceID, meetingID string) error {
	provider, calendarID, err := s.resolve(ctx, deviceID, "")
	if err != nil {
		return err
	}

	if err := provider.DeleteEvent(ctx, calendarID, meetingID); err != nil {
		return err
	}
	s.metrics.RecordMeetingAction(ActionDelete)

	slog.Info("meeting deleted",
		slog.String("device_id", deviceID),
		slog.String("calendar_id", calendarID),
		slog.String("meeting_id", meetingID),
	)
	return nil
}

// CalendarView は指定カレンダーの表示用ビューを組み立てる。
func (s *Service) CalendarView(ctx context.Context, userID, calendarID string) (*CalendarView, error) {
	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.calendarView(ctx, provider, calendarID)
}

// AllCalendarViews はユーザーの全カレンダーデバイスに設定されたカレンダーのビューを並列に取得する。
// カレンダーIDで重複を除き、最初に現れた順に返す。1つでも失敗した場合は全体を失敗とする。
func (s *Service) AllCalendarViews(ctx context.Context, userID string) ([]*CalendarView, error) {
	devices, err := s.devices.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	calendarIDs := distinctCalendarIDs(devices)
	if len(calendarIDs) == 0 {
		return []*CalendarView{}, nil
	}

	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]*CalendarView, len(calendarIDs))
	errs := make([]error, len(calendarIDs))

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for i, id := range calendarIDs {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			views[i], errs[i] = s.calendarView(ctx, provider, id)
		}(i, id)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return views, nil
}

func (s *Service) calendarView(ctx context.Context, provider calendar.Provider, calendarID string) (*CalendarView, error) {
	cal, err := provider.GetCalendar(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	events, err := provider.GetEvents(ctx, calendarID)
	if err != nil {
		return nil, err
	}
	return &CalendarView{
		Calendar:        cal,
		CanModifyEvents: cal.CanModifyEvents(),
		Events:          UpcomingEvents(events, s.now(), s.viewLimit),
	}, nil
}

// resolve はデバイスの所有者のプロバイダと操作対象のカレンダーIDを返す。
// calendarID を指定した場合は、所有者のカレンダーデバイスに設定されたものに限る。
func (s *Service) resolve(ctx context.Context, deviceID, calendarID string) (calendar.Provider, string, error) {
	device, err := s.devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find device: %w", err)
	}
	if device == nil {
		return nil, "", model.NewDeviceNotFoundError()
	}
	if !device.IsConnected() {
		return nil, "", model.NewNoCalendarSelectedError()
	}

	if calendarID == "" || calendarID == device.CalendarID {
		if device.CalendarID == "" {
			return nil, "", model.NewNoCalendarSelectedError()
		}
		calendarID = device.CalendarID
	} else {
		devices, err := s.devices.ListByUserID(ctx, device.UserID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list devices: %w", err)
		}
		if !slices.Contains(distinctCalendarIDs(devices), calendarID) {
			return nil, "", model.NewCalendarNotFoundError(calendarID)
		}
	}

	provider, err := s.providers.ForUser(ctx, device.UserID)
	if err != nil {
		return nil, "", err
	}
	return provider, calendarID, nil
}

// distinctCalendarIDs はカレンダーデバイスに設定されたカレンダーIDを重複なく出現順に返す。
func distinctCalendarIDs(devices []*model.Device) []string {
	seen := make(map[string]struct{}, len(devices))
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.DeviceType != model.DeviceTypeCalendar || d.CalendarID == "" {
			continue
		}
		if _, ok := seen[d.CalendarID]; ok {
			continue
		}
		seen[d.CalendarID] = struct{}{}
		ids = append(ids, d.CalendarID)
	}
	return ids
}
