// Package device は会議室デバイスの登録・接続・設定と、デバイス表示用の状態取得を提供する。
package device

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/roomcal/internal/meeting"
	"github.com/hitoshi/roomcal/internal/model"
	"github.com/hitoshi/roomcal/internal/repository"
)

// 既定値
const (
	DefaultOnlineThreshold = 70 * time.Second
	connectionCodeDigits   = 5
	maxCodeAttempts        = 5
)

// SessionIssuer はデバイスセッションを発行するインターフェース。
type SessionIssuer interface {
	CreateDeviceSession(ctx context.Context, deviceID string) (*model.Session, error)
}

// CalendarViewer はカレンダービューを組み立てるインターフェース。
type CalendarViewer interface {
	CalendarView(ctx context.Context, userID, calendarID string) (*meeting.CalendarView, error)
	AllCalendarViews(ctx context.Context, userID string) ([]*meeting.CalendarView, error)
}

// State はデバイスに表示する状態。
// Calendar はカレンダー未設定の場合nil、AllCalendars は要求されない場合nil。
type State struct {
	Device       *model.Device
	Calendar     *meeting.CalendarView
	AllCalendars []*meeting.CalendarView
}

// Status は管理画面に表示するデバイスの稼働状況。
type Status struct {
	Device            *model.Device
	IsOnline          bool
	SinceLastActivity time.Duration
}

// UpdateRequest はデバイス設定の部分更新リクエスト。nilのフィールドは変更しない。
// CalendarID に空文字列を指定するとカレンダーの設定を解除する。
type UpdateRequest struct {
	CalendarID        *string
	DeviceType        *model.DeviceType
	Language          *string
	ClockType         *int
	MinutesForCheckIn *int
}

// Service はデバイス管理のサービス層。
type Service struct {
	repo            repository.DeviceRepository
	sessions        SessionIssuer
	views           CalendarViewer
	providers       meeting.ProviderSource
	now             func() time.Time
	onlineThreshold time.Duration
}

// NewService はServiceの新しいインスタンスを生成する。
// onlineThreshold が0以下の場合は DefaultOnlineThreshold を使用する。
func NewService(
	repo repository.DeviceRepository,
	sessions SessionIssuer,
	views CalendarViewer,
	providers meeting.ProviderSource,
	onlineThreshold time.Duration,
) *Service {
	if onlineThreshold <= 0 {
		onlineThreshold = DefaultOnlineThreshold
	}
	return &Service{
		repo:            repo,
		sessions:        sessions,
		views:           views,
		providers:       providers,
		now:             time.Now,
		onlineThreshold: onlineThreshold,
	}
}

// Register は未接続のデバイスを登録し、デバイスセッションを発行する。
// 接続コードは未接続デバイス間で重複しない5桁の数字。
func (s *Service) Register(ctx context.Context) (*model.Device, *model.Session, error) {
	// 1. 重複しない接続コードを生成
	code, err := s.newConnectionCode(ctx)
	if err != nil {
		return nil, nil, err
	}

	// 2. デバイスを作成
	now := s.now()
	device := &model.Device{
		ID:             uuid.NewString(),
		ConnectionCode: code,
		DeviceType:     model.DeviceTypeCalendar,
		Language:       model.DefaultDeviceLanguage,
		ClockType:      model.DefaultDeviceClockType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, device); err != nil {
		return nil, nil, fmt.Errorf("failed to create device: %w", err)
	}

	// 3. デバイスセッションを発行
	session, err := s.sessions.CreateDeviceSession(ctx, device.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("device registered", slog.String("device_id", device.ID))
	return device, session, nil
}

func (s *Service) newConnectionCode(ctx context.Context) (string, error) {
	limit := big.NewInt(100000)
	for i := 0; i < maxCodeAttempts; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate connection code: %w", err)
		}
		code := fmt.Sprintf("%0*d", connectionCodeDigits, n.Int64())

		existing, err := s.repo.FindByConnectionCode(ctx, code)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique connection code after %d attempts", maxCodeAttempts)
}

// GetState はデバイスに表示する状態を返し、デバイスの最終アクセス時刻を更新する。
// ダッシュボードデバイスは常に、カレンダーデバイスは includeAll の場合に全カレンダーを含める。
func (s *Service) GetState(ctx context.Context, deviceID string, includeAll bool) (*State, error) {
	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	if device == nil {
		return nil, model.NewDeviceNotFoundError()
	}

	state := &State{Device: device}
	if device.IsConnected() {
		calendarSelected := device.CalendarID != ""
		if calendarSelected {
			state.Calendar, err = s.views.CalendarView(ctx, device.UserID, device.CalendarID)
			if err != nil {
				return nil, err
			}
		}
		if device.DeviceType == model.DeviceTypeDashboard || (calendarSelected && includeAll) {
			state.AllCalendars, err = s.views.AllCalendarViews(ctx, device.UserID)
			if err != nil {
				return nil, err
			}
		}
	}

	// ハートビートの失敗では表示を止めない
	if err := s.repo.Touch(ctx, deviceID, s.now()); err != nil {
		slog.Warn("failed to record device heartbeat",
			slog.String("device_id", deviceID),
			slog.String("error", err.Error()),
		)
	}

	return state, nil
}

// ListDevices はユーザーに接続された全デバイスの稼働状況を返す。
func (s *Service) ListDevices(ctx context.Context, userID string) ([]*Status, error) {
	devices, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	statuses := make([]*Status, 0, len(devices))
	for _, d := range devices {
		statuses = append(statuses, s.status(d))
	}
	return statuses, nil
}

// ConnectDevice は接続コードで未接続デバイスを検索し、ユーザーに接続する。
func (s *Service) ConnectDevice(ctx context.Context, userID, connectionCode string) (*Status, error) {
	code := strings.TrimSpace(connectionCode)
	if code == "" {
		return nil, model.NewInvalidRequestError("connection_code is required")
	}

	device, err := s.repo.FindByConnectionCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	if device == nil {
		return nil, model.NewConnectionCodeNotFoundError()
	}

	connected, err := s.repo.Connect(ctx, device.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect device: %w", err)
	}
	if !connected {
		// 検索後に別のユーザーが先に接続した
		return nil, model.NewConnectionCodeNotFoundError()
	}
	device.UserID = userID
	device.ConnectionCode = ""

	slog.Info("device connected",
		slog.String("device_id", device.ID),
		slog.String("user_id", userID),
	)
	return s.status(device), nil
}

// UpdateDevice はユーザーが所有するデバイスの設定を更新する。
// カレンダーIDはユーザーのカレンダー一覧に含まれるものに限る。
func (s *Service) UpdateDevice(ctx context.Context, userID, deviceID string, req UpdateRequest) (*model.Device, error) {
	device, err := s.findOwned(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}

	// 1. 現在の設定にリクエストを重ねる
	settings := model.DeviceSettings{
		CalendarID:        device.CalendarID,
		DeviceType:        device.DeviceType,
		Language:          device.Language,
		ClockType:         device.ClockType,
		MinutesForCheckIn: device.MinutesForCheckIn,
	}
	if req.CalendarID != nil {
		settings.CalendarID = strings.TrimSpace(*req.CalendarID)
	}
	if req.DeviceType != nil {
		settings.DeviceType = *req.DeviceType
	}
	if req.Language != nil {
		settings.Language = strings.TrimSpace(*req.Language)
	}
	if req.ClockType != nil {
		settings.ClockType = *req.ClockType
	}
	if req.MinutesForCheckIn != nil {
		settings.MinutesForCheckIn = *req.MinutesForCheckIn
	}

	// 2. 値を検証
	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	// 3. カレンダーの存在を確認
	if req.CalendarID != nil && settings.CalendarID != "" && settings.CalendarID != device.CalendarID {
		if err := s.checkCalendar(ctx, userID, settings.CalendarID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateSettings(ctx, deviceID, settings); err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}

	device.CalendarID = settings.CalendarID
	device.DeviceType = settings.DeviceType
	device.Language = settings.Language
	device.ClockType = settings.ClockType
	device.MinutesForCheckIn = settings.MinutesForCheckIn

	slog.Info("device updated",
		slog.String("device_id", deviceID),
		slog.String("calendar_id", settings.CalendarID),
		slog.String("device_type", string(settings.DeviceType)),
	)
	return device, nil
}

// RemoveDevice はユーザーが所有するデバイスを削除する。
// 存在しない、または他のユーザーのデバイスの場合は何もしない。
func (s *Service) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	device, err := s.findOwned(ctx, userID, deviceID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDeviceNotFound {
			return nil
		}
		return err
	}

	if err := s.repo.Delete(ctx, device.ID); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	slog.Info("device removed",
		slog.String("device_id", device.ID),
		slog.String("user_id", userID),
	)
	return nil
}

// findOwned はユーザーが所有するデバイスを返す。該当しない場合は DEVICE_NOT_FOUND を返す。
func (s *Service) findOwned(ctx context.Context, userID, deviceID string) (*model.Device, error) {
	if _, err := uuid.Parse(deviceID); err != nil {
		return nil, model.NewDeviceNotFoundError()
	}

	device, err := s.repo.FindByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	if device == nil || device.UserID != userID {
		return nil, model.NewDeviceNotFoundError()
	}
	return device, nil
}

func (s *Service) checkCalendar(ctx context.Context, userID, calendarID string) error {
	provider, err := s.providers.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	calendars, err := provider.GetCalendars(ctx)
	if err != nil {
		return err
	}
	found := slices.ContainsFunc(calendars, func(c *model.Calendar) bool {
		return c.ID == calendarID
	})
	if !found {
		return model.NewCalendarNotFoundError(calendarID)
	}
	return nil
}

func (s *Service) status(d *model.Device) *Status {
	since := s.now().Sub(d.UpdatedAt)
	return &Status{
		Device:            d,
		IsOnline:          since < s.onlineThreshold,
		SinceLastActivity: since,
	}
}

// validateSettings はデバイス設定の値を検証する。
func validateSettings(s model.DeviceSettings) error {
	if !s.DeviceType.IsValid() {
		return model.NewInvalidDeviceSettingsError(fmt.Sprintf("unknown device_type %q", s.DeviceType))
	}
	if s.ClockType != 12 && s.ClockType != 24 {
		return model.NewInvalidDeviceSettingsError("clock_type must be 12 or 24")
	}
	if s.MinutesForCheckIn < 0 {
		return model.NewInvalidDeviceSettingsError("minutes_for_check_in must not be negative")
	}
	if s.Language == "" {
		return model.NewInvalidDeviceSettingsError("language is required")
	}
	return nil
}
