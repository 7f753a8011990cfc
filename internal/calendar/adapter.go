package calendar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/hitoshi/roomcal/internal/cache"
	"github.com/hitoshi/roomcal/internal/model"
	gcal "google.golang.org/api/calendar/v3"
)

// DefaultEventsWindow はイベント取得時に現在時刻の前後へ広げる期間。
const DefaultEventsWindow = 24 * time.Hour

// キャッシュのリソース名。キーの接頭辞とメトリクスのラベルに使用する。
const (
	resourceCalendars = "calendars"
	resourceCalendar  = "calendar"
	resourceEvents    = "events"
)

// プロフィールの既定値
const (
	unknownDisplayName = "Unknown"
)

// Provider は1つの認証済みアカウントに対するカレンダー操作のインターフェース。
type Provider interface {
	// GetUserDetails はアカウントのプロフィールを返す。キャッシュしない。
	GetUserDetails(ctx context.Context) (*model.UserDetails, error)
	// GetCalendars はアカウントのカレンダー一覧を返す。
	GetCalendars(ctx context.Context) ([]*model.Calendar, error)
	// GetCalendar は指定カレンダーを返す。
	GetCalendar(ctx context.Context, calendarID string) (*model.Calendar, error)
	// GetEvents は現在時刻前後のイベントを開始時刻の昇順で返す。
	GetEvents(ctx context.Context, calendarID string) ([]*model.Event, error)
	// CreateEvent はイベントを作成し、作成されたイベントのIDを返す。
	CreateEvent(ctx context.Context, calendarID string, in model.NewEvent) (string, error)
	// PatchEvent はイベントを部分更新する。
	PatchEvent(ctx context.Context, calendarID, eventID string, patch model.EventPatch) error
	// DeleteEvent はイベントを削除する。
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	// IsAccessTokenValid は認証情報が有効かどうかを返す。失敗の理由は区別しない。
	IsAccessTokenValid(ctx context.Context) bool
}

// MetricsRecorder はキャッシュとプロバイダ呼び出しの計測インターフェース。
type MetricsRecorder interface {
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
	RecordCacheInvalidation(resource string)
	ObserveProviderCall(op string, duration time.Duration, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordCacheHit(string)                             {}
func (noopRecorder) RecordCacheMiss(string)                            {}
func (noopRecorder) RecordCacheInvalidation(string)                    {}
func (noopRecorder) ObserveProviderCall(string, time.Duration, error) {}

// Adapter はキャッシュ付きのProvider実装。
// 読み取りはキャッシュを経由し、書き込みは呼び出し前に該当キーを無効化する。
// リトライは行わず、リモートの失敗は model.ProviderError として返す。
type Adapter struct {
	remote  Remote
	cache   *cache.TTLCache[any]
	scope   string
	window  time.Duration
	now     func() time.Time
	metrics MetricsRecorder
}

// AdapterOption はAdapterの生成オプション。
type AdapterOption func(*Adapter)

// WithEventsWindow はイベント取得期間を変更する。
func WithEventsWindow(d time.Duration) AdapterOption {
	return func(a *Adapter) {
		if d > 0 {
			a.window = d
		}
	}
}

// WithNow は現在時刻の取得関数を差し替える。
func WithNow(now func() time.Time) AdapterOption {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithMetrics はメトリクス記録先を設定する。
func WithMetrics(m MetricsRecorder) AdapterOption {
	return func(a *Adapter) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAdapter は新しいAdapterを生成する。
// scope はキャッシュキーの名前空間で、通常は ScopeKey で認証情報から導出する。
func NewAdapter(remote Remote, c *cache.TTLCache[any], scope string, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		remote:  remote,
		cache:   c,
		scope:   scope,
		window:  DefaultEventsWindow,
		now:     time.Now,
		metrics: noopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ScopeKey は認証情報からキャッシュのスコープキーを導出する。
// リフレッシュトークンのSHA-256ハッシュを使い、ない場合はユーザーIDを使う。
func ScopeKey(creds *model.Credentials) string {
	if creds.RefreshToken == "" {
		return "user:" + creds.UserID
	}
	sum := sha256.Sum256([]byte(creds.RefreshToken))
	return hex.EncodeToString(sum[:16])
}

// Scope はキャッシュのスコープキーを返す。
func (a *Adapter) Scope() string {
	return a.scope
}

func (a *Adapter) calendarsKey() string {
	return fmt.Sprintf("%s-%s", resourceCalendars, a.scope)
}

func (a *Adapter) calendarKey(calendarID string) string {
	return fmt.Sprintf("%s-%s-%s", resourceCalendar, a.scope, calendarID)
}

func (a *Adapter) eventsKey(calendarID string) string {
	return fmt.Sprintf("%s-%s-%s", resourceEvents, a.scope, calendarID)
}

// call はリモート呼び出しの所要時間を記録し、失敗を ProviderError に包む。
func (a *Adapter) call(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	a.metrics.ObserveProviderCall(op, time.Since(start), err)
	if err != nil {
		return &model.ProviderError{Op: op, Err: err}
	}
	return nil
}

// GetUserDetails はアカウントのプロフィールを返す。
// 表示名がない場合は "Unknown"、写真がない場合は空文字列となる。
func (a *Adapter) GetUserDetails(ctx context.Context) (*model.UserDetails, error) {
	details := &model.UserDetails{DisplayName: unknownDisplayName}

	err := a.call("people.get", func() error {
		person, err := a.remote.Profile(ctx)
		if err != nil {
			return err
		}
		if len(person.Names) > 0 && person.Names[0] != nil && person.Names[0].DisplayName != "" {
			details.DisplayName = person.Names[0].DisplayName
		}
		if len(person.Photos) > 0 && person.Photos[0] != nil {
			details.PhotoURL = person.Photos[0].Url
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// GetCalendars はカレンダー一覧を返す。
func (a *Adapter) GetCalendars(ctx context.Context) ([]*model.Calendar, error) {
	key := a.calendarsKey()
	if v, ok := a.cache.Get(key); ok {
		if calendars, ok := v.([]*model.Calendar); ok {
			a.metrics.RecordCacheHit(resourceCalendars)
			return calendars, nil
		}
	}
	a.metrics.RecordCacheMiss(resourceCalendars)

	var entries []*gcal.CalendarListEntry
	err := a.call("calendarList.list", func() error {
		var err error
		entries, err = a.remote.ListCalendars(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	calendars := make([]*model.Calendar, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			continue
		}
		calendars = append(calendars, MapCalendar(e))
	}

	a.cache.Set(key, calendars)
	return calendars, nil
}

// GetCalendar は指定カレンダーを返す。存在しない場合は CALENDAR_NOT_FOUND を返す。
func (a *Adapter) GetCalendar(ctx context.Context, calendarID string) (*model.Calendar, error) {
	key := a.calendarKey(calendarID)
	if v, ok := a.cache.Get(key); ok {
		if cal, ok := v.(*model.Calendar); ok {
			a.metrics.RecordCacheHit(resourceCalendar)
			return cal, nil
		}
	}
	a.metrics.RecordCacheMiss(resourceCalendar)

	var entry *gcal.CalendarListEntry
	err := a.call("calendarList.get", func() error {
		var err error
		entry, err = a.remote.GetCalendar(ctx, calendarID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, model.NewCalendarNotFoundError(calendarID)
		}
		return nil, err
	}

	cal := MapCalendar(entry)
	a.cache.Set(key, cal)
	return cal, nil
}

// GetEvents は [now-window, now+window] と重なるイベントを開始時刻の昇順で返す。
// 日時を解析できないイベントが含まれる場合はエラーを返し、キャッシュしない。
func (a *Adapter) GetEvents(ctx context.Context, calendarID string) ([]*model.Event, error) {
	key := a.eventsKey(calendarID)
	if v, ok := a.cache.Get(key); ok {
		if events, ok := v.([]*model.Event); ok {
			a.metrics.RecordCacheHit(resourceEvents)
			return events, nil
		}
	}
	a.metrics.RecordCacheMiss(resourceEvents)

	now := a.now()
	var raw []*gcal.Event
	err := a.call("events.list", func() error {
		var err error
		raw, err = a.remote.ListEvents(ctx, calendarID, now.Add(-a.window), now.Add(a.window))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, model.NewCalendarNotFoundError(calendarID)
		}
		return nil, err
	}

	events := make([]*model.Event, 0, len(raw))
	for _, r := range raw {
		ev, err := MapEvent(r)
		if errors.Is(err, model.ErrInvalidEvent) {
			slog.Warn("IDのないイベントをスキップしました",
				slog.String("calendar_id", calendarID),
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to map events of %s: %w", calendarID, err)
		}
		events = append(events, ev)
	}
	sortByStart(events)

	a.cache.Set(key, events)
	return events, nil
}

// CreateEvent はイベントを作成する。リモート呼び出しの成否にかかわらずイベントキャッシュを無効化する。
func (a *Adapter) CreateEvent(ctx context.Context, calendarID string, in model.NewEvent) (string, error) {
	a.invalidateEvents(calendarID)

	event := &gcal.Event{
		Summary: in.Summary,
		Start:   formatInstant(in.Start),
		End:     formatInstant(in.End),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				CheckInProperty: strconv.FormatBool(in.IsCheckedIn),
			},
		},
	}

	var created *gcal.Event
	err := a.call("events.insert", func() error {
		var err error
		created, err = a.remote.InsertEvent(ctx, calendarID, event)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", model.NewCalendarNotFoundError(calendarID)
		}
		return "", err
	}
	if created == nil {
		return "", nil
	}
	return created.Id, nil
}

// PatchEvent はpatchで指定されたフィールドのみを更新する。
// チェックイン状態は true の場合のみ送信するため、この操作で解除することはできない。
func (a *Adapter) PatchEvent(ctx context.Context, calendarID, eventID string, patch model.EventPatch) error {
	a.invalidateEvents(calendarID)

	event := &gcal.Event{}
	if patch.Start != nil {
		event.Start = formatInstant(*patch.Start)
	}
	if patch.End != nil {
		event.End = formatInstant(*patch.End)
	}
	if patch.IsCheckedIn {
		event.ExtendedProperties = &gcal.EventExtendedProperties{
			Private: map[string]string{CheckInProperty: "true"},
		}
	}

	err := a.call("events.patch", func() error {
		return a.remote.PatchEvent(ctx, calendarID, eventID, event)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NewMeetingNotFoundError(eventID)
		}
		return err
	}
	return nil
}

// DeleteEvent はイベントを削除する。リモート呼び出しの成否にかかわらずイベントキャッシュを無効化する。
func (a *Adapter) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	a.invalidateEvents(calendarID)

	err := a.call("events.delete", func() error {
		return a.remote.DeleteEvent(ctx, calendarID, eventID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NewMeetingNotFoundError(eventID)
		}
		return err
	}
	return nil
}

// IsAccessTokenValid はカレンダー一覧の取得を試み、失敗した場合は理由を問わず false を返す。
func (a *Adapter) IsAccessTokenValid(ctx context.Context) bool {
	_, err := a.GetCalendars(ctx)
	return err == nil
}

func (a *Adapter) invalidateEvents(calendarID string) {
	a.cache.Delete(a.eventsKey(calendarID))
	a.metrics.RecordCacheInvalidation(resourceEvents)
}

// sortByStart はイベントを開始時刻の昇順に安定ソートする。開始時刻のないイベントは末尾に置く。
func sortByStart(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		si, sj := events[i].Start, events[j].Start
		if si == nil || sj == nil {
			return si != nil && sj == nil
		}
		return si.SortKey().Before(sj.SortKey())
	})
}

var _ Provider = (*Adapter)(nil)
