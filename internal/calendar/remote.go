package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

// ErrNotFound はリモートでカレンダーまたはイベントが見つからないことを表す。
var ErrNotFound = errors.New("calendar resource not found")

// Remote はGoogleカレンダーAPIの呼び出しを抽象化するインターフェース。
// キャッシュやエラー分類は持たず、ワイヤーレベルの呼び出しのみを担う。
type Remote interface {
	// ListCalendars はアカウントのカレンダーリストを全ページ取得する。
	ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error)
	// GetCalendar は指定カレンダーのリストエントリを取得する。存在しない場合は ErrNotFound を返す。
	GetCalendar(ctx context.Context, calendarID string) (*gcal.CalendarListEntry, error)
	// ListEvents は [timeMin, timeMax) と重なるイベントを繰り返し展開済み・開始時刻順で取得する。
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*gcal.Event, error)
	// InsertEvent はイベントを作成し、作成されたイベントを返す。
	InsertEvent(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error)
	// PatchEvent はイベントを部分更新する。存在しない場合は ErrNotFound を返す。
	PatchEvent(ctx context.Context, calendarID, eventID string, event *gcal.Event) error
	// DeleteEvent はイベントを削除する。存在しない場合は ErrNotFound を返す。
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	// Profile は認証済みユーザーのプロフィールを取得する。
	Profile(ctx context.Context) (*people.Person, error)
}

// GoogleRemote はGoogle Calendar API v3 と People API v1 を使うRemoteの実装。
type GoogleRemote struct {
	calendar *gcal.Service
	people   *people.Service
}

// NewGoogleRemote は新しいGoogleRemoteを生成する。
// 認証済みHTTPクライアントは option.WithHTTPClient で渡す。
func NewGoogleRemote(ctx context.Context, opts ...option.ClientOption) (*GoogleRemote, error) {
	calSvc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	peopleSvc, err := people.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create people service: %w", err)
	}
	return &GoogleRemote{calendar: calSvc, people: peopleSvc}, nil
}

// ListCalendars はカレンダーリストを全ページ取得する。
func (r *GoogleRemote) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	var items []*gcal.CalendarListEntry
	err := r.calendar.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		items = append(items, page.Items...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return items, nil
}

// GetCalendar は指定カレンダーのリストエントリを取得する。
func (r *GoogleRemote) GetCalendar(ctx context.Context, calendarID string) (*gcal.CalendarListEntry, error) {
	entry, err := r.calendar.CalendarList.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get calendar %s: %w", calendarID, err))
	}
	return entry, nil
}

// ListEvents は期間内のイベントを繰り返し展開済み・開始時刻順で取得する。
func (r *GoogleRemote) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*gcal.Event, error) {
	var items []*gcal.Event
	err := r.calendar.Events.List(calendarID).
		SingleEvents(true).
		TimeMin(timeMin.UTC().Format(time.RFC3339)).
		TimeMax(timeMax.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			items = append(items, page.Items...)
			return nil
		})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list events of %s: %w", calendarID, err))
	}
	return items, nil
}

// InsertEvent はイベントを作成する。
func (r *GoogleRemote) InsertEvent(ctx context.Context, calendarID string, event *gcal.Event) (*gcal.Event, error) {
	created, err := r.calendar.Events.Insert(calendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to insert event into %s: %w", calendarID, err))
	}
	return created, nil
}

// PatchEvent はイベントを部分更新する。
func (r *GoogleRemote) PatchEvent(ctx context.Context, calendarID, eventID string, event *gcal.Event) error {
	if _, err := r.calendar.Events.Patch(calendarID, eventID, event).Context(ctx).Do(); err != nil {
		return classify(fmt.Errorf("failed to patch event %s: %w", eventID, err))
	}
	return nil
}

// DeleteEvent はイベントを削除する。
func (r *GoogleRemote) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := r.calendar.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return classify(fmt.Errorf("failed to delete event %s: %w", eventID, err))
	}
	return nil
}

// Profile は認証済みユーザーの名前と写真を取得する。
func (r *GoogleRemote) Profile(ctx context.Context) (*people.Person, error) {
	person, err := r.people.People.Get("people/me").PersonFields("names,photos").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return person, nil
}

// classify は404/410応答を ErrNotFound に変換する。
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

var _ Remote = (*GoogleRemote)(nil)
