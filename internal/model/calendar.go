package model

import "time"

// CalendarTime はカレンダープロバイダが返した時刻をUTCの暦フィールドに分解したもの。
// IsFixedToUTC が true の場合は絶対時刻（Instant）、false の場合は終日の日付（AllDay）を表す。
// 終日の値は時刻帯を持たないため、Instant に変換してはならない。
type CalendarTime struct {
	Year         int
	Month        time.Month // 1-12
	Day          int
	Hour         int
	Minute       int
	Second       int
	IsFixedToUTC bool
}

// AllDay は終日の日付を表すCalendarTimeを生成する。
func AllDay(year int, month time.Month, day int) CalendarTime {
	return CalendarTime{Year: year, Month: month, Day: day}
}

// InstantAt は絶対時刻を表すCalendarTimeを生成する。秒未満は切り捨てる。
func InstantAt(t time.Time) CalendarTime {
	u := t.UTC()
	return CalendarTime{
		Year:         u.Year(),
		Month:        u.Month(),
		Day:          u.Day(),
		Hour:         u.Hour(),
		Minute:       u.Minute(),
		Second:       u.Second(),
		IsFixedToUTC: true,
	}
}

// Instant は絶対時刻を返す。終日の値の場合は ok=false を返す。
func (c CalendarTime) Instant() (time.Time, bool) {
	if !c.IsFixedToUTC {
		return time.Time{}, false
	}
	return c.wall(), true
}

// IsAllDay は終日の日付かどうかを返す。
func (c CalendarTime) IsAllDay() bool {
	return !c.IsFixedToUTC
}

// SortKey は並び替え用の時刻を返す。終日の値はUTCの0時として扱う。
// 比較以外の用途で使用してはならない。
func (c CalendarTime) SortKey() time.Time {
	return c.wall()
}

func (c CalendarTime) wall() time.Time {
	return time.Date(c.Year, c.Month, c.Day, c.Hour, c.Minute, c.Second, 0, time.UTC)
}

// Attendee はイベント参加者を表す。
type Attendee struct {
	Email          string
	DisplayName    string
	ResponseStatus string
	Optional       bool
	Resource       bool
	Self           bool
}

// Organizer はイベント主催者を表す。
type Organizer struct {
	Email       string
	DisplayName string
	Self        bool
}

// Event はカレンダーイベントの内部表現。
// キャッシュミス時に毎回新しく生成され、生成後に変更されることはない。
type Event struct {
	ID            string
	Summary       string
	Organizer     *Organizer
	IsAllDayEvent bool
	Start         *CalendarTime
	End           *CalendarTime
	Attendees     []Attendee
	IsCheckedIn   bool
}

// StartInstant は開始時刻が絶対時刻の場合にその値を返す。
func (e *Event) StartInstant() (time.Time, bool) {
	if e.Start == nil {
		return time.Time{}, false
	}
	return e.Start.Instant()
}

// EndInstant は終了時刻が絶対時刻の場合にその値を返す。
func (e *Event) EndInstant() (time.Time, bool) {
	if e.End == nil {
		return time.Time{}, false
	}
	return e.End.Instant()
}

// アクセスロール
const (
	AccessRoleOwner          = "owner"
	AccessRoleWriter         = "writer"
	AccessRoleReader         = "reader"
	AccessRoleFreeBusyReader = "freeBusyReader"
)

// Calendar はカレンダーのメタデータを表す。
type Calendar struct {
	ID          string
	Summary     string
	Description string
	Location    string
	AccessRole  string
}

// CanModifyEvents はイベントを書き込めるアクセスロールかどうかを返す。
func (c *Calendar) CanModifyEvents() bool {
	return c.AccessRole == AccessRoleWriter || c.AccessRole == AccessRoleOwner
}

// NewEvent はイベント作成時の入力。
type NewEvent struct {
	Start       time.Time
	End         time.Time
	IsCheckedIn bool
	Summary     string
}

// EventPatch はイベントの部分更新の入力。
// nilのフィールドは送信しない。IsCheckedIn は true の場合のみ送信する。
type EventPatch struct {
	Start       *time.Time
	End         *time.Time
	IsCheckedIn bool
}

// IsEmpty は更新対象のフィールドが1つもないかどうかを返す。
func (p EventPatch) IsEmpty() bool {
	return p.Start == nil && p.End == nil && !p.IsCheckedIn
}

// UserDetails はカレンダーアカウントのプロフィール情報を表す。
type UserDetails struct {
	DisplayName string
	PhotoURL    string
}

// Credentials はユーザーごとのOAuth認証情報を表す。
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time // アクセストークンの有効期限。ゼロ値は不明
	UpdatedAt    time.Time
}
