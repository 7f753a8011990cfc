// Package calendar はGoogleカレンダーとの連携を提供する。
//
// 外部サービスと通信するのはこのパッケージのみで、読み取り結果は
// TTLキャッシュに保存し、書き込み時に該当キャッシュを無効化する。
// プロバイダのイベント表現は NormalizeTime と MapEvent で内部モデルに変換する。
package calendar

import (
	"fmt"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
	gcal "google.golang.org/api/calendar/v3"
)

const dateLayout = "2006-01-02"

// NormalizeTime はプロバイダの日付・日時をUTCの暦フィールドに分解する。
// dateTime は date より優先され、IsFixedToUTC=true となる。
// date のみの場合はその日の0時とし、IsFixedToUTC=false となる。
// 値がない場合は nil を返す。解析できない値は model.ErrMalformedTimeValue を返す。
func NormalizeTime(v *gcal.EventDateTime) (*model.CalendarTime, error) {
	if v == nil {
		return nil, nil
	}

	if v.DateTime != "" {
		t, err := time.Parse(time.RFC3339, v.DateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: dateTime %q: %v", model.ErrMalformedTimeValue, v.DateTime, err)
		}
		ct := model.InstantAt(t)
		return &ct, nil
	}

	if v.Date != "" {
		t, err := time.Parse(dateLayout, v.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date %q: %v", model.ErrMalformedTimeValue, v.Date, err)
		}
		ct := model.AllDay(t.Year(), t.Month(), t.Day())
		return &ct, nil
	}

	return nil, nil
}

// formatInstant は絶対時刻をプロバイダの日時表現（RFC3339, UTC）に変換する。
func formatInstant(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{
		DateTime: t.UTC().Format(time.RFC3339),
	}
}
