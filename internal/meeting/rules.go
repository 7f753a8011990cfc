package meeting

import (
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

// NextEventStart は now より後に開始する最も近い時刻指定イベントの開始時刻を返す。
// 終日イベントと excludeID のイベントは対象外。該当がない場合は ok=false（上限なし）を返す。
func NextEventStart(events []*model.Event, now time.Time, excludeID string) (next time.Time, ok bool) {
	for _, e := range events {
		if e.IsAllDayEvent || (excludeID != "" && e.ID == excludeID) {
			continue
		}
		start, isInstant := e.StartInstant()
		if !isInstant || !start.After(now) {
			continue
		}
		if !ok || start.Before(next) {
			next, ok = start, true
		}
	}
	return next, ok
}

// BookingEnd は即時予約の終了時刻を返す。
// 希望終了時刻 now+duration と次のイベントの開始時刻のうち早い方を採用する。
func BookingEnd(now time.Time, duration time.Duration, events []*model.Event) time.Time {
	end := now.Add(duration)
	if next, ok := NextEventStart(events, now, ""); ok && next.Before(end) {
		return next
	}
	return end
}

// ExtendedEnd は延長後の終了時刻を返す。
// 次のイベントの開始時刻を超えず、現在の終了時刻より短くなることもない。
func ExtendedEnd(current time.Time, extension time.Duration, next time.Time, hasNext bool) time.Time {
	candidate := current.Add(extension)
	if hasNext && next.Before(candidate) {
		candidate = next
	}
	if candidate.Before(current) {
		return current
	}
	return candidate
}

// UpcomingEvents は終日イベントと終了時刻が now より後のイベントを先頭から最大 limit 件返す。
// limit が0以下の場合は件数を制限しない。
func UpcomingEvents(events []*model.Event, now time.Time, limit int) []*model.Event {
	result := make([]*model.Event, 0, len(events))
	for _, e := range events {
		if limit > 0 && len(result) >= limit {
			break
		}
		if e.IsAllDayEvent {
			result = append(result, e)
			continue
		}
		if end, ok := e.EndInstant(); ok && end.After(now) {
			result = append(result, e)
		}
	}
	return result
}

// findEvent は指定IDのイベントを返す。見つからない場合はnilを返す。
func findEvent(events []*model.Event, id string) *model.Event {
	for _, e := range events {
		if e.ID == id {
			return e
		}
	}
	return nil
}
