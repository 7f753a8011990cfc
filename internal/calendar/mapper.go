package calendar

import (
	"fmt"

	"github.com/hitoshi/roomcal/internal/model"
	gcal "google.golang.org/api/calendar/v3"
)

// CheckInProperty はチェックイン状態を保存するイベントの非公開拡張プロパティ名。
const CheckInProperty = "roomcalIsCheckedIn"

// MapEvent はプロバイダのイベントを内部のEventに変換する。
// IDがないイベントは model.ErrInvalidEvent を、日時が解析できない場合は
// model.ErrMalformedTimeValue をラップしたエラーを返す。
// 任意フィールドの欠落ではエラーにならない。
func MapEvent(e *gcal.Event) (*model.Event, error) {
	if e == nil || e.Id == "" {
		return nil, model.ErrInvalidEvent
	}

	start, err := NormalizeTime(e.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize start of event %s: %w", e.Id, err)
	}
	end, err := NormalizeTime(e.End)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize end of event %s: %w", e.Id, err)
	}

	ev := &model.Event{
		ID:            e.Id,
		Summary:       e.Summary,
		IsAllDayEvent: hasDateOnly(e.Start) || hasDateOnly(e.End),
		Start:         start,
		End:           end,
		Attendees:     mapAttendees(e.Attendees),
		IsCheckedIn:   isCheckedIn(e.ExtendedProperties),
	}
	if e.Organizer != nil {
		ev.Organizer = &model.Organizer{
			Email:       e.Organizer.Email,
			DisplayName: e.Organizer.DisplayName,
			Self:        e.Organizer.Self,
		}
	}
	return ev, nil
}

// MapCalendar はカレンダーリストのエントリを内部のCalendarに変換する。
func MapCalendar(c *gcal.CalendarListEntry) *model.Calendar {
	return &model.Calendar{
		ID:          c.Id,
		Summary:     c.Summary,
		Description: c.Description,
		Location:    c.Location,
		AccessRole:  c.AccessRole,
	}
}

func hasDateOnly(v *gcal.EventDateTime) bool {
	return v != nil && v.Date != ""
}

func mapAttendees(src []*gcal.EventAttendee) []model.Attendee {
	attendees := make([]model.Attendee, 0, len(src))
	for _, a := range src {
		if a == nil {
			continue
		}
		attendees = append(attendees, model.Attendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: a.ResponseStatus,
			Optional:       a.Optional,
			Resource:       a.Resource,
			Self:           a.Self,
		})
	}
	return attendees
}

// isCheckedIn は非公開拡張プロパティが文字列 "true" の場合のみ true を返す。
func isCheckedIn(props *gcal.EventExtendedProperties) bool {
	if props == nil || props.Private == nil {
		return false
	}
	return props.Private[CheckInProperty] == "true"
}
