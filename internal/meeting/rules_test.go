package meeting

import (
	"testing"
	"time"

	"github.com/hitoshi/roomcal/internal/model"
)

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func timedEvent(id string, start, end time.Time) *model.Event {
	s := model.InstantAt(start)
	e := model.InstantAt(end)
	return &model.Event{ID: id, Start: &s, End: &e, Attendees: []model.Attendee{}}
}

func allDayEvent(id string, y int, m time.Month, d int) *model.Event {
	s := model.AllDay(y, m, d)
	e := model.AllDay(y, m, d+1)
	return &model.Event{ID: id, IsAllDayEvent: true, Start: &s, End: &e, Attendees: []model.Attendee{}}
}

func TestNextEventStart(t *testing.T) {
	tests := []struct {
		name      string
		events    []*model.Event
		exclude   string
		wantOK    bool
		wantStart time.Time
	}{
		{
			name:   "イベントなし",
			events: nil,
			wantOK: false,
		},
		{
			name: "進行中のイベントは対象外",
			events: []*model.Event{
				timedEvent("a", testNow.Add(-10*time.Minute), testNow.Add(10*time.Minute)),
			},
			wantOK: false,
		},
		{
			name: "ちょうど現在時刻に始まるイベントは対象外",
			events: []*model.Event{
				timedEvent("a", testNow, testNow.Add(10*time.Minute)),
			},
			wantOK: false,
		},
		{
			name: "終日イベントは対象外",
			events: []*model.Event{
				allDayEvent("a", 2024, time.March, 2),
				timedEvent("b", testNow.Add(30*time.Minute), testNow.Add(time.Hour)),
			},
			wantOK:    true,
			wantStart: testNow.Add(30 * time.Minute),
		},
		{
			name: "最も近いイベントを返す",
			events: []*model.Event{
				timedEvent("late", testNow.Add(2*time.Hour), testNow.Add(3*time.Hour)),
				timedEvent("soon", testNow.Add(20*time.Minute), testNow.Add(time.Hour)),
			},
			wantOK:    true,
			wantStart: testNow.Add(20 * time.Minute),
		},
		{
			name: "除外IDのイベントを飛ばす",
			events: []*model.Event{
				timedEvent("self", testNow.Add(5*time.Minute), testNow.Add(time.Hour)),
				timedEvent("other", testNow.Add(90*time.Minute), testNow.Add(2*time.Hour)),
			},
			exclude:   "self",
			wantOK:    true,
			wantStart: testNow.Add(90 * time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextEventStart(tt.events, testNow, tt.exclude)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", got, tt.wantStart)
			}
		})
	}
}

func TestBookingEnd(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		events   []*model.Event
		want     time.Time
	}{
		{
			name:     "次のイベントがない場合は希望終了時刻",
			duration: 15 * time.Minute,
			want:     testNow.Add(15 * time.Minute),
		},
		{
			name:     "10分後に次のイベントがある場合は10分で打ち切る",
			duration: 15 * time.Minute,
			events: []*model.Event{
				timedEvent("next", testNow.Add(10*time.Minute), testNow.Add(time.Hour)),
			},
			want: testNow.Add(10 * time.Minute),
		},
		{
			name:     "次のイベントが希望終了時刻より後なら希望終了時刻",
			duration: 15 * time.Minute,
			events: []*model.Event{
				timedEvent("next", testNow.Add(40*time.Minute), testNow.Add(time.Hour)),
			},
			want: testNow.Add(15 * time.Minute),
		},
		{
			name:     "終日イベントは境界にならない",
			duration: 30 * time.Minute,
			events: []*model.Event{
				allDayEvent("holiday", 2024, time.March, 1),
			},
			want: testNow.Add(30 * time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BookingEnd(testNow, tt.duration, tt.events)
			if !got.Equal(tt.want) {
				t.Errorf("BookingEnd = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestBookingEnd_NeverExceedsNextEvent は次のイベントの開始時刻を超えないことを
// 様々な間隔と長さの組み合わせで検証する。
func TestBookingEnd_NeverExceedsNextEvent(t *testing.T) {
	for gap := 1; gap <= 90; gap += 7 {
		for minutes := 1; minutes <= 120; minutes += 11 {
			next := testNow.Add(time.Duration(gap) * time.Minute)
			events := []*model.Event{timedEvent("next", next, next.Add(time.Hour))}
			desired := testNow.Add(time.Duration(minutes) * time.Minute)

			got := BookingEnd(testNow, time.Duration(minutes)*time.Minute, events)
			if got.After(next) {
				t.Errorf("gap=%d minutes=%d: end %v exceeds next event %v", gap, minutes, got, next)
			}
			if got.After(desired) {
				t.Errorf("gap=%d minutes=%d: end %v exceeds desired %v", gap, minutes, got, desired)
			}
		}
	}
}

func TestExtendedEnd(t *testing.T) {
	current := testNow.Add(5 * time.Minute)

	tests := []struct {
		name    string
		ext     time.Duration
		next    time.Time
		hasNext bool
		want    time.Time
	}{
		{
			name: "次のイベントがない場合は延長分そのまま",
			ext:  20 * time.Minute,
			want: current.Add(20 * time.Minute),
		},
		{
			name:    "次のイベントで打ち切る",
			ext:     20 * time.Minute,
			next:    current.Add(8 * time.Minute),
			hasNext: true,
			want:    current.Add(8 * time.Minute),
		},
		{
			name:    "次のイベントが既に重なっていても短くしない",
			ext:     20 * time.Minute,
			next:    current.Add(-3 * time.Minute),
			hasNext: true,
			want:    current,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtendedEnd(current, tt.ext, tt.next, tt.hasNext)
			if !got.Equal(tt.want) {
				t.Errorf("ExtendedEnd = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExtendedEnd_Monotonic は延長後の終了時刻が現在の終了時刻以上で、
// 次のイベントの開始時刻（現在の終了時刻より後の場合）を超えないことを検証する。
func TestExtendedEnd_Monotonic(t *testing.T) {
	current := testNow.Add(5 * time.Minute)
	for gap := 0; gap <= 60; gap += 4 {
		for ext := 1; ext <= 60; ext += 6 {
			next := current.Add(time.Duration(gap) * time.Minute)
			got := ExtendedEnd(current, time.Duration(ext)*time.Minute, next, true)
			if got.Before(current) {
				t.Errorf("gap=%d ext=%d: end %v shorter than current %v", gap, ext, got, current)
			}
			if got.After(next) {
				t.Errorf("gap=%d ext=%d: end %v crosses next event %v", gap, ext, got, next)
			}
		}
	}
}

func TestUpcomingEvents(t *testing.T) {
	events := []*model.Event{
		allDayEvent("allday", 2024, time.March, 1),
		timedEvent("past", testNow.Add(-2*time.Hour), testNow.Add(-time.Hour)),
		timedEvent("ends-now", testNow.Add(-time.Hour), testNow),
		timedEvent("ongoing", testNow.Add(-10*time.Minute), testNow.Add(10*time.Minute)),
		timedEvent("future", testNow.Add(time.Hour), testNow.Add(2*time.Hour)),
		{ID: "no-times"},
	}

	got := UpcomingEvents(events, testNow, 10)
	wantIDs := []string{"allday", "ongoing", "future"}
	if len(got) != len(wantIDs) {
		t.Fatalf("len = %d, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestUpcomingEvents_Limit(t *testing.T) {
	var events []*model.Event
	for i := 0; i < 15; i++ {
		start := testNow.Add(time.Duration(i) * time.Hour)
		events = append(events, timedEvent(string(rune('a'+i)), start, start.Add(30*time.Minute)))
	}

	got := UpcomingEvents(events, testNow, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	if got[0].ID != "a" || got[9].ID != "j" {
		t.Errorf("unexpected order: first=%q last=%q", got[0].ID, got[9].ID)
	}
}
