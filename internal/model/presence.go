package model

import (
	"fmt"
	"time"
)

// Date は時刻を持たない暦日を表す。
// mapのキーとして使えるよう比較可能な値型にしている。
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate は "2006-01-02" 形式の文字列をDateに変換する。
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf はtime.Timeの日付部分を取り出す。
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time はDateをUTCの0時として返す。
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday は月曜=0、日曜=6 の曜日インデックスを返す。
func (d Date) Weekday() int {
	return (int(d.Time().Weekday()) + 6) % 7
}

// Before はdがotherより前の日付かを返す。
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// String は "2006-01-02" 形式の文字列を返す。
func (d Date) String() string {
	return d.Time().Format(time.DateOnly)
}

// TimeOfDay は0時からの時刻（秒精度）を表す。
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay は "15:04:05" 形式の文字列をTimeOfDayに変換する。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(time.TimeOnly, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

// String は "15:04:05" 形式の文字列を返す。
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Presence は1日分の出勤・退勤時刻。
type Presence struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Records は1人の従業員の日付ごとの在席記録。
type Records map[Date]Presence

// Dataset は従業員IDごとの在席記録全体。
type Dataset map[int]Records

// Add はuserIDの指定日の記録を追加する。同じ日付の既存記録は上書きされる。
func (ds Dataset) Add(userID int, date Date, p Presence) {
	records, ok := ds[userID]
	if !ok {
		records = make(Records)
		ds[userID] = records
	}
	records[date] = p
}
