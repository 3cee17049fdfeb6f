// Package presence は在席記録を曜日ごとに集計する純粋関数群を提供する。
// 内部状態を持たないため、同期なしで並行に呼び出してよい。
package presence

import (
	"encoding/json"
	"sort"

	"github.com/hitoshi/presence/internal/model"
)

// WeekdayAbbr は曜日インデックス（月曜=0）に対応する3文字の略称。
var WeekdayAbbr = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// WeekdayBucket は曜日ごとの区間長（秒）のリスト。インデックスは月曜=0。
type WeekdayBucket [7][]int

// Number はMeanが受け付ける数値型。
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// WeekdayValue は曜日と集計値の組。JSONでは ["Tue", 30047] の配列になる。
type WeekdayValue struct {
	Weekday string
	Value   float64
}

// MarshalJSON は [曜日, 値] の配列としてエンコードする。
func (v WeekdayValue) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.Weekday, v.Value})
}

// StartEnd は曜日ごとの平均出勤時刻と平均退勤時刻（0時からの秒数）。
// JSONでは ["Tue", 34745, 64792] の配列になる。
type StartEnd struct {
	Weekday string
	Start   float64
	End     float64
}

// MarshalJSON は [曜日, 開始, 終了] の配列としてエンコードする。
func (s StartEnd) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Weekday, s.Start, s.End})
}

// SecondsSinceMidnight は0時からの経過秒数を返す。
func SecondsSinceMidnight(t model.TimeOfDay) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// IntervalSeconds はstartからendまでの秒数を返す。
// endがstartより前の場合は負の値になる（検証しない）。
func IntervalSeconds(start, end model.TimeOfDay) int {
	return SecondsSinceMidnight(end) - SecondsSinceMidnight(start)
}

// Mean は算術平均を返す。空のスライスには0を返す。
func Mean[N Number](values []N) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// sortedDates はrecordsの日付を昇順で返す。
func sortedDates(records model.Records) []model.Date {
	dates := make([]model.Date, 0, len(records))
	for d := range records {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})
	return dates
}

// GroupByWeekday は各日の在席時間を曜日ごとのバケットに振り分ける。
// 同じ曜日内の順序は日付の昇順。
func GroupByWeekday(records model.Records) WeekdayBucket {
	var bucket WeekdayBucket
	for i := range bucket {
		bucket[i] = []int{}
	}
	for _, d := range sortedDates(records) {
		p := records[d]
		wd := d.Weekday()
		bucket[wd] = append(bucket[wd], IntervalSeconds(p.Start, p.End))
	}
	return bucket
}

// TotalByWeekday は曜日ごとの在席時間の合計を月曜から順に返す。
func TotalByWeekday(records model.Records) []WeekdayValue {
	bucket := GroupByWeekday(records)
	result := make([]WeekdayValue, 0, len(bucket))
	for wd, intervals := range bucket {
		total := 0
		for _, s := range intervals {
			total += s
		}
		result = append(result, WeekdayValue{Weekday: WeekdayAbbr[wd], Value: float64(total)})
	}
	return result
}

// MeanByWeekday は曜日ごとの在席時間の平均を月曜から順に返す。
func MeanByWeekday(records model.Records) []WeekdayValue {
	bucket := GroupByWeekday(records)
	result := make([]WeekdayValue, 0, len(bucket))
	for wd, intervals := range bucket {
		result = append(result, WeekdayValue{Weekday: WeekdayAbbr[wd], Value: Mean(intervals)})
	}
	return result
}

// MeanPresenceHours は曜日ごとの平均出勤時刻と平均退勤時刻を月曜から順に返す。
func MeanPresenceHours(records model.Records) []StartEnd {
	var starts, ends [7][]int
	for _, d := range sortedDates(records) {
		p := records[d]
		wd := d.Weekday()
		starts[wd] = append(starts[wd], SecondsSinceMidnight(p.Start))
		ends[wd] = append(ends[wd], SecondsSinceMidnight(p.End))
	}

	result := make([]StartEnd, 0, 7)
	for wd := range WeekdayAbbr {
		result = append(result, StartEnd{
			Weekday: WeekdayAbbr[wd],
			Start:   Mean(starts[wd]),
			End:     Mean(ends[wd]),
		})
	}
	return result
}
