package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Используются для суточных границ риск-метрик (daily PNL) и
// человекочитаемого форматирования длительностей в логах.

// GetDayStart возвращает начало текущего дня (00:00:00) в UTC
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom возвращает начало дня для указанного времени в UTC
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEndFrom возвращает конец дня (23:59:59.999999999) в UTC
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetWeekStartFrom возвращает начало недели (понедельник 00:00:00 UTC)
//
// Неделя начинается с понедельника (ISO 8601).
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()

	// 0=Sunday -> 7 по ISO 8601
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetMonthStartFrom возвращает начало месяца (1-е число 00:00:00 UTC)
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextIntervalBoundary возвращает ближайшую будущую границу интервала
//
// Границы отсчитываются от начала дня UTC: для 8h это 00:00, 08:00,
// 16:00. Время ровно на границе даёт следующую границу, не текущую.
func NextIntervalBoundary(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	day := GetDayStartFrom(t)
	elapsed := t.UTC().Sub(day)
	return day.Add((elapsed/interval + 1) * interval)
}

// TimeRange представляет временной диапазон
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains проверяет, попадает ли время в диапазон
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// Duration возвращает продолжительность диапазона
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// GetLastNDays возвращает диапазон последних n дней (включая сегодня)
func GetLastNDays(n int) TimeRange {
	if n <= 0 {
		n = 1
	}
	now := time.Now().UTC()
	return TimeRange{
		Start: GetDayStartFrom(now.AddDate(0, 0, -(n - 1))),
		End:   GetDayEndFrom(now),
	}
}

// FormatDuration форматирует продолжительность в краткий вид
//
// Примеры: "45s", "5m30s", "2h15m0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Round(time.Second).String()
}

// UnixMillis возвращает текущее время в миллисекундах Unix
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
