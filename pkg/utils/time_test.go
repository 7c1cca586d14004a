package utils

import (
	"testing"
	"time"
)

func TestGetDayStartFrom(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "middle of day",
			input:    time.Date(2024, 1, 15, 14, 30, 45, 123456789, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "start of day",
			input:    time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "end of day",
			input:    time.Date(2024, 1, 15, 23, 59, 59, 999999999, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "leap year",
			input:    time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetDayStartFrom(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("GetDayStartFrom(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestGetDayEndFrom(t *testing.T) {
	input := time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC)
	expected := time.Date(2024, 1, 15, 23, 59, 59, 999999999, time.UTC)

	if result := GetDayEndFrom(input); !result.Equal(expected) {
		t.Errorf("GetDayEndFrom(%v) = %v, want %v", input, result, expected)
	}
}

func TestGetWeekStartFrom(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "wednesday",
			input:    time.Date(2024, 1, 17, 14, 30, 45, 0, time.UTC), // Wednesday
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),    // Monday
		},
		{
			name:     "monday",
			input:    time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC),
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "sunday",
			input:    time.Date(2024, 1, 21, 14, 30, 45, 0, time.UTC), // Sunday
			expected: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),    // Monday of same week
		},
		{
			name:     "week spanning months",
			input:    time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), // Thursday Feb 1
			expected: time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC), // Monday Jan 29
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetWeekStartFrom(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("GetWeekStartFrom(%v) = %v (weekday: %v), want %v", tt.input, result, result.Weekday(), tt.expected)
			}
			if result.Weekday() != time.Monday {
				t.Errorf("GetWeekStartFrom(%v) returned %v, expected Monday", tt.input, result.Weekday())
			}
		})
	}
}

func TestGetMonthStartFrom(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "middle of month",
			input:    time.Date(2024, 1, 15, 14, 30, 45, 0, time.UTC),
			expected: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "february leap year",
			input:    time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetMonthStartFrom(tt.input)
			if !result.Equal(tt.expected) {
				t.Errorf("GetMonthStartFrom(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNextIntervalBoundary(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		interval time.Duration
		expected time.Time
	}{
		{
			name:     "8h grid mid-interval",
			input:    time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
			interval: 8 * time.Hour,
			expected: time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
		},
		{
			name:     "8h grid before first boundary",
			input:    time.Date(2024, 1, 15, 3, 0, 0, 0, time.UTC),
			interval: 8 * time.Hour,
			expected: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly on boundary gives next one",
			input:    time.Date(2024, 1, 15, 16, 0, 0, 0, time.UTC),
			interval: 8 * time.Hour,
			expected: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "last interval rolls into next day",
			input:    time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC),
			interval: 8 * time.Hour,
			expected: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "1h grid",
			input:    time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
			interval: time.Hour,
			expected: time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NextIntervalBoundary(tt.input, tt.interval)
			if !result.Equal(tt.expected) {
				t.Errorf("NextIntervalBoundary(%v, %v) = %v, want %v", tt.input, tt.interval, result, tt.expected)
			}
		})
	}
}

func TestTimeRangeContains(t *testing.T) {
	tr := TimeRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC),
	}

	tests := []struct {
		name     string
		time     time.Time
		expected bool
	}{
		{"within range", time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), true},
		{"at start", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"at end", time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), true},
		{"before range", time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), false},
		{"after range", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tr.Contains(tt.time); result != tt.expected {
				t.Errorf("TimeRange.Contains(%v) = %v, want %v", tt.time, result, tt.expected)
			}
		})
	}
}

func TestGetLastNDays(t *testing.T) {
	tr := GetLastNDays(7)

	duration := tr.Duration()
	actualDays := int(duration.Hours()/24) + 1 // включает и первый, и последний день

	if actualDays != 7 {
		t.Errorf("GetLastNDays(7) spans %d days, want 7", actualDays)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Duration
		expected string
	}{
		{"seconds", 45 * time.Second, "45s"},
		{"minutes and seconds", 5*time.Minute + 30*time.Second, "5m30s"},
		{"hours and minutes", 2*time.Hour + 15*time.Minute, "2h15m0s"},
		{"sub-second rounds", 1500 * time.Millisecond, "2s"},
		{"zero", 0, "0s"},
		{"negative", -5 * time.Minute, "5m0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FormatDuration(tt.input); result != tt.expected {
				t.Errorf("FormatDuration(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestFromUnixMillis(t *testing.T) {
	now := time.Now().UTC()
	ms := now.UnixMilli()

	result := FromUnixMillis(ms)

	diff := now.Sub(result)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Millisecond {
		t.Errorf("FromUnixMillis(%d) = %v, expected close to %v", ms, result, now)
	}
}
