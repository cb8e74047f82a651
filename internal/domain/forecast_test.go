package domain

import (
	"testing"
	"time"
)

func TestNextBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		skip bool
		want string
	}{
		{name: "monday to tuesday", from: time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC), skip: true, want: "2024-06-11"},
		{name: "friday to monday", from: time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC), skip: true, want: "2024-06-17"},
		{name: "saturday to monday", from: time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC), skip: true, want: "2024-06-17"},
		{name: "friday to saturday without skipping", from: time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC), skip: false, want: "2024-06-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ForecastDate(tt.from, tt.skip); got != tt.want {
				t.Fatalf("ForecastDate = %s, want %s", got, tt.want)
			}
		})
	}
}
