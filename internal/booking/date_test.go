package booking_test

import (
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/example/baybook/internal/booking"
)

// TestDateLabel checks the label for fixed invocation days, including year rollover.
func TestDateLabel(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"new year", time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC), "01/22/2024"},
		{"year rollover", time.Date(2024, 12, 20, 0, 10, 0, 0, time.UTC), "01/10/2025"},
		{"leap day", time.Date(2024, 2, 8, 12, 0, 0, 0, time.UTC), "02/29/2024"},
		{"month end", time.Date(2023, 1, 31, 23, 59, 59, 0, time.UTC), "02/21/2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := booking.DateLabel(tt.now); got != tt.want {
				t.Fatalf("DateLabel(%s) = %q, want %q", tt.now, got, tt.want)
			}
		})
	}
}

// TestDateLabelMidnightDST covers a target day on which DST starts at 00:00,
// so the target day has no local midnight (Sao Paulo, 2018-11-04).
func TestDateLabelMidnightDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatal(err)
	}
	for h := 0; h < 24; h++ {
		now := time.Date(2018, 10, 14, h, 30, 0, 0, loc)
		if got := booking.DateLabel(now); got != "11/04/2018" {
			t.Fatalf("DateLabel(%s) = %q, want 11/04/2018", now, got)
		}
	}
}

// TestDateLabelIgnoresTimeOfDay verifies every instant of one local day maps to one label.
func TestDateLabelIgnoresTimeOfDay(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	start := time.Date(2024, 3, 5, 0, 0, 0, 0, loc)
	want := booking.DateLabel(start)
	for m := 0; m < 24*60; m += 17 {
		now := start.Add(time.Duration(m) * time.Minute)
		if got := booking.DateLabel(now); got != want {
			t.Fatalf("DateLabel(%s) = %q, want %q", now, got, want)
		}
	}
}

// TestNewRequestFixesTargetDate verifies the request carries the computed label.
func TestNewRequestFixesTargetDate(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	req := booking.NewRequest("Level 1 Carpark", "ABC123", now)
	if req.DateLabel != "01/22/2024" {
		t.Fatalf("DateLabel = %q", req.DateLabel)
	}
	if !req.TargetDate.Equal(time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("TargetDate = %s", req.TargetDate)
	}
}

// TestDateLabelProperties checks the label against calendar arithmetic for arbitrary days.
func TestDateLabelProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	base := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("label is 21 days ahead in MM/DD/YYYY", prop.ForAll(
		func(days, minutes int) bool {
			now := base.AddDate(0, 0, days).Add(time.Duration(minutes) * time.Minute)
			label := booking.DateLabel(now)
			parsed, err := time.Parse("01/02/2006", label)
			if err != nil {
				return false
			}
			y, m, d := now.Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			return parsed.Sub(day) == 21*24*time.Hour
		},
		gen.IntRange(0, 60*366),
		gen.IntRange(0, 24*60-1),
	))

	properties.Property("label is zero padded", prop.ForAll(
		func(days int) bool {
			label := booking.DateLabel(base.AddDate(0, 0, days))
			var mm, dd, yyyy int
			n, err := fmt.Sscanf(label, "%2d/%2d/%4d", &mm, &dd, &yyyy)
			return err == nil && n == 3 && len(label) == 10 && label[2] == '/' && label[5] == '/'
		},
		gen.IntRange(0, 60*366),
	))

	properties.TestingRun(t)
}

// TestDateLabelPropertiesDSTZones repeats the calendar check in zones with
// midnight DST transitions.
func TestDateLabelPropertiesDSTZones(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	for _, name := range []string{"America/Sao_Paulo", "America/Santiago", "Asia/Beirut", "America/Havana"} {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Fatal(err)
		}
		base := time.Date(2000, 1, 1, 12, 0, 0, 0, loc)
		properties.Property(name+": label is 21 calendar days ahead", prop.ForAll(
			func(days, minutes int) bool {
				y, m, d := base.AddDate(0, 0, days).Date()
				now := time.Date(y, m, d, 0, minutes, 0, 0, loc)
				ly, lm, ld := now.Date()
				// DST moves noon by at most an hour, so it stays on the same day.
				noon := time.Date(ly, lm, ld, 12, 0, 0, 0, loc)
				want := noon.Add(21 * 24 * time.Hour).Format("01/02/2006")
				return booking.DateLabel(now) == want
			},
			gen.IntRange(0, 30*366),
			gen.IntRange(0, 24*60-1),
		))
	}
	properties.TestingRun(t)
}
