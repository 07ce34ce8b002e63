package core

import (
	"errors"
	"testing"
	"time"
)

func mustRange(t *testing.T, start, end string) TimeRange {
	t.Helper()
	r, err := ParseRange(start, end)
	if err != nil {
		t.Fatalf("ParseRange(%q, %q) error = %v", start, end, err)
	}
	return r
}

func TestGenerateWindows_TwoHourRange(t *testing.T) {
	r := mustRange(t, "2024-01-01T00:00:00Z", "2024-01-01T02:00:00Z")

	windows, err := GenerateWindows(r, time.Hour)
	if err != nil {
		t.Fatalf("GenerateWindows() error = %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("len(windows) = %d, want 2", len(windows))
	}

	if !windows[0].Start.Equal(r.Start) || !windows[0].End.Equal(r.Start.Add(time.Hour)) {
		t.Errorf("windows[0] = [%v, %v), want [00:00, 01:00)", windows[0].Start, windows[0].End)
	}
	if !windows[1].Start.Equal(r.Start.Add(time.Hour)) || !windows[1].End.Equal(r.End) {
		t.Errorf("windows[1] = [%v, %v), want [01:00, 02:00)", windows[1].Start, windows[1].End)
	}
}

func TestGenerateWindows_Properties(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		duration time.Duration
		want     int // ceil((end-start)/duration)
	}{
		{"exact multiple", "2024-01-01T00:00:00Z", "2024-01-01T06:00:00Z", time.Hour, 6},
		{"truncated last", "2024-01-01T00:00:00Z", "2024-01-01T02:30:00Z", time.Hour, 3},
		{"single partial", "2024-01-01T00:00:00Z", "2024-01-01T00:10:00Z", time.Hour, 1},
		{"minute windows", "2024-01-01T00:00:00Z", "2024-01-01T01:00:00Z", 7 * time.Minute, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRange(t, tt.start, tt.end)
			windows, err := GenerateWindows(r, tt.duration)
			if err != nil {
				t.Fatalf("GenerateWindows() error = %v", err)
			}
			if len(windows) != tt.want {
				t.Fatalf("len(windows) = %d, want %d", len(windows), tt.want)
			}

			// Contiguous, non-overlapping, covering the full range.
			for i, w := range windows {
				if w.Index != i+1 {
					t.Errorf("windows[%d].Index = %d, want %d", i, w.Index, i+1)
				}
				if !w.Start.Before(w.End) {
					t.Errorf("windows[%d] is empty: [%v, %v)", i, w.Start, w.End)
				}
				if i == 0 && !w.Start.Equal(r.Start) {
					t.Errorf("first window starts at %v, want %v", w.Start, r.Start)
				}
				if i > 0 && !w.Start.Equal(windows[i-1].End) {
					t.Errorf("gap or overlap between window %d and %d", i-1, i)
				}
			}
			if last := windows[len(windows)-1]; !last.End.Equal(r.End) {
				t.Errorf("last window ends at %v, want %v", last.End, r.End)
			}
		})
	}
}

func TestGenerateWindows_EmptyRange(t *testing.T) {
	r := mustRange(t, "2024-01-01", "2024-01-01")
	windows, err := GenerateWindows(r, time.Hour)
	if err != nil {
		t.Fatalf("GenerateWindows() error = %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("len(windows) = %d, want 0", len(windows))
	}
}

func TestGenerateWindows_InvalidDuration(t *testing.T) {
	r := mustRange(t, "2024-01-01", "2024-01-02")
	for _, d := range []time.Duration{0, -time.Minute} {
		_, err := GenerateWindows(r, d)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("GenerateWindows(d=%v) error = %v, want ErrInvalidConfiguration", d, err)
		}
	}
}

func TestGenerateWindows_Deterministic(t *testing.T) {
	r := mustRange(t, "2024-01-01T00:00:00Z", "2024-01-03T07:45:00Z")
	a, _ := GenerateWindows(r, 90*time.Minute)
	b, _ := GenerateWindows(r, 90*time.Minute)
	if len(a) != len(b) {
		t.Fatalf("window counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("windows[%d] differ: %+v vs %+v", i, a[i], b[i])
		}
	}
}
