package core

import (
	"fmt"
	"time"
)

// GenerateWindows splits a half-open range into contiguous, non-overlapping
// windows of the given duration. The last window is truncated to the range
// end, so the union of all windows equals the range exactly. An empty range
// produces zero windows.
//
// The result is computed eagerly: windows are cheap planning data used to
// drive the windowed streaming mode, and knowing the total up front allows
// "window i of n" progress reporting.
func GenerateWindows(r TimeRange, d time.Duration) ([]Window, error) {
	if d <= 0 {
		return nil, fmt.Errorf("%w: window duration must be positive, got %v", ErrInvalidConfiguration, d)
	}

	var windows []Window
	cursor := r.Start
	for cursor.Before(r.End) {
		end := cursor.Add(d)
		if end.After(r.End) {
			end = r.End
		}
		windows = append(windows, Window{
			Index: len(windows) + 1,
			Start: cursor,
			End:   end,
		})
		cursor = end
	}
	return windows, nil
}
