package domain

import "fmt"

// Resolution is a bar width.
type Resolution string

const (
	Res15s Resolution = "15s"
	Res1m  Resolution = "1m"
	Res5m  Resolution = "5m"
	Res15m Resolution = "15m"
	Res1h  Resolution = "1h"
	Res4h  Resolution = "4h"
	Res1d  Resolution = "1d"
	Res1w  Resolution = "1w"

	// Res24h is the rolling trailing-day window. It is never drained into bars.
	Res24h Resolution = "24h"
)

var resolutionSeconds = map[Resolution]int64{
	Res15s: 15,
	Res1m:  60,
	Res5m:  5 * 60,
	Res15m: 15 * 60,
	Res1h:  60 * 60,
	Res4h:  4 * 60 * 60,
	Res1d:  24 * 60 * 60,
	Res1w:  7 * 24 * 60 * 60,
	Res24h: 24 * 60 * 60,
}

// BarResolutions are the bucketed resolutions, shortest first.
var BarResolutions = []Resolution{Res15s, Res1m, Res5m, Res15m, Res1h, Res4h, Res1d, Res1w}

// WindowResolutions are all resolutions a tick is appended to.
var WindowResolutions = append(append([]Resolution{}, BarResolutions...), Res24h)

// ParseResolution validates a resolution string.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(s)
	if _, ok := resolutionSeconds[r]; !ok {
		return "", fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// Seconds returns the width of the resolution.
func (r Resolution) Seconds() int64 {
	return resolutionSeconds[r]
}

// Millis returns the width of the resolution in milliseconds.
func (r Resolution) Millis() int64 {
	return resolutionSeconds[r] * 1000
}

// BucketStart floors a Unix ms timestamp to the start of its bucket.
// Buckets are aligned to the Unix epoch, so 1w buckets start on Thursdays.
func (r Resolution) BucketStart(ms int64) int64 {
	width := r.Millis()
	if width == 0 {
		return ms
	}
	return ms - ms%width
}
