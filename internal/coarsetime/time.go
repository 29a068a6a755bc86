// Package coarsetime is a clock refreshed every Resolution by a background
// goroutine. Reading it costs an atomic load, which keeps per-frame
// timestamps off the time.Now path.
package coarsetime

import (
	"sync/atomic"
	"time"
)

// Resolution is the refresh interval. Readings lag the wall clock by at
// most this much.
const Resolution = 50 * time.Millisecond

var nowNs atomic.Int64

func init() {
	nowNs.Store(time.Now().UnixNano())

	ticker := time.NewTicker(Resolution)
	go func() {
		for t := range ticker.C {
			nowNs.Store(t.UnixNano())
		}
	}()
}

// UnixNano returns the coarse time as nanoseconds since the Unix epoch.
func UnixNano() int64 {
	return nowNs.Load()
}

func Now() time.Time {
	return time.Unix(0, nowNs.Load())
}
