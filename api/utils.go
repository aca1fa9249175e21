package api

import (
	"strconv"
	"sync/atomic"
	"time"
)

var lastEventID int64

// nextEventID returns a process-wide increasing id for stream events. Ids are
// seeded from the wall clock so they keep increasing across restarts.
func nextEventID() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastEventID)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventID, last, now) {
			return now
		}
	}
}

func parseTaskID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
