package globaltime

import (
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}

// Window returns the half-open interval [now-d, now] in UTC. A non-positive
// d yields an empty window ending now.
func Window(d time.Duration) (start, end time.Time) {
	end = UTC()
	if d <= 0 {
		return end, end
	}
	return end.Add(-d), end
}
