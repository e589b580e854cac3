// internal/clock/clock.go
package clock

import (
	"sync/atomic"
	"time"
)

//
// clock.go
// ------------------------------------------------------------
// Event.Timestamp 는 초 단위 정밀도면 충분하므로,
// 매 요청마다 time.Now() 를 포맷하지 않고 1초 ticker 로 캐싱한 값을 쓸 수 있다.
//
// 사용처:
//   - Event.Timestamp ("YYYY-MM-DD HH:MM:SS", local)
//   - 아카이브 S3 파티션 prefix (dt=YYYY-MM-DD / hr=HH)
// ------------------------------------------------------------

// Layout 은 Event.Timestamp 포맷.
const Layout = "2006-01-02 15:04:05"

// Clock 은 테스트에서 시간을 고정하기 위한 seam.
type Clock interface {
	Now() time.Time
}

// System 은 time.Now 를 그대로 쓰는 Clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed 는 항상 같은 시각을 돌려주는 Clock (테스트용).
type Fixed time.Time

func (f Fixed) Now() time.Time { return time.Time(f) }

// Format 은 t 를 Event.Timestamp 포맷으로 바꾼다.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// DT returns "YYYY-MM-DD" (UTC).
func DT(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HR returns "HH" (UTC).
func HR(t time.Time) string {
	return t.UTC().Format("15")
}

// ------------------------------------------------------------
// Cached
// ------------------------------------------------------------

// Cached 는 1초마다 갱신되는 Clock.
// Now() 는 atomic load 한 번으로 끝나며, 초 단위 미만은 버려진다.
type Cached struct {
	unixSec atomic.Int64
	stop    chan struct{}
}

// NewCached 는 즉시 현재 시각으로 seed 하고 백그라운드 ticker 를 시작한다.
// 종료 시 Stop() 을 호출해야 goroutine 이 정리된다.
func NewCached() *Cached {
	c := &Cached{stop: make(chan struct{})}
	c.update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.update()
			case <-c.stop:
				return
			}
		}
	}()
	return c
}

func (c *Cached) update() {
	c.unixSec.Store(time.Now().Unix())
}

// Now returns the cached wall clock (1-second precision, local zone).
func (c *Cached) Now() time.Time {
	return time.Unix(c.unixSec.Load(), 0)
}

// Stop 은 ticker goroutine 을 멈춘다. 두 번 호출하면 panic 이므로 한 번만 부른다.
func (c *Cached) Stop() {
	close(c.stop)
}
