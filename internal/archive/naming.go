package archive

import (
	"fmt"
	"sync/atomic"
	"time"

	"hooklens/internal/clock"
)

// naming.go
// ------------------------------------------------------------
// 아카이브 object 이름 규칙:
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	hooklens/dt=2026-10-17/hr=09/1792227600_laptop_000042.jsonl.gz
//
// 이름 순 정렬이 곧 시간 순 정렬이 되도록 unix 초를 맨 앞에 둔다.
var globalCounter atomic.Uint64

// NextCounter 는 goroutine 간 충돌 없는 순번을 만든다. 1e6 에서 0 으로 돌아간다.
func NextCounter() uint64 {
	return globalCounter.Add(1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.jsonl.gz 를 만든다.
func NewFilename(instanceID string, now time.Time) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", now.Unix(), instanceID, NextCounter())
}

// BuildKey 는 dt / hr 파티션을 붙인 S3 key 를 만든다.
func BuildKey(prefix string, now time.Time, filename string) string {
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, clock.DT(now), clock.HR(now), filename)
}
