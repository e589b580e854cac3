package broadcast

import (
	"sync"

	"hooklens/internal/model"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultBuffer 는 구독자 채널 하나당 슬롯 수.
const DefaultBuffer = 4096

// Subscription
// ------------------------------------------------------------
// /events 연결 하나에 대응하는 구독 핸들.
// C 는 해당 Streaming Handler 만 읽는다.
type Subscription struct {
	ID string
	C  <-chan model.Message

	ch chan model.Message
}

// Registry
// ------------------------------------------------------------
// 살아 있는 구독 채널 집합. History Store 와는 별개의 mutex 를 쓰고,
// 두 lock 을 동시에 잡는 경로는 없다.
//
// 전달 정책은 best-effort:
// 채널이 가득 찬 구독자는 그 메시지를 잃는다. 느린 뷰어가
// webhook 수집 경로를 막는 일은 없어야 한다.
type Registry struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

// NewRegistry 는 buffer 가 0 이하이면 DefaultBuffer 를 쓴다.
func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Registry{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Register 는 새 채널을 만들어 집합에 넣고 핸들을 돌려준다.
func (r *Registry) Register() *Subscription {
	ch := make(chan model.Message, r.buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch}

	r.mu.Lock()
	r.subs[sub] = struct{}{}
	r.mu.Unlock()

	return sub
}

// Unregister 는 sub 를 집합에서 뺀다. 이미 빠진 핸들이면 아무 일도 하지 않는다.
//
// 채널은 닫지 않는다. Broadcast 가 lock 밖에서 push 하는 중일 수 있어서
// 닫으면 "send on closed channel" 이 난다. 남은 메시지는 GC 가 치운다.
// 반환값은 이번 호출로 실제로 제거됐는지 여부.
func (r *Registry) Unregister(sub *Subscription) bool {
	if sub == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[sub]; !ok {
		return false
	}
	delete(r.subs, sub)
	return true
}

// Broadcast
//
// lock 안에서는 구독자 목록만 복사하고, 실제 push 는 lock 밖에서 non-blocking 으로 한다.
// 버퍼가 찬 구독자는 건너뛰며, 그렇게 버린 구독자 수를 돌려준다.
func (r *Registry) Broadcast(msg model.Message) (dropped int) {
	r.mu.Lock()
	members := lo.Keys(r.subs)
	r.mu.Unlock()

	for _, sub := range members {
		select {
		case sub.ch <- msg:
		default:
			dropped++
		}
	}
	return dropped
}

// Count returns the number of registered subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
