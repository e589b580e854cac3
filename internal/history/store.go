package history

import (
	"sync"

	"hooklens/internal/model"
)

// DefaultCapacity 는 History 에 보관하는 최대 이벤트 수.
const DefaultCapacity = 100

// Store
// ------------------------------------------------------------
// 최근 수신한 Event 를 최신순(newest-first)으로 보관하는 bounded 목록.
// 프로세스 시작 시 비어 있고, 재시작 전까지 비워지지 않는다.
//
// 불변 조건:
//   - len(items) <= capacity
//   - capacity+1 번째 Record 는 가장 오래된(맨 뒤) 항목 하나만 밀어낸다.
//
// Record / Snapshot 은 같은 mutex 아래에서 동작하므로
// Snapshot 이 "insert 는 됐는데 evict 는 아직" 인 중간 상태를 볼 일은 없다.
type Store struct {
	mu       sync.Mutex
	items    []model.Event
	capacity int

	// onEvict 는 lock 안에서 등록/복사되고, 호출은 lock 밖에서 한다 (metrics 용).
	onEvict []func(model.Event)
}

// New 는 capacity 가 0 이하이면 DefaultCapacity 를 쓴다.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		items:    make([]model.Event, 0, capacity+1),
		capacity: capacity,
	}
}

// OnEvict 는 밀려난 이벤트마다 호출될 콜백을 추가한다.
// 여러 번 부르면 등록 순서대로 모두 호출된다. 이미 등록된 콜백을 덮어쓰지 않는다.
func (s *Store) OnEvict(fn func(model.Event)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onEvict = append(s.onEvict, fn)
	s.mu.Unlock()
}

// Record 는 ev 를 맨 앞에 넣고, capacity 를 넘으면 맨 뒤 하나를 버린다.
func (s *Store) Record(ev model.Event) {
	var (
		evicted *model.Event
		hooks   []func(model.Event)
	)

	s.mu.Lock()
	s.items = append(s.items, model.Event{})
	copy(s.items[1:], s.items[:len(s.items)-1])
	s.items[0] = ev

	if len(s.items) > s.capacity {
		last := s.items[len(s.items)-1]
		evicted = &last
		s.items[len(s.items)-1] = model.Event{}
		s.items = s.items[:len(s.items)-1]
		hooks = s.onEvict
	}
	s.mu.Unlock()

	if evicted != nil {
		for _, fn := range hooks {
			fn(*evicted)
		}
	}
}

// Snapshot 은 현재 내용을 newest-first 순서 그대로 복사해 돌려준다.
// 반환된 슬라이스는 호출자 소유이며 이후 Record 의 영향을 받지 않는다.
func (s *Store) Snapshot() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Event, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Capacity returns the configured bound.
func (s *Store) Capacity() int {
	return s.capacity
}
