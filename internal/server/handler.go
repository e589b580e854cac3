package server

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"hooklens/internal/archive"
	"hooklens/internal/broadcast"
	"hooklens/internal/clock"
	"hooklens/internal/config"
	"hooklens/internal/history"
	"hooklens/internal/metrics"
	"hooklens/internal/model"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Archiver 는 기록된 이벤트를 외부 저장소로 넘기는 쪽 (archive.Manager).
// Enqueue 는 절대 block 하지 않아야 한다.
type Archiver interface {
	Enqueue(ev model.Event) bool
}

// Handler 는 모든 HTTP 엔드포인트가 공유하는 의존성 묶음이다.
//
// History Store 와 Subscriber Registry 는 프로세스 전역 상태지만 전역 변수로 두지 않고
// main 에서 한 번 만들어 여기로 주입한다. 각자 자기 mutex 만 쓰며 서로를 잡지 않는다.
type Handler struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	history  *history.Store
	registry *broadcast.Registry
	archive  Archiver
	encoder  *archive.Encoder
	clock    clock.Clock
	log      zerolog.Logger

	// ingestMu 는 Record 와 Broadcast 를 한 묶음으로 만든다.
	// 구독자가 받는 순서 == History 에 기록된 순서. Broadcast 는 block 하지 않으므로 짧게 잡힌다.
	ingestMu sync.Mutex
}

func NewHandler(cfg config.Config, m *metrics.Metrics, store *history.Store, reg *broadcast.Registry, log zerolog.Logger) *Handler {
	store.OnEvict(func(model.Event) {
		atomic.AddInt64(&m.HistoryEvictedTotal, 1)
	})

	return &Handler{
		cfg:      cfg,
		metrics:  m,
		history:  store,
		registry: reg,
		encoder:  archive.NewEncoder(),
		clock:    clock.System{},
		log:      log,
	}
}

// WithArchive 는 수집된 이벤트를 a 로도 흘려보낸다. nil 이면 아카이브 없음.
func (h *Handler) WithArchive(a Archiver) *Handler {
	h.archive = a
	return h
}

// WithClock 은 Event.Timestamp 에 쓸 시계를 바꾼다.
func (h *Handler) WithClock(c clock.Clock) *Handler {
	h.clock = c
	return h
}

// HandleHealth 는 로컬 스크립트 / 컨테이너 health check 용.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// writeDeadline 은 응답 하나(또는 스트림 프레임 하나)에 쓰기 제한 시간을 건다.
// httptest.ResponseRecorder 처럼 지원하지 않는 writer 는 그냥 넘어간다.
func (h *Handler) writeDeadline(rc *http.ResponseController) error {
	err := rc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}
